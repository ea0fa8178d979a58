package fanbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownBlockType is returned when a body block carries a type tag
	// outside the known set.
	ErrUnknownBlockType = errors.New("unknown block type")

	// ErrUnknownEmbedType is returned when a urlEmbedMap entry carries a
	// type tag outside the known set.
	ErrUnknownEmbedType = errors.New("unknown url embed type")
)

const octetStream = "application/octet-stream"

// PostBody holds a post's content. Article posts carry Blocks plus the
// side-tables the blocks point into; older post types carry Text and the
// direct Images/Videos/Files lists instead. Blocks is nil when the body has
// no block sequence at all.
type PostBody struct {
	Text        string
	Blocks      []PostBlock
	Images      []PostImage
	Videos      []PostVideo
	Video       *PostVideo
	Files       []PostFile
	ImageMap    map[string]PostImage
	FileMap     map[string]PostFile
	EmbedMap    map[string]PostEmbed
	URLEmbedMap map[string]PostTextEmbed
	VideoMap    map[string]PostVideo
}

type rawBody struct {
	Text        string                     `json:"text"`
	Blocks      []json.RawMessage          `json:"blocks"`
	Images      []PostImage                `json:"images"`
	Videos      []PostVideo                `json:"videos"`
	Video       *PostVideo                 `json:"video"`
	Files       []PostFile                 `json:"files"`
	ImageMap    map[string]PostImage       `json:"imageMap"`
	FileMap     map[string]PostFile        `json:"fileMap"`
	EmbedMap    map[string]PostEmbed       `json:"embedMap"`
	URLEmbedMap map[string]json.RawMessage `json:"urlEmbedMap"`
	VideoMap    map[string]PostVideo       `json:"videoMap"`
}

func (b *PostBody) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var raw rawBody
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	body := PostBody{
		Text:     raw.Text,
		Images:   raw.Images,
		Videos:   raw.Videos,
		Video:    raw.Video,
		Files:    raw.Files,
		ImageMap: raw.ImageMap,
		FileMap:  raw.FileMap,
		EmbedMap: raw.EmbedMap,
		VideoMap: raw.VideoMap,
	}

	if raw.Blocks != nil {
		body.Blocks = make([]PostBlock, 0, len(raw.Blocks))
		for i, msg := range raw.Blocks {
			block, err := decodeBlock(msg)
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			body.Blocks = append(body.Blocks, block)
		}
	}

	if raw.URLEmbedMap != nil {
		body.URLEmbedMap = make(map[string]PostTextEmbed, len(raw.URLEmbedMap))
		for id, msg := range raw.URLEmbedMap {
			embed, err := decodeTextEmbed(msg)
			if err != nil {
				return fmt.Errorf("url embed %s: %w", id, err)
			}
			body.URLEmbedMap[id] = embed
		}
	}

	*b = body
	return nil
}

// BlockStyle is a styled range of a text block. Offset and Length count
// UTF-16 code units, as the platform's editor does.
type BlockStyle struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// BlockKind is the type tag of a body block
type BlockKind string

const (
	BlockParagraph BlockKind = "p"
	BlockHeader    BlockKind = "header"
	BlockImage     BlockKind = "image"
	BlockFile      BlockKind = "file"
	BlockEmbed     BlockKind = "embed"
	BlockURLEmbed  BlockKind = "url_embed"
	BlockVideo     BlockKind = "video"
)

// PostBlock is one unit of an article body. The set of implementations is
// closed to this package.
type PostBlock interface {
	Kind() BlockKind
	postBlock()
}

type ParagraphBlock struct {
	Text   string       `json:"text"`
	Styles []BlockStyle `json:"styles"`
}

type HeaderBlock struct {
	Text   string       `json:"text"`
	Styles []BlockStyle `json:"styles"`
}

type ImageBlock struct {
	ImageID string `json:"imageId"`
}

type FileBlock struct {
	FileID string `json:"fileId"`
}

type EmbedBlock struct {
	EmbedID string `json:"embedId"`
}

type URLEmbedBlock struct {
	URLEmbedID string `json:"urlEmbedId"`
}

type VideoBlock struct {
	VideoID string `json:"videoId"`
}

func (ParagraphBlock) Kind() BlockKind { return BlockParagraph }
func (HeaderBlock) Kind() BlockKind    { return BlockHeader }
func (ImageBlock) Kind() BlockKind     { return BlockImage }
func (FileBlock) Kind() BlockKind      { return BlockFile }
func (EmbedBlock) Kind() BlockKind     { return BlockEmbed }
func (URLEmbedBlock) Kind() BlockKind  { return BlockURLEmbed }
func (VideoBlock) Kind() BlockKind     { return BlockVideo }

func (ParagraphBlock) postBlock() {}
func (HeaderBlock) postBlock()    {}
func (ImageBlock) postBlock()     {}
func (FileBlock) postBlock()      {}
func (EmbedBlock) postBlock()     {}
func (URLEmbedBlock) postBlock()  {}
func (VideoBlock) postBlock()     {}

func decodeBlock(data []byte) (PostBlock, error) {
	var head struct {
		Type BlockKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case BlockParagraph:
		return decodeAs[ParagraphBlock](data)
	case BlockHeader:
		return decodeAs[HeaderBlock](data)
	case BlockImage:
		return decodeAs[ImageBlock](data)
	case BlockFile:
		return decodeAs[FileBlock](data)
	case BlockEmbed:
		return decodeAs[EmbedBlock](data)
	case BlockURLEmbed:
		return decodeAs[URLEmbedBlock](data)
	case BlockVideo:
		return decodeAs[VideoBlock](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, head.Type)
	}
}

// EmbedType is the type tag of a urlEmbedMap entry
type EmbedType string

const (
	EmbedHTML     EmbedType = "html"
	EmbedHTMLCard EmbedType = "html.card"
	EmbedPost     EmbedType = "fanbox.post"
	EmbedCreator  EmbedType = "fanbox.creator"
	EmbedLink     EmbedType = "default"
)

// PostTextEmbed is what a url_embed block points at. The set of
// implementations is closed to this package.
type PostTextEmbed interface {
	Type() EmbedType
	EmbedID() string
	textEmbed()
}

type HTMLEmbed struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

type HTMLCardEmbed struct {
	ID   string `json:"id"`
	HTML string `json:"html"`
}

// PostRefEmbed links another post on the platform.
type PostRefEmbed struct {
	ID       string      `json:"id"`
	PostInfo PostSummary `json:"postInfo"`
}

// CreatorRefEmbed links another creator's page.
type CreatorRefEmbed struct {
	ID      string         `json:"id"`
	Profile CreatorProfile `json:"profile"`
}

// LinkEmbed is a plain external link.
type LinkEmbed struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Host string `json:"host"`
}

func (HTMLEmbed) Type() EmbedType       { return EmbedHTML }
func (HTMLCardEmbed) Type() EmbedType   { return EmbedHTMLCard }
func (PostRefEmbed) Type() EmbedType    { return EmbedPost }
func (CreatorRefEmbed) Type() EmbedType { return EmbedCreator }
func (LinkEmbed) Type() EmbedType       { return EmbedLink }

func (e HTMLEmbed) EmbedID() string       { return e.ID }
func (e HTMLCardEmbed) EmbedID() string   { return e.ID }
func (e PostRefEmbed) EmbedID() string    { return e.ID }
func (e CreatorRefEmbed) EmbedID() string { return e.ID }
func (e LinkEmbed) EmbedID() string       { return e.ID }

func (HTMLEmbed) textEmbed()       {}
func (HTMLCardEmbed) textEmbed()   {}
func (PostRefEmbed) textEmbed()    {}
func (CreatorRefEmbed) textEmbed() {}
func (LinkEmbed) textEmbed()       {}

func decodeTextEmbed(data []byte) (PostTextEmbed, error) {
	var head struct {
		Type EmbedType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case EmbedHTML:
		return decodeAs[HTMLEmbed](data)
	case EmbedHTMLCard:
		return decodeAs[HTMLCardEmbed](data)
	case EmbedPost:
		return decodeAs[PostRefEmbed](data)
	case EmbedCreator:
		return decodeAs[CreatorRefEmbed](data)
	case EmbedLink:
		return decodeAs[LinkEmbed](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEmbedType, head.Type)
	}
}

func decodeAs[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// PostImage is an uploaded image
type PostImage struct {
	ID           string `json:"id"`
	Extension    string `json:"extension"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	OriginalURL  string `json:"originalUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

func (i PostImage) Filename() string {
	return i.ID + "." + i.Extension
}

func (i PostImage) MIME() string {
	return mimeByExtension(i.Extension)
}

// PostFile is an uploaded attachment
type PostFile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

func (f PostFile) Filename() string {
	return f.Name + "." + f.Extension
}

func (f PostFile) MIME() string {
	return mimeByExtension(f.Extension)
}

// PostVideo is a video hosted by an external provider
type PostVideo struct {
	ServiceProvider string `json:"serviceProvider"`
	VideoID         string `json:"videoId"`
}

// WatchURL returns the provider page of the video, or "" for providers
// without a known URL scheme.
func (v PostVideo) WatchURL() string {
	switch v.ServiceProvider {
	case "youtube":
		return "https://www.youtube.com/watch?v=" + v.VideoID
	case "vimeo":
		return "https://vimeo.com/" + v.VideoID
	default:
		return ""
	}
}

// PostEmbed is a third-party widget referenced by an embed block
type PostEmbed struct {
	ID              string `json:"id"`
	ServiceProvider string `json:"serviceProvider"`
	ContentID       string `json:"contentId"`
}

// mimeTypes maps upload extensions to media types. The table is fixed so a
// post resolves to the same nodes, and the same content hash, on any host.
var mimeTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"svg":  "image/svg+xml",
	"psd":  "image/vnd.adobe.photoshop",
	"zip":  "application/zip",
	"rar":  "application/vnd.rar",
	"7z":   "application/x-7z-compressed",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"json": "application/json",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"webm": "video/webm",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
}

func mimeByExtension(ext string) string {
	if t, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return t
	}
	return octetStream
}
