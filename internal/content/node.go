package content

import (
	"github.com/renderinc/fanbox-archive/internal/fanbox"
)

// NodeKind tells which payload of a Node is set
type NodeKind string

const (
	KindText     NodeKind = "text"
	KindHeader   NodeKind = "header"
	KindMedia    NodeKind = "media"
	KindEmbed    NodeKind = "embed"
	KindDangling NodeKind = "dangling"
)

// MediaKind is the type of a resolved media item
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaFile  MediaKind = "file"
	MediaVideo MediaKind = "video"
)

// EmbedKind is the type of a resolved embed. Blocks from embedMap resolve to
// EmbedWidget; urlEmbedMap entries keep their platform type tag.
type EmbedKind string

const (
	EmbedWidget   EmbedKind = "embed"
	EmbedHTML     EmbedKind = EmbedKind(fanbox.EmbedHTML)
	EmbedHTMLCard EmbedKind = EmbedKind(fanbox.EmbedHTMLCard)
	EmbedPost     EmbedKind = EmbedKind(fanbox.EmbedPost)
	EmbedCreator  EmbedKind = EmbedKind(fanbox.EmbedCreator)
	EmbedLink     EmbedKind = EmbedKind(fanbox.EmbedLink)
)

// Node is one resolved unit of a post body
type Node struct {
	Kind     NodeKind            `json:"kind"`
	Text     string              `json:"text,omitempty"`
	Styles   []fanbox.BlockStyle `json:"styles,omitempty"`
	Media    *Media              `json:"media,omitempty"`
	Embed    *Embed              `json:"embed,omitempty"`
	Dangling *DanglingRef        `json:"dangling,omitempty"`
}

// Media is an image, file or video with everything needed to fetch it.
// Videos are hosted externally and carry no filename or MIME type.
type Media struct {
	Kind            MediaKind `json:"kind"`
	ID              string    `json:"id"`
	Filename        string    `json:"filename,omitempty"`
	MIME            string    `json:"mime,omitempty"`
	URL             string    `json:"url,omitempty"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	Size            int64     `json:"size,omitempty"`
	ServiceProvider string    `json:"serviceProvider,omitempty"`
	VideoID         string    `json:"videoId,omitempty"`
}

// Embed is a resolved embed. Post and Creator hold copies of the summary
// the platform sent; they are never fetched.
type Embed struct {
	Kind            EmbedKind              `json:"kind"`
	ID              string                 `json:"id"`
	ServiceProvider string                 `json:"serviceProvider,omitempty"`
	ContentID       string                 `json:"contentId,omitempty"`
	HTML            string                 `json:"html,omitempty"`
	URL             string                 `json:"url,omitempty"`
	Host            string                 `json:"host,omitempty"`
	Post            *fanbox.PostSummary    `json:"post,omitempty"`
	Creator         *fanbox.CreatorProfile `json:"creator,omitempty"`
}

// DanglingRef is a block whose id was missing from its side-table
type DanglingRef struct {
	Block fanbox.BlockKind `json:"block"`
	ID    string           `json:"id"`
}
