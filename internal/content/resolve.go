// Package content flattens fanbox post bodies into ordered, self-contained
// node sequences.
package content

import (
	"fmt"
	"slices"
	"strings"

	"github.com/renderinc/fanbox-archive/internal/fanbox"
)

// Resolve turns a post body into its nodes. Block bodies yield exactly one
// node per block in block order; ids missing from their side-table become
// dangling nodes. Bodies without a block sequence yield the text followed by
// the direct image, video and file lists.
//
// Resolve is pure: the result shares no memory with body.
func Resolve(body fanbox.PostBody) []Node {
	if body.Blocks == nil {
		return resolveLegacy(body)
	}

	nodes := make([]Node, 0, len(body.Blocks))
	for _, block := range body.Blocks {
		nodes = append(nodes, resolveBlock(body, block))
	}
	return nodes
}

func resolveBlock(body fanbox.PostBody, block fanbox.PostBlock) Node {
	switch b := block.(type) {
	case fanbox.ParagraphBlock:
		return Node{Kind: KindText, Text: b.Text, Styles: slices.Clone(b.Styles)}
	case fanbox.HeaderBlock:
		return Node{Kind: KindHeader, Text: b.Text, Styles: slices.Clone(b.Styles)}
	case fanbox.ImageBlock:
		img, ok := body.ImageMap[b.ImageID]
		if !ok {
			return dangling(b.Kind(), b.ImageID)
		}
		return mediaNode(imageMedia(img))
	case fanbox.FileBlock:
		file, ok := body.FileMap[b.FileID]
		if !ok {
			return dangling(b.Kind(), b.FileID)
		}
		return mediaNode(fileMedia(file))
	case fanbox.VideoBlock:
		video, ok := body.VideoMap[b.VideoID]
		if !ok {
			return dangling(b.Kind(), b.VideoID)
		}
		return mediaNode(videoMedia(video))
	case fanbox.EmbedBlock:
		embed, ok := body.EmbedMap[b.EmbedID]
		if !ok {
			return dangling(b.Kind(), b.EmbedID)
		}
		return Node{Kind: KindEmbed, Embed: &Embed{
			Kind:            EmbedWidget,
			ID:              embed.ID,
			ServiceProvider: embed.ServiceProvider,
			ContentID:       embed.ContentID,
		}}
	case fanbox.URLEmbedBlock:
		embed, ok := body.URLEmbedMap[b.URLEmbedID]
		if !ok || embed == nil {
			return dangling(b.Kind(), b.URLEmbedID)
		}
		return Node{Kind: KindEmbed, Embed: textEmbed(embed)}
	default:
		panic(fmt.Sprintf("content: unhandled block %T", block))
	}
}

func textEmbed(embed fanbox.PostTextEmbed) *Embed {
	switch e := embed.(type) {
	case fanbox.HTMLEmbed:
		return &Embed{Kind: EmbedHTML, ID: e.ID, HTML: e.HTML}
	case fanbox.HTMLCardEmbed:
		return &Embed{Kind: EmbedHTMLCard, ID: e.ID, HTML: e.HTML}
	case fanbox.PostRefEmbed:
		info := e.PostInfo
		return &Embed{
			Kind: EmbedPost,
			ID:   e.ID,
			URL:  fanbox.PostURL(info.CreatorID, info.ID),
			Post: &info,
		}
	case fanbox.CreatorRefEmbed:
		profile := e.Profile
		return &Embed{
			Kind:    EmbedCreator,
			ID:      e.ID,
			URL:     fanbox.CreatorURL(profile.CreatorID),
			Creator: &profile,
		}
	case fanbox.LinkEmbed:
		return &Embed{Kind: EmbedLink, ID: e.ID, URL: e.URL, Host: e.Host}
	default:
		panic(fmt.Sprintf("content: unhandled url embed %T", embed))
	}
}

func resolveLegacy(body fanbox.PostBody) []Node {
	var nodes []Node
	if body.Text != "" {
		nodes = append(nodes, Node{Kind: KindText, Text: body.Text})
	}
	for _, img := range body.Images {
		nodes = append(nodes, mediaNode(imageMedia(img)))
	}
	if body.Video != nil {
		nodes = append(nodes, mediaNode(videoMedia(*body.Video)))
	}
	for _, video := range body.Videos {
		nodes = append(nodes, mediaNode(videoMedia(video)))
	}
	for _, file := range body.Files {
		nodes = append(nodes, mediaNode(fileMedia(file)))
	}
	return nodes
}

func imageMedia(img fanbox.PostImage) *Media {
	return &Media{
		Kind:         MediaImage,
		ID:           img.ID,
		Filename:     img.Filename(),
		MIME:         img.MIME(),
		URL:          img.OriginalURL,
		ThumbnailURL: img.ThumbnailURL,
		Width:        img.Width,
		Height:       img.Height,
	}
}

func fileMedia(file fanbox.PostFile) *Media {
	return &Media{
		Kind:     MediaFile,
		ID:       file.ID,
		Filename: file.Filename(),
		MIME:     file.MIME(),
		URL:      file.URL,
		Size:     file.Size,
	}
}

func videoMedia(video fanbox.PostVideo) *Media {
	return &Media{
		Kind:            MediaVideo,
		ID:              video.VideoID,
		URL:             video.WatchURL(),
		ServiceProvider: video.ServiceProvider,
		VideoID:         video.VideoID,
	}
}

func mediaNode(m *Media) Node {
	return Node{Kind: KindMedia, Media: m}
}

func dangling(kind fanbox.BlockKind, id string) Node {
	return Node{Kind: KindDangling, Dangling: &DanglingRef{Block: kind, ID: id}}
}

// PlainText joins the readable text of nodes, one node per line: text and
// headers verbatim, embeds by their link or summary title.
func PlainText(nodes []Node) string {
	var parts []string
	for _, n := range nodes {
		switch n.Kind {
		case KindText, KindHeader:
			if n.Text != "" {
				parts = append(parts, n.Text)
			}
		case KindEmbed:
			if s := embedText(n.Embed); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func embedText(e *Embed) string {
	switch {
	case e == nil:
		return ""
	case e.Post != nil:
		return e.Post.Title
	case e.Creator != nil:
		return e.Creator.User.Name
	default:
		return e.URL
	}
}

// Dangling returns the unresolved references among nodes, in order.
func Dangling(nodes []Node) []DanglingRef {
	var refs []DanglingRef
	for _, n := range nodes {
		if n.Kind == KindDangling && n.Dangling != nil {
			refs = append(refs, *n.Dangling)
		}
	}
	return refs
}

// MediaOf returns the resolved media among nodes, in order.
func MediaOf(nodes []Node) []Media {
	var media []Media
	for _, n := range nodes {
		if n.Kind == KindMedia && n.Media != nil {
			media = append(media, *n.Media)
		}
	}
	return media
}
