package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/fanbox-archive/internal/fanbox"
)

func TestResolveDanglingImage(t *testing.T) {
	body := fanbox.PostBody{
		Blocks:   []fanbox.PostBlock{fanbox.ImageBlock{ImageID: "x"}},
		ImageMap: map[string]fanbox.PostImage{},
	}

	nodes := Resolve(body)

	require.Len(t, nodes, 1)
	assert.Equal(t, KindDangling, nodes[0].Kind)
	assert.Equal(t, &DanglingRef{Block: fanbox.BlockImage, ID: "x"}, nodes[0].Dangling)
}

func TestResolvePreservesBlockOrder(t *testing.T) {
	body := fanbox.PostBody{
		Blocks: []fanbox.PostBlock{
			fanbox.HeaderBlock{Text: "Title"},
			fanbox.ImageBlock{ImageID: "a"},
			fanbox.ParagraphBlock{Text: "between"},
			fanbox.FileBlock{FileID: "missing"},
			fanbox.EmbedBlock{EmbedID: "tw"},
			fanbox.URLEmbedBlock{URLEmbedID: "link"},
			fanbox.VideoBlock{VideoID: "v"},
			fanbox.ImageBlock{ImageID: "b"},
		},
		ImageMap: map[string]fanbox.PostImage{
			"a":      {ID: "a", Extension: "jpg", OriginalURL: "https://img/a.jpg"},
			"b":      {ID: "b", Extension: "png"},
			"unused": {ID: "unused", Extension: "png"},
		},
		EmbedMap: map[string]fanbox.PostEmbed{
			"tw": {ID: "tw", ServiceProvider: "twitter", ContentID: "1"},
		},
		URLEmbedMap: map[string]fanbox.PostTextEmbed{
			"link": fanbox.LinkEmbed{ID: "link", URL: "https://example.com", Host: "example.com"},
		},
		VideoMap: map[string]fanbox.PostVideo{
			"v": {ServiceProvider: "vimeo", VideoID: "77"},
		},
	}

	nodes := Resolve(body)

	kinds := make([]NodeKind, len(nodes))
	for i, n := range nodes {
		kinds[i] = n.Kind
	}
	assert.Equal(t, []NodeKind{
		KindHeader, KindMedia, KindText, KindDangling, KindEmbed, KindEmbed, KindMedia, KindMedia,
	}, kinds)

	assert.Equal(t, "a.jpg", nodes[1].Media.Filename)
	assert.Equal(t, "image/jpeg", nodes[1].Media.MIME)
	assert.Equal(t, "https://img/a.jpg", nodes[1].Media.URL)
	assert.Equal(t, &DanglingRef{Block: fanbox.BlockFile, ID: "missing"}, nodes[3].Dangling)
	assert.Equal(t, EmbedWidget, nodes[4].Embed.Kind)
	assert.Equal(t, "twitter", nodes[4].Embed.ServiceProvider)
	assert.Equal(t, EmbedLink, nodes[5].Embed.Kind)
	assert.Equal(t, "https://vimeo.com/77", nodes[6].Media.URL)
	assert.Equal(t, MediaVideo, nodes[6].Media.Kind)
	assert.Equal(t, "b.png", nodes[7].Media.Filename)
}

func TestResolveKeepsStyleOffsets(t *testing.T) {
	styles := []fanbox.BlockStyle{{Type: "bold", Offset: 3, Length: 2}}
	body := fanbox.PostBody{Blocks: []fanbox.PostBlock{
		fanbox.ParagraphBlock{Text: "a😀bc", Styles: styles},
	}}

	nodes := Resolve(body)

	require.Len(t, nodes, 1)
	assert.Equal(t, styles, nodes[0].Styles)

	nodes[0].Styles[0].Offset = 0
	assert.Equal(t, 3, styles[0].Offset)
}

func TestResolveNamedFile(t *testing.T) {
	body := fanbox.PostBody{
		Blocks:  []fanbox.PostBlock{fanbox.FileBlock{FileID: "f"}},
		FileMap: map[string]fanbox.PostFile{"f": {ID: "f", Name: "pack", Extension: "weird", Size: 10}},
	}

	nodes := Resolve(body)

	require.Len(t, nodes, 1)
	assert.Equal(t, "pack.weird", nodes[0].Media.Filename)
	assert.Equal(t, "application/octet-stream", nodes[0].Media.MIME)
	assert.EqualValues(t, 10, nodes[0].Media.Size)
}

func TestResolveReferenceEmbedsKeepSummaryOnly(t *testing.T) {
	body := fanbox.PostBody{
		Blocks: []fanbox.PostBlock{
			fanbox.URLEmbedBlock{URLEmbedID: "p"},
			fanbox.URLEmbedBlock{URLEmbedID: "c"},
			fanbox.URLEmbedBlock{URLEmbedID: "gone"},
		},
		URLEmbedMap: map[string]fanbox.PostTextEmbed{
			"p": fanbox.PostRefEmbed{ID: "p", PostInfo: fanbox.PostSummary{ID: "9", Title: "Older", CreatorID: "alice"}},
			"c": fanbox.CreatorRefEmbed{ID: "c", Profile: fanbox.CreatorProfile{CreatorID: "bob", User: fanbox.User{Name: "Bob"}}},
		},
	}

	nodes := Resolve(body)

	require.Len(t, nodes, 3)
	assert.Equal(t, EmbedPost, nodes[0].Embed.Kind)
	assert.Equal(t, "Older", nodes[0].Embed.Post.Title)
	assert.Equal(t, "https://alice.fanbox.cc/posts/9", nodes[0].Embed.URL)
	assert.Equal(t, EmbedCreator, nodes[1].Embed.Kind)
	assert.Equal(t, "https://bob.fanbox.cc/", nodes[1].Embed.URL)
	assert.Equal(t, KindDangling, nodes[2].Kind)
	assert.Equal(t, fanbox.BlockURLEmbed, nodes[2].Dangling.Block)
}

func TestResolveLegacyBody(t *testing.T) {
	body := fanbox.PostBody{
		Text:   "caption",
		Images: []fanbox.PostImage{{ID: "1", Extension: "jpg"}, {ID: "2", Extension: "gif"}},
		Video:  &fanbox.PostVideo{ServiceProvider: "youtube", VideoID: "yt"},
		Files:  []fanbox.PostFile{{ID: "f", Name: "notes", Extension: "txt"}},
	}

	nodes := Resolve(body)

	require.Len(t, nodes, 5)
	assert.Equal(t, Node{Kind: KindText, Text: "caption"}, nodes[0])
	assert.Equal(t, "1.jpg", nodes[1].Media.Filename)
	assert.Equal(t, "2.gif", nodes[2].Media.Filename)
	assert.Equal(t, "https://www.youtube.com/watch?v=yt", nodes[3].Media.URL)
	assert.Equal(t, "notes.txt", nodes[4].Media.Filename)
}

func TestResolveEmptyBodies(t *testing.T) {
	assert.Empty(t, Resolve(fanbox.PostBody{}))
	assert.Empty(t, Resolve(fanbox.PostBody{Blocks: []fanbox.PostBlock{}, Text: "ignored"}))
}

func TestResolveFromWire(t *testing.T) {
	var body fanbox.PostBody
	require.NoError(t, json.Unmarshal([]byte(`{
		"blocks": [{"type": "p", "text": "hi"}, {"type": "image", "imageId": "x"}],
		"imageMap": {}
	}`), &body))

	nodes := Resolve(body)

	assert.Equal(t, []DanglingRef{{Block: fanbox.BlockImage, ID: "x"}}, Dangling(nodes))
	assert.Equal(t, "hi", PlainText(nodes))
	assert.Empty(t, MediaOf(nodes))

	data, err := json.Marshal(nodes)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"kind":"text","text":"hi"},{"kind":"dangling","dangling":{"block":"image","id":"x"}}]`, string(data))
}

func TestPlainText(t *testing.T) {
	nodes := []Node{
		{Kind: KindHeader, Text: "Title"},
		{Kind: KindText, Text: ""},
		{Kind: KindText, Text: "body"},
		{Kind: KindMedia, Media: &Media{Kind: MediaImage, ID: "1"}},
		{Kind: KindEmbed, Embed: &Embed{Kind: EmbedLink, URL: "https://example.com"}},
	}

	assert.Equal(t, "Title\nbody\nhttps://example.com", PlainText(nodes))
	assert.Len(t, MediaOf(nodes), 1)
}
