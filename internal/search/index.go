package search

import (
	"context"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/renderinc/fanbox-archive/internal/storage"
)

const batchSize = 200

// Index wraps a Bleve search index over archived posts
type Index struct {
	index bleve.Index
}

// IndexedDocument is the indexed form of a post
type IndexedDocument struct {
	ID          string
	Title       string
	Content     string
	Author      string
	AuthorID    string
	Tags        []string
	PublishedAt time.Time
	UpdatedAt   time.Time
	URL         string
}

// SearchResult represents a search result
type SearchResult struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Author    string              `json:"author"`
	URL       string              `json:"url"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"` // highlighted snippets
}

// DocumentFromPost builds the indexed form of an archived post
func DocumentFromPost(post *storage.Post, author string) *IndexedDocument {
	return &IndexedDocument{
		ID:          post.ID,
		Title:       post.Title,
		Content:     post.ContentText,
		Author:      author,
		AuthorID:    string(post.AuthorID),
		Tags:        post.Tags,
		PublishedAt: post.PublishedAt,
		UpdatedAt:   post.UpdatedAt,
		URL:         post.SourceURL,
	}
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Content", textFieldMapping)
	docMapping.AddFieldMappingsAt("Author", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("AuthorID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Tags", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("PublishedAt", bleve.NewDateTimeFieldMapping())
	docMapping.AddFieldMappingsAt("UpdatedAt", bleve.NewDateTimeFieldMapping())
	docMapping.AddFieldMappingsAt("URL", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexDocument adds or updates a document in the index
func (i *Index) IndexDocument(doc *IndexedDocument) error {
	return i.index.Index(doc.ID, doc)
}

// Delete removes a document from the index
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Search runs a query string query (quotes, +/-, field:term, fuzzy ~)
func (i *Index) Search(queryStr string, limit int) ([]*SearchResult, error) {
	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("html")
	search.Fields = []string{"Title", "Author", "URL"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	searchResults := make([]*SearchResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		result := &SearchResult{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}
		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		if author, ok := hit.Fields["Author"].(string); ok {
			result.Author = author
		}
		if url, ok := hit.Fields["URL"].(string); ok {
			result.URL = url
		}
		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// Rebuild indexes every archived post, committing in batches, and drops
// documents whose post is no longer archived. progress, if set, is called
// after each batch.
func (i *Index) Rebuild(ctx context.Context, db *storage.DB, progress func(done, total int)) error {
	authors, err := db.ListAuthors(ctx)
	if err != nil {
		return fmt.Errorf("list authors: %w", err)
	}
	names := make(map[storage.AuthorID]string, len(authors))
	for _, a := range authors {
		names[a.ID] = a.Name
	}

	posts, err := db.ListPosts(ctx, "")
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	archived := make(map[string]bool, len(posts))
	for _, post := range posts {
		archived[post.ID] = true
	}
	indexed, err := i.ids()
	if err != nil {
		return err
	}
	for _, id := range indexed {
		if archived[id] {
			continue
		}
		if err := i.Delete(id); err != nil {
			return fmt.Errorf("delete stale %s: %w", id, err)
		}
	}

	batch := i.index.NewBatch()
	for n, post := range posts {
		doc := DocumentFromPost(post, names[post.AuthorID])
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", post.ID, err)
		}

		if batch.Size() >= batchSize || n == len(posts)-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			batch.Reset()
			if progress != nil {
				progress(n+1, len(posts))
			}
		}
	}

	return nil
}

// ids lists every document id in the index
func (i *Index) ids() ([]string, error) {
	count, err := i.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	results, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Count returns the number of documents in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
