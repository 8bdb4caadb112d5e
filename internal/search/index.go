package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/helpers"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

const (
	reindexPage = 500
	maxCaption  = 2000
)

// Lister pages through content for indexing.
type Lister interface {
	ListContentSince(ctx context.Context, since time.Time, afterID string, limit int) ([]store.ContentDoc, error)
}

// Hit is one moderation search result.
type Hit struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	CreatorID   string  `json:"creator_id"`
	ContentType string  `json:"content_type"`
	Caption     string  `json:"caption"`
	Hidden      bool    `json:"hidden"`
}

// Result is a page of hits plus the total match count.
type Result struct {
	Total uint64 `json:"total"`
	Hits  []Hit  `json:"hits"`
}

// Query filters a caption search.
type Query struct {
	Text        string
	ContentType string
	Limit       int
	Offset      int
}

// Index is a full-text index over content captions.
type Index struct {
	mu      sync.Mutex
	idx     bleve.Index
	maxHits int
	log     *logger.Logger

	// incremental reindex cursor
	since   time.Time
	afterID string
}

// Open opens or creates the index at cfg.IndexPath, or an in-memory index when the path is empty.
func Open(cfg config.SearchConfig, log *logger.Logger) (*Index, error) {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.Normalize()
	var (
		idx bleve.Index
		err error
	)
	if cfg.IndexPath == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		idx, err = bleve.Open(cfg.IndexPath)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(cfg.IndexPath, bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	return &Index{idx: idx, maxHits: cfg.MaxHits, log: log.Named("search")}, nil
}

func (i *Index) Close() error { return i.idx.Close() }

// Put indexes or replaces one document.
func (i *Index) Put(doc store.ContentDoc) error {
	return i.idx.Index(doc.ID, indexable(doc))
}

// Reindex pulls content created or edited since the last run into the index.
// full restarts the cursor and rewrites every document.
func (i *Index) Reindex(ctx context.Context, src Lister, full bool) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if full {
		i.since, i.afterID = time.Time{}, ""
	}
	total := 0
	var seen map[string]struct{}
	if full {
		seen = make(map[string]struct{})
	}
	for {
		docs, err := src.ListContentSince(ctx, i.since, i.afterID, reindexPage)
		if err != nil {
			return total, fmt.Errorf("list content: %w", err)
		}
		if len(docs) == 0 {
			break
		}
		batch := i.idx.NewBatch()
		for _, d := range docs {
			if err := batch.Index(d.ID, indexable(d)); err != nil {
				return total, err
			}
			if seen != nil {
				seen[d.ID] = struct{}{}
			}
		}
		if err := i.idx.Batch(batch); err != nil {
			return total, fmt.Errorf("index batch: %w", err)
		}
		last := docs[len(docs)-1]
		i.since, i.afterID = last.UpdatedAt, last.ID
		total += len(docs)
		if len(docs) < reindexPage {
			break
		}
	}
	if full {
		removed, err := i.prune(seen)
		if err != nil {
			return total, err
		}
		if removed > 0 {
			i.log.Info("search index pruned", "documents", removed)
		}
	}
	if total > 0 {
		i.log.Info("search index refreshed", "documents", total, "full", full)
	}
	return total, nil
}

// prune deletes indexed documents whose content row no longer exists.
func (i *Index) prune(keep map[string]struct{}) (int, error) {
	count, err := i.idx.DocCount()
	if err != nil || count == 0 {
		return 0, err
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return 0, fmt.Errorf("list indexed documents: %w", err)
	}
	batch := i.idx.NewBatch()
	for _, hit := range res.Hits {
		if _, ok := keep[hit.ID]; !ok {
			batch.Delete(hit.ID)
		}
	}
	if batch.Size() == 0 {
		return 0, nil
	}
	removed := batch.Size()
	if err := i.idx.Batch(batch); err != nil {
		return 0, fmt.Errorf("prune batch: %w", err)
	}
	return removed, nil
}

// Search runs a match query over captions.
func (i *Index) Search(q Query) (Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Result{}, fmt.Errorf("query text required")
	}
	limit := q.Limit
	if limit <= 0 || limit > i.maxHits {
		limit = i.maxHits
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	match := bleve.NewMatchQuery(text)
	match.SetField("caption")
	req := bleve.NewSearchRequestOptions(match, limit, q.Offset, false)
	if ct := strings.TrimSpace(q.ContentType); ct != "" {
		term := bleve.NewTermQuery(strings.ToLower(ct))
		term.SetField("content_type")
		req = bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(match, term), limit, q.Offset, false)
	}
	req.Fields = []string{"creator_id", "content_type", "caption", "hidden"}

	res, err := i.idx.Search(req)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	out := Result{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, Hit{
			ID:          h.ID,
			Score:       h.Score,
			CreatorID:   stringField(h.Fields, "creator_id"),
			ContentType: stringField(h.Fields, "content_type"),
			Caption:     stringField(h.Fields, "caption"),
			Hidden:      boolField(h.Fields, "hidden"),
		})
	}
	return out, nil
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func boolField(fields map[string]interface{}, name string) bool {
	switch v := fields[name].(type) {
	case bool:
		return v
	case string:
		return v == "T" || v == "true"
	}
	return false
}

// indexable strips markup so highlighted captions are plain text.
func indexable(doc store.ContentDoc) store.ContentDoc {
	doc.Caption = helpers.PlainText(doc.Caption, maxCaption)
	return doc
}
