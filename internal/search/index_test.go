package search

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

type pagedLister struct {
	docs  []store.ContentDoc
	calls int
}

func (l *pagedLister) ListContentSince(ctx context.Context, since time.Time, afterID string, limit int) ([]store.ContentDoc, error) {
	l.calls++
	docs := append([]store.ContentDoc(nil), l.docs...)
	sort.Slice(docs, func(a, b int) bool {
		if !docs[a].UpdatedAt.Equal(docs[b].UpdatedAt) {
			return docs[a].UpdatedAt.Before(docs[b].UpdatedAt)
		}
		return docs[a].ID < docs[b].ID
	})
	var out []store.ContentDoc
	for _, d := range docs {
		if d.UpdatedAt.After(since) || (d.UpdatedAt.Equal(since) && d.ID > afterID) {
			out = append(out, d)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func openMem(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(config.SearchConfig{MaxHits: 10}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestReindexAndSearch(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &pagedLister{docs: []store.ContentDoc{
		{ID: "c1", CreatorID: "u1", ContentType: "photo", Caption: "sunset hike in the mountains", CreatedAt: base, UpdatedAt: base},
		{ID: "c2", CreatorID: "u2", ContentType: "video", Caption: "mountain bike trail", CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)},
		{ID: "c3", CreatorID: "u3", ContentType: "text", Caption: "coffee and jazz", Hidden: true, CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base.Add(2 * time.Minute)},
	}}
	idx := openMem(t)

	n, err := idx.Reindex(context.Background(), lister, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// cursor advanced: nothing new on the next incremental run
	n, err = idx.Reindex(context.Background(), lister, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	res, err := idx.Search(Query{Text: "jazz"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "c3", res.Hits[0].ID)
	assert.Equal(t, "u3", res.Hits[0].CreatorID)
	assert.True(t, res.Hits[0].Hidden)

	res, err = idx.Search(Query{Text: "trail", ContentType: "video"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "c2", res.Hits[0].ID)

	res, err = idx.Search(Query{Text: "trail", ContentType: "photo"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestIncrementalReindexPicksUpEdits(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &pagedLister{docs: []store.ContentDoc{
		{ID: "c1", CreatorID: "u1", ContentType: "photo", Caption: "sunset hike", CreatedAt: base, UpdatedAt: base},
		{ID: "c2", CreatorID: "u2", ContentType: "video", Caption: "bike trail", CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)},
	}}
	idx := openMem(t)
	n, err := idx.Reindex(context.Background(), lister, false)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// an older item is edited and hidden after the first run
	lister.docs[0].Caption = "rooftop concert"
	lister.docs[0].Hidden = true
	lister.docs[0].UpdatedAt = base.Add(time.Hour)

	n, err = idx.Reindex(context.Background(), lister, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := idx.Search(Query{Text: "sunset"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	res, err = idx.Search(Query{Text: "rooftop"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "c1", res.Hits[0].ID)
	assert.True(t, res.Hits[0].Hidden)
}

func TestFullReindexDropsDeletedContent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &pagedLister{docs: []store.ContentDoc{
		{ID: "c1", ContentType: "photo", Caption: "sunset hike", UpdatedAt: base},
		{ID: "c2", ContentType: "video", Caption: "sunset drive", UpdatedAt: base.Add(time.Minute)},
	}}
	idx := openMem(t)
	_, err := idx.Reindex(context.Background(), lister, false)
	require.NoError(t, err)

	lister.docs = lister.docs[1:]
	n, err := idx.Reindex(context.Background(), lister, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := idx.Search(Query{Text: "sunset"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "c2", res.Hits[0].ID)
}

func TestPutReplacesDocument(t *testing.T) {
	idx := openMem(t)
	require.NoError(t, idx.Put(store.ContentDoc{ID: "c1", ContentType: "photo", Caption: "beach day"}))
	require.NoError(t, idx.Put(store.ContentDoc{ID: "c1", ContentType: "photo", Caption: "city lights"}))

	res, err := idx.Search(Query{Text: "beach"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	res, err = idx.Search(Query{Text: "city"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
}

func TestSearchRequiresText(t *testing.T) {
	idx := openMem(t)
	_, err := idx.Search(Query{Text: "  "})
	assert.Error(t, err)
}

func TestCaptionMarkupIsStripped(t *testing.T) {
	idx := openMem(t)
	require.NoError(t, idx.Put(store.ContentDoc{ID: "c1", ContentType: "photo", Caption: `<b>rooftop</b> party<script>steal()</script>`}))

	res, err := idx.Search(Query{Text: "rooftop"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "rooftop party", res.Hits[0].Caption)

	res, err = idx.Search(Query{Text: "steal"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}
