package search

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeES answers the handful of endpoints the client uses. The product
// header is required by the v8 client.
type fakeES struct {
	mu          sync.Mutex
	bulkLines   []string
	deleteBody  map[string]any
	searchQuery map[string]any
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			f.bulkLines = append(f.bulkLines, sc.Text())
		}
		io.WriteString(w, `{"took":1,"errors":false,"items":[]}`)
	case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
		json.NewDecoder(r.Body).Decode(&f.deleteBody)
		io.WriteString(w, `{"deleted":2}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		json.NewDecoder(r.Body).Decode(&f.searchQuery)
		io.WriteString(w, `{"hits":{"total":{"value":1},"hits":[{"_score":3.2,"_source":{"chunk_id":"slack:msg:3","text":"cold start took 6-9 minutes","source":"slack.md"}}]}}`)
	default:
		io.WriteString(w, `{}`)
	}
}

func newTestClient(t *testing.T, f *fakeES) *Client {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	c, err := New(server.URL, "twin-chunks", discardLogger())
	require.NoError(t, err)
	return c
}

func TestIndexSnapshot_BulkThenDeleteStale(t *testing.T) {
	f := &fakeES{}
	c := newTestClient(t, f)

	snap := corpus.NewSnapshot([]corpus.Chunk{
		{ID: "slack:msg:3", Text: "cold start took 6-9 minutes", Source: "slack.md", Timestamp: time.Date(2025, 10, 14, 9, 30, 0, 0, time.UTC)},
		{ID: "notes:chunk:0", Text: "migrated the ingest workers", Source: "notes.md"},
	}, nil, nil)

	require.NoError(t, c.IndexSnapshot(context.Background(), snap))

	require.Len(t, f.bulkLines, 4)
	require.Contains(t, f.bulkLines[0], `"_id":"slack:msg:3"`)
	require.Contains(t, f.bulkLines[1], `"timestamp":"2025-10-14T09:30:00Z"`)
	require.NotContains(t, f.bulkLines[3], `"timestamp"`)
	require.Contains(t, f.bulkLines[3], snap.Version.String())

	raw, _ := json.Marshal(f.deleteBody)
	require.Contains(t, string(raw), snap.Version.String())
	require.Contains(t, string(raw), "must_not")
}

func TestSearch_ParsesHits(t *testing.T) {
	f := &fakeES{}
	c := newTestClient(t, f)

	res, err := c.Search(context.Background(), "cold start", 500)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Total)
	require.Len(t, res.Hits, 1)
	require.Equal(t, "slack:msg:3", res.Hits[0].ChunkID)
	require.InDelta(t, 3.2, res.Hits[0].Score, 1e-9)

	require.EqualValues(t, maxSize, f.searchQuery["size"])
}

func TestSearch_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"index_not_found_exception"}`)
	}))
	defer server.Close()

	c, err := New(server.URL, "missing", discardLogger())
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "anything", 0)
	require.ErrorContains(t, err, "index_not_found_exception")
}
