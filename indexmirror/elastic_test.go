package indexmirror

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMirror(t *testing.T, handler http.HandlerFunc) *ElasticMirror {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := NewElastic(srv.URL, "notes_index")
	require.NoError(t, err)

	return m
}

func TestElasticMirror(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		var gotPath string
		var gotDoc Document
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.Method + " " + r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
			w.WriteHeader(http.StatusCreated)
		})

		err := m.Upsert(ctx, doc("a", "u1", "c1", "b1", "hello"))
		require.NoError(t, err)
		assert.Equal(t, "PUT /notes_index/_doc/a", gotPath)
		assert.Equal(t, "hello", gotDoc.Text)
	})

	t.Run("DeleteMissingIsNotAnError", func(t *testing.T) {
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNotFound)
		})

		require.NoError(t, m.Delete(ctx, "gone"))
	})

	t.Run("Search", func(t *testing.T) {
		var gotRequest map[string]any
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/notes_index/_search", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
			fmt.Fprint(w, `{"hits":{"hits":[{"_id":"b","_score":2.5},{"_id":"a","_score":1.0}]}}`)
		})

		hits, err := m.Search(ctx, Query{Text: "hello", UserID: "u1", Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, Hit{ID: "b", Score: 2.5}, hits[0])

		boolQuery := gotRequest["query"].(map[string]any)["bool"].(map[string]any)
		assert.Contains(t, boolQuery, "must")
		assert.Contains(t, boolQuery, "filter")
		assert.Equal(t, float64(10), gotRequest["size"])

		// The quote is stored but never queried; only text and tags are,
		// same as the record-store fallback.
		must := boolQuery["must"].([]any)[0].(map[string]any)
		fields := must["multi_match"].(map[string]any)["fields"]
		assert.Equal(t, []any{"text", "tags"}, fields)
	})

	t.Run("ServerErrorIsUnavailable", func(t *testing.T) {
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		_, err := m.Search(ctx, Query{Text: "hello"})
		require.ErrorIs(t, err, ErrUnavailable)

		require.ErrorIs(t, m.Upsert(ctx, doc("a", "u1", "c1", "b1", "x")), ErrUnavailable)
		require.ErrorIs(t, m.Ping(ctx), ErrUnavailable)
	})

	t.Run("ConnectionRefusedIsUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		m, err := NewElastic(srv.URL, "notes_index")
		require.NoError(t, err)

		require.ErrorIs(t, m.Ping(ctx), ErrUnavailable)
		_, err = m.Search(ctx, Query{Text: "hello"})
		require.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Ping", func(t *testing.T) {
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
			w.WriteHeader(http.StatusOK)
		})

		require.NoError(t, m.Ping(ctx))
	})

	t.Run("Reset", func(t *testing.T) {
		var calls []string
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, r.Method+" "+r.URL.Path)
			if r.Method == http.MethodDelete {
				w.WriteHeader(http.StatusNotFound) // index did not exist yet
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		require.NoError(t, m.Reset(ctx))
		assert.Equal(t, []string{"DELETE /notes_index", "PUT /notes_index"}, calls)
	})

	t.Run("IDsScrollsAllPages", func(t *testing.T) {
		page := 0
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/notes_index/_search":
				assert.Equal(t, scrollKeepAlive, r.URL.Query().Get("scroll"))
				fmt.Fprint(w, `{"_scroll_id":"s1","hits":{"hits":[{"_id":"a"},{"_id":"b"}]}}`)
			case "/_search/scroll":
				if r.Method == http.MethodDelete {
					w.WriteHeader(http.StatusOK)
					return
				}
				page++
				if page == 1 {
					fmt.Fprint(w, `{"_scroll_id":"s1","hits":{"hits":[{"_id":"c"}]}}`)
				} else {
					fmt.Fprint(w, `{"_scroll_id":"s1","hits":{"hits":[]}}`)
				}
			default:
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
		})

		ids, err := m.IDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("BulkUpsertGzipsBody", func(t *testing.T) {
		var lines []string
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/_bulk", r.URL.Path)
			assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
			assert.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))

			zr, err := gzip.NewReader(r.Body)
			require.NoError(t, err)
			scanner := bufio.NewScanner(zr)
			for scanner.Scan() {
				lines = append(lines, scanner.Text())
			}
			require.NoError(t, scanner.Err())

			fmt.Fprint(w, `{"errors":false,"items":[]}`)
		})

		docs := []Document{
			doc("a", "u1", "c1", "b1", "one"),
			doc("b", "u1", "c1", "b1", "two"),
		}
		require.NoError(t, m.BulkUpsert(ctx, docs))
		// One action line plus one document line per document.
		assert.Len(t, lines, 4)
	})

	t.Run("BulkUpsertItemFailures", func(t *testing.T) {
		m := newTestMirror(t, func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body) //nolint:errcheck
			fmt.Fprint(w, `{"errors":true,"items":[{"index":{"status":200}},{"index":{"status":400}}]}`)
		})

		err := m.BulkUpsert(ctx, []Document{
			doc("a", "u1", "c1", "b1", "one"),
			doc("b", "u1", "c1", "b1", "two"),
		})
		require.ErrorIs(t, err, ErrUnavailable)
	})
}
