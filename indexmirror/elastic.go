package indexmirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	defaultSearchSize = 25
	scrollKeepAlive   = "1m"
	scrollPageSize    = 1000
)

// ElasticOptions configures the Elasticsearch mirror.
type ElasticOptions struct {
	// HTTPClient is the client used for all requests. Its timeout is
	// the transport-level bound; the engine additionally bounds every
	// call with a context deadline.
	HTTPClient *http.Client
}

// ElasticMirror talks to an Elasticsearch cluster over its REST API.
//
// Every transport or protocol failure is collapsed into ErrUnavailable;
// callers only ever see availability.
type ElasticMirror struct {
	base  string
	index string
	hc    *http.Client
}

// Ensure ElasticMirror implements Mirror and the bulk extension.
var (
	_ Mirror       = (*ElasticMirror)(nil)
	_ BulkUpserter = (*ElasticMirror)(nil)
)

// NewElastic creates a mirror for the given cluster URL and index name.
func NewElastic(rawURL, index string, optFns ...func(o *ElasticOptions)) (*ElasticMirror, error) {
	opts := ElasticOptions{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse search engine url: %w", err)
	}
	if index == "" {
		return nil, fmt.Errorf("index name must not be empty")
	}

	return &ElasticMirror{
		base:  strings.TrimSuffix(u.String(), "/"),
		index: index,
		hc:    opts.HTTPClient,
	}, nil
}

// Upsert creates or replaces the document.
func (e *ElasticMirror) Upsert(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return unavailable("encode document", err)
	}

	path := fmt.Sprintf("/%s/_doc/%s", e.index, url.PathEscape(doc.ID))

	return e.do(ctx, http.MethodPut, path, "application/json", bytes.NewReader(body), nil, http.StatusOK, http.StatusCreated)
}

// Delete removes the document. A missing document is not an error.
func (e *ElasticMirror) Delete(ctx context.Context, id string) error {
	path := fmt.Sprintf("/%s/_doc/%s", e.index, url.PathEscape(id))

	return e.do(ctx, http.MethodDelete, path, "", nil, nil, http.StatusOK, http.StatusNotFound)
}

type esSearchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns ranked hits for the query.
func (e *ElasticMirror) Search(ctx context.Context, q Query) ([]Hit, error) {
	var filters []map[string]any
	if q.UserID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"user": q.UserID}})
	}
	if q.CourseID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"course_id": q.CourseID}})
	}
	if len(q.UsageIDs) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{"usage_id": q.UsageIDs}})
	}

	boolQuery := map[string]any{}
	if q.Text != "" {
		boolQuery["must"] = []map[string]any{{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"text", "tags"},
			},
		}}
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	size := q.Limit
	if size <= 0 {
		size = defaultSearchSize
	}

	request := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"from":  q.Offset,
		"size":  size,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, unavailable("encode query", err)
	}

	var resp esSearchResponse
	if err := e.do(ctx, http.MethodPost, "/"+e.index+"/_search", "application/json", bytes.NewReader(body), &resp, http.StatusOK); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}

	return hits, nil
}

// IDs enumerates every document id using the scroll API.
func (e *ElasticMirror) IDs(ctx context.Context) ([]string, error) {
	body := fmt.Sprintf(`{"size":%d,"_source":false,"sort":["_doc"]}`, scrollPageSize)

	var resp esSearchResponse
	err := e.do(ctx, http.MethodPost, "/"+e.index+"/_search?scroll="+scrollKeepAlive,
		"application/json", strings.NewReader(body), &resp, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var ids []string
	for len(resp.Hits.Hits) > 0 {
		for _, h := range resp.Hits.Hits {
			ids = append(ids, h.ID)
		}

		next := fmt.Sprintf(`{"scroll":%q,"scroll_id":%q}`, scrollKeepAlive, resp.ScrollID)
		resp = esSearchResponse{}
		err = e.do(ctx, http.MethodPost, "/_search/scroll", "application/json", strings.NewReader(next), &resp, http.StatusOK)
		if err != nil {
			return nil, err
		}
	}

	if resp.ScrollID != "" {
		// Best effort, the scroll context expires on its own.
		drop := fmt.Sprintf(`{"scroll_id":[%q]}`, resp.ScrollID)
		_ = e.do(ctx, http.MethodDelete, "/_search/scroll", "application/json", strings.NewReader(drop), nil, http.StatusOK, http.StatusNotFound)
	}

	return ids, nil
}

// Reset drops and recreates the index with the note mapping.
func (e *ElasticMirror) Reset(ctx context.Context) error {
	if err := e.do(ctx, http.MethodDelete, "/"+e.index, "", nil, nil, http.StatusOK, http.StatusNotFound); err != nil {
		return err
	}

	mapping := `{
		"mappings": {
			"properties": {
				"user":      {"type": "keyword"},
				"course_id": {"type": "keyword"},
				"usage_id":  {"type": "keyword"},
				"text":      {"type": "text"},
				"quote":     {"type": "text"},
				"tags":      {"type": "text"}
			}
		}
	}`

	return e.do(ctx, http.MethodPut, "/"+e.index, "application/json", strings.NewReader(mapping), nil, http.StatusOK)
}

// Ping reports whether the cluster answers at all.
func (e *ElasticMirror) Ping(ctx context.Context) error {
	return e.do(ctx, http.MethodHead, "/", "", nil, nil, http.StatusOK)
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
	} `json:"items"`
}

// BulkUpsert indexes a batch of documents in one request. The NDJSON
// body is gzip-compressed; rebuild batches are the largest payloads
// this client sends.
func (e *ElasticMirror) BulkUpsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for _, doc := range docs {
		action := map[string]any{"index": map[string]any{"_index": e.index, "_id": doc.ID}}
		if err := enc.Encode(action); err != nil {
			return unavailable("encode bulk action", err)
		}
		if err := enc.Encode(doc); err != nil {
			return unavailable("encode bulk document", err)
		}
	}
	if err := zw.Close(); err != nil {
		return unavailable("compress bulk body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/_bulk", &buf)
	if err != nil {
		return unavailable("build bulk request", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Content-Encoding", "gzip")

	httpResp, err := e.hc.Do(req)
	if err != nil {
		return unavailable("bulk index", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return unavailable("bulk index", fmt.Errorf("unexpected status %d", httpResp.StatusCode))
	}

	var resp esBulkResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return unavailable("decode bulk response", err)
	}
	if resp.Errors {
		failed := 0
		for _, item := range resp.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
				}
			}
		}
		return unavailable("bulk index", fmt.Errorf("%d of %d items failed", failed, len(docs)))
	}

	return nil
}

// do performs a request and decodes the response into out (if non-nil).
// Any status not listed in okStatus, and any transport error, collapses
// into ErrUnavailable.
func (e *ElasticMirror) do(ctx context.Context, method, path, contentType string, body io.Reader, out any, okStatus ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, e.base+path, body)
	if err != nil {
		return unavailable(method+" "+path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.hc.Do(req)
	if err != nil {
		return unavailable(method+" "+path, err)
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range okStatus {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return unavailable(method+" "+path, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet))
	}

	if out != nil && resp.StatusCode != http.StatusNotFound {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return unavailable(method+" "+path, err)
		}
	}

	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
