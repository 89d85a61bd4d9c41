package indexmirror

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	ord   uint32
	count int
}

// MemoryMirror is an embedded in-memory mirror: a BM25 inverted index
// over text and tags, with Roaring-bitmap term filters for user,
// course, and usage ids. It never returns ErrUnavailable.
//
// Documents are keyed internally by a dense ordinal so the filter
// bitmaps stay compact; the ordinal is transient and reassigned on
// upsert.
type MemoryMirror struct {
	mu          sync.RWMutex
	nextOrd     uint32
	ords        map[string]uint32
	docs        map[uint32]Document
	inverted    map[string][]posting
	docLengths  map[uint32]int
	totalLength int64
	byUser      map[string]*roaring.Bitmap
	byCourse    map[string]*roaring.Bitmap
	byUsage     map[string]*roaring.Bitmap
}

// Ensure MemoryMirror implements Mirror.
var _ Mirror = (*MemoryMirror)(nil)

// NewMemory creates a new empty in-memory mirror.
func NewMemory() *MemoryMirror {
	m := &MemoryMirror{}
	m.reset()
	return m
}

func (m *MemoryMirror) reset() {
	m.nextOrd = 0
	m.ords = make(map[string]uint32)
	m.docs = make(map[uint32]Document)
	m.inverted = make(map[string][]posting)
	m.docLengths = make(map[uint32]int)
	m.totalLength = 0
	m.byUser = make(map[string]*roaring.Bitmap)
	m.byCourse = make(map[string]*roaring.Bitmap)
	m.byUsage = make(map[string]*roaring.Bitmap)
}

// Very simple tokenizer: lowercase and split by whitespace.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// docTokens feeds the inverted index. The quote is stored on the
// document but not searchable; the fallback path cannot match on it
// either, so indexing it would make hits appear and vanish with the
// routing.
func docTokens(doc Document) []string {
	parts := []string{doc.Text}
	parts = append(parts, doc.Tags...)
	return tokenize(strings.Join(parts, " "))
}

// Upsert creates or replaces the document.
func (m *MemoryMirror) Upsert(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(doc.ID)

	ord := m.nextOrd
	m.nextOrd++

	tokens := docTokens(doc)

	m.ords[doc.ID] = ord
	m.docs[ord] = doc
	m.docLengths[ord] = len(tokens)
	m.totalLength += int64(len(tokens))

	tf := make(map[string]int)
	for _, t := range tokens {
		tf[t]++
	}
	for t, count := range tf {
		m.inverted[t] = append(m.inverted[t], posting{ord: ord, count: count})
	}

	bitmapFor(m.byUser, doc.UserID).Add(ord)
	bitmapFor(m.byCourse, doc.CourseID).Add(ord)
	bitmapFor(m.byUsage, doc.UsageID).Add(ord)

	return nil
}

// Delete removes the document. Deleting an absent id is not an error.
func (m *MemoryMirror) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(id)

	return nil
}

func (m *MemoryMirror) deleteLocked(id string) {
	ord, ok := m.ords[id]
	if !ok {
		return
	}
	doc := m.docs[ord]

	// O(terms * postings), fine for an embedded index.
	for t := range m.inverted {
		postings := m.inverted[t]
		for i, p := range postings {
			if p.ord == ord {
				m.inverted[t] = append(postings[:i], postings[i+1:]...)
				break
			}
		}
		if len(m.inverted[t]) == 0 {
			delete(m.inverted, t)
		}
	}

	if bm, ok := m.byUser[doc.UserID]; ok {
		bm.Remove(ord)
	}
	if bm, ok := m.byCourse[doc.CourseID]; ok {
		bm.Remove(ord)
	}
	if bm, ok := m.byUsage[doc.UsageID]; ok {
		bm.Remove(ord)
	}

	m.totalLength -= int64(m.docLengths[ord])
	delete(m.docLengths, ord)
	delete(m.docs, ord)
	delete(m.ords, id)
}

// Search returns BM25-ranked hits for the query.
func (m *MemoryMirror) Search(_ context.Context, q Query) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filter, constrained := m.filterBitmap(q)
	if constrained && filter.IsEmpty() {
		return nil, nil
	}

	allowed := func(ord uint32) bool {
		return !constrained || filter.Contains(ord)
	}

	scores := make(map[uint32]float64)

	if q.Text == "" {
		// Filter-only query: every allowed document matches with a
		// neutral score.
		for ord := range m.docs {
			if allowed(ord) {
				scores[ord] = 0
			}
		}
	} else if len(m.docs) > 0 {
		avgDL := float64(m.totalLength) / float64(len(m.docs))

		for _, t := range tokenize(q.Text) {
			postings, ok := m.inverted[t]
			if !ok {
				continue
			}

			idf := math.Log(1 + (float64(len(m.docs))-float64(len(postings))+0.5)/(float64(len(postings))+0.5))

			for _, p := range postings {
				if !allowed(p.ord) {
					continue
				}

				tf := float64(p.count)
				docLen := float64(m.docLengths[p.ord])

				num := tf * (k1 + 1)
				denom := tf + k1*(1-b+b*(docLen/avgDL))
				scores[p.ord] += idf * (num / denom)
			}
		}
	}

	hits := make([]Hit, 0, len(scores))
	for ord, score := range scores {
		hits = append(hits, Hit{ID: m.docs[ord].ID, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	return paginateHits(hits, q.Limit, q.Offset), nil
}

// IDs enumerates every document id.
func (m *MemoryMirror) IDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.ords))
	for id := range m.ords {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

// Reset drops all documents.
func (m *MemoryMirror) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()

	return nil
}

// Ping reports whether the mirror is reachable. The embedded mirror
// always is.
func (m *MemoryMirror) Ping(_ context.Context) error {
	return nil
}

// filterBitmap intersects the term filters of the query. The second
// return value reports whether any filter constrains the result.
func (m *MemoryMirror) filterBitmap(q Query) (*roaring.Bitmap, bool) {
	var (
		filter      *roaring.Bitmap
		constrained bool
	)

	intersect := func(bm *roaring.Bitmap) {
		if bm == nil {
			bm = roaring.New()
		}
		if filter == nil {
			filter = bm.Clone()
		} else {
			filter.And(bm)
		}
		constrained = true
	}

	if q.UserID != "" {
		intersect(m.byUser[q.UserID])
	}
	if q.CourseID != "" {
		intersect(m.byCourse[q.CourseID])
	}
	if len(q.UsageIDs) > 0 {
		union := roaring.New()
		for _, u := range q.UsageIDs {
			if bm, ok := m.byUsage[u]; ok {
				union.Or(bm)
			}
		}
		intersect(union)
	}

	return filter, constrained
}

func bitmapFor(m map[string]*roaring.Bitmap, key string) *roaring.Bitmap {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	return bm
}

func paginateHits(hits []Hit, limit, offset int) []Hit {
	if offset > 0 {
		if offset >= len(hits) {
			return nil
		}
		hits = hits[offset:]
	}
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits
}
