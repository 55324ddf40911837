// Package vectorindex implements the in-memory top-K cosine index (C8): a
// thread-safe parallel-array store of (image id, unit-norm vector) pairs,
// rebuilt from the durable store at process start and after every bulk
// reindex, and kept current incrementally by the ingestion pipeline.
package vectorindex

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/vecmath"
)

// Row is a raw (id, little-endian float32 bytes) pair as read from the
// durable store, consumed by LoadAll.
type Row struct {
	ID    int64
	Bytes []byte
}

// Hit is a single top-K result.
type Hit struct {
	ID    int64
	Score float64
}

// Index is the thread-safe in-memory vector store.
type Index struct {
	mu   sync.RWMutex
	ids  []int64
	vecs [][]float32
	pos  map[int64]int // id -> slot, for O(1) upsert/remove
}

// New returns an empty index.
func New() *Index {
	return &Index{pos: make(map[int64]int)}
}

// LoadAll replaces the entire contents from a bulk list of (id, bytes) rows.
func (idx *Index) LoadAll(rows []Row) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.ids = make([]int64, 0, len(rows))
	idx.vecs = make([][]float32, 0, len(rows))
	idx.pos = make(map[int64]int, len(rows))

	for _, r := range rows {
		if len(r.Bytes) == 0 {
			continue
		}
		v := vecmath.FromBytes(r.Bytes)
		idx.pos[r.ID] = len(idx.ids)
		idx.ids = append(idx.ids, r.ID)
		idx.vecs = append(idx.vecs, v)
	}
}

// Upsert inserts or overwrites the vector for id.
func (idx *Index) Upsert(id int64, vec []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if i, ok := idx.pos[id]; ok {
		idx.vecs[i] = vec
		return
	}
	idx.pos[id] = len(idx.ids)
	idx.ids = append(idx.ids, id)
	idx.vecs = append(idx.vecs, vec)
}

// Remove deletes id from the index via swap-with-last, if present.
func (idx *Index) Remove(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	i, ok := idx.pos[id]
	if !ok {
		return
	}
	last := len(idx.ids) - 1
	idx.ids[i] = idx.ids[last]
	idx.vecs[i] = idx.vecs[last]
	idx.pos[idx.ids[i]] = i

	idx.ids = idx.ids[:last]
	idx.vecs = idx.vecs[:last]
	delete(idx.pos, id)
}

// Len returns the current number of entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// heapItem is a (id, score) pair ordered by ascending score so the root of
// a container/heap min-heap is always the current weakest kept candidate.
type heapItem struct {
	id    int64
	score float64
}

type minHeap []heapItem

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	// Among equal scores, keep the heap's weakest-evictable candidate
	// deterministic by preferring to evict the larger id first.
	return h[i].id > h[j].id
}
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK computes cosine similarity (plain dot product, since vectors are
// assumed unit-norm) against every stored vector and returns the slice
// [offset, offset+k) ordered by descending score, ties broken by ascending
// id. Returns fewer than k entries if fewer remain past offset.
func (idx *Index) TopK(query []float32, k, offset int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 {
		return nil
	}
	total := offset + k
	if total <= 0 || len(idx.ids) == 0 || offset >= len(idx.ids) {
		return nil
	}

	h := &minHeap{}
	heap.Init(h)
	for i, id := range idx.ids {
		score := vecmath.Dot(query, idx.vecs[i])
		if h.Len() < total {
			heap.Push(h, heapItem{id: id, score: score})
		} else {
			root := (*h)[0]
			if score > root.score || (score == root.score && id < root.id) {
				heap.Pop(h)
				heap.Push(h, heapItem{id: id, score: score})
			}
		}
	}

	results := make([]Hit, h.Len())
	for i := range results {
		results[i] = Hit{ID: (*h)[i].id, Score: (*h)[i].score}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if offset >= len(results) {
		return nil
	}
	end := offset + k
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
