package store

import (
	"container/heap"
	"sort"

	"imgsearch/internal/domain"
)

type candidate struct {
	seq      uint64 // insertion order
	path     string
	distance float64
}

// worse orders candidates so the heap root is the one to evict first.
func worse(a, b candidate) bool {
	if a.distance != b.distance {
		return a.distance > b.distance
	}
	return a.seq > b.seq
}

type maxHeap []candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK keeps the k closest candidates seen so far.
type topK struct {
	k int
	h maxHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(maxHeap, 0, min(k, 1024))}
}

func (t *topK) offer(c candidate) {
	if len(t.h) < t.k {
		heap.Push(&t.h, c)
		return
	}
	if worse(t.h[0], c) {
		t.h[0] = c
		heap.Fix(&t.h, 0)
	}
}

// matches returns the kept candidates, closest first.
func (t *topK) matches() []domain.Match {
	sorted := make([]candidate, len(t.h))
	copy(sorted, t.h)
	sort.Slice(sorted, func(i, j int) bool { return worse(sorted[j], sorted[i]) })

	out := make([]domain.Match, len(sorted))
	for i, c := range sorted {
		out[i] = domain.Match{Path: c.path, Distance: c.distance}
	}
	return out
}
