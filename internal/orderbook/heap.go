package orderbook

import "container/heap"

// maxPriceHeap implements heap.Interface for bid prices: the highest
// price sits on top, giving O(1) best-bid lookups. Adapted from the
// teacher's orderbook price-heap pair.
type maxPriceHeap []int64

func (h maxPriceHeap) Len() int           { return len(h) }
func (h maxPriceHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h maxPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(int64))
}

func (h *maxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h maxPriceHeap) Peek() (int64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}

// remove deletes the first occurrence of price p, if present.
func (h *maxPriceHeap) remove(p int64) {
	for i, v := range *h {
		if v == p {
			heap.Remove(h, i)
			return
		}
	}
}

// minPriceHeap implements heap.Interface for ask prices: the lowest
// price sits on top.
type minPriceHeap []int64

func (h minPriceHeap) Len() int           { return len(h) }
func (h minPriceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(int64))
}

func (h *minPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h minPriceHeap) Peek() (int64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}

// remove deletes the first occurrence of price p, if present.
func (h *minPriceHeap) remove(p int64) {
	for i, v := range *h {
		if v == p {
			heap.Remove(h, i)
			return
		}
	}
}
