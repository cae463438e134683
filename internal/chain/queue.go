package chain

import "container/heap"

// workItem is one pending (value, type) pair awaiting a hop, carrying
// enough provenance to compute the next hop's relevance and chain
// provenance.
type workItem struct {
	Value       string
	Type        string
	Depth       int
	Relevance   float64
	Parent      string
	SourceChain []string
}

// priorityQueue orders workItems by relevance descending, used by
// osint_cascade so the highest-confidence leads are expanded first.
// Every other recursive strategy uses a plain FIFO slice instead (BFS
// by construction, per spec.md §4.8's "FIFO otherwise").
type priorityQueue []workItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].Relevance > pq[j].Relevance }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(workItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// relevanceQueue wraps priorityQueue behind heap.Interface push/pop so
// callers don't need to import container/heap themselves.
type relevanceQueue struct {
	pq priorityQueue
}

func newRelevanceQueue() *relevanceQueue {
	rq := &relevanceQueue{}
	heap.Init(&rq.pq)
	return rq
}

func (rq *relevanceQueue) push(item workItem) {
	heap.Push(&rq.pq, item)
}

func (rq *relevanceQueue) pop() (workItem, bool) {
	if rq.pq.Len() == 0 {
		return workItem{}, false
	}
	return heap.Pop(&rq.pq).(workItem), true
}

func (rq *relevanceQueue) len() int {
	return rq.pq.Len()
}

// fifoQueue is a plain FIFO over workItems for the BFS strategies that
// don't prioritize by relevance.
type fifoQueue struct {
	items []workItem
}

func (q *fifoQueue) push(item workItem) {
	q.items = append(q.items, item)
}

func (q *fifoQueue) pop() (workItem, bool) {
	if len(q.items) == 0 {
		return workItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *fifoQueue) len() int {
	return len(q.items)
}
