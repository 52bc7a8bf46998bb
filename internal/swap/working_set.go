package swap

import (
	"container/heap"

	"curveSwap/internal/index"
	"curveSwap/internal/pool"
)

// workingSet holds the fetched pools that still quote on one side, best first.
type workingSet struct {
	side  index.Side
	pools []*pool.Pool
}

func newWorkingSet(side index.Side) *workingSet {
	return &workingSet{side: side}
}

func (w *workingSet) entry(p *pool.Pool) index.Entry {
	return index.Entry{PoolID: p.ID, Price: *p.QuotePrice(w.side)}
}

// heap.Interface
func (w *workingSet) Len() int { return len(w.pools) }
func (w *workingSet) Less(i, j int) bool {
	return w.side.Better(w.entry(w.pools[i]), w.entry(w.pools[j]))
}
func (w *workingSet) Swap(i, j int) { w.pools[i], w.pools[j] = w.pools[j], w.pools[i] }
func (w *workingSet) Push(x any)   { w.pools = append(w.pools, x.(*pool.Pool)) }
func (w *workingSet) Pop() any {
	last := w.pools[len(w.pools)-1]
	w.pools[len(w.pools)-1] = nil
	w.pools = w.pools[:len(w.pools)-1]
	return last
}

// add inserts p if it quotes on the working side.
func (w *workingSet) add(p *pool.Pool) bool {
	if p.QuotePrice(w.side) == nil {
		return false
	}
	heap.Push(w, p)
	return true
}

func (w *workingSet) best() (*pool.Pool, bool) {
	if len(w.pools) == 0 {
		return nil, false
	}
	return w.pools[0], true
}

// beats reports whether the best fetched pool ranks ahead of e.
func (w *workingSet) beats(e index.Entry) bool {
	best, ok := w.best()
	return ok && w.side.Better(w.entry(best), e)
}

// rerank restores order after the best pool traded, dropping it if it no
// longer quotes.
func (w *workingSet) rerank() {
	if len(w.pools) == 0 {
		return
	}
	if w.pools[0].QuotePrice(w.side) == nil {
		heap.Pop(w)
		return
	}
	heap.Fix(w, 0)
}
