package index

import (
	"context"
	"sort"
)

type book struct {
	sell []Entry
	buy  []Entry
}

func (b *book) side(s Side) []Entry {
	if s == SellToPool {
		return b.sell
	}
	return b.buy
}

func (b *book) setSide(s Side, entries []Entry) {
	if s == SellToPool {
		b.sell = entries
	} else {
		b.buy = entries
	}
}

// Memory is an in-memory Index backed by sorted slices. Slices are never
// mutated in place, so open cursors keep a consistent snapshot. It is not
// safe for concurrent writers; the owning store serializes them.
type Memory struct {
	books map[Key]*book
}

func NewMemory() *Memory {
	return &Memory{books: make(map[Key]*book)}
}

// Clone returns an independent copy sharing the immutable slices.
func (m *Memory) Clone() *Memory {
	out := NewMemory()
	for key, b := range m.books {
		out.books[key] = &book{sell: b.sell, buy: b.buy}
	}
	return out
}

func (m *Memory) Publish(_ context.Context, key Key, poolID uint64, quotes Quotes) error {
	b := m.books[key]
	if b == nil {
		b = &book{}
		m.books[key] = b
	}
	for _, side := range []Side{SellToPool, BuyFromPool} {
		entries := without(b.side(side), poolID)
		if price := quotes.Get(side); price != nil {
			entries = insertRanked(entries, side, Entry{PoolID: poolID, Price: *price})
		}
		b.setSide(side, entries)
	}
	if len(b.sell) == 0 && len(b.buy) == 0 {
		delete(m.books, key)
	}
	return nil
}

func (m *Memory) Remove(ctx context.Context, key Key, poolID uint64) error {
	return m.Publish(ctx, key, poolID, Quotes{})
}

func (m *Memory) Cursor(_ context.Context, key Key, side Side) (Cursor, error) {
	var entries []Entry
	if b := m.books[key]; b != nil {
		entries = b.side(side)
	}
	return &sliceCursor{entries: entries}, nil
}

// Len returns the number of entries on one side of a market.
func (m *Memory) Len(key Key, side Side) int {
	if b := m.books[key]; b != nil {
		return len(b.side(side))
	}
	return 0
}

func without(entries []Entry, poolID uint64) []Entry {
	for i, e := range entries {
		if e.PoolID != poolID {
			continue
		}
		out := make([]Entry, 0, len(entries)-1)
		out = append(out, entries[:i]...)
		return append(out, entries[i+1:]...)
	}
	return entries
}

func insertRanked(entries []Entry, side Side, e Entry) []Entry {
	at := sort.Search(len(entries), func(i int) bool {
		return side.Better(e, entries[i])
	})
	out := make([]Entry, 0, len(entries)+1)
	out = append(out, entries[:at]...)
	out = append(out, e)
	return append(out, entries[at:]...)
}

type sliceCursor struct {
	entries []Entry
	pos     int
}

func (c *sliceCursor) HasNext(context.Context) (bool, error) {
	return c.pos < len(c.entries), nil
}

func (c *sliceCursor) Peek() Entry { return c.entries[c.pos] }

func (c *sliceCursor) Advance() {
	if c.pos < len(c.entries) {
		c.pos++
	}
}
