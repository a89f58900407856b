package index

import "sync/atomic"

// Holder keeps the active Index. Readers call Load for every query and keep
// using the Index they got even if a reload swaps in a new one meanwhile.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder creates a Holder serving idx.
func NewHolder(idx *Index) *Holder {
	h := &Holder{}
	h.current.Store(idx)
	return h
}

// Load returns the active Index.
func (h *Holder) Load() *Index {
	return h.current.Load()
}

// Swap makes idx the active Index and returns the previous one.
func (h *Holder) Swap(idx *Index) *Index {
	return h.current.Swap(idx)
}
