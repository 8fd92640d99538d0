package usecase

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
)

// AlphaHandle is one symbol's latest regime assessment. The orchestrator is the only
// writer; readers hold the handle and Load it.
type AlphaHandle struct {
	symbol string
	v      atomic.Pointer[models.RegimeAssessment]
}

func (h *AlphaHandle) Symbol() string { return h.symbol }

// Load returns the latest assessment, or false before the first checked step.
func (h *AlphaHandle) Load() (models.RegimeAssessment, bool) {
	p := h.v.Load()
	if p == nil {
		return models.RegimeAssessment{}, false
	}
	return *p, true
}

func (h *AlphaHandle) store(a models.RegimeAssessment) {
	h.v.Store(&a)
}

// AlphaBoard owns the per-symbol handles and mirrors updates to an optional
// snapshot store for readers in other processes.
type AlphaBoard struct {
	mu        sync.RWMutex
	handles   map[string]*AlphaHandle
	snapshots domrepo.AlphaSnapshotStore
}

func NewAlphaBoard(snapshots domrepo.AlphaSnapshotStore) *AlphaBoard {
	return &AlphaBoard{handles: make(map[string]*AlphaHandle), snapshots: snapshots}
}

// Handle returns the handle for symbol, creating it if needed.
func (b *AlphaBoard) Handle(symbol string) *AlphaHandle {
	b.mu.RLock()
	h, ok := b.handles[symbol]
	b.mu.RUnlock()
	if ok {
		return h
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok = b.handles[symbol]; ok {
		return h
	}
	h = &AlphaHandle{symbol: symbol}
	b.handles[symbol] = h
	return h
}

// Lookup returns an existing handle.
func (b *AlphaBoard) Lookup(symbol string) (*AlphaHandle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handles[symbol]
	return h, ok
}

// Symbols lists tracked symbols in order.
func (b *AlphaBoard) Symbols() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.handles))
	for s := range b.handles {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot returns every symbol that has an assessment.
func (b *AlphaBoard) Snapshot() map[string]models.RegimeAssessment {
	out := make(map[string]models.RegimeAssessment)
	for _, s := range b.Symbols() {
		h, _ := b.Lookup(s)
		if a, ok := h.Load(); ok {
			out[s] = a
		}
	}
	return out
}

// Get reads the local handle first and falls back to the snapshot store.
func (b *AlphaBoard) Get(ctx context.Context, symbol string) (models.RegimeAssessment, bool, error) {
	if h, ok := b.Lookup(symbol); ok {
		if a, ok := h.Load(); ok {
			return a, true, nil
		}
	}
	if b.snapshots == nil {
		return models.RegimeAssessment{}, false, nil
	}
	return b.snapshots.Get(ctx, symbol)
}

func (b *AlphaBoard) publish(ctx context.Context, h *AlphaHandle, a models.RegimeAssessment) error {
	h.store(a)
	if b.snapshots == nil {
		return nil
	}
	return b.snapshots.Put(ctx, h.symbol, a)
}
