// Package availability serves the read side of the campsite calendar: an
// eventually consistent index of booked dates, fed asynchronously from
// ledger commits, that availability queries read without touching the
// ledger's lock.
package availability

import (
	"context"
	"sync"
)

// Index stores, per date key (YYYY-MM-DD), whether the date is booked and
// the ledger version that last set it.  Every write is version guarded: a
// date is only changed by a version strictly newer than the one stored, so
// a delayed update can never overwrite a later one.
//
// Versions are only comparable within one ledger.  Reset is therefore
// authoritative: it replaces the whole index with a snapshot and records
// the snapshot version as a floor below which Apply is ignored.  A ledger
// that restarts at version 0 takes the index over with its first Reset.
type Index interface {
	// Apply marks free then booked at version.  A date present in both
	// lists ends up booked.  Versions at or below the last Reset are
	// ignored.
	Apply(ctx context.Context, version uint64, free, booked []string) error
	// Reset replaces the index with a ledger snapshot taken at version:
	// booked dates are marked booked and every other date is forgotten.
	Reset(ctx context.Context, version uint64, booked []string) error
	// Booked returns the subset of dates currently marked booked.
	Booked(ctx context.Context, dates []string) (map[string]bool, error)
	// Prune drops every date strictly before the given key and returns how
	// many were removed.
	Prune(ctx context.Context, before string) (int, error)
}

type entry struct {
	booked  bool
	version uint64
}

// MemoryIndex is an in-process Index.  Reads go straight to a sync.Map
// and take no lock; writes are serialized by their own mutex, which never
// interacts with the ledger's.
type MemoryIndex struct {
	writeMu sync.Mutex
	floor   uint64   // version of the last Reset, guarded by writeMu
	dates   sync.Map // date key -> entry
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex { return &MemoryIndex{} }

func (m *MemoryIndex) Apply(ctx context.Context, version uint64, free, booked []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	for _, d := range desired(free, booked) {
		m.putLocked(d.date, d.booked, version)
	}
	return nil
}

func (m *MemoryIndex) Reset(ctx context.Context, version uint64, booked []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	set := make(map[string]struct{}, len(booked))
	for _, d := range booked {
		set[d] = struct{}{}
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.dates.Range(func(k, _ any) bool {
		if _, ok := set[k.(string)]; !ok {
			m.dates.Delete(k)
		}
		return true
	})
	for d := range set {
		m.dates.Store(d, entry{booked: true, version: version})
	}
	m.floor = version
	return nil
}

func (m *MemoryIndex) Booked(ctx context.Context, dates []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, d := range dates {
		if v, ok := m.dates.Load(d); ok && v.(entry).booked {
			out[d] = true
		}
	}
	return out, nil
}

func (m *MemoryIndex) Prune(ctx context.Context, before string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	n := 0
	m.dates.Range(func(k, _ any) bool {
		if k.(string) < before {
			m.dates.Delete(k)
			n++
		}
		return true
	})
	return n, nil
}

func (m *MemoryIndex) putLocked(date string, booked bool, version uint64) {
	if version <= m.floor {
		return
	}
	if v, ok := m.dates.Load(date); ok && v.(entry).version >= version {
		return
	}
	m.dates.Store(date, entry{booked: booked, version: version})
}

type dateState struct {
	date   string
	booked bool
}

// desired folds a free list and a booked list into one state per date,
// booked taking precedence, in first-seen order.
func desired(free, booked []string) []dateState {
	idx := make(map[string]int, len(free)+len(booked))
	out := make([]dateState, 0, len(free)+len(booked))
	set := func(d string, b bool) {
		if i, ok := idx[d]; ok {
			out[i].booked = b
			return
		}
		idx[d] = len(out)
		out = append(out, dateState{date: d, booked: b})
	}
	for _, d := range free {
		set(d, false)
	}
	for _, d := range booked {
		set(d, true)
	}
	return out
}
