package actionqueue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FlagTable maps action kinds to the flags they carry.
// Lookups are resolved once, when an action is built with FlagTable.Option.
type FlagTable struct {
	mu    sync.RWMutex
	kinds map[string]Flags
}

// NewFlagTable builds a table seeded with entries.
func NewFlagTable(entries map[string]Flags) *FlagTable {
	t := &FlagTable{kinds: make(map[string]Flags, len(entries))}
	for kind, flags := range entries {
		t.kinds[normalizeKind(kind)] = flags
	}
	return t
}

// Register adds a kind. Registering the same kind twice is an error.
func (t *FlagTable) Register(kind string, flags Flags) error {
	kind = normalizeKind(kind)
	if kind == "" {
		return newConfigError("action kind cannot be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.kinds == nil {
		t.kinds = make(map[string]Flags)
	}
	if _, exists := t.kinds[kind]; exists {
		return NewError(ErrAlreadySet, fmt.Sprintf("flags already registered for kind %q", kind), nil, map[string]any{
			"kind": kind,
		})
	}
	t.kinds[kind] = flags
	return nil
}

// Lookup returns the flags registered for kind.
func (t *FlagTable) Lookup(kind string) (Flags, bool) {
	if t == nil {
		return None, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.kinds[normalizeKind(kind)]
	return f, ok
}

// Flags returns the flags for kind, None when unknown.
func (t *FlagTable) Flags(kind string) Flags {
	f, _ := t.Lookup(kind)
	return f
}

// Kinds lists the registered kinds in sorted order.
func (t *FlagTable) Kinds() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.kinds))
	for k := range t.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Option tags an action with kind and the flags the table holds for it.
func (t *FlagTable) Option(kind string) ActionOption {
	flags := t.Flags(kind)
	kind = normalizeKind(kind)
	return func(s *actionSettings) {
		s.kind = kind
		s.flags = flags
	}
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
