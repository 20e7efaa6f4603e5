package auth

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Wildcard matches any server or any share in a Table key.
const Wildcard = "*"

// Resolver supplies credential overrides for a connection attempt.
//
// Resolve may be called from the async worker goroutine while the
// application goroutine keeps running; implementations must be safe for
// concurrent use.
type Resolver interface {
	Resolve(server, share string) (Override, error)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(server, share string) (Override, error)

// Resolve calls f(server, share).
func (f ResolverFunc) Resolve(server, share string) (Override, error) {
	return f(server, share)
}

// Key identifies a Table entry. Either part may be Wildcard, except that a
// wildcard server requires a wildcard share.
type Key struct {
	Server string
	Share  string
}

func (k Key) String() string {
	return `\\` + k.Server + `\` + k.Share
}

func normalizeKey(server, share string) Key {
	server = strings.ToLower(strings.TrimSpace(server))
	share = strings.ToLower(strings.TrimSpace(share))
	if share == "" {
		share = Wildcard
	}
	return Key{Server: server, Share: share}
}

func validateKey(k Key) error {
	if k.Server == "" {
		return &ValidationError{Field: "server", Reason: "must not be empty"}
	}
	if k.Server == Wildcard && k.Share != Wildcard {
		return &ValidationError{Field: "share", Reason: "a wildcard server only accepts a wildcard share"}
	}
	if err := Validate("server", k.Server); err != nil {
		return err
	}
	return Validate("share", k.Share)
}

// Entry is a single Table row.
type Entry struct {
	Server   string
	Share    string
	Override Override
}

// Table is a credential lookup keyed by (server, share).
//
// Lookups are lock-free against an immutable snapshot; every mutation
// publishes a fresh copy. Server and share names are matched
// case-insensitively.
type Table struct {
	mu      sync.Mutex // serializes writers
	entries atomic.Pointer[map[Key]Override]
}

// NewTable creates an empty Table.
func NewTable() *Table {
	t := &Table{}
	empty := map[Key]Override{}
	t.entries.Store(&empty)
	return t
}

func (t *Table) snapshot() map[Key]Override {
	if p := t.entries.Load(); p != nil {
		return *p
	}
	return nil
}

func (t *Table) update(fn func(m map[Key]Override)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.snapshot()
	next := make(map[Key]Override, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	fn(next)
	t.entries.Store(&next)
}

// Set registers o for (server, share), replacing any existing entry.
// The override is validated before it is stored.
func (t *Table) Set(server, share string, o Override) error {
	k := normalizeKey(server, share)
	if err := validateKey(k); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return err
	}
	t.update(func(m map[Key]Override) { m[k] = o })
	return nil
}

// SetServer registers o for every share of server.
func (t *Table) SetServer(server string, o Override) error {
	return t.Set(server, Wildcard, o)
}

// SetDefault registers o for every server and share.
func (t *Table) SetDefault(o Override) error {
	return t.Set(Wildcard, Wildcard, o)
}

// Delete removes the entry for (server, share) and reports whether it existed.
func (t *Table) Delete(server, share string) bool {
	k := normalizeKey(server, share)
	if _, ok := t.snapshot()[k]; !ok {
		return false
	}
	t.update(func(m map[Key]Override) { delete(m, k) })
	return true
}

// Replace swaps the whole table for entries. Either every entry is valid and
// installed, or the table is left unchanged.
func (t *Table) Replace(entries []Entry) error {
	next := make(map[Key]Override, len(entries))
	for _, e := range entries {
		k := normalizeKey(e.Server, e.Share)
		if err := validateKey(k); err != nil {
			return err
		}
		if err := e.Override.Validate(); err != nil {
			return err
		}
		next[k] = e.Override
	}

	t.mu.Lock()
	t.entries.Store(&next)
	t.mu.Unlock()
	return nil
}

// Get returns the entry stored under exactly (server, share).
func (t *Table) Get(server, share string) (Override, bool) {
	o, ok := t.snapshot()[normalizeKey(server, share)]
	return o, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.snapshot())
}

// Entries returns every entry sorted by server then share.
func (t *Table) Entries() []Entry {
	snap := t.snapshot()
	out := make([]Entry, 0, len(snap))
	for k, o := range snap {
		out = append(out, Entry{Server: k.Server, Share: k.Share, Override: o})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].Share < out[j].Share
	})
	return out
}

// Lookup finds the most specific entry for (server, share):
// exact key, then (server, *), then (*, *).
func (t *Table) Lookup(server, share string) (Override, Key, bool) {
	snap := t.snapshot()
	k := normalizeKey(server, share)
	for _, cand := range []Key{
		k,
		{Server: k.Server, Share: Wildcard},
		{Server: Wildcard, Share: Wildcard},
	} {
		if o, ok := snap[cand]; ok {
			return o, cand, true
		}
	}
	return Override{}, Key{}, false
}

// Resolve implements Resolver. A miss yields an empty Override so the
// caller's defaults stay in effect.
func (t *Table) Resolve(server, share string) (Override, error) {
	o, _, _ := t.Lookup(server, share)
	return o, nil
}
