// Package registry provides a generic keyed store for live profile-backed
// objects. Identity is preserved across reloads: an upsert whose profile is
// field-for-field identical to the current one leaves the live object in
// place, so adapter state (warm connections, rate windows) survives a
// refresh that changed nothing.
package registry

import (
	"strings"
	"sync"
)

// Registry maps profile keys to live objects built from those profiles.
// P is the comparable profile type, C the constructed object. Keys are
// folded to lower case, so lookups are case-insensitive.
type Registry[P comparable, C any] struct {
	key   func(P) string
	build func(P) (C, error)

	mu      sync.RWMutex
	entries map[string]*entry[P, C]
}

type entry[P comparable, C any] struct {
	profile P
	value   C
}

// New builds a Registry. key extracts the identifier from a profile;
// build constructs the live object for it.
func New[P comparable, C any](key func(P) string, build func(P) (C, error)) *Registry[P, C] {
	return &Registry[P, C]{
		key:     key,
		build:   build,
		entries: make(map[string]*entry[P, C]),
	}
}

func foldKey(k string) string {
	return strings.ToLower(k)
}

// Get returns the live object for id, if present.
func (r *Registry[P, C]) Get(id string) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[foldKey(id)]
	if !ok {
		var zero C
		return zero, false
	}
	return e.value, true
}

// Profile returns the stored profile for id, if present.
func (r *Registry[P, C]) Profile(id string) (P, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[foldKey(id)]
	if !ok {
		var zero P
		return zero, false
	}
	return e.profile, true
}

// Upsert installs p. If an entry with the same key already holds an equal
// profile, the live object is kept and nothing is built. Otherwise a new
// object is constructed; the displaced old object, if any, is returned so
// the caller can dispose of it.
func (r *Registry[P, C]) Upsert(p P) (displaced C, didReplace bool, err error) {
	var zero C
	k := foldKey(r.key(p))

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[k]; ok && old.profile == p {
		return zero, false, nil
	}
	value, err := r.build(p)
	if err != nil {
		return zero, false, err
	}
	old, existed := r.entries[k]
	r.entries[k] = &entry[P, C]{profile: p, value: value}
	if existed {
		return old.value, true, nil
	}
	return zero, false, nil
}

// Reconcile replaces the registry contents with snapshot. Entries absent
// from the snapshot are removed; changed profiles are rebuilt; unchanged
// profiles keep their live objects. It returns every displaced live object
// and any per-profile build errors. A profile that fails to build leaves
// its previous entry (if any) untouched.
func (r *Registry[P, C]) Reconcile(snapshot []P) (displaced []C, errs []error) {
	wanted := make(map[string]bool, len(snapshot))

	for _, p := range snapshot {
		wanted[foldKey(r.key(p))] = true
		old, replaced, err := r.Upsert(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if replaced {
			displaced = append(displaced, old)
		}
	}

	r.mu.Lock()
	for k, e := range r.entries {
		if !wanted[k] {
			displaced = append(displaced, e.value)
			delete(r.entries, k)
		}
	}
	r.mu.Unlock()
	return displaced, errs
}

// Keys returns the stored keys in their folded form.
func (r *Registry[P, C]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Range iterates over all entries. Return false from fn to stop early.
func (r *Registry[P, C]) Range(fn func(id string, profile P, value C) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, e := range r.entries {
		if !fn(k, e.profile, e.value) {
			break
		}
	}
}

// Len returns the number of stored entries.
func (r *Registry[P, C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
