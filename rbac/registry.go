package rbac

import (
	"errors"
	"sort"
)

const wordBits = 64

// Mask is a fixed permission bitset sized by the registry that produced it.
type Mask []uint64

// Registry assigns each permission name a stable bit index so effective
// permission sets can be stored and compared as bitmasks.
//
// Registry instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Registry struct {
	bits  map[string]int
	names []string
}

// NewRegistry builds a registry over the given permission names. Names are
// sorted before assignment so the bit layout is deterministic across restarts.
func NewRegistry(names []string) (*Registry, error) {
	if len(names) == 0 {
		return nil, errors.New("registry requires at least one permission")
	}

	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	bits := make(map[string]int, len(sorted))
	for i, name := range sorted {
		if name == "" {
			return nil, errors.New("empty permission name")
		}
		if _, dup := bits[name]; dup {
			return nil, errors.New("duplicate permission name: " + name)
		}
		bits[name] = i
	}

	return &Registry{bits: bits, names: sorted}, nil
}

// Size returns the number of registered permissions.
func (r *Registry) Size() int {
	return len(r.names)
}

// Bit returns the bit index for a permission name.
func (r *Registry) Bit(name string) (int, bool) {
	idx, ok := r.bits[name]
	return idx, ok
}

// Names returns all registered permission names in bit order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// NewMask returns an empty mask sized for this registry.
func (r *Registry) NewMask() Mask {
	return make(Mask, (len(r.names)+wordBits-1)/wordBits)
}

// MaskOf folds permission names into a mask. Unknown names return
// ErrPermissionNotFound.
func (r *Registry) MaskOf(names ...string) (Mask, error) {
	mask := r.NewMask()
	for _, name := range names {
		idx, ok := r.bits[name]
		if !ok {
			return nil, ErrPermissionNotFound
		}
		mask[idx/wordBits] |= 1 << (idx % wordBits)
	}
	return mask, nil
}

// Has reports whether the named permission is set.
func (r *Registry) Has(mask Mask, name string) bool {
	idx, ok := r.bits[name]
	if !ok {
		return false
	}
	word := idx / wordBits
	if word >= len(mask) {
		return false
	}
	return mask[word]&(1<<(idx%wordBits)) != 0
}

// Expand returns the permission names set in the mask, in bit order.
func (r *Registry) Expand(mask Mask) []string {
	out := make([]string, 0)
	for idx, name := range r.names {
		word := idx / wordBits
		if word < len(mask) && mask[word]&(1<<(idx%wordBits)) != 0 {
			out = append(out, name)
		}
	}
	return out
}

// Union merges b into a in place and returns a.
func Union(a, b Mask) Mask {
	for i := range a {
		if i < len(b) {
			a[i] |= b[i]
		}
	}
	return a
}

// Clone returns an independent copy of the mask.
func (m Mask) Clone() Mask {
	out := make(Mask, len(m))
	copy(out, m)
	return out
}

// Empty reports whether no bits are set.
func (m Mask) Empty() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}
