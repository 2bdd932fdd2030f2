package codegen

import "github.com/dolthub/swiss"

// internTable is the swiss.Map-backed name index codegen uses for the
// program-level scopes that accumulate monotonically across a whole
// compilation: routine names and the used-flag/used-property sets. The
// global/constant/object name spaces are plain maps on Program. Insertion
// order, where it matters, is tracked separately via a parallel order slice
// rather than by iterating the map itself.
type internTable[V any] struct {
	m *swiss.Map[string, V]
}

func newInternTable[V any](sizeHint int) *internTable[V] {
	if sizeHint < 1 {
		sizeHint = 1
	}
	return &internTable[V]{m: swiss.NewMap[string, V](uint32(sizeHint))}
}

func (t *internTable[V]) set(name string, v V) { t.m.Put(name, v) }

func (t *internTable[V]) get(name string) (V, bool) { return t.m.Get(name) }

func (t *internTable[V]) len() int { return t.m.Count() }

// snapshot copies the interned entries into a plain map, for handing off as
// a Program output field once compilation is complete.
func (t *internTable[V]) snapshot() map[string]V {
	out := make(map[string]V, t.m.Count())
	t.m.Iter(func(k string, v V) bool {
		out[k] = v
		return false
	})
	return out
}
