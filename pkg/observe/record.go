package observe

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Record is one observation. Every channel of the layout is either present
// with its fixed shape or explicitly absent.
type Record struct {
	layout Layout
	values map[string]*tensor.Dense
}

func newRecord(layout Layout) *Record {
	return &Record{layout: layout, values: make(map[string]*tensor.Dense, len(layout))}
}

func zeroRecord(layout Layout) *Record {
	r := newRecord(layout)
	for _, c := range layout {
		r.values[c.Name] = c.zero()
	}
	return r
}

// Layout returns the record's channel layout.
func (r *Record) Layout() Layout { return r.layout }

// Get returns a channel's values. ok is false when the channel is absent for
// this record or not part of the layout.
func (r *Record) Get(name string) (t *tensor.Dense, ok bool) {
	t, ok = r.values[name]
	return t, ok
}

// Float64s returns a float channel's backing data.
func (r *Record) Float64s(name string) ([]float64, bool) {
	t, ok := r.values[name]
	if !ok {
		return nil, false
	}
	v, ok := t.Data().([]float64)
	return v, ok
}

// Absent lists the layout channels missing from this record.
func (r *Record) Absent() []string {
	var out []string
	for _, c := range r.layout {
		if _, ok := r.values[c.Name]; !ok {
			out = append(out, c.Name)
		}
	}
	return out
}

func (r *Record) set(name string, backing interface{}) error {
	spec, ok := r.layout.Lookup(name)
	if !ok {
		return fmt.Errorf("channel %q is not in the layout", name)
	}
	if n := backingLen(backing); n != spec.Shape.TotalSize() {
		return fmt.Errorf("channel %q: %d values for shape %v", name, n, spec.Shape)
	}
	t := tensor.New(tensor.WithShape(spec.Shape.Clone()...), tensor.WithBacking(backing))
	if t.Dtype() != spec.Dtype {
		return fmt.Errorf("channel %q: got %v, want %v", name, t.Dtype(), spec.Dtype)
	}
	r.values[name] = t
	return nil
}

func backingLen(backing interface{}) int {
	switch v := backing.(type) {
	case []float64:
		return len(v)
	case []uint8:
		return len(v)
	}
	return -1
}
