package recurrence

import (
	"github.com/google/btree"
)

// Instance is one resolved occurrence of a recurring component.
type Instance struct {
	// Source is the component the occurrence was materialized from. It is
	// only ever read.
	Source *Component
	// RecurrenceID is the nominal slot the occurrence occupies, i.e. the
	// start the recurrence set generated for it before any override.
	RecurrenceID Instant
	Start        Instant
	End          Instant
	// Overridden is set for instances taken from an explicit override.
	Overridden bool
	// Shifted is set for instances moved by a THISANDFUTURE override. They
	// can still be replaced or re-shifted by later overrides.
	Shifted bool
}

// Period returns [Start, End).
func (i Instance) Period() Period {
	return Period{Start: i.Start, End: i.End}
}

const tableDegree = 8

// InstanceTable holds the instances of one recurring component, keyed and
// ordered by RecurrenceID.
type InstanceTable struct {
	tree *btree.BTreeG[Instance]
}

func byRecurrenceID(a, b Instance) bool {
	return a.RecurrenceID.Before(b.RecurrenceID)
}

// NewInstanceTable creates an empty table.
func NewInstanceTable() *InstanceTable {
	return &InstanceTable{tree: btree.NewG[Instance](tableDegree, byRecurrenceID)}
}

// Put stores inst, replacing any instance with the same RecurrenceID.
func (t *InstanceTable) Put(inst Instance) {
	t.tree.ReplaceOrInsert(inst)
}

// Get looks up the instance occupying key.
func (t *InstanceTable) Get(key Instant) (Instance, bool) {
	return t.tree.Get(Instance{RecurrenceID: key})
}

// Delete removes the instance occupying key and reports whether one existed.
func (t *InstanceTable) Delete(key Instant) bool {
	_, ok := t.tree.Delete(Instance{RecurrenceID: key})
	return ok
}

func (t *InstanceTable) Len() int {
	return t.tree.Len()
}

// Ascend calls fn for every instance in RecurrenceID order until fn
// returns false.
func (t *InstanceTable) Ascend(fn func(Instance) bool) {
	t.tree.Ascend(fn)
}

// AscendAfter calls fn for every instance whose RecurrenceID is strictly
// after key, in order, until fn returns false.
func (t *InstanceTable) AscendAfter(key Instant, fn func(Instance) bool) {
	t.tree.AscendGreaterOrEqual(Instance{RecurrenceID: key}, func(inst Instance) bool {
		if inst.RecurrenceID.Equal(key) {
			return true
		}
		return fn(inst)
	})
}

// Instances returns a snapshot of the table in RecurrenceID order.
func (t *InstanceTable) Instances() []Instance {
	out := make([]Instance, 0, t.tree.Len())
	t.tree.Ascend(func(inst Instance) bool {
		out = append(out, inst)
		return true
	})
	return out
}
