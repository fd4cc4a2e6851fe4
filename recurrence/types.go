package recurrence

import (
	"github.com/samber/mo"
)

// RecurrenceInfo contains the recurrence-related properties of a component
type RecurrenceInfo struct {
	RRules        []string           // RRULE values (without the "RRULE:" prefix)
	ExRules       []string           // EXRULE values
	RDates        []Instant          // RDATE values of kind DATE or DATE-TIME
	RPeriods      []Period           // RDATE values of kind PERIOD
	ExDates       []Instant          // EXDATE values
	RecurrenceID  mo.Option[Instant] // For overrides - which occurrence this replaces
	ThisAndFuture bool               // RECURRENCE-ID;RANGE=THISANDFUTURE
}

// HasRecurrence reports whether the info generates more than the master
// occurrence.
func (r RecurrenceInfo) HasRecurrence() bool {
	return len(r.RRules) > 0 || len(r.RDates) > 0 || len(r.RPeriods) > 0
}
