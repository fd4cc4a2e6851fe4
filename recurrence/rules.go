package recurrence

import (
	"fmt"

	"github.com/teambition/rrule-go"
)

// RuleEvaluator turns a recurrence rule into concrete occurrence starts.
//
// Occurrences must return, in ascending order, every start generated by
// rule seeded at seed that falls in [rangeStart, rangeEnd). It must stop at
// rangeEnd even for rules without COUNT or UNTIL.
type RuleEvaluator interface {
	Occurrences(rule string, seed, rangeStart, rangeEnd Instant) ([]Instant, error)
}

// RRuleEvaluator evaluates RFC 5545 RRULE/EXRULE values with rrule-go.
type RRuleEvaluator struct{}

// Occurrences implements RuleEvaluator.
func (RRuleEvaluator) Occurrences(rule string, seed, rangeStart, rangeEnd Instant) ([]Instant, error) {
	opt, err := rrule.StrToROptionInLocation(rule, seed.Time.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE '%s': %w", rule, err)
	}
	opt.Dtstart = seed.Time

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build RRULE '%s': %w", rule, err)
	}

	// Between is inclusive of both bounds here; the end bound is re-checked
	// below to keep the window half-open.
	times := r.Between(rangeStart.Time, rangeEnd.Time, true)

	out := make([]Instant, 0, len(times))
	for _, t := range times {
		if !t.Before(rangeEnd.Time) {
			continue
		}
		out = append(out, Instant{Time: t, DateOnly: seed.DateOnly, Floating: seed.Floating})
	}
	return out, nil
}
