package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRRuleEvaluator_Occurrences(t *testing.T) {
	seed := utc(2024, 1, 1, 9, 0)

	tests := []struct {
		name     string
		rule     string
		seed     Instant
		start    Instant
		end      Instant
		expected []string
		wantErr  bool
	}{
		{
			name:     "count",
			rule:     "FREQ=DAILY;COUNT=3",
			seed:     seed,
			start:    utc(2024, 1, 1, 0, 0),
			end:      utc(2024, 2, 1, 0, 0),
			expected: []string{"20240101T090000Z", "20240102T090000Z", "20240103T090000Z"},
		},
		{
			name:     "window start is inclusive",
			rule:     "FREQ=DAILY",
			seed:     seed,
			start:    utc(2024, 1, 3, 9, 0),
			end:      utc(2024, 1, 5, 0, 0),
			expected: []string{"20240103T090000Z", "20240104T090000Z"},
		},
		{
			name:     "window end is exclusive",
			rule:     "FREQ=WEEKLY;BYDAY=MO,WE",
			seed:     seed,
			start:    utc(2024, 1, 1, 0, 0),
			end:      utc(2024, 1, 8, 9, 0),
			expected: []string{"20240101T090000Z", "20240103T090000Z"},
		},
		{
			name:     "until",
			rule:     "FREQ=DAILY;UNTIL=20240102T090000Z",
			seed:     seed,
			start:    utc(2024, 1, 1, 0, 0),
			end:      utc(2024, 2, 1, 0, 0),
			expected: []string{"20240101T090000Z", "20240102T090000Z"},
		},
		{
			name:     "dates stay dates",
			rule:     "FREQ=MONTHLY;COUNT=2",
			seed:     Date(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)),
			start:    utc(2024, 1, 1, 0, 0),
			end:      utc(2024, 6, 1, 0, 0),
			expected: []string{"20240131", "20240331"},
		},
		{
			name:    "invalid",
			rule:    "FREQ=NEVER",
			seed:    seed,
			start:   utc(2024, 1, 1, 0, 0),
			end:     utc(2024, 2, 1, 0, 0),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RRuleEvaluator{}.Occurrences(tt.rule, tt.seed, tt.start, tt.end)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, formatted(got))
		})
	}
}

func TestRRuleEvaluator_Floating(t *testing.T) {
	seed := Instant{Time: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), Floating: true}
	got, err := RRuleEvaluator{}.Occurrences("FREQ=DAILY;COUNT=2", seed, utc(2024, 1, 1, 0, 0), utc(2024, 1, 10, 0, 0))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, inst := range got {
		assert.True(t, inst.Floating)
	}
	assert.Equal(t, "20240102T090000", got[1].Format())
}
