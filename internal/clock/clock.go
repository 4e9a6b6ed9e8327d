// Package clock provides the single time source for loan arithmetic.
//
// All loan timestamps are produced and compared in one fixed zone (JST,
// UTC+9) so due-date math never shifts with the host timezone.
package clock

import "time"

// JST is the canonical zone for loan_date/due_date/return_date.
var JST = time.FixedZone("JST", 9*60*60)

// Clock yields the current time in the canonical zone.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock and converts to JST.
type System struct{}

// Now returns the current wall time in JST.
func (System) Now() time.Time { return time.Now().In(JST) }

// Fixed always returns the same instant; used in tests.
type Fixed struct{ T time.Time }

// Now returns the fixed instant in JST.
func (f Fixed) Now() time.Time { return f.T.In(JST) }
