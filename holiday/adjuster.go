/*
Package holiday moves installment due dates off non-working days and holidays.

PURPOSE:
  The generator lays out due dates on a pure calendar. The adjuster
  applies the office's working-day rule and holiday table afterwards,
  shifting dates but never amounts.

RULES (applied repeatedly until the date settles):
  1. Working days: a due date on a closed weekday moves according to
     the NonWorkingDayRule (same day, next or previous working day)
  2. Holidays: a due date inside a holiday moves to the first working
     day after it (next_working_day) or to its RescheduledTo date
     (fixed_date)

  A shift can land on another closed day, so both rules run again on the
  result. The loop is bounded; a date that never settles is an error.

COUPLING:
  Moving installment i's due date also moves installment i+1's FromDate,
  so periods stay contiguous. Disbursement and down-payment rows are
  never shifted.

SEE ALSO:
  - generic/time.go: WorkingDaySet, Holiday
  - amortization/generator.go: Produces the input schedule
*/
package holiday

import (
	"github.com/warp/loan-engine/generic"
)

// maxShifts bounds the rule loop for a single date.
const maxShifts = 64

// Calendar is everything the adjuster needs to decide where a date goes.
type Calendar struct {
	WorkingDays generic.WorkingDaySet
	Holidays    []generic.Holiday
}

// IsOpen reports whether d is a working day outside every holiday.
func (c Calendar) IsOpen(d generic.TimePoint) bool {
	return c.WorkingDays.IsWorkingDay(d) && c.holidayOn(d) == nil
}

func (c Calendar) holidayOn(d generic.TimePoint) *generic.Holiday {
	for i := range c.Holidays {
		if c.Holidays[i].Contains(d) {
			return &c.Holidays[i]
		}
	}
	return nil
}

// AdjustDate returns where a due date on d actually falls.
func (c Calendar) AdjustDate(d generic.TimePoint) (generic.TimePoint, error) {
	for i := 0; i < maxShifts; i++ {
		next := c.step(d)
		if next.Equal(d) {
			return d, nil
		}
		d = next
	}
	return generic.TimePoint{}, generic.ErrHolidayShiftCycle
}

func (c Calendar) step(d generic.TimePoint) generic.TimePoint {
	if !c.WorkingDays.IsWorkingDay(d) {
		switch c.WorkingDays.Rule {
		case generic.NonWorkingNextWorkingDay:
			d = c.WorkingDays.NextWorkingDay(d)
		case generic.NonWorkingPrevWorkingDay:
			d = c.WorkingDays.PreviousWorkingDay(d)
		}
	}
	if h := c.holidayOn(d); h != nil {
		switch h.ShiftPolicy {
		case generic.HolidayShiftFixedDate:
			d = h.RescheduledTo
		default:
			d = c.WorkingDays.NextWorkingDay(h.ToDate.AddDays(1))
		}
	}
	return d
}

// Adjust shifts every installment due date in s. The input is not modified.
func Adjust(s generic.Schedule, cal Calendar) (generic.Schedule, error) {
	return AdjustFrom(s, cal, generic.TimePoint{})
}

// AdjustFrom shifts only installments due on or after from whose
// obligations are not yet met. Earlier rows are left verbatim.
func AdjustFrom(s generic.Schedule, cal Calendar, from generic.TimePoint) (generic.Schedule, error) {
	out := s.Clone()
	var prevOriginal, prevAdjusted generic.TimePoint
	for i := range out.Periods {
		p := &out.Periods[i]
		if p.IsDisbursement() || p.IsDownPayment {
			continue
		}
		if !prevOriginal.IsZero() && p.FromDate.Equal(prevOriginal) {
			p.FromDate = prevAdjusted
		}
		original := p.DueDate
		if !p.ObligationsMet && !p.DueDate.Before(from) {
			adjusted, err := cal.AdjustDate(p.DueDate)
			if err != nil {
				return generic.Schedule{}, err
			}
			p.DueDate = adjusted
		}
		prevOriginal, prevAdjusted = original, p.DueDate
	}
	if err := out.ValidateOrdering(); err != nil {
		return generic.Schedule{}, err
	}
	out.Sort()
	return out, nil
}
