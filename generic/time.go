/*
time.go - Calendar dates, repayment cadence and working-day calendars

PURPOSE:
  Every date the engine touches is a calendar date with no time of day.
  TimePoint wraps time.Time normalized to midnight UTC so comparisons and
  day counts never drift across zones or daylight-saving changes.

MONTH ARITHMETIC:
  AddMonths clamps to the last day of the target month instead of
  overflowing the way time.AddDate does:

    31 Jan + 1 month  = 28 Feb (29 in leap years)
    31 Jan + 2 months = 31 Mar

  Repayment dates are always derived from the anchor date, never chained
  from the previous due date, so a clamp in February does not shorten
  every later month.

WORKING DAYS AND HOLIDAYS:
  WorkingDaySet + NonWorkingDayRule describe which weekdays are open and
  what to do when a due date lands on a closed one. Holiday describes a
  closed date range and its own shift policy. The holiday package applies
  both to a schedule.

SEE ALSO:
  - accrual.go: Day-count fractions and per-period rates
  - holiday/adjuster.go: Applies calendars to schedules
*/
package generic

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// TIME POINT
// =============================================================================

// TimePoint is a calendar date. The zero value means "not set".
type TimePoint struct {
	Time time.Time
}

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime drops the clock part of t.
func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint {
	return FromTime(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return FromTime(t), nil
}

// MustParseDate is ParseDate for fixtures and constants.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func (tp TimePoint) IsZero() bool { return tp.Time.IsZero() }

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// AddMonths adds n months, clamping the day to the end of the target month.
func (tp TimePoint) AddMonths(n int) TimePoint {
	y, m, d := tp.Time.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysInMonth(first.Year(), first.Month()); d > last {
		d = last
	}
	return NewTimePoint(first.Year(), first.Month(), d)
}

func (tp TimePoint) AddYears(n int) TimePoint { return tp.AddMonths(12 * n) }

func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsMonthEnd() bool      { return tp.Day() == daysInMonth(tp.Year(), tp.Month()) }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(DateLayout)
}

// DaysBetween returns the number of days from start to end. Negative when
// end precedes start.
func DaysBetween(start, end TimePoint) int {
	return int(end.Time.Sub(start.Time).Hours() / 24)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLeapYear reports whether year has 366 days.
func IsLeapYear(year int) bool {
	return daysInMonth(year, time.February) == 29
}

// Serialization

func (tp TimePoint) MarshalText() ([]byte, error) { return []byte(tp.String()), nil }

func (tp *TimePoint) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tp.String())
}

func (tp *TimePoint) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*tp = TimePoint{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid date: %w", err)
	}
	return tp.UnmarshalText([]byte(s))
}

// =============================================================================
// REPAYMENT CADENCE
// =============================================================================

// FrequencyUnit is the unit of the repayment interval.
type FrequencyUnit string

const (
	FrequencyDays   FrequencyUnit = "days"
	FrequencyWeeks  FrequencyUnit = "weeks"
	FrequencyMonths FrequencyUnit = "months"
	FrequencyYears  FrequencyUnit = "years"
)

func (u FrequencyUnit) Valid() bool {
	switch u {
	case FrequencyDays, FrequencyWeeks, FrequencyMonths, FrequencyYears:
		return true
	}
	return false
}

// Advance moves anchor forward by n units.
func (u FrequencyUnit) Advance(anchor TimePoint, n int) TimePoint {
	switch u {
	case FrequencyDays:
		return anchor.AddDays(n)
	case FrequencyWeeks:
		return anchor.AddDays(7 * n)
	case FrequencyYears:
		return anchor.AddYears(n)
	default:
		return anchor.AddMonths(n)
	}
}

// Intervals reports how many whole intervals of every×u separate from and
// to. It returns 0 when the span is not a whole multiple. Month-based spans
// treat two month-end dates as aligned so clamped February dates still
// count as regular.
func (u FrequencyUnit) Intervals(from, to TimePoint, every int) int {
	if every <= 0 || !to.After(from) {
		return 0
	}
	switch u {
	case FrequencyDays, FrequencyWeeks:
		step := every
		if u == FrequencyWeeks {
			step *= 7
		}
		days := DaysBetween(from, to)
		if days%step != 0 {
			return 0
		}
		return days / step
	default:
		step := every
		if u == FrequencyYears {
			step *= 12
		}
		months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
		if months <= 0 || months%step != 0 {
			return 0
		}
		aligned := to.Day() == from.Day() ||
			(to.IsMonthEnd() && from.Day() > to.Day()) ||
			(from.IsMonthEnd() && to.IsMonthEnd())
		if !aligned {
			return 0
		}
		return months / step
	}
}

// =============================================================================
// WORKING DAYS
// =============================================================================

// NonWorkingDayRule decides where a due date on a closed weekday goes.
type NonWorkingDayRule string

const (
	NonWorkingSameDay        NonWorkingDayRule = "same_day"
	NonWorkingNextWorkingDay NonWorkingDayRule = "next_working_day"
	NonWorkingPrevWorkingDay NonWorkingDayRule = "previous_working_day"
)

func (r NonWorkingDayRule) Valid() bool {
	switch r {
	case NonWorkingSameDay, NonWorkingNextWorkingDay, NonWorkingPrevWorkingDay:
		return true
	}
	return false
}

// WorkingDaySet is the office's open weekdays. An empty Days list means
// every day is a working day.
type WorkingDaySet struct {
	Days []time.Weekday    `json:"days"`
	Rule NonWorkingDayRule `json:"rule"`
}

// StandardWorkingDays is Monday to Friday with due dates moved forward.
func StandardWorkingDays() WorkingDaySet {
	return WorkingDaySet{
		Days: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Rule: NonWorkingNextWorkingDay,
	}
}

func (w WorkingDaySet) IsWorkingDay(d TimePoint) bool {
	if len(w.Days) == 0 {
		return true
	}
	wd := d.Weekday()
	for _, day := range w.Days {
		if day == wd {
			return true
		}
	}
	return false
}

// NextWorkingDay returns d if it is open, otherwise the first open day after it.
func (w WorkingDaySet) NextWorkingDay(d TimePoint) TimePoint {
	for i := 0; i < 7 && !w.IsWorkingDay(d); i++ {
		d = d.AddDays(1)
	}
	return d
}

// PreviousWorkingDay returns d if it is open, otherwise the last open day before it.
func (w WorkingDaySet) PreviousWorkingDay(d TimePoint) TimePoint {
	for i := 0; i < 7 && !w.IsWorkingDay(d); i++ {
		d = d.AddDays(-1)
	}
	return d
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// HolidayShiftPolicy says where a due date inside a holiday goes.
type HolidayShiftPolicy string

const (
	HolidayShiftNextWorkingDay HolidayShiftPolicy = "next_working_day"
	HolidayShiftFixedDate      HolidayShiftPolicy = "fixed_date"
)

// Holiday is a closed date range for an office, inclusive on both ends.
type Holiday struct {
	ID            string             `json:"id"`
	OfficeID      string             `json:"officeId"`
	Name          string             `json:"name"`
	FromDate      TimePoint          `json:"fromDate"`
	ToDate        TimePoint          `json:"toDate"`
	ShiftPolicy   HolidayShiftPolicy `json:"shiftPolicy"`
	RescheduledTo TimePoint          `json:"rescheduledTo"`
}

func (h Holiday) Contains(d TimePoint) bool {
	return d.AfterOrEqual(h.FromDate) && d.BeforeOrEqual(h.ToDate)
}

// Validate checks the range and the shift target.
func (h Holiday) Validate() error {
	if h.FromDate.IsZero() || h.ToDate.IsZero() {
		return &InvalidRequestError{Field: "fromDate", Reason: "holiday dates are required"}
	}
	if h.ToDate.Before(h.FromDate) {
		return &InvalidRequestError{Field: "toDate", Reason: "holiday ends before it starts"}
	}
	switch h.ShiftPolicy {
	case HolidayShiftNextWorkingDay:
	case HolidayShiftFixedDate:
		if h.RescheduledTo.IsZero() {
			return &InvalidRequestError{Field: "rescheduledTo", Reason: "fixed_date holidays need a target date"}
		}
		if h.Contains(h.RescheduledTo) {
			return &InvalidRequestError{Field: "rescheduledTo", Reason: "target date falls inside the holiday"}
		}
	default:
		return &InvalidRequestError{Field: "shiftPolicy", Reason: fmt.Sprintf("unknown shift policy %q", h.ShiftPolicy)}
	}
	return nil
}
