package holiday

import (
	"context"
	"fmt"

	"github.com/warp/loan-engine/generic"
)

// Load assembles a Calendar for an office from its collaborators. Either
// source may be nil; a nil source contributes nothing.
func Load(ctx context.Context, holidays generic.HolidayCalendar, workingDays generic.WorkingDaySource, officeID string, from generic.TimePoint) (Calendar, error) {
	var cal Calendar
	if workingDays != nil {
		wd, err := workingDays.CurrentWorkingDays(ctx)
		if err != nil {
			return Calendar{}, fmt.Errorf("load working days: %w", err)
		}
		cal.WorkingDays = wd
	}
	if holidays != nil {
		hs, err := holidays.HolidaysAfter(ctx, officeID, from)
		if err != nil {
			return Calendar{}, fmt.Errorf("load holidays for office %s: %w", officeID, err)
		}
		cal.Holidays = hs
	}
	return cal, nil
}
