package scheduling

import "time"

// Calendar describes the clinic's bookable window: opening hours, slot
// duration, which weekdays the clinic operates, and how far ahead the
// resolver will search before giving up.
type Calendar struct {
	OpeningHour  int
	ClosingHour  int
	SlotDuration time.Duration
	Horizon      time.Duration
	BusinessDays map[time.Weekday]bool
	Location     *time.Location
}

// DefaultCalendar returns the stock clinic calendar: 9am-5pm, 30-minute
// slots, Monday through Friday, 30-day search horizon, UTC.
func DefaultCalendar() Calendar {
	return Calendar{
		OpeningHour:  9,
		ClosingHour:  17,
		SlotDuration: 30 * time.Minute,
		Horizon:      30 * 24 * time.Hour,
		BusinessDays: Weekdays(),
		Location:     time.UTC,
	}
}

// Weekdays returns the Monday-Friday business day set.
func Weekdays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday:    true,
		time.Tuesday:   true,
		time.Wednesday: true,
		time.Thursday:  true,
		time.Friday:    true,
	}
}

func (c Calendar) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.UTC
}

// IsBusinessDay reports whether the clinic operates on t's weekday.
func (c Calendar) IsBusinessDay(t time.Time) bool {
	return c.BusinessDays[t.In(c.location()).Weekday()]
}

// OpeningOn returns the opening instant of the calendar day containing t.
func (c Calendar) OpeningOn(t time.Time) time.Time {
	t = t.In(c.location())
	return time.Date(t.Year(), t.Month(), t.Day(), c.OpeningHour, 0, 0, 0, c.location())
}
