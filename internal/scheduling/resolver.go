package scheduling

import "time"

// Interval is a half-open [Start, End) span of clinic time occupied by a
// scheduled appointment.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Back-to-back
// intervals (one ending exactly where the other starts) do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Resolution is the outcome of a slot search. LowConfidence is set when the
// search horizon was exhausted and the fallback instant was returned; callers
// decide whether to persist such a booking.
type Resolution struct {
	Time          time.Time
	LowConfidence bool
}

// Resolve finds the earliest bookable slot at or after the preferred instant.
//
// The preferred instant may be in the past or derived from malformed input;
// anything at or before now is replaced with now plus one slot. The instant
// is then rounded up to the next slot boundary, moved onto a business day,
// and walked forward slot by slot until a candidate inside business hours is
// strictly after now and free of conflicts. If the horizon is exhausted the
// fallback (horizon end plus one day) is returned with LowConfidence set.
func (c Calendar) Resolve(preferred, now time.Time, busy []Interval) Resolution {
	loc := c.location()
	now = now.In(loc)

	candidate := preferred.In(loc)
	if !candidate.After(now) {
		candidate = now.Add(c.SlotDuration)
	}
	candidate = c.roundUpToSlot(candidate)

	for !c.IsBusinessDay(candidate) {
		candidate = c.OpeningOn(candidate.AddDate(0, 0, 1))
	}

	limit := now.Add(c.Horizon)
	for candidate.Before(limit) {
		if candidate.Hour() >= c.ClosingHour {
			candidate = c.nextBusinessOpening(candidate)
			continue
		}
		if candidate.Hour() >= c.OpeningHour && candidate.After(now) && c.IsBusinessDay(candidate) && !c.conflicts(candidate, busy) {
			return Resolution{Time: candidate}
		}
		candidate = candidate.Add(c.SlotDuration)
	}

	return Resolution{Time: limit.AddDate(0, 0, 1), LowConfidence: true}
}

// roundUpToSlot zeroes the second and sub-second parts and bumps the minute
// up to the next multiple of the slot duration.
func (c Calendar) roundUpToSlot(t time.Time) time.Time {
	t = t.Truncate(time.Minute)
	step := int(c.SlotDuration / time.Minute)
	if step <= 0 {
		return t
	}
	if rem := t.Minute() % step; rem != 0 {
		t = t.Add(time.Duration(step-rem) * time.Minute)
	}
	return t
}

func (c Calendar) nextBusinessOpening(t time.Time) time.Time {
	t = c.OpeningOn(t.AddDate(0, 0, 1))
	for !c.IsBusinessDay(t) {
		t = c.OpeningOn(t.AddDate(0, 0, 1))
	}
	return t
}

func (c Calendar) conflicts(start time.Time, busy []Interval) bool {
	slot := Interval{Start: start, End: start.Add(c.SlotDuration)}
	for _, iv := range busy {
		if slot.Overlaps(iv) {
			return true
		}
	}
	return false
}
