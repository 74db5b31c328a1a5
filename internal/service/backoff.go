package service

import "time"

// Sending window: reminders are never dispatched at night in the
// organization's local time.
const (
	sendWindowOpenHour  = 8
	sendWindowCloseHour = 20
)

// retryDelays is the backoff sequence indexed by the attempt that just
// failed: 15 minutes after the first, 45 after the second, 2 hours after the
// third. There is no fourth retry.
var retryDelays = []time.Duration{
	15 * time.Minute,
	45 * time.Minute,
	2 * time.Hour,
}

// NextRetryAt computes when a transiently failed item becomes due again.
// attempt is the attempt number that just failed (1-based). The second return
// is false when the attempt cap is exhausted. The instant is clamped into the
// sending window of loc.
func NextRetryAt(attempt int, now time.Time, loc *time.Location) (time.Time, bool) {
	if attempt < 1 || attempt > len(retryDelays) {
		return time.Time{}, false
	}
	return clampToSendingWindow(now.Add(retryDelays[attempt-1]), loc), true
}

// clampToSendingWindow pushes an instant outside 08:00-20:00 local time
// forward to the next window-open instant.
func clampToSendingWindow(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}

	local := t.In(loc)
	hour := local.Hour()
	if hour >= sendWindowOpenHour && hour < sendWindowCloseHour {
		return t
	}

	day := local
	if hour >= sendWindowCloseHour {
		day = day.AddDate(0, 0, 1)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), sendWindowOpenHour, 0, 0, 0, loc)
}
