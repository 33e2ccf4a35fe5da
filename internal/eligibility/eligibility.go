package eligibility

import (
	"math"
	"time"

	"wa-cobranzas/internal/portfolio"
)

// MinDaysBetweenReminders is the cooldown between reminders to one client.
const MinDaysBetweenReminders = 2

// IsWeekend reports whether t falls on Saturday or Sunday in its location.
func IsWeekend(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}

// DaysSince returns the absolute distance between now and midnight of day,
// in days rounded up.
func DaysSince(now time.Time, day portfolio.Day) int {
	diff := now.Sub(day.Midnight(now.Location()))
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// IsDue reports whether a client should get a reminder at now, ignoring the
// weekend rule.
func IsDue(c portfolio.Client, now time.Time) bool {
	if c.Status != portfolio.StatusActive || c.Debt <= 0 {
		return false
	}
	if c.LastMessage == nil {
		return true
	}
	return DaysSince(now, *c.LastMessage) >= MinDaysBetweenReminders
}

// DueClients filters the clients due for a reminder at now, keeping order.
// Nobody is due on weekends.
func DueClients(clients []portfolio.Client, now time.Time) []portfolio.Client {
	if IsWeekend(now) {
		return nil
	}
	var due []portfolio.Client
	for _, c := range clients {
		if IsDue(c, now) {
			due = append(due, c)
		}
	}
	return due
}
