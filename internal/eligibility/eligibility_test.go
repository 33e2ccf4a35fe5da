package eligibility

import (
	"reflect"
	"testing"
	"time"

	"wa-cobranzas/internal/portfolio"
)

func day(y int, m time.Month, d int) *portfolio.Day {
	return &portfolio.Day{Year: y, Month: m, Day: d}
}

func sampleClients() []portfolio.Client {
	return []portfolio.Client{
		{ID: "never", Debt: 100, Status: portfolio.StatusActive},
		{ID: "today", Debt: 100, Status: portfolio.StatusActive, LastMessage: day(2026, 10, 14)},
		{ID: "two-days", Debt: 100, Status: portfolio.StatusActive, LastMessage: day(2026, 10, 12)},
		{ID: "paid", Debt: 0, Status: portfolio.StatusPaid},
		{ID: "zero-active", Debt: 0, Status: portfolio.StatusActive},
		{ID: "yesterday", Debt: 50, Status: portfolio.StatusActive, LastMessage: day(2026, 10, 13)},
	}
}

func ids(clients []portfolio.Client) []string {
	out := make([]string, len(clients))
	for i, c := range clients {
		out[i] = c.ID
	}
	return out
}

func TestDueClientsWeekday(t *testing.T) {
	// Wednesday mid-morning.
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	got := ids(DueClients(sampleClients(), now))
	want := []string{"never", "two-days", "yesterday"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDueClientsWeekendIsEmpty(t *testing.T) {
	for _, now := range []time.Time{
		time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	} {
		if got := DueClients(sampleClients(), now); len(got) != 0 {
			t.Fatalf("%s: expected nobody due, got %v", now.Weekday(), ids(got))
		}
	}
}

func TestDueClientsIdempotent(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	clients := sampleClients()
	first := DueClients(clients, now)
	second := DueClients(clients, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %v and %v", ids(first), ids(second))
	}
}

func TestDaysSince(t *testing.T) {
	tests := []struct {
		now  time.Time
		last portfolio.Day
		want int
	}{
		{now: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), last: *day(2026, 10, 14), want: 0},
		{now: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), last: *day(2026, 10, 13), want: 1},
		{now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), last: *day(2026, 10, 14), want: 1},
		{now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), last: *day(2026, 10, 13), want: 2},
		{now: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), last: *day(2026, 10, 20), want: 6},
	}
	for _, tc := range tests {
		if got := DaysSince(tc.now, tc.last); got != tc.want {
			t.Fatalf("%s since %s: expected %d, got %d", tc.now, tc.last, tc.want, got)
		}
	}
}
