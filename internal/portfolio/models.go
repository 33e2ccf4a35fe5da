package portfolio

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the collection state of a client.
type Status string

const (
	StatusActive Status = "active"
	StatusPaid   Status = "paid"
)

const dayLayout = "2006-01-02"

// Day is a calendar date without time of day.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses YYYY-MM-DD, falling back to RFC 3339 timestamps.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dayLayout, s); err == nil {
		return DayOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Midnight returns the start of the day in loc.
func (d Day) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON encodes the day as "YYYY-MM-DD".
func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" or a full RFC 3339 timestamp.
func (d *Day) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("day: %w", err)
	}
	parsed, err := ParseDay(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Client is a debtor tracked in an agent's portfolio.
type Client struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Phone            string  `json:"phone"`
	Debt             float64 `json:"debt"`
	InstallmentValue float64 `json:"installmentValue"`
	LastMessage      *Day    `json:"lastMessage"`
	Status           Status  `json:"status"`
	MessageCount     int     `json:"messageCount"`
}

// UnmarshalJSON accepts the id as a string or as a JSON number; records
// saved by the browser app carry numeric timestamp ids.
func (c *Client) UnmarshalJSON(data []byte) error {
	type plain Client
	aux := struct {
		*plain
		ID json.RawMessage `json:"id"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := decodeID(aux.ID)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("client id: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("client id: %w", err)
	}
	return n.String(), nil
}

// Input carries the fields needed to create a client.
type Input struct {
	Name             string  `json:"name"`
	Phone            string  `json:"phone"`
	Debt             float64 `json:"debt"`
	InstallmentValue float64 `json:"installmentValue"`
}

// Summary aggregates dashboard figures for a portfolio.
type Summary struct {
	Clients    int     `json:"clients"`
	ActiveDebt float64 `json:"activeDebt"`
	DueToday   int     `json:"dueToday"`
	Paid       int     `json:"paid"`
	Contacted  int     `json:"contacted"`
}
