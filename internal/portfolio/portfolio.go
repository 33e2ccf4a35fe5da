package portfolio

import (
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

var (
	ErrMissingFields    = errors.New("name and phone are required")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrClientNotFound   = errors.New("client not found")
	ErrNoClientSelected = errors.New("no client selected")
)

// Portfolio is the in-memory client list of one agent. It is not safe for
// concurrent use; the owning session serialises access.
type Portfolio struct {
	clients []Client
	newID   func() string
}

// New wraps an existing client list, keeping its order.
func New(clients []Client) *Portfolio {
	p := &Portfolio{newID: uuid.NewString}
	p.clients = append(p.clients, clients...)
	return p
}

// Clients returns a copy of the clients in insertion order.
func (p *Portfolio) Clients() []Client {
	out := make([]Client, len(p.clients))
	copy(out, p.clients)
	return out
}

// Len returns the number of clients.
func (p *Portfolio) Len() int {
	return len(p.clients)
}

// Get returns the client with the given id.
func (p *Portfolio) Get(id string) (Client, bool) {
	idx := p.indexOf(id)
	if idx < 0 {
		return Client{}, false
	}
	return p.clients[idx], true
}

// Add validates the input and appends a new active client.
func (p *Portfolio) Add(in Input) (Client, error) {
	c, err := p.build(in)
	if err != nil {
		return Client{}, err
	}
	p.clients = append(p.clients, c)
	return c, nil
}

// BulkInsert appends every valid input in order and returns how many were added.
func (p *Portfolio) BulkInsert(inputs []Input) int {
	added := 0
	for _, in := range inputs {
		if _, err := p.Add(in); err != nil {
			continue
		}
		added++
	}
	return added
}

// RecordPayment subtracts amount from the client's debt.
func (p *Portfolio) RecordPayment(id string, amount float64) (Client, error) {
	if id == "" {
		return Client{}, ErrNoClientSelected
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return Client{}, ErrInvalidAmount
	}
	idx := p.indexOf(id)
	if idx < 0 {
		return Client{}, ErrClientNotFound
	}
	c := &p.clients[idx]
	c.setDebt(c.Debt - amount)
	return *c, nil
}

// RecordMessageSent stamps the reminder day and bumps the message counter.
func (p *Portfolio) RecordMessageSent(id string, day Day) (Client, error) {
	idx := p.indexOf(id)
	if idx < 0 {
		return Client{}, ErrClientNotFound
	}
	c := &p.clients[idx]
	sent := day
	c.LastMessage = &sent
	c.MessageCount++
	return *c, nil
}

// Clear drops every client.
func (p *Portfolio) Clear() {
	p.clients = nil
}

// History lists contacted clients, most recent reminder first.
func (p *Portfolio) History() []Client {
	var out []Client
	for _, c := range p.clients {
		if c.MessageCount > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return b.Before(*a)
		}
	})
	return out
}

// Summarize computes dashboard totals. DueToday is left for the caller.
func (p *Portfolio) Summarize() Summary {
	s := Summary{Clients: len(p.clients)}
	for _, c := range p.clients {
		switch c.Status {
		case StatusActive:
			s.ActiveDebt += c.Debt
		case StatusPaid:
			s.Paid++
		}
		if c.MessageCount > 0 {
			s.Contacted++
		}
	}
	return s
}

func (p *Portfolio) build(in Input) (Client, error) {
	name := strings.TrimSpace(in.Name)
	phone := DigitsOnly(in.Phone)
	if name == "" || phone == "" {
		return Client{}, ErrMissingFields
	}
	if !validAmount(in.Debt) || !validAmount(in.InstallmentValue) {
		return Client{}, ErrInvalidAmount
	}
	c := Client{
		ID:               p.newID(),
		Name:             name,
		Phone:            phone,
		InstallmentValue: in.InstallmentValue,
	}
	c.setDebt(in.Debt)
	return c, nil
}

func (p *Portfolio) indexOf(id string) int {
	for i := range p.clients {
		if p.clients[i].ID == id {
			return i
		}
	}
	return -1
}

// setDebt is the only writer of Debt and Status: debt never goes negative
// and a client is paid exactly when nothing is owed.
func (c *Client) setDebt(debt float64) {
	if debt <= 0 {
		c.Debt = 0
		c.Status = StatusPaid
		return
	}
	c.Debt = debt
	c.Status = StatusActive
}

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
