package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("c-%d", n)
	}
}

func newTestPortfolio() *Portfolio {
	p := New(nil)
	p.newID = sequentialIDs()
	return p
}

func TestAddStripsPhoneAndDefaults(t *testing.T) {
	p := newTestPortfolio()
	c, err := p.Add(Input{Name: " Juan Perez ", Phone: "099-123 4567", Debt: 150, InstallmentValue: 50})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if c.Phone != "0991234567" {
		t.Fatalf("expected digits-only phone, got %q", c.Phone)
	}
	if c.Name != "Juan Perez" {
		t.Fatalf("expected trimmed name, got %q", c.Name)
	}
	if c.Status != StatusActive || c.MessageCount != 0 || c.LastMessage != nil {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.ID == "" {
		t.Fatal("expected id")
	}
}

func TestAddRejectsMissingFields(t *testing.T) {
	p := newTestPortfolio()
	if _, err := p.Add(Input{Name: "", Phone: "0991234567", Debt: 10}); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if _, err := p.Add(Input{Name: "Ana", Phone: "abc", Debt: 10}); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields for phone without digits, got %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("expected empty portfolio, got %d", p.Len())
	}
}

func TestDefaultIDsAreUnique(t *testing.T) {
	p := New(nil)
	inputs := make([]Input, 500)
	for i := range inputs {
		inputs[i] = Input{Name: "Cliente", Phone: "0991234567", Debt: 10, InstallmentValue: 5}
	}
	if n := p.BulkInsert(inputs); n != len(inputs) {
		t.Fatalf("expected %d inserted, got %d", len(inputs), n)
	}
	seen := map[string]bool{}
	for _, c := range p.Clients() {
		if seen[c.ID] {
			t.Fatalf("duplicate id %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestRecordPayment(t *testing.T) {
	tests := []struct {
		name       string
		debt       float64
		amount     float64
		wantDebt   float64
		wantStatus Status
	}{
		{name: "partial", debt: 150, amount: 50, wantDebt: 100, wantStatus: StatusActive},
		{name: "exact", debt: 150, amount: 150, wantDebt: 0, wantStatus: StatusPaid},
		{name: "overpay clamps", debt: 150, amount: 200, wantDebt: 0, wantStatus: StatusPaid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPortfolio()
			c, _ := p.Add(Input{Name: "Juan", Phone: "0991234567", Debt: tc.debt, InstallmentValue: 50})
			got, err := p.RecordPayment(c.ID, tc.amount)
			if err != nil {
				t.Fatalf("record payment: %v", err)
			}
			if got.Debt != tc.wantDebt {
				t.Fatalf("expected debt %.2f, got %.2f", tc.wantDebt, got.Debt)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, got.Status)
			}
		})
	}
}

func TestRecordPaymentFailures(t *testing.T) {
	p := newTestPortfolio()
	c, _ := p.Add(Input{Name: "Juan", Phone: "0991234567", Debt: 100, InstallmentValue: 50})

	if _, err := p.RecordPayment("", 10); !errors.Is(err, ErrNoClientSelected) {
		t.Fatalf("expected ErrNoClientSelected, got %v", err)
	}
	if _, err := p.RecordPayment("missing", 10); !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
	if _, err := p.RecordPayment(c.ID, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	got, _ := p.Get(c.ID)
	if got.Debt != 100 {
		t.Fatalf("expected debt untouched, got %.2f", got.Debt)
	}
}

func TestRecordMessageSent(t *testing.T) {
	p := newTestPortfolio()
	c, _ := p.Add(Input{Name: "Juan", Phone: "0991234567", Debt: 100, InstallmentValue: 50})
	day := Day{Year: 2026, Month: 10, Day: 14}

	for i := 1; i <= 2; i++ {
		got, err := p.RecordMessageSent(c.ID, day)
		if err != nil {
			t.Fatalf("record message: %v", err)
		}
		if got.MessageCount != i {
			t.Fatalf("expected count %d, got %d", i, got.MessageCount)
		}
	}
	got, _ := p.Get(c.ID)
	if got.LastMessage == nil || *got.LastMessage != day {
		t.Fatalf("expected last message %s, got %v", day, got.LastMessage)
	}
}

func TestHistoryOrdersByMostRecent(t *testing.T) {
	p := newTestPortfolio()
	a, _ := p.Add(Input{Name: "A", Phone: "1", Debt: 1})
	b, _ := p.Add(Input{Name: "B", Phone: "2", Debt: 1})
	_, _ = p.Add(Input{Name: "C", Phone: "3", Debt: 1})

	_, _ = p.RecordMessageSent(a.ID, Day{Year: 2026, Month: 9, Day: 1})
	_, _ = p.RecordMessageSent(b.ID, Day{Year: 2026, Month: 10, Day: 1})

	history := p.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 contacted clients, got %d", len(history))
	}
	if history[0].Name != "B" || history[1].Name != "A" {
		t.Fatalf("unexpected order: %s, %s", history[0].Name, history[1].Name)
	}
}

func TestSummarize(t *testing.T) {
	p := newTestPortfolio()
	a, _ := p.Add(Input{Name: "A", Phone: "1", Debt: 100, InstallmentValue: 50})
	_, _ = p.Add(Input{Name: "B", Phone: "2", Debt: 40, InstallmentValue: 20})
	_, _ = p.RecordPayment(a.ID, 100)

	s := p.Summarize()
	if s.Clients != 2 || s.Paid != 1 || s.ActiveDebt != 40 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestClientJSONShape(t *testing.T) {
	raw := `[{"id":"1","name":"Ana","phone":"0991","debt":20,"installmentValue":10,"lastMessage":"2026-10-13T00:00:00.000Z","status":"active","messageCount":2},
	{"id":"2","name":"Luis","phone":"0992","debt":0,"installmentValue":10,"lastMessage":null,"status":"paid","messageCount":0}]`
	var clients []Client
	if err := json.Unmarshal([]byte(raw), &clients); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if clients[0].LastMessage == nil || clients[0].LastMessage.String() != "2026-10-13" {
		t.Fatalf("expected parsed last message, got %v", clients[0].LastMessage)
	}
	if clients[1].LastMessage != nil {
		t.Fatalf("expected nil last message, got %v", clients[1].LastMessage)
	}

	out, err := json.Marshal(clients[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"1","name":"Ana","phone":"0991","debt":20,"installmentValue":10,"lastMessage":"2026-10-13","status":"active","messageCount":2}`
	if string(out) != want {
		t.Fatalf("expected %s, got %s", want, out)
	}
}

func TestClientNumericIDs(t *testing.T) {
	raw := `[{"id":1700000000000,"name":"Ana","phone":"0991","debt":20,"installmentValue":10,"lastMessage":null,"status":"active","messageCount":0},
	{"id":1700000000001.123,"name":"Luis","phone":"0992","debt":30,"installmentValue":10,"lastMessage":"2026-10-13","status":"active","messageCount":1}]`
	var clients []Client
	if err := json.Unmarshal([]byte(raw), &clients); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if clients[0].ID != "1700000000000" || clients[1].ID != "1700000000001.123" {
		t.Fatalf("unexpected ids %q, %q", clients[0].ID, clients[1].ID)
	}
	if clients[1].Name != "Luis" || clients[1].MessageCount != 1 || clients[1].LastMessage.String() != "2026-10-13" {
		t.Fatalf("expected remaining fields decoded, got %+v", clients[1])
	}

	var bad Client
	if err := json.Unmarshal([]byte(`{"id":true,"name":"X"}`), &bad); err == nil {
		t.Fatal("expected error for boolean id")
	}
}
