package dunning

import (
	"math"
	"net/url"
	"strings"
	"testing"
	"time"

	"wa-cobranzas/internal/portfolio"
)

func TestOwedMonths(t *testing.T) {
	tests := []struct {
		name        string
		debt        float64
		installment float64
		month       time.Month
		want        string
	}{
		{name: "wraps year", debt: 150, installment: 50, month: time.January, want: "Noviembre, Diciembre y Enero"},
		{name: "single month", debt: 20, installment: 50, month: time.October, want: "Octubre"},
		{name: "two months", debt: 100, installment: 50, month: time.March, want: "Febrero y Marzo"},
		{name: "ceil partial", debt: 101, installment: 50, month: time.June, want: "Abril, Mayo y Junio"},
		{name: "no installment", debt: 100, installment: 0, month: time.June, want: "cuotas pendientes"},
		{name: "no debt", debt: 0, installment: 50, month: time.June, want: "sin deuda"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := OwedMonths(tc.debt, tc.installment, tc.month); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestOwedMonthsCountMatchesCeil(t *testing.T) {
	for count := 1; count <= 30; count++ {
		got := OwedMonths(float64(count)*12.5-1, 12.5, time.February)
		names := strings.Split(strings.Replace(got, " y ", ", ", 1), ", ")
		if len(names) != count {
			t.Fatalf("count %d: expected %d names, got %d (%q)", count, count, len(names), got)
		}
		if names[len(names)-1] != "Febrero" {
			t.Fatalf("count %d: expected current month last, got %q", count, names[len(names)-1])
		}
	}
}

func TestOwedMonthsBoundsHugeRatios(t *testing.T) {
	tests := []struct {
		name        string
		debt        float64
		installment float64
	}{
		{name: "infinite ratio", debt: 1e300, installment: 1e-300},
		{name: "huge finite ratio", debt: 1e10, installment: 1},
		{name: "infinite debt", debt: math.Inf(1), installment: 25},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := OwedMonths(tc.debt, tc.installment, time.March)
			names := strings.Split(strings.Replace(got, " y ", ", ", 1), ", ")
			if len(names) != maxOwedMonths {
				t.Fatalf("expected %d names, got %d (%q)", maxOwedMonths, len(names), got)
			}
			if names[len(names)-1] != "Marzo" {
				t.Fatalf("expected current month last, got %q", names[len(names)-1])
			}
		})
	}
}

func TestComposeSurvivesHugeDebt(t *testing.T) {
	c := Composer{AgentName: "Jordy Cruz", CompanyName: "Auto Club", Location: time.UTC, Now: func() time.Time {
		return time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	}}
	draft := c.Compose(portfolio.Client{Name: "Ana", Phone: "0991234567", Debt: 1e300, InstallmentValue: 1e-300})
	if !strings.Contains(draft.Body, "Octubre") {
		t.Fatalf("expected bounded month list in body, got %q", draft.Body)
	}
}

func TestGreeting(t *testing.T) {
	tests := map[int]string{0: "Buenos días", 11: "Buenos días", 12: "Buenas tardes", 17: "Buenas tardes", 18: "Buenas noches", 23: "Buenas noches"}
	for hour, want := range tests {
		if got := Greeting(hour); got != want {
			t.Fatalf("hour %d: expected %q, got %q", hour, want, got)
		}
	}
}

func TestWhatsAppAddress(t *testing.T) {
	tests := map[string]string{
		"0963098362":       "593963098362",
		"963098362":        "593963098362",
		"59312345678":      "59312345678",
		"+593 96-309-8362": "593963098362",
		"12345":            "12345",
	}
	for in, want := range tests {
		if got := WhatsAppAddress(in); got != want {
			t.Fatalf("address %q: expected %q, got %q", in, want, got)
		}
	}
}

func TestComposeMessage(t *testing.T) {
	body := ComposeMessage(Letter{
		Greeting:    "Buenas tardes",
		AgentName:   "Jordy Cruz",
		CompanyName: "Auto Club",
		Client:      portfolio.Client{Name: "Juan Perez", Debt: 150, InstallmentValue: 50},
		OwedMonths:  "Agosto, Septiembre y Octubre",
	})
	for _, want := range []string{
		"Buenas tardes Juan Perez.",
		"Le saluda Jordy Cruz del área de cartera Auto Club.",
		"\U0001F539 Valor de Cuota: $50.00",
		"\U0001F4B0 Total a Pagar: $150.00",
		"\U0001F4C5 Correspondiente a: Agosto, Septiembre y Octubre",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %q, got:\n%s", want, body)
		}
	}
}

func TestComposerDraft(t *testing.T) {
	loc := time.FixedZone("ECT", -5*60*60)
	c := Composer{
		AgentName:   "Gianella Baux",
		CompanyName: "Auto Club",
		Location:    loc,
		Now:         func() time.Time { return time.Date(2026, 1, 14, 20, 0, 0, 0, time.UTC) },
	}
	d := c.Compose(portfolio.Client{Name: "Ana", Phone: "0963098362", Debt: 60, InstallmentValue: 20})

	if d.Address != "593963098362" {
		t.Fatalf("expected internationalised address, got %s", d.Address)
	}
	if !strings.HasPrefix(d.Body, "Buenas tardes Ana.") {
		t.Fatalf("expected local-time greeting, got %q", d.Body[:30])
	}
	if !strings.Contains(d.Body, "Noviembre, Diciembre y Enero") {
		t.Fatalf("expected owed months in body, got:\n%s", d.Body)
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "api.whatsapp.com" || u.Query().Get("phone") != "593963098362" {
		t.Fatalf("unexpected url %s", d.URL)
	}
	if u.Query().Get("text") != d.Body {
		t.Fatal("expected text parameter to round-trip the body")
	}
	if strings.Contains(d.URL, "+") {
		t.Fatal("expected spaces encoded as %20")
	}
}
