package dunning

import (
	"time"

	"wa-cobranzas/internal/portfolio"
)

// Draft is a composed reminder ready to be dispatched.
type Draft struct {
	Address string `json:"address"`
	Body    string `json:"body"`
	URL     string `json:"url"`
}

// Composer renders reminders on behalf of one agent.
type Composer struct {
	AgentName   string
	CompanyName string
	Endpoint    string
	Location    *time.Location
	Now         func() time.Time
}

// Clock returns the current time in the composer's location.
func (c Composer) Clock() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if c.Location != nil {
		return now().In(c.Location)
	}
	return now()
}

// Compose builds the reminder for a client at the composer's current time.
func (c Composer) Compose(client portfolio.Client) Draft {
	now := c.Clock()
	body := ComposeMessage(Letter{
		Greeting:    Greeting(now.Hour()),
		AgentName:   c.AgentName,
		CompanyName: c.CompanyName,
		Client:      client,
		OwedMonths:  OwedMonths(client.Debt, client.InstallmentValue, now.Month()),
	})
	address := WhatsAppAddress(client.Phone)
	return Draft{
		Address: address,
		Body:    body,
		URL:     DispatchURL(c.Endpoint, address, body),
	}
}
