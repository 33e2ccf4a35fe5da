package dunning

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"wa-cobranzas/internal/portfolio"
)

const (
	placeholderPending = "cuotas pendientes"
	placeholderNoDebt  = "sin deuda"

	// maxOwedMonths bounds the narrative; larger or infinite ratios name the
	// most recent three years only.
	maxOwedMonths = 36

	countryCode = "593"

	DefaultEndpoint = "https://api.whatsapp.com/send"
)

var monthNames = [12]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

const (
	iconSmallDiamond = "\U0001F539"
	iconMoneyBag     = "\U0001F4B0"
	iconCalendar     = "\U0001F4C5"
)

// OwedMonths names the months covered by the debt, oldest first, counting
// back from the given month.
func OwedMonths(debt, installment float64, current time.Month) string {
	if installment <= 0 || math.IsNaN(installment) {
		return placeholderPending
	}
	ratio := math.Ceil(debt / installment)
	if math.IsNaN(ratio) || ratio <= 0 {
		return placeholderNoDebt
	}
	count := maxOwedMonths
	if ratio < maxOwedMonths {
		count = int(ratio)
	}
	months := make([]string, count)
	for i := 0; i < count; i++ {
		idx := ((int(current)-1-i)%12 + 12) % 12
		months[count-1-i] = monthNames[idx]
	}
	if count == 1 {
		return months[0]
	}
	return strings.Join(months[:count-1], ", ") + " y " + months[count-1]
}

// Greeting picks the salutation for the hour of day.
func Greeting(hour int) string {
	switch {
	case hour < 12:
		return "Buenos días"
	case hour < 18:
		return "Buenas tardes"
	default:
		return "Buenas noches"
	}
}

// Letter holds everything the reminder template needs.
type Letter struct {
	Greeting    string
	AgentName   string
	CompanyName string
	Client      portfolio.Client
	OwedMonths  string
}

// ComposeMessage renders the reminder body.
func ComposeMessage(l Letter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s. Esperando que se encuentre muy bien.\n", l.Greeting, l.Client.Name)
	fmt.Fprintf(&b, "Le saluda %s del área de cartera %s.\n", l.AgentName, l.CompanyName)
	b.WriteString("Le escribo para recordarle sus pagos pendientes:\n\n")
	fmt.Fprintf(&b, "%s Valor de Cuota: $%.2f\n", iconSmallDiamond, l.Client.InstallmentValue)
	fmt.Fprintf(&b, "%s Total a Pagar: $%.2f\n", iconMoneyBag, l.Client.Debt)
	fmt.Fprintf(&b, "%s Correspondiente a: %s\n\n", iconCalendar, l.OwedMonths)
	b.WriteString("Agradecemos que una vez efectuado el pago nos comparta su comprobante por este medio.")
	return b.String()
}

// WhatsAppAddress converts a local Ecuadorian number into international form.
// Numbers that are neither zero-prefixed nor nine digits pass through.
func WhatsAppAddress(phone string) string {
	digits := portfolio.DigitsOnly(phone)
	switch {
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	case len(digits) == 9:
		return countryCode + digits
	default:
		return digits
	}
}

// DispatchURL builds the click-to-chat link for an address and body.
func DispatchURL(endpoint, address, body string) string {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	text := strings.ReplaceAll(url.QueryEscape(body), "+", "%20")
	return endpoint + "?phone=" + url.QueryEscape(address) + "&text=" + text
}
