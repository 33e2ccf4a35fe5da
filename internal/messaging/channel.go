package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wa-cobranzas/internal/dunning"
	"wa-cobranzas/internal/metrics"
)

const (
	ViaLink     = "link"
	ViaWhatsApp = "whatsapp"
)

// ErrNoAddress is returned when a reminder has nowhere to go.
var ErrNoAddress = errors.New("empty destination address")

// Result describes how a reminder left the system. URL is always set so the
// caller can open the chat manually when nothing was delivered.
type Result struct {
	URL       string `json:"url"`
	Via       string `json:"via"`
	Delivered bool   `json:"delivered"`
}

// Channel dispatches a reminder body to a WhatsApp address.
type Channel interface {
	Dispatch(ctx context.Context, address, body string) (Result, error)
}

// Sender delivers text directly to a phone number.
type Sender interface {
	SendToNumber(ctx context.Context, number, text string) error
	Connected() bool
}

// LinkChannel only builds the click-to-chat link; the operator's browser opens it.
type LinkChannel struct {
	Endpoint string
	Metrics  *metrics.Metrics
}

// Dispatch returns the link for the address and body.
func (l LinkChannel) Dispatch(_ context.Context, address, body string) (Result, error) {
	if address == "" {
		return Result{}, ErrNoAddress
	}
	if l.Metrics != nil {
		l.Metrics.RemindersDispatched.WithLabelValues(ViaLink).Inc()
	}
	return Result{URL: dunning.DispatchURL(l.Endpoint, address, body), Via: ViaLink}, nil
}

// FallbackChannel sends through the primary sender and degrades to the link
// when it is disconnected or fails.
type FallbackChannel struct {
	primary Sender
	link    LinkChannel
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFallbackChannel wires a primary sender in front of a link channel.
func NewFallbackChannel(primary Sender, endpoint string, metricRegistry *metrics.Metrics, logger *slog.Logger) *FallbackChannel {
	return &FallbackChannel{
		primary: primary,
		link:    LinkChannel{Endpoint: endpoint, Metrics: metricRegistry},
		logger:  logger.With("component", "messaging"),
		metrics: metricRegistry,
	}
}

// Dispatch implements Channel.
func (f *FallbackChannel) Dispatch(ctx context.Context, address, body string) (Result, error) {
	if address == "" {
		return Result{}, ErrNoAddress
	}
	if f.primary != nil && f.primary.Connected() {
		err := f.primary.SendToNumber(ctx, address, body)
		if err == nil {
			if f.metrics != nil {
				f.metrics.RemindersDispatched.WithLabelValues(ViaWhatsApp).Inc()
			}
			return Result{URL: dunning.DispatchURL(f.link.Endpoint, address, body), Via: ViaWhatsApp, Delivered: true}, nil
		}
		f.logger.Warn("primary send failed, falling back to link", "address", address, "error", err)
		if f.metrics != nil {
			f.metrics.Errors.WithLabelValues("messaging").Inc()
		}
	}
	res, err := f.link.Dispatch(ctx, address, body)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch link: %w", err)
	}
	return res, nil
}
