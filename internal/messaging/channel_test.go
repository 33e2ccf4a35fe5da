package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeSender struct {
	connected bool
	err       error
	sent      []string
}

func (f *fakeSender) SendToNumber(_ context.Context, number, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, number+":"+text)
	return nil
}

func (f *fakeSender) Connected() bool { return f.connected }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLinkChannel(t *testing.T) {
	res, err := LinkChannel{}.Dispatch(context.Background(), "593963098362", "Hola Ana")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Delivered || res.Via != ViaLink {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.URL != "https://api.whatsapp.com/send?phone=593963098362&text=Hola%20Ana" {
		t.Fatalf("unexpected url %s", res.URL)
	}
	if _, err := (LinkChannel{}).Dispatch(context.Background(), "", "x"); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("expected ErrNoAddress, got %v", err)
	}
}

func TestFallbackChannelUsesPrimary(t *testing.T) {
	sender := &fakeSender{connected: true}
	ch := NewFallbackChannel(sender, "", nil, discardLogger())

	res, err := ch.Dispatch(context.Background(), "593963098362", "Hola")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !res.Delivered || res.Via != ViaWhatsApp {
		t.Fatalf("expected delivery through whatsapp, got %+v", res)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "593963098362:Hola" {
		t.Fatalf("unexpected sends: %v", sender.sent)
	}
}

func TestFallbackChannelDegradesToLink(t *testing.T) {
	tests := []struct {
		name   string
		sender *fakeSender
	}{
		{name: "disconnected", sender: &fakeSender{connected: false}},
		{name: "send error", sender: &fakeSender{connected: true, err: errors.New("boom")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ch := NewFallbackChannel(tc.sender, "https://wa.example/send", nil, discardLogger())
			res, err := ch.Dispatch(context.Background(), "593963098362", "Hola")
			if err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if res.Delivered || res.Via != ViaLink {
				t.Fatalf("expected link fallback, got %+v", res)
			}
			if !strings.HasPrefix(res.URL, "https://wa.example/send?phone=593963098362") {
				t.Fatalf("unexpected url %s", res.URL)
			}
		})
	}
}
