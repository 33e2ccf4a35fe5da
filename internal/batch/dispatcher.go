package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wa-cobranzas/internal/dunning"
	"wa-cobranzas/internal/eligibility"
	"wa-cobranzas/internal/messaging"
	"wa-cobranzas/internal/metrics"
	"wa-cobranzas/internal/portfolio"
)

// DefaultCooldown is the pause enforced after every send in a round.
const DefaultCooldown = 60 * time.Second

var (
	ErrNothingDue    = errors.New("no clients due for a reminder")
	ErrNotPresenting = errors.New("batch is not presenting a client")
	ErrCoolingDown   = errors.New("batch is cooling down")
)

// State is the phase of a batch round.
type State int

const (
	Idle State = iota
	Presenting
	Cooling
	Finished
)

func (s State) String() string {
	switch s {
	case Presenting:
		return "presenting"
	case Cooling:
		return "cooling"
	case Finished:
		return "finished"
	default:
		return "idle"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name; unknown names read as Idle.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "presenting":
		*s = Presenting
	case "cooling":
		*s = Cooling
	case "finished":
		*s = Finished
	default:
		*s = Idle
	}
	return nil
}

// Recorder stores that a reminder went out. It is called from Send with the
// caller's locks still held.
type Recorder interface {
	RecordMessageSent(clientID string, day portfolio.Day) (portfolio.Client, error)
}

// Ticker is a source of one-second ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the wall-clock TickerFunc.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Config wires the dispatcher's collaborators.
type Config struct {
	Channel  messaging.Channel
	Recorder Recorder
	Cooldown time.Duration
	// NewTicker drives the cooldown; nil leaves ticking to explicit Tick calls.
	NewTicker TickerFunc
	// FinishDelay closes a finished round back to idle; zero keeps it finished.
	FinishDelay time.Duration
	// OnFinish runs outside the dispatcher lock when a round completes.
	OnFinish func(run uint64)
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// View is a snapshot of the round for display.
type View struct {
	Run       uint64            `json:"run"`
	State     State             `json:"state"`
	Index     int               `json:"index"`
	Total     int               `json:"total"`
	Remaining int               `json:"remainingSeconds"`
	Client    *portfolio.Client `json:"client,omitempty"`
	Draft     *dunning.Draft    `json:"draft,omitempty"`
}

// Outcome reports a send performed by the round.
type Outcome struct {
	Client portfolio.Client `json:"client"`
	Draft  dunning.Draft    `json:"draft"`
	Result messaging.Result `json:"result"`
}

// Dispatcher walks the due list one client at a time, pausing after each
// send. The due list is snapshotted at Start and never re-filtered.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	run       uint64
	state     State
	index     int
	remaining int
	due       []portfolio.Client
	composer  dunning.Composer
	stopTick  chan struct{}
}

// New builds an idle dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{cfg: cfg, logger: logger.With("component", "batch")}
}

// Start snapshots the clients due at the composer's current time and
// presents the first one. It returns the run number.
func (d *Dispatcher) Start(clients []portfolio.Client, composer dunning.Composer) (uint64, error) {
	due := eligibility.DueClients(clients, composer.Clock())

	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	if len(due) == 0 {
		return 0, ErrNothingDue
	}
	d.due = due
	d.composer = composer
	d.state = Presenting
	d.event("start")
	d.logger.Info("batch round started", "run", d.run, "due", len(due), "agent", composer.AgentName)
	return d.run, nil
}

// Current returns the round's state with the presented client and preview.
func (d *Dispatcher) Current() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := View{
		Run:       d.run,
		State:     d.state,
		Index:     d.index,
		Total:     len(d.due),
		Remaining: d.remaining,
	}
	if (d.state == Presenting || d.state == Cooling) && d.index < len(d.due) {
		client := d.due[d.index]
		draft := d.composer.Compose(client)
		v.Client = &client
		v.Draft = &draft
	}
	return v
}

// Send dispatches the presented client's reminder and starts the cooldown.
func (d *Dispatcher) Send(ctx context.Context) (Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Presenting:
	case Cooling:
		return Outcome{}, ErrCoolingDown
	default:
		return Outcome{}, ErrNotPresenting
	}

	client := d.due[d.index]
	draft := d.composer.Compose(client)
	res, err := d.cfg.Channel.Dispatch(ctx, draft.Address, draft.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("dispatch reminder: %w", err)
	}
	out := Outcome{Client: client, Draft: draft, Result: res}

	d.enterCoolingLocked()
	d.event("send")

	updated, err := d.cfg.Recorder.RecordMessageSent(client.ID, portfolio.DayOf(d.composer.Clock()))
	if err != nil {
		return out, fmt.Errorf("record reminder: %w", err)
	}
	out.Client = updated
	return out, nil
}

// Skip moves to the next client without sending; the last client stays put.
func (d *Dispatcher) Skip() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Presenting {
		if d.state == Cooling {
			return ErrCoolingDown
		}
		return ErrNotPresenting
	}
	if d.index < len(d.due)-1 {
		d.index++
	}
	d.event("skip")
	return nil
}

// Tick consumes one second of cooldown.
func (d *Dispatcher) Tick() {
	d.mu.Lock()
	run := d.run
	d.mu.Unlock()
	d.tick(run)
}

// Cancel abandons the round from any state. Sends already made stay recorded.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Idle {
		d.event("cancel")
	}
	d.resetLocked()
}

// tick returns whether the ticker should keep running.
func (d *Dispatcher) tick(run uint64) bool {
	d.mu.Lock()
	if d.run != run || d.state != Cooling {
		d.mu.Unlock()
		return false
	}
	d.remaining--
	if d.remaining > 0 {
		d.mu.Unlock()
		return true
	}

	d.stopTickerLocked()
	if d.index < len(d.due)-1 {
		d.index++
		d.state = Presenting
		d.mu.Unlock()
		return false
	}

	d.state = Finished
	d.event("finish")
	d.logger.Info("batch round finished", "run", run, "total", len(d.due))
	if d.cfg.FinishDelay > 0 {
		time.AfterFunc(d.cfg.FinishDelay, func() { d.closeFinished(run) })
	}
	d.mu.Unlock()

	if d.cfg.OnFinish != nil {
		d.cfg.OnFinish(run)
	}
	return false
}

func (d *Dispatcher) closeFinished(run uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.run == run && d.state == Finished {
		d.resetLocked()
	}
}

func (d *Dispatcher) enterCoolingLocked() {
	d.state = Cooling
	d.remaining = int(d.cfg.Cooldown / time.Second)
	if d.remaining < 1 {
		d.remaining = 1
	}
	if d.cfg.NewTicker == nil {
		return
	}
	d.stopTickerLocked()
	stop := make(chan struct{})
	d.stopTick = stop
	go d.runTicker(d.run, d.cfg.NewTicker(time.Second), stop)
}

func (d *Dispatcher) runTicker(run uint64, t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if !d.tick(run) {
				return
			}
		}
	}
}

func (d *Dispatcher) stopTickerLocked() {
	if d.stopTick != nil {
		close(d.stopTick)
		d.stopTick = nil
	}
}

// resetLocked returns to idle and invalidates any ticker of the previous run.
func (d *Dispatcher) resetLocked() {
	d.stopTickerLocked()
	d.run++
	d.state = Idle
	d.index = 0
	d.remaining = 0
	d.due = nil
}

func (d *Dispatcher) event(name string) {
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.BatchEvents.WithLabelValues(name).Inc()
	}
}
