package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wa-cobranzas/internal/batch"
	"wa-cobranzas/internal/dunning"
	"wa-cobranzas/internal/eligibility"
	"wa-cobranzas/internal/importer"
	"wa-cobranzas/internal/messaging"
	"wa-cobranzas/internal/metrics"
	"wa-cobranzas/internal/portfolio"
	"wa-cobranzas/internal/repo"
)

var (
	ErrUnknownAgent = errors.New("agent is not on the roster")
	ErrNoAgent      = errors.New("no agent selected")
	ErrLoading      = errors.New("agent profile is still loading")
	ErrStaleLoad    = errors.New("load superseded by a newer agent selection")
	ErrNoValidRows  = errors.New("no valid rows to import")
)

// Level classifies a notice shown to the operator.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-facing notification queued by an operation.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Settings are the per-agent preferences.
type Settings struct {
	SenderNumber string `json:"senderNumber"`
}

// Status describes the session for the dashboard.
type Status struct {
	Agent    string            `json:"agent"`
	Loading  bool              `json:"loading"`
	Loaded   bool              `json:"loaded"`
	Settings Settings          `json:"settings"`
	Summary  portfolio.Summary `json:"summary"`
}

// ImportReport counts what an import did.
type ImportReport struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Dropped  int `json:"dropped"`
	Skipped  int `json:"skipped"`
}

// Options configures sessions; the Manager shares one Options across them.
type Options struct {
	Store               repo.Store
	Channel             messaging.Channel
	Agents              []string
	CompanyName         string
	Endpoint            string
	DefaultSenderNumber string
	Location            *time.Location
	Now                 func() time.Time
	Cooldown            time.Duration
	FinishDelay         time.Duration
	NewTicker           batch.TickerFunc
	Metrics             *metrics.Metrics
	Logger              *slog.Logger
}

// Session is one operator's working context: the selected agent, that
// agent's portfolio and settings, and the batch round in progress.
type Session struct {
	opts   Options
	logger *slog.Logger
	batch  *batch.Dispatcher

	mu        sync.Mutex
	agent     string
	epoch     uint64
	loading   bool
	loaded    bool
	portfolio *portfolio.Portfolio
	settings  Settings
	batchRun  uint64
	notices   []Notice
}

// New creates a session with no agent selected.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Session{
		opts:      opts,
		logger:    opts.Logger.With("component", "session"),
		portfolio: portfolio.New(nil),
	}
	s.batch = batch.New(batch.Config{
		Channel:     opts.Channel,
		Recorder:    sentRecorder{s: s},
		Cooldown:    opts.Cooldown,
		NewTicker:   opts.NewTicker,
		FinishDelay: opts.FinishDelay,
		OnFinish:    s.batchFinished,
		Metrics:     opts.Metrics,
		Logger:      opts.Logger,
	})
	return s
}

// SelectAgent switches the session to agent and loads its data in the
// background. The returned channel yields the load result once; a load
// overtaken by a later selection yields ErrStaleLoad and changes nothing.
func (s *Session) SelectAgent(ctx context.Context, agent string) <-chan error {
	done := make(chan error, 1)
	agent = strings.TrimSpace(agent)
	if !s.onRoster(agent) {
		done <- ErrUnknownAgent
		close(done)
		return done
	}

	s.mu.Lock()
	s.cancelBatchLocked()
	s.epoch++
	epoch := s.epoch
	s.agent = agent
	s.loading = true
	s.loaded = false
	s.portfolio = portfolio.New(nil)
	s.settings = Settings{}
	s.notices = nil
	s.mu.Unlock()

	s.logger.Info("agent selected", "agent", agent, "epoch", epoch)
	loadCtx := context.WithoutCancel(ctx)
	go func() {
		done <- s.load(loadCtx, epoch, agent)
		close(done)
	}()
	return done
}

// SignOut drops the agent and all in-memory state.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelBatchLocked()
	s.epoch++
	s.agent = ""
	s.loading = false
	s.loaded = false
	s.portfolio = portfolio.New(nil)
	s.settings = Settings{}
	s.notices = nil
}

// Close releases the session's timers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelBatchLocked()
}

func (s *Session) load(ctx context.Context, epoch uint64, agent string) error {
	clients, clientsErr := s.readClients(ctx, agent)
	settings, settingsErr := s.readSettings(ctx, agent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.logger.Debug("discarding stale load", "agent", agent, "epoch", epoch)
		return ErrStaleLoad
	}
	s.loading = false
	if err := errors.Join(clientsErr, settingsErr); err != nil {
		s.logger.Error("failed loading agent profile", "agent", agent, "error", err)
		s.countError()
		s.noticeLocked(LevelError, "No se pudo cargar el perfil.")
		return err
	}
	s.portfolio = portfolio.New(clients)
	s.settings = settings
	s.loaded = true
	s.logger.Info("agent profile loaded", "agent", agent, "clients", len(clients))
	return nil
}

func (s *Session) readClients(ctx context.Context, agent string) ([]portfolio.Client, error) {
	data, found, err := s.opts.Store.Get(ctx, DataKey(agent))
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}
	if !found {
		return nil, nil
	}
	var clients []portfolio.Client
	if err := json.Unmarshal(data, &clients); err != nil {
		s.logger.Warn("stored portfolio is corrupt, starting empty", "agent", agent, "error", err)
		return nil, nil
	}
	return clients, nil
}

func (s *Session) readSettings(ctx context.Context, agent string) (Settings, error) {
	defaults := Settings{SenderNumber: s.opts.DefaultSenderNumber}
	data, found, err := s.opts.Store.Get(ctx, SettingsKey(agent))
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if !found {
		return defaults, nil
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		s.logger.Warn("stored settings are corrupt, using defaults", "agent", agent, "error", err)
		return defaults, nil
	}
	return settings, nil
}

// Status reports the agent, load state, settings and dashboard totals.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Agent:    s.agent,
		Loading:  s.loading,
		Loaded:   s.loaded,
		Settings: s.settings,
	}
	if s.loaded {
		st.Summary = s.summaryLocked()
	}
	return st
}

// Notices drains the queued notifications.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

// Clients lists the portfolio in insertion order.
func (s *Session) Clients() ([]portfolio.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return nil, err
	}
	return s.portfolio.Clients(), nil
}

// Due lists the clients eligible for a reminder right now.
func (s *Session) Due() ([]portfolio.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return nil, err
	}
	return eligibility.DueClients(s.portfolio.Clients(), s.nowLocked()), nil
}

// History lists contacted clients, most recent first.
func (s *Session) History() ([]portfolio.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return nil, err
	}
	return s.portfolio.History(), nil
}

// AddClient appends a manually entered client.
func (s *Session) AddClient(ctx context.Context, in portfolio.Input) (portfolio.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return portfolio.Client{}, err
	}
	c, err := s.portfolio.Add(in)
	if err != nil {
		return portfolio.Client{}, err
	}
	if err := s.savePortfolioLocked(ctx); err != nil {
		return c, err
	}
	s.noticeLocked(LevelSuccess, fmt.Sprintf("Cliente agregado a la lista de %s.", firstName(s.agent)))
	return c, nil
}

// RecordPayment applies a payment to a client.
func (s *Session) RecordPayment(ctx context.Context, clientID string, amount float64) (portfolio.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return portfolio.Client{}, err
	}
	c, err := s.portfolio.RecordPayment(clientID, amount)
	if err != nil {
		return portfolio.Client{}, err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.Payments.WithLabelValues(string(c.Status)).Inc()
	}
	if err := s.savePortfolioLocked(ctx); err != nil {
		return c, err
	}
	s.noticeLocked(LevelSuccess, "Pago registrado.")
	return c, nil
}

// Import decodes an uploaded file and appends its valid rows.
func (s *Session) Import(ctx context.Context, name string, r io.Reader) (ImportReport, error) {
	rows, err := importer.ReadFile(name, r)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.countError()
		if errors.Is(err, importer.ErrSpreadsheet) {
			s.noticeLocked(LevelError, "Error al leer archivo Excel.")
		} else {
			s.noticeLocked(LevelError, "No se pudo leer el archivo.")
		}
		return ImportReport{}, err
	}
	return s.importRows(ctx, rows)
}

// ImportText appends the valid rows of pasted text.
func (s *Session) ImportText(ctx context.Context, text string) (ImportReport, error) {
	return s.importRows(ctx, importer.TextRows(text))
}

func (s *Session) importRows(ctx context.Context, rows [][]string) (ImportReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return ImportReport{}, err
	}

	res := importer.Normalize(rows)
	report := ImportReport{
		Accepted: s.portfolio.BulkInsert(res.Inputs),
		Rejected: res.Rejected,
		Dropped:  res.Dropped,
		Skipped:  res.Skipped,
	}
	if m := s.opts.Metrics; m != nil {
		m.ImportRows.WithLabelValues("accepted").Add(float64(report.Accepted))
		m.ImportRows.WithLabelValues("rejected").Add(float64(report.Rejected))
		m.ImportRows.WithLabelValues("dropped").Add(float64(report.Dropped))
	}
	s.logger.Info("import processed", "agent", s.agent, "accepted", report.Accepted, "rejected", report.Rejected, "dropped", report.Dropped)

	if report.Accepted == 0 {
		s.noticeLocked(LevelError, "No se encontraron datos válidos.")
		return report, ErrNoValidRows
	}
	if err := s.savePortfolioLocked(ctx); err != nil {
		return report, err
	}
	s.noticeLocked(LevelSuccess, fmt.Sprintf("Se importaron %d clientes al perfil de %s.", report.Accepted, s.agent))
	if report.Rejected > 0 {
		s.noticeLocked(LevelWarning, fmt.Sprintf("%d filas con datos inválidos fueron omitidas.", report.Rejected))
	}
	return report, nil
}

// Clear empties the agent's portfolio. Other agents are untouched.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}
	s.cancelBatchLocked()
	s.portfolio.Clear()
	if err := s.savePortfolioLocked(ctx); err != nil {
		return err
	}
	s.logger.Info("portfolio cleared", "agent", s.agent)
	s.noticeLocked(LevelSuccess, "Tu base de datos personal ha sido limpiada.")
	return nil
}

// UpdateSettings replaces the agent's settings.
func (s *Session) UpdateSettings(ctx context.Context, settings Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Settings{}, err
	}
	settings.SenderNumber = strings.TrimSpace(settings.SenderNumber)
	s.settings = settings
	data, err := json.Marshal(s.settings)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.opts.Store.Set(ctx, SettingsKey(s.agent), data); err != nil {
		s.countError()
		return s.settings, fmt.Errorf("save settings: %w", err)
	}
	return s.settings, nil
}

// SendReminder dispatches one client's reminder outside of a batch round.
func (s *Session) SendReminder(ctx context.Context, clientID string) (batch.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return batch.Outcome{}, err
	}
	client, ok := s.portfolio.Get(clientID)
	if !ok {
		return batch.Outcome{}, portfolio.ErrClientNotFound
	}
	composer := s.composerLocked()
	draft := composer.Compose(client)
	res, err := s.opts.Channel.Dispatch(ctx, draft.Address, draft.Body)
	if err != nil {
		s.countError()
		return batch.Outcome{}, fmt.Errorf("dispatch reminder: %w", err)
	}
	updated, err := s.portfolio.RecordMessageSent(client.ID, portfolio.DayOf(composer.Clock()))
	if err != nil {
		return batch.Outcome{}, err
	}
	out := batch.Outcome{Client: updated, Draft: draft, Result: res}
	if err := s.savePortfolioLocked(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// StartBatch begins a round over the clients due now.
func (s *Session) StartBatch() (batch.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return batch.View{}, err
	}
	run, err := s.batch.Start(s.portfolio.Clients(), s.composerLocked())
	if err != nil {
		return batch.View{}, err
	}
	s.batchRun = run
	return s.batch.Current(), nil
}

// Batch returns the current round.
func (s *Session) Batch() batch.View {
	return s.batch.Current()
}

// BatchSend sends the presented client's reminder and starts the cooldown.
func (s *Session) BatchSend(ctx context.Context) (batch.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return batch.Outcome{}, err
	}
	out, err := s.batch.Send(ctx)
	if err != nil {
		if !errors.Is(err, batch.ErrCoolingDown) && !errors.Is(err, batch.ErrNotPresenting) {
			s.countError()
		}
		return out, err
	}
	if err := s.savePortfolioLocked(ctx); err != nil {
		return out, err
	}
	return out, nil
}

// BatchSkip moves past the presented client without sending.
func (s *Session) BatchSkip() (batch.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return batch.View{}, err
	}
	if err := s.batch.Skip(); err != nil {
		return batch.View{}, err
	}
	return s.batch.Current(), nil
}

// CancelBatch abandons the round; reminders already sent stay recorded.
func (s *Session) CancelBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelBatchLocked()
}

func (s *Session) batchFinished(run uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run != s.batchRun {
		return
	}
	s.batchRun = 0
	s.noticeLocked(LevelSuccess, "Recorrido finalizado.")
}

func (s *Session) cancelBatchLocked() {
	s.batch.Cancel()
	s.batchRun = 0
}

// sentRecorder lets the batch dispatcher mark sends on the live portfolio.
// It runs inside BatchSend, which already holds the session lock.
type sentRecorder struct{ s *Session }

func (r sentRecorder) RecordMessageSent(clientID string, day portfolio.Day) (portfolio.Client, error) {
	return r.s.portfolio.RecordMessageSent(clientID, day)
}

func (s *Session) readyLocked() error {
	switch {
	case s.loading:
		return ErrLoading
	case !s.loaded || s.agent == "":
		return ErrNoAgent
	default:
		return nil
	}
}

// savePortfolioLocked writes the portfolio; it never runs before the agent's
// data has finished loading.
func (s *Session) savePortfolioLocked(ctx context.Context) error {
	if s.loading || !s.loaded {
		return nil
	}
	data, err := json.Marshal(s.portfolio.Clients())
	if err != nil {
		return fmt.Errorf("encode portfolio: %w", err)
	}
	if err := s.opts.Store.Set(ctx, DataKey(s.agent), data); err != nil {
		s.countError()
		s.logger.Error("failed saving portfolio", "agent", s.agent, "error", err)
		return fmt.Errorf("save portfolio: %w", err)
	}
	return nil
}

func (s *Session) summaryLocked() portfolio.Summary {
	sum := s.portfolio.Summarize()
	sum.DueToday = len(eligibility.DueClients(s.portfolio.Clients(), s.nowLocked()))
	return sum
}

func (s *Session) composerLocked() dunning.Composer {
	return dunning.Composer{
		AgentName:   s.agent,
		CompanyName: s.opts.CompanyName,
		Endpoint:    s.opts.Endpoint,
		Location:    s.opts.Location,
		Now:         s.opts.Now,
	}
}

func (s *Session) nowLocked() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

func (s *Session) noticeLocked(level Level, msg string) {
	s.notices = append(s.notices, Notice{Level: level, Message: msg})
}

func (s *Session) countError() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.Errors.WithLabelValues("session").Inc()
	}
}

func (s *Session) onRoster(agent string) bool {
	for _, a := range s.opts.Agents {
		if a == agent {
			return true
		}
	}
	return false
}

func firstName(agent string) string {
	if fields := strings.Fields(agent); len(fields) > 0 {
		return fields[0]
	}
	return agent
}
