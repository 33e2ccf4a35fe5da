package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"wa-cobranzas/internal/batch"
	"wa-cobranzas/internal/importer"
	"wa-cobranzas/internal/portfolio"
	"wa-cobranzas/internal/session"

	"github.com/gorilla/mux"
)

const maxUploadBytes = 10 << 20

type errorBody struct {
	Error string `json:"error"`
}

type sessionView struct {
	ID string `json:"id"`
	session.Status
	Notices []session.Notice `json:"notices"`
}

func (s *Server) registerAPI(api *mux.Router) {
	api.HandleFunc("/agents", s.handleAgents).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)

	sess := api.PathPrefix("/sessions/{sid}").Subrouter()
	sess.HandleFunc("", s.handleGetSession).Methods(http.MethodGet)
	sess.HandleFunc("", s.handleCloseSession).Methods(http.MethodDelete)
	sess.HandleFunc("/agent", s.handleSelectAgent).Methods(http.MethodPut)
	sess.HandleFunc("/agent", s.handleSignOut).Methods(http.MethodDelete)
	sess.HandleFunc("/clients", s.handleListClients).Methods(http.MethodGet)
	sess.HandleFunc("/clients", s.handleAddClient).Methods(http.MethodPost)
	sess.HandleFunc("/clients", s.handleClearClients).Methods(http.MethodDelete)
	sess.HandleFunc("/clients/{cid}/payments", s.handleRecordPayment).Methods(http.MethodPost)
	sess.HandleFunc("/clients/{cid}/reminders", s.handleSendReminder).Methods(http.MethodPost)
	sess.HandleFunc("/imports", s.handleImport).Methods(http.MethodPost)
	sess.HandleFunc("/due", s.handleDue).Methods(http.MethodGet)
	sess.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	sess.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPut)
	sess.HandleFunc("/batch", s.handleStartBatch).Methods(http.MethodPost)
	sess.HandleFunc("/batch", s.handleGetBatch).Methods(http.MethodGet)
	sess.HandleFunc("/batch", s.handleCancelBatch).Methods(http.MethodDelete)
	sess.HandleFunc("/batch/send", s.handleBatchSend).Methods(http.MethodPost)
	sess.HandleFunc("/batch/skip", s.handleBatchSkip).Methods(http.MethodPost)
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string][]string{"agents": s.sessions.Agents()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	id, _ := s.sessions.Create()
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	notices := sess.Notices()
	if notices == nil {
		notices = []session.Notice{}
	}
	writeJSON(w, sessionView{ID: mux.Vars(r)["sid"], Status: sess.Status(), Notices: notices})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(mux.Vars(r)["sid"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectAgent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Agent string `json:"agent"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	done := sess.SelectAgent(r.Context(), req.Agent)
	// Roster rejections resolve immediately; anything else is loading.
	select {
	case err := <-done:
		if errors.Is(err, session.ErrUnknownAgent) {
			s.writeError(w, err)
			return
		}
	default:
	}
	writeJSONStatus(w, http.StatusAccepted, sess.Status())
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	clients, err := sess.Clients()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, clientList(clients))
}

func (s *Server) handleAddClient(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var in portfolio.Input
	if !s.decode(w, r, &in) {
		return
	}
	c, err := sess.AddClient(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, c)
}

func (s *Server) handleClearClients(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Clear(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	c, err := sess.RecordPayment(r.Context(), mux.Vars(r)["cid"], req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, c)
}

func (s *Server) handleSendReminder(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.SendReminder(r.Context(), mux.Vars(r)["cid"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var (
		report session.ImportReport
		err    error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("missing upload: %v", ferr)})
			return
		}
		defer file.Close()
		report, err = sess.Import(r.Context(), header.Filename, file)
	} else {
		var req struct {
			Text string `json:"text"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		report, err = sess.ImportText(r.Context(), req.Text)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleDue(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	due, err := sess.Due()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, clientList(due))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	history, err := sess.History()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, clientList(history))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var settings session.Settings
	if !s.decode(w, r, &settings) {
		return
	}
	updated, err := sess.UpdateSettings(r.Context(), settings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, updated)
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	view, err := sess.StartBatch()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, view)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, sess.Batch())
}

func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.CancelBatch()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBatchSend(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := sess.BatchSend(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleBatchSkip(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	view, err := sess.BatchSkip()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(mux.Vars(r)["sid"])
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid json body: %v", err)})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("http").Inc()
		}
	}
	writeJSONStatus(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, portfolio.ErrClientNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrLoading),
		errors.Is(err, session.ErrNoAgent),
		errors.Is(err, batch.ErrNothingDue),
		errors.Is(err, batch.ErrNotPresenting),
		errors.Is(err, batch.ErrCoolingDown):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnknownAgent),
		errors.Is(err, session.ErrNoValidRows),
		errors.Is(err, portfolio.ErrMissingFields),
		errors.Is(err, portfolio.ErrInvalidAmount),
		errors.Is(err, portfolio.ErrNoClientSelected),
		errors.Is(err, importer.ErrSpreadsheet):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clientList keeps empty results as [] rather than null.
func clientList(clients []portfolio.Client) []portfolio.Client {
	if clients == nil {
		return []portfolio.Client{}
	}
	return clients
}
