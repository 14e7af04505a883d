package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"chat-relay/internal/history"
	"chat-relay/internal/relay"
	"chat-relay/internal/storage"
	"chat-relay/internal/zapadapter"

	"go.uber.org/zap"
)

// Relay posts raw message payloads
type Relay interface {
	Post(ctx context.Context, raw []byte) (storage.Message, error)
}

// History reads bounded message history
type History interface {
	ParseFilter(raw []byte) (history.Filter, error)
	FetchAll(ctx context.Context, f history.Filter) ([]storage.Message, error)
}

type status struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
}

type handler struct {
	logger  *zap.SugaredLogger
	relay   Relay
	history History
}

// status handles HTTP requests on "/status" endpoint
func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, r, http.StatusOK, status{Code: http.StatusOK, Status: "healthy"})
}

// sendMessage handles HTTP requests on "/send-message" endpoint
func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Can not read request body", http.StatusBadRequest)
		return
	}

	m, err := h.relay.Post(r.Context(), body)
	if err != nil {
		if relay.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		zapadapter.With(r.Context(), h.logger).Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, r, http.StatusOK, m)
}

// getMessages handles HTTP requests on "/get-messages" endpoint
func (h *handler) getMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Can not read request body", http.StatusBadRequest)
		return
	}

	f, err := h.history.ParseFilter(body)
	if err != nil {
		if history.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		zapadapter.With(r.Context(), h.logger).Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	messages, err := h.history.FetchAll(r.Context(), f)
	if err != nil {
		zapadapter.With(r.Context(), h.logger).Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, r, http.StatusOK, messages)
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		zapadapter.With(r.Context(), h.logger).Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(payload); err != nil {
		zapadapter.With(r.Context(), h.logger).Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}
