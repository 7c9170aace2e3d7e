package api

import (
	"net/http"
	"strings"

	"streamqueue/internal/metrics"
)

type shopRequest struct {
	ShopID string `json:"shop_id"`
}

func (s *HTTPServer) shopFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return "", false
	}
	var body shopRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if strings.TrimSpace(body.ShopID) == "" {
		writeError(w, http.StatusBadRequest, "shop_id is required")
		return "", false
	}
	return body.ShopID, true
}

func (s *HTTPServer) handleAdvance(w http.ResponseWriter, r *http.Request) {
	shopID, ok := s.shopFromBody(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Advance(r.Context(), shopID)
	if err != nil {
		metrics.IncCommand("advance", "error")
		s.writeCommandError(w, err)
		return
	}
	metrics.IncCommand("advance", "ok")
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSkip(w http.ResponseWriter, r *http.Request) {
	shopID, ok := s.shopFromBody(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Skip(r.Context(), shopID)
	if err != nil {
		metrics.IncCommand("skip", "error")
		s.writeCommandError(w, err)
		return
	}
	metrics.IncCommand("skip", "ok")
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	shopID, ok := s.shopFromBody(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Reset(r.Context(), shopID)
	if err != nil {
		metrics.IncCommand("reset", "error")
		s.writeCommandError(w, err)
		return
	}
	metrics.IncCommand("reset", "ok")
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ShopID    string `json:"shop_id"`
		FirstName string `json:"first_name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.FirstName = strings.TrimSpace(body.FirstName)
	if body.ShopID == "" || body.FirstName == "" {
		writeError(w, http.StatusBadRequest, "shop_id and first_name are required")
		return
	}

	// Manual entries carry no source order, so they are never deduplicated.
	result, err := s.engine.Enqueue(r.Context(), body.ShopID, body.FirstName, nil, nil)
	if err != nil {
		metrics.IncCommand("add", "error")
		s.writeCommandError(w, err)
		return
	}
	metrics.IncCommand("add", "ok")
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ShopID  string `json:"shop_id"`
		EntryID int64  `json:"entry_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ShopID == "" || body.EntryID == 0 {
		writeError(w, http.StatusBadRequest, "shop_id and entry_id are required")
		return
	}

	result, err := s.engine.Remove(r.Context(), body.ShopID, body.EntryID)
	if err != nil {
		metrics.IncCommand("remove", "error")
		s.writeCommandError(w, err)
		return
	}
	metrics.IncCommand("remove", "ok")
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleUndo(w http.ResponseWriter, r *http.Request) {
	shopID, ok := s.shopFromBody(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Undo(r.Context(), shopID)
	if err != nil {
		metrics.IncCommand("undo", "error")
		s.writeCommandError(w, err)
		return
	}
	metrics.IncCommand("undo", "ok")
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		writeError(w, http.StatusBadRequest, "shop_id is required")
		return
	}

	if _, err := s.registry.Get(r.Context(), shopID); err != nil {
		s.writeCommandError(w, err)
		return
	}

	state, err := s.engine.State(r.Context(), shopID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
