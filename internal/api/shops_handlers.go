package api

import (
	"net/http"
	"strings"

	"streamqueue/internal/models"
)

func (s *HTTPServer) handleShops(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shops, err := s.registry.List(r.Context())
		if err != nil {
			s.writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shops": shops})

	case http.MethodPost:
		var body struct {
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		shop, err := s.registry.Create(r.Context(), body.Name, body.DisplayName)
		if err != nil {
			s.writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, shop)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleShopDelete(w http.ResponseWriter, r *http.Request) {
	shopID, ok := s.shopFromBody(w, r)
	if !ok {
		return
	}

	if err := s.registry.Delete(r.Context(), shopID); err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *HTTPServer) handleToggleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ShopID string `json:"shop_id"`
		Closed bool   `json:"closed"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.ShopID) == "" {
		writeError(w, http.StatusBadRequest, "shop_id is required")
		return
	}

	if err := s.registry.SetQueueClosed(r.Context(), body.ShopID, body.Closed); err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queue_closed": body.Closed})
}

func (s *HTTPServer) handleBranding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ShopID string `json:"shop_id"`
		models.BrandingUpdate
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.ShopID) == "" {
		writeError(w, http.StatusBadRequest, "shop_id is required")
		return
	}

	if err := s.registry.UpdateBranding(r.Context(), body.ShopID, body.BrandingUpdate); err != nil {
		s.writeCommandError(w, err)
		return
	}

	shop, err := s.registry.Get(r.Context(), body.ShopID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}
