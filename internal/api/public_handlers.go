package api

import (
	"net/http"
	"strings"
	"time"

	"streamqueue/internal/models"
)

// Polling budget per client for the unauthenticated overlay endpoint. The
// overlay polls once every few seconds; anything past this is abuse.
const (
	publicRateLimit  = 30
	publicRateWindow = 10 * time.Second
)

type publicEntry struct {
	FirstName string `json:"first_name"`
}

// publicState is the reduced view the overlay polls. Only first names leave
// the server; order numbers and source ids stay internal.
type publicState struct {
	Active       *publicEntry    `json:"active"`
	Waiting      []publicEntry   `json:"waiting"`
	TotalWaiting int             `json:"total_waiting"`
	QueueClosed  bool            `json:"queue_closed"`
	Branding     models.Branding `json:"branding"`
}

func (s *HTTPServer) handlePublicState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("shop"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "shop is required")
		return
	}

	if s.cache != nil {
		allowed, err := s.cache.CheckRateLimit(r.Context(), "public:"+clientKey(r), publicRateLimit, publicRateWindow)
		if err == nil && !allowed {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	shop, err := s.registry.ResolveByName(r.Context(), name)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	state := s.cachedState(r, shop.ID)
	if state == nil {
		state, err = s.engine.State(r.Context(), shop.ID)
		if err != nil {
			s.writeCommandError(w, err)
			return
		}
		if s.cache != nil {
			if err := s.cache.SetState(r.Context(), shop.ID, state); err != nil {
				s.logger.Debug().Err(err).Str("shop_id", shop.ID).Msg("state cache write failed")
			}
		}
	}

	resp := publicState{
		Waiting:      make([]publicEntry, 0, len(state.Waiting)),
		TotalWaiting: state.TotalWaiting,
		QueueClosed:  shop.QueueClosed,
		Branding:     shop.Branding,
	}
	if state.Active != nil {
		resp.Active = &publicEntry{FirstName: state.Active.FirstName}
	}
	for _, entry := range state.Waiting {
		resp.Waiting = append(resp.Waiting, publicEntry{FirstName: entry.FirstName})
	}

	writeJSON(w, http.StatusOK, resp)
}

// cachedState reads through the overlay cache; any cache failure degrades to
// a direct DB read.
func (s *HTTPServer) cachedState(r *http.Request, shopID string) *models.QueueState {
	if s.cache == nil {
		return nil
	}
	state, err := s.cache.GetState(r.Context(), shopID)
	if err != nil {
		s.logger.Debug().Err(err).Str("shop_id", shopID).Msg("state cache read failed")
		return nil
	}
	return state
}
