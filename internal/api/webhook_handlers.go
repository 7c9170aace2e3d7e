package api

import (
	"io"
	"net/http"
	"strings"

	"streamqueue/internal/metrics"
	"streamqueue/internal/models"
	"streamqueue/internal/webhook"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type webhookResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	EntryID int64  `json:"entry_id,omitempty"`
}

func (s *HTTPServer) handleOrderPaid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.IncWebhook("rejected")
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}

	signature := strings.TrimSpace(r.Header.Get(webhook.HeaderSignature))
	shopDomain := strings.TrimSpace(r.Header.Get(webhook.HeaderShopDomain))

	shop, ok := s.resolveWebhookShop(w, r, rawBody, signature, shopDomain)
	if !ok {
		return
	}

	if shop.QueueClosed {
		metrics.IncWebhook("ignored")
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: webhook.ReasonQueueClosed})
		return
	}

	order, err := webhook.ParseOrder(rawBody)
	if err != nil {
		metrics.IncWebhook("rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sourceOrderID := order.SourceOrderID()
	if sourceOrderID == "" {
		metrics.IncWebhook("ignored")
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: webhook.ReasonMissingOrderID})
		return
	}

	if eligible, reason := s.filter.Evaluate(order); !eligible {
		metrics.IncWebhook("ignored")
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored", Reason: reason})
		return
	}

	var orderNumber *string
	if n := order.DisplayOrderNumber(); n != "" {
		orderNumber = &n
	}

	result, err := s.engine.Enqueue(r.Context(), shop.ID, order.FirstName(), &sourceOrderID, orderNumber)
	if err != nil {
		metrics.IncWebhook("error")
		s.writeCommandError(w, err)
		return
	}

	status := "queued"
	if result.Duplicate {
		status = "duplicate"
	}
	metrics.IncWebhook(status)
	writeJSON(w, http.StatusOK, webhookResponse{Status: status, EntryID: result.EntryID})
}

// resolveWebhookShop finds the sending shop and checks the HMAC signature.
// Lookup is by originating domain first; an unseen domain falls back to
// trying every configured secret and, on a match, adopting the domain for
// future deliveries.
func (s *HTTPServer) resolveWebhookShop(w http.ResponseWriter, r *http.Request, rawBody []byte, signature, shopDomain string) (*models.Shop, bool) {
	if shopDomain != "" {
		shop, err := s.registry.ResolveByDomain(r.Context(), shopDomain)
		if err == nil {
			secret := s.cfg.Webhook.Secrets[shop.Name]
			if !webhook.VerifySignature(rawBody, signature, secret) {
				metrics.IncWebhook("rejected")
				writeError(w, http.StatusUnauthorized, "invalid signature")
				return nil, false
			}
			return shop, true
		}
	}

	for name, secret := range s.cfg.Webhook.Secrets {
		if !webhook.VerifySignature(rawBody, signature, secret) {
			continue
		}
		shop, err := s.registry.ResolveByName(r.Context(), name)
		if err != nil {
			continue
		}
		if shopDomain != "" {
			if err := s.registry.AdoptDomain(r.Context(), shop.ID, shopDomain); err != nil {
				s.logger.Warn().Err(err).Str("shop_id", shop.ID).Msg("adopt shop domain failed")
			}
		}
		return shop, true
	}

	metrics.IncWebhook("rejected")
	if signature == "" {
		writeError(w, http.StatusUnauthorized, "missing signature")
	} else {
		writeError(w, http.StatusNotFound, "unknown shop")
	}
	return nil, false
}
