package webhook

import "strings"

// Ignore reasons reported back to the sender.
const (
	ReasonNotEligible    = "not_eligible"
	ReasonExcluded       = "excluded_product"
	ReasonMissingOrderID = "missing_order_id"
	ReasonQueueClosed    = "queue_closed"
)

// Filter decides whether an order belongs in the unboxing queue based on its
// shipping line titles.
type Filter struct {
	includeKeywords []string
	excludeKeywords []string
}

// NewFilter builds a filter from keyword lists; matching is case-insensitive
// substring matching. Empty include list means nothing is eligible.
func NewFilter(include, exclude []string) *Filter {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, kw := range in {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				out = append(out, kw)
			}
		}
		return out
	}
	return &Filter{includeKeywords: lower(include), excludeKeywords: lower(exclude)}
}

// Evaluate reports whether the order is eligible; reason is set when not.
func (f *Filter) Evaluate(order *Order) (bool, string) {
	titles := order.ShippingTitles()

	included := false
	for _, title := range titles {
		lowered := strings.ToLower(title)
		for _, kw := range f.excludeKeywords {
			if strings.Contains(lowered, kw) {
				return false, ReasonExcluded
			}
		}
		for _, kw := range f.includeKeywords {
			if strings.Contains(lowered, kw) {
				included = true
			}
		}
	}
	if !included {
		return false, ReasonNotEligible
	}
	return true, ""
}
