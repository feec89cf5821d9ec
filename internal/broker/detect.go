package broker

import (
	"strings"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

// Detect identifies the schema that produced a header row. A schema matches when all of
// its required columns are present; the match with the most required columns wins and
// ties go to the broker name that sorts first. Detect never fails: unknown headers
// return model.BrokerUnknown.
func (r *Registry) Detect(headers []string) model.Broker {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = struct{}{}
	}

	best, bestSize := model.BrokerUnknown, 0
	for _, s := range r.schemas {
		if len(s.Required) == 0 || !containsAll(present, s.Required) {
			continue
		}
		// schemas are kept in name order, so a strict comparison keeps the first on ties.
		if len(s.Required) > bestSize {
			best, bestSize = s.Broker, len(s.Required)
		}
	}
	return best
}

func containsAll(present map[string]struct{}, required []string) bool {
	for _, h := range required {
		if _, ok := present[h]; !ok {
			return false
		}
	}
	return true
}
