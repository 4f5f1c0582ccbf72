package runtime

import (
	"net/http"

	"github.com/drblury/activityflow/internal/runtime/jsoncodec"
	metricspkg "github.com/drblury/activityflow/internal/runtime/metrics"
)

// ConsumerStatus is one entry of the /api/consumers listing.
type ConsumerStatus struct {
	ConsumerInfo
	Counts *metricspkg.ConsumerCounts `json:"counts,omitempty"`
}

// ConsumerStatuses pairs every registered consumer with its in-process totals.
func (s *Service) ConsumerStatuses() []ConsumerStatus {
	consumers := s.Consumers()
	statuses := make([]ConsumerStatus, len(consumers))
	for i, info := range consumers {
		statuses[i] = ConsumerStatus{ConsumerInfo: info, Counts: s.Metrics.Consumer(info.Name)}
	}
	return statuses
}

func (s *Service) consumersHandler() http.Handler {
	return http.HandlerFunc(s.handleGetConsumers)
}

func (s *Service) handleGetConsumers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(s.ConsumerStatuses())
	if err != nil {
		s.Logger.Error("Failed to encode consumers", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
