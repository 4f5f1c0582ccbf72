package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Pipeline tracks producer and consumer statistics for the activity topic.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	mu sync.RWMutex

	consumers map[string]*ConsumerCounts

	publishedTotal  *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	publishInFlight prometheus.Gauge
	consumedTotal   *prometheus.CounterVec
	poisonedTotal   *prometheus.CounterVec
	batchSize       *prometheus.HistogramVec
	batchDuration   *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// ConsumerCounts holds in-process totals for a consumer group, keyed by
// result state name.
type ConsumerCounts struct {
	Results       map[string]uint64 `json:"results"`
	Batches       uint64            `json:"batches"`
	Poisoned      uint64            `json:"poisoned"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "activityflow",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(subsystem, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "activityflow",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// New creates the collectors. They are not registered until Register is called.
func New(registerer prometheus.Registerer) *Pipeline {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Pipeline{
		consumers:       make(map[string]*ConsumerCounts),
		registerer:      registerer,
		publishedTotal:  newCounterVec("producer", "published_total", "Envelopes handed to the broker, by outcome", []string{"topic", "outcome"}),
		publishDuration: newHistogramVec("producer", "publish_duration_seconds", "Time until the broker confirmed or rejected a publish", prometheus.DefBuckets, []string{"topic"}),
		publishInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "activityflow",
			Subsystem: "producer",
			Name:      "in_flight",
			Help:      "Background publishes awaiting broker confirmation",
		}),
		consumedTotal: newCounterVec("consumer", "messages_total", "Messages handled per consumer group, by the state that decided ack or nack", []string{"consumer", "state"}),
		poisonedTotal: newCounterVec("consumer", "poisoned_total", "Messages copied to a poison or failed-items topic", []string{"consumer"}),
		batchSize:     newHistogramVec("consumer", "batch_size", "Messages per processed batch", []float64{1, 5, 10, 25, 50, 100, 250, 500}, []string{"consumer"}),
		batchDuration: newHistogramVec("consumer", "batch_duration_seconds", "Time spent processing one batch", prometheus.DefBuckets, []string{"consumer"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Pipeline) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.publishedTotal,
		m.publishDuration,
		m.publishInFlight,
		m.consumedTotal,
		m.poisonedTotal,
		m.batchSize,
		m.batchDuration,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Pipeline) PublishStarted() {
	if m == nil {
		return
	}
	m.publishInFlight.Inc()
}

// PublishFinished records the outcome of a publish started with PublishStarted.
func (m *Pipeline) PublishFinished(topic string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.publishInFlight.Dec()
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.publishedTotal.WithLabelValues(topic, outcome).Inc()
	m.publishDuration.WithLabelValues(topic).Observe(took.Seconds())
}

// RecordResult counts one message reaching its final state.
func (m *Pipeline) RecordResult(consumer, state string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.getOrCreateConsumer(consumer)
	counts.Results[state]++
	counts.LastUpdatedAt = time.Now()

	m.consumedTotal.WithLabelValues(consumer, state).Inc()
}

// RecordPoisoned counts messages a consumer handed to a poison or
// failed-items topic.
func (m *Pipeline) RecordPoisoned(consumer string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.getOrCreateConsumer(consumer)
	counts.Poisoned += uint64(n)
	counts.LastUpdatedAt = time.Now()

	m.poisonedTotal.WithLabelValues(consumer).Add(float64(n))
}

func (m *Pipeline) RecordBatch(consumer string, size int, took time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.getOrCreateConsumer(consumer)
	counts.Batches++
	counts.LastUpdatedAt = time.Now()

	m.batchSize.WithLabelValues(consumer).Observe(float64(size))
	m.batchDuration.WithLabelValues(consumer).Observe(took.Seconds())
}

// Consumer returns a copy of the totals for one consumer group.
func (m *Pipeline) Consumer(name string) *ConsumerCounts {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts, ok := m.consumers[name]
	if !ok {
		return nil
	}
	results := make(map[string]uint64, len(counts.Results))
	for k, v := range counts.Results {
		results[k] = v
	}
	return &ConsumerCounts{
		Results:       results,
		Batches:       counts.Batches,
		Poisoned:      counts.Poisoned,
		LastUpdatedAt: counts.LastUpdatedAt,
	}
}

func (m *Pipeline) getOrCreateConsumer(name string) *ConsumerCounts {
	if counts, ok := m.consumers[name]; ok {
		return counts
	}
	counts := &ConsumerCounts{Results: make(map[string]uint64)}
	m.consumers[name] = counts
	return counts
}

// Reset resets all metrics (useful for testing).
func (m *Pipeline) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consumers = make(map[string]*ConsumerCounts)
	m.publishedTotal.Reset()
	m.publishDuration.Reset()
	m.publishInFlight.Set(0)
	m.consumedTotal.Reset()
	m.poisonedTotal.Reset()
	m.batchSize.Reset()
	m.batchDuration.Reset()
}
