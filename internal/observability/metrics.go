package observability

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Metrics provides basic in-memory counters for the relay engine.
type Metrics struct {
	mu               sync.Mutex
	eventCount       map[string]int64
	relayCount       map[string]int64
	deliveryFailures int64
	errorCount       map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		eventCount: make(map[string]int64),
		relayCount: make(map[string]int64),
		errorCount: make(map[string]int64),
	}
}

// RecordEvent counts one processed inbound event by classification.
func (m *Metrics) RecordEvent(class string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventCount[class]++
}

// RecordRelay counts one relay attempt by content kind and outcome.
func (m *Metrics) RecordRelay(kind string, delivered bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relayCount[kind]++
	if !delivered {
		m.deliveryFailures++
	}
}

// RecordError increments error counters by domain error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[path+"|"+method+"|"+code]++
}

// Snapshot returns a copy of the counters for the health endpoint.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.eventCount)+len(m.relayCount)+1)
	for k, v := range m.eventCount {
		out["events|"+k] = v
	}
	for k, v := range m.relayCount {
		out["relays|"+k] = v
	}
	out["delivery_failures"] = m.deliveryFailures
	return out
}

// RequestLogger logs each HTTP request with latency and status.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}
