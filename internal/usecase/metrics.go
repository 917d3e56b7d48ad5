package usecase

import "time"

// Metrics receives pipeline counters. internal/platform/metrics implements it.
type Metrics interface {
	ObserveIngestion(game, outcome string)
	ObserveCycle(kind string, duration time.Duration, failed bool)
	IncCoalesced(kind string)
	ObserveDelivery(channel, status string)
	AddPruned(store string, count int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveIngestion(string, string)          {}
func (noopMetrics) ObserveCycle(string, time.Duration, bool) {}
func (noopMetrics) IncCoalesced(string)                      {}
func (noopMetrics) ObserveDelivery(string, string)           {}
func (noopMetrics) AddPruned(string, int64)                  {}

func NewNoopMetrics() Metrics {
	return noopMetrics{}
}
