package sqlactor

import "time"

// Metrics receives pool measurements.
//
// PoolState is called with the pool lock held after every state change, so
// implementations must be fast and must not call back into the pool.
type Metrics interface {
	AcquireDuration(d time.Duration, err error)
	ActorOpened(err error)
	ActorClosed(err error)
	PoolState(s Stats)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) AcquireDuration(time.Duration, error) {}
func (NopMetrics) ActorOpened(error)                    {}
func (NopMetrics) ActorClosed(error)                    {}
func (NopMetrics) PoolState(Stats)                      {}
