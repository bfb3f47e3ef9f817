package sqlactor

// Stats is a snapshot of a pool's bookkeeping.
type Stats struct {
	Name     string
	MaxConns int
	// Open counts actors that exist or are being created.
	Open    int
	Idle    int
	InUse   int
	Waiting int
	Closing bool
}

// Stats returns the current state of p.
func (p *Pool[R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool[R]) statsLocked() Stats {
	return Stats{
		Name:     p.conf.Name,
		MaxConns: p.conf.MaxConns,
		Open:     p.count,
		Idle:     len(p.idle),
		InUse:    p.inUse,
		Waiting:  p.waiters.Len(),
		Closing:  p.closing,
	}
}

func (p *Pool[R]) reportLocked() {
	p.metrics.PoolState(p.statsLocked())
}
