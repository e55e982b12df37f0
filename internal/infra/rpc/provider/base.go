package provider

import (
	"slices"
	"sync"
	"time"
)

// outcomeWindow is how many recent calls decide availability.
const outcomeWindow = 20

// OperationStats tallies the calls of one API operation.
type OperationStats struct {
	Calls       int
	Failures    int
	AvgLatency  time.Duration
	LastFailure string
}

// BaseProvider tracks per-operation outcomes and projects the API refused.
// Refused projects do not count against availability: they say nothing
// about the API itself.
type BaseProvider struct {
	Name string

	mu           sync.RWMutex
	operations   map[string]*opTally
	inaccessible map[string]time.Time
	recent       []bool // true for a failure, oldest first
	lastSuccess  time.Time
	lastFailure  time.Time

	Monitor *ProviderMonitor
}

type opTally struct {
	stats        OperationStats
	totalLatency time.Duration
}

// NewBaseProvider creates a new BaseProvider.
func NewBaseProvider(name string) *BaseProvider {
	return &BaseProvider{
		Name:         name,
		operations:   make(map[string]*opTally),
		inaccessible: make(map[string]time.Time),
		Monitor:      NewProviderMonitor(),
	}
}

// GetName returns the provider's name.
func (p *BaseProvider) GetName() string {
	return p.Name
}

// GetHealth returns a snapshot of the provider's health.
func (p *BaseProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h := HealthStatus{
		Available:     p.availableLocked(),
		ErrorRate:     p.errorRateLocked(),
		LastSuccessAt: p.lastSuccess,
		LastFailureAt: p.lastFailure,
		Operations:    make(map[string]OperationStats, len(p.operations)),
	}

	var calls int
	var total time.Duration
	for name, t := range p.operations {
		h.Operations[name] = t.stats
		successes := t.stats.Calls - t.stats.Failures
		calls += successes
		total += t.totalLatency
	}
	if calls > 0 {
		h.Latency = total / time.Duration(calls)
	}

	for project := range p.inaccessible {
		h.InaccessibleProjects = append(h.InaccessibleProjects, project)
	}
	slices.Sort(h.InaccessibleProjects)

	stats := p.Monitor.GetStats()
	h.MonitorStats = &stats
	return h
}

// IsAvailable reports whether recent calls mostly succeed and the server
// has not asked us to back off.
func (p *BaseProvider) IsAvailable() bool {
	if p.Monitor.CheckProviderStatus() == StatusThrottled {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.availableLocked()
}

// RecordSuccess records a completed call of op.
func (p *BaseProvider) RecordSuccess(op Operation, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.tallyLocked(op.Name)
	t.stats.Calls++
	t.totalLatency += latency
	t.stats.AvgLatency = t.totalLatency / time.Duration(t.stats.Calls-t.stats.Failures)

	p.lastSuccess = time.Now()
	p.pushLocked(false)
	if op.Project != "" {
		delete(p.inaccessible, op.Project)
	}

	p.Monitor.RecordRequest(latency)
}

// RecordFailure records a failed call of op. Inaccessible-project failures
// mark op.Project instead of degrading the provider.
func (p *BaseProvider) RecordFailure(op Operation, category Category) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.tallyLocked(op.Name)
	t.stats.Calls++
	t.stats.Failures++
	t.stats.LastFailure = category.String()

	p.lastFailure = time.Now()
	if category == CategoryNotFoundOrInaccessible {
		if op.Project != "" {
			p.inaccessible[op.Project] = p.lastFailure
		}
		return
	}
	p.pushLocked(true)
}

func (p *BaseProvider) tallyLocked(name string) *opTally {
	t, ok := p.operations[name]
	if !ok {
		t = &opTally{}
		p.operations[name] = t
	}
	return t
}

func (p *BaseProvider) pushLocked(failed bool) {
	p.recent = append(p.recent, failed)
	if len(p.recent) > outcomeWindow {
		p.recent = p.recent[len(p.recent)-outcomeWindow:]
	}
}

func (p *BaseProvider) errorRateLocked() float64 {
	if len(p.recent) == 0 {
		return 0
	}
	failures := 0
	for _, failed := range p.recent {
		if failed {
			failures++
		}
	}
	return float64(failures) / float64(len(p.recent))
}

func (p *BaseProvider) availableLocked() bool {
	return p.errorRateLocked() <= 0.5
}
