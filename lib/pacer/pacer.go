// Package pacer implements a generic mechanism to pace and retry
// operations that talk to an external, rate-limited or flaky service —
// used here to govern reconnect/retry attempts against the remote
// back-end's distributed file system endpoints.
package pacer

import (
	"sync"
	"time"
)

// State holds the pacer's mutable retry/sleep state.
type State struct {
	SleepTime          time.Duration
	ConsecutiveRetries int
}

// Calculator calculates the next sleep time given the previous state.
type Calculator interface {
	Calculate(state State) time.Duration
}

// Paced is implemented by the operation passed to Pacer.Call. A true
// return means "retry me"; the error is always returned to the caller.
type Paced func() (retry bool, err error)

// Pacer governs the rate and retry count of calls to a Paced function.
type Pacer struct {
	mu             sync.Mutex
	pacer          chan struct{}
	connTokens     chan struct{}
	maxConnections int
	retries        int
	calculator     Calculator
	state          State
}

// Option configures a Pacer at construction time.
type Option func(*Pacer)

// RetriesOption sets the maximum number of retries for a single Call.
func RetriesOption(retries int) Option {
	return func(p *Pacer) { p.retries = retries }
}

// MaxConnectionsOption limits the number of concurrent in-flight calls.
// 0 means unlimited.
func MaxConnectionsOption(n int) Option {
	return func(p *Pacer) { p.SetMaxConnections(n) }
}

// CalculatorOption overrides the default exponential-decay calculator.
func CalculatorOption(c Calculator) Option {
	return func(p *Pacer) { p.calculator = c }
}

// New creates a Pacer with the default decay calculator and applies opts.
func New(opts ...Option) *Pacer {
	d := NewDefault()
	p := &Pacer{
		pacer:      make(chan struct{}, 1),
		retries:    3,
		calculator: d,
		state:      State{SleepTime: d.minSleep},
	}
	p.pacer <- struct{}{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetMaxConnections sets the concurrency limit, 0 for unlimited.
func (p *Pacer) SetMaxConnections(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxConnections = n
	if n <= 0 {
		p.connTokens = nil
		return
	}
	p.connTokens = make(chan struct{}, n)
	for i := 0; i < n; i++ {
		p.connTokens <- struct{}{}
	}
}

func (p *Pacer) beginCall() {
	<-p.pacer
	p.mu.Lock()
	sleep := p.state.SleepTime
	p.mu.Unlock()
	if sleep > 0 {
		time.Sleep(sleep)
	}
}

func (p *Pacer) endCall(retry bool) {
	p.mu.Lock()
	if retry {
		p.state.ConsecutiveRetries++
	} else {
		p.state.ConsecutiveRetries = 0
	}
	p.state.SleepTime = p.calculator.Calculate(p.state)
	p.mu.Unlock()
	p.pacer <- struct{}{}
}

// Call runs fn, retrying up to p.retries times while fn reports retry=true,
// pacing each attempt through the calculator's sleep schedule.
func (p *Pacer) Call(fn Paced) error {
	if p.connTokens != nil {
		<-p.connTokens
		defer func() { p.connTokens <- struct{}{} }()
	}
	var err error
	for try := 0; try <= p.retries; try++ {
		p.beginCall()
		var retry bool
		retry, err = fn()
		p.endCall(retry)
		if !retry {
			return err
		}
	}
	return err
}

// Default is the classic attack/decay exponential backoff calculator:
// sleep time is multiplied by 2^attackConstant/(2^attackConstant-1) on
// retry and decays by a 1/2^decayConstant fraction on success (see
// Calculate).
type Default struct {
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
}

// DefaultOption configures a Default calculator.
type DefaultOption func(*Default)

// MinSleep sets the minimum sleep time.
func MinSleep(t time.Duration) DefaultOption { return func(d *Default) { d.minSleep = t } }

// MaxSleep sets the maximum sleep time.
func MaxSleep(t time.Duration) DefaultOption { return func(d *Default) { d.maxSleep = t } }

// DecayConstant sets the exponential decay constant (bigger = slower decay).
func DecayConstant(c uint) DefaultOption { return func(d *Default) { d.decayConstant = c } }

// AttackConstant sets the exponential attack constant (bigger = slower attack).
func AttackConstant(c uint) DefaultOption { return func(d *Default) { d.attackConstant = c } }

// NewDefault creates a Default calculator with sane defaults, then
// applies opts.
func NewDefault(opts ...DefaultOption) *Default {
	d := &Default{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Calculate implements Calculator: truncated binary exponential backoff.
// On success the sleep time decays towards zero by a 1/2^decayConstant
// fraction each call; on retry it attacks upwards by a
// 2^attackConstant/(2^attackConstant-1) factor, or jumps straight to
// maxSleep when attackConstant is 0.
func (d *Default) Calculate(state State) time.Duration {
	sleepTime := state.SleepTime
	if state.ConsecutiveRetries == 0 {
		sleepTime -= sleepTime >> d.decayConstant
	} else if d.attackConstant == 0 {
		sleepTime = d.maxSleep
	} else {
		sleepTime = (sleepTime << d.attackConstant) / ((1 << d.attackConstant) - 1)
	}
	if sleepTime < d.minSleep {
		sleepTime = d.minSleep
	} else if sleepTime > d.maxSleep {
		sleepTime = d.maxSleep
	}
	return sleepTime
}
