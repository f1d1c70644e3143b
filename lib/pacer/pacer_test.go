package pacer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSucceedsWithoutRetry(t *testing.T) {
	p := New(CalculatorOption(NewDefault(MinSleep(0), MaxSleep(0))))
	calls := 0
	err := p.Call(func() (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallRetriesUpToLimit(t *testing.T) {
	p := New(RetriesOption(2), CalculatorOption(NewDefault(MinSleep(0), MaxSleep(time.Millisecond))))
	calls := 0
	err := p.Call(func() (bool, error) {
		calls++
		return true, errors.New("flaky")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls, "retries=2 means 1 initial attempt + 2 retries")
}

func TestCallStopsRetryingOnSuccess(t *testing.T) {
	p := New(RetriesOption(5), CalculatorOption(NewDefault(MinSleep(0), MaxSleep(time.Millisecond))))
	calls := 0
	err := p.Call(func() (bool, error) {
		calls++
		if calls < 3 {
			return true, errors.New("not yet")
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestDecay pins Calculate's success-path decay to exact values:
// sleepTime -= sleepTime >> decayConstant, clamped to minSleep.
func TestDecay(t *testing.T) {
	c := NewDefault(MinSleep(1*time.Microsecond), MaxSleep(1*time.Second))
	for _, test := range []struct {
		in            State
		decayConstant uint
		want          time.Duration
	}{
		{State{SleepTime: 8 * time.Millisecond}, 1, 4 * time.Millisecond},
		{State{SleepTime: 1 * time.Millisecond}, 0, 1 * time.Microsecond},
		{State{SleepTime: 1 * time.Millisecond}, 2, (3 * time.Millisecond) / 4},
		{State{SleepTime: 1 * time.Millisecond}, 3, (7 * time.Millisecond) / 8},
	} {
		c.decayConstant = test.decayConstant
		got := c.Calculate(test.in)
		assert.Equal(t, test.want, got, "test: %+v", test)
	}
}

// TestAttack pins Calculate's retry-path attack to exact values:
// sleepTime = (sleepTime << attackConstant) / (2^attackConstant - 1),
// or maxSleep when attackConstant is 0.
func TestAttack(t *testing.T) {
	c := NewDefault(MinSleep(1*time.Microsecond), MaxSleep(1*time.Second))
	for _, test := range []struct {
		in             State
		attackConstant uint
		want           time.Duration
	}{
		{State{SleepTime: 1 * time.Millisecond, ConsecutiveRetries: 1}, 1, 2 * time.Millisecond},
		{State{SleepTime: 1 * time.Millisecond, ConsecutiveRetries: 1}, 0, 1 * time.Second},
		{State{SleepTime: 1 * time.Millisecond, ConsecutiveRetries: 1}, 2, (4 * time.Millisecond) / 3},
		{State{SleepTime: 1 * time.Millisecond, ConsecutiveRetries: 1}, 3, (8 * time.Millisecond) / 7},
	} {
		c.attackConstant = test.attackConstant
		got := c.Calculate(test.in)
		assert.Equal(t, test.want, got, "test: %+v", test)
	}
}

// TestDefaultPacer exercises decay and attack together with min/max
// clamping, using DecayConstant(2) and the default AttackConstant(1).
func TestDefaultPacer(t *testing.T) {
	c := NewDefault(MinSleep(1*time.Millisecond), MaxSleep(1*time.Second), DecayConstant(2))
	for _, test := range []struct {
		state State
		want  time.Duration
	}{
		{State{SleepTime: 1 * time.Millisecond, ConsecutiveRetries: 1}, 2 * time.Millisecond},
		{State{SleepTime: 1 * time.Second, ConsecutiveRetries: 1}, 1 * time.Second},
		{State{SleepTime: (3 * time.Second) / 4, ConsecutiveRetries: 1}, 1 * time.Second},
		{State{SleepTime: 1 * time.Second}, 750 * time.Millisecond},
		{State{SleepTime: 1000 * time.Microsecond}, 1 * time.Millisecond},
		{State{SleepTime: 1200 * time.Microsecond}, 1 * time.Millisecond},
	} {
		got := c.Calculate(test.state)
		assert.Equal(t, test.want, got, "test: %+v", test)
	}
}

func TestMaxConnectionsLimitsConcurrency(t *testing.T) {
	p := New(MaxConnectionsOption(1), CalculatorOption(NewDefault(MinSleep(0), MaxSleep(0))))
	var inFlight, maxSeen int64
	done := make(chan struct{})

	for i := 0; i < 3; i++ {
		go func() {
			_ = p.Call(func() (bool, error) {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					seen := atomic.LoadInt64(&maxSeen)
					if n <= seen || atomic.CompareAndSwapInt64(&maxSeen, seen, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return false, nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(1))
}
