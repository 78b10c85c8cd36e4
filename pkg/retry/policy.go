// Package retry implements the pure retry-decision function of §4.8: given
// an attempt number and a classified outcome, decide whether to retry and,
// if so, after how long. The decision function is deliberately stateless so
// it can be driven directly in tests (see the testable properties around
// retry bounds and backoff growth) without needing to step through a
// stateful iterator.
//
// The actual attempt loop that drives HTTP calls (pkg/task) wires
// github.com/sethvargo/go-retry as its control-flow driver, configured from
// the same Policy fields (except Factor: Backoff always doubles), so
// Decide's parameters and go-retry's backoff stay in lockstep — see DESIGN.md for why the pure function itself does
// not embed go-retry's stateful Backoff type.
package retry

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Outcome classifies the result of a single task attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

// RandSource supplies the jitter entropy for Decide. Tests substitute a
// deterministic source to make backoff delays exactly predictable.
type RandSource interface {
	Float64() float64
}

type mathRandSource struct{ r *rand.Rand }

func (m mathRandSource) Float64() float64 { return m.r.Float64() }

// NewMathRandSource returns a RandSource backed by math/rand seeded from
// the current time — the default, non-deterministic production source.
func NewMathRandSource() RandSource {
	return mathRandSource{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Policy is the configuration governing retry decisions for one task.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	Factor            float64
	Cap               time.Duration
	RetryableStatuses map[int]bool
	Rand              RandSource
}

// DefaultPolicy returns the engine's out-of-the-box retry policy: 3
// attempts, 200ms base delay doubling each attempt, capped at 5s, retrying
// the classically-transient HTTP statuses.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		Factor:      2.0,
		Cap:         5 * time.Second,
		RetryableStatuses: map[int]bool{
			http.StatusRequestTimeout:      true,
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
		Rand: NewMathRandSource(),
	}
}

// Decide is the pure retry decision: given the 1-indexed attempt that just
// finished and its classified outcome, returns the delay to wait before the
// next attempt and whether a next attempt should happen at all.
//
// The delay follows full-jitter exponential backoff:
// delay = uniform(0, min(cap, base * factor^(attempt-1))).
func (p Policy) Decide(attempt int, outcome Outcome) (time.Duration, bool) {
	if outcome != OutcomeRetryable {
		return 0, false
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}

	nominal := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if capF := float64(p.Cap); nominal > capF {
		nominal = capF
	}

	rnd := p.Rand
	if rnd == nil {
		rnd = NewMathRandSource()
	}
	jittered := time.Duration(nominal * rnd.Float64())
	return jittered, true
}

// ClassifyStatus maps an HTTP status code to an Outcome using the policy's
// retryable-status set. 2xx is always success; anything else not in the
// retryable set is fatal.
func (p Policy) ClassifyStatus(status int) Outcome {
	if status >= 200 && status < 300 {
		return OutcomeSuccess
	}
	if p.RetryableStatuses[status] {
		return OutcomeRetryable
	}
	return OutcomeFatal
}

// ClassifyTransportError classifies a transport-level failure (connection
// refused, DNS failure, TLS handshake failure, client-side timeout): always
// retryable, since no response was ever produced.
func ClassifyTransportError(_ error) Outcome {
	return OutcomeRetryable
}

// RetryAfter parses a Retry-After header value (either delay-seconds or an
// HTTP-date, per RFC 9110 §10.2.3) and clamps it to the policy's cap.
func (p Policy) RetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		d := time.Duration(secs) * time.Second
		if d > p.Cap {
			d = p.Cap
		}
		if d < 0 {
			d = 0
		}
		return d, true
	}
	if when, err := http.ParseTime(header); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		if d > p.Cap {
			d = p.Cap
		}
		return d, true
	}
	return 0, false
}

// Backoff builds a github.com/sethvargo/go-retry Backoff configured from
// this policy's base delay, factor-2 exponential growth, cap, full jitter
// (each capped delay scaled by a uniform factor in [0, 1)), and
// max-attempts, for use as the attempt loop's control-flow driver in
// pkg/task. go-retry's NewExponential always doubles (factor 2), matching
// this policy's default Factor; a non-default Factor only affects Decide's
// standalone pure calculations used in tests.
func (p Policy) Backoff() goretry.Backoff {
	b := goretry.NewExponential(p.BaseDelay)
	b = goretry.WithCappedDuration(p.Cap, b)
	capped := b
	b = goretry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := capped.Next()
		if stop {
			return 0, true
		}
		return time.Duration(float64(d) * rand.Float64()), false
	})
	if p.MaxAttempts > 0 {
		b = goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
	}
	return b
}
