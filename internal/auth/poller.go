package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

// slowDownStep is added to the interval each time the server answers slow_down.
const slowDownStep = 5 * time.Second

// PollState is the lifecycle of a [Poller].
type PollState int

const (
	PollIdle PollState = iota
	PollPolling
	PollSettled
)

func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollPolling:
		return "polling"
	case PollSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// PollFunc performs one poll of the device token endpoint.
type PollFunc func(ctx context.Context) (*models.DevicePollResult, error)

// PollOutcome is delivered once when a [Poller] settles.
//
// Err is nil on authorization, otherwise it matches one of
// [shared.ErrDeviceExpired], [shared.ErrDeviceDenied], [shared.ErrPollCanceled]
// or [shared.ErrAuthRequest].
type PollOutcome struct {
	Result   *models.DevicePollResult
	Err      error
	Attempts int
}

// Poller repeatedly calls a [PollFunc] for one device authorization.
type Poller struct {
	poll     PollFunc
	interval time.Duration
	window   time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	state    PollState
	canceled bool
	cancel   context.CancelCauseFunc
}

// NewPoller creates a poller that waits interval between polls and gives up after window.
// A non-positive window means no deadline beyond the caller's context.
func NewPoller(poll PollFunc, interval, window time.Duration, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Poller{poll: poll, interval: interval, window: window, logger: logger}
}

// NewDevicePoller configures a poller from a device authorization.
func NewDevicePoller(poll PollFunc, d models.DeviceAuthorization, logger *log.Logger) *Poller {
	return NewPoller(poll, d.PollInterval(), d.Window(), logger)
}

// State returns the current lifecycle state.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins polling. The returned channel receives exactly one outcome and is then closed.
func (p *Poller) Start(ctx context.Context) (<-chan PollOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PollIdle {
		return nil, fmt.Errorf("%w: poller already %s", shared.ErrInvalidInput, p.state)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	p.cancel = cancel
	p.state = PollPolling

	out := make(chan PollOutcome, 1)
	go func() {
		defer close(out)
		outcome := p.run(ctx)
		p.settle()
		out <- outcome
	}()
	return out, nil
}

// Cancel stops polling. It is safe to call at any time and more than once.
// No poll begins after Cancel returns; a poll already in flight sees its
// context canceled.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case PollIdle:
		p.state = PollSettled
	case PollPolling:
		p.canceled = true
		p.cancel(shared.ErrPollCanceled)
	}
}

// begin reports whether the next poll may run. It is decided under p.mu so a
// returned Cancel is always observed.
func (p *Poller) begin(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.canceled && ctx.Err() == nil
}

func (p *Poller) settle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PollSettled
	p.cancel(nil)
}

func (p *Poller) run(ctx context.Context) PollOutcome {
	if p.window > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.window, shared.ErrDeviceExpired)
		defer cancel()
	}

	interval := p.interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return PollOutcome{Err: stopCause(ctx), Attempts: attempts}
		case <-ticker.C:
		}
		if !p.begin(ctx) {
			return PollOutcome{Err: stopCause(ctx), Attempts: attempts}
		}

		attempts++
		res, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return PollOutcome{Err: stopCause(ctx), Attempts: attempts}
			}
			if errors.Is(err, shared.ErrAuthRequest) {
				return PollOutcome{Err: err, Attempts: attempts}
			}
			p.logger.Warn("device poll failed, retrying", "attempt", attempts, "err", err)
			continue
		}

		switch res.Status {
		case models.PollAuthorized:
			p.logger.Debug("device authorized", "attempts", attempts)
			return PollOutcome{Result: res, Attempts: attempts}
		case models.PollPending:
			if res.Error == models.ErrCodeSlowDown {
				interval += slowDownStep
				ticker.Reset(interval)
			}
		default:
			return PollOutcome{Result: res, Err: pollError(res), Attempts: attempts}
		}
	}
}

// stopCause maps context termination to the poller's error vocabulary.
func stopCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, shared.ErrDeviceExpired), errors.Is(cause, shared.ErrPollCanceled):
		return cause
	default:
		return fmt.Errorf("%w: %w", shared.ErrPollCanceled, cause)
	}
}

func pollError(res *models.DevicePollResult) error {
	switch res.Error {
	case models.ErrCodeExpired:
		return shared.ErrDeviceExpired
	case models.ErrCodeDenied:
		return shared.ErrDeviceDenied
	default:
		return &shared.AuthError{Kind: shared.ErrAuthRequest, Code: res.Error, Description: res.ErrorDescription}
	}
}
