package generators

import (
	"context"
	"errors"
	"time"
)

// PollConfig bounds a poll loop by attempt count and by wall-clock time.
type PollConfig struct {
	Interval time.Duration
	MaxPolls int
	Timeout  time.Duration
}

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 300
)

func (c PollConfig) normalized() PollConfig {
	if c.Interval <= 0 {
		c.Interval = defaultPollInterval
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = defaultMaxPolls
	}
	return c
}

// poller drives check until it reports done, returns an error, or the budget runs out.
type poller struct {
	cfg   PollConfig
	clock func() time.Time
	sleep func(context.Context, time.Duration) error
}

// run returns the number of checks performed. Exhausting MaxPolls or Timeout yields a
// *JobTimeoutError; cancellation of ctx by the caller is returned as ctx.Err().
func (p poller) run(ctx context.Context, jobID string, check func(context.Context) (bool, error)) (int, error) {
	cfg := p.cfg.normalized()
	started := p.clock()

	pollCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	timeout := func(polls int) error {
		return &JobTimeoutError{JobID: jobID, Polls: polls, Elapsed: p.clock().Sub(started)}
	}
	// Distinguishes our own deadline from cancellation by the caller.
	expired := func(err error) bool {
		return ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
	}

	polls := 0
	for polls < cfg.MaxPolls {
		if err := pollCtx.Err(); err != nil {
			if expired(err) {
				return polls, timeout(polls)
			}
			return polls, err
		}
		done, err := check(pollCtx)
		polls++
		if err != nil {
			if expired(err) || expired(pollCtx.Err()) {
				return polls, timeout(polls)
			}
			return polls, err
		}
		if done {
			return polls, nil
		}
		if polls == cfg.MaxPolls {
			break
		}
		if err := p.sleep(pollCtx, cfg.Interval); err != nil {
			if expired(err) || expired(pollCtx.Err()) {
				return polls, timeout(polls)
			}
			return polls, err
		}
	}
	return polls, timeout(polls)
}
