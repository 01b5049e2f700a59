// Package jobs drives server-side pipeline runs: it starts a job, polls its
// status at a fixed cadence, and terminates on success, failure, timeout, or
// cancellation.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/info757/estimai-cli/internal/resilience"
	"github.com/info757/estimai-cli/pkg/estimai"
)

// State is the poller's lifecycle state.
type State int

const (
	Idle State = iota
	Starting
	Polling
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Polling:
		return "polling"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 10 * time.Minute
)

// ErrPollTimeout is returned when a job stays non-terminal past the poll
// window. The backend job may still be running; the poller just stops
// watching.
var ErrPollTimeout = errors.New("jobs: poll window exhausted")

// JobFailedError carries the server-supplied reason for a terminal failed
// run.
type JobFailedError struct {
	JobID  string
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("jobs: job %s failed: %s", e.JobID, e.Reason)
}

// Poller watches one pipeline run at a time. It owns exactly one JobStatus
// per active run and discards it on completion; terminal states are never
// resurrected.
type Poller struct {
	client   estimai.Client
	retry    resilience.RetryConfig
	interval time.Duration
	timeout  time.Duration
	maxPolls int
	sleep    func(ctx context.Context, d time.Duration) error
	onStart  func(jobID string)

	state State
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the fixed delay between polls.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithTimeout overrides the wall-clock poll window (applied only when the
// caller's context has no deadline).
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.timeout = d
	}
}

// WithMaxPolls bounds the number of status fetches. Zero means no count
// bound; the wall-clock timeout still applies.
func WithMaxPolls(n int) Option {
	return func(p *Poller) {
		p.maxPolls = n
	}
}

// WithStartHook registers a callback invoked once with the job id as soon
// as the start call succeeds, before the first poll. A job that is already
// terminal on its first poll still reaches the hook.
func WithStartHook(fn func(jobID string)) Option {
	return func(p *Poller) {
		p.onStart = fn
	}
}

// WithScheduler replaces the delay source, letting tests advance virtual
// time instead of sleeping.
func WithScheduler(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

// New creates a Poller in the Idle state.
func New(client estimai.Client, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		retry:    resilience.DefaultRetryConfig(),
		interval: defaultInterval,
		timeout:  defaultTimeout,
		sleep:    sleepFor,
		state:    Idle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the poller's current lifecycle state.
func (p *Poller) State() State { return p.state }

// Run starts a pipeline job for the project and polls it to completion.
// onProgress is invoked once per poll that observes a non-terminal status;
// it never fires after cancellation or a terminal state. On success the
// final status is returned and the caller is expected to refresh dependent
// review data. A failed start leaves the poller Idle.
func (p *Poller) Run(ctx context.Context, projectID string, onProgress func(estimai.JobStatus)) (*estimai.JobStatus, error) {
	p.state = Starting

	started, err := resilience.DoVal(ctx, p.retry, "start pipeline", func(ctx context.Context) (*estimai.PipelineResponse, error) {
		return p.client.StartPipeline(ctx, projectID)
	})
	if err != nil {
		p.state = Idle
		return nil, eris.Wrap(err, "jobs: start pipeline")
	}

	zap.L().Info("pipeline started",
		zap.String("project_id", projectID),
		zap.String("job_id", started.JobID),
	)
	if p.onStart != nil {
		p.onStart(started.JobID)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.state = Polling
	polls := 0
	for {
		status, err := p.client.GetJob(ctx, started.JobID)
		if err != nil {
			// A failing status endpoint is terminal; retrying forever
			// would orphan the poller.
			p.state = Failed
			return nil, eris.Wrap(err, fmt.Sprintf("jobs: poll job %s", started.JobID))
		}
		polls++

		switch status.Status {
		case estimai.JobSucceeded:
			p.state = Succeeded
			return status, nil
		case estimai.JobFailed:
			p.state = Failed
			reason := status.Error
			if reason == "" {
				reason = "pipeline failed"
			}
			return status, &JobFailedError{JobID: started.JobID, Reason: reason}
		}

		if onProgress != nil {
			onProgress(*status)
		}

		if p.maxPolls > 0 && polls >= p.maxPolls {
			p.state = Failed
			return nil, eris.Wrap(ErrPollTimeout, fmt.Sprintf("job %s still %s after %d polls", started.JobID, status.Status, polls))
		}

		// Cancellation is cooperative: checked before the next poll is
		// scheduled, never mid-request.
		if err := p.sleep(ctx, p.interval); err != nil {
			p.state = Failed
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, eris.Wrap(ErrPollTimeout, fmt.Sprintf("job %s", started.JobID))
			}
			return nil, eris.Wrap(err, fmt.Sprintf("jobs: watch job %s cancelled", started.JobID))
		}
	}
}

// sleepFor waits d or until the context ends.
func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
