package streaming

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/haasonsaas/openbridge/internal/backoff"
	"github.com/haasonsaas/openbridge/internal/observability"
	"github.com/haasonsaas/openbridge/internal/openrouter"
	"github.com/haasonsaas/openbridge/pkg/api"
)

// Sink receives one translated event. Returning an error aborts the stream;
// the runner treats that as a downstream disconnect, not an upstream fault.
type Sink func(api.StreamEvent) error

// RunResult carries what the handler needs after a stream ends: the final
// response for the stored turn and the reconstructed assistant message.
// Started reports whether anything was written downstream, which decides
// between an HTTP error and an in-band failure event.
type RunResult struct {
	Response  *api.Response
	Assistant *openrouter.ChatMessage
	Started   bool
}

// RunnerOptions configures a Runner. Zero-value logger and metrics are
// replaced with no-ops.
type RunnerOptions struct {
	Policy  backoff.BackoffPolicy
	Stop    backoff.Stop
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Runner executes streaming requests against the upstream. Failures before
// the first downstream event are retried with the same policy as non-stream
// calls; once any event has been emitted the attempt is final and upstream
// faults surface as a response.failed event.
type Runner struct {
	client  *openrouter.Client
	policy  backoff.BackoffPolicy
	stop    backoff.Stop
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewRunner builds a Runner around a configured upstream client, filling
// defaults for anything unset.
func NewRunner(client *openrouter.Client, opts RunnerOptions) *Runner {
	if opts.Policy == (backoff.BackoffPolicy{}) {
		opts.Policy = backoff.PolicyFromSeconds(0.5, 15)
	}
	if opts.Stop == (backoff.Stop{}) {
		opts.Stop = backoff.Stop{MaxAttempts: 2, MaxElapsed: 15 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = observability.NopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Runner{
		client:  client,
		policy:  opts.Policy,
		stop:    opts.Stop,
		log:     log,
		metrics: metrics,
	}
}

// preStartError marks a failure that happened before anything was emitted
// downstream. Only these are retried, regardless of the underlying cause,
// because the client has not observed the response yet.
type preStartError struct {
	err error
}

func (e *preStartError) Error() string   { return e.err.Error() }
func (e *preStartError) Unwrap() error   { return e.err }
func (e *preStartError) Retryable() bool { return true }

// streamFault marks an upstream failure after events already reached the
// client. The attempt is final even when the underlying error would
// otherwise be retryable.
type streamFault struct {
	err error
}

func (e *streamFault) Error() string   { return e.err.Error() }
func (e *streamFault) Unwrap() error   { return e.err }
func (e *streamFault) Retryable() bool { return false }

// sinkError marks a failure writing downstream. It is never retried and no
// failure event is attempted on top of it.
type sinkError struct {
	err error
}

func (e *sinkError) Error() string   { return e.err.Error() }
func (e *sinkError) Unwrap() error   { return e.err }
func (e *sinkError) Retryable() bool { return false }

// Run opens the upstream stream, pumps it through the translator, and feeds
// every event to the sink in order. On success the result carries the final
// response and assistant message for the store. On failure, Started tells
// the caller whether a failure event was already delivered in-band.
func (r *Runner) Run(ctx context.Context, payload map[string]any, tr *Translator, sink Sink) (RunResult, error) {
	started := false

	attemptStream := func(attempt int) (RunResult, error) {
		if attempt > 1 {
			r.metrics.UpstreamRetryCounter.Inc()
			r.log.Info(ctx, "retrying upstream stream", "attempt", attempt)
		}

		stream, err := r.client.OpenStream(ctx, payload)
		if err != nil {
			return RunResult{}, &preStartError{err: err}
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if !started {
					return RunResult{}, &preStartError{err: err}
				}
				return RunResult{}, &streamFault{err: err}
			}

			if !started {
				started = true
				if err := r.emit(tr.StartEvents(), sink); err != nil {
					return RunResult{}, err
				}
			}
			if err := r.emit(tr.ProcessChunk(chunk), sink); err != nil {
				return RunResult{}, err
			}
		}

		// An upstream that ends without a single frame still owes the
		// client a complete response lifecycle.
		if !started {
			started = true
			if err := r.emit(tr.StartEvents(), sink); err != nil {
				return RunResult{}, err
			}
		}
		if err := r.emit(tr.FinishEvents(), sink); err != nil {
			return RunResult{}, err
		}

		return RunResult{
			Response:  tr.FinalResponse(),
			Assistant: tr.AssistantMessage(),
			Started:   true,
		}, nil
	}

	result, err := backoff.Retry(ctx, r.policy, r.stop, attemptStream)
	if err == nil {
		return result, nil
	}

	if started {
		var sinkErr *sinkError
		if errors.As(err, &sinkErr) {
			r.log.Info(ctx, "stream aborted by downstream", "error", err.Error())
		} else {
			r.log.Warn(ctx, "upstream stream failed mid-response", "error", err.Error())
			failure := tr.FailureEvent(&api.Error{
				Message: err.Error(),
				Type:    "upstream_error",
			})
			if emitErr := r.emit([]api.StreamEvent{failure}, sink); emitErr != nil {
				r.log.Info(ctx, "failure event not delivered", "error", emitErr.Error())
			}
		}
	}
	return RunResult{Started: started}, err
}

func (r *Runner) emit(events []api.StreamEvent, sink Sink) error {
	for _, ev := range events {
		r.metrics.StreamEventCounter.WithLabelValues(string(ev.Type)).Inc()
		if err := sink(ev); err != nil {
			return &sinkError{err: err}
		}
	}
	return nil
}
