package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/dto"
	"github.com/verksted/admin-api/internal/observability"
)

// Watcher defaults.
const (
	DefaultWatchPollInterval = 3 * time.Second
	DefaultWatchTimeout      = 30 * time.Second
)

// printTimeoutMessage is written onto a job that never reached a terminal
// state within the watch deadline.
const printTimeoutMessage = "tidsavbrudd: utskriften ble ikke fullført i tide"

// WatchOptions selects the job to observe: either an explicit id, or the
// most recent job for a (ref, ref_invoker) pair.
type WatchOptions struct {
	JobID        string
	Ref          string
	RefInvoker   string
	PollInterval time.Duration
	Timeout      time.Duration
}

// WatchCallbacks receive job observations. The first terminal signal wins;
// no callback fires after that, whichever path delivered it.
type WatchCallbacks struct {
	OnUpdate    func(dto.PrintJobResponse)
	OnCompleted func(dto.PrintJobResponse)
	OnError     func(dto.PrintJobResponse)
	OnTimeout   func()
}

// jobWatcher observes one print job via NATS push and periodic polling,
// racing both against a deadline. A closed flag makes the first terminal
// signal authoritative; cleanup runs exactly once.
type jobWatcher struct {
	service   *printService
	jobID     string
	callbacks WatchCallbacks

	mu     sync.Mutex
	closed bool

	cancel context.CancelFunc
	sub    *nats.Subscription
}

// Watch starts observing a job until it completes, errors or times out.
// The returned disposer stops the session; it is safe to call more than
// once and after a terminal callback has fired.
func (s *printService) Watch(ctx context.Context, opts WatchOptions, callbacks WatchCallbacks) (func(), error) {
	jobID := opts.JobID
	if jobID == "" {
		job, err := s.jobs.LatestByRef(ctx, opts.Ref, opts.RefInvoker)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrPrintJobNotFound
			}
			return nil, err
		}
		jobID = job.ID
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = s.cfg.PollInterval
	}
	if interval <= 0 {
		interval = DefaultWatchPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.WatchTimeout
	}
	if timeout <= 0 {
		timeout = DefaultWatchTimeout
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher := &jobWatcher{
		service:   s,
		jobID:     jobID,
		callbacks: callbacks,
		cancel:    cancel,
	}

	if s.nats != nil {
		sub, err := s.nats.Subscribe(s.jobSubject(jobID), func(msg *nats.Msg) {
			var job dto.PrintJobResponse
			if err := json.Unmarshal(msg.Data, &job); err != nil {
				s.logger.Warn().Err(err).Str("job_id", jobID).Msg("invalid print job event payload")
				return
			}
			watcher.observe(job)
		})
		if err != nil {
			cancel()
			return nil, err
		}
		watcher.sub = sub
	}

	go watcher.run(watchCtx, interval, timeout)

	return watcher.dispose, nil
}

func (w *jobWatcher) run(ctx context.Context, interval, timeout time.Duration) {
	w.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		case <-deadline.C:
			w.timeout(ctx)
			return
		}
	}
}

func (w *jobWatcher) poll(ctx context.Context) {
	job, err := w.service.jobs.GetByID(ctx, w.jobID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.service.logger.Warn().Err(err).Str("job_id", w.jobID).Msg("print watch poll failed")
		}
		return
	}
	w.observe(dto.NewPrintJobResponse(job))
}

// observe handles one job row from either channel. Terminal rows close the
// watcher before their callback fires so a racing poll or push is dropped.
func (w *jobWatcher) observe(job dto.PrintJobResponse) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}

	switch {
	case job.ErrorMsg != nil:
		w.closeLocked()
		w.mu.Unlock()
		if w.callbacks.OnError != nil {
			w.callbacks.OnError(job)
		}
	case job.Completed:
		w.closeLocked()
		w.mu.Unlock()
		if w.callbacks.OnCompleted != nil {
			w.callbacks.OnCompleted(job)
		}
	default:
		w.mu.Unlock()
		if w.callbacks.OnUpdate != nil {
			w.callbacks.OnUpdate(job)
		}
	}
}

// timeout fires when the deadline passes without a terminal state. The
// timeout error is written conditionally so a completion that landed in the
// same instant is never overwritten.
func (w *jobWatcher) timeout(_ context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closeLocked()
	w.mu.Unlock()

	// closeLocked cancelled the watch context, so the conditional write gets
	// its own short deadline.
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := w.service.jobs.MarkErrored(writeCtx, w.jobID, printTimeoutMessage); err != nil {
		w.service.logger.Warn().Err(err).Str("job_id", w.jobID).Msg("failed to write print watch timeout")
	}
	observability.PrintWatchTimeouts().Inc()

	if w.callbacks.OnTimeout != nil {
		w.callbacks.OnTimeout()
	}
}

// closeLocked tears the session down. Caller holds w.mu.
func (w *jobWatcher) closeLocked() {
	w.closed = true
	if w.sub != nil {
		_ = w.sub.Unsubscribe()
		w.sub = nil
	}
	w.cancel()
}

func (w *jobWatcher) dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closeLocked()
}
