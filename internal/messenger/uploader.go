package messenger

import (
	"context"
	"fmt"

	"github.com/scanmark/scanmark/internal/proto"
)

// Job is one queued submission.
type Job struct {
	TaskCode string
	Artifact SubmissionArtifact
}

// Result reports the outcome of one uploaded Job. Err carries the
// protocol classification; a NetworkTimeout result means the submission
// may or may not have landed and the caller must refresh before
// retrying.
type Result struct {
	Job      Job
	Snapshot *proto.ProgressSnapshot
	Err      error
}

// Uploader drains submissions to the server in FIFO order on a single
// background goroutine, so a slow upload never blocks the caller's
// thread. Outcomes arrive on Results in the same order jobs were
// enqueued.
type Uploader struct {
	m       *Messenger
	jobs    chan Job
	results chan Result
	done    chan struct{}
}

// NewUploader creates an Uploader over an authenticated session. depth
// bounds the queue; Enqueue refuses when it is full.
func NewUploader(m *Messenger, depth int) *Uploader {
	if depth <= 0 {
		depth = 16
	}
	return &Uploader{
		m:       m,
		jobs:    make(chan Job, depth),
		results: make(chan Result, depth),
		done:    make(chan struct{}),
	}
}

// Start launches the drain goroutine. The uploader stops when ctx is
// cancelled or Close is called, whichever comes first. Cancellation
// does not swallow queued work: jobs still in the queue get a
// connection_error result naming the cancellation.
func (u *Uploader) Start(ctx context.Context) {
	go u.drain(ctx)
}

// Enqueue adds a submission to the tail of the queue without blocking.
func (u *Uploader) Enqueue(job Job) error {
	select {
	case u.jobs <- job:
		return nil
	default:
		return fmt.Errorf("messenger: upload queue full")
	}
}

// Results returns the outcome channel. It is closed once the uploader
// has stopped and every accepted job has a result.
func (u *Uploader) Results() <-chan Result {
	return u.results
}

// Close stops accepting jobs and waits for the drain goroutine to
// finish the queue.
func (u *Uploader) Close() {
	close(u.jobs)
	<-u.done
}

func (u *Uploader) drain(ctx context.Context) {
	defer close(u.done)
	defer close(u.results)
	for {
		select {
		case <-ctx.Done():
			u.flush(ctx.Err())
			return
		case job, ok := <-u.jobs:
			if !ok {
				return
			}
			snapshot, err := u.m.Submit(ctx, job.TaskCode, job.Artifact)
			u.results <- Result{Job: job, Snapshot: snapshot, Err: err}
		}
	}
}

// flush answers every job still buffered at cancellation time, so the
// Results contract holds: one result per accepted job.
func (u *Uploader) flush(cause error) {
	for {
		select {
		case job, ok := <-u.jobs:
			if !ok {
				return
			}
			u.results <- Result{Job: job, Err: proto.Errf(proto.ConnectionError, "upload cancelled: %v", cause)}
		default:
			return
		}
	}
}
