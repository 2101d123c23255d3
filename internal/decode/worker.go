package decode

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type msgKind int

const (
	msgProgress msgKind = iota
	msgSuccess
	msgError
)

type workerMsg struct {
	kind     msgKind
	stage    string
	progress float64
	result   *Result
	err      error
}

type workerJob struct {
	id   string
	src  string
	resp chan workerMsg
}

// worker is one generation of the decode goroutine. dead closes when
// the generation crashes so every waiting job can fall back at once;
// quit closes on Close so blocked submitters fall back instead of
// sending into a torn-down generation.
type worker struct {
	jobs chan workerJob
	dead chan struct{}
	quit chan struct{}
}

func newWorker() *worker {
	return &worker{
		jobs: make(chan workerJob, 16),
		dead: make(chan struct{}),
		quit: make(chan struct{}),
	}
}

// send never blocks. resp is buffered past one job's message count, so
// a drop only happens when the caller already gave up on the job.
func (j workerJob) send(m workerMsg) {
	select {
	case j.resp <- m:
	default:
	}
}

func (d *Decoder) startWorker() {
	d.mu.Lock()
	if d.closed || d.disabled || d.worker != nil {
		d.mu.Unlock()
		return
	}
	w := newWorker()
	d.worker = w
	d.mu.Unlock()
	go d.runWorker(w)
}

func (d *Decoder) runWorker(w *worker) {
	defer func() {
		if r := recover(); r != nil {
			d.handleCrash(w, r)
		}
	}()
	for {
		select {
		case <-w.quit:
			return
		case job := <-w.jobs:
			job.send(workerMsg{kind: msgProgress, stage: "decode", progress: 0})
			buf, err := d.decodeSource(job.src)
			if err != nil {
				d.logger.Warn("decode job failed in worker", "job", job.id, "src", job.src, "err", err)
				job.send(workerMsg{kind: msgError, err: fmt.Errorf("decode %s: %w", job.src, err)})
				continue
			}
			job.send(workerMsg{kind: msgProgress, stage: "decode", progress: 1})

			job.send(workerMsg{kind: msgProgress, stage: "peaks", progress: 0})
			res := d.finishResult(buf, true)
			job.send(workerMsg{kind: msgProgress, stage: "peaks", progress: 1})

			job.send(workerMsg{kind: msgSuccess, result: res})
			d.noteSuccess()
		}
	}
}

// handleCrash retires the crashed generation and either schedules a
// restart on the backoff curve or disables the worker for good.
func (d *Decoder) handleCrash(w *worker, cause any) {
	close(w.dead)

	d.mu.Lock()
	if d.worker == w {
		d.worker = nil
	}
	d.stats.Crashes++
	d.streak = 0
	d.attempts++
	attempts := d.attempts
	if attempts > d.cfg.MaxRetries {
		d.disabled = true
		d.mu.Unlock()
		d.logger.Error("decode worker crashed, retry budget exhausted, disabling",
			"panic", cause, "crashes", attempts)
		return
	}
	delay := backoffDelay(d.cfg.BackoffBase, d.cfg.BackoffCap, attempts)
	d.stats.RestartDelays = append(d.stats.RestartDelays, delay)
	d.mu.Unlock()

	d.logger.Warn("decode worker crashed, restarting",
		"panic", cause, "attempt", attempts, "delay", delay)
	time.AfterFunc(delay, d.startWorker)
}

func (d *Decoder) noteSuccess() {
	d.mu.Lock()
	d.stats.WorkerJobs++
	d.streak++
	if d.streak >= d.cfg.ResetStreak && d.attempts > 0 {
		d.attempts = 0
		d.logger.Debug("decode worker stable, retry budget restored", "streak", d.streak)
	}
	d.mu.Unlock()
}

// backoffDelay is base doubled per prior attempt, capped at limit.
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			return limit
		}
	}
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

// decodeViaWorker submits the job and pumps its messages. resolved is
// false only when the worker generation went away (crash or Close)
// before finishing, leaving the job to the fallback path.
func (d *Decoder) decodeViaWorker(ctx context.Context, w *worker, src string, progress ProgressFunc) (res *Result, err error, resolved bool) {
	job := workerJob{id: uuid.NewString(), src: src, resp: make(chan workerMsg, 8)}
	d.logger.Debug("decode job dispatched", "job", job.id, "src", src)
	select {
	case w.jobs <- job:
	case <-w.dead:
		return nil, nil, false
	case <-w.quit:
		return nil, nil, false
	case <-ctx.Done():
		return nil, fmt.Errorf("decode %s: %w", src, ctx.Err()), true
	}
	for {
		select {
		case m := <-job.resp:
			switch m.kind {
			case msgProgress:
				report(progress, m.stage, m.progress)
			case msgSuccess:
				return m.result, nil, true
			case msgError:
				return nil, m.err, true
			}
		case <-w.dead:
			return job.drain()
		case <-w.quit:
			return job.drain()
		case <-ctx.Done():
			return nil, fmt.Errorf("decode %s: %w", src, ctx.Err()), true
		}
	}
}

// drain collects what the worker delivered before it went away. With
// no terminal message the job belongs to the fallback path.
func (j workerJob) drain() (*Result, error, bool) {
	for {
		select {
		case m := <-j.resp:
			switch m.kind {
			case msgSuccess:
				return m.result, nil, true
			case msgError:
				return nil, m.err, true
			}
		default:
			return nil, nil, false
		}
	}
}
