/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package jobs runs background tasks against a persisted job table and owns the
// named locks that serialize configuration changes across the fleet.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/netsync/pkg/events"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

const (
	defaultWorkers          = 4
	defaultQueueSize        = 64
	defaultLockAttempts     = 5
	defaultLockInterval     = 2 * time.Second
	defaultProgressBuffer   = 256
	defaultFallbackTimeout  = 10 * time.Second
	unserializableResultMsg = `{"error":"unserializable"}`
)

// Coordinator schedules jobs, runs them on a fixed worker pool and records every
// status change in the store.
type Coordinator struct {
	store  store.Store
	events events.Store
	log    logger.Logger

	workers        int
	queueSize      int
	lockAttempts   int
	lockInterval   time.Duration
	progressBuffer int
	now            func() time.Time

	mu        sync.Mutex
	factories map[string]TaskFactory
	timers    map[int64]*time.Timer
	running   map[int64]context.CancelFunc
	started   bool
	stopped   bool

	jobChan chan int64
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithLockRetry sets how often AcquireLockWithRetry tries and how long it waits between tries.
func WithLockRetry(attempts int, interval time.Duration) Option {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.lockAttempts = attempts
		}

		if interval > 0 {
			c.lockInterval = interval
		}
	}
}

// WithEventStore publishes job progress to es in addition to the job table.
func WithEventStore(es events.Store) Option {
	return func(c *Coordinator) {
		c.events = es
	}
}

func WithProgressBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.progressBuffer = n
		}
	}
}

// New creates a coordinator. Register tasks before calling Start.
func New(s store.Store, log logger.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:          s,
		log:            log,
		workers:        defaultWorkers,
		queueSize:      defaultQueueSize,
		lockAttempts:   defaultLockAttempts,
		lockInterval:   defaultLockInterval,
		progressBuffer: defaultProgressBuffer,
		now:            time.Now,
		factories:      make(map[string]TaskFactory),
		timers:         make(map[int64]*time.Timer),
		running:        make(map[int64]context.CancelFunc),
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.jobChan = make(chan int64, c.queueSize)

	return c
}

// Register binds a function name to a task constructor.
func (c *Coordinator) Register(name string, factory TaskFactory) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}

	c.factories[name] = factory

	return nil
}

func (c *Coordinator) factory(name string) (TaskFactory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.factories[name]

	return f, ok
}

// Start recovers state left by a previous process and starts the workers.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}

	c.started = true
	c.mu.Unlock()

	if err := c.Recover(ctx); err != nil {
		return fmt.Errorf("job recovery: %w", err)
	}

	c.log.Info().Int("workers", c.workers).Int("queue_size", c.queueSize).Msg("starting job coordinator")

	c.wg.Add(c.workers)

	for i := 0; i < c.workers; i++ {
		go c.worker(ctx, i)
	}

	return nil
}

// Stop cancels pending timers and running jobs, then waits for the workers.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}

	c.stopped = true

	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}

	for _, cancel := range c.running {
		cancel()
	}
	c.mu.Unlock()

	close(c.done)

	waitChan := make(chan struct{})

	go func() {
		c.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		c.log.Info().Msg("job coordinator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultFallbackTimeout):
		return ErrStopTimeout
	}
}

// EnqueueOption sets optional job metadata.
type EnqueueOption func(*models.Job)

func WithComment(comment string) EnqueueOption {
	return func(j *models.Job) { j.Comment = comment }
}

func WithTicketRef(ref string) EnqueueOption {
	return func(j *models.Job) { j.TicketRef = ref }
}

// Enqueue persists a SCHEDULED job for the named task and queues it to run after delay.
func (c *Coordinator) Enqueue(
	ctx context.Context, name string, args any, delay time.Duration, actor string, opts ...EnqueueOption,
) (int64, error) {
	if _, ok := c.factory(name); !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()

	if stopped {
		return 0, ErrCoordinatorStopped
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("encode task arguments: %w", err)
	}

	if delay < 0 {
		delay = 0
	}

	job := &models.Job{
		Status:         models.JobStatusScheduled,
		FunctionName:   name,
		ScheduledBy:    actor,
		ScheduledTime:  c.now().UTC().Add(delay),
		StartArguments: raw,
	}

	for _, opt := range opts {
		opt(job)
	}

	created, err := c.store.CreateJob(ctx, job)
	if err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}

	c.log.Info().
		Int64("job_id", created.ID).
		Str("function", name).
		Str("scheduled_by", actor).
		Dur("delay", delay).
		Msg("job scheduled")

	if delay == 0 {
		if err := c.dispatch(created.ID); err != nil {
			return created.ID, err
		}

		return created.ID, nil
	}

	c.schedule(created.ID, delay)

	return created.ID, nil
}

func (c *Coordinator) schedule(jobID int64, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timers[jobID] = time.AfterFunc(delay, func() {
		c.mu.Lock()
		delete(c.timers, jobID)
		c.mu.Unlock()

		if err := c.dispatch(jobID); err != nil {
			c.log.Warn().Err(err).Int64("job_id", jobID).Msg("delayed job not dispatched")
		}
	})
}

// dispatch hands a job to the workers. A full queue aborts the job.
func (c *Coordinator) dispatch(jobID int64) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrCoordinatorStopped
	}

	select {
	case c.jobChan <- jobID:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	ctx := context.Background()

	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueueFull, err)
	}

	c.finalize(ctx, job, models.JobStatusAborted, nil, &models.JobException{
		Message: ErrQueueFull.Error(),
		Type:    "QueueFull",
	})

	return ErrQueueFull
}

func (c *Coordinator) worker(ctx context.Context, workerID int) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Int("worker", workerID).Msg("worker stopping, context canceled")
			return
		case <-c.done:
			c.log.Debug().Int("worker", workerID).Msg("worker stopping, coordinator shutdown")
			return
		case jobID := <-c.jobChan:
			c.runJob(ctx, jobID)
		}
	}
}

// runJob owns the whole status lifecycle of one job.
func (c *Coordinator) runJob(ctx context.Context, jobID int64) {
	bookkeeping := context.WithoutCancel(ctx)
	jobLog := logger.Wrap(c.log.With().Int64("job_id", jobID).Logger())

	job, err := c.store.GetJob(bookkeeping, jobID)
	if err != nil {
		jobLog.Error().Err(err).Msg("unable to load job")
		return
	}

	if job.Status != models.JobStatusScheduled {
		jobLog.Info().Str("status", string(job.Status)).Msg("skipping job that is no longer scheduled")
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.running[jobID] = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.running, jobID)
		c.mu.Unlock()
	}()

	started := c.now().UTC()
	job.Status = models.JobStatusRunning
	job.StartTime = &started

	if err := c.store.UpdateJob(bookkeeping, job, models.JobStatusScheduled); err != nil {
		// Lost to a concurrent abort.
		jobLog.Info().Err(err).Msg("job not started")
		return
	}

	jobLog.Info().Str("function", job.FunctionName).Msg("job started")

	factory, ok := c.factory(job.FunctionName)
	if !ok {
		c.finishError(bookkeeping, job, fmt.Errorf("%w: %s", ErrUnknownTask, job.FunctionName), Result{}, nil)
		return
	}

	task, err := factory(job.StartArguments)
	if err != nil {
		c.finishError(bookkeeping, job, err, Result{}, nil)
		return
	}

	progress := make(chan string, c.progressBuffer)
	finishedCh := make(chan []string, 1)

	go func() {
		finishedCh <- c.trackProgress(bookkeeping, jobID, progress, jobLog)
	}()

	exec := &Execution{
		JobID:    jobID,
		Actor:    job.ScheduledBy,
		Logger:   jobLog,
		ctx:      jobCtx,
		jobs:     c.store,
		progress: progress,
	}

	result, runErr := runSafely(jobCtx, task, exec)

	close(progress)

	finished := <-finishedCh

	if runErr != nil {
		c.finishError(bookkeeping, job, runErr, result, finished)
		return
	}

	c.finishSuccess(bookkeeping, job, result, finished)
}

func runSafely(ctx context.Context, task Task, exec *Execution) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()

	return task.Run(ctx, exec)
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", p.value)
}

func (c *Coordinator) trackProgress(ctx context.Context, jobID int64, progress <-chan string, log logger.Logger) []string {
	var finished []string

	for hostname := range progress {
		finished = append(finished, hostname)

		if err := c.store.SetFinishedDevices(ctx, jobID, finished); err != nil {
			log.Warn().Err(err).Msg("unable to record job progress")
		}

		if c.events != nil {
			if err := c.events.PublishProgress(ctx, jobID, finished); err != nil {
				log.Warn().Err(err).Msg("unable to publish job progress")
			}
		}
	}

	return finished
}

func (c *Coordinator) finishSuccess(ctx context.Context, job *models.Job, result Result, finished []string) {
	payload := c.marshalResult(job.ID, result)

	job.NextJobID = result.NextJobID
	job.ChangeScore = result.ChangeScore
	job.FinishedDevices = finished

	c.finalize(ctx, job, models.JobStatusFinished, payload, nil)
}

// finishError records runErr. A task that fails part way may still return a Payload
// describing the work it did; it is kept as the job result.
func (c *Coordinator) finishError(ctx context.Context, job *models.Job, runErr error, result Result, finished []string) {
	job.FinishedDevices = finished

	status := models.JobStatusException
	// The job context is only canceled by Abort or Stop.
	if errors.Is(runErr, ErrAborted) || errors.Is(runErr, context.Canceled) {
		status = models.JobStatusAborted
	}

	var payload json.RawMessage
	if result.Payload != nil {
		payload = c.marshalResult(job.ID, result)
		job.ChangeScore = result.ChangeScore
	}

	c.finalize(ctx, job, status, payload, &models.JobException{
		Message: runErr.Error(),
		Type:    errorType(runErr),
	})
}

func (c *Coordinator) marshalResult(jobID int64, result Result) json.RawMessage {
	payload, err := json.Marshal(result.Payload)
	if err != nil {
		c.log.Warn().Err(err).Int64("job_id", jobID).Msg("job result is not serializable")

		return json.RawMessage(unserializableResultMsg)
	}

	return payload
}

// finalize moves job into a terminal status. A concurrent abort turning RUNNING into
// ABORTING is absorbed: a successful finish then lands on ABORTED.
func (c *Coordinator) finalize(
	ctx context.Context, job *models.Job, status models.JobStatus, result json.RawMessage, exc *models.JobException,
) {
	if exc != nil {
		raw, err := json.Marshal(exc)
		if err == nil {
			job.Exception = raw
		}
	}

	if result != nil {
		job.Result = result
	}

	finishedAt := c.now().UTC()
	job.FinishTime = &finishedAt

	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		current, err := c.store.GetJob(ctx, job.ID)
		if err != nil {
			c.log.Error().Err(err).Int64("job_id", job.ID).Msg("unable to reload job for finish")
			return
		}

		if current.Status.IsTerminal() {
			return
		}

		final := status
		if current.Status == models.JobStatusAborting && final == models.JobStatusFinished {
			final = models.JobStatusAborted
		}

		if !current.Status.CanTransition(final) {
			final = models.JobStatusAborted
		}

		job.Status = final

		err = c.store.UpdateJob(ctx, job, current.Status)
		if errors.Is(err, store.ErrConflict) {
			continue
		}

		if err != nil {
			c.log.Error().Err(err).Int64("job_id", job.ID).Msg("unable to store job outcome")
			return
		}

		c.log.Info().
			Int64("job_id", job.ID).
			Str("function", job.FunctionName).
			Str("status", string(final)).
			Msg("job finished")

		return
	}
}

// errorType names the concrete error beneath any fmt wrapping, e.g. "DriftError".
func errorType(err error) string {
	for {
		name := fmt.Sprintf("%T", err)
		if name != "*fmt.wrapError" && name != "*fmt.wrapErrors" {
			break
		}

		inner := errors.Unwrap(err)
		if inner == nil {
			break
		}

		err = inner
	}

	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}

	if name == "errorString" {
		return "Error"
	}

	return name
}

// GetJob returns the stored job.
func (c *Coordinator) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	return c.store.GetJob(ctx, jobID)
}
