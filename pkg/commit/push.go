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

package commit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/netsync/pkg/impact"
	"github.com/carverauto/netsync/pkg/jobs"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/transport"
)

const defaultConcurrency = 50

// HostConfig is a rendered configuration bound for one device.
type HostConfig struct {
	Device *models.Device
	Config string
	// Err carries a failure from before the push, such as rendering. The host is
	// reported failed without contacting it.
	Err error
}

// PushOptions control a fleet push.
type PushOptions struct {
	Mode     Mode
	RevertIn time.Duration
	DryRun   bool
	// Replace swaps the whole running configuration instead of merging.
	Replace bool
	Message string
}

// HostResult is the outcome for one device.
type HostResult struct {
	State State
	Diff  string
	Score float64
	Err   error
}

// PushResult summarizes a fleet push. Hostname slices are sorted.
type PushResult struct {
	Hosts     map[string]*HostResult
	Changed   []string
	Unchanged []string
	Failed    []string
	// Skipped hosts were never contacted because the job was aborted.
	Skipped []string

	mu sync.Mutex
}

func newPushResult(n int) *PushResult {
	return &PushResult{Hosts: make(map[string]*HostResult, n)}
}

func (r *PushResult) record(hostname string, hr *HostResult, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Hosts[hostname] = hr

	switch {
	case hr.State == StateFailed:
		r.Failed = append(r.Failed, hostname)
	case changed:
		r.Changed = append(r.Changed, hostname)
	default:
		r.Unchanged = append(r.Unchanged, hostname)
	}
}

func (r *PushResult) skip(hostname string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Skipped = append(r.Skipped, hostname)
}

func (r *PushResult) finish() {
	sort.Strings(r.Changed)
	sort.Strings(r.Unchanged)
	sort.Strings(r.Failed)
	sort.Strings(r.Skipped)
}

// Scores returns the impact scores of the changed hosts.
func (r *PushResult) Scores() []float64 {
	scores := make([]float64, 0, len(r.Changed))
	for _, h := range r.Changed {
		scores = append(scores, r.Hosts[h].Score)
	}

	return scores
}

// ChangeScore folds the per-host scores into one job score.
func (r *PushResult) ChangeScore() float64 {
	return impact.Aggregate(r.Scores(), len(r.Changed), len(r.Failed))
}

// Errors joins every per-host error.
func (r *PushResult) Errors() error {
	errs := make([]error, 0, len(r.Failed))
	for _, h := range r.Failed {
		errs = append(errs, r.Hosts[h].Err)
	}

	return errors.Join(errs...)
}

// Pusher fans configuration out to devices.
type Pusher struct {
	transport   transport.Transport
	log         logger.Logger
	concurrency int
}

type PusherOption func(*Pusher)

// WithConcurrency caps the number of devices contacted at once.
func WithConcurrency(n int) PusherOption {
	return func(p *Pusher) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func NewPusher(t transport.Transport, log logger.Logger, opts ...PusherOption) *Pusher {
	p := &Pusher{
		transport:   t,
		log:         logger.Wrap(log.WithComponent("commit")),
		concurrency: defaultConcurrency,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Push runs the protocol on every host. Failures are per host and never stop the other
// hosts; once exec reports an abort no further hosts are started. A host that was started
// runs to completion even when ctx is canceled, so a device is never cut off mid-commit.
func (p *Pusher) Push(ctx context.Context, exec *jobs.Execution, hosts []HostConfig, opts PushOptions) *PushResult {
	result := newPushResult(len(hosts))
	hostCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, hc := range hosts {
		if p.aborted(ctx, exec, hc.Device.Hostname) {
			result.skip(hc.Device.Hostname)
			continue
		}

		g.Go(func() error {
			// An abort may have arrived while waiting for a slot.
			if p.aborted(ctx, exec, hc.Device.Hostname) {
				result.skip(hc.Device.Hostname)
				return nil
			}

			hr, changed := p.pushHost(hostCtx, hc, opts)
			result.record(hc.Device.Hostname, hr, changed)

			if exec != nil {
				exec.ReportFinished(hc.Device.Hostname)
			}

			return nil
		})
	}

	_ = g.Wait()

	result.finish()

	p.log.Info().
		Int("changed", len(result.Changed)).
		Int("unchanged", len(result.Unchanged)).
		Int("failed", len(result.Failed)).
		Int("skipped", len(result.Skipped)).
		Bool("dry_run", opts.DryRun).
		Str("mode", opts.Mode.String()).
		Msg("push finished")

	return result
}

func (p *Pusher) pushHost(ctx context.Context, hc HostConfig, opts PushOptions) (*HostResult, bool) {
	dev := hc.Device
	log := p.log.With().Str("hostname", dev.Hostname).Logger()
	hr := &HostResult{State: StateGenerated}

	fail := func(stage Stage, err error) (*HostResult, bool) {
		hr.State, _ = hr.State.Next(EventFail)
		hr.Err = &HostError{Hostname: dev.Hostname, Stage: stage, Err: err}
		hr.Score = 0

		log.Error().Err(err).Str("stage", string(stage)).Msg("push failed")

		return hr, false
	}

	if hc.Err != nil {
		return fail(StageRender, hc.Err)
	}

	diff, err := p.transport.LoadCandidate(ctx, dev, hc.Config, opts.Replace)
	if err != nil {
		return fail(StageLoad, err)
	}

	hr.State, _ = hr.State.Next(EventDiffed)
	hr.Diff = diff

	if opts.DryRun || diff == "" {
		if err := p.transport.Discard(ctx, dev); err != nil {
			return fail(StageDiscard, err)
		}

		hr.State, _ = hr.State.Next(EventDiscard)

		if diff != "" {
			hr.Score = impact.Score(hc.Config, diff)
		}

		log.Debug().Bool("changed", diff != "").Float64("score", hr.Score).Msg("candidate discarded")

		return hr, diff != ""
	}

	hr.Score = impact.Score(hc.Config, diff)

	switch opts.Mode {
	case ModePlain:
		if err := p.transport.Commit(ctx, dev, 0, opts.Message); err != nil {
			return fail(StageCommit, err)
		}

		hr.State, _ = hr.State.Next(EventCommit)
	case ModeAutoConfirm:
		if err := p.transport.Commit(ctx, dev, opts.RevertIn, opts.Message); err != nil {
			return fail(StageCommit, err)
		}

		hr.State, _ = hr.State.Next(EventCommitWithTimer)

		if err := p.transport.ConfirmCommit(ctx, dev); err != nil {
			return fail(StageConfirm, err)
		}

		hr.State, _ = hr.State.Next(EventConfirm)
	case ModeTwoPhase:
		if err := p.transport.Commit(ctx, dev, opts.RevertIn, opts.Message); err != nil {
			return fail(StageCommit, err)
		}

		hr.State, _ = hr.State.Next(EventCommitWithTimer)
	default:
		return fail(StageCommit, fmt.Errorf("%w: %d", ErrInvalidMode, int(opts.Mode)))
	}

	log.Info().Str("state", string(hr.State)).Float64("score", hr.Score).Msg("configuration committed")

	return hr, true
}

func (p *Pusher) aborted(ctx context.Context, exec *jobs.Execution, hostname string) bool {
	if exec == nil || !exec.Aborted(ctx) {
		return false
	}

	p.log.Warn().Str("hostname", hostname).Msg("job aborted, not dispatching")

	return true
}

// Confirm confirms pending commits on devs. Every confirm is sent even after ctx is
// canceled.
func (p *Pusher) Confirm(ctx context.Context, exec *jobs.Execution, devs []*models.Device) *PushResult {
	result := newPushResult(len(devs))
	hostCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, dev := range devs {
		g.Go(func() error {
			hr := &HostResult{State: StatePendingConfirm}

			if err := p.transport.ConfirmCommit(hostCtx, dev); err != nil {
				hr.State, _ = hr.State.Next(EventFail)
				hr.Err = &HostError{Hostname: dev.Hostname, Stage: StageConfirm, Err: err}

				p.log.Error().Err(err).Str("hostname", dev.Hostname).Msg("confirm failed")
			} else {
				hr.State, _ = hr.State.Next(EventConfirm)
			}

			result.record(dev.Hostname, hr, hr.State == StateCommitted)

			if exec != nil {
				exec.ReportFinished(dev.Hostname)
			}

			return nil
		})
	}

	_ = g.Wait()

	result.finish()

	return result
}

// ApplyConfig loads config onto a single device and either discards it (dryRun) or
// commits it without a revert timer. It returns the diff.
func ApplyConfig(
	ctx context.Context, t transport.Transport, dev *models.Device, config string, replace, dryRun bool,
) (string, error) {
	diff, err := t.LoadCandidate(ctx, dev, config, replace)
	if err != nil {
		return "", &HostError{Hostname: dev.Hostname, Stage: StageLoad, Err: err}
	}

	if dryRun || diff == "" {
		if err := t.Discard(ctx, dev); err != nil {
			return diff, &HostError{Hostname: dev.Hostname, Stage: StageDiscard, Err: err}
		}

		return diff, nil
	}

	if err := t.Commit(ctx, dev, 0, ""); err != nil {
		return diff, &HostError{Hostname: dev.Hostname, Stage: StageCommit, Err: err}
	}

	return diff, nil
}
