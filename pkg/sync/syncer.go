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

// Package sync pushes rendered configuration to selected devices under the fleet lock and
// follows it through the commit-confirm protocol.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/netsync/pkg/commit"
	"github.com/carverauto/netsync/pkg/drift"
	"github.com/carverauto/netsync/pkg/events"
	"github.com/carverauto/netsync/pkg/jobs"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/neighbors"
	"github.com/carverauto/netsync/pkg/render"
	"github.com/carverauto/netsync/pkg/settings"
	"github.com/carverauto/netsync/pkg/store"
	"github.com/carverauto/netsync/pkg/topology"
	"github.com/carverauto/netsync/pkg/transport"
)

// Coordinator is the part of the job coordinator a sync needs.
type Coordinator interface {
	AcquireLockWithRetry(ctx context.Context, name string, jobID int64) error
	ReleaseLock(ctx context.Context, name string, jobID int64) error
	Enqueue(ctx context.Context, name string, args any, delay time.Duration, actor string, opts ...jobs.EnqueueOption) (int64, error)
}

// Deps are the collaborators of a Syncer. Neighbors and Resolver are only needed by
// UpdateLinknets.
type Deps struct {
	Store       store.Store
	Settings    settings.Provider
	Renderer    render.Renderer
	Transport   transport.Transport
	Events      events.Store
	Coordinator Coordinator
	Neighbors   neighbors.Source
	Resolver    *topology.Resolver
}

type Options struct {
	CommitMode       commit.Mode
	RevertIn         time.Duration
	AutoPushMaxScore float64
	PushConcurrency  int
}

// Syncer runs device synchronization jobs.
type Syncer struct {
	store     store.Store
	settings  settings.Provider
	renderer  render.Renderer
	transport transport.Transport
	events    events.Store
	coord     Coordinator
	neighbors neighbors.Source
	resolver  *topology.Resolver
	pusher    *commit.Pusher
	drift     *drift.Detector
	opts      Options
	log       logger.Logger
}

func New(deps Deps, opts Options, log logger.Logger) (*Syncer, error) {
	if deps.Store == nil || deps.Settings == nil || deps.Renderer == nil || deps.Transport == nil || deps.Coordinator == nil {
		return nil, errMissingDeps
	}

	if deps.Events == nil {
		deps.Events = events.NewMemoryStore()
	}

	return &Syncer{
		store:     deps.Store,
		settings:  deps.Settings,
		renderer:  deps.Renderer,
		transport: deps.Transport,
		events:    deps.Events,
		coord:     deps.Coordinator,
		neighbors: deps.Neighbors,
		resolver:  deps.Resolver,
		pusher:    commit.NewPusher(deps.Transport, log, commit.WithConcurrency(opts.PushConcurrency)),
		drift:     drift.NewDetector(deps.Store, deps.Transport, deps.Events, log),
		opts:      opts,
		log:       logger.Wrap(log.WithComponent("sync")),
	}, nil
}

// Request is the argument of a sync_devices job.
type Request struct {
	Selector

	DryRun   bool `json:"dry_run"`
	Force    bool `json:"force"`
	AutoPush bool `json:"auto_push"`
	Resync   bool `json:"resync"`
	// CommitMode overrides the configured commit mode.
	CommitMode *int `json:"commit_mode,omitempty"`
}

// HostReport is the outcome for one device.
type HostReport struct {
	State commit.State `json:"state"`
	Diff  string       `json:"diff,omitempty"`
	Score float64      `json:"score"`
	Error string       `json:"error,omitempty"`
}

// Report is the result payload of sync and confirm jobs.
type Report struct {
	DryRun      bool                  `json:"dry_run"`
	CommitMode  int                   `json:"commit_mode"`
	Devices     []string              `json:"devices"`
	Changed     []string              `json:"changed"`
	Unchanged   []string              `json:"unchanged"`
	Failed      []string              `json:"failed"`
	Skipped     []string              `json:"skipped,omitempty"`
	Hosts       map[string]HostReport `json:"hosts"`
	ChangeScore float64               `json:"change_score"`
	NextJobID   *int64                `json:"next_job_id,omitempty"`
}

func newReport(devs []*models.Device, res *commit.PushResult) *Report {
	r := &Report{
		Devices:   models.Hostnames(devs),
		Changed:   res.Changed,
		Unchanged: res.Unchanged,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		Hosts:     make(map[string]HostReport, len(res.Hosts)),
	}

	for h, hr := range res.Hosts {
		rep := HostReport{State: hr.State, Diff: hr.Diff, Score: hr.Score}
		if hr.Err != nil {
			rep.Error = hr.Err.Error()
		}

		r.Hosts[h] = rep
	}

	return r
}

func (s *Syncer) mode(req Request) (commit.Mode, error) {
	if req.CommitMode == nil {
		return s.opts.CommitMode, nil
	}

	return commit.ParseMode(*req.CommitMode)
}

// SyncDevices renders and pushes configuration to the devices req selects.
func (s *Syncer) SyncDevices(ctx context.Context, exec *jobs.Execution, req Request) (*Report, error) {
	mode, err := s.mode(req)
	if err != nil {
		return nil, err
	}

	log := s.log.With().Int64("job_id", exec.JobID).Bool("dry_run", req.DryRun).Str("mode", mode.String()).Logger()

	devs, err := s.Resolve(ctx, req.Selector, req.Resync)
	if err != nil {
		return nil, err
	}

	if len(devs) == 0 {
		log.Info().Msg("no devices selected")

		return &Report{DryRun: req.DryRun, CommitMode: int(mode), Hosts: map[string]HostReport{}}, nil
	}

	live := !req.DryRun

	if live {
		if err := s.coord.AcquireLockWithRetry(ctx, models.FleetLockName, exec.JobID); err != nil {
			return nil, err
		}
	}

	held := live

	defer func() {
		if held {
			s.releaseLock(context.WithoutCancel(ctx), exec.JobID)
		}
	}()

	if err := s.drift.CheckDriftAll(ctx, devs, req.Force); err != nil {
		log.Warn().Err(err).Msg("drift check failed, nothing pushed")
		return nil, err
	}

	hosts := make([]commit.HostConfig, 0, len(devs))
	for _, dev := range devs {
		cfg, err := s.renderDevice(ctx, dev)
		hosts = append(hosts, commit.HostConfig{Device: dev, Config: cfg, Err: err})
	}

	res := s.pusher.Push(ctx, exec, hosts, commit.PushOptions{
		Mode:     mode,
		RevertIn: s.opts.RevertIn,
		DryRun:   req.DryRun,
		Replace:  true,
		Message:  fmt.Sprintf("netsync job %d", exec.JobID),
	})

	// Devices have been touched; record their state even if the job was aborted meanwhile.
	ctx = context.WithoutCancel(ctx)

	report := newReport(devs, res)
	report.DryRun = req.DryRun
	report.CommitMode = int(mode)
	report.ChangeScore = res.ChangeScore()

	byName := make(map[string]*models.Device, len(devs))
	for _, d := range devs {
		byName[d.Hostname] = d
	}

	s.persist(ctx, exec, byName, res, req.DryRun, mode)

	log.Info().
		Int("changed", len(res.Changed)).
		Int("failed", len(res.Failed)).
		Float64("change_score", report.ChangeScore).
		Msg("push complete")

	if len(res.Skipped) > 0 {
		return report, jobs.ErrAborted
	}

	if req.DryRun {
		s.maybeAutoPush(ctx, exec, req, devs, report)

		return report, nil
	}

	if mode != commit.ModeTwoPhase || (len(res.Changed) == 0 && len(res.Failed) == 0) {
		return report, nil
	}

	if len(res.Failed) > 0 {
		// Committed hosts revert on their own; keep others out until they have.
		log.Warn().Strs("failed", res.Failed).Dur("revert_in", s.opts.RevertIn).Msg("holding fleet lock until revert timers expire")
		waitRevert(ctx, s.opts.RevertIn)

		return report, nil
	}

	nextID, err := s.coord.Enqueue(ctx, ConfirmTaskName, ConfirmArgs{PrevJobID: exec.JobID, Hostnames: res.Changed}, 0, exec.Actor)
	if err != nil {
		log.Error().Err(err).Msg("unable to schedule confirm job, waiting for devices to revert")
		waitRevert(ctx, s.opts.RevertIn)

		return report, fmt.Errorf("schedule confirm: %w", err)
	}

	// The confirm job releases the lock.
	held = false
	report.NextJobID = &nextID

	log.Info().Int64("next_job_id", nextID).Msg("confirm job scheduled")

	return report, nil
}

func (s *Syncer) persist(
	ctx context.Context, exec *jobs.Execution, devs map[string]*models.Device, res *commit.PushResult, dryRun bool, mode commit.Mode,
) {
	if dryRun {
		for _, h := range res.Changed {
			s.markUnsynced(ctx, h, models.SyncCauseRefresh, exec.Actor, exec.JobID)
		}

		return
	}

	for _, h := range res.Unchanged {
		s.markSynced(ctx, devs[h])
	}

	if mode != commit.ModeTwoPhase {
		for _, h := range res.Changed {
			s.markSynced(ctx, devs[h])
		}
	}

	for _, h := range res.Failed {
		if err := s.store.SetSyncStatus(ctx, h, false); err != nil {
			s.log.Warn().Err(err).Str("hostname", h).Msg("unable to mark device unsynchronized")
		}
	}
}

func (s *Syncer) markSynced(ctx context.Context, dev *models.Device) {
	if err := s.store.SetSyncStatus(ctx, dev.Hostname, true); err != nil {
		s.log.Warn().Err(err).Str("hostname", dev.Hostname).Msg("unable to mark device synchronized")
		return
	}

	if err := s.events.RemoveSyncEvents(ctx, dev.Hostname); err != nil {
		s.log.Warn().Err(err).Str("hostname", dev.Hostname).Msg("unable to clear sync events")
	}

	if _, err := s.drift.UpdateFingerprint(ctx, dev); err != nil {
		s.log.Warn().Err(err).Str("hostname", dev.Hostname).Msg("unable to update fingerprint")
	}
}

func (s *Syncer) markUnsynced(ctx context.Context, hostname, cause, by string, jobID int64) {
	if err := s.store.SetSyncStatus(ctx, hostname, false); err != nil {
		s.log.Warn().Err(err).Str("hostname", hostname).Msg("unable to mark device unsynchronized")
	}

	if err := s.events.AddSyncEvent(ctx, hostname, cause, by, jobID); err != nil {
		s.log.Warn().Err(err).Str("hostname", hostname).Msg("unable to record sync event")
	}
}

func (s *Syncer) releaseLock(ctx context.Context, jobID int64) {
	if err := s.coord.ReleaseLock(ctx, models.FleetLockName, jobID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Error().Err(err).Int64("job_id", jobID).Msg("unable to release fleet lock")
	}
}

func (s *Syncer) maybeAutoPush(ctx context.Context, exec *jobs.Execution, req Request, devs []*models.Device, report *Report) {
	if !req.AutoPush || len(devs) != 1 || len(report.Changed) == 0 {
		return
	}

	if report.ChangeScore >= s.opts.AutoPushMaxScore {
		s.log.Info().
			Str("hostname", devs[0].Hostname).
			Float64("change_score", report.ChangeScore).
			Msg("change score too high for auto-push")

		return
	}

	live := req
	live.DryRun = false
	live.AutoPush = false

	id, err := s.coord.Enqueue(ctx, SyncTaskName, live, 0, exec.Actor)
	if err != nil {
		s.log.Error().Err(err).Msg("unable to schedule auto-push")
		return
	}

	report.NextJobID = &id

	s.log.Info().Int64("next_job_id", id).Str("hostname", devs[0].Hostname).Msg("auto-push scheduled")
}

// ConfirmDevices confirms the pending commits left by a two-phase sync and releases the
// lock prevJobID holds.
func (s *Syncer) ConfirmDevices(ctx context.Context, exec *jobs.Execution, prevJobID int64, hostnames []string) (*Report, error) {
	log := s.log.With().Int64("job_id", exec.JobID).Int64("prev_job_id", prevJobID).Logger()

	devs, err := s.store.ListDevices(ctx, store.DeviceFilter{Hostnames: hostnames})
	if err != nil {
		return nil, err
	}

	res := s.pusher.Confirm(ctx, exec, devs)
	ctx = context.WithoutCancel(ctx)
	report := newReport(devs, res)
	report.CommitMode = int(commit.ModeTwoPhase)

	byName := make(map[string]*models.Device, len(devs))
	for _, d := range devs {
		byName[d.Hostname] = d
	}

	for _, h := range res.Changed {
		s.markSynced(ctx, byName[h])
	}

	if len(res.Failed) == 0 {
		s.releaseLock(ctx, prevJobID)
		log.Info().Strs("hostnames", res.Changed).Msg("commits confirmed")

		return report, nil
	}

	for _, h := range res.Failed {
		s.markUnsynced(ctx, h, models.SyncCauseConfirmFailed, exec.Actor, exec.JobID)
	}

	log.Warn().Strs("failed", res.Failed).Dur("revert_in", s.opts.RevertIn).Msg("confirm failed, holding fleet lock until revert timers expire")
	waitRevert(ctx, s.opts.RevertIn)
	s.releaseLock(ctx, prevJobID)

	return report, errors.Join(ErrConfirmFailed, res.Errors())
}

// UpdateLinknets refreshes the stored links of hostname from its LLDP neighbors. When the
// stored links change, the device and the peers on changed links are marked out of sync.
func (s *Syncer) UpdateLinknets(ctx context.Context, hostname string, dryRun bool) ([]models.LinkRecord, error) {
	if s.neighbors == nil || s.resolver == nil {
		return nil, errMissingDeps
	}

	dev, err := s.store.GetDevice(ctx, hostname)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, hostname)
	}

	if err != nil {
		return nil, err
	}

	if !dev.State.IsSteady() {
		return nil, fmt.Errorf("%w: %s is %s", ErrDeviceNotManaged, hostname, dev.State)
	}

	data, err := s.neighbors.Neighbors(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", hostname, err)
	}

	before, err := s.store.ListLinknets(ctx, dev.ID)
	if err != nil {
		return nil, err
	}

	records, err := s.resolver.ResolveLinks(ctx, dev, dev.DeviceType, data, topology.ResolveOptions{DryRun: dryRun})
	if err != nil {
		return nil, err
	}

	if dryRun {
		return records, nil
	}

	after, err := s.store.ListLinknets(ctx, dev.ID)
	if err != nil {
		return nil, err
	}

	affected := changedPeers(dev.ID, before, after)
	if len(affected) == 0 {
		return records, nil
	}

	for _, id := range append([]int64{dev.ID}, affected...) {
		peer, err := s.store.GetDeviceByID(ctx, id)
		if err != nil {
			continue
		}

		s.markUnsynced(ctx, peer.Hostname, models.SyncCauseLinknetUpdate, "update_linknets", 0)
	}

	return records, nil
}

// changedPeers returns the remote device IDs of links present in only one of before and after.
func changedPeers(self int64, before, after []*models.Linknet) []int64 {
	key := func(l *models.Linknet) string {
		return fmt.Sprintf("%d:%s|%d:%s|%s", l.DeviceAID, l.DeviceAPort, l.DeviceBID, l.DeviceBPort, l.IPv4Network)
	}

	inBefore := make(map[string]struct{}, len(before))
	for _, l := range before {
		inBefore[key(l)] = struct{}{}
	}

	inAfter := make(map[string]struct{}, len(after))
	for _, l := range after {
		inAfter[key(l)] = struct{}{}
	}

	var peers []int64

	seen := map[int64]struct{}{self: {}}
	collect := func(links []*models.Linknet, other map[string]struct{}) {
		for _, l := range links {
			if _, ok := other[key(l)]; ok {
				continue
			}

			peer := l.DeviceBID
			if peer == self {
				peer = l.DeviceAID
			}

			if _, ok := seen[peer]; !ok {
				seen[peer] = struct{}{}
				peers = append(peers, peer)
			}
		}
	}

	collect(before, inAfter)
	collect(after, inBefore)

	return peers
}

func waitRevert(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
