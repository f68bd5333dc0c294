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

package sync

import (
	"context"
	"encoding/json"

	"github.com/carverauto/netsync/pkg/jobs"
)

const (
	SyncTaskName    = "sync_devices"
	ConfirmTaskName = "confirm_devices"
)

// ConfirmArgs are the arguments of a confirm_devices job.
type ConfirmArgs struct {
	PrevJobID int64    `json:"prev_job_id"`
	Hostnames []string `json:"hostnames"`
}

// SyncTask runs SyncDevices as a job.
type SyncTask struct {
	syncer *Syncer
	req    Request
}

func (t *SyncTask) Run(ctx context.Context, exec *jobs.Execution) (jobs.Result, error) {
	report, err := t.syncer.SyncDevices(ctx, exec, t.req)
	if report == nil {
		return jobs.Result{}, err
	}

	score := report.ChangeScore

	return jobs.Result{Payload: report, NextJobID: report.NextJobID, ChangeScore: &score}, err
}

// ConfirmTask runs ConfirmDevices as a job.
type ConfirmTask struct {
	syncer *Syncer
	args   ConfirmArgs
}

func (t *ConfirmTask) Run(ctx context.Context, exec *jobs.Execution) (jobs.Result, error) {
	report, err := t.syncer.ConfirmDevices(ctx, exec, t.args.PrevJobID, t.args.Hostnames)
	if report == nil {
		return jobs.Result{}, err
	}

	return jobs.Result{Payload: report}, err
}

// TaskRegistry is satisfied by *jobs.Coordinator.
type TaskRegistry interface {
	Register(name string, factory jobs.TaskFactory) error
}

// RegisterTasks binds sync_devices and confirm_devices to s.
func RegisterTasks(r TaskRegistry, s *Syncer) error {
	err := r.Register(SyncTaskName, func(args json.RawMessage) (jobs.Task, error) {
		req, err := jobs.DecodeArgs[Request](args)
		if err != nil {
			return nil, err
		}

		if err := req.Validate(); err != nil {
			return nil, err
		}

		return &SyncTask{syncer: s, req: req}, nil
	})
	if err != nil {
		return err
	}

	return r.Register(ConfirmTaskName, func(args json.RawMessage) (jobs.Task, error) {
		a, err := jobs.DecodeArgs[ConfirmArgs](args)
		if err != nil {
			return nil, err
		}

		return &ConfirmTask{syncer: s, args: a}, nil
	})
}
