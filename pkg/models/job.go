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

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobStatusScheduled JobStatus = "SCHEDULED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusFinished  JobStatus = "FINISHED"
	JobStatusException JobStatus = "EXCEPTION"
	JobStatusAborted   JobStatus = "ABORTED"
	JobStatusAborting  JobStatus = "ABORTING"
)

var jobStatusTransitions = map[JobStatus][]JobStatus{
	JobStatusScheduled: {JobStatusRunning, JobStatusAborted},
	JobStatusRunning:   {JobStatusFinished, JobStatusException, JobStatusAborting, JobStatusAborted},
	JobStatusAborting:  {JobStatusAborted, JobStatusFinished, JobStatusException},
	JobStatusFinished:  nil,
	JobStatusException: nil,
	JobStatusAborted:   nil,
}

func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := jobStatusTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobStatus, s)
	}

	return st, nil
}

func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Transition returns next or ErrInvalidTransition.
func (s JobStatus) Transition(next JobStatus) (JobStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: job status %s -> %s", ErrInvalidTransition, s, next)
	}

	return next, nil
}

// IsTerminal is true once a job can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusFinished || s == JobStatusException || s == JobStatusAborted
}

// Job is the persisted record of a background task.
type Job struct {
	ID              int64           `json:"id"`
	Status          JobStatus       `json:"status"`
	FunctionName    string          `json:"function_name"`
	ScheduledBy     string          `json:"scheduled_by"`
	Comment         string          `json:"comment,omitempty"`
	TicketRef       string          `json:"ticket_ref,omitempty"`
	ScheduledTime   time.Time       `json:"scheduled_time"`
	StartTime       *time.Time      `json:"start_time,omitempty"`
	FinishTime      *time.Time      `json:"finish_time,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Exception       json.RawMessage `json:"exception,omitempty"`
	FinishedDevices []string        `json:"finished_devices,omitempty"`
	NextJobID       *int64          `json:"next_job_id,omitempty"`
	ChangeScore     *float64        `json:"change_score,omitempty"`
	StartArguments  json.RawMessage `json:"start_arguments,omitempty"`
}

// JobException is the shape stored in Job.Exception.
type JobException struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// Joblock is a named exclusive lock owned by a job. Row existence is the lock.
type Joblock struct {
	Name      string     `json:"name"`
	JobID     int64      `json:"job_id"`
	StartTime time.Time  `json:"start_time"`
	AbortTime *time.Time `json:"abort_time,omitempty"`
}

// FleetLockName guards every configuration-changing job.
const FleetLockName = "devices"
