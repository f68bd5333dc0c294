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

import "time"

// Sync event causes.
const (
	SyncCauseRefresh       = "refresh"
	SyncCauseDrift         = "drift"
	SyncCauseLinknetUpdate = "linknet_update"
	SyncCauseConfirmFailed = "confirm_failed"
)

// SyncEvent records why a device may be out of sync.
type SyncEvent struct {
	Cause     string    `json:"cause"`
	Timestamp time.Time `json:"timestamp"`
	By        string    `json:"by"`
	JobID     int64     `json:"job_id,omitempty"`
}

// CloudEvent is a CloudEvents 1.0 envelope.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// JobProgress is published while a job works through its devices.
type JobProgress struct {
	JobID           int64     `json:"job_id"`
	FinishedDevices []string  `json:"finished_devices"`
	Timestamp       time.Time `json:"timestamp"`
}
