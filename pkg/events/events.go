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

// Package events keeps the short-lived sync history and job progress that do not belong in the
// relational store. Every write is best effort; callers log failures and carry on.
package events

import (
	"context"

	"github.com/carverauto/netsync/pkg/models"
)

// Store records why devices drifted out of sync and how far a job has progressed.
type Store interface {
	AddSyncEvent(ctx context.Context, hostname, cause, by string, jobID int64) error
	ListSyncEvents(ctx context.Context, hostname string) ([]models.SyncEvent, error)
	RemoveSyncEvents(ctx context.Context, hostname string) error
	PublishProgress(ctx context.Context, jobID int64, hostnames []string) error
	GetProgress(ctx context.Context, jobID int64) (*models.JobProgress, error)
}
