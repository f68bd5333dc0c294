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

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
)

// Task is the unit of work a job runs. The coordinator owns all status bookkeeping;
// a task only returns its outcome.
type Task interface {
	Run(ctx context.Context, exec *Execution) (Result, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, exec *Execution) (Result, error)

func (f TaskFunc) Run(ctx context.Context, exec *Execution) (Result, error) {
	return f(ctx, exec)
}

// TaskFactory builds a Task from the job's stored start arguments.
type TaskFactory func(args json.RawMessage) (Task, error)

// Result is what a finished task hands back to the coordinator.
type Result struct {
	// Payload is stored as the job result. It must marshal to JSON.
	Payload     any
	NextJobID   *int64
	ChangeScore *float64
}

// DecodeArgs is a TaskFactory helper for JSON-argument tasks.
func DecodeArgs[T any](args json.RawMessage) (T, error) {
	var v T

	if len(args) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("decode task arguments: %w", err)
	}

	return v, nil
}
