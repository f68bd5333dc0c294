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
	"errors"
	"fmt"
)

var (
	ErrQueueFull          = errors.New("job queue full")
	ErrAborted            = errors.New("job aborted")
	ErrJobNotAbortable    = errors.New("job is not abortable")
	ErrUnknownTask        = errors.New("no task registered")
	ErrDuplicateTask      = errors.New("task already registered")
	ErrCoordinatorStopped = errors.New("coordinator stopped")
	ErrStopTimeout        = errors.New("coordinator stop timed out")
	errLockHeld           = errors.New("lock held by another job")
)

// LockError reports that a named lock was still held after every retry attempt.
type LockError struct {
	Name     string
	Attempts int
}

func (e *LockError) Error() string {
	return fmt.Sprintf("unable to acquire lock %q after %d attempts", e.Name, e.Attempts)
}
