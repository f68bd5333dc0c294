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
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid commit state transition")
	ErrInvalidMode       = errors.New("invalid commit mode")
)

// Stage names the step of the protocol a host failed in.
type Stage string

const (
	StageRender  Stage = "render"
	StageLoad    Stage = "load"
	StageDiscard Stage = "discard"
	StageCommit  Stage = "commit"
	StageConfirm Stage = "confirm"
)

// HostError is a per-device failure.
type HostError struct {
	Hostname string
	Stage    Stage
	Err      error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Stage, e.Hostname, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }
