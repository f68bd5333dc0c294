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

// Package commit drives the commit-confirm protocol against a fleet of devices.
package commit

import "fmt"

// State is where one host is in the commit protocol.
type State string

const (
	StateGenerated      State = "GENERATED"
	StateDiffed         State = "DIFFED"
	StateDiscarded      State = "DISCARDED"
	StatePendingConfirm State = "PENDING_CONFIRM"
	StateCommitted      State = "COMMITTED"
	StateFailed         State = "FAILED"
)

// Event moves a host between states.
type Event string

const (
	EventDiffed          Event = "diffed"
	EventDiscard         Event = "discard"
	EventCommit          Event = "commit"
	EventCommitWithTimer Event = "commit_with_timer"
	EventConfirm         Event = "confirm"
	EventFail            Event = "fail"
)

// Next returns the state reached from s on ev.
func (s State) Next(ev Event) (State, error) {
	if ev == EventFail {
		switch s {
		case StateGenerated, StateDiffed, StatePendingConfirm:
			return StateFailed, nil
		}
	}

	switch s {
	case StateGenerated:
		if ev == EventDiffed {
			return StateDiffed, nil
		}
	case StateDiffed:
		switch ev {
		case EventDiscard:
			return StateDiscarded, nil
		case EventCommit:
			return StateCommitted, nil
		case EventCommitWithTimer:
			return StatePendingConfirm, nil
		}
	case StatePendingConfirm:
		if ev == EventConfirm {
			return StateCommitted, nil
		}
	}

	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
}

// Terminal is true once the host needs no further protocol steps.
func (s State) Terminal() bool {
	return s == StateDiscarded || s == StateCommitted || s == StateFailed
}

// Mode selects how commits are confirmed.
type Mode int

const (
	// ModePlain commits without a revert timer.
	ModePlain Mode = 0
	// ModeAutoConfirm commits with a revert timer and confirms immediately per device.
	ModeAutoConfirm Mode = 1
	// ModeTwoPhase commits with a revert timer on every device and confirms in a later job.
	ModeTwoPhase Mode = 2
)

func ParseMode(v int) (Mode, error) {
	switch m := Mode(v); m {
	case ModePlain, ModeAutoConfirm, ModeTwoPhase:
		return m, nil
	default:
		return ModePlain, fmt.Errorf("%w: %d", ErrInvalidMode, v)
	}
}

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeAutoConfirm:
		return "auto-confirm"
	case ModeTwoPhase:
		return "two-phase"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// UsesTimer reports whether commits in this mode arm a revert timer.
func (m Mode) UsesTimer() bool { return m != ModePlain }
