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

import "errors"

var (
	ErrInvalidDeviceType    = errors.New("invalid device type")
	ErrInvalidDeviceState   = errors.New("invalid device state")
	ErrInvalidJobStatus     = errors.New("invalid job status")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrInvalidInterfaceType = errors.New("invalid interface config type")
	ErrMissingNeighbor      = errors.New("interface requires a neighbor")
	errInvalidDuration      = errors.New("invalid duration")
	errInvalidCommitMode    = errors.New("commit_confirmed_mode must be 0, 1 or 2")
	errMissingListenAddr    = errors.New("listen_addr is required")
	errInvalidWorkers       = errors.New("workers must be positive")
	errInvalidInfraLinknet  = errors.New("infra_linknet must be an IPv4 prefix no longer than /31")
	errInvalidStoreDriver   = errors.New("store.driver must be memory, postgres or sqlite")
	errMissingPostgres      = errors.New("store.postgres is required for the postgres driver")
	errMissingSQLitePath    = errors.New("store.sqlite_path is required for the sqlite driver")
)
