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

import "errors"

var (
	ErrInvalidSelector  = errors.New("exactly one of hostname, device_type, group or all must be set")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDeviceNotManaged = errors.New("device is not in state MANAGED")
	ErrConfirmFailed    = errors.New("confirm failed on one or more devices")
	errMissingDeps      = errors.New("syncer is missing a required dependency")
)
