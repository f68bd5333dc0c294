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

package topology

import (
	"errors"
	"fmt"
)

var (
	ErrNoFreeLinknet   = errors.New("no free linknet subnet in pool")
	errInvalidPool     = errors.New("linknet pool must be an IPv4 prefix no longer than /31")
	errNotOnLink       = errors.New("device is not an endpoint of link")
	errMissingSettings = errors.New("settings provider returned nothing")
)

// InterfaceError reports cabling that contradicts the interface classification.
type InterfaceError struct {
	Hostname  string
	Interface string
	Reason    string
}

func (e *InterfaceError) Error() string {
	return fmt.Sprintf("interface %s on %s: %s", e.Interface, e.Hostname, e.Reason)
}

// NeighborError reports a neighbor that cannot be used during provisioning.
type NeighborError struct {
	Hostname string
	Reason   string
}

func (e *NeighborError) Error() string {
	return fmt.Sprintf("neighbor check for %s: %s", e.Hostname, e.Reason)
}

// InitVerificationError reports that a device is not wired the way its role requires.
type InitVerificationError struct {
	Hostname string
	Reason   string
}

func (e *InitVerificationError) Error() string {
	return fmt.Sprintf("init verification for %s failed: %s", e.Hostname, e.Reason)
}
