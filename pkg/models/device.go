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
	"fmt"
	"strings"
	"time"
)

// DeviceType is the role a device plays in the campus topology.
type DeviceType string

const (
	DeviceTypeUnknown DeviceType = "UNKNOWN"
	DeviceTypeAccess  DeviceType = "ACCESS"
	DeviceTypeDist    DeviceType = "DIST"
	DeviceTypeCore    DeviceType = "CORE"
)

// ParseDeviceType accepts any casing of the known roles.
func ParseDeviceType(s string) (DeviceType, error) {
	switch t := DeviceType(strings.ToUpper(strings.TrimSpace(s))); t {
	case DeviceTypeUnknown, DeviceTypeAccess, DeviceTypeDist, DeviceTypeCore:
		return t, nil
	default:
		return DeviceTypeUnknown, fmt.Errorf("%w: %q", ErrInvalidDeviceType, s)
	}
}

// IsFabric reports whether the role takes part in the routed fabric.
func (t DeviceType) IsFabric() bool {
	return t == DeviceTypeDist || t == DeviceTypeCore
}

// DeviceState is a step in the device provisioning lifecycle.
type DeviceState string

const (
	DeviceStateUnknown       DeviceState = "UNKNOWN"
	DeviceStatePreConfigured DeviceState = "PRE_CONFIGURED"
	DeviceStateDHCPBoot      DeviceState = "DHCP_BOOT"
	DeviceStateDiscovered    DeviceState = "DISCOVERED"
	DeviceStateInit          DeviceState = "INIT"
	DeviceStateManaged       DeviceState = "MANAGED"
	DeviceStateManagedNoIf   DeviceState = "MANAGED_NOIF"
	DeviceStateUnmanaged     DeviceState = "UNMANAGED"
)

var deviceStateTransitions = map[DeviceState][]DeviceState{
	DeviceStateUnknown:       {DeviceStateDHCPBoot, DeviceStatePreConfigured},
	DeviceStatePreConfigured: {DeviceStateDHCPBoot},
	DeviceStateDHCPBoot:      {DeviceStateDiscovered},
	DeviceStateDiscovered:    {DeviceStateInit, DeviceStateUnmanaged},
	DeviceStateInit:          {DeviceStateManaged, DeviceStateManagedNoIf, DeviceStateDiscovered},
	DeviceStateManaged:       {DeviceStateUnmanaged, DeviceStateManagedNoIf},
	DeviceStateManagedNoIf:   {DeviceStateManaged, DeviceStateUnmanaged},
	DeviceStateUnmanaged:     {DeviceStateManaged, DeviceStateManagedNoIf},
}

func ParseDeviceState(s string) (DeviceState, error) {
	st := DeviceState(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := deviceStateTransitions[st]; !ok {
		return DeviceStateUnknown, fmt.Errorf("%w: %q", ErrInvalidDeviceState, s)
	}

	return st, nil
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s DeviceState) CanTransition(next DeviceState) bool {
	for _, allowed := range deviceStateTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Transition returns next or ErrInvalidTransition.
func (s DeviceState) Transition(next DeviceState) (DeviceState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: device state %s -> %s", ErrInvalidTransition, s, next)
	}

	return next, nil
}

// IsProvisioning is true while zero-touch provisioning owns the device.
func (s DeviceState) IsProvisioning() bool {
	return s == DeviceStateDiscovered || s == DeviceStateInit
}

// IsSteady is true for devices whose stored role can be trusted.
func (s DeviceState) IsSteady() bool {
	return s == DeviceStateManaged || s == DeviceStateUnmanaged
}

// Device is a managed network switch.
type Device struct {
	ID           int64       `json:"id"`
	Hostname     string      `json:"hostname"`
	DeviceType   DeviceType  `json:"device_type"`
	State        DeviceState `json:"state"`
	ManagementIP string      `json:"management_ip,omitempty"`
	Platform     string      `json:"platform,omitempty"`
	Model        string      `json:"model,omitempty"`
	// ConfHash is the hex SHA-256 of the last configuration the system knows it wrote.
	ConfHash     string    `json:"confhash,omitempty"`
	Synchronized bool      `json:"synchronized"`
	LastSeen     time.Time `json:"last_seen"`
}

// Clone returns a copy safe to hand across goroutines.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	c := *d

	return &c
}

// Hostnames extracts the hostnames of devs in order.
func Hostnames(devs []*Device) []string {
	out := make([]string, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.Hostname)
	}

	return out
}
