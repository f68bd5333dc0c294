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
)

// InterfaceConfigType describes how an access switch port is templated.
type InterfaceConfigType string

const (
	IfConfigUnknown        InterfaceConfigType = "UNKNOWN"
	IfConfigUnmanaged      InterfaceConfigType = "UNMANAGED"
	IfConfigCustom         InterfaceConfigType = "CUSTOM"
	IfConfigTemplate       InterfaceConfigType = "TEMPLATE"
	IfConfigMLAGPeer       InterfaceConfigType = "MLAG_PEER"
	IfConfigAccessAuto     InterfaceConfigType = "ACCESS_AUTO"
	IfConfigAccessUntagged InterfaceConfigType = "ACCESS_UNTAGGED"
	IfConfigAccessTagged   InterfaceConfigType = "ACCESS_TAGGED"
	IfConfigAccessUplink   InterfaceConfigType = "ACCESS_UPLINK"
	IfConfigAccessDownlink InterfaceConfigType = "ACCESS_DOWNLINK"
)

func ParseInterfaceConfigType(s string) (InterfaceConfigType, error) {
	t := InterfaceConfigType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case IfConfigUnknown, IfConfigUnmanaged, IfConfigCustom, IfConfigTemplate, IfConfigMLAGPeer,
		IfConfigAccessAuto, IfConfigAccessUntagged, IfConfigAccessTagged, IfConfigAccessUplink,
		IfConfigAccessDownlink:
		return t, nil
	default:
		return IfConfigUnknown, fmt.Errorf("%w: %q", ErrInvalidInterfaceType, s)
	}
}

// Interface data keys.
const (
	IfDataNeighbor       = "neighbor"
	IfDataNeighborID     = "neighbor_id"
	IfDataUntaggedVLAN   = "untagged_vlan"
	IfDataTaggedVLANList = "tagged_vlan_list"
	IfDataRedundantLink  = "redundant_link"
	IfDataTags           = "tags"
)

// Interface is a physical port on a device, keyed by (DeviceID, Name).
type Interface struct {
	DeviceID   int64               `json:"device_id"`
	Name       string              `json:"name"`
	ConfigType InterfaceConfigType `json:"configtype"`
	Data       map[string]any      `json:"data,omitempty"`
}

// RedundantLinkDisabled is true only when redundant_link is explicitly false.
func (i *Interface) RedundantLinkDisabled() bool {
	if i == nil || i.Data == nil {
		return false
	}

	v, ok := i.Data[IfDataRedundantLink].(bool)

	return ok && !v
}

// Neighbor returns the neighbor hostname stored on the interface, if any.
func (i *Interface) Neighbor() string {
	if i == nil || i.Data == nil {
		return ""
	}

	s, _ := i.Data[IfDataNeighbor].(string)

	return s
}

// Validate checks that uplink and MLAG ports name an existing neighbor.
func (i *Interface) Validate(exists func(hostname string) bool) error {
	if i.ConfigType != IfConfigAccessUplink && i.ConfigType != IfConfigMLAGPeer {
		return nil
	}

	n := i.Neighbor()
	if n == "" || (exists != nil && !exists(n)) {
		return fmt.Errorf("%w: %s (%s)", ErrMissingNeighbor, i.Name, i.ConfigType)
	}

	return nil
}
