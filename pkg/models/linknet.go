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

// Linknet is a point-to-point link between two device ports.
type Linknet struct {
	ID          int64  `json:"id"`
	DeviceAID   int64  `json:"device_a_id"`
	DeviceAPort string `json:"device_a_port"`
	DeviceBID   int64  `json:"device_b_id"`
	DeviceBPort string `json:"device_b_port"`
	// IPv4Network is a /31 in CIDR form, empty for layer 2 links.
	IPv4Network   string `json:"ipv4_network,omitempty"`
	DeviceAIP     string `json:"device_a_ip,omitempty"`
	DeviceBIP     string `json:"device_b_ip,omitempty"`
	RedundantLink bool   `json:"redundant_link"`
}

// Matches compares endpoints in either orientation.
func (l *Linknet) Matches(aID int64, aPort string, bID int64, bPort string) bool {
	if l.DeviceAID == aID && l.DeviceAPort == aPort && l.DeviceBID == bID && l.DeviceBPort == bPort {
		return true
	}

	return l.DeviceAID == bID && l.DeviceAPort == bPort && l.DeviceBID == aID && l.DeviceBPort == aPort
}

// Touches reports whether either endpoint is (deviceID, port).
func (l *Linknet) Touches(deviceID int64, port string) bool {
	return (l.DeviceAID == deviceID && l.DeviceAPort == port) ||
		(l.DeviceBID == deviceID && l.DeviceBPort == port)
}

// Record converts the stored link into plain data for rendering.
func (l *Linknet) Record(hostA, hostB string) LinkRecord {
	return LinkRecord{
		DeviceAHostname: hostA,
		DeviceAPort:     l.DeviceAPort,
		DeviceBHostname: hostB,
		DeviceBPort:     l.DeviceBPort,
		IPv4Network:     l.IPv4Network,
		DeviceAIP:       l.DeviceAIP,
		DeviceBIP:       l.DeviceBIP,
		RedundantLink:   l.RedundantLink,
	}
}

// LinkRecord is the detached form of a Linknet handed to templates.
type LinkRecord struct {
	DeviceAHostname string `json:"device_a_hostname"`
	DeviceAPort     string `json:"device_a_port"`
	DeviceBHostname string `json:"device_b_hostname"`
	DeviceBPort     string `json:"device_b_port"`
	IPv4Network     string `json:"ipv4_network,omitempty"`
	DeviceAIP       string `json:"device_a_ip,omitempty"`
	DeviceBIP       string `json:"device_b_ip,omitempty"`
	RedundantLink   bool   `json:"redundant_link"`
}

// Peer returns the hostname on the other side of the link from hostname.
func (r LinkRecord) Peer(hostname string) (string, bool) {
	switch hostname {
	case r.DeviceAHostname:
		return r.DeviceBHostname, true
	case r.DeviceBHostname:
		return r.DeviceAHostname, true
	default:
		return "", false
	}
}

// MgmtDomain is the management network shared by a pair of distribution switches.
type MgmtDomain struct {
	ID          int64  `json:"id"`
	DeviceAID   int64  `json:"device_a_id"`
	DeviceBID   int64  `json:"device_b_id,omitempty"`
	IPv4Gateway string `json:"ipv4_gw"`
	VLAN        int    `json:"vlan"`
	Description string `json:"description,omitempty"`
}
