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

// Package settings supplies per-device settings: interface classification tables used by
// topology checks and the variables handed to the renderer.
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/carverauto/netsync/pkg/models"
)

// Interface classes.
const (
	IfClassFabric   = "fabric"
	IfClassDownlink = "downlink"
	IfClassCustom   = "custom"
	IfClassMLAGPeer = "mlag_peer"
	// IfClassPortTemplatePrefix prefixes classes naming a port template, e.g. port_template_ap.
	IfClassPortTemplatePrefix = "port_template_"
)

// Provider resolves settings for devices.
type Provider interface {
	GetSettings(ctx context.Context, hostname string, role models.DeviceType, model string) (*DeviceSettings, error)
	// GroupMembers returns the hostnames that belong to group.
	GroupMembers(ctx context.Context, group string, hostnames []string) ([]string, error)
}

// InterfaceSettings declares how one port is used.
type InterfaceSettings struct {
	Name        string `yaml:"name" json:"name"`
	IfClass     string `yaml:"ifclass" json:"ifclass"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Config      string `yaml:"config,omitempty" json:"config,omitempty"`
	// RedundantLink is nil unless set; only an explicit false disables redundancy.
	RedundantLink *bool    `yaml:"redundant_link,omitempty" json:"redundant_link,omitempty"`
	Tags          []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// RedundancyDisabled reports whether redundant_link is explicitly false.
func (i *InterfaceSettings) RedundancyDisabled() bool {
	return i != nil && i.RedundantLink != nil && !*i.RedundantLink
}

func validIfClass(class string) bool {
	switch class {
	case IfClassFabric, IfClassDownlink, IfClassCustom, IfClassMLAGPeer:
		return true
	default:
		return strings.HasPrefix(class, IfClassPortTemplatePrefix) && len(class) > len(IfClassPortTemplatePrefix)
	}
}

// DeviceSettings is the merged view for one device.
type DeviceSettings struct {
	Interfaces []InterfaceSettings `json:"interfaces"`
	Vars       map[string]any      `json:"vars"`
}

// Interface looks up a declared port.
func (s *DeviceSettings) Interface(name string) (*InterfaceSettings, bool) {
	if s == nil {
		return nil, false
	}

	for i := range s.Interfaces {
		if s.Interfaces[i].Name == name {
			return &s.Interfaces[i], true
		}
	}

	return nil, false
}

// HasInterface reports whether name is declared, optionally with one of classes.
func (s *DeviceSettings) HasInterface(name string, classes ...string) bool {
	ifc, ok := s.Interface(name)
	if !ok {
		return false
	}

	if len(classes) == 0 {
		return true
	}

	for _, c := range classes {
		if ifc.IfClass == c {
			return true
		}
	}

	return false
}

// TemplateVars flattens settings into renderer variables.
func (s *DeviceSettings) TemplateVars() map[string]any {
	vars := make(map[string]any, len(s.Vars)+1)
	for k, v := range s.Vars {
		vars[k] = v
	}

	vars["interfaces"] = s.Interfaces

	return vars
}

func (s *DeviceSettings) validate(scope string) error {
	for _, ifc := range s.Interfaces {
		if ifc.Name == "" {
			return fmt.Errorf("%s: %w", scope, errMissingName)
		}

		if !validIfClass(ifc.IfClass) {
			return fmt.Errorf("%s: %w: %q on %s", scope, ErrInvalidIfClass, ifc.IfClass, ifc.Name)
		}
	}

	return nil
}
