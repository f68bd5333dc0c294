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

package settings

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
)

// Document is the YAML layout read by FileProvider. Scopes merge global, role, model and
// device in increasing precedence; interfaces merge by name and vars by key.
type Document struct {
	Global  Scope            `yaml:"global"`
	Roles   map[string]Scope `yaml:"roles"`
	Models  map[string]Scope `yaml:"models"`
	Devices map[string]Scope `yaml:"devices"`
	Groups  []Group          `yaml:"groups"`
}

type Scope struct {
	Interfaces []InterfaceSettings `yaml:"interfaces"`
	Vars       map[string]any      `yaml:"vars"`
}

// Group selects devices by hostname regex.
type Group struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

type compiledGroup struct {
	name string
	re   *regexp.Regexp
}

// FileProvider serves settings from a YAML document.
type FileProvider struct {
	path string
	log  logger.Logger

	mu     sync.RWMutex
	doc    *Document
	groups []compiledGroup
}

var _ Provider = (*FileProvider)(nil)

// NewFileProvider loads path.
func NewFileProvider(path string, log logger.Logger) (*FileProvider, error) {
	p := &FileProvider{path: path, log: log}

	if err := p.Reload(); err != nil {
		return nil, err
	}

	return p, nil
}

// NewProvider serves a document read from r.
func NewProvider(r io.Reader, log logger.Logger) (*FileProvider, error) {
	p := &FileProvider{log: log}

	doc, groups, err := parse(r)
	if err != nil {
		return nil, err
	}

	p.doc, p.groups = doc, groups

	return p, nil
}

// Reload re-reads the file. A broken file leaves the previous settings in place.
func (p *FileProvider) Reload() error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer func() { _ = f.Close() }()

	doc, groups, err := parse(f)
	if err != nil {
		return fmt.Errorf("settings %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.doc, p.groups = doc, groups
	p.mu.Unlock()

	p.log.Info().Str("path", p.path).Int("devices", len(doc.Devices)).Int("groups", len(groups)).Msg("settings loaded")

	return nil
}

func parse(r io.Reader) (*Document, []compiledGroup, error) {
	var doc Document

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("decode settings: %w", err)
	}

	scopes := map[string]Scope{"global": doc.Global}
	for name, s := range doc.Roles {
		scopes["roles."+name] = s
	}

	for name, s := range doc.Models {
		scopes["models."+name] = s
	}

	for name, s := range doc.Devices {
		scopes["devices."+name] = s
	}

	for name, s := range scopes {
		ds := DeviceSettings{Interfaces: s.Interfaces}
		if err := ds.validate(name); err != nil {
			return nil, nil, err
		}
	}

	groups := make([]compiledGroup, 0, len(doc.Groups))

	for _, g := range doc.Groups {
		if g.Name == "" || g.Regex == "" {
			return nil, nil, fmt.Errorf("%w: name and regex are required", errInvalidGroup)
		}

		re, err := regexp.Compile(g.Regex)
		if err != nil {
			return nil, nil, fmt.Errorf("%w %s: %w", errInvalidGroup, g.Name, err)
		}

		groups = append(groups, compiledGroup{name: g.Name, re: re})
	}

	return &doc, groups, nil
}

func (p *FileProvider) GetSettings(_ context.Context, hostname string, role models.DeviceType, model string) (*DeviceSettings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	scopes := []Scope{p.doc.Global, p.doc.Roles[strings.ToLower(string(role))]}
	if model != "" {
		scopes = append(scopes, p.doc.Models[model])
	}

	scopes = append(scopes, p.doc.Devices[hostname])

	out := &DeviceSettings{Vars: make(map[string]any)}
	index := make(map[string]int)

	for _, s := range scopes {
		for _, ifc := range s.Interfaces {
			if i, ok := index[ifc.Name]; ok {
				out.Interfaces[i] = ifc
				continue
			}

			index[ifc.Name] = len(out.Interfaces)
			out.Interfaces = append(out.Interfaces, ifc)
		}

		for k, v := range s.Vars {
			out.Vars[k] = v
		}
	}

	return out, nil
}

func (p *FileProvider) GroupMembers(_ context.Context, group string, hostnames []string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, g := range p.groups {
		if g.name != group {
			continue
		}

		var members []string

		for _, h := range hostnames {
			if g.re.MatchString(h) {
				members = append(members, h)
			}
		}

		return members, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, group)
}
