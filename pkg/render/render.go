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

// Package render turns device variables into configuration text.
package render

//go:generate mockgen -destination=mock_render.go -package=render github.com/carverauto/netsync/pkg/render Renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	errMissingDir       = errors.New("templates directory is required")
)

const templateExt = ".j2"

// Renderer builds the full configuration for a device.
type Renderer interface {
	Render(ctx context.Context, platform string, role models.DeviceType, vars map[string]any) (string, error)
}

// TemplateRenderer reads <dir>/<platform>/<role>.j2 as Go text/templates with the sprig
// function set. Files in <dir>/<platform>/ other than role templates are parsed alongside
// and may be pulled in with {{ template "name.j2" . }}.
type TemplateRenderer struct {
	dir string
	log logger.Logger

	mu    sync.Mutex
	cache map[string]*template.Template
}

var _ Renderer = (*TemplateRenderer)(nil)

func NewTemplateRenderer(dir string, log logger.Logger) (*TemplateRenderer, error) {
	if dir == "" {
		return nil, errMissingDir
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("templates directory: %w", err)
	}

	return &TemplateRenderer{
		dir:   dir,
		log:   logger.Wrap(log.WithComponent("render")),
		cache: make(map[string]*template.Template),
	}, nil
}

// Reset drops parsed templates so edited files are picked up.
func (r *TemplateRenderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*template.Template)
}

func (r *TemplateRenderer) platformTemplates(platform string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.cache[platform]; ok {
		return t, nil
	}

	if platform == "" || strings.ContainsAny(platform, `/\`) || platform == ".." {
		return nil, fmt.Errorf("%w: invalid platform %q", ErrTemplateNotFound, platform)
	}

	pattern := filepath.Join(r.dir, platform, "*"+templateExt)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no templates for platform %s", ErrTemplateNotFound, platform)
	}

	t, err := template.New(platform).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").ParseFiles(matches...)
	if err != nil {
		return nil, fmt.Errorf("parse %s templates: %w", platform, err)
	}

	r.cache[platform] = t
	r.log.Debug().Str("platform", platform).Int("files", len(matches)).Msg("templates parsed")

	return t, nil
}

func (r *TemplateRenderer) Render(_ context.Context, platform string, role models.DeviceType, vars map[string]any) (string, error) {
	set, err := r.platformTemplates(platform)
	if err != nil {
		return "", err
	}

	name := strings.ToLower(string(role)) + templateExt

	t := set.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, platform, name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render %s/%s: %w", platform, name, err)
	}

	return buf.String(), nil
}
