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

package sshcli

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/carverauto/netsync/pkg/models"
)

// DefaultCommands holds built-in command sets. Entries in the service config override them.
var DefaultCommands = map[string]models.SSHPlatformCommands{
	"eos": {
		ShowRunning:   "show running-config",
		LoadCandidate: "configure session {{ .Session }}{{ if .Replace }} rollback clean-config{{ end }}",
		ShowDiff:      "show session-config named {{ .Session }} diffs",
		Commit:        "configure session {{ .Session }} commit",
		CommitTimer:   "configure session {{ .Session }} commit timer {{ .RevertTimer }}",
		Confirm:       "configure session {{ .Session }} commit",
		Discard:       "configure session {{ .Session }} abort",
	},
}

// commandData is what command templates see.
type commandData struct {
	Hostname      string
	Session       string
	Replace       bool
	Message       string
	RevertSeconds int
	// RevertTimer is the revert delay as hh:mm:ss.
	RevertTimer string
}

func newCommandData(dev *models.Device, session string) commandData {
	return commandData{Hostname: dev.Hostname, Session: session}
}

func (d commandData) withRevert(revertIn time.Duration) commandData {
	secs := int(revertIn.Round(time.Second) / time.Second)
	d.RevertSeconds = secs
	d.RevertTimer = fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)

	return d
}

type commandSet struct {
	showRunning   *template.Template
	loadCandidate *template.Template
	showDiff      *template.Template
	commit        *template.Template
	commitTimer   *template.Template
	confirm       *template.Template
	discard       *template.Template
}

func compileCommands(platform string, raw models.SSHPlatformCommands) (*commandSet, error) {
	var (
		cs  commandSet
		err error
	)

	compile := func(name, text string) *template.Template {
		if err != nil || text == "" {
			return nil
		}

		var t *template.Template

		t, err = template.New(platform + "/" + name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
		if err != nil {
			err = fmt.Errorf("parse %s command for %s: %w", name, platform, err)
		}

		return t
	}

	cs.showRunning = compile("show_running", raw.ShowRunning)
	cs.loadCandidate = compile("load_candidate", raw.LoadCandidate)
	cs.showDiff = compile("show_diff", raw.ShowDiff)
	cs.commit = compile("commit", raw.Commit)
	cs.commitTimer = compile("commit_timer", raw.CommitTimer)
	cs.confirm = compile("confirm", raw.Confirm)
	cs.discard = compile("discard", raw.Discard)

	if err != nil {
		return nil, err
	}

	for name, t := range map[string]*template.Template{
		"show_running":   cs.showRunning,
		"load_candidate": cs.loadCandidate,
		"commit":         cs.commit,
	} {
		if t == nil {
			return nil, fmt.Errorf("%w: %s/%s", errMissingCommand, platform, name)
		}
	}

	return &cs, nil
}

func execute(t *template.Template, data commandData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render command %s: %w", t.Name(), err)
	}

	return buf.String(), nil
}
