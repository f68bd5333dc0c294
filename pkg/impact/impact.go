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

// Package impact estimates how risky a configuration diff is on a 0-100 scale.
package impact

import (
	"math"
	"regexp"
	"strings"
)

const (
	defaultLineScore = 1.0
	// MaxScore marks a change as failed, unknown or maximally risky.
	MaxScore = 100.0
)

type pattern struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

// patterns are tried in order; the first match sets the line's weight.
var patterns = []pattern{
	{name: "description", re: regexp.MustCompile(`^[+-] *description`), weight: 0},
	{name: "name", re: regexp.MustCompile(`^[+-] *name`), weight: 0},
	{name: "comment", re: regexp.MustCompile(`^[+-] *!`), weight: 0},
	{name: "removed ip address", re: regexp.MustCompile(`^- *.*ip address`), weight: 10},
	{name: "removed vlan", re: regexp.MustCompile(`^- *vlan`), weight: 10},
	{name: "removed interface", re: regexp.MustCompile(`^- *interface`), weight: 10},
	{name: "vrf", re: regexp.MustCompile(`^[+-] *vrf`), weight: 5},
	{name: "spanning-tree mode", re: regexp.MustCompile(`^[+-] *spanning-tree mode`), weight: 50},
	{name: "spanning-tree vlan", re: regexp.MustCompile(`^[+-] *spanning-tree vlan`), weight: 50},
}

// LineScore weighs a single changed diff line.
func LineScore(line string) float64 {
	for _, p := range patterns {
		if p.re.MatchString(line) {
			return p.weight
		}
	}

	return defaultLineScore
}

// Score rates diff against the full configuration it applies to. The result is not
// capped at MaxScore; Aggregate does that.
//
//	score = (changed/configLines*100*0.2 + sum(LineScore)*0.8) * distinctDiffLines/diffLines
func Score(config, diff string) float64 {
	if diff == "" {
		return 0
	}

	configLines := strings.Split(config, "\n")
	diffLines := strings.Split(diff, "\n")

	var (
		changed  int
		weighted float64
	)

	unique := make(map[string]struct{}, len(diffLines))

	for _, line := range diffLines {
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			changed++
			weighted += LineScore(line)
		}

		unique[line] = struct{}{}
	}

	changedRatio := float64(changed) / float64(len(configLines))
	uniqueRatio := float64(len(unique)) / float64(len(diffLines))

	score := (changedRatio*100*0.2 + weighted*0.8) * uniqueRatio

	return math.Max(score, 0)
}

// Aggregate folds per-host scores into the job's change score. Nothing changed scores 0;
// any failed host, or changes without scores, score MaxScore; otherwise the highest host
// score wins, rounded and clamped to [0, MaxScore].
func Aggregate(scores []float64, changed, failed int) float64 {
	if changed == 0 && failed == 0 {
		return 0
	}

	if failed > 0 || len(scores) == 0 {
		return MaxScore
	}

	highest := scores[0]
	for _, s := range scores[1:] {
		highest = math.Max(highest, s)
	}

	return math.Min(math.Max(math.Round(highest), 0), MaxScore)
}
