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

package drift

import (
	"fmt"
	"strings"
)

// DriftError names devices whose running configuration no longer matches the stored fingerprint.
type DriftError struct {
	Hostnames []string
}

func (e *DriftError) Error() string {
	if len(e.Hostnames) == 1 {
		return fmt.Sprintf("configuration drift detected on %s", e.Hostnames[0])
	}

	return fmt.Sprintf("configuration drift detected on %d devices: %s", len(e.Hostnames), strings.Join(e.Hostnames, ", "))
}
