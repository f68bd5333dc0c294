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

import "errors"

var (
	errNoAuth           = errors.New("ssh: password or key_file is required")
	errNoHostKeyPolicy  = errors.New("ssh: known_hosts_file is required unless insecure_skip_host_key_check is set")
	errMissingCommand   = errors.New("ssh: platform command not configured")
	errUnknownPlatform  = errors.New("ssh: no command set for platform")
	errCommandExitError = errors.New("ssh: command failed")
)
