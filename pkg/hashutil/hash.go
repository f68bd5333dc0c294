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

// Package hashutil computes and compares configuration fingerprints.
package hashutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrEmptyChecksum       = errors.New("empty checksum string")
	ErrUnsupportedEncoding = errors.New("unsupported checksum encoding")
)

// ConfigFingerprint returns the lowercase hex SHA-256 of the full configuration text.
// The text is hashed byte for byte; no normalization is applied.
func ConfigFingerprint(config string) string {
	sum := sha256.Sum256([]byte(config))

	return hex.EncodeToString(sum[:])
}

// MatchesFingerprint reports whether stored is the fingerprint of config.
func MatchesFingerprint(stored, config string) bool {
	return EqualSHA256(stored, sha256.Sum256([]byte(config)))
}

// DecodeSHA256String decodes a checksum which may be hex or base64 encoded
// and returns the raw 32-byte digest.
func DecodeSHA256String(s string) ([]byte, error) {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return nil, ErrEmptyChecksum
	}

	if decoded, err := hex.DecodeString(clean); err == nil && len(decoded) == sha256.Size {
		return decoded, nil
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(clean); err == nil && len(decoded) == sha256.Size {
			return decoded, nil
		}
	}

	return nil, ErrUnsupportedEncoding
}

// EqualSHA256 compares a stored checksum against a digest in constant time.
func EqualSHA256(expected string, actual [32]byte) bool {
	decoded, err := DecodeSHA256String(expected)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(decoded, actual[:]) == 1
}
