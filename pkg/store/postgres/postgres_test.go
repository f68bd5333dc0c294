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

package postgres

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
	"github.com/carverauto/netsync/pkg/store/storetest"
)

const testURLEnv = "NETSYNC_TEST_POSTGRES_URL"

func TestBuildConnURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *models.PostgresConfig
		want    string
		wantErr error
	}{
		{
			name:    "nil config",
			wantErr: errMissingHost,
		},
		{
			name:    "missing host",
			cfg:     &models.PostgresConfig{Database: "cnaas"},
			wantErr: errMissingHost,
		},
		{
			name: "defaults",
			cfg:  &models.PostgresConfig{Host: "db", Database: "cnaas"},
			want: "postgres://db:5432/cnaas?application_name=netsync&sslmode=disable",
		},
		{
			name: "credentials and overrides",
			cfg: &models.PostgresConfig{
				Host: "db", Port: 6432, Database: "cnaas",
				Username: "cnaas", Password: "p@ss",
				SSLMode: "require", ApplicationName: "sync",
			},
			want: "postgres://cnaas:p%40ss@db:6432/cnaas?application_name=sync&sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := buildConnURL(tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	stmts := splitStatements(`-- header
CREATE TABLE a (
    id INT
);

-- comment
CREATE INDEX a_idx ON a (id);
SELECT 1`)

	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (\n    id INT\n)", stmts[0])
	assert.Equal(t, "CREATE INDEX a_idx ON a (id)", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestMigrationFiles(t *testing.T) {
	t.Parallel()

	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "00001", migrationVersion(names[0]))

	content, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.NotEmpty(t, splitStatements(string(content)))
}

func configFromURL(t *testing.T, raw string) *models.PostgresConfig {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)

	cfg := &models.PostgresConfig{
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Username: u.User.Username(),
		SSLMode:  u.Query().Get("sslmode"),
	}

	cfg.Password, _ = u.User.Password()

	if p := u.Port(); p != "" {
		cfg.Port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}

	return cfg
}

func TestStoreConformance(t *testing.T) {
	raw := os.Getenv(testURLEnv)
	if raw == "" {
		t.Skipf("%s not set", testURLEnv)
	}

	cfg := configFromURL(t, raw)

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()

		ctx := context.Background()

		s, err := Open(ctx, cfg, logger.NewTestLogger())
		require.NoError(t, err)

		_, err = s.pool.Exec(ctx, `TRUNCATE joblocks, jobs, mgmtdomains, linknets, interfaces, devices RESTART IDENTITY CASCADE`)
		require.NoError(t, err)

		return s
	})
}
