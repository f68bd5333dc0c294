package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/jobs"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/provision"
	"github.com/carverauto/netsync/pkg/store"
	netsync "github.com/carverauto/netsync/pkg/sync"
	"github.com/carverauto/netsync/pkg/topology"
)

type enqueued struct {
	name  string
	args  any
	actor string
}

type fakeJobs struct {
	enqueued []enqueued
	enqErr   error
	jobs     map[int64]*models.Job
	locks    []*models.Joblock
	abortErr error
}

func (f *fakeJobs) Enqueue(_ context.Context, name string, args any, _ time.Duration, actor string, _ ...jobs.EnqueueOption) (int64, error) {
	if f.enqErr != nil {
		return 0, f.enqErr
	}

	f.enqueued = append(f.enqueued, enqueued{name: name, args: args, actor: actor})

	return int64(len(f.enqueued)), nil
}

func (f *fakeJobs) GetJob(_ context.Context, id int64) (*models.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}

	return nil, store.ErrNotFound
}

func (f *fakeJobs) Abort(_ context.Context, id int64, _, _ string) (*models.Job, error) {
	if f.abortErr != nil {
		return nil, f.abortErr
	}

	j, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	j.Status = models.JobStatusAborting

	return j, nil
}

func (f *fakeJobs) ListLocks(context.Context) ([]*models.Joblock, error) {
	return f.locks, nil
}

func (f *fakeJobs) ForceReleaseLock(_ context.Context, name string) error {
	for i, l := range f.locks {
		if l.Name == name {
			f.locks = append(f.locks[:i], f.locks[i+1:]...)
			return nil
		}
	}

	return store.ErrNotFound
}

type fakeLinknets struct {
	records []models.LinkRecord
	err     error
	dryRun  bool
}

func (f *fakeLinknets) UpdateLinknets(_ context.Context, _ string, dryRun bool) ([]models.LinkRecord, error) {
	f.dryRun = dryRun
	return f.records, f.err
}

type fakeChecker struct {
	err  error
	opts provision.CheckOptions
}

func (f *fakeChecker) PreInitCheck(_ context.Context, _ string, _ models.DeviceType, opts provision.CheckOptions) ([]string, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}

	return []string{"dist1", "dist2"}, nil
}

func (f *fakeChecker) MarkManaged(_ context.Context, hostname string, role models.DeviceType) (*models.Device, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &models.Device{Hostname: hostname, DeviceType: role, State: models.DeviceStateManaged}, nil
}

func do(t *testing.T, s *Server, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestDeviceSyncTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       any
		enqErr     error
		wantStatus int
	}{
		{name: "hostname", body: SyncToRequest{Hostname: "eosaccess", DryRun: true}, wantStatus: http.StatusOK},
		{name: "device type lowercased", body: SyncToRequest{DeviceType: "access"}, wantStatus: http.StatusOK},
		{name: "all", body: SyncToRequest{All: true, Comment: "nightly"}, wantStatus: http.StatusOK},
		{name: "no selector", body: SyncToRequest{DryRun: true}, wantStatus: http.StatusBadRequest},
		{name: "two selectors", body: SyncToRequest{Hostname: "a", All: true}, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: map[string]any{"hostname": "a", "bogus": 1}, wantStatus: http.StatusBadRequest},
		{name: "queue full", body: SyncToRequest{All: true}, enqErr: jobs.ErrQueueFull, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			js := &fakeJobs{enqErr: tt.enqErr}
			s := NewServer(js, logger.NewTestLogger())

			rec := do(t, s, http.MethodPost, "/api/v1.0/device_syncto", tt.body, actorHeader, "alice")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, js.enqueued)
				return
			}

			var resp JobIDResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, int64(1), resp.JobID)

			require.Len(t, js.enqueued, 1)
			assert.Equal(t, netsync.SyncTaskName, js.enqueued[0].name)
			assert.Equal(t, "alice", js.enqueued[0].actor)
		})
	}
}

func TestDeviceSyncToNormalizesDeviceType(t *testing.T) {
	t.Parallel()

	js := &fakeJobs{}
	s := NewServer(js, logger.NewTestLogger())

	rec := do(t, s, http.MethodPost, "/api/v1.0/device_syncto", SyncToRequest{DeviceType: "dist", Force: true})
	require.Equal(t, http.StatusOK, rec.Code)

	req, ok := js.enqueued[0].args.(netsync.Request)
	require.True(t, ok)
	assert.Equal(t, models.DeviceTypeDist, req.DeviceType)
	assert.True(t, req.Force)
	assert.Equal(t, defaultActor, js.enqueued[0].actor)
}

func TestJobEndpoints(t *testing.T) {
	t.Parallel()

	newJobs := func(abortErr error) *fakeJobs {
		return &fakeJobs{
			jobs:     map[int64]*models.Job{7: {ID: 7, Status: models.JobStatusRunning}},
			abortErr: abortErr,
		}
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		abortErr   error
		wantStatus int
	}{
		{name: "get", method: http.MethodGet, path: "/api/v1.0/job/7", wantStatus: http.StatusOK},
		{name: "get missing", method: http.MethodGet, path: "/api/v1.0/job/8", wantStatus: http.StatusNotFound},
		{name: "non numeric id", method: http.MethodGet, path: "/api/v1.0/job/abc", wantStatus: http.StatusNotFound},
		{name: "abort", method: http.MethodPut, path: "/api/v1.0/job/7",
			body: JobUpdateRequest{Action: "abort", AbortReason: "operator"}, wantStatus: http.StatusOK},
		{name: "abort missing", method: http.MethodPut, path: "/api/v1.0/job/8",
			body: JobUpdateRequest{Action: "ABORT"}, wantStatus: http.StatusNotFound},
		{name: "abort finished", method: http.MethodPut, path: "/api/v1.0/job/7",
			body: JobUpdateRequest{Action: "ABORT"}, abortErr: jobs.ErrJobNotAbortable, wantStatus: http.StatusConflict},
		{name: "unknown action", method: http.MethodPut, path: "/api/v1.0/job/7",
			body: JobUpdateRequest{Action: "RESTART"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewServer(newJobs(tt.abortErr), logger.NewTestLogger())
			rec := do(t, s, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.method == http.MethodPut && tt.wantStatus == http.StatusOK {
				var job models.Job
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
				assert.Equal(t, models.JobStatusAborting, job.Status)
			}
		})
	}
}

func TestJoblocks(t *testing.T) {
	t.Parallel()

	js := &fakeJobs{locks: []*models.Joblock{{Name: models.FleetLockName, JobID: 3}}}
	s := NewServer(js, logger.NewTestLogger())

	rec := do(t, s, http.MethodGet, "/api/v1.0/joblocks", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var locks []models.Joblock
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locks))
	require.Len(t, locks, 1)
	assert.Equal(t, int64(3), locks[0].JobID)

	rec = do(t, s, http.MethodDelete, "/api/v1.0/joblocks", map[string]string{"name": "other"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1.0/joblocks", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1.0/joblocks", map[string]string{"name": models.FleetLockName})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, js.locks)

	rec = do(t, s, http.MethodGet, "/api/v1.0/joblocks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestUpdateLinknets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		body       any
		wantStatus int
	}{
		{name: "ok", body: map[string]bool{"dry_run": true}, wantStatus: http.StatusOK},
		{name: "empty body", wantStatus: http.StatusOK},
		{name: "not found", err: netsync.ErrDeviceNotFound, wantStatus: http.StatusNotFound},
		{name: "not managed", err: netsync.ErrDeviceNotManaged, wantStatus: http.StatusBadRequest},
		{name: "interface error", err: &topology.InterfaceError{Hostname: "a", Interface: "Eth1", Reason: "x"},
			wantStatus: http.StatusBadRequest},
		{name: "store failure", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ln := &fakeLinknets{
				err:     tt.err,
				records: []models.LinkRecord{{DeviceAHostname: "eosaccess", DeviceAPort: "Ethernet1", DeviceBHostname: "eosdist1", DeviceBPort: "Ethernet2"}},
			}
			s := NewServer(&fakeJobs{}, logger.NewTestLogger(), WithLinknetUpdater(ln))

			rec := do(t, s, http.MethodPost, "/api/v1.0/device/eosaccess/update_linknets", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.body != nil {
				assert.True(t, ln.dryRun)
			}
		})
	}
}

func TestUpdateLinknetsNotConfigured(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeJobs{}, logger.NewTestLogger())
	rec := do(t, s, http.MethodPost, "/api/v1.0/device/eosaccess/update_linknets", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestInitCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           InitCheckRequest
		err            error
		wantStatus     int
		wantCompatible bool
	}{
		{name: "compatible", body: InitCheckRequest{DeviceType: "access", Neighbors: []string{"dist1", "dist2"}},
			wantStatus: http.StatusOK, wantCompatible: true},
		{name: "neighbor mismatch", body: InitCheckRequest{DeviceType: "access"},
			err: &topology.NeighborError{Hostname: "a", Reason: "missing"}, wantStatus: http.StatusOK},
		{name: "bad role", body: InitCheckRequest{DeviceType: "router"}, wantStatus: http.StatusBadRequest},
		{name: "invalid state", body: InitCheckRequest{DeviceType: "access"},
			err: provision.ErrInvalidState, wantStatus: http.StatusBadRequest},
		{name: "unknown device", body: InitCheckRequest{DeviceType: "access"},
			err: provision.ErrDeviceNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &fakeChecker{err: tt.err}
			s := NewServer(&fakeJobs{}, logger.NewTestLogger(), WithInitChecker(c))

			rec := do(t, s, http.MethodPost, "/api/v1.0/device_initcheck/eosaccess", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp InitCheckResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCompatible, resp.Compatible)
			assert.Equal(t, tt.body.Neighbors, c.opts.ExpectedNeighbors)
		})
	}
}

func TestMarkManaged(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeJobs{}, logger.NewTestLogger(), WithInitChecker(&fakeChecker{}))

	rec := do(t, s, http.MethodPost, "/api/v1.0/device/eosaccess/managed", managedRequest{DeviceType: "ACCESS"})
	require.Equal(t, http.StatusOK, rec.Code)

	var dev models.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dev))
	assert.Equal(t, "eosaccess", dev.Hostname)
	assert.Equal(t, models.DeviceStateManaged, dev.State)
}

func TestAPIKey(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeJobs{}, logger.NewTestLogger(), WithAPIKey("secret"))

	rec := do(t, s, http.MethodGet, "/api/v1.0/joblocks", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1.0/joblocks", nil, "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1.0/system/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/swagger/doc.json", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
