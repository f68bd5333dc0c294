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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
	log  logger.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps pool. Call RunMigrations first.
func New(pool *pgxpool.Pool, log logger.Logger) *Store {
	return &Store{pool: pool, q: pool, log: log}
}

// Open dials cfg, applies migrations and returns a ready store.
func Open(ctx context.Context, cfg *models.PostgresConfig, log logger.Logger) (*Store, error) {
	pool, err := NewPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}

	return New(pool, log), nil
}

func (s *Store) Close() error {
	if !s.inTx {
		s.pool.Close()
	}

	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx, inTx: true, log: s.log})
	})
}

func isUniqueViolation(err error) bool {
	return hasCode(err, pgUniqueViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, fmt.Sprintf(format, args...))
	}

	return err
}

func expectOne(tag pgconn.CommandTag, err error, what string) error {
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	}

	return nil
}

const deviceColumns = `id, hostname, device_type, state, management_ip, platform, model, confhash, synchronized, last_seen`

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device

	err := row.Scan(&d.ID, &d.Hostname, &d.DeviceType, &d.State, &d.ManagementIP,
		&d.Platform, &d.Model, &d.ConfHash, &d.Synchronized, &d.LastSeen)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

func (s *Store) CreateDevice(ctx context.Context, dev *models.Device) (*models.Device, error) {
	if dev.Hostname == "" {
		return nil, fmt.Errorf("%w: hostname is required", store.ErrInvalidInput)
	}

	lastSeen := dev.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}

	row := s.q.QueryRow(ctx, `INSERT INTO devices
		(hostname, device_type, state, management_ip, platform, model, confhash, synchronized, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+deviceColumns,
		dev.Hostname, string(dev.DeviceType), string(dev.State), dev.ManagementIP,
		dev.Platform, dev.Model, dev.ConfHash, dev.Synchronized, lastSeen)

	created, err := scanDevice(row)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: device %s", store.ErrAlreadyExists, dev.Hostname)
	}

	return created, err
}

func (s *Store) GetDevice(ctx context.Context, hostname string) (*models.Device, error) {
	d, err := scanDevice(s.q.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE hostname = $1`, hostname))

	return d, notFound(err, "device %s", hostname)
}

func (s *Store) GetDeviceByID(ctx context.Context, id int64) (*models.Device, error) {
	d, err := scanDevice(s.q.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))

	return d, notFound(err, "device id %d", id)
}

func (s *Store) ListDevices(ctx context.Context, filter store.DeviceFilter) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE 1=1`
	args := []any{}

	if filter.State != nil {
		args = append(args, string(*filter.State))
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}

	if filter.DeviceType != nil {
		args = append(args, string(*filter.DeviceType))
		query += fmt.Sprintf(" AND device_type = $%d", len(args))
	}

	if filter.Synchronized != nil {
		args = append(args, *filter.Synchronized)
		query += fmt.Sprintf(" AND synchronized = $%d", len(args))
	}

	if len(filter.Hostnames) > 0 {
		args = append(args, filter.Hostnames)
		query += fmt.Sprintf(" AND hostname = ANY($%d)", len(args))
	}

	rows, err := s.q.Query(ctx, query+" ORDER BY hostname", args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []*models.Device

	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

func (s *Store) SetSyncStatus(ctx context.Context, hostname string, synchronized bool) error {
	tag, err := s.q.Exec(ctx, `UPDATE devices SET synchronized = $2 WHERE hostname = $1`, hostname, synchronized)

	return expectOne(tag, err, "device "+hostname)
}

func (s *Store) SetConfHash(ctx context.Context, hostname, hash string) error {
	tag, err := s.q.Exec(ctx, `UPDATE devices SET confhash = $2 WHERE hostname = $1`, hostname, hash)

	return expectOne(tag, err, "device "+hostname)
}

func (s *Store) SetDeviceState(ctx context.Context, hostname string, state models.DeviceState, devType models.DeviceType) error {
	tag, err := s.q.Exec(ctx, `UPDATE devices SET state = $2, device_type = $3 WHERE hostname = $1`,
		hostname, string(state), string(devType))

	return expectOne(tag, err, "device "+hostname)
}

func (s *Store) TouchLastSeen(ctx context.Context, hostname string) error {
	tag, err := s.q.Exec(ctx, `UPDATE devices SET last_seen = now() WHERE hostname = $1`, hostname)

	return expectOne(tag, err, "device "+hostname)
}

func scanInterface(row pgx.Row) (*models.Interface, error) {
	var (
		i    models.Interface
		data []byte
	)

	if err := row.Scan(&i.DeviceID, &i.Name, &i.ConfigType, &data); err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &i.Data); err != nil {
			return nil, fmt.Errorf("decode interface data: %w", err)
		}
	}

	return &i, nil
}

func (s *Store) GetInterface(ctx context.Context, deviceID int64, name string) (*models.Interface, error) {
	i, err := scanInterface(s.q.QueryRow(ctx,
		`SELECT device_id, name, configtype, data FROM interfaces WHERE device_id = $1 AND name = $2`, deviceID, name))

	return i, notFound(err, "interface %d/%s", deviceID, name)
}

func (s *Store) ListInterfaces(ctx context.Context, deviceID int64) ([]*models.Interface, error) {
	rows, err := s.q.Query(ctx,
		`SELECT device_id, name, configtype, data FROM interfaces WHERE device_id = $1 ORDER BY name`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	defer rows.Close()

	var out []*models.Interface

	for rows.Next() {
		i, err := scanInterface(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, i)
	}

	return out, rows.Err()
}

func (s *Store) UpsertInterface(ctx context.Context, iface *models.Interface) error {
	var data []byte

	if iface.Data != nil {
		var err error
		if data, err = json.Marshal(iface.Data); err != nil {
			return fmt.Errorf("encode interface data: %w", err)
		}
	}

	_, err := s.q.Exec(ctx, `INSERT INTO interfaces (device_id, name, configtype, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id, name) DO UPDATE SET configtype = EXCLUDED.configtype, data = EXCLUDED.data`,
		iface.DeviceID, iface.Name, string(iface.ConfigType), data)

	return err
}

const linknetColumns = `id, device_a_id, device_a_port, device_b_id, device_b_port,
	COALESCE(ipv4_network, ''), device_a_ip, device_b_ip, redundant_link`

func scanLinknet(row pgx.Row) (*models.Linknet, error) {
	var l models.Linknet

	err := row.Scan(&l.ID, &l.DeviceAID, &l.DeviceAPort, &l.DeviceBID, &l.DeviceBPort,
		&l.IPv4Network, &l.DeviceAIP, &l.DeviceBIP, &l.RedundantLink)
	if err != nil {
		return nil, err
	}

	return &l, nil
}

func (s *Store) FindLinknetByPort(ctx context.Context, deviceID int64, port string) (*models.Linknet, error) {
	l, err := scanLinknet(s.q.QueryRow(ctx, `SELECT `+linknetColumns+` FROM linknets
		WHERE (device_a_id = $1 AND device_a_port = $2) OR (device_b_id = $1 AND device_b_port = $2)
		LIMIT 1`, deviceID, port))

	return l, notFound(err, "linknet on %d/%s", deviceID, port)
}

func (s *Store) ListLinknets(ctx context.Context, deviceID int64) ([]*models.Linknet, error) {
	query := `SELECT ` + linknetColumns + ` FROM linknets`
	args := []any{}

	if deviceID != 0 {
		query += ` WHERE device_a_id = $1 OR device_b_id = $1`
		args = append(args, deviceID)
	}

	rows, err := s.q.Query(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list linknets: %w", err)
	}
	defer rows.Close()

	var out []*models.Linknet

	for rows.Next() {
		l, err := scanLinknet(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, l)
	}

	return out, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func (s *Store) CreateLinknet(ctx context.Context, l *models.Linknet) (*models.Linknet, error) {
	// The table constraints are per side; a port may not appear on either side twice.
	for _, end := range []struct {
		id   int64
		port string
	}{{l.DeviceAID, l.DeviceAPort}, {l.DeviceBID, l.DeviceBPort}} {
		if _, err := s.FindLinknetByPort(ctx, end.id, end.port); err == nil {
			return nil, fmt.Errorf("%w: linknet port %d/%s", store.ErrAlreadyExists, end.id, end.port)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	created, err := scanLinknet(s.q.QueryRow(ctx, `INSERT INTO linknets
		(device_a_id, device_a_port, device_b_id, device_b_port, ipv4_network, device_a_ip, device_b_ip, redundant_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+linknetColumns,
		l.DeviceAID, l.DeviceAPort, l.DeviceBID, l.DeviceBPort, nullString(l.IPv4Network),
		l.DeviceAIP, l.DeviceBIP, l.RedundantLink))
	switch {
	case isUniqueViolation(err):
		return nil, fmt.Errorf("%w: linknet %w", store.ErrAlreadyExists, err)
	case hasCode(err, pgForeignKeyViolation):
		return nil, fmt.Errorf("%w: linknet device %w", store.ErrNotFound, err)
	}

	return created, err
}

func (s *Store) DeleteLinknet(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM linknets WHERE id = $1`, id)

	return expectOne(tag, err, fmt.Sprintf("linknet %d", id))
}

func scanMgmtDomain(row pgx.Row) (*models.MgmtDomain, error) {
	var (
		md models.MgmtDomain
		b  *int64
	)

	if err := row.Scan(&md.ID, &md.DeviceAID, &b, &md.IPv4Gateway, &md.VLAN, &md.Description); err != nil {
		return nil, err
	}

	if b != nil {
		md.DeviceBID = *b
	}

	return &md, nil
}

func (s *Store) FindMgmtDomain(ctx context.Context, deviceIDs []int64) (*models.MgmtDomain, error) {
	const cols = `SELECT id, device_a_id, device_b_id, ipv4_gw, vlan, description FROM mgmtdomains`

	var row pgx.Row

	switch len(deviceIDs) {
	case 1:
		row = s.q.QueryRow(ctx, cols+` WHERE device_a_id = $1 OR device_b_id = $1 LIMIT 1`, deviceIDs[0])
	case 2:
		row = s.q.QueryRow(ctx, cols+` WHERE (device_a_id = $1 AND device_b_id = $2)
			OR (device_a_id = $2 AND device_b_id = $1) LIMIT 1`, deviceIDs[0], deviceIDs[1])
	default:
		return nil, fmt.Errorf("%w: mgmtdomain needs one or two devices, got %d", store.ErrInvalidInput, len(deviceIDs))
	}

	md, err := scanMgmtDomain(row)

	return md, notFound(err, "mgmtdomain for devices %v", deviceIDs)
}

func (s *Store) CreateMgmtDomain(ctx context.Context, md *models.MgmtDomain) (*models.MgmtDomain, error) {
	var b *int64
	if md.DeviceBID != 0 {
		b = &md.DeviceBID
	}

	return scanMgmtDomain(s.q.QueryRow(ctx, `INSERT INTO mgmtdomains (device_a_id, device_b_id, ipv4_gw, vlan, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, device_a_id, device_b_id, ipv4_gw, vlan, description`,
		md.DeviceAID, b, md.IPv4Gateway, md.VLAN, md.Description))
}

const jobColumns = `id, status, function_name, scheduled_by, comment, ticket_ref, scheduled_time,
	start_time, finish_time, result, exception, COALESCE(finished_devices, '{}'), next_job_id, change_score, start_arguments`

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j                         models.Job
		result, exception, params []byte
	)

	err := row.Scan(&j.ID, &j.Status, &j.FunctionName, &j.ScheduledBy, &j.Comment, &j.TicketRef,
		&j.ScheduledTime, &j.StartTime, &j.FinishTime, &result, &exception, &j.FinishedDevices,
		&j.NextJobID, &j.ChangeScore, &params)
	if err != nil {
		return nil, err
	}

	j.Result = result
	j.Exception = exception
	j.StartArguments = params

	return &j, nil
}

// rawJSON maps an empty message to SQL NULL.
func rawJSON(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}

	return m
}

func (s *Store) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	status := job.Status
	if status == "" {
		status = models.JobStatusScheduled
	}

	scheduled := job.ScheduledTime
	if scheduled.IsZero() {
		scheduled = time.Now().UTC()
	}

	return scanJob(s.q.QueryRow(ctx, `INSERT INTO jobs
		(status, function_name, scheduled_by, comment, ticket_ref, scheduled_time, start_arguments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+jobColumns,
		string(status), job.FunctionName, job.ScheduledBy, job.Comment, job.TicketRef, scheduled,
		rawJSON(job.StartArguments)))
}

func (s *Store) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	j, err := scanJob(s.q.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))

	return j, notFound(err, "job %d", id)
}

func (s *Store) UpdateJob(ctx context.Context, job *models.Job, expect models.JobStatus) error {
	tag, err := s.q.Exec(ctx, `UPDATE jobs SET
		status = $3, start_time = $4, finish_time = $5, result = $6, exception = $7,
		finished_devices = $8, next_job_id = $9, change_score = $10
		WHERE id = $1 AND status = $2`,
		job.ID, string(expect), string(job.Status), job.StartTime, job.FinishTime,
		rawJSON(job.Result), rawJSON(job.Exception), job.FinishedDevices, job.NextJobID, job.ChangeScore)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	cur, err := s.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}

	return fmt.Errorf("%w: job %d is %s, expected %s", store.ErrConflict, job.ID, cur.Status, expect)
}

func (s *Store) ListJobs(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}

	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}

		query += ` WHERE status = ANY($1)`
		args = append(args, names)
	}

	rows, err := s.q.Query(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.Job

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}

		out = append(out, j)
	}

	return out, rows.Err()
}

func (s *Store) SetFinishedDevices(ctx context.Context, id int64, hostnames []string) error {
	tag, err := s.q.Exec(ctx, `UPDATE jobs SET finished_devices = $2 WHERE id = $1`, id, hostnames)

	return expectOne(tag, err, fmt.Sprintf("job %d", id))
}

func (s *Store) AcquireLock(ctx context.Context, name string, jobID int64) (bool, error) {
	tag, err := s.q.Exec(ctx, `INSERT INTO joblocks (name, job_id, start_time) VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING`, name, jobID)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseLock(ctx context.Context, name string, jobID int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM joblocks WHERE name = $1 AND job_id = $2`, name, jobID)

	return expectOne(tag, err, fmt.Sprintf("lock %s held by job %d", name, jobID))
}

func scanLock(row pgx.Row) (*models.Joblock, error) {
	var l models.Joblock
	if err := row.Scan(&l.Name, &l.JobID, &l.StartTime, &l.AbortTime); err != nil {
		return nil, err
	}

	return &l, nil
}

func (s *Store) GetLock(ctx context.Context, name string) (*models.Joblock, error) {
	l, err := scanLock(s.q.QueryRow(ctx, `SELECT name, job_id, start_time, abort_time FROM joblocks WHERE name = $1`, name))

	return l, notFound(err, "lock %s", name)
}

func (s *Store) ListLocks(ctx context.Context) ([]*models.Joblock, error) {
	rows, err := s.q.Query(ctx, `SELECT name, job_id, start_time, abort_time FROM joblocks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var out []*models.Joblock

	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, l)
	}

	return out, rows.Err()
}

func (s *Store) DeleteLock(ctx context.Context, name string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM joblocks WHERE name = $1`, name)

	return expectOne(tag, err, "lock "+name)
}
