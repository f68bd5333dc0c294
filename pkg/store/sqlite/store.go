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

// Package sqlite implements store.Store on an embedded SQLite database through gorm.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

// Store is a gorm-backed store.Store.
type Store struct {
	db   *gorm.DB
	inTx bool
	log  logger.Logger
}

var _ store.Store = (*Store)(nil)

// Open creates or opens the database at path and migrates the schema.
func Open(path string, log logger.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	// SQLite allows one writer; a single connection keeps lock acquisition serialized.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&deviceRow{}, &interfaceRow{}, &linknetRow{}, &mgmtDomainRow{}, &jobRow{}, &lockRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("opened sqlite store")

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if s.inTx {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true, log: s.log})
	})
}

func (s *Store) with(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func affectedOne(res *gorm.DB, what string) error {
	if res.Error != nil {
		return translate(res.Error, what)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	}

	return nil
}

func (s *Store) CreateDevice(ctx context.Context, dev *models.Device) (*models.Device, error) {
	if dev.Hostname == "" {
		return nil, fmt.Errorf("%w: hostname is required", store.ErrInvalidInput)
	}

	row := deviceRow{
		Hostname:     dev.Hostname,
		DeviceType:   string(dev.DeviceType),
		State:        string(dev.State),
		ManagementIP: dev.ManagementIP,
		Platform:     dev.Platform,
		Model:        dev.Model,
		ConfHash:     dev.ConfHash,
		Synchronized: dev.Synchronized,
		LastSeen:     dev.LastSeen,
	}

	if row.LastSeen.IsZero() {
		row.LastSeen = time.Now().UTC()
	}

	if err := s.with(ctx).Create(&row).Error; err != nil {
		return nil, translate(err, "device "+dev.Hostname)
	}

	return row.model(), nil
}

func (s *Store) GetDevice(ctx context.Context, hostname string) (*models.Device, error) {
	var row deviceRow
	if err := s.with(ctx).Where("hostname = ?", hostname).First(&row).Error; err != nil {
		return nil, translate(err, "device "+hostname)
	}

	return row.model(), nil
}

func (s *Store) GetDeviceByID(ctx context.Context, id int64) (*models.Device, error) {
	var row deviceRow
	if err := s.with(ctx).First(&row, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("device id %d", id))
	}

	return row.model(), nil
}

func (s *Store) ListDevices(ctx context.Context, filter store.DeviceFilter) ([]*models.Device, error) {
	q := s.with(ctx).Model(&deviceRow{})

	if filter.State != nil {
		q = q.Where("state = ?", string(*filter.State))
	}

	if filter.DeviceType != nil {
		q = q.Where("device_type = ?", string(*filter.DeviceType))
	}

	if filter.Synchronized != nil {
		q = q.Where("synchronized = ?", *filter.Synchronized)
	}

	if len(filter.Hostnames) > 0 {
		q = q.Where("hostname IN ?", filter.Hostnames)
	}

	var rows []deviceRow
	if err := q.Order("hostname").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	out := make([]*models.Device, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}

	return out, nil
}

func (s *Store) updateDevice(ctx context.Context, hostname string, values map[string]any) error {
	res := s.with(ctx).Model(&deviceRow{}).Where("hostname = ?", hostname).Updates(values)

	return affectedOne(res, "device "+hostname)
}

func (s *Store) SetSyncStatus(ctx context.Context, hostname string, synchronized bool) error {
	return s.updateDevice(ctx, hostname, map[string]any{"synchronized": synchronized})
}

func (s *Store) SetConfHash(ctx context.Context, hostname, hash string) error {
	return s.updateDevice(ctx, hostname, map[string]any{"confhash": hash})
}

func (s *Store) SetDeviceState(ctx context.Context, hostname string, state models.DeviceState, devType models.DeviceType) error {
	return s.updateDevice(ctx, hostname, map[string]any{"state": string(state), "device_type": string(devType)})
}

func (s *Store) TouchLastSeen(ctx context.Context, hostname string) error {
	return s.updateDevice(ctx, hostname, map[string]any{"last_seen": time.Now().UTC()})
}

func (s *Store) GetInterface(ctx context.Context, deviceID int64, name string) (*models.Interface, error) {
	var row interfaceRow

	err := s.with(ctx).Where("device_id = ? AND name = ?", deviceID, name).First(&row).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("interface %d/%s", deviceID, name))
	}

	return row.model()
}

func (s *Store) ListInterfaces(ctx context.Context, deviceID int64) ([]*models.Interface, error) {
	var rows []interfaceRow
	if err := s.with(ctx).Where("device_id = ?", deviceID).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	out := make([]*models.Interface, 0, len(rows))

	for i := range rows {
		iface, err := rows[i].model()
		if err != nil {
			return nil, err
		}

		out = append(out, iface)
	}

	return out, nil
}

func (s *Store) UpsertInterface(ctx context.Context, iface *models.Interface) error {
	row := interfaceRow{DeviceID: iface.DeviceID, Name: iface.Name, ConfigType: string(iface.ConfigType)}

	if iface.Data != nil {
		data, err := json.Marshal(iface.Data)
		if err != nil {
			return fmt.Errorf("encode interface data: %w", err)
		}

		row.Data = data
	}

	return s.with(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"configtype", "data"}),
	}).Create(&row).Error
}

func (s *Store) FindLinknetByPort(ctx context.Context, deviceID int64, port string) (*models.Linknet, error) {
	var row linknetRow

	err := s.with(ctx).
		Where("(device_a_id = ? AND device_a_port = ?) OR (device_b_id = ? AND device_b_port = ?)",
			deviceID, port, deviceID, port).
		First(&row).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("linknet on %d/%s", deviceID, port))
	}

	return row.model(), nil
}

func (s *Store) ListLinknets(ctx context.Context, deviceID int64) ([]*models.Linknet, error) {
	q := s.with(ctx).Model(&linknetRow{})
	if deviceID != 0 {
		q = q.Where("device_a_id = ? OR device_b_id = ?", deviceID, deviceID)
	}

	var rows []linknetRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list linknets: %w", err)
	}

	out := make([]*models.Linknet, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}

	return out, nil
}

func (s *Store) CreateLinknet(ctx context.Context, l *models.Linknet) (*models.Linknet, error) {
	for _, id := range []int64{l.DeviceAID, l.DeviceBID} {
		if _, err := s.GetDeviceByID(ctx, id); err != nil {
			return nil, err
		}
	}

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

	row := linknetRow{
		DeviceAID:     l.DeviceAID,
		DeviceAPort:   l.DeviceAPort,
		DeviceBID:     l.DeviceBID,
		DeviceBPort:   l.DeviceBPort,
		DeviceAIP:     l.DeviceAIP,
		DeviceBIP:     l.DeviceBIP,
		RedundantLink: l.RedundantLink,
	}

	if l.IPv4Network != "" {
		network := l.IPv4Network
		row.IPv4Network = &network
	}

	if err := s.with(ctx).Create(&row).Error; err != nil {
		return nil, translate(err, "linknet")
	}

	return row.model(), nil
}

func (s *Store) DeleteLinknet(ctx context.Context, id int64) error {
	return affectedOne(s.with(ctx).Delete(&linknetRow{}, id), fmt.Sprintf("linknet %d", id))
}

func (s *Store) FindMgmtDomain(ctx context.Context, deviceIDs []int64) (*models.MgmtDomain, error) {
	q := s.with(ctx).Model(&mgmtDomainRow{})

	switch len(deviceIDs) {
	case 1:
		q = q.Where("device_a_id = ? OR device_b_id = ?", deviceIDs[0], deviceIDs[0])
	case 2:
		a, b := deviceIDs[0], deviceIDs[1]
		q = q.Where("(device_a_id = ? AND device_b_id = ?) OR (device_a_id = ? AND device_b_id = ?)", a, b, b, a)
	default:
		return nil, fmt.Errorf("%w: mgmtdomain needs one or two devices, got %d", store.ErrInvalidInput, len(deviceIDs))
	}

	var row mgmtDomainRow
	if err := q.First(&row).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("mgmtdomain for devices %v", deviceIDs))
	}

	return row.model(), nil
}

func (s *Store) CreateMgmtDomain(ctx context.Context, md *models.MgmtDomain) (*models.MgmtDomain, error) {
	row := mgmtDomainRow{
		DeviceAID:   md.DeviceAID,
		DeviceBID:   md.DeviceBID,
		IPv4Gateway: md.IPv4Gateway,
		VLAN:        md.VLAN,
		Description: md.Description,
	}

	if err := s.with(ctx).Create(&row).Error; err != nil {
		return nil, translate(err, "mgmtdomain")
	}

	return row.model(), nil
}

func (s *Store) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	row := jobRow{
		Status:         string(job.Status),
		FunctionName:   job.FunctionName,
		ScheduledBy:    job.ScheduledBy,
		Comment:        job.Comment,
		TicketRef:      job.TicketRef,
		ScheduledTime:  job.ScheduledTime,
		StartArguments: nullableJSON(job.StartArguments),
	}

	if row.Status == "" {
		row.Status = string(models.JobStatusScheduled)
	}

	if row.ScheduledTime.IsZero() {
		row.ScheduledTime = time.Now().UTC()
	}

	if err := s.with(ctx).Create(&row).Error; err != nil {
		return nil, translate(err, "job")
	}

	return row.model()
}

func (s *Store) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	var row jobRow
	if err := s.with(ctx).First(&row, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("job %d", id))
	}

	return row.model()
}

func (s *Store) UpdateJob(ctx context.Context, job *models.Job, expect models.JobStatus) error {
	finished, err := encodeHostnames(job.FinishedDevices)
	if err != nil {
		return fmt.Errorf("encode finished devices: %w", err)
	}

	res := s.with(ctx).Model(&jobRow{}).
		Where("id = ? AND status = ?", job.ID, string(expect)).
		Updates(map[string]any{
			"status":           string(job.Status),
			"start_time":       job.StartTime,
			"finish_time":      job.FinishTime,
			"result":           nullableJSON(job.Result),
			"exception":        nullableJSON(job.Exception),
			"finished_devices": finished,
			"next_job_id":      job.NextJobID,
			"change_score":     job.ChangeScore,
		})
	if res.Error != nil {
		return fmt.Errorf("update job %d: %w", job.ID, res.Error)
	}

	if res.RowsAffected == 1 {
		return nil
	}

	cur, err := s.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}

	return fmt.Errorf("%w: job %d is %s, expected %s", store.ErrConflict, job.ID, cur.Status, expect)
}

func (s *Store) ListJobs(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	q := s.with(ctx).Model(&jobRow{})

	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}

		q = q.Where("status IN ?", names)
	}

	var rows []jobRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]*models.Job, 0, len(rows))

	for i := range rows {
		j, err := rows[i].model()
		if err != nil {
			return nil, err
		}

		out = append(out, j)
	}

	return out, nil
}

func (s *Store) SetFinishedDevices(ctx context.Context, id int64, hostnames []string) error {
	finished, err := encodeHostnames(hostnames)
	if err != nil {
		return fmt.Errorf("encode finished devices: %w", err)
	}

	res := s.with(ctx).Model(&jobRow{}).Where("id = ?", id).Update("finished_devices", finished)

	return affectedOne(res, fmt.Sprintf("job %d", id))
}

func (s *Store) AcquireLock(ctx context.Context, name string, jobID int64) (bool, error) {
	row := lockRow{Name: name, JobID: jobID, StartTime: time.Now().UTC()}

	res := s.with(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, res.Error)
	}

	return res.RowsAffected == 1, nil
}

func (s *Store) ReleaseLock(ctx context.Context, name string, jobID int64) error {
	res := s.with(ctx).Where("name = ? AND job_id = ?", name, jobID).Delete(&lockRow{})

	return affectedOne(res, fmt.Sprintf("lock %s held by job %d", name, jobID))
}

func (s *Store) GetLock(ctx context.Context, name string) (*models.Joblock, error) {
	var row lockRow
	if err := s.with(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return nil, translate(err, "lock "+name)
	}

	return row.model(), nil
}

func (s *Store) ListLocks(ctx context.Context) ([]*models.Joblock, error) {
	var rows []lockRow
	if err := s.with(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}

	out := make([]*models.Joblock, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}

	return out, nil
}

func (s *Store) DeleteLock(ctx context.Context, name string) error {
	return affectedOne(s.with(ctx).Where("name = ?", name).Delete(&lockRow{}), "lock "+name)
}
