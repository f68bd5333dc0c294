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

package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/carverauto/netsync/pkg/models"
)

type deviceRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Hostname     string `gorm:"uniqueIndex;not null"`
	DeviceType   string `gorm:"not null;default:UNKNOWN"`
	State        string `gorm:"not null;default:UNKNOWN"`
	ManagementIP string `gorm:"column:management_ip"`
	Platform     string
	Model        string
	ConfHash     string `gorm:"column:confhash"`
	Synchronized bool
	LastSeen     time.Time
}

func (deviceRow) TableName() string { return "devices" }

func (r *deviceRow) model() *models.Device {
	return &models.Device{
		ID:           r.ID,
		Hostname:     r.Hostname,
		DeviceType:   models.DeviceType(r.DeviceType),
		State:        models.DeviceState(r.State),
		ManagementIP: r.ManagementIP,
		Platform:     r.Platform,
		Model:        r.Model,
		ConfHash:     r.ConfHash,
		Synchronized: r.Synchronized,
		LastSeen:     r.LastSeen.UTC(),
	}
}

type interfaceRow struct {
	DeviceID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Name       string `gorm:"primaryKey"`
	ConfigType string `gorm:"column:configtype"`
	Data       []byte
}

func (interfaceRow) TableName() string { return "interfaces" }

func (r *interfaceRow) model() (*models.Interface, error) {
	i := &models.Interface{
		DeviceID:   r.DeviceID,
		Name:       r.Name,
		ConfigType: models.InterfaceConfigType(r.ConfigType),
	}

	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &i.Data); err != nil {
			return nil, fmt.Errorf("decode interface data: %w", err)
		}
	}

	return i, nil
}

type linknetRow struct {
	ID            int64   `gorm:"primaryKey;autoIncrement"`
	DeviceAID     int64   `gorm:"column:device_a_id;uniqueIndex:linknet_a_port"`
	DeviceAPort   string  `gorm:"column:device_a_port;uniqueIndex:linknet_a_port"`
	DeviceBID     int64   `gorm:"column:device_b_id;uniqueIndex:linknet_b_port"`
	DeviceBPort   string  `gorm:"column:device_b_port;uniqueIndex:linknet_b_port"`
	IPv4Network   *string `gorm:"column:ipv4_network;uniqueIndex"`
	DeviceAIP     string  `gorm:"column:device_a_ip"`
	DeviceBIP     string  `gorm:"column:device_b_ip"`
	RedundantLink bool
}

func (linknetRow) TableName() string { return "linknets" }

func (r *linknetRow) model() *models.Linknet {
	l := &models.Linknet{
		ID:            r.ID,
		DeviceAID:     r.DeviceAID,
		DeviceAPort:   r.DeviceAPort,
		DeviceBID:     r.DeviceBID,
		DeviceBPort:   r.DeviceBPort,
		DeviceAIP:     r.DeviceAIP,
		DeviceBIP:     r.DeviceBIP,
		RedundantLink: r.RedundantLink,
	}

	if r.IPv4Network != nil {
		l.IPv4Network = *r.IPv4Network
	}

	return l
}

type mgmtDomainRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	DeviceAID   int64  `gorm:"column:device_a_id"`
	DeviceBID   int64  `gorm:"column:device_b_id"`
	IPv4Gateway string `gorm:"column:ipv4_gw"`
	VLAN        int    `gorm:"column:vlan"`
	Description string
}

func (mgmtDomainRow) TableName() string { return "mgmtdomains" }

func (r *mgmtDomainRow) model() *models.MgmtDomain {
	return &models.MgmtDomain{
		ID:          r.ID,
		DeviceAID:   r.DeviceAID,
		DeviceBID:   r.DeviceBID,
		IPv4Gateway: r.IPv4Gateway,
		VLAN:        r.VLAN,
		Description: r.Description,
	}
}

type jobRow struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	Status          string `gorm:"index;not null"`
	FunctionName    string `gorm:"not null"`
	ScheduledBy     string
	Comment         string
	TicketRef       string
	ScheduledTime   time.Time
	StartTime       *time.Time
	FinishTime      *time.Time
	Result          []byte
	Exception       []byte
	FinishedDevices []byte
	NextJobID       *int64 `gorm:"column:next_job_id"`
	ChangeScore     *float64
	StartArguments  []byte
}

func (jobRow) TableName() string { return "jobs" }

func (r *jobRow) model() (*models.Job, error) {
	j := &models.Job{
		ID:             r.ID,
		Status:         models.JobStatus(r.Status),
		FunctionName:   r.FunctionName,
		ScheduledBy:    r.ScheduledBy,
		Comment:        r.Comment,
		TicketRef:      r.TicketRef,
		ScheduledTime:  r.ScheduledTime.UTC(),
		StartTime:      r.StartTime,
		FinishTime:     r.FinishTime,
		Result:         r.Result,
		Exception:      r.Exception,
		NextJobID:      r.NextJobID,
		ChangeScore:    r.ChangeScore,
		StartArguments: r.StartArguments,
	}

	if len(r.FinishedDevices) > 0 {
		if err := json.Unmarshal(r.FinishedDevices, &j.FinishedDevices); err != nil {
			return nil, fmt.Errorf("decode finished devices: %w", err)
		}
	}

	return j, nil
}

type lockRow struct {
	Name      string `gorm:"primaryKey"`
	JobID     int64  `gorm:"column:job_id;uniqueIndex;not null"`
	StartTime time.Time
	AbortTime *time.Time
}

func (lockRow) TableName() string { return "joblocks" }

func (r *lockRow) model() *models.Joblock {
	return &models.Joblock{
		Name:      r.Name,
		JobID:     r.JobID,
		StartTime: r.StartTime.UTC(),
		AbortTime: r.AbortTime,
	}
}

func nullableJSON(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}

	return m
}

func encodeHostnames(hostnames []string) ([]byte, error) {
	if len(hostnames) == 0 {
		return nil, nil
	}

	return json.Marshal(hostnames)
}
