// Copyright 2023 The OpenXRT Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package triplog keeps a durable journal of firewall trips and PCI
// status changes in SQLite. The journal is unbounded history for
// monitoring consumers; the 8-record ABI ledger in pkg/mgmtdev stays
// the wire truth and is not backed by it.
package triplog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // database/sql driver

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

const timeFormat = "2006-01-02 15:04:05"

const schema = `
CREATE TABLE IF NOT EXISTS firewall_trips (
	id          TEXT PRIMARY KEY,
	card        TEXT NOT NULL,
	firewall_id INTEGER NOT NULL,
	firewall    TEXT NOT NULL,
	status      INTEGER NOT NULL,
	tripped_at  INTEGER NOT NULL,
	dropped     INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trips_card_recorded ON firewall_trips(card, recorded_at);

CREATE TABLE IF NOT EXISTS pci_status (
	id            TEXT PRIMARY KEY,
	card          TEXT NOT NULL,
	device_status INTEGER NOT NULL,
	uncorr_status INTEGER NOT NULL,
	corr_status   INTEGER NOT NULL,
	recorded_at   TIMESTAMP NOT NULL
);
`

// Trip is one journaled firewall trip. Time is the hardware tick from
// the trip record; RecordedAt is when the daemon journaled it.
type Trip struct {
	ID         string    `json:"id"`
	Card       string    `json:"card"`
	FirewallID uint32    `json:"firewall_id"`
	Firewall   string    `json:"firewall"`
	Status     uint32    `json:"status"`
	Time       uint64    `json:"time"`
	Dropped    bool      `json:"dropped"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Query filters a trip listing. Zero fields match everything; results
// come back in recording order.
type Query struct {
	Card     string
	Firewall *xclmgmt.FirewallID
	From     time.Time
	To       time.Time
	Limit    int
}

// Journal is the SQLite-backed trip history.
type Journal struct {
	db *sql.DB
}

// New wraps an open database handle. Callers own the handle's
// lifetime; tests hand in a mock.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Open opens (or creates) the journal file and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "trip journal %s", path)
	}

	// modernc sqlite serializes writes itself; a second writer on the
	// same handle would only add lock contention errors.
	db.SetMaxOpenConns(1)

	j := New(db)
	if err := j.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "trip journal %s", path)
	}

	return j, nil
}

// Migrate applies the journal schema.
func (j *Journal) Migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, schema)

	return errors.Wrap(err, "migrate")
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// AppendTrip journals one firewall trip. dropped marks a record the
// ABI ledger rejected for capacity.
func (j *Journal) AppendTrip(ctx context.Context, card string, trip xclmgmt.AXIErrorStatus, dropped bool) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO firewall_trips (id, card, firewall_id, firewall, status, tripped_at, dropped, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		card,
		uint32(trip.FirewallID),
		trip.FirewallID.String(),
		trip.Status,
		int64(trip.Time),
		dropped,
		time.Now().UTC().Format(timeFormat),
	)

	return errors.Wrapf(err, "append trip for %s", card)
}

// AppendPCIStatus journals one PCI status overwrite.
func (j *Journal) AppendPCIStatus(ctx context.Context, card string, status xclmgmt.PCIErrorStatus) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO pci_status (id, card, device_status, uncorr_status, corr_status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		card,
		status.DeviceStatus,
		status.UncorrErrStatus,
		status.CorrErrStatus,
		time.Now().UTC().Format(timeFormat),
	)

	return errors.Wrapf(err, "append pci status for %s", card)
}

// Trips lists journaled trips matching q.
func (j *Journal) Trips(ctx context.Context, q Query) ([]Trip, error) {
	var (
		conds []string
		args  []any
	)

	if q.Card != "" {
		conds = append(conds, "card = ?")
		args = append(args, q.Card)
	}

	if q.Firewall != nil {
		conds = append(conds, "firewall_id = ?")
		args = append(args, uint32(*q.Firewall))
	}

	if !q.From.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, q.From.UTC().Format(timeFormat))
	}

	if !q.To.IsZero() {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, q.To.UTC().Format(timeFormat))
	}

	query := `SELECT id, card, firewall_id, firewall, status, tripped_at, dropped, recorded_at FROM firewall_trips`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY recorded_at ASC, id ASC"

	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "trip query")
	}
	defer rows.Close()

	out := make([]Trip, 0, 32)

	for rows.Next() {
		var (
			t         Trip
			trippedAt int64
			recorded  string
		)

		if err := rows.Scan(&t.ID, &t.Card, &t.FirewallID, &t.Firewall, &t.Status, &trippedAt, &t.Dropped, &recorded); err != nil {
			return nil, errors.Wrap(err, "trip scan")
		}

		t.Time = uint64(trippedAt)

		if t.RecordedAt, err = time.ParseInLocation(timeFormat, recorded, time.UTC); err != nil {
			return nil, errors.Wrap(err, "trip scan")
		}

		out = append(out, t)
	}

	return out, errors.Wrap(rows.Err(), "trip query")
}
