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

package mgmtdev

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// ErrorLedger aggregates firewall trips and the PCI error snapshot for
// one device. Capacity is xclmgmt.MaxFirewallRecords and is a wire
// contract: when full, RecordTrip rejects instead of evicting, and the
// caller chooses what to do with the dropped record.
//
// The mutex is held only for the instant of mutating or copying state,
// never across hardware operations, so trip notifications interleave
// freely with queries and privileged commands.
type ErrorLedger struct {
	mu     sync.Mutex
	status xclmgmt.ErrorStatus
}

// NewErrorLedger returns an empty ledger.
func NewErrorLedger() *ErrorLedger {
	return &ErrorLedger{}
}

// RecordTrip appends one firewall trip. level is the severity rank the
// caller assigns to the tripped firewall; the ledger keeps the highest
// rank seen since the last reset and imposes no ordering of its own.
//
// A trip naming an id outside the firewall enumeration is a protocol
// violation and is rejected, not clamped. A trip arriving with the
// ledger full fails with ErrCapacityExceeded and changes nothing.
func (l *ErrorLedger) RecordTrip(trip xclmgmt.AXIErrorStatus, level uint32) error {
	if !trip.FirewallID.Valid() {
		return errors.Wrapf(ErrMalformedPayload, "firewall id %d outside enumeration", uint32(trip.FirewallID))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status.NumFirewalls >= xclmgmt.MaxFirewallRecords {
		return errors.Wrapf(ErrCapacityExceeded, "dropping trip from %s", trip.FirewallID)
	}

	l.status.Records[l.status.NumFirewalls] = trip
	l.status.NumFirewalls++
	if level > l.status.FirewallLevel {
		l.status.FirewallLevel = level
	}

	return nil
}

// UpdatePCIStatus overwrites the PCI snapshot. There is no history;
// the ledger keeps only the current value.
func (l *ErrorLedger) UpdatePCIStatus(status xclmgmt.PCIErrorStatus) {
	l.mu.Lock()
	l.status.PCI = status
	l.mu.Unlock()
}

// Snapshot returns a copy of the whole ledger state. The copy is
// stable: trips recorded after Snapshot returns do not appear in it.
func (l *ErrorLedger) Snapshot() xclmgmt.ErrorStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.status
}

// Reset clears all records, the PCI snapshot and the firewall level.
func (l *ErrorLedger) Reset() {
	l.mu.Lock()
	l.status = xclmgmt.ErrorStatus{}
	l.mu.Unlock()
}
