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

// Package hwmonitor feeds the device error ledger from the hardware:
// a periodic poll drains firewall trips and the PCI error registers
// from a source (simulated card or management node) and pushes them
// into the ledger, independent of any in-flight privileged operation.
// Sensor sources for the info snapshot live here too.
package hwmonitor

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/mgmtdev"
	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// DefaultPollPeriod is the firewall/PCI poll interval used when the
// caller does not pick one.
const DefaultPollPeriod = 1 * time.Second

// dropWarnPeriod rate-limits the ledger-full warning.
const dropWarnPeriod = 1 * time.Minute

// FirewallSource supplies the error state of one card. Both
// mgmtdev/sim.Card and mgmtdev/chardev.Device implement it.
type FirewallSource interface {
	// PollFirewall returns the trips that fired since the previous poll.
	PollFirewall() ([]xclmgmt.AXIErrorStatus, error)
	// PollPCIStatus reads the current PCI error registers.
	PollPCIStatus() (xclmgmt.PCIErrorStatus, error)
}

// Ledger is the part of the error ledger the monitor writes to.
type Ledger interface {
	RecordTrip(trip xclmgmt.AXIErrorStatus, level uint32) error
	UpdatePCIStatus(status xclmgmt.PCIErrorStatus)
}

// TripSink observes what the monitor fed into the ledger, for journals,
// live feeds and metrics. dropped marks a trip the ledger rejected
// because it was full; the sink still sees it.
type TripSink interface {
	TripRecorded(card string, trip xclmgmt.AXIErrorStatus, dropped bool)
	PCIStatusUpdated(card string, status xclmgmt.PCIErrorStatus)
}

// MultiSink fans one sink call out to several sinks.
type MultiSink []TripSink

func (m MultiSink) TripRecorded(card string, trip xclmgmt.AXIErrorStatus, dropped bool) {
	for _, s := range m {
		s.TripRecorded(card, trip, dropped)
	}
}

func (m MultiSink) PCIStatusUpdated(card string, status xclmgmt.PCIErrorStatus) {
	for _, s := range m {
		s.PCIStatusUpdated(card, status)
	}
}

// Monitor polls one card's firewall and PCI error state into its
// ledger. The ledger decides what to keep; the monitor only moves
// records and never retries a rejected one.
type Monitor struct {
	card   string
	source FirewallSource
	ledger Ledger
	sink   TripSink

	pollTicker *time.Ticker
	pollDone   chan bool

	lastPCI      xclmgmt.PCIErrorStatus
	havePCI      bool
	lastDropWarn time.Time
}

// New creates a monitor for one card.
func New(card string, source FirewallSource, ledger Ledger, period time.Duration) *Monitor {
	if period <= 0 {
		period = DefaultPollPeriod
	}

	return &Monitor{
		card:       card,
		source:     source,
		ledger:     ledger,
		pollTicker: time.NewTicker(period),
		pollDone:   make(chan bool, 1), // buffered as we may send to it before Run starts receiving from it
	}
}

// SetSink attaches a sink. Must be called before Run.
func (m *Monitor) SetSink(sink TripSink) {
	m.sink = sink
}

// Run polls until Stop is called.
func (m *Monitor) Run() error {
	defer m.pollTicker.Stop()

	klog.V(1).Infof("%s: hardware monitor started", m.card)

	for {
		m.Poll()

		select {
		case <-m.pollDone:
			return nil
		case <-m.pollTicker.C:
		}
	}
}

// Stop makes Run return after the current poll.
func (m *Monitor) Stop() {
	m.pollDone <- true
}

// Poll performs one poll iteration: drain pending trips into the
// ledger, then refresh the PCI snapshot.
func (m *Monitor) Poll() {
	trips, err := m.source.PollFirewall()
	if err != nil {
		klog.Warningf("%s: firewall poll failed: %v", m.card, err)
	}

	for _, trip := range trips {
		m.record(trip)
	}

	status, err := m.source.PollPCIStatus()
	if err != nil {
		klog.Warningf("%s: pci status poll failed: %v", m.card, err)
		return
	}

	m.ledger.UpdatePCIStatus(status)

	if !m.havePCI || status != m.lastPCI {
		m.lastPCI = status
		m.havePCI = true

		if m.sink != nil {
			m.sink.PCIStatusUpdated(m.card, status)
		}
	}
}

func (m *Monitor) record(trip xclmgmt.AXIErrorStatus) {
	// The firewall ordinal is the hardware's escalation order, so it
	// doubles as the severity rank the ledger keeps the maximum of.
	err := m.ledger.RecordTrip(trip, uint32(trip.FirewallID))

	switch {
	case err == nil:
	case errors.Is(err, mgmtdev.ErrCapacityExceeded):
		// Full ledger is not corrected here: the record is dropped from
		// the ABI view but still reaches the sink (journal, feed).
		if now := time.Now(); now.Sub(m.lastDropWarn) >= dropWarnPeriod {
			m.lastDropWarn = now

			klog.Warningf("%s: %v", m.card, err)
		}

		if m.sink != nil {
			m.sink.TripRecorded(m.card, trip, true)
		}

		return
	default:
		// Out-of-enumeration id, a protocol violation from the source.
		klog.Errorf("%s: rejected firewall trip: %v", m.card, err)
		return
	}

	if m.sink != nil {
		m.sink.TripRecorded(m.card, trip, false)
	}
}
