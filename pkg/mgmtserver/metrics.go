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

package mgmtserver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openxrt/xmgmt/pkg/mgmtdev"
	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmgmt_dispatch_total",
			Help: "Dispatched management commands by card, command and outcome.",
		},
		[]string{"card", "command", "outcome"},
	)

	firewallTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmgmt_firewall_trips_total",
			Help: "Firewall trips observed by the hardware monitor, dropped ones included.",
		},
		[]string{"card", "firewall"},
	)

	ledgerRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xmgmt_ledger_records",
			Help: "Firewall-trip records currently held in the ABI error ledger.",
		},
		[]string{"card"},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal, firewallTripsTotal, ledgerRecords)
}

// MetricsSink exports trip activity of one card. It implements
// hwmonitor.TripSink.
type MetricsSink struct {
	card   string
	ledger *mgmtdev.ErrorLedger
}

// NewMetricsSink creates a sink updating the card's trip counters and
// ledger occupancy gauge.
func NewMetricsSink(card string, ledger *mgmtdev.ErrorLedger) *MetricsSink {
	ledgerRecords.WithLabelValues(card).Set(0)

	return &MetricsSink{card: card, ledger: ledger}
}

// TripRecorded counts the trip and refreshes the occupancy gauge.
func (s *MetricsSink) TripRecorded(card string, trip xclmgmt.AXIErrorStatus, dropped bool) {
	firewallTripsTotal.WithLabelValues(s.card, trip.FirewallID.String()).Inc()
	ledgerRecords.WithLabelValues(s.card).Set(float64(s.ledger.Snapshot().NumFirewalls))
}

// PCIStatusUpdated is a no-op; the PCI snapshot has no counter.
func (s *MetricsSink) PCIStatusUpdated(card string, status xclmgmt.PCIErrorStatus) {}
