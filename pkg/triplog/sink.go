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

package triplog

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// Sink journals the hardware monitor's trip notifications. It
// implements hwmonitor.TripSink; journal failures are logged, never
// propagated, so a broken disk cannot stall the monitor loop.
type Sink struct {
	journal *Journal
}

// NewSink wraps a journal for monitor use.
func NewSink(journal *Journal) *Sink {
	return &Sink{journal: journal}
}

// TripRecorded appends the trip to the journal.
func (s *Sink) TripRecorded(card string, trip xclmgmt.AXIErrorStatus, dropped bool) {
	if err := s.journal.AppendTrip(context.Background(), card, trip, dropped); err != nil {
		klog.Errorf("trip journal: %v", err)
	}
}

// PCIStatusUpdated appends the new PCI snapshot to the journal.
func (s *Sink) PCIStatusUpdated(card string, status xclmgmt.PCIErrorStatus) {
	if err := s.journal.AppendPCIStatus(context.Background(), card, status); err != nil {
		klog.Errorf("trip journal: %v", err)
	}
}
