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

// Package sim provides an in-memory accelerator card implementing the
// full management collaborator set: enough behavior to run the daemon,
// the protocol tests and operator demos without hardware. Firewall
// trips are injected with TripFirewall and picked up by the hardware
// monitor's polls like on a real board.
package sim

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

const (
	driverVersion = 20231
	deviceVersion = 1
)

// Card is one simulated accelerator card.
type Card struct {
	mu sync.Mutex

	model Model
	freqs [xclmgmt.NumSupportedClocks]uint16

	loadedImages int
	lastImage    int

	pendingTrips []xclmgmt.AXIErrorStatus
	pciStatus    xclmgmt.PCIErrorStatus

	loadDelay time.Duration
}

// NewCard creates a card from the model.
func NewCard(model Model) *Card {
	c := &Card{model: model}
	c.resetClocks()

	return c
}

func (c *Card) resetClocks() {
	c.freqs = [xclmgmt.NumSupportedClocks]uint16{}
	for i, f := range c.model.DefaultClocks {
		c.freqs[i] = f
	}
}

// SetLoadDelay makes image downloads take d, so that concurrent-dispatch
// behavior is observable.
func (c *Card) SetLoadDelay(d time.Duration) {
	c.mu.Lock()
	c.loadDelay = d
	c.mu.Unlock()
}

// LoadImage accepts a legacy-format image.
func (c *Card) LoadImage(image []byte) error {
	return c.load(image)
}

// LoadImageAxlf accepts an AXLF container image.
func (c *Card) LoadImageAxlf(image []byte) error {
	return c.load(image)
}

func (c *Card) load(image []byte) error {
	c.mu.Lock()
	delay := c.loadDelay
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedImages++
	c.lastImage = len(image)

	return nil
}

// LoadedImages reports how many downloads the card accepted.
func (c *Card) LoadedImages() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loadedImages
}

// ScaleFrequencies applies a clock request. Only region 0 exists; a
// zero slot leaves that clock untouched and slots beyond the wired
// clocks are ignored.
func (c *Card) ScaleFrequencies(req xclmgmt.FreqScaling) error {
	if req.OclRegion != 0 {
		return errors.Errorf("region %d not present, only region 0 is wired", req.OclRegion)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < int(c.model.NumClocks); i++ {
		if req.OclTargetFreq[i] != 0 {
			c.freqs[i] = req.OclTargetFreq[i]
		}
	}

	return nil
}

// Frequencies reports the current clock settings.
func (c *Card) Frequencies() ([xclmgmt.NumSupportedClocks]uint16, uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.freqs, c.model.NumClocks, nil
}

// ResetOcl resets the programmable-logic region. Clock settings are
// kept; only the user logic restarts.
func (c *Card) ResetOcl() error {
	return nil
}

// HotReset reloads the shell: clocks return to their defaults and
// pending firewall state is gone.
func (c *Card) HotReset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetClocks()
	c.pendingTrips = nil
	c.pciStatus = xclmgmt.PCIErrorStatus{}

	return nil
}

// Reboot boots the golden image from PROM, same externally visible
// effect as a hot reset here.
func (c *Card) Reboot() error {
	return c.HotReset()
}

// ReadInfo renders the model's identity and sensor values.
func (c *Card) ReadInfo() (xclmgmt.MgmtInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.model.info(), nil
}

// TripFirewall injects a firewall trip, timestamped now, as if the
// interconnect guard had fired. The trip sits on the card until the
// next firewall poll.
func (c *Card) TripFirewall(id xclmgmt.FirewallID, status uint32) {
	c.TripFirewallAt(id, status, uint64(time.Now().Unix()))
}

// TripFirewallAt injects a firewall trip with an explicit timestamp.
func (c *Card) TripFirewallAt(id xclmgmt.FirewallID, status uint32, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingTrips = append(c.pendingTrips, xclmgmt.AXIErrorStatus{
		Time:       ts,
		Status:     status,
		FirewallID: id,
	})
}

// SetPCIStatus sets the PCI error registers the next poll will report.
func (c *Card) SetPCIStatus(status xclmgmt.PCIErrorStatus) {
	c.mu.Lock()
	c.pciStatus = status
	c.mu.Unlock()
}

// PollFirewall drains the trips that fired since the previous poll.
func (c *Card) PollFirewall() ([]xclmgmt.AXIErrorStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	trips := c.pendingTrips
	c.pendingTrips = nil

	return trips, nil
}

// PollPCIStatus reads the current PCI error registers.
func (c *Card) PollPCIStatus() (xclmgmt.PCIErrorStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pciStatus, nil
}
