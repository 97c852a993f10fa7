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

// Package mgmtdev is the device core of the management control plane:
// the error ledger, the info snapshot builder and the command
// dispatcher, tied together by a per-device instance that serializes
// privileged hardware operations. The hardware itself is reached only
// through the collaborator interfaces below; pkg/mgmtdev/sim and
// pkg/mgmtdev/chardev provide implementations.
package mgmtdev

import "github.com/openxrt/xmgmt/pkg/xclmgmt"

// ImageLoader flashes configuration images onto the card. The image
// bytes are handed over untouched; parsing and validation belong to the
// loader.
type ImageLoader interface {
	// LoadImage downloads a legacy-format image.
	LoadImage(image []byte) error
	// LoadImageAxlf downloads an AXLF container image.
	LoadImageAxlf(image []byte) error
}

// ClockWizard drives the programmable-logic clocking.
type ClockWizard interface {
	// ScaleFrequencies applies req. A zero slot leaves that clock
	// untouched; slots beyond the clocks wired on the card are ignored.
	// Requests for a region the card does not have are rejected.
	ScaleFrequencies(req xclmgmt.FreqScaling) error
	// Frequencies reports the current setting of each clock slot and
	// the number of clocks actually wired.
	Frequencies() (freqs [xclmgmt.NumSupportedClocks]uint16, clocks uint16, err error)
}

// ResetController performs the card resets. All three are synchronous:
// they return only once the hardware finished or reported failure.
type ResetController interface {
	// ResetOcl resets the programmable-logic region.
	ResetOcl() error
	// HotReset performs a full PCIe hot reset.
	HotReset() error
	// Reboot reboots the FPGA from its boot PROM.
	Reboot() error
}

// InfoSource supplies the identity, link and sensor portion of the
// info snapshot. Values the source cannot read stay zero.
type InfoSource interface {
	ReadInfo() (xclmgmt.MgmtInfo, error)
}

// Collaborators groups the hardware-facing dependencies of one device.
// Any of them may be nil; operations needing a missing collaborator
// fail with ErrCollaboratorUnavailable.
type Collaborators struct {
	Loader ImageLoader
	Clocks ClockWizard
	Reset  ResetController
	Info   InfoSource
}
