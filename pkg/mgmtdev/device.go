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
	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// Device is one management instance of an accelerator card. It owns the
// card's error ledger and serializes privileged operations: at most one
// image download, reset or clock change runs at a time, and a second
// caller gets ErrBusy instead of queueing. Read-only queries never take
// the gate and run concurrently with everything.
type Device struct {
	name   string
	collab Collaborators
	ledger *ErrorLedger

	// gate is the per-device exclusive lock for privileged operations.
	// TryLock, never Lock: a held gate means Busy, not wait.
	gate sync.Mutex
}

// NewDevice creates a device around the given collaborator set.
func NewDevice(name string, collab Collaborators) *Device {
	return &Device{
		name:   name,
		collab: collab,
		ledger: NewErrorLedger(),
	}
}

// Name returns the card name the device was created with.
func (d *Device) Name() string { return d.name }

// Ledger exposes the device's error ledger to the hardware-monitoring
// collaborator that feeds it.
func (d *Device) Ledger() *ErrorLedger { return d.ledger }

// Info builds the device info snapshot: the info source supplies
// identity, link and sensor values, and the clock wizard's current
// settings overlay the clock fields. The snapshot is produced whole;
// sub-values no collaborator can supply are zero. Read-only.
func (d *Device) Info() (xclmgmt.MgmtInfo, error) {
	if d.collab.Info == nil {
		return xclmgmt.MgmtInfo{}, errors.Wrapf(ErrCollaboratorUnavailable, "%s: no info source", d.name)
	}

	info, err := d.collab.Info.ReadInfo()
	if err != nil {
		return xclmgmt.MgmtInfo{}, errors.Wrapf(ErrCollaboratorUnavailable, "%s: info source: %v", d.name, err)
	}

	if d.collab.Clocks != nil {
		freqs, clocks, err := d.collab.Clocks.Frequencies()
		if err != nil {
			// Snapshot fields the wizard cannot supply stay zero.
			klog.V(4).Infof("%s: clock wizard read failed: %v", d.name, err)
		} else {
			info.OclFrequency = freqs
			info.NumClocks = clocks
		}
	}

	return info, nil
}

// ErrorInfo returns a stable copy of the error ledger. Read-only.
func (d *Device) ErrorInfo() xclmgmt.ErrorStatus {
	return d.ledger.Snapshot()
}

// LoadImage downloads a legacy-format configuration image. Privileged.
func (d *Device) LoadImage(image []byte) error {
	return d.privileged("icap-download", func() error {
		if d.collab.Loader == nil {
			return errors.Wrapf(ErrCollaboratorUnavailable, "%s: no image loader", d.name)
		}
		return operationFailed(d.collab.Loader.LoadImage(image))
	})
}

// LoadImageAxlf downloads an AXLF container image. Privileged.
func (d *Device) LoadImageAxlf(image []byte) error {
	return d.privileged("icap-download-axlf", func() error {
		if d.collab.Loader == nil {
			return errors.Wrapf(ErrCollaboratorUnavailable, "%s: no image loader", d.name)
		}
		return operationFailed(d.collab.Loader.LoadImageAxlf(image))
	})
}

// ScaleFrequencies hands the clock request to the wizard. Privileged.
func (d *Device) ScaleFrequencies(req xclmgmt.FreqScaling) error {
	return d.privileged("freq-scale", func() error {
		if d.collab.Clocks == nil {
			return errors.Wrapf(ErrCollaboratorUnavailable, "%s: no clock wizard", d.name)
		}
		return operationFailed(d.collab.Clocks.ScaleFrequencies(req))
	})
}

// ResetOcl resets the programmable-logic region. Privileged.
func (d *Device) ResetOcl() error {
	return d.privileged("ocl-reset", func() error {
		if d.collab.Reset == nil {
			return errors.Wrapf(ErrCollaboratorUnavailable, "%s: no reset controller", d.name)
		}
		return operationFailed(d.collab.Reset.ResetOcl())
	})
}

// HotReset performs a full PCIe hot reset. A successful hot reset
// reinitializes the firewalls, so the ledger restarts empty. Privileged.
func (d *Device) HotReset() error {
	return d.privileged("hot-reset", func() error {
		if d.collab.Reset == nil {
			return errors.Wrapf(ErrCollaboratorUnavailable, "%s: no reset controller", d.name)
		}
		if err := d.collab.Reset.HotReset(); err != nil {
			return operationFailed(err)
		}
		d.ledger.Reset()
		return nil
	})
}

// Reboot reboots the FPGA from its boot PROM. Privileged.
func (d *Device) Reboot() error {
	return d.privileged("reboot", func() error {
		if d.collab.Reset == nil {
			return errors.Wrapf(ErrCollaboratorUnavailable, "%s: no reset controller", d.name)
		}
		return operationFailed(d.collab.Reset.Reboot())
	})
}

func (d *Device) privileged(op string, fn func() error) error {
	if !d.gate.TryLock() {
		return errors.Wrapf(ErrBusy, "%s: %s", d.name, op)
	}
	defer d.gate.Unlock()

	klog.V(3).Infof("%s: %s", d.name, op)

	return fn()
}
