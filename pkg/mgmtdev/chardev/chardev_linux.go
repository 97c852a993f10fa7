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

// Package chardev implements the management collaborators on top of an
// existing kernel management node (/dev/xclmgmtNNNNN): every operation
// forwards to the node's ioctl interface using the wire shapes from
// pkg/xclmgmt. Request and response buffers are the little-endian
// encodings; management nodes exist on little-endian hosts only, so
// the encoded bytes are the kernel struct memory.
package chardev

import (
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

const mgmtDevPrefix = "xclmgmt"

// IsMgmtNode reports whether name looks like a management node.
func IsMgmtNode(name string) bool {
	return strings.HasPrefix(filepath.Base(name), mgmtDevPrefix)
}

// Device drives one management character node.
type Device struct {
	devPath string

	// lastCount tracks how many kernel ledger records earlier firewall
	// polls already handed out.
	mu        sync.Mutex
	lastCount uint32
}

// New returns a device for the given node. The node is probed once so
// a missing or inaccessible path fails here, not on first use.
func New(devPath string) (*Device, error) {
	if strings.IndexByte(devPath, '/') < 0 {
		devPath = filepath.Join("/dev", devPath)
	}
	if !IsMgmtNode(devPath) {
		return nil, errors.Errorf("%s is not a management node", devPath)
	}

	if err := unix.Access(devPath, unix.R_OK|unix.W_OK); err != nil {
		return nil, errors.Wrapf(err, "management node %s", devPath)
	}

	return &Device{devPath: devPath}, nil
}

// Path returns the device node path.
func (d *Device) Path() string { return d.devPath }

// LoadImage downloads a legacy-format image. The node takes a struct
// holding a pointer to the image bytes.
func (d *Device) LoadImage(image []byte) error {
	return d.download(xclmgmt.IOCIcapDownload, image)
}

// LoadImageAxlf downloads an AXLF container image.
func (d *Device) LoadImageAxlf(image []byte) error {
	return d.download(xclmgmt.IOCIcapDownloadAxlf, image)
}

func (d *Device) download(cmd uint32, image []byte) error {
	if len(image) == 0 {
		return errors.New("empty image")
	}

	arg := struct{ xclbin unsafe.Pointer }{xclbin: unsafe.Pointer(&image[0])}

	return ioctlDev(d.devPath, cmd, uintptr(unsafe.Pointer(&arg)))
}

// ScaleFrequencies forwards a clock request to the node.
func (d *Device) ScaleFrequencies(req xclmgmt.FreqScaling) error {
	buf := req.Encode()

	return ioctlDev(d.devPath, xclmgmt.IOCFreqScale, uintptr(unsafe.Pointer(&buf[0])))
}

// Frequencies reads the node's current clock settings from its info
// aggregate.
func (d *Device) Frequencies() ([xclmgmt.NumSupportedClocks]uint16, uint16, error) {
	info, err := d.ReadInfo()
	if err != nil {
		return [xclmgmt.NumSupportedClocks]uint16{}, 0, err
	}

	return info.OclFrequency, info.NumClocks, nil
}

// ResetOcl resets the programmable-logic region.
func (d *Device) ResetOcl() error {
	return ioctlDev(d.devPath, xclmgmt.IOCOclReset, 0)
}

// HotReset performs a full PCIe hot reset.
func (d *Device) HotReset() error {
	if err := ioctlDev(d.devPath, xclmgmt.IOCHotReset, 0); err != nil {
		return err
	}

	// The kernel ledger restarts empty with the firewalls.
	d.mu.Lock()
	d.lastCount = 0
	d.mu.Unlock()

	return nil
}

// Reboot reboots the FPGA from its boot PROM.
func (d *Device) Reboot() error {
	return ioctlDev(d.devPath, xclmgmt.IOCReboot, 0)
}

// ReadInfo queries the node's info aggregate.
func (d *Device) ReadInfo() (xclmgmt.MgmtInfo, error) {
	buf := make([]byte, xclmgmt.MgmtInfoSize)
	if err := ioctlDev(d.devPath, xclmgmt.IOCInfo, uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return xclmgmt.MgmtInfo{}, err
	}

	return xclmgmt.DecodeMgmtInfo(buf)
}

func (d *Device) queryErrors() (xclmgmt.ErrorStatus, error) {
	buf := make([]byte, xclmgmt.ErrorStatusSize)
	if err := ioctlDev(d.devPath, xclmgmt.IOCErrInfo, uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return xclmgmt.ErrorStatus{}, err
	}

	return xclmgmt.DecodeErrorStatus(buf)
}

// PollFirewall returns the kernel ledger records that appeared since
// the previous poll, so the daemon's ledger mirrors the kernel's.
func (d *Device) PollFirewall() ([]xclmgmt.AXIErrorStatus, error) {
	status, err := d.queryErrors()
	if err != nil {
		return nil, err
	}

	count := status.NumFirewalls
	if count > xclmgmt.MaxFirewallRecords {
		count = xclmgmt.MaxFirewallRecords
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if count < d.lastCount {
		// Kernel ledger restarted behind our back.
		d.lastCount = 0
	}

	trips := make([]xclmgmt.AXIErrorStatus, 0, count-d.lastCount)
	for i := d.lastCount; i < count; i++ {
		trips = append(trips, status.Records[i])
	}
	d.lastCount = count

	return trips, nil
}

// PollPCIStatus reads the node's current PCI error snapshot.
func (d *Device) PollPCIStatus() (xclmgmt.PCIErrorStatus, error) {
	status, err := d.queryErrors()
	if err != nil {
		return xclmgmt.PCIErrorStatus{}, err
	}

	return status.PCI, nil
}
