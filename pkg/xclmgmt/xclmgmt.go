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

// Package xclmgmt defines the management command ABI of xclmgmt-class
// FPGA accelerator cards: the command enumeration, the fixed-layout
// little-endian request/response shapes and the ioctl request codes
// from <uapi/drm/xmgmt_drm.h> (mgmt-ioctl.h). Layouts are byte-exact
// with the kernel structs on 64-bit platforms, interior padding
// included, so encoded buffers interoperate with existing monitoring
// tools and device firmware.
package xclmgmt

import "fmt"

// Constants from <uapi/drm/xmgmt_drm.h>.
const (
	// IOCMagic is the ioctl magic ('X') all management request codes
	// are derived from.
	IOCMagic = 'X'

	// NumSupportedClocks is the clock-slot count carried by every
	// frequency-scaling request, regardless of the card generation.
	NumSupportedClocks = 4

	// NumActualClocks is how many of those slots current cards wire up.
	NumActualClocks = 2

	// NumFirewallIPs is the number of AXI firewall instances on the card.
	NumFirewallIPs = 3

	// MaxFirewallRecords bounds the firewall-trip records one error
	// query can return. Stable ABI, never grown.
	MaxFirewallRecords = 8

	// AWSShell14 is the timestamp identifying the AWS shell 1.4 image.
	AWSShell14 = 69605400
)

// hwmon device names the card's sensor controllers register under.
const (
	MBHwmonName     = "xclmgmt_microblaze"
	SysmonHwmonName = "xclmgmt_sysmon"
)

// FirewallID identifies one AXI firewall instance (enum xclFirewallID).
// Ordinals are stable ABI and never renumbered.
type FirewallID uint32

const (
	// FirewallMgmtControl guards MGMT BAR AXI-Lite access.
	FirewallMgmtControl FirewallID = iota
	// FirewallUserControl guards USER BAR AXI-Lite access.
	FirewallUserControl
	// FirewallDatapath guards the DMA data path.
	FirewallDatapath
	// FirewallMaxLevel bounds the enumeration and is never a real id.
	FirewallMaxLevel
)

// Valid reports whether id names a real firewall instance.
func (id FirewallID) Valid() bool {
	return id < FirewallMaxLevel
}

func (id FirewallID) String() string {
	switch id {
	case FirewallMgmtControl:
		return "mgmt-control"
	case FirewallUserControl:
		return "user-control"
	case FirewallDatapath:
		return "datapath"
	}
	return fmt.Sprintf("firewall(%d)", uint32(id))
}

// Command enumerates the management operations (enum XCLMGMT_IOC_TYPES).
// Ordinals are the wire command ids; callers and the device agree on
// them out of band, there is no version negotiation.
type Command uint32

const (
	// CmdQueryInfo reads the device info snapshot.
	CmdQueryInfo Command = iota
	// CmdDownloadImage loads a legacy-format configuration image.
	CmdDownloadImage
	// CmdScaleFrequency adjusts the clock wizard.
	CmdScaleFrequency
	// CmdResetOcl resets the programmable-logic region.
	CmdResetOcl
	// CmdHotReset performs a full PCIe hot reset.
	CmdHotReset
	// CmdReboot reboots the FPGA from its boot PROM.
	CmdReboot
	// CmdDownloadImageAxlf loads an AXLF container image.
	CmdDownloadImageAxlf
	// CmdQueryErrorInfo reads the firewall-trip ledger.
	CmdQueryErrorInfo
	// CmdMax bounds the enumeration.
	CmdMax
)

// Known reports whether c names a supported operation.
func (c Command) Known() bool {
	return c < CmdMax
}

func (c Command) String() string {
	switch c {
	case CmdQueryInfo:
		return "info"
	case CmdDownloadImage:
		return "icap-download"
	case CmdScaleFrequency:
		return "freq-scale"
	case CmdResetOcl:
		return "ocl-reset"
	case CmdHotReset:
		return "hot-reset"
	case CmdReboot:
		return "reboot"
	case CmdDownloadImageAxlf:
		return "icap-download-axlf"
	case CmdQueryErrorInfo:
		return "err-info"
	}
	return fmt.Sprintf("command(%d)", uint32(c))
}
