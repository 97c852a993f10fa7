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

package xclmgmt

// AXIErrorStatus is one recorded firewall trip (struct xclAXIErrorStatus).
// Immutable once recorded.
type AXIErrorStatus struct {
	// Time is the wall-clock tick at which the firewall tripped.
	Time uint64
	// Status is the opaque hardware status read from the firewall.
	Status uint32
	// FirewallID names the firewall that tripped.
	FirewallID FirewallID
}

// PCIErrorStatus is the PCI-level error snapshot (struct xclPCIErrorStatus).
// The two reserved trailing words exist only for layout stability; they
// are always encoded and always zero.
type PCIErrorStatus struct {
	DeviceStatus    uint32
	UncorrErrStatus uint32
	CorrErrStatus   uint32

	rsvd1 uint32
	rsvd2 uint32
}

// ErrorStatus is the full error-query response (struct xclErrorStatus):
// the firewall-trip records, the PCI snapshot and the highest tripped
// firewall level.
type ErrorStatus struct {
	// NumFirewalls is how many Records entries are populated, at most
	// MaxFirewallRecords.
	NumFirewalls uint32
	Records      [MaxFirewallRecords]AXIErrorStatus
	PCI          PCIErrorStatus
	// FirewallLevel is the highest-severity firewall currently tripped,
	// independent of NumFirewalls.
	FirewallLevel uint32
}

// ErrInfo is the legacy error-query response (struct xclmgmt_err_info).
// Same size as ErrorStatus on the wire; the last word is tail padding
// instead of the firewall level.
type ErrInfo struct {
	NumFirewalls uint32
	Records      [MaxFirewallRecords]AXIErrorStatus
	PCI          PCIErrorStatus
}

// Legacy converts the error status to the legacy response shape.
func (s ErrorStatus) Legacy() ErrInfo {
	return ErrInfo{
		NumFirewalls: s.NumFirewalls,
		Records:      s.Records,
		PCI:          s.PCI,
	}
}

// FreqScaling is the clock-wizard request (struct xclmgmt_ioc_freqscaling).
type FreqScaling struct {
	// OclRegion selects the PR region. Only region 0 exists on current
	// cards; the clock wizard rejects others.
	OclRegion uint32
	// OclTargetFreq holds the requested frequencies in MHz. A zero slot
	// leaves that clock untouched; slots beyond the clocks actually
	// present are ignored by the wizard.
	OclTargetFreq [NumSupportedClocks]uint16
}

// MgmtInfo is the device info snapshot (struct xclmgmt_ioc_info):
// identity, topology, clocking and sensor telemetry produced whole at
// a single point in time. Fields a sensor source cannot supply are
// zero, never omitted.
type MgmtInfo struct {
	Vendor          uint16
	Device          uint16
	SubsystemVendor uint16
	SubsystemDevice uint16
	DriverVersion   uint32
	DeviceVersion   uint32
	FeatureID       uint64
	TimeStamp       uint64
	DDRChannelNum   uint16
	DDRChannelSize  uint16
	PCIeLinkWidth   uint16
	PCIeLinkSpeed   uint16

	// VBNV and FPGA are NUL-padded shell and part name strings.
	VBNV [64]byte
	FPGA [64]byte

	OnChipTemp uint16
	FanTemp    uint16
	FanSpeed   uint16
	VccInt     uint16
	VccAux     uint16
	VccBram    uint16

	OclFrequency   [NumSupportedClocks]uint16
	MigCalibration [4]bool
	NumClocks      uint16
	IsXPR          bool
	PCISlot        uint32
	XMCVersion     uint64

	TwelveVolPex     uint16
	TwelveVolAux     uint16
	PexCurr          uint64
	AuxCurr          uint64
	ThreeVolThreePex uint16
	ThreeVolThreeAux uint16
	DDRVppBtm        uint16
	Sys5v5           uint16
	OneVolTwoTop     uint16
	OneVolEightTop   uint16
	ZeroVolEight     uint16
	DDRVppTop        uint16
	Mgt0v9Avcc       uint16
	TwelveVolSw      uint16
	MgtAvtt          uint16
	Vcc1v2Btm        uint16

	SE98Temp [4]int16
	DIMMTemp [4]int16
}

// SetVBNV stores s NUL-padded, truncating to the field size.
func (m *MgmtInfo) SetVBNV(s string) { setPadded(m.VBNV[:], s) }

// SetFPGA stores s NUL-padded, truncating to the field size.
func (m *MgmtInfo) SetFPGA(s string) { setPadded(m.FPGA[:], s) }

// VBNVString returns the shell name with NUL padding stripped.
func (m *MgmtInfo) VBNVString() string { return cstring(m.VBNV[:]) }

// FPGAString returns the part name with NUL padding stripped.
func (m *MgmtInfo) FPGAString() string { return cstring(m.FPGA[:]) }

func setPadded(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
