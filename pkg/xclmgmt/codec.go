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

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Encoded sizes of the wire shapes, byte-exact with the kernel structs
// on 64-bit platforms.
const (
	AXIErrorStatusSize = 16
	PCIErrorStatusSize = 20
	ErrorStatusSize    = 160
	ErrInfoSize        = 160
	FreqScalingSize    = 12
	MgmtInfoSize       = 272
)

var le = binary.LittleEndian

// Encode returns the 16-byte wire form of one trip record.
func (a AXIErrorStatus) Encode() []byte {
	b := make([]byte, AXIErrorStatusSize)
	a.encodeTo(b)
	return b
}

func (a AXIErrorStatus) encodeTo(b []byte) {
	le.PutUint64(b[0:8], a.Time)
	le.PutUint32(b[8:12], a.Status)
	le.PutUint32(b[12:16], uint32(a.FirewallID))
}

// DecodeAXIErrorStatus decodes exactly AXIErrorStatusSize bytes.
func DecodeAXIErrorStatus(b []byte) (AXIErrorStatus, error) {
	if len(b) != AXIErrorStatusSize {
		return AXIErrorStatus{}, errors.Errorf("axi error status: got %d bytes, want %d", len(b), AXIErrorStatusSize)
	}
	return decodeAXIErrorStatus(b), nil
}

func decodeAXIErrorStatus(b []byte) AXIErrorStatus {
	return AXIErrorStatus{
		Time:       le.Uint64(b[0:8]),
		Status:     le.Uint32(b[8:12]),
		FirewallID: FirewallID(le.Uint32(b[12:16])),
	}
}

// Encode returns the 20-byte wire form. The reserved words are written
// as zero whatever the receiver holds.
func (p PCIErrorStatus) Encode() []byte {
	b := make([]byte, PCIErrorStatusSize)
	p.encodeTo(b)
	return b
}

func (p PCIErrorStatus) encodeTo(b []byte) {
	le.PutUint32(b[0:4], p.DeviceStatus)
	le.PutUint32(b[4:8], p.UncorrErrStatus)
	le.PutUint32(b[8:12], p.CorrErrStatus)
	le.PutUint32(b[12:16], 0)
	le.PutUint32(b[16:20], 0)
}

// DecodePCIErrorStatus decodes exactly PCIErrorStatusSize bytes. The
// reserved words are not reinterpreted and decode to zero.
func DecodePCIErrorStatus(b []byte) (PCIErrorStatus, error) {
	if len(b) != PCIErrorStatusSize {
		return PCIErrorStatus{}, errors.Errorf("pci error status: got %d bytes, want %d", len(b), PCIErrorStatusSize)
	}
	return decodePCIErrorStatus(b), nil
}

func decodePCIErrorStatus(b []byte) PCIErrorStatus {
	return PCIErrorStatus{
		DeviceStatus:    le.Uint32(b[0:4]),
		UncorrErrStatus: le.Uint32(b[4:8]),
		CorrErrStatus:   le.Uint32(b[8:12]),
	}
}

// Encode returns the 160-byte wire form of the error status, interior
// padding zeroed.
func (s ErrorStatus) Encode() []byte {
	b := make([]byte, ErrorStatusSize)
	le.PutUint32(b[0:4], s.NumFirewalls)
	for i := range s.Records {
		off := 8 + i*AXIErrorStatusSize
		s.Records[i].encodeTo(b[off : off+AXIErrorStatusSize])
	}
	s.PCI.encodeTo(b[136:156])
	le.PutUint32(b[156:160], s.FirewallLevel)
	return b
}

// DecodeErrorStatus decodes exactly ErrorStatusSize bytes.
func DecodeErrorStatus(b []byte) (ErrorStatus, error) {
	if len(b) != ErrorStatusSize {
		return ErrorStatus{}, errors.Errorf("error status: got %d bytes, want %d", len(b), ErrorStatusSize)
	}
	var s ErrorStatus
	s.NumFirewalls = le.Uint32(b[0:4])
	for i := range s.Records {
		off := 8 + i*AXIErrorStatusSize
		s.Records[i] = decodeAXIErrorStatus(b[off : off+AXIErrorStatusSize])
	}
	s.PCI = decodePCIErrorStatus(b[136:156])
	s.FirewallLevel = le.Uint32(b[156:160])
	return s, nil
}

// Encode returns the 160-byte legacy wire form; the last word is tail
// padding and stays zero.
func (e ErrInfo) Encode() []byte {
	b := make([]byte, ErrInfoSize)
	le.PutUint32(b[0:4], e.NumFirewalls)
	for i := range e.Records {
		off := 8 + i*AXIErrorStatusSize
		e.Records[i].encodeTo(b[off : off+AXIErrorStatusSize])
	}
	e.PCI.encodeTo(b[136:156])
	return b
}

// DecodeErrInfo decodes exactly ErrInfoSize bytes.
func DecodeErrInfo(b []byte) (ErrInfo, error) {
	if len(b) != ErrInfoSize {
		return ErrInfo{}, errors.Errorf("err info: got %d bytes, want %d", len(b), ErrInfoSize)
	}
	var e ErrInfo
	e.NumFirewalls = le.Uint32(b[0:4])
	for i := range e.Records {
		off := 8 + i*AXIErrorStatusSize
		e.Records[i] = decodeAXIErrorStatus(b[off : off+AXIErrorStatusSize])
	}
	e.PCI = decodePCIErrorStatus(b[136:156])
	return e, nil
}

// Encode returns the 12-byte wire form of the frequency request.
func (f FreqScaling) Encode() []byte {
	b := make([]byte, FreqScalingSize)
	le.PutUint32(b[0:4], f.OclRegion)
	for i, freq := range f.OclTargetFreq {
		le.PutUint16(b[4+i*2:6+i*2], freq)
	}
	return b
}

// DecodeFreqScaling decodes exactly FreqScalingSize bytes.
func DecodeFreqScaling(b []byte) (FreqScaling, error) {
	if len(b) != FreqScalingSize {
		return FreqScaling{}, errors.Errorf("freq scaling: got %d bytes, want %d", len(b), FreqScalingSize)
	}
	var f FreqScaling
	f.OclRegion = le.Uint32(b[0:4])
	for i := range f.OclTargetFreq {
		f.OclTargetFreq[i] = le.Uint16(b[4+i*2 : 6+i*2])
	}
	return f, nil
}

// Encode returns the 272-byte wire form of the info snapshot, interior
// padding zeroed.
func (m MgmtInfo) Encode() []byte {
	b := make([]byte, MgmtInfoSize)
	le.PutUint16(b[0:2], m.Vendor)
	le.PutUint16(b[2:4], m.Device)
	le.PutUint16(b[4:6], m.SubsystemVendor)
	le.PutUint16(b[6:8], m.SubsystemDevice)
	le.PutUint32(b[8:12], m.DriverVersion)
	le.PutUint32(b[12:16], m.DeviceVersion)
	le.PutUint64(b[16:24], m.FeatureID)
	le.PutUint64(b[24:32], m.TimeStamp)
	le.PutUint16(b[32:34], m.DDRChannelNum)
	le.PutUint16(b[34:36], m.DDRChannelSize)
	le.PutUint16(b[36:38], m.PCIeLinkWidth)
	le.PutUint16(b[38:40], m.PCIeLinkSpeed)
	copy(b[40:104], m.VBNV[:])
	copy(b[104:168], m.FPGA[:])
	le.PutUint16(b[168:170], m.OnChipTemp)
	le.PutUint16(b[170:172], m.FanTemp)
	le.PutUint16(b[172:174], m.FanSpeed)
	le.PutUint16(b[174:176], m.VccInt)
	le.PutUint16(b[176:178], m.VccAux)
	le.PutUint16(b[178:180], m.VccBram)
	for i, freq := range m.OclFrequency {
		le.PutUint16(b[180+i*2:182+i*2], freq)
	}
	for i, ok := range m.MigCalibration {
		b[188+i] = b2u8(ok)
	}
	le.PutUint16(b[192:194], m.NumClocks)
	b[194] = b2u8(m.IsXPR)
	le.PutUint32(b[196:200], m.PCISlot)
	le.PutUint64(b[200:208], m.XMCVersion)
	le.PutUint16(b[208:210], m.TwelveVolPex)
	le.PutUint16(b[210:212], m.TwelveVolAux)
	le.PutUint64(b[216:224], m.PexCurr)
	le.PutUint64(b[224:232], m.AuxCurr)
	le.PutUint16(b[232:234], m.ThreeVolThreePex)
	le.PutUint16(b[234:236], m.ThreeVolThreeAux)
	le.PutUint16(b[236:238], m.DDRVppBtm)
	le.PutUint16(b[238:240], m.Sys5v5)
	le.PutUint16(b[240:242], m.OneVolTwoTop)
	le.PutUint16(b[242:244], m.OneVolEightTop)
	le.PutUint16(b[244:246], m.ZeroVolEight)
	le.PutUint16(b[246:248], m.DDRVppTop)
	le.PutUint16(b[248:250], m.Mgt0v9Avcc)
	le.PutUint16(b[250:252], m.TwelveVolSw)
	le.PutUint16(b[252:254], m.MgtAvtt)
	le.PutUint16(b[254:256], m.Vcc1v2Btm)
	for i, t := range m.SE98Temp {
		le.PutUint16(b[256+i*2:258+i*2], uint16(t))
	}
	for i, t := range m.DIMMTemp {
		le.PutUint16(b[264+i*2:266+i*2], uint16(t))
	}
	return b
}

// DecodeMgmtInfo decodes exactly MgmtInfoSize bytes.
func DecodeMgmtInfo(b []byte) (MgmtInfo, error) {
	if len(b) != MgmtInfoSize {
		return MgmtInfo{}, errors.Errorf("mgmt info: got %d bytes, want %d", len(b), MgmtInfoSize)
	}
	var m MgmtInfo
	m.Vendor = le.Uint16(b[0:2])
	m.Device = le.Uint16(b[2:4])
	m.SubsystemVendor = le.Uint16(b[4:6])
	m.SubsystemDevice = le.Uint16(b[6:8])
	m.DriverVersion = le.Uint32(b[8:12])
	m.DeviceVersion = le.Uint32(b[12:16])
	m.FeatureID = le.Uint64(b[16:24])
	m.TimeStamp = le.Uint64(b[24:32])
	m.DDRChannelNum = le.Uint16(b[32:34])
	m.DDRChannelSize = le.Uint16(b[34:36])
	m.PCIeLinkWidth = le.Uint16(b[36:38])
	m.PCIeLinkSpeed = le.Uint16(b[38:40])
	copy(m.VBNV[:], b[40:104])
	copy(m.FPGA[:], b[104:168])
	m.OnChipTemp = le.Uint16(b[168:170])
	m.FanTemp = le.Uint16(b[170:172])
	m.FanSpeed = le.Uint16(b[172:174])
	m.VccInt = le.Uint16(b[174:176])
	m.VccAux = le.Uint16(b[176:178])
	m.VccBram = le.Uint16(b[178:180])
	for i := range m.OclFrequency {
		m.OclFrequency[i] = le.Uint16(b[180+i*2 : 182+i*2])
	}
	for i := range m.MigCalibration {
		m.MigCalibration[i] = b[188+i] != 0
	}
	m.NumClocks = le.Uint16(b[192:194])
	m.IsXPR = b[194] != 0
	m.PCISlot = le.Uint32(b[196:200])
	m.XMCVersion = le.Uint64(b[200:208])
	m.TwelveVolPex = le.Uint16(b[208:210])
	m.TwelveVolAux = le.Uint16(b[210:212])
	m.PexCurr = le.Uint64(b[216:224])
	m.AuxCurr = le.Uint64(b[224:232])
	m.ThreeVolThreePex = le.Uint16(b[232:234])
	m.ThreeVolThreeAux = le.Uint16(b[234:236])
	m.DDRVppBtm = le.Uint16(b[236:238])
	m.Sys5v5 = le.Uint16(b[238:240])
	m.OneVolTwoTop = le.Uint16(b[240:242])
	m.OneVolEightTop = le.Uint16(b[242:244])
	m.ZeroVolEight = le.Uint16(b[244:246])
	m.DDRVppTop = le.Uint16(b[246:248])
	m.Mgt0v9Avcc = le.Uint16(b[248:250])
	m.TwelveVolSw = le.Uint16(b[250:252])
	m.MgtAvtt = le.Uint16(b[252:254])
	m.Vcc1v2Btm = le.Uint16(b[254:256])
	for i := range m.SE98Temp {
		m.SE98Temp[i] = int16(le.Uint16(b[256+i*2 : 258+i*2]))
	}
	for i := range m.DIMMTemp {
		m.DIMMTemp[i] = int16(le.Uint16(b[264+i*2 : 266+i*2]))
	}
	return m, nil
}

func b2u8(v bool) byte {
	if v {
		return 1
	}
	return 0
}
