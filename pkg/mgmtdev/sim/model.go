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

package sim

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// Model is a simulated card profile, loadable from a TOML file. Zero
// fields stay zero in the info snapshot, mirroring sensors a real board
// does not populate.
type Model struct {
	Vendor          uint16 `toml:"vendor"`
	Device          uint16 `toml:"device"`
	SubsystemVendor uint16 `toml:"subsystem_vendor"`
	SubsystemDevice uint16 `toml:"subsystem_device"`

	VBNV      string `toml:"vbnv"`
	FPGA      string `toml:"fpga"`
	FeatureID uint64 `toml:"feature_id"`
	TimeStamp uint64 `toml:"time_stamp"`

	DDRChannelNum  uint16 `toml:"ddr_channel_num"`
	DDRChannelSize uint16 `toml:"ddr_channel_size"`
	PCIeLinkWidth  uint16 `toml:"pcie_link_width"`
	PCIeLinkSpeed  uint16 `toml:"pcie_link_speed"`
	PCISlot        uint32 `toml:"pci_slot"`

	NumClocks     uint16   `toml:"num_clocks"`
	DefaultClocks []uint16 `toml:"default_clocks"`
	IsXPR         bool     `toml:"is_xpr"`
	XMCVersion    uint64   `toml:"xmc_version"`

	Sensors Sensors `toml:"sensors"`
}

// Sensors holds the simulated sensor readings, in the same units the
// board microcontroller reports (millivolts, milliamps, degrees).
type Sensors struct {
	OnChipTemp uint16 `toml:"onchip_temp"`
	FanTemp    uint16 `toml:"fan_temp"`
	FanSpeed   uint16 `toml:"fan_speed"`

	VccInt  uint16 `toml:"vcc_int"`
	VccAux  uint16 `toml:"vcc_aux"`
	VccBram uint16 `toml:"vcc_bram"`

	TwelveVolPex     uint16 `toml:"twelve_vol_pex"`
	TwelveVolAux     uint16 `toml:"twelve_vol_aux"`
	PexCurr          uint64 `toml:"pex_curr"`
	AuxCurr          uint64 `toml:"aux_curr"`
	ThreeVolThreePex uint16 `toml:"three_vol_three_pex"`
	ThreeVolThreeAux uint16 `toml:"three_vol_three_aux"`
	DDRVppBtm        uint16 `toml:"ddr_vpp_btm"`
	DDRVppTop        uint16 `toml:"ddr_vpp_top"`
	Sys5v5           uint16 `toml:"sys_5v5"`
	OneVolTwoTop     uint16 `toml:"one_vol_two_top"`
	OneVolEightTop   uint16 `toml:"one_vol_eight_top"`
	ZeroVolEight     uint16 `toml:"zero_vol_eight"`
	Mgt0v9Avcc       uint16 `toml:"mgt0v9avcc"`
	TwelveVolSw      uint16 `toml:"twelve_vol_sw"`
	MgtAvtt          uint16 `toml:"mgtavtt"`
	Vcc1v2Btm        uint16 `toml:"vcc1v2_btm"`

	SE98Temp []int16 `toml:"se98_temp"`
	DIMMTemp []int16 `toml:"dimm_temp"`
}

// DefaultModel is a generic two-clock datacenter card.
func DefaultModel() Model {
	return Model{
		Vendor:          0x10ee,
		Device:          0x5000,
		SubsystemVendor: 0x10ee,
		SubsystemDevice: 0x000e,
		VBNV:            "openxrt_sim_gen3x16_base_1",
		FPGA:            "sim-xcvu9p",
		FeatureID:       0x13,
		TimeStamp:       xclmgmt.AWSShell14,
		DDRChannelNum:   4,
		DDRChannelSize:  16,
		PCIeLinkWidth:   16,
		PCIeLinkSpeed:   3,
		NumClocks:       xclmgmt.NumActualClocks,
		DefaultClocks:   []uint16{300, 500},
		XMCVersion:      0x2023,
		Sensors: Sensors{
			OnChipTemp:   45,
			FanTemp:      38,
			FanSpeed:     1200,
			VccInt:       850,
			VccAux:       1800,
			VccBram:      850,
			TwelveVolPex: 12050,
			TwelveVolAux: 12100,
			PexCurr:      2500,
			AuxCurr:      1250,
			SE98Temp:     []int16{41, 39},
			DIMMTemp:     []int16{36, 36, 35, 35},
		},
	}
}

// LoadModel reads a card profile from a TOML file. Keys absent from
// the file keep the default model's values.
func LoadModel(path string) (Model, error) {
	model := DefaultModel()
	if _, err := toml.DecodeFile(path, &model); err != nil {
		return Model{}, errors.Wrapf(err, "card model %s", path)
	}

	if err := model.validate(); err != nil {
		return Model{}, errors.Wrapf(err, "card model %s", path)
	}

	return model, nil
}

func (m Model) validate() error {
	if m.NumClocks == 0 || m.NumClocks > xclmgmt.NumSupportedClocks {
		return errors.Errorf("num_clocks %d outside 1..%d", m.NumClocks, xclmgmt.NumSupportedClocks)
	}
	if len(m.DefaultClocks) > int(m.NumClocks) {
		return errors.Errorf("%d default clocks for %d wired clocks", len(m.DefaultClocks), m.NumClocks)
	}
	return nil
}

// info renders the static and sensor portion of the snapshot. Clock
// fields stay zero; the device overlays the wizard's live settings.
func (m Model) info() xclmgmt.MgmtInfo {
	var info xclmgmt.MgmtInfo

	info.Vendor = m.Vendor
	info.Device = m.Device
	info.SubsystemVendor = m.SubsystemVendor
	info.SubsystemDevice = m.SubsystemDevice
	info.DriverVersion = driverVersion
	info.DeviceVersion = deviceVersion
	info.FeatureID = m.FeatureID
	info.TimeStamp = m.TimeStamp
	info.DDRChannelNum = m.DDRChannelNum
	info.DDRChannelSize = m.DDRChannelSize
	info.PCIeLinkWidth = m.PCIeLinkWidth
	info.PCIeLinkSpeed = m.PCIeLinkSpeed
	info.SetVBNV(m.VBNV)
	info.SetFPGA(m.FPGA)
	info.IsXPR = m.IsXPR
	info.PCISlot = m.PCISlot
	info.XMCVersion = m.XMCVersion

	s := m.Sensors
	info.OnChipTemp = s.OnChipTemp
	info.FanTemp = s.FanTemp
	info.FanSpeed = s.FanSpeed
	info.VccInt = s.VccInt
	info.VccAux = s.VccAux
	info.VccBram = s.VccBram
	info.TwelveVolPex = s.TwelveVolPex
	info.TwelveVolAux = s.TwelveVolAux
	info.PexCurr = s.PexCurr
	info.AuxCurr = s.AuxCurr
	info.ThreeVolThreePex = s.ThreeVolThreePex
	info.ThreeVolThreeAux = s.ThreeVolThreeAux
	info.DDRVppBtm = s.DDRVppBtm
	info.DDRVppTop = s.DDRVppTop
	info.Sys5v5 = s.Sys5v5
	info.OneVolTwoTop = s.OneVolTwoTop
	info.OneVolEightTop = s.OneVolEightTop
	info.ZeroVolEight = s.ZeroVolEight
	info.Mgt0v9Avcc = s.Mgt0v9Avcc
	info.TwelveVolSw = s.TwelveVolSw
	info.MgtAvtt = s.MgtAvtt
	info.Vcc1v2Btm = s.Vcc1v2Btm

	for i := range info.MigCalibration {
		info.MigCalibration[i] = i < int(m.DDRChannelNum)
	}
	for i, v := range s.SE98Temp {
		if i >= len(info.SE98Temp) {
			break
		}
		info.SE98Temp[i] = v
	}
	for i, v := range s.DIMMTemp {
		if i >= len(info.DIMMTemp) {
			break
		}
		info.DIMMTemp[i] = v
	}

	return info
}
