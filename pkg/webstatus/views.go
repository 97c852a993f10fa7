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

package webstatus

import "github.com/openxrt/xmgmt/pkg/xclmgmt"

// infoView is the JSON rendering of the info snapshot. Fixed byte
// arrays become strings, bool arrays stay arrays; field grouping
// mirrors the wire shape so tools can correlate the two.
type infoView struct {
	Vendor          uint16 `json:"vendor"`
	Device          uint16 `json:"device"`
	SubsystemVendor uint16 `json:"subsystem_vendor"`
	SubsystemDevice uint16 `json:"subsystem_device"`
	DriverVersion   uint32 `json:"driver_version"`
	DeviceVersion   uint32 `json:"device_version"`
	FeatureID       uint64 `json:"feature_id"`
	TimeStamp       uint64 `json:"time_stamp"`
	VBNV            string `json:"vbnv"`
	FPGA            string `json:"fpga"`

	DDRChannelNum  uint16 `json:"ddr_channel_num"`
	DDRChannelSize uint16 `json:"ddr_channel_size"`
	PCIeLinkWidth  uint16 `json:"pcie_link_width"`
	PCIeLinkSpeed  uint16 `json:"pcie_link_speed"`
	PCISlot        uint32 `json:"pci_slot"`
	IsXPR          bool   `json:"is_xpr"`
	XMCVersion     uint64 `json:"xmc_version"`

	NumClocks      uint16                             `json:"num_clocks"`
	OclFrequency   [xclmgmt.NumSupportedClocks]uint16 `json:"ocl_frequency"`
	MigCalibration [4]bool                            `json:"mig_calibration"`

	Sensors sensorsView `json:"sensors"`
}

type sensorsView struct {
	OnChipTemp   uint16   `json:"onchip_temp"`
	FanTemp      uint16   `json:"fan_temp"`
	FanSpeed     uint16   `json:"fan_speed"`
	VccInt       uint16   `json:"vcc_int"`
	VccAux       uint16   `json:"vcc_aux"`
	VccBram      uint16   `json:"vcc_bram"`
	TwelveVolPex uint16   `json:"twelve_vol_pex"`
	TwelveVolAux uint16   `json:"twelve_vol_aux"`
	PexCurr      uint64   `json:"pex_curr"`
	AuxCurr      uint64   `json:"aux_curr"`
	SE98Temp     [4]int16 `json:"se98_temp"`
	DIMMTemp     [4]int16 `json:"dimm_temp"`
}

func newInfoView(info xclmgmt.MgmtInfo) infoView {
	return infoView{
		Vendor:          info.Vendor,
		Device:          info.Device,
		SubsystemVendor: info.SubsystemVendor,
		SubsystemDevice: info.SubsystemDevice,
		DriverVersion:   info.DriverVersion,
		DeviceVersion:   info.DeviceVersion,
		FeatureID:       info.FeatureID,
		TimeStamp:       info.TimeStamp,
		VBNV:            info.VBNVString(),
		FPGA:            info.FPGAString(),
		DDRChannelNum:   info.DDRChannelNum,
		DDRChannelSize:  info.DDRChannelSize,
		PCIeLinkWidth:   info.PCIeLinkWidth,
		PCIeLinkSpeed:   info.PCIeLinkSpeed,
		PCISlot:         info.PCISlot,
		IsXPR:           info.IsXPR,
		XMCVersion:      info.XMCVersion,
		NumClocks:       info.NumClocks,
		OclFrequency:    info.OclFrequency,
		MigCalibration:  info.MigCalibration,
		Sensors: sensorsView{
			OnChipTemp:   info.OnChipTemp,
			FanTemp:      info.FanTemp,
			FanSpeed:     info.FanSpeed,
			VccInt:       info.VccInt,
			VccAux:       info.VccAux,
			VccBram:      info.VccBram,
			TwelveVolPex: info.TwelveVolPex,
			TwelveVolAux: info.TwelveVolAux,
			PexCurr:      info.PexCurr,
			AuxCurr:      info.AuxCurr,
			SE98Temp:     info.SE98Temp,
			DIMMTemp:     info.DIMMTemp,
		},
	}
}

// errorView is the JSON rendering of the error ledger.
type errorView struct {
	Count         uint32       `json:"count"`
	Records       []recordView `json:"records"`
	PCI           pciView      `json:"pci"`
	FirewallLevel uint32       `json:"firewall_level"`
}

type recordView struct {
	Time       uint64 `json:"time"`
	Status     uint32 `json:"status"`
	FirewallID uint32 `json:"firewall_id"`
	Firewall   string `json:"firewall"`
}

type pciView struct {
	DeviceStatus    uint32 `json:"device_status"`
	UncorrErrStatus uint32 `json:"uncorr_err_status"`
	CorrErrStatus   uint32 `json:"corr_err_status"`
}

func newErrorView(status xclmgmt.ErrorStatus) errorView {
	count := status.NumFirewalls
	if count > xclmgmt.MaxFirewallRecords {
		count = xclmgmt.MaxFirewallRecords
	}

	records := make([]recordView, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := status.Records[i]
		records = append(records, recordView{
			Time:       rec.Time,
			Status:     rec.Status,
			FirewallID: uint32(rec.FirewallID),
			Firewall:   rec.FirewallID.String(),
		})
	}

	return errorView{
		Count:   count,
		Records: records,
		PCI: pciView{
			DeviceStatus:    status.PCI.DeviceStatus,
			UncorrErrStatus: status.PCI.UncorrErrStatus,
			CorrErrStatus:   status.PCI.CorrErrStatus,
		},
		FirewallLevel: status.FirewallLevel,
	}
}
