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

package hwmonitor

import (
	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/mgmtdev"
	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// SensorSource fills sensor fields of an info snapshot in place.
// Fields the source cannot read are left alone, so missing sensors
// stay zero in the final snapshot.
type SensorSource interface {
	ReadSensors(info *xclmgmt.MgmtInfo) error
}

// InfoOverlay is an info source that overlays sensor readings on top
// of a base source's identity and topology values. A failing sensor
// source degrades the snapshot, never the query: its fields stay zero
// and the failure is logged.
type InfoOverlay struct {
	Card    string
	Base    mgmtdev.InfoSource
	Sensors []SensorSource
}

// ReadInfo implements mgmtdev.InfoSource.
func (o *InfoOverlay) ReadInfo() (xclmgmt.MgmtInfo, error) {
	info, err := o.Base.ReadInfo()
	if err != nil {
		return xclmgmt.MgmtInfo{}, err
	}

	for _, s := range o.Sensors {
		if err := s.ReadSensors(&info); err != nil {
			klog.V(2).Infof("%s: sensor source: %v", o.Card, err)
		}
	}

	return info, nil
}

// setSensor assigns one named sensor field. The names are the model
// keys shared with the simulator profiles and the telemetry metric
// map. Unknown names report false.
func setSensor(info *xclmgmt.MgmtInfo, field string, value uint64) bool {
	switch field {
	case "onchip_temp":
		info.OnChipTemp = uint16(value)
	case "fan_temp":
		info.FanTemp = uint16(value)
	case "fan_speed":
		info.FanSpeed = uint16(value)
	case "vcc_int":
		info.VccInt = uint16(value)
	case "vcc_aux":
		info.VccAux = uint16(value)
	case "vcc_bram":
		info.VccBram = uint16(value)
	case "twelve_vol_pex":
		info.TwelveVolPex = uint16(value)
	case "twelve_vol_aux":
		info.TwelveVolAux = uint16(value)
	case "pex_curr":
		info.PexCurr = value
	case "aux_curr":
		info.AuxCurr = value
	case "three_vol_three_pex":
		info.ThreeVolThreePex = uint16(value)
	case "three_vol_three_aux":
		info.ThreeVolThreeAux = uint16(value)
	case "ddr_vpp_btm":
		info.DDRVppBtm = uint16(value)
	case "ddr_vpp_top":
		info.DDRVppTop = uint16(value)
	case "sys_5v5":
		info.Sys5v5 = uint16(value)
	case "one_vol_two_top":
		info.OneVolTwoTop = uint16(value)
	case "one_vol_eight_top":
		info.OneVolEightTop = uint16(value)
	case "zero_vol_eight":
		info.ZeroVolEight = uint16(value)
	case "mgt0v9avcc":
		info.Mgt0v9Avcc = uint16(value)
	case "twelve_vol_sw":
		info.TwelveVolSw = uint16(value)
	case "mgtavtt":
		info.MgtAvtt = uint16(value)
	case "vcc1v2_btm":
		info.Vcc1v2Btm = uint16(value)
	default:
		return false
	}

	return true
}
