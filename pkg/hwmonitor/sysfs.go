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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// HwmonSource reads sensor values from the card's hwmon tree. Root is
// the PCI device directory holding the hwmon/hwmonN subdirectories;
// the driver registers one device named xclmgmt_sysmon (die sensors)
// and one named xclmgmt_microblaze (board microcontroller).
type HwmonSource struct {
	Root string
}

// ReadSensors implements SensorSource. Sensor files that are missing
// or unreadable are skipped; only a broken tree is an error.
func (s *HwmonSource) ReadSensors(info *xclmgmt.MgmtInfo) error {
	dirs, err := filepath.Glob(filepath.Join(s.Root, "hwmon", "hwmon*"))
	if err != nil {
		return errors.Wrapf(err, "hwmon tree %s", s.Root)
	}

	if len(dirs) == 0 {
		return errors.Errorf("no hwmon devices under %s", s.Root)
	}

	for _, dir := range dirs {
		var name string

		if err := readFilesInDirectory(map[string]*string{"name": &name}, dir); err != nil {
			return err
		}

		switch name {
		case xclmgmt.SysmonHwmonName:
			s.readSysmon(info, dir)
		case xclmgmt.MBHwmonName:
			s.readMicroblaze(info, dir)
		}
	}

	return nil
}

// readSysmon fills the die sensors: temperature in millidegrees,
// rails in millivolts.
func (s *HwmonSource) readSysmon(info *xclmgmt.MgmtInfo, dir string) {
	var temp, vccint, vccaux, vccbram string

	_ = readFilesInDirectory(map[string]*string{
		"temp1_input": &temp,
		"in0_input":   &vccint,
		"in1_input":   &vccaux,
		"in2_input":   &vccbram,
	}, dir)

	if v, ok := parseValue(temp); ok {
		info.OnChipTemp = uint16(v / 1000)
	}

	if v, ok := parseValue(vccint); ok {
		info.VccInt = uint16(v)
	}

	if v, ok := parseValue(vccaux); ok {
		info.VccAux = uint16(v)
	}

	if v, ok := parseValue(vccbram); ok {
		info.VccBram = uint16(v)
	}
}

// readMicroblaze fills the board sensors: fan, 12 V rails and the
// PEX/AUX currents in milliamps.
func (s *HwmonSource) readMicroblaze(info *xclmgmt.MgmtInfo, dir string) {
	var fanSpeed, fanTemp, pex12v, aux12v, pexCurr, auxCurr string

	_ = readFilesInDirectory(map[string]*string{
		"fan1_input":  &fanSpeed,
		"temp1_input": &fanTemp,
		"in0_input":   &pex12v,
		"in1_input":   &aux12v,
		"curr1_input": &pexCurr,
		"curr2_input": &auxCurr,
	}, dir)

	if v, ok := parseValue(fanSpeed); ok {
		info.FanSpeed = uint16(v)
	}

	if v, ok := parseValue(fanTemp); ok {
		info.FanTemp = uint16(v / 1000)
	}

	if v, ok := parseValue(pex12v); ok {
		info.TwelveVolPex = uint16(v)
	}

	if v, ok := parseValue(aux12v); ok {
		info.TwelveVolAux = uint16(v)
	}

	if v, ok := parseValue(pexCurr); ok {
		info.PexCurr = v
	}

	if v, ok := parseValue(auxCurr); ok {
		info.AuxCurr = v
	}
}

func parseValue(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// readFilesInDirectory reads several sysfs files into the provided set
// of variables. Missing files leave their variable untouched.
func readFilesInDirectory(fileMap map[string]*string, dir string) error {
	for k, v := range fileMap {
		b, err := os.ReadFile(filepath.Join(dir, k))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return errors.Wrapf(err, "%s: unable to read file %q", dir, k)
		}

		*v = strings.TrimSpace(string(b))
	}

	return nil
}
