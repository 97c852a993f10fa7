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
	"testing"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

func writeHwmonDevice(t *testing.T, root, dir, name string, files map[string]string) {
	t.Helper()

	path := filepath.Join(root, "hwmon", dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}

	files["name"] = name
	for file, value := range files {
		if err := os.WriteFile(filepath.Join(path, file), []byte(value+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHwmonSourceReadsBothDevices(t *testing.T) {
	root := t.TempDir()

	writeHwmonDevice(t, root, "hwmon0", xclmgmt.SysmonHwmonName, map[string]string{
		"temp1_input": "67500",
		"in0_input":   "851",
		"in1_input":   "1798",
		"in2_input":   "852",
	})
	writeHwmonDevice(t, root, "hwmon1", xclmgmt.MBHwmonName, map[string]string{
		"fan1_input":  "1320",
		"temp1_input": "39000",
		"in0_input":   "12010",
		"in1_input":   "12090",
		"curr1_input": "2450",
		"curr2_input": "1110",
	})

	src := &HwmonSource{Root: root}

	var info xclmgmt.MgmtInfo
	if err := src.ReadSensors(&info); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	want := xclmgmt.MgmtInfo{
		OnChipTemp:   67,
		VccInt:       851,
		VccAux:       1798,
		VccBram:      852,
		FanSpeed:     1320,
		FanTemp:      39,
		TwelveVolPex: 12010,
		TwelveVolAux: 12090,
		PexCurr:      2450,
		AuxCurr:      1110,
	}
	if info != want {
		t.Errorf("sensor mismatch:\n got %+v\nwant %+v", info, want)
	}
}

func TestHwmonSourceSkipsMissingFiles(t *testing.T) {
	root := t.TempDir()

	writeHwmonDevice(t, root, "hwmon0", xclmgmt.SysmonHwmonName, map[string]string{
		"temp1_input": "45000",
	})

	src := &HwmonSource{Root: root}

	var info xclmgmt.MgmtInfo
	if err := src.ReadSensors(&info); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if info.OnChipTemp != 45 {
		t.Errorf("expected temp 45, got %d", info.OnChipTemp)
	}

	// Unreadable rails stay at the zero sentinel.
	if info.VccInt != 0 || info.VccAux != 0 {
		t.Errorf("missing rails should stay zero: %+v", info)
	}
}

func TestHwmonSourceIgnoresForeignDevices(t *testing.T) {
	root := t.TempDir()

	writeHwmonDevice(t, root, "hwmon0", "coretemp", map[string]string{
		"temp1_input": "99000",
	})
	writeHwmonDevice(t, root, "hwmon1", xclmgmt.SysmonHwmonName, map[string]string{
		"temp1_input": "50000",
	})

	src := &HwmonSource{Root: root}

	var info xclmgmt.MgmtInfo
	if err := src.ReadSensors(&info); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if info.OnChipTemp != 50 {
		t.Errorf("expected temp from the sysmon device, got %d", info.OnChipTemp)
	}
}

func TestHwmonSourceEmptyTree(t *testing.T) {
	src := &HwmonSource{Root: t.TempDir()}

	var info xclmgmt.MgmtInfo
	if err := src.ReadSensors(&info); err == nil {
		t.Error("expected an error for a tree without hwmon devices")
	}
}
