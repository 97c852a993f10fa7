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
	"os"
	"path/filepath"
	"testing"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

func TestScaleFrequenciesZeroSlotUntouched(t *testing.T) {
	card := NewCard(DefaultModel())

	err := card.ScaleFrequencies(xclmgmt.FreqScaling{
		OclTargetFreq: [xclmgmt.NumSupportedClocks]uint16{100, 0, 0, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	freqs, clocks, err := card.Frequencies()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if clocks != xclmgmt.NumActualClocks {
		t.Errorf("expected %d wired clocks, got %d", xclmgmt.NumActualClocks, clocks)
	}
	if freqs[0] != 100 {
		t.Errorf("clock 0: expected 100, got %d", freqs[0])
	}
	// Zero slot: clock 1 keeps its default.
	if freqs[1] != 500 {
		t.Errorf("clock 1 changed by a zero slot: %d", freqs[1])
	}
}

func TestScaleFrequenciesIgnoresUnwiredSlots(t *testing.T) {
	card := NewCard(DefaultModel())

	err := card.ScaleFrequencies(xclmgmt.FreqScaling{
		OclTargetFreq: [xclmgmt.NumSupportedClocks]uint16{100, 0, 200, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	freqs, _, err := card.Frequencies()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if freqs[0] != 100 || freqs[1] != 500 {
		t.Errorf("wired clocks: expected [100 500], got %v", freqs[:2])
	}
	// Slot 2 names a clock the card does not have: ignored, not an error.
	if freqs[2] != 0 || freqs[3] != 0 {
		t.Errorf("unwired slots changed: %v", freqs[2:])
	}
}

func TestScaleFrequenciesFourClockCard(t *testing.T) {
	model := DefaultModel()
	model.NumClocks = xclmgmt.NumSupportedClocks
	model.DefaultClocks = []uint16{300, 500, 50, 50}
	card := NewCard(model)

	err := card.ScaleFrequencies(xclmgmt.FreqScaling{
		OclTargetFreq: [xclmgmt.NumSupportedClocks]uint16{100, 0, 200, 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	freqs, _, err := card.Frequencies()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	want := [xclmgmt.NumSupportedClocks]uint16{100, 500, 200, 50}
	if freqs != want {
		t.Errorf("expected %v, got %v", want, freqs)
	}
}

func TestScaleFrequenciesRejectsOtherRegions(t *testing.T) {
	card := NewCard(DefaultModel())

	if err := card.ScaleFrequencies(xclmgmt.FreqScaling{OclRegion: 1}); err == nil {
		t.Fatal("region 1 accepted but only region 0 is wired")
	}

	// The rejected request changed nothing.
	freqs, _, err := card.Frequencies()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if freqs[0] != 300 || freqs[1] != 500 {
		t.Errorf("defaults disturbed: %v", freqs[:2])
	}
}

func TestHotResetRestoresDefaults(t *testing.T) {
	card := NewCard(DefaultModel())

	if err := card.ScaleFrequencies(xclmgmt.FreqScaling{
		OclTargetFreq: [xclmgmt.NumSupportedClocks]uint16{123, 456, 0, 0},
	}); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	card.TripFirewall(xclmgmt.FirewallDatapath, 0x1)

	if err := card.HotReset(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	freqs, _, err := card.Frequencies()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if freqs[0] != 300 || freqs[1] != 500 {
		t.Errorf("expected default clocks after hot reset, got %v", freqs[:2])
	}

	trips, err := card.PollFirewall()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(trips) != 0 {
		t.Errorf("pending trips survived hot reset: %v", trips)
	}
}

func TestFirewallPollDrains(t *testing.T) {
	card := NewCard(DefaultModel())
	card.TripFirewallAt(xclmgmt.FirewallUserControl, 0x2, 1111)
	card.TripFirewallAt(xclmgmt.FirewallDatapath, 0x1, 2222)

	trips, err := card.PollFirewall()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(trips) != 2 {
		t.Fatalf("expected 2 trips, got %d", len(trips))
	}
	want := xclmgmt.AXIErrorStatus{Time: 1111, Status: 0x2, FirewallID: xclmgmt.FirewallUserControl}
	if trips[0] != want {
		t.Errorf("expected %+v, got %+v", want, trips[0])
	}

	again, err := card.PollFirewall()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(again) != 0 {
		t.Errorf("second poll returned stale trips: %v", again)
	}
}

func TestReadInfoRendersModel(t *testing.T) {
	model := DefaultModel()
	card := NewCard(model)

	info, err := card.ReadInfo()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if info.Vendor != model.Vendor || info.Device != model.Device {
		t.Errorf("identity mismatch: %+v", info)
	}
	if info.VBNVString() != model.VBNV {
		t.Errorf("expected vbnv %q, got %q", model.VBNV, info.VBNVString())
	}
	if info.TimeStamp != xclmgmt.AWSShell14 {
		t.Errorf("expected shell timestamp %d, got %d", uint64(xclmgmt.AWSShell14), info.TimeStamp)
	}
	if info.VccInt != model.Sensors.VccInt {
		t.Errorf("expected vcc_int %d, got %d", model.Sensors.VccInt, info.VccInt)
	}
	// Clock fields belong to the wizard overlay, not the source.
	if info.NumClocks != 0 || info.OclFrequency != ([xclmgmt.NumSupportedClocks]uint16{}) {
		t.Errorf("source filled clock fields: %+v", info)
	}
	if !info.MigCalibration[0] || !info.MigCalibration[3] {
		t.Errorf("expected all %d channels calibrated: %v", model.DDRChannelNum, info.MigCalibration)
	}
}

func TestLoadModelOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.toml")
	profile := `
vbnv = "openxrt_sim_gen3x16_hbm_2"
num_clocks = 3
default_clocks = [250, 500, 100]

[sensors]
vcc_int = 900
`
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		t.Fatal(err)
	}

	model, err := LoadModel(path)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if model.VBNV != "openxrt_sim_gen3x16_hbm_2" {
		t.Errorf("vbnv not overridden: %q", model.VBNV)
	}
	if model.NumClocks != 3 || len(model.DefaultClocks) != 3 {
		t.Errorf("clock override lost: %+v", model)
	}
	if model.Sensors.VccInt != 900 {
		t.Errorf("sensor override lost: %d", model.Sensors.VccInt)
	}
	// Untouched keys keep defaults.
	if model.Vendor != 0x10ee {
		t.Errorf("default vendor lost: %#x", model.Vendor)
	}
	if model.Sensors.FanSpeed != 1200 {
		t.Errorf("default fan speed lost: %d", model.Sensors.FanSpeed)
	}
}

func TestLoadModelRejectsBadClockCounts(t *testing.T) {
	tcases := []struct {
		name    string
		profile string
	}{
		{"zero clocks", "num_clocks = 0"},
		{"too many clocks", "num_clocks = 9"},
		{"more defaults than clocks", "num_clocks = 1\ndefault_clocks = [100, 200]"},
	}
	for _, tt := range tcases {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "card.toml")
			if err := os.WriteFile(path, []byte(tt.profile), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadModel(path); err == nil {
				t.Error("invalid profile accepted")
			}
		})
	}
}
