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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

const metricsText = `# HELP xmc_vccint_mv VCCINT rail
# TYPE xmc_vccint_mv gauge
xmc_vccint_mv 850
# TYPE sysmon_temp_c gauge
sysmon_temp_c{die="0"} 61
xmc_12v_pex_ma 2600`

func TestTelemetryScraperMapsFamilies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No trailing newline after the last entry, like xpumanager.
		_, _ = w.Write([]byte(metricsText))
	}))
	defer ts.Close()

	scraper := NewTelemetryScraper(ts.URL, MetricMap{Metrics: map[string]string{
		"xmc_vccint_mv":  "vcc_int",
		"sysmon_temp_c":  "onchip_temp",
		"xmc_12v_pex_ma": "pex_curr",
		"absent_family":  "fan_speed",
	}})

	var info xclmgmt.MgmtInfo
	if err := scraper.ReadSensors(&info); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if info.VccInt != 850 {
		t.Errorf("vcc_int = %d, want 850", info.VccInt)
	}

	if info.OnChipTemp != 61 {
		t.Errorf("onchip_temp = %d, want 61", info.OnChipTemp)
	}

	if info.PexCurr != 2600 {
		t.Errorf("pex_curr = %d, want 2600", info.PexCurr)
	}

	if info.FanSpeed != 0 {
		t.Errorf("absent family must leave its field zero, got %d", info.FanSpeed)
	}
}

func TestTelemetryScraperEndpointDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	scraper := NewTelemetryScraper(ts.URL, MetricMap{})

	var info xclmgmt.MgmtInfo
	if err := scraper.ReadSensors(&info); err == nil {
		t.Error("expected an error for a failing endpoint")
	}
}

func TestLoadMetricMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	data := "metrics:\n  xmc_vccint_mv: vcc_int\n  sysmon_temp_c: onchip_temp\n"

	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	mm, err := LoadMetricMap(path)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if mm.Metrics["xmc_vccint_mv"] != "vcc_int" || len(mm.Metrics) != 2 {
		t.Errorf("unexpected map: %+v", mm.Metrics)
	}
}

func TestLoadMetricMapRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	if err := os.WriteFile(path, []byte("metrics:\n  some_metric: not_a_sensor\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadMetricMap(path); err == nil {
		t.Error("expected an error for an unknown sensor field")
	}
}

func TestInfoOverlayDegradesOnSensorFailure(t *testing.T) {
	base := infoSourceFunc(func() (xclmgmt.MgmtInfo, error) {
		var info xclmgmt.MgmtInfo
		info.Vendor = 0x10ee
		return info, nil
	})

	overlay := &InfoOverlay{
		Card: "card0",
		Base: base,
		Sensors: []SensorSource{
			sensorSourceFunc(func(info *xclmgmt.MgmtInfo) error {
				info.VccInt = 850
				return nil
			}),
			sensorSourceFunc(func(info *xclmgmt.MgmtInfo) error {
				return os.ErrDeadlineExceeded
			}),
		},
	}

	info, err := overlay.ReadInfo()
	if err != nil {
		t.Fatalf("a failing sensor source must not fail the query: %+v", err)
	}

	if info.Vendor != 0x10ee || info.VccInt != 850 {
		t.Errorf("unexpected snapshot: %+v", info)
	}
}

type infoSourceFunc func() (xclmgmt.MgmtInfo, error)

func (f infoSourceFunc) ReadInfo() (xclmgmt.MgmtInfo, error) { return f() }

type sensorSourceFunc func(*xclmgmt.MgmtInfo) error

func (f sensorSourceFunc) ReadSensors(info *xclmgmt.MgmtInfo) error { return f(info) }
