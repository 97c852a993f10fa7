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
	"bytes"
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	io_prometheus_client "github.com/prometheus/client_model/go"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

const scrapeTimeout = 5 * time.Second

// MetricMap binds exporter metric families to snapshot sensor fields.
// Loaded from YAML:
//
//	metrics:
//	  xmc_vccint_mv: vcc_int
//	  sysmon_temp_c: onchip_temp
type MetricMap struct {
	// Metrics maps a metric family name to a sensor field name (the
	// keys accepted by setSensor).
	Metrics map[string]string `yaml:"metrics"`
}

// LoadMetricMap reads a metric map from a YAML file and rejects field
// names no sensor matches.
func LoadMetricMap(path string) (MetricMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return MetricMap{}, errors.Wrapf(err, "metric map %s", path)
	}

	var mm MetricMap
	if err := yaml.Unmarshal(b, &mm); err != nil {
		return MetricMap{}, errors.Wrapf(err, "metric map %s", path)
	}

	var probe xclmgmt.MgmtInfo

	for metric, field := range mm.Metrics {
		if !setSensor(&probe, field, 0) {
			return MetricMap{}, errors.Errorf("metric map %s: %s maps to unknown sensor field %q", path, metric, field)
		}
	}

	return mm, nil
}

// TelemetryScraper reads sensor values from a card-telemetry
// exporter's /metrics endpoint. It is a SensorSource for boards whose
// sensors are not in sysfs but behind an exporter sidecar.
type TelemetryScraper struct {
	url     string
	mapping MetricMap
	client  *http.Client
}

// NewTelemetryScraper creates a scraper for the given endpoint.
func NewTelemetryScraper(url string, mapping MetricMap) *TelemetryScraper {
	return &TelemetryScraper{
		url:     url,
		mapping: mapping,
		client:  &http.Client{Timeout: scrapeTimeout},
	}
}

// ReadSensors implements SensorSource: one GET, one text-format parse,
// one assignment per mapped family. Families absent from the scrape
// leave their field untouched.
func (t *TelemetryScraper) ReadSensors(info *xclmgmt.MgmtInfo) error {
	data, err := t.fetch()
	if err != nil {
		return err
	}

	parser := expfmt.NewTextParser(model.LegacyValidation)

	families, err := parser.TextToMetricFamilies(bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "telemetry %s", t.url)
	}

	for name, field := range t.mapping.Metrics {
		family, ok := families[name]
		if !ok || len(family.Metric) == 0 {
			klog.V(4).Infof("telemetry %s: no samples for %s", t.url, name)
			continue
		}

		value, ok := metricValue(family.Metric[0])
		if !ok {
			klog.Warningf("telemetry %s: unsupported metric type for %s", t.url, name)
			continue
		}

		if value < 0 {
			continue
		}

		setSensor(info, field, uint64(value))
	}

	return nil
}

// metricValue extracts the sample value from the metric types the
// exporters actually emit.
func metricValue(metric *io_prometheus_client.Metric) (float64, bool) {
	switch {
	case metric.Gauge != nil:
		return metric.Gauge.GetValue(), true
	case metric.Untyped != nil:
		return metric.Untyped.GetValue(), true
	case metric.Counter != nil:
		return metric.Counter.GetValue(), true
	}

	return 0, false
}

func (t *TelemetryScraper) fetch() ([]byte, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, t.url, http.NoBody)
	if err != nil {
		return nil, errors.Wrapf(err, "telemetry %s", t.url)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "telemetry %s", t.url)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("telemetry %s: status %s", t.url, res.Status)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return nil, errors.Wrapf(err, "telemetry %s", t.url)
	}

	// The exporter may omit the trailing newline the text parser wants.
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}
