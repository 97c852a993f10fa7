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

package main

import (
	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

const (
	driverSim     = "sim"
	driverChardev = "chardev"
)

// cardConfig is one card roster entry. The section name is the card
// name; it becomes the socket file name, the metric label and the
// status route segment.
type cardConfig struct {
	Name   string
	Driver string

	// Model is the TOML card model for the sim driver. Empty picks the
	// built-in default model.
	Model string

	// Device is the management node path for the chardev driver.
	Device string

	// HwmonRoot overlays sysfs hwmon sensor readings onto the info
	// snapshot when set.
	HwmonRoot string

	// TelemetryURL and MetricMap overlay sensor readings scraped from a
	// Prometheus endpoint. MetricMap is required with TelemetryURL.
	TelemetryURL string
	MetricMap    string
}

func (c cardConfig) validate() error {
	switch c.Driver {
	case driverSim:
		if c.Device != "" {
			return errors.Errorf("card %s: device is only valid with the chardev driver", c.Name)
		}
	case driverChardev:
		if c.Device == "" {
			return errors.Errorf("card %s: chardev driver needs a device path", c.Name)
		}

		if c.Model != "" {
			return errors.Errorf("card %s: model is only valid with the sim driver", c.Name)
		}
	case "":
		return errors.Errorf("card %s: driver is required", c.Name)
	default:
		return errors.Errorf("card %s: unknown driver %q", c.Name, c.Driver)
	}

	if c.TelemetryURL != "" && c.MetricMap == "" {
		return errors.Errorf("card %s: telemetry-url needs a metric-map", c.Name)
	}

	if c.MetricMap != "" && c.TelemetryURL == "" {
		return errors.Errorf("card %s: metric-map needs a telemetry-url", c.Name)
	}

	return nil
}

// loadConfig parses the card roster. Every non-default ini section is
// one card.
func loadConfig(path string) ([]cardConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}

	cards := []cardConfig{}

	for _, section := range cfg.Sections() {
		if section.Name() == ini.DEFAULT_SECTION {
			continue
		}

		card := cardConfig{
			Name:         section.Name(),
			Driver:       section.Key("driver").String(),
			Model:        section.Key("model").String(),
			Device:       section.Key("device").String(),
			HwmonRoot:    section.Key("hwmon-root").String(),
			TelemetryURL: section.Key("telemetry-url").String(),
			MetricMap:    section.Key("metric-map").String(),
		}

		if err := card.validate(); err != nil {
			return nil, err
		}

		cards = append(cards, card)
	}

	if len(cards) == 0 {
		return nil, errors.Errorf("no cards configured in %s", path)
	}

	return cards, nil
}
