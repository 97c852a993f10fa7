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

// xmgmt_tool talks to a running xmgmtd: privileged card operations over
// the per-card unix socket and trip history over the status HTTP
// surface.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/mgmtserver"
	"github.com/openxrt/xmgmt/pkg/triplog"
	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

func main() {
	var err error

	var socket string

	var image string

	var region uint

	var statusURL string

	var firewall string

	var limit int

	flag.StringVar(&socket, "s", "", "Path to the card management socket")
	flag.StringVar(&image, "i", "", "Path to configuration image file")
	flag.UintVar(&region, "region", 0, "PR region for freqscale")
	flag.StringVar(&statusURL, "u", "http://localhost:8890", "Status server base URL (trips)")
	flag.StringVar(&firewall, "firewall", "", "Firewall id filter for trips")
	flag.IntVar(&limit, "limit", 0, "Row limit for trips")

	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Please provide command: info, errinfo, load, loadaxlf, freqscale, oclreset, hotreset, reboot, trips")
	}

	cmd := flag.Arg(0)

	if err = validateFlags(cmd, socket, image); err != nil {
		log.Fatalf("Invalid arguments: %+v", err)
	}

	switch cmd {
	case "info":
		err = printInfo(socket)
	case "errinfo":
		err = printErrorInfo(socket)
	case "load":
		err = loadImage(socket, image, false)
	case "loadaxlf":
		err = loadImage(socket, image, true)
	case "freqscale":
		err = scaleFrequencies(socket, uint32(region), flag.Args()[1:])
	case "oclreset":
		err = withClient(socket, func(c *mgmtserver.Client) error { return c.ResetOcl() })
	case "hotreset":
		err = withClient(socket, func(c *mgmtserver.Client) error { return c.HotReset() })
	case "reboot":
		err = withClient(socket, func(c *mgmtserver.Client) error { return c.Reboot() })
	case "trips":
		err = printTrips(statusURL, cardName(socket), firewall, limit)
	default:
		err = errors.Errorf("unknown command %+v", flag.Args())
	}

	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func validateFlags(cmd, socket, image string) error {
	switch cmd {
	case "info", "errinfo", "freqscale", "oclreset", "hotreset", "reboot":
		if socket == "" {
			return errors.Errorf("management socket path is missing")
		}
	case "load", "loadaxlf":
		if socket == "" {
			return errors.Errorf("management socket path is missing")
		}

		if image == "" {
			return errors.Errorf("image filename is missing")
		}
	case "trips":
		if socket == "" {
			return errors.Errorf("management socket path is missing (names the card)")
		}
	}

	return nil
}

// cardName recovers the card name from its socket path.
func cardName(socket string) string {
	return strings.TrimSuffix(filepath.Base(socket), ".sock")
}

func withClient(socket string, fn func(*mgmtserver.Client) error) error {
	client, err := mgmtserver.Dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(client)
}

func printInfo(socket string) error {
	return withClient(socket, func(c *mgmtserver.Client) error {
		info, err := c.Info()
		if err != nil {
			return err
		}

		fmt.Printf("Vendor            : %#04x\n", info.Vendor)
		fmt.Printf("Device            : %#04x\n", info.Device)
		fmt.Printf("Subsystem         : %#04x:%#04x\n", info.SubsystemVendor, info.SubsystemDevice)
		fmt.Printf("VBNV              : %q\n", info.VBNVString())
		fmt.Printf("FPGA              : %q\n", info.FPGAString())
		fmt.Printf("Driver version    : %d\n", info.DriverVersion)
		fmt.Printf("Device version    : %d\n", info.DeviceVersion)
		fmt.Printf("Timestamp         : %d\n", info.TimeStamp)
		fmt.Printf("PCIe              : gen%d x%d slot %d\n", info.PCIeLinkSpeed, info.PCIeLinkWidth, info.PCISlot)
		fmt.Printf("DDR               : %d channels x %d GiB\n", info.DDRChannelNum, info.DDRChannelSize)

		for i := uint16(0); i < info.NumClocks && i < xclmgmt.NumSupportedClocks; i++ {
			fmt.Printf("Clock %d           : %d MHz\n", i, info.OclFrequency[i])
		}

		fmt.Printf("On-chip temp      : %d C\n", info.OnChipTemp)
		fmt.Printf("Fan               : %d C, %d rpm\n", info.FanTemp, info.FanSpeed)
		fmt.Printf("VccInt/Aux/Bram   : %d/%d/%d mV\n", info.VccInt, info.VccAux, info.VccBram)
		fmt.Printf("12V PEX/AUX       : %d/%d mV\n", info.TwelveVolPex, info.TwelveVolAux)
		fmt.Printf("Current PEX/AUX   : %d/%d mA\n", info.PexCurr, info.AuxCurr)

		return nil
	})
}

func printErrorInfo(socket string) error {
	return withClient(socket, func(c *mgmtserver.Client) error {
		status, err := c.ErrorInfo()
		if err != nil {
			return err
		}

		fmt.Printf("Firewall trips  : %d\n", status.NumFirewalls)
		fmt.Printf("Firewall level  : %d\n", status.FirewallLevel)

		count := status.NumFirewalls
		if count > xclmgmt.MaxFirewallRecords {
			count = xclmgmt.MaxFirewallRecords
		}

		for i := uint32(0); i < count; i++ {
			rec := status.Records[i]
			fmt.Printf("  [%d] %-13s status %#x at %d\n", i, rec.FirewallID, rec.Status, rec.Time)
		}

		fmt.Printf("PCI device status : %#x\n", status.PCI.DeviceStatus)
		fmt.Printf("PCI uncorrectable : %#x\n", status.PCI.UncorrErrStatus)
		fmt.Printf("PCI correctable   : %#x\n", status.PCI.CorrErrStatus)

		return nil
	})
}

func loadImage(socket, fname string, axlf bool) error {
	image, err := os.ReadFile(fname)
	if err != nil {
		return errors.Wrap(err, "can't read image file")
	}

	return withClient(socket, func(c *mgmtserver.Client) error {
		fmt.Printf("Downloading %q (%d bytes)\n", fname, len(image))

		if axlf {
			return c.LoadImageAxlf(image)
		}

		return c.LoadImage(image)
	})
}

func scaleFrequencies(socket string, region uint32, args []string) error {
	if len(args) == 0 || len(args) > xclmgmt.NumSupportedClocks {
		return errors.Errorf("freqscale takes 1 to %d frequencies in MHz", xclmgmt.NumSupportedClocks)
	}

	req := xclmgmt.FreqScaling{OclRegion: region}

	for i, arg := range args {
		mhz, err := strconv.ParseUint(arg, 10, 16)
		if err != nil {
			return errors.Wrapf(err, "bad frequency %q", arg)
		}

		req.OclTargetFreq[i] = uint16(mhz)
	}

	return withClient(socket, func(c *mgmtserver.Client) error {
		return c.ScaleFrequencies(req)
	})
}

func printTrips(base, card, firewall string, limit int) error {
	u, err := url.Parse(base)
	if err != nil {
		return errors.Wrapf(err, "bad status URL %q", base)
	}

	u.Path = "/cards/" + card + "/trips"
	q := url.Values{}

	if firewall != "" {
		q.Set("firewall", firewall)
	}

	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	u.RawQuery = q.Encode()

	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(u.String())
	if err != nil {
		return errors.Wrap(err, "status server request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("status server: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Trips []triplog.Trip `json:"trips"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.Wrap(err, "bad status server response")
	}

	for _, trip := range payload.Trips {
		dropped := ""
		if trip.Dropped {
			dropped = " (dropped)"
		}

		fmt.Printf("%s %-13s status %#x at %d%s\n",
			trip.RecordedAt.Format(time.RFC3339), trip.Firewall, trip.Status, trip.Time, dropped)
	}

	return nil
}
