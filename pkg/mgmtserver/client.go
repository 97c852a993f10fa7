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

package mgmtserver

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// Client issues management commands to one card socket. Methods map
// one-to-one onto the command table; errors from the far side come
// back as the pkg/mgmtdev taxonomy sentinels, so errors.Is works the
// same whether the dispatcher is local or behind a socket.
//
// A client is safe for concurrent use; requests on one connection are
// serialized, so concurrency tests should use one client per caller.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	limits Limits
}

// Dial connects to a card socket.
func Dial(socket string) (*Client, error) {
	return DialTimeout(socket, 10*time.Second)
}

// DialTimeout connects with an explicit timeout.
func DialTimeout(socket string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socket, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", socket)
	}

	return &Client{conn: conn, limits: DefaultLimits()}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Raw sends one command frame and returns the response payload. Most
// callers want the typed methods below.
func (c *Client) Raw(cmd xclmgmt.Command, payload []byte) ([]byte, error) {
	desc, ok := xclmgmt.Lookup(cmd)
	if !ok {
		// Send the bare ordinal so the server rejects it, for tooling
		// that probes unknown ids on purpose.
		return c.roundTrip(uint32(cmd), payload)
	}

	return c.roundTrip(desc.Code, payload)
}

// RawCode sends one command frame with a caller-chosen request code.
func (c *Client) RawCode(code uint32, payload []byte) ([]byte, error) {
	return c.roundTrip(code, payload)
}

func (c *Client) roundTrip(code uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := Frame{
		Header:  Header{Code: code},
		Payload: payload,
	}
	if err := WriteFrame(c.conn, req, c.limits); err != nil {
		return nil, errors.Wrap(err, "request write")
	}

	resp, err := ReadFrame(c.conn, c.limits)
	if err != nil {
		return nil, errors.Wrap(err, "response read")
	}

	if resp.Header.Flags&FlagResponse == 0 {
		return nil, errors.New("protocol violation: response flag missing")
	}

	if resp.Header.Code != code {
		return nil, errors.Errorf("protocol violation: response code %#08x for request %#08x", resp.Header.Code, code)
	}

	if resp.Header.Status != StatusOK {
		return nil, resp.Header.Status.Err(string(resp.Payload))
	}

	return resp.Payload, nil
}

// Info queries the device info snapshot.
func (c *Client) Info() (xclmgmt.MgmtInfo, error) {
	payload, err := c.Raw(xclmgmt.CmdQueryInfo, nil)
	if err != nil {
		return xclmgmt.MgmtInfo{}, err
	}

	return xclmgmt.DecodeMgmtInfo(payload)
}

// ErrorInfo queries the firewall-trip ledger.
func (c *Client) ErrorInfo() (xclmgmt.ErrorStatus, error) {
	payload, err := c.Raw(xclmgmt.CmdQueryErrorInfo, nil)
	if err != nil {
		return xclmgmt.ErrorStatus{}, err
	}

	return xclmgmt.DecodeErrorStatus(payload)
}

// LoadImage downloads a legacy-format configuration image.
func (c *Client) LoadImage(image []byte) error {
	_, err := c.Raw(xclmgmt.CmdDownloadImage, image)
	return err
}

// LoadImageAxlf downloads an AXLF container image.
func (c *Client) LoadImageAxlf(image []byte) error {
	_, err := c.Raw(xclmgmt.CmdDownloadImageAxlf, image)
	return err
}

// ScaleFrequencies adjusts the clock wizard.
func (c *Client) ScaleFrequencies(req xclmgmt.FreqScaling) error {
	_, err := c.Raw(xclmgmt.CmdScaleFrequency, req.Encode())
	return err
}

// ResetOcl resets the programmable-logic region.
func (c *Client) ResetOcl() error {
	_, err := c.Raw(xclmgmt.CmdResetOcl, nil)
	return err
}

// HotReset performs a full PCIe hot reset.
func (c *Client) HotReset() error {
	_, err := c.Raw(xclmgmt.CmdHotReset, nil)
	return err
}

// Reboot reboots the FPGA from its boot PROM.
func (c *Client) Reboot() error {
	_, err := c.Raw(xclmgmt.CmdReboot, nil)
	return err
}
