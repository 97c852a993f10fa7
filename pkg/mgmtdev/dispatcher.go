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

package mgmtdev

import (
	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// Dispatcher turns (command id, payload buffer) pairs into typed device
// operations. Each dispatch is terminal in one step: the command is
// resolved and the payload validated before anything runs, and a
// rejected dispatch has no side effects.
type Dispatcher struct {
	dev *Device
}

// NewDispatcher wraps a device for wire-level dispatch.
func NewDispatcher(dev *Device) *Dispatcher {
	return &Dispatcher{dev: dev}
}

// Device returns the dispatched-to device.
func (dp *Dispatcher) Device() *Device { return dp.dev }

// Dispatch validates and executes one command. The response payload is
// nil for commands without a response body. An id outside the command
// enumeration fails with ErrUnknownCommand before the payload is looked
// at; a payload that does not match the bound shape fails with
// ErrMalformedPayload before any collaborator runs.
func (dp *Dispatcher) Dispatch(cmd xclmgmt.Command, payload []byte) ([]byte, error) {
	desc, ok := xclmgmt.Lookup(cmd)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCommand, "id %d", uint32(cmd))
	}

	if err := dp.validate(desc, payload); err != nil {
		return nil, err
	}

	switch cmd {
	case xclmgmt.CmdQueryInfo:
		info, err := dp.dev.Info()
		if err != nil {
			return nil, err
		}
		return info.Encode(), nil

	case xclmgmt.CmdDownloadImage:
		return nil, dp.dev.LoadImage(payload)

	case xclmgmt.CmdScaleFrequency:
		req, err := xclmgmt.DecodeFreqScaling(payload)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedPayload, err.Error())
		}
		return nil, dp.dev.ScaleFrequencies(req)

	case xclmgmt.CmdResetOcl:
		return nil, dp.dev.ResetOcl()

	case xclmgmt.CmdHotReset:
		return nil, dp.dev.HotReset()

	case xclmgmt.CmdReboot:
		return nil, dp.dev.Reboot()

	case xclmgmt.CmdDownloadImageAxlf:
		return nil, dp.dev.LoadImageAxlf(payload)

	case xclmgmt.CmdQueryErrorInfo:
		return dp.dev.ErrorInfo().Encode(), nil
	}

	return nil, errors.Wrapf(ErrUnknownCommand, "id %d", uint32(cmd))
}

// DispatchCode resolves a full ioctl request code and dispatches it.
// A code whose magic, size or direction bits do not match the command
// table is unknown, even if its ordinal is in range.
func (dp *Dispatcher) DispatchCode(code uint32, payload []byte) ([]byte, error) {
	desc, ok := xclmgmt.LookupCode(code)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCommand, "request code %#08x", code)
	}

	return dp.Dispatch(desc.Cmd, payload)
}

func (dp *Dispatcher) validate(desc xclmgmt.CommandDesc, payload []byte) error {
	if desc.Variable() {
		// Image downloads carry the image itself; an empty buffer can
		// never be a loadable image.
		if len(payload) == 0 {
			return errors.Wrapf(ErrMalformedPayload, "%s: empty image", desc.Name)
		}
		return nil
	}

	if len(payload) != desc.ReqSize {
		return errors.Wrapf(ErrMalformedPayload, "%s: got %d payload bytes, want %d", desc.Name, len(payload), desc.ReqSize)
	}

	return nil
}
