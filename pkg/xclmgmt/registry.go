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

package xclmgmt

// SizeVariable marks a request payload whose length is not fixed by the
// ABI: the download commands carry the image bytes themselves.
const SizeVariable = -1

// CommandDesc binds one command to its request code, payload shapes and
// access class. The closed table below is the whole protocol; there is
// no registration at run time.
type CommandDesc struct {
	Cmd  Command
	Name string
	// Code is the ioctl request code identifying this command on every
	// transport.
	Code uint32
	// Privileged marks operations that mutate hardware state and are
	// serialized per device.
	Privileged bool
	// ReqSize is the exact request payload length in bytes, 0 for
	// argument-less commands or SizeVariable for image downloads.
	ReqSize int
	// RespSize is the exact response payload length in bytes, 0 for
	// commands with no response body.
	RespSize int
}

// Variable reports whether the request payload length is caller-chosen.
func (d CommandDesc) Variable() bool {
	return d.ReqSize == SizeVariable
}

var commandTable = [CmdMax]CommandDesc{
	CmdQueryInfo: {
		Cmd:      CmdQueryInfo,
		Name:     "info",
		Code:     IOCInfo,
		RespSize: MgmtInfoSize,
	},
	CmdDownloadImage: {
		Cmd:        CmdDownloadImage,
		Name:       "icap-download",
		Code:       IOCIcapDownload,
		Privileged: true,
		ReqSize:    SizeVariable,
	},
	CmdScaleFrequency: {
		Cmd:        CmdScaleFrequency,
		Name:       "freq-scale",
		Code:       IOCFreqScale,
		Privileged: true,
		ReqSize:    FreqScalingSize,
	},
	CmdResetOcl: {
		Cmd:        CmdResetOcl,
		Name:       "ocl-reset",
		Code:       IOCOclReset,
		Privileged: true,
	},
	CmdHotReset: {
		Cmd:        CmdHotReset,
		Name:       "hot-reset",
		Code:       IOCHotReset,
		Privileged: true,
	},
	CmdReboot: {
		Cmd:        CmdReboot,
		Name:       "reboot",
		Code:       IOCReboot,
		Privileged: true,
	},
	CmdDownloadImageAxlf: {
		Cmd:        CmdDownloadImageAxlf,
		Name:       "icap-download-axlf",
		Code:       IOCIcapDownloadAxlf,
		Privileged: true,
		ReqSize:    SizeVariable,
	},
	CmdQueryErrorInfo: {
		Cmd:      CmdQueryErrorInfo,
		Name:     "err-info",
		Code:     IOCErrInfo,
		RespSize: ErrorStatusSize,
	},
}

// Lookup returns the descriptor bound to cmd, or false for ids outside
// the enumeration.
func Lookup(cmd Command) (CommandDesc, bool) {
	if !cmd.Known() {
		return CommandDesc{}, false
	}
	return commandTable[cmd], true
}

// LookupCode resolves a full ioctl request code. The whole code must
// match, not only the ordinal: a code with the right nr but the wrong
// magic, size or direction belongs to some other device class.
func LookupCode(code uint32) (CommandDesc, bool) {
	cmd := RequestNr(code)
	if !cmd.Known() {
		return CommandDesc{}, false
	}
	d := commandTable[cmd]
	if d.Code != code {
		return CommandDesc{}, false
	}
	return d, true
}

// LookupName resolves a command by its short name, for tooling.
func LookupName(name string) (CommandDesc, bool) {
	for _, d := range commandTable {
		if d.Name == name {
			return d, true
		}
	}
	return CommandDesc{}, false
}

// Commands returns the descriptors in ordinal order.
func Commands() []CommandDesc {
	out := make([]CommandDesc, len(commandTable))
	copy(out, commandTable[:])
	return out
}
