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

import "testing"

// Expected values precomputed with the kernel _IO/_IOR/_IOW macros.
func TestRequestCodes(t *testing.T) {
	tcases := []struct {
		name string
		code uint32
		want uint32
	}{
		{"info", IOCInfo, 0x81105800},
		{"icap download", IOCIcapDownload, 0x40085801},
		{"freq scale", IOCFreqScale, 0x400c5802},
		{"ocl reset", IOCOclReset, 0x00005803},
		{"hot reset", IOCHotReset, 0x00005804},
		{"reboot", IOCReboot, 0x00005805},
		{"icap download axlf", IOCIcapDownloadAxlf, 0x40085806},
		{"err info", IOCErrInfo, 0x80a05807},
	}
	for _, tt := range tcases {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.want {
				t.Errorf("expected %#08x, got %#08x", tt.want, tt.code)
			}
		})
	}
}

func TestRequestCodeFields(t *testing.T) {
	tcases := []struct {
		name string
		code uint32
		nr   Command
		dir  uint32
		size uint32
	}{
		{"info", IOCInfo, CmdQueryInfo, iocRead, MgmtInfoSize},
		{"freq scale", IOCFreqScale, CmdScaleFrequency, iocWrite, FreqScalingSize},
		{"hot reset", IOCHotReset, CmdHotReset, iocNone, 0},
		{"err info", IOCErrInfo, CmdQueryErrorInfo, iocRead, ErrorStatusSize},
	}
	for _, tt := range tcases {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequestNr(tt.code); got != tt.nr {
				t.Errorf("nr: expected %v, got %v", tt.nr, got)
			}
			if got := RequestType(tt.code); got != IOCMagic {
				t.Errorf("magic: expected %#x, got %#x", byte(IOCMagic), got)
			}
			if got := RequestDir(tt.code); got != tt.dir {
				t.Errorf("dir: expected %d, got %d", tt.dir, got)
			}
			if got := RequestSize(tt.code); got != tt.size {
				t.Errorf("size: expected %d, got %d", tt.size, got)
			}
		})
	}
}
