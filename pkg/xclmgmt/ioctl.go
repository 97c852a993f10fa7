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

// Request codes follow the kernel _IOC encoding from
// <asm-generic/ioctl.h>: nr in bits 0-7, type in 8-15, argument size in
// 16-29 and direction in 30-31. The same codes identify operations both
// on the management character node and on the daemon's socket protocol.

const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func iocEncode(dir, size uint32, nr Command) uint32 {
	return dir<<iocDirShift | size<<iocSizeShift | IOCMagic<<iocTypeShift | uint32(nr)<<iocNrShift
}

func ioc(nr Command) uint32 {
	return iocEncode(iocNone, 0, nr)
}

func iocR(nr Command, size uint32) uint32 {
	return iocEncode(iocRead, size, nr)
}

func iocW(nr Command, size uint32) uint32 {
	return iocEncode(iocWrite, size, nr)
}

// ptrSize is the encoded argument size of the two download requests:
// on the character node they carry a single pointer to the caller's
// image buffer (struct xclmgmt_ioc_bitstream{,_axlf}).
const ptrSize = 8

// Management ioctl request codes from mgmt-ioctl.h.
var (
	// IOCInfo - _IOR('X', 0, struct xclmgmt_ioc_info)
	IOCInfo = iocR(CmdQueryInfo, MgmtInfoSize)
	// IOCIcapDownload - _IOW('X', 1, struct xclmgmt_ioc_bitstream)
	IOCIcapDownload = iocW(CmdDownloadImage, ptrSize)
	// IOCFreqScale - _IOW('X', 2, struct xclmgmt_ioc_freqscaling)
	IOCFreqScale = iocW(CmdScaleFrequency, FreqScalingSize)
	// IOCOclReset - _IO('X', 3)
	IOCOclReset = ioc(CmdResetOcl)
	// IOCHotReset - _IO('X', 4)
	IOCHotReset = ioc(CmdHotReset)
	// IOCReboot - _IO('X', 5)
	IOCReboot = ioc(CmdReboot)
	// IOCIcapDownloadAxlf - _IOW('X', 6, struct xclmgmt_ioc_bitstream_axlf)
	IOCIcapDownloadAxlf = iocW(CmdDownloadImageAxlf, ptrSize)
	// IOCErrInfo - _IOR('X', 7, struct xclErrorStatus)
	IOCErrInfo = iocR(CmdQueryErrorInfo, ErrorStatusSize)
)

// RequestNr extracts the command ordinal from an ioctl request code.
func RequestNr(code uint32) Command {
	return Command(code >> iocNrShift & (1<<iocNrBits - 1))
}

// RequestType extracts the magic byte from an ioctl request code.
func RequestType(code uint32) byte {
	return byte(code >> iocTypeShift & (1<<iocTypeBits - 1))
}

// RequestSize extracts the encoded argument size from an ioctl request code.
func RequestSize(code uint32) uint32 {
	return code >> iocSizeShift & (1<<iocSizeBits - 1)
}

// RequestDir extracts the direction bits from an ioctl request code:
// 0 none, 1 write, 2 read.
func RequestDir(code uint32) uint32 {
	return code >> iocDirShift & 3
}
