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

// Package mgmtserver carries the management command protocol over unix
// sockets: one fixed-header frame per request, one per response. The
// frame code field is the ioctl request code from pkg/xclmgmt, so the
// socket protocol and the chardev backend share one opcode space. One
// server per card; a manager groups them.
package mgmtserver

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Frame wire layout, little-endian like the payload shapes.
const (
	// FrameMagic opens every frame ("XMGT").
	FrameMagic uint32 = 0x584d4754

	// FrameVersion is bumped on incompatible header changes.
	FrameVersion uint16 = 1

	// FixedHeaderLen is the encoded header size.
	FixedHeaderLen = 20
)

// Header flags.
const (
	// FlagResponse marks a server-to-client frame.
	FlagResponse uint16 = 0x1
)

var (
	errShortHeader     = errors.New("frame: short fixed header")
	errBadMagic        = errors.New("frame: bad magic")
	errBadVersion      = errors.New("frame: unsupported version")
	errPayloadTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed frame header. Code carries the full ioctl
// request code; Status is meaningful on response frames only.
type Header struct {
	Magic      uint32
	Version    uint16
	Flags      uint16
	Code       uint32
	Status     Status
	PayloadLen uint32
}

// Frame is one complete protocol message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits bounds frame decode memory use. Image downloads ride the
// payload, so the cap must cover a full bitstream.
type Limits struct {
	MaxPayloadBytes uint32
}

// DefaultLimits allows bitstreams up to 256 MiB.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 256 * 1024 * 1024}
}

// EncodeHeader returns the 20-byte wire form of h.
func EncodeHeader(h Header) []byte {
	b := make([]byte, FixedHeaderLen)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint16(b[4:6], h.Version)
	binary.LittleEndian.PutUint16(b[6:8], h.Flags)
	binary.LittleEndian.PutUint32(b[8:12], h.Code)
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.Status))
	binary.LittleEndian.PutUint32(b[16:20], h.PayloadLen)

	return b
}

// DecodeHeader decodes exactly FixedHeaderLen bytes and checks magic
// and version.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, errors.Wrapf(errShortHeader, "%d bytes", len(b))
	}

	h := Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint16(b[4:6]),
		Flags:      binary.LittleEndian.Uint16(b[6:8]),
		Code:       binary.LittleEndian.Uint32(b[8:12]),
		Status:     Status(binary.LittleEndian.Uint32(b[12:16])),
		PayloadLen: binary.LittleEndian.Uint32(b[16:20]),
	}

	if h.Magic != FrameMagic {
		return Header{}, errors.Wrapf(errBadMagic, "%#08x", h.Magic)
	}

	if h.Version != FrameVersion {
		return Header{}, errors.Wrapf(errBadVersion, "%d", h.Version)
	}

	return h, nil
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, errShortHeader
		}

		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}

	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, errors.Wrapf(errPayloadTooLarge, "%d bytes", h.PayloadLen)
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}

	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame writes one frame to w, fixing up magic, version and the
// payload length.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return errors.Wrapf(errPayloadTooLarge, "%d bytes", len(f.Payload))
	}

	h := f.Header
	h.Magic = FrameMagic
	h.Version = FrameVersion
	h.PayloadLen = uint32(len(f.Payload))

	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return err
	}

	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}

	return nil
}
