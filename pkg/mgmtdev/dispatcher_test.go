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
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

func newTestDispatcher() (*Dispatcher, *fakeCard) {
	card := &fakeCard{clocks: xclmgmt.NumActualClocks}
	return NewDispatcher(NewDevice("card0", card.collaborators())), card
}

func TestDispatchUnknownCommand(t *testing.T) {
	dp, card := newTestDispatcher()

	// Garbage payloads of assorted sizes: the id decides, the payload
	// is never looked at.
	for _, cmd := range []xclmgmt.Command{xclmgmt.CmdMax, 42} {
		for _, payload := range [][]byte{nil, make([]byte, 3), make([]byte, 999)} {
			_, err := dp.Dispatch(cmd, payload)
			if !errors.Is(err, ErrUnknownCommand) {
				t.Errorf("cmd %d payload %d: expected ErrUnknownCommand, got %+v", uint32(cmd), len(payload), err)
			}
			if errors.Is(err, ErrMalformedPayload) {
				t.Errorf("cmd %d: unknown id misreported as malformed payload", uint32(cmd))
			}
		}
	}

	if len(card.images) != 0 || card.reboots != 0 {
		t.Error("rejected dispatch reached a collaborator")
	}
}

func TestDispatchMalformedPayload(t *testing.T) {
	tcases := []struct {
		name    string
		cmd     xclmgmt.Command
		payload []byte
	}{
		{"freq scale short", xclmgmt.CmdScaleFrequency, make([]byte, xclmgmt.FreqScalingSize-1)},
		{"freq scale long", xclmgmt.CmdScaleFrequency, make([]byte, xclmgmt.FreqScalingSize+1)},
		{"info with payload", xclmgmt.CmdQueryInfo, []byte{1}},
		{"err info with payload", xclmgmt.CmdQueryErrorInfo, []byte{1, 2}},
		{"hot reset with payload", xclmgmt.CmdHotReset, []byte{0}},
		{"empty image", xclmgmt.CmdDownloadImage, nil},
		{"empty axlf image", xclmgmt.CmdDownloadImageAxlf, []byte{}},
	}
	for _, tt := range tcases {
		t.Run(tt.name, func(t *testing.T) {
			dp, card := newTestDispatcher()

			_, err := dp.Dispatch(tt.cmd, tt.payload)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %+v", err)
			}

			if len(card.images) != 0 || len(card.axlfImages) != 0 || card.lastScale != nil ||
				card.oclResets+card.hotResets+card.reboots != 0 {
				t.Error("rejected dispatch had side effects")
			}
		})
	}
}

func TestDispatchFreqScalePassesRequestThrough(t *testing.T) {
	dp, card := newTestDispatcher()
	req := xclmgmt.FreqScaling{
		OclRegion:     0,
		OclTargetFreq: [xclmgmt.NumSupportedClocks]uint16{100, 0, 200, 0},
	}

	resp, err := dp.Dispatch(xclmgmt.CmdScaleFrequency, req.Encode())
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if resp != nil {
		t.Errorf("expected no response body, got %d bytes", len(resp))
	}
	if card.lastScale == nil || *card.lastScale != req {
		t.Errorf("expected wizard to receive %+v, got %+v", req, card.lastScale)
	}
}

func TestDispatchFreqScaleRegionRejected(t *testing.T) {
	// The wizard owns region policy: requests for a region the card
	// does not have come back as OperationFailed, not as a validation
	// error.
	dp, card := newTestDispatcher()
	card.scaleErr = errors.New("unsupported region 1")

	req := xclmgmt.FreqScaling{OclRegion: 1}
	_, err := dp.Dispatch(xclmgmt.CmdScaleFrequency, req.Encode())
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("expected ErrOperationFailed, got %+v", err)
	}
}

func TestDispatchQueryInfo(t *testing.T) {
	dp, card := newTestDispatcher()
	card.info.Vendor = 0x10ee
	card.info.SetVBNV("xilinx_u200_xdma_201830_2")
	card.freqs = [xclmgmt.NumSupportedClocks]uint16{250, 500, 0, 0}

	resp, err := dp.Dispatch(xclmgmt.CmdQueryInfo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	info, err := xclmgmt.DecodeMgmtInfo(resp)
	if err != nil {
		t.Fatalf("response not a mgmt info shape: %+v", err)
	}
	if info.Vendor != 0x10ee || info.VBNVString() != "xilinx_u200_xdma_201830_2" {
		t.Errorf("unexpected snapshot: %+v", info)
	}
	if info.OclFrequency[0] != 250 || info.NumClocks != xclmgmt.NumActualClocks {
		t.Errorf("clock overlay missing: %+v", info)
	}
}

func TestDispatchQueryErrorInfoEmpty(t *testing.T) {
	dp, _ := newTestDispatcher()

	resp, err := dp.Dispatch(xclmgmt.CmdQueryErrorInfo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if !bytes.Equal(resp, make([]byte, xclmgmt.ErrorStatusSize)) {
		t.Error("empty ledger view is not all zero")
	}
}

func TestDispatchQueryErrorInfoAfterTrip(t *testing.T) {
	dp, _ := newTestDispatcher()
	trip := xclmgmt.AXIErrorStatus{Time: 77, Status: 0x1, FirewallID: xclmgmt.FirewallDatapath}
	if err := dp.Device().Ledger().RecordTrip(trip, uint32(trip.FirewallID)); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	resp, err := dp.Dispatch(xclmgmt.CmdQueryErrorInfo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	status, err := xclmgmt.DecodeErrorStatus(resp)
	if err != nil {
		t.Fatalf("response not an error status shape: %+v", err)
	}
	if status.NumFirewalls != 1 || status.Records[0] != trip {
		t.Errorf("unexpected ledger view: %+v", status)
	}
}

func TestDispatchDownloadDeliversImageUntouched(t *testing.T) {
	dp, card := newTestDispatcher()
	image := []byte{0xff, 0x00, 0x5a, 0x99, 0xaa, 0x66}

	if _, err := dp.Dispatch(xclmgmt.CmdDownloadImage, image); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(card.images) != 1 || !bytes.Equal(card.images[0], image) {
		t.Errorf("loader did not receive the image bytes: %v", card.images)
	}

	if _, err := dp.Dispatch(xclmgmt.CmdDownloadImageAxlf, image); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(card.axlfImages) != 1 || !bytes.Equal(card.axlfImages[0], image) {
		t.Errorf("loader did not receive the axlf bytes: %v", card.axlfImages)
	}
}

func TestDispatchResets(t *testing.T) {
	dp, card := newTestDispatcher()

	for _, cmd := range []xclmgmt.Command{xclmgmt.CmdResetOcl, xclmgmt.CmdHotReset, xclmgmt.CmdReboot} {
		resp, err := dp.Dispatch(cmd, nil)
		if err != nil {
			t.Fatalf("%v: unexpected error: %+v", cmd, err)
		}
		if resp != nil {
			t.Errorf("%v: expected no response body", cmd)
		}
	}

	if card.oclResets != 1 || card.hotResets != 1 || card.reboots != 1 {
		t.Errorf("reset counts: ocl %d hot %d reboot %d", card.oclResets, card.hotResets, card.reboots)
	}
}

func TestDispatchCode(t *testing.T) {
	dp, card := newTestDispatcher()

	if _, err := dp.DispatchCode(xclmgmt.IOCHotReset, nil); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if card.hotResets != 1 {
		t.Errorf("expected one hot reset, got %d", card.hotResets)
	}

	// Ordinal in range but the code does not match the table.
	_, err := dp.DispatchCode(uint32(xclmgmt.CmdHotReset), nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand for a bare ordinal, got %+v", err)
	}
}

func TestDispatchConcurrentPrivilegedIsBusy(t *testing.T) {
	card := &fakeCard{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	dp := NewDispatcher(NewDevice("card0", card.collaborators()))

	firstDone := make(chan error, 1)
	go func() {
		_, err := dp.Dispatch(xclmgmt.CmdDownloadImage, []byte{1, 2, 3})
		firstDone <- err
	}()

	<-card.started

	_, err := dp.Dispatch(xclmgmt.CmdReboot, nil)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %+v", err)
	}

	// Reads stay available while the download runs.
	if _, err := dp.Dispatch(xclmgmt.CmdQueryErrorInfo, nil); err != nil {
		t.Errorf("read-only query blocked: %+v", err)
	}

	close(card.release)
	if err := <-firstDone; err != nil {
		t.Errorf("first operation failed: %+v", err)
	}
}
