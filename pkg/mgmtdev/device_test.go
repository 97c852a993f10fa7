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
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// fakeCard implements every collaborator interface with recordable,
// adjustable behavior.
type fakeCard struct {
	mu sync.Mutex

	images     [][]byte
	axlfImages [][]byte
	loadErr    error
	// blockLoad, when set, makes LoadImage wait: started is closed on
	// entry and the load returns once release is closed.
	started chan struct{}
	release chan struct{}

	lastScale *xclmgmt.FreqScaling
	scaleErr  error
	freqs     [xclmgmt.NumSupportedClocks]uint16
	clocks    uint16
	freqsErr  error

	oclResets int
	hotResets int
	reboots   int
	resetErr  error

	info    xclmgmt.MgmtInfo
	infoErr error
}

func (f *fakeCard) LoadImage(image []byte) error {
	if f.started != nil {
		close(f.started)
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.images = append(f.images, append([]byte(nil), image...))
	return nil
}

func (f *fakeCard) LoadImageAxlf(image []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.axlfImages = append(f.axlfImages, append([]byte(nil), image...))
	return nil
}

func (f *fakeCard) ScaleFrequencies(req xclmgmt.FreqScaling) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scaleErr != nil {
		return f.scaleErr
	}
	f.lastScale = &req
	return nil
}

func (f *fakeCard) Frequencies() ([xclmgmt.NumSupportedClocks]uint16, uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freqs, f.clocks, f.freqsErr
}

func (f *fakeCard) ResetOcl() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oclResets++
	return f.resetErr
}

func (f *fakeCard) HotReset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hotResets++
	return f.resetErr
}

func (f *fakeCard) Reboot() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reboots++
	return f.resetErr
}

func (f *fakeCard) ReadInfo() (xclmgmt.MgmtInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, f.infoErr
}

func (f *fakeCard) collaborators() Collaborators {
	return Collaborators{Loader: f, Clocks: f, Reset: f, Info: f}
}

func TestInfoOverlaysClockSettings(t *testing.T) {
	card := &fakeCard{
		freqs:  [xclmgmt.NumSupportedClocks]uint16{300, 500, 0, 0},
		clocks: xclmgmt.NumActualClocks,
	}
	card.info.Vendor = 0x10ee
	card.info.PCIeLinkWidth = 16

	dev := NewDevice("card0", card.collaborators())

	info, err := dev.Info()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if info.Vendor != 0x10ee || info.PCIeLinkWidth != 16 {
		t.Errorf("source fields lost: %+v", info)
	}
	if info.OclFrequency != card.freqs {
		t.Errorf("expected clock overlay %v, got %v", card.freqs, info.OclFrequency)
	}
	if info.NumClocks != xclmgmt.NumActualClocks {
		t.Errorf("expected %d clocks, got %d", xclmgmt.NumActualClocks, info.NumClocks)
	}
}

func TestInfoClockReadFailureLeavesZeros(t *testing.T) {
	card := &fakeCard{freqsErr: errors.New("wizard offline")}
	card.info.Vendor = 0x10ee

	info, err := NewDevice("card0", card.collaborators()).Info()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if info.OclFrequency != ([xclmgmt.NumSupportedClocks]uint16{}) || info.NumClocks != 0 {
		t.Errorf("expected zero clock fields, got %+v", info)
	}
}

func TestInfoSourceUnavailable(t *testing.T) {
	tcases := []struct {
		name   string
		collab Collaborators
	}{
		{"no source", Collaborators{}},
		{"failing source", Collaborators{Info: &fakeCard{infoErr: errors.New("sensor bus stuck")}}},
	}
	for _, tt := range tcases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDevice("card0", tt.collab).Info()
			if !errors.Is(err, ErrCollaboratorUnavailable) {
				t.Errorf("expected ErrCollaboratorUnavailable, got %+v", err)
			}
		})
	}
}

func TestSecondPrivilegedOperationIsBusy(t *testing.T) {
	card := &fakeCard{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	dev := NewDevice("card0", card.collaborators())

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- dev.LoadImage([]byte{0xde, 0xad})
	}()

	<-card.started

	if err := dev.Reboot(); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while download in flight, got %+v", err)
	}

	close(card.release)

	if err := <-firstDone; err != nil {
		t.Errorf("first operation failed: %+v", err)
	}

	// Gate released: the next privileged operation goes through.
	if err := dev.Reboot(); err != nil {
		t.Errorf("operation after release failed: %+v", err)
	}
}

func TestReadsRunWhilePrivilegedInFlight(t *testing.T) {
	card := &fakeCard{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	dev := NewDevice("card0", card.collaborators())

	done := make(chan error, 1)
	go func() {
		done <- dev.LoadImage([]byte{1})
	}()

	<-card.started

	if _, err := dev.Info(); err != nil {
		t.Errorf("info blocked by privileged operation: %+v", err)
	}
	if got := dev.ErrorInfo(); got.NumFirewalls != 0 {
		t.Errorf("unexpected error info: %+v", got)
	}

	close(card.release)
	if err := <-done; err != nil {
		t.Errorf("download failed: %+v", err)
	}
}

func TestMissingCollaboratorDoesNotWedgeGate(t *testing.T) {
	dev := NewDevice("card0", Collaborators{})

	if err := dev.ResetOcl(); !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %+v", err)
	}
	// Must not be Busy: the failed attempt released the gate.
	if err := dev.ResetOcl(); errors.Is(err, ErrBusy) {
		t.Error("gate still held after a failed operation")
	}
}

func TestOperationFailureCarriesReason(t *testing.T) {
	card := &fakeCard{loadErr: errors.New("bad sync word")}
	dev := NewDevice("card0", card.collaborators())

	err := dev.LoadImage([]byte{0xff})
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("expected ErrOperationFailed, got %+v", err)
	}
	if !strings.Contains(err.Error(), "bad sync word") {
		t.Errorf("collaborator reason lost: %v", err)
	}
}

func TestHotResetClearsLedger(t *testing.T) {
	card := &fakeCard{}
	dev := NewDevice("card0", card.collaborators())

	if err := dev.Ledger().RecordTrip(xclmgmt.AXIErrorStatus{Time: 1, FirewallID: xclmgmt.FirewallDatapath}, 2); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if err := dev.HotReset(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if got := dev.ErrorInfo(); got != (xclmgmt.ErrorStatus{}) {
		t.Errorf("ledger survived hot reset: %+v", got)
	}
	if card.hotResets != 1 {
		t.Errorf("expected 1 hot reset, got %d", card.hotResets)
	}
}

func TestFailedHotResetKeepsLedger(t *testing.T) {
	card := &fakeCard{resetErr: errors.New("link retrain timeout")}
	dev := NewDevice("card0", card.collaborators())

	if err := dev.Ledger().RecordTrip(xclmgmt.AXIErrorStatus{Time: 1, FirewallID: xclmgmt.FirewallDatapath}, 2); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}

	if err := dev.HotReset(); !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("expected ErrOperationFailed, got %+v", err)
	}

	if got := dev.ErrorInfo(); got.NumFirewalls != 1 {
		t.Errorf("ledger cleared although the reset failed: %+v", got)
	}
}
