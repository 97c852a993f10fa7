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
	"fmt"

	"github.com/pkg/errors"

	"github.com/openxrt/xmgmt/pkg/mgmtdev"
)

// Status is the wire form of the dispatch error taxonomy. Ordinals are
// fixed; a response with any other value is a protocol violation.
type Status uint32

const (
	StatusOK Status = iota
	StatusUnknownCommand
	StatusMalformedPayload
	StatusCapacityExceeded
	StatusBusy
	StatusCollaboratorUnavailable
	StatusOperationFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnknownCommand:
		return "unknown-command"
	case StatusMalformedPayload:
		return "malformed-payload"
	case StatusCapacityExceeded:
		return "capacity-exceeded"
	case StatusBusy:
		return "busy"
	case StatusCollaboratorUnavailable:
		return "collaborator-unavailable"
	case StatusOperationFailed:
		return "operation-failed"
	}

	return fmt.Sprintf("status(%d)", uint32(s))
}

// StatusOf classifies a dispatch error. Anything outside the taxonomy
// is a collaborator-reported failure.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, mgmtdev.ErrUnknownCommand):
		return StatusUnknownCommand
	case errors.Is(err, mgmtdev.ErrMalformedPayload):
		return StatusMalformedPayload
	case errors.Is(err, mgmtdev.ErrCapacityExceeded):
		return StatusCapacityExceeded
	case errors.Is(err, mgmtdev.ErrBusy):
		return StatusBusy
	case errors.Is(err, mgmtdev.ErrCollaboratorUnavailable):
		return StatusCollaboratorUnavailable
	default:
		return StatusOperationFailed
	}
}

// Err turns a response status back into the taxonomy error the
// dispatcher raised on the far side. detail is the server's message,
// carried in the response payload.
func (s Status) Err(detail string) error {
	var sentinel error

	switch s {
	case StatusOK:
		return nil
	case StatusUnknownCommand:
		sentinel = mgmtdev.ErrUnknownCommand
	case StatusMalformedPayload:
		sentinel = mgmtdev.ErrMalformedPayload
	case StatusCapacityExceeded:
		sentinel = mgmtdev.ErrCapacityExceeded
	case StatusBusy:
		sentinel = mgmtdev.ErrBusy
	case StatusCollaboratorUnavailable:
		sentinel = mgmtdev.ErrCollaboratorUnavailable
	case StatusOperationFailed:
		sentinel = mgmtdev.ErrOperationFailed
	default:
		return errors.Errorf("protocol violation: status %d (%s)", uint32(s), detail)
	}

	if detail == "" {
		return sentinel
	}

	return errors.Wrap(sentinel, detail)
}
