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

import "github.com/pkg/errors"

// The dispatch error taxonomy. Every rejected or failed operation
// resolves to exactly one of these with errors.Is; none is retried by
// this package.
var (
	// ErrUnknownCommand: the command id is outside the enumeration.
	// Detected before the payload is looked at.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMalformedPayload: the payload does not match the shape bound
	// to the command. Detected before any side effect.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrCapacityExceeded: the error ledger already holds its maximum
	// record count. The caller decides whether to drop or escalate.
	ErrCapacityExceeded = errors.New("error ledger full")

	// ErrBusy: another privileged operation is in flight on the device.
	ErrBusy = errors.New("device busy")

	// ErrCollaboratorUnavailable: the collaborator needed by the
	// operation is not wired up or cannot be reached.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrOperationFailed: the collaborator executed and reported a
	// hardware failure. Carries the collaborator's reason.
	ErrOperationFailed = errors.New("operation failed")
)

type operationError struct {
	cause error
}

func (e *operationError) Error() string {
	return "operation failed: " + e.cause.Error()
}

func (e *operationError) Unwrap() error { return e.cause }

func (e *operationError) Is(target error) bool { return target == ErrOperationFailed }

// operationFailed tags a collaborator-reported failure so it matches
// ErrOperationFailed while keeping the original cause reachable.
func operationFailed(err error) error {
	if err == nil {
		return nil
	}
	return &operationError{cause: err}
}
