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

package chardev

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func ioctl(fd uintptr, cmd uint32, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(cmd), arg)
	if errno != 0 {
		return errno
	}

	return nil
}

// ioctlDev opens the device node for the duration of one request.
func ioctlDev(dev string, cmd uint32, arg uintptr) error {
	f, err := os.OpenFile(dev, os.O_RDWR, 0)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	if err := ioctl(f.Fd(), cmd, arg); err != nil {
		return errors.Wrapf(err, "ioctl %#08x on %s", cmd, dev)
	}

	return nil
}
