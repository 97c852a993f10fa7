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
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/mgmtdev"
	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

type serverState int

// Server state.
const (
	uninitialized serverState = iota
	serving
	terminating
)

// Server serves one card's command protocol on one unix socket. Every
// connection is handled on its own goroutine; serialization of
// privileged operations happens in the device, not here, so read-only
// queries from one connection never wait on another connection's
// download.
type Server struct {
	card       string
	dispatcher *mgmtdev.Dispatcher
	socketPath string
	limits     Limits

	listener   net.Listener
	state      serverState
	stateMutex sync.Mutex
}

// NewServer creates a server for the card behind the dispatcher. The
// socket is socketDir/<card>.sock.
func NewServer(card string, dispatcher *mgmtdev.Dispatcher, socketDir string) *Server {
	return &Server{
		card:       card,
		dispatcher: dispatcher,
		socketPath: path.Join(socketDir, card+".sock"),
		limits:     DefaultLimits(),
		state:      uninitialized,
	}
}

// Socket returns the socket path the server listens on.
func (srv *Server) Socket() string { return srv.socketPath }

func (srv *Server) setState(state serverState) {
	srv.stateMutex.Lock()
	defer srv.stateMutex.Unlock()
	srv.state = state
}

func (srv *Server) getState() serverState {
	srv.stateMutex.Lock()
	defer srv.stateMutex.Unlock()

	return srv.state
}

// Serve listens on the card socket until Stop. If something removes
// the socket file from under a live server, the server rebinds it
// instead of going silently dark.
func (srv *Server) Serve() error {
	srv.setState(serving)

	for srv.getState() == serving {
		if err := waitForSocket(srv.socketPath, time.Second); err == nil {
			return errors.Errorf("socket %s is already in use", srv.socketPath)
		}
		// We don't care if the socket file doesn't exist.
		_ = os.Remove(srv.socketPath)

		lis, err := net.Listen("unix", srv.socketPath)
		if err != nil {
			return errors.Wrapf(err, "failed to listen on %s", srv.socketPath)
		}

		srv.stateMutex.Lock()
		srv.listener = lis
		srv.stateMutex.Unlock()

		go srv.acceptLoop(lis)

		if err = waitForSocket(srv.socketPath, 10*time.Second); err != nil {
			return err
		}

		klog.V(1).Infof("%s: serving at %s", srv.card, srv.socketPath)

		if err = watchFile(srv.socketPath); err != nil {
			return err
		}

		if srv.getState() == serving {
			lis.Close()
			klog.V(1).Infof("%s: socket %s removed, rebinding", srv.card, srv.socketPath)
		} else {
			klog.V(1).Infof("%s: socket %s shut down", srv.card, srv.socketPath)
		}
	}

	return nil
}

// Stop shuts the server down. Closing the listener unlinks the socket
// file, which also releases the Serve loop's file watch.
func (srv *Server) Stop() error {
	srv.stateMutex.Lock()
	defer srv.stateMutex.Unlock()

	if srv.state != serving {
		return errors.Errorf("%s: can't stop a server that is not serving", srv.card)
	}

	srv.state = terminating
	if srv.listener != nil {
		return srv.listener.Close()
	}

	return nil
}

func (srv *Server) acceptLoop(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			if srv.getState() != serving {
				return
			}

			klog.V(2).Infof("%s: accept: %v", srv.card, err)

			return
		}

		go srv.handle(conn)
	}
}

func (srv *Server) handle(conn net.Conn) {
	defer conn.Close()

	for {
		req, err := ReadFrame(conn, srv.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				klog.V(3).Infof("%s: connection dropped: %v", srv.card, err)
			}

			return
		}

		payload, dispatchErr := srv.dispatcher.DispatchCode(req.Header.Code, req.Payload)
		status := StatusOf(dispatchErr)

		dispatchTotal.WithLabelValues(srv.card, commandName(req.Header.Code), status.String()).Inc()

		resp := Frame{
			Header: Header{
				Flags:  FlagResponse,
				Code:   req.Header.Code,
				Status: status,
			},
			Payload: payload,
		}
		if dispatchErr != nil {
			klog.V(2).Infof("%s: %s: %v", srv.card, commandName(req.Header.Code), dispatchErr)
			resp.Payload = []byte(dispatchErr.Error())
		}

		if err := WriteFrame(conn, resp, srv.limits); err != nil {
			klog.V(3).Infof("%s: response write failed: %v", srv.card, err)
			return
		}
	}
}

func commandName(code uint32) string {
	if desc, ok := xclmgmt.LookupCode(code); ok {
		return desc.Name
	}

	return "unknown"
}

// watchFile blocks until the file is removed or renamed.
func watchFile(file string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrapf(err, "failed to create watcher for %s", file)
	}
	defer watcher.Close()

	err = watcher.Add(filepath.Dir(file))
	if err != nil {
		return errors.Wrapf(err, "failed to add %s to watcher", file)
	}

	for {
		select {
		case ev := <-watcher.Events:
			if (ev.Op == fsnotify.Remove || ev.Op == fsnotify.Rename) && ev.Name == file {
				return nil
			}
		case err := <-watcher.Errors:
			return errors.WithStack(err)
		}
	}
}

// waitForSocket checks if a server is alive behind the socket by
// dialing it.
func waitForSocket(socket string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		conn, err := net.DialTimeout("unix", socket, timeout)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		if time.Now().After(deadline) {
			return errors.Wrapf(err, "failed dial at %s", socket)
		}

		time.Sleep(10 * time.Millisecond)
	}
}
