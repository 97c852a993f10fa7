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
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/mgmtdev"
)

// Manager owns one protocol server per managed card, all sockets in
// one directory.
type Manager struct {
	socketDir string

	mu      sync.Mutex
	servers map[string]*Server
}

// NewManager creates an empty manager with its socket directory.
func NewManager(socketDir string) *Manager {
	return &Manager{
		socketDir: socketDir,
		servers:   make(map[string]*Server),
	}
}

// Add creates the server for one card. Card names are unique per
// daemon; a duplicate is a configuration error.
func (m *Manager) Add(card string, dispatcher *mgmtdev.Dispatcher) (*Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.servers[card]; ok {
		return nil, errors.Errorf("duplicate card %s", card)
	}

	srv := NewServer(card, dispatcher, m.socketDir)
	m.servers[card] = srv

	return srv, nil
}

// Get returns the server of one card.
func (m *Manager) Get(card string) (*Server, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	srv, ok := m.servers[card]

	return srv, ok
}

// Servers returns all managed servers.
func (m *Manager) Servers() []*Server {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Server, 0, len(m.servers))
	for _, srv := range m.servers {
		out = append(out, srv)
	}

	return out
}

// StopAll shuts every server down.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for card, srv := range m.servers {
		if err := srv.Stop(); err != nil {
			klog.V(2).Infof("%s: %v", card, err)
		}
	}
}
