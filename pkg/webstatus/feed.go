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

package webstatus

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// Send/receive timing and size limits for the stream.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 10

	// subscriberBuffer bounds how far a slow stream consumer may lag
	// before trips are dropped from its feed.
	subscriberBuffer = 16
)

// TripEvent is one live feed entry.
type TripEvent struct {
	Card       string `json:"card"`
	FirewallID uint32 `json:"firewall_id"`
	Firewall   string `json:"firewall"`
	Status     uint32 `json:"status"`
	Time       uint64 `json:"time"`
	Dropped    bool   `json:"dropped"`
}

// wsEnvelope wraps every stream message.
type wsEnvelope struct {
	Type string    `json:"type"`
	Data TripEvent `json:"data"`
}

// Feed broadcasts trip events to stream subscribers. It implements
// hwmonitor.TripSink; publishing never blocks, a subscriber that
// cannot keep up loses events rather than stalling the monitor.
type Feed struct {
	mu   sync.Mutex
	subs map[chan TripEvent]struct{}
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[chan TripEvent]struct{})}
}

// Subscribe returns a new event channel.
func (f *Feed) Subscribe() chan TripEvent {
	ch := make(chan TripEvent, subscriberBuffer)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	return ch
}

// Unsubscribe removes the channel from the feed.
func (f *Feed) Unsubscribe(ch chan TripEvent) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
}

// Publish fans the event out to all subscribers.
func (f *Feed) Publish(ev TripEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// TripRecorded implements the monitor sink.
func (f *Feed) TripRecorded(card string, trip xclmgmt.AXIErrorStatus, dropped bool) {
	f.Publish(TripEvent{
		Card:       card,
		FirewallID: uint32(trip.FirewallID),
		Firewall:   trip.FirewallID.String(),
		Status:     trip.Status,
		Time:       trip.Time,
		Dropped:    dropped,
	})
}

// PCIStatusUpdated implements the monitor sink; the stream carries
// trips only.
func (f *Feed) PCIStatusUpdated(card string, status xclmgmt.PCIErrorStatus) {}

var upgrader = websocket.Upgrader{
	// The surface is read-only, so any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// cardStream upgrades to a WebSocket and forwards the card's trip
// events until the client goes away.
func (s *Server) cardStream(c *gin.Context) {
	if _, ok := s.device(c); !ok {
		return
	}

	card := c.Param("card")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		klog.V(2).Infof("stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine handles control frames and detects disconnect.
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := s.feed.Subscribe()
	defer s.feed.Unsubscribe(events)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev := <-events:
			if ev.Card != card {
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wsEnvelope{Type: "trip", Data: ev}); err != nil {
				klog.V(3).Infof("stream write failed: %v", err)
				return
			}
		}
	}
}
