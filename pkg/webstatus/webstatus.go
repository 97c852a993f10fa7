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

// Package webstatus is the read-only HTTP mirror of the management
// state: device info and error-ledger views as JSON, trip history from
// the journal, and a WebSocket live trip feed. No privileged operation
// is reachable here; agents that can mutate the card must speak the
// socket protocol.
package webstatus

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openxrt/xmgmt/pkg/triplog"
	"github.com/openxrt/xmgmt/pkg/xclmgmt"
)

// Device is the read-only slice of a managed card the status surface
// needs. *mgmtdev.Device implements it.
type Device interface {
	Name() string
	Info() (xclmgmt.MgmtInfo, error)
	ErrorInfo() xclmgmt.ErrorStatus
}

// Server serves the status routes for a set of cards.
type Server struct {
	mu      sync.RWMutex
	devices map[string]Device

	journal *triplog.Journal
	feed    *Feed
	router  *gin.Engine
}

// New creates a status server. journal may be nil (trip history
// responds 404 then); feed may be nil (no live stream route).
func New(journal *triplog.Journal, feed *Feed) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		devices: make(map[string]Device),
		journal: journal,
		feed:    feed,
		router:  gin.New(),
	}

	s.router.Use(gin.Recovery())
	// Mutating verbs on known routes answer 405, not 404.
	s.router.HandleMethodNotAllowed = true

	s.router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	s.router.GET("/cards", s.listCards)
	s.router.GET("/cards/:card/info", s.cardInfo)
	s.router.GET("/cards/:card/errors", s.cardErrors)

	if s.journal != nil {
		s.router.GET("/cards/:card/trips", s.cardTrips)
	}

	if s.feed != nil {
		s.router.GET("/cards/:card/stream", s.cardStream)
	}

	return s
}

// AddDevice registers one card.
func (s *Server) AddDevice(dev Device) {
	s.mu.Lock()
	s.devices[dev.Name()] = dev
	s.mu.Unlock()
}

// Handler returns the HTTP handler, for mounting and for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) device(c *gin.Context) (Device, bool) {
	s.mu.RLock()
	dev, ok := s.devices[c.Param("card")]
	s.mu.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown card " + c.Param("card")})
	}

	return dev, ok
}

func (s *Server) listCards(c *gin.Context) {
	s.mu.RLock()
	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"cards": names})
}

func (s *Server) cardInfo(c *gin.Context) {
	dev, ok := s.device(c)
	if !ok {
		return
	}

	info, err := dev.Info()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, newInfoView(info))
}

func (s *Server) cardErrors(c *gin.Context) {
	dev, ok := s.device(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, newErrorView(dev.ErrorInfo()))
}

func (s *Server) cardTrips(c *gin.Context) {
	if _, ok := s.device(c); !ok {
		return
	}

	q := triplog.Query{Card: c.Param("card")}

	if v := c.Query("firewall"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil || !xclmgmt.FirewallID(id).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad firewall id " + v})
			return
		}

		fw := xclmgmt.FirewallID(id)
		q.Firewall = &fw
	}

	var err error

	if q.From, err = parseTime(c.Query("from")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if q.To, err = parseTime(c.Query("to")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if v := c.Query("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil || q.Limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad limit " + v})
			return
		}
	}

	trips, err := s.journal.Trips(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, v)
}
