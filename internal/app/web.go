package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"

	"github.com/relabs-tech/activity_classifier/internal/config"
	"github.com/relabs-tech/activity_classifier/internal/report"
	"github.com/relabs-tech/activity_classifier/internal/store"
)

// CycleLog is the read side of the audit store.
type CycleLog interface {
	ListCycles(ctx context.Context, limit int) ([]store.Cycle, error)
	GetCycle(ctx context.Context, id string) (store.Cycle, error)
}

// StatusServer serves the latest decision, the cycle log and a live
// decision stream.
type StatusServer struct {
	cycles CycleLog
	hub    *Hub

	mu     sync.RWMutex
	latest *report.Decision
}

// NewStatusServer returns a server reading history from cycles, which may
// be nil when no audit store is available.
func NewStatusServer(cycles CycleLog) *StatusServer {
	return &StatusServer{cycles: cycles, hub: NewHub()}
}

// Publish records d as the latest decision and pushes it to websocket
// clients.
func (s *StatusServer) Publish(d report.Decision) {
	payload, err := json.Marshal(d)
	if err != nil {
		log.Printf("web: json encode error: %v", err)
		return
	}
	s.mu.Lock()
	s.latest = &d
	s.mu.Unlock()
	s.hub.Broadcast(payload)
}

// Router builds the HTTP API.
func (s *StatusServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": s.hub.Len()})
	})

	api := r.Group("/api")
	{
		api.GET("/activity/latest", s.handleLatest)
		api.GET("/cycles", s.handleListCycles)
		api.GET("/cycles/:id", s.handleGetCycle)
	}

	r.GET("/ws", func(c *gin.Context) {
		var greeting []byte
		s.mu.RLock()
		if s.latest != nil {
			greeting, _ = json.Marshal(s.latest)
		}
		s.mu.RUnlock()
		s.hub.Serve(c.Writer, c.Request, greeting)
	})

	return r
}

func (s *StatusServer) handleLatest(c *gin.Context) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data yet"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *StatusServer) handleListCycles(c *gin.Context) {
	if s.cycles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no audit store"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-1000"})
			return
		}
		limit = n
	}

	cycles, err := s.cycles.ListCycles(c.Request.Context(), limit)
	if err != nil {
		log.Printf("web: list cycles: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cycles failed"})
		return
	}
	if cycles == nil {
		cycles = []store.Cycle{}
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}

func (s *StatusServer) handleGetCycle(c *gin.Context) {
	if s.cycles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no audit store"})
		return
	}
	cycle, err := s.cycles.GetCycle(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		log.Printf("web: get cycle: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get cycle failed"})
	default:
		c.JSON(http.StatusOK, cycle)
	}
}

// RunWeb subscribes to decisions over MQTT and serves the status API.
func RunWeb(cfg *config.Config) error {
	gin.SetMode(gin.ReleaseMode)

	var cycles CycleLog
	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			log.Printf("web: audit store unavailable, serving live data only: %v", err)
		} else {
			defer st.Close()
			cycles = st
		}
	}
	server := NewStatusServer(cycles)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	err = subscribe(client, cfg.TopicActivityDecision, func(_ mqtt.Client, msg mqtt.Message) {
		var d report.Decision
		if err := json.Unmarshal(msg.Payload(), &d); err != nil {
			log.Printf("web: decision unmarshal error: %v", err)
			return
		}
		server.Publish(d)
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return server.Router().Run(addr)
}
