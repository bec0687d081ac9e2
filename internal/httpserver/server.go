// Package httpserver exposes the saved table and its change history as a
// read-only JSON API.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

const maxLimit = 1000

// QueryStore is the narrow store contract required by the HTTP API.
type QueryStore interface {
	LoadItems(ctx context.Context) ([]model.TrackedItem, error)
	RecentChanges(ctx context.Context, limit int) ([]model.ValueChange, error)
	ChangesForItem(ctx context.Context, id model.ItemID, limit int) ([]model.ValueChange, error)
}

// Server provides an HTTP API over the saved table.
type Server struct {
	addr      string
	store     QueryStore
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store QueryStore) *Server {
	if addr == "" {
		addr = "127.0.0.1:3100"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		store:     store,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/items", s.handleItems)
	api.GET("/items/:id/changes", s.handleItemChanges)
	api.GET("/changes", s.handleChanges)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type itemJSON struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Selector      string     `json:"selector"`
	PreviousValue string     `json:"previous_value"`
	LatestValue   string     `json:"latest_value"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
}

type changeJSON struct {
	ItemID   string    `json:"item_id"`
	Name     string    `json:"name"`
	OldValue string    `json:"old_value"`
	NewValue string    `json:"new_value"`
	At       time.Time `json:"at"`
}

func toItemJSON(it model.TrackedItem) itemJSON {
	out := itemJSON{
		ID:            string(it.ID),
		Name:          it.Name,
		URL:           it.URL,
		Selector:      it.Selector,
		PreviousValue: it.PreviousValue,
		LatestValue:   it.LatestValue,
	}
	if !it.LastUpdated.IsZero() {
		t := it.LastUpdated
		out.LastUpdated = &t
	}
	return out
}

func toChangesJSON(changes []model.ValueChange) []changeJSON {
	out := make([]changeJSON, 0, len(changes))
	for _, ch := range changes {
		out = append(out, changeJSON{
			ItemID:   string(ch.ItemID),
			Name:     ch.Name,
			OldValue: ch.OldValue,
			NewValue: ch.NewValue,
			At:       ch.At,
		})
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	items, err := s.store.LoadItems(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"item_count": len(items),
	})
}

func (s *Server) handleItems(c *gin.Context) {
	items, err := s.store.LoadItems(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read items"})
		return
	}

	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, toItemJSON(it))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "count": len(out)})
}

func (s *Server) handleItemChanges(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	id := model.ItemID(c.Param("id"))

	items, err := s.store.LoadItems(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read items"})
		return
	}
	found := false
	for _, it := range items {
		if it.ID == id {
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown item"})
		return
	}

	changes, err := s.store.ChangesForItem(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read changes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": string(id), "changes": toChangesJSON(changes)})
}

func (s *Server) handleChanges(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	changes, err := s.store.RecentChanges(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read changes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": toChangesJSON(changes)})
}

// parseLimit reads ?limit=. Zero means the store default. It writes a 400
// response and returns false on bad input.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 0 and 1000"})
		return 0, false
	}
	return n, true
}
