// Package api serves the clipboard history over HTTP and WebSocket, together
// with the browser page that consumes both.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go.klb.dev/clipkeeper/internal/history"
	"go.klb.dev/clipkeeper/internal/hub"
	"go.klb.dev/clipkeeper/internal/keeper"
	"go.klb.dev/clipkeeper/internal/store"
)

const (
	// DefaultLimit is the page size for history requests and WebSocket updates.
	DefaultLimit = 50
	maxLimit     = 500
)

var errMissingKeeper = errors.New("keeper dependency required")

// Keeper is the subset of keeper.Keeper used by the API.
type Keeper interface {
	History(ctx context.Context, limit, offset int) ([]history.Entry, error)
	Search(ctx context.Context, pattern string, limit int) ([]history.Entry, error)
	Entry(ctx context.Context, id int64) (history.Entry, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Clear(ctx context.Context) error
	Restore(ctx context.Context, id int64) error
	Stats(ctx context.Context) (keeper.Stats, error)
	AddObserver(o hub.Observer)
	RemoveObserver(o hub.Observer)
	OnChange(fn func()) (cancel func())
}

// Dependencies configures New.
type Dependencies struct {
	Keeper Keeper
	Logger *slog.Logger
	// Token, when set, is required as a bearer token on every request.
	Token string
	// AllowOrigins lists browser origins allowed by CORS and the WebSocket
	// upgrader. "*" allows any origin. Empty means same-origin only.
	AllowOrigins []string
}

// Server is the HTTP handler. Close detaches it from the keeper.
type Server struct {
	router   *gin.Engine
	realtime *realtime
	detach   func()
}

// New builds the router and subscribes the WebSocket fan-out to the keeper.
func New(deps Dependencies) (*Server, error) {
	if deps.Keeper == nil {
		return nil, errMissingKeeper
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if len(deps.AllowOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowOrigins))
	}

	if err := mountUI(router); err != nil {
		return nil, err
	}

	rt := newRealtime()
	deps.Keeper.AddObserver(rt)
	cancel := deps.Keeper.OnChange(rt.publish)

	h := &httpHandler{
		keeper:   deps.Keeper,
		log:      log,
		token:    deps.Token,
		realtime: rt,
		upgrader: newUpgrader(deps.AllowOrigins),
	}

	protected := router.Group("/")
	protected.Use(h.authorizeRequest)
	protected.GET("/api/history", h.handleList)
	protected.GET("/api/history/:id", h.handleGet)
	protected.DELETE("/api/history/:id", h.handleDelete)
	protected.DELETE("/api/history", h.handleClear)
	protected.DELETE("/api/delete/:id", h.handleDelete)
	protected.POST("/api/copy/:id", h.handleCopy)
	protected.GET("/api/status", h.handleStatus)
	protected.GET("/ws", h.handleWebSocket)

	return &Server{
		router:   router,
		realtime: rt,
		detach: func() {
			cancel()
			deps.Keeper.RemoveObserver(rt)
			rt.close()
		},
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close unsubscribes from the keeper and disconnects WebSocket clients.
func (s *Server) Close() {
	s.detach()
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

type httpHandler struct {
	keeper   Keeper
	log      *slog.Logger
	token    string
	realtime *realtime
	upgrader websocket.Upgrader
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if h.token == "" {
		c.Next()
		return
	}
	tok := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if tok == "" {
		// Browsers cannot set headers on WebSocket handshakes.
		tok = c.Query("token")
	}
	if subtle.ConstantTimeCompare([]byte(tok), []byte(h.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *httpHandler) handleList(c *gin.Context) {
	limit, err := queryInt(c, "limit", DefaultLimit)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	limit = min(limit, maxLimit)
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	var items []history.Entry
	if q := c.Query("search"); q != "" {
		items, err = h.keeper.Search(c.Request.Context(), q, limit)
	} else {
		items, err = h.keeper.History(c.Request.Context(), limit, offset)
	}
	if err != nil {
		h.log.Error("failed to retrieve history", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}
	if items == nil {
		items = []history.Entry{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *httpHandler) handleGet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	e, err := h.keeper.Entry(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	if err != nil {
		h.log.Error("failed to get entry", "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *httpHandler) handleCopy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.keeper.Restore(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
	case err != nil:
		h.log.Error("failed to set clipboard", "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set clipboard"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	deleted, err := h.keeper.Delete(c.Request.Context(), id)
	if err != nil {
		h.log.Error("failed to delete entry", "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleClear(c *gin.Context) {
	if err := h.keeper.Clear(c.Request.Context()); err != nil {
		h.log.Error("failed to clear history", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	s, err := h.keeper.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("failed to read status", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":   s.Entries,
		"observers": s.Observers,
		"monitor":   s.Monitor,
		"source":    s.Source,
		"websocket": h.realtime.len(),
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
