package api

import (
	"net/http"
	"strings"

	"clearcall/internal/agent"
	"clearcall/internal/auth"
	"clearcall/internal/callsync"
	"clearcall/internal/directory"
	"clearcall/internal/history"
	"clearcall/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the presentation-facing HTTP surface: login, signaling
// configuration, call operations, roster, history and the websocket
// state feed. Presentation never mutates core state directly, only
// through these operations.
type Server struct {
	dir   *directory.Directory
	sync  *callsync.Synchronizer
	mgr   *agent.Manager
	store history.Store
	hub   *Hub

	// configFor builds the per-user signaling configuration handed out
	// after authentication.
	configFor func(models.User) models.SignalingConfig
}

func NewServer(dir *directory.Directory, sync *callsync.Synchronizer, mgr *agent.Manager, store history.Store, hub *Hub, configFor func(models.User) models.SignalingConfig) *Server {
	return &Server{dir: dir, sync: sync, mgr: mgr, store: store, hub: hub, configFor: configFor}
}

func (s *Server) Start(addr string) error {
	e := echo.New()
	e.HideBanner = true

	// CORS for the web frontend
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	// Static files for the web frontend
	e.Static("/", "web")

	// Metrics
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/api/login", s.login)
	e.GET("/ws", s.hub.Serve)

	api := e.Group("/api", s.requireToken)
	api.POST("/configure", s.configure)
	api.POST("/logout", s.logout)
	api.GET("/state", s.getState)
	api.GET("/peers", s.listPeers)
	api.GET("/history", s.listHistory)
	api.POST("/calls", s.placeCall)
	api.POST("/calls/answer", s.answerCall)
	api.POST("/calls/decline", s.declineCall)
	api.POST("/calls/hangup", s.hangupCall)
	api.POST("/calls/mute", s.toggleMute)
	api.POST("/calls/video", s.toggleVideo)

	return e.Start(addr)
}

// ─── Auth ────────────────────────────────────────────────────────────────────

func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
		}
		claims, err := auth.ValidateToken(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		}
		c.Set("claims", claims)
		return next(c)
	}
}

func (s *Server) login(c echo.Context) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	user, ok := s.dir.Authenticate(body.Username, body.Password)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}
	token, err := auth.GenerateToken(user.ID, user.Username)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":  token,
		"user":   user,
		"config": s.configFor(user),
	})
}

// ─── Signaling configuration ─────────────────────────────────────────────────

func (s *Server) configure(c echo.Context) error {
	var cfg models.SignalingConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := s.mgr.Configure(c.Request().Context(), &cfg); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"registration": string(s.mgr.State())})
}

func (s *Server) logout(c echo.Context) error {
	s.mgr.Configure(c.Request().Context(), nil)
	return c.NoContent(http.StatusOK)
}

// ─── State, roster, history ──────────────────────────────────────────────────

func (s *Server) getState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sync.Snapshot())
}

func (s *Server) listPeers(c echo.Context) error {
	claims := c.Get("claims").(*auth.Claims)
	return c.JSON(http.StatusOK, s.dir.Snapshot(claims.UserID))
}

func (s *Server) listHistory(c echo.Context) error {
	rows, err := s.store.Recent(c.Request().Context(), 100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, rows)
}

// ─── Call operations ─────────────────────────────────────────────────────────

func (s *Server) placeCall(c echo.Context) error {
	var body struct {
		ReceiverID string          `json:"receiver_id"`
		Type       models.CallType `json:"type"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if body.Type != models.CallVideo {
		body.Type = models.CallAudio
	}
	if err := s.sync.Start(c.Request().Context(), body.ReceiverID, body.Type); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, s.sync.Snapshot())
}

func (s *Server) answerCall(c echo.Context) error {
	if err := s.sync.Accept(c.Request().Context()); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, s.sync.Snapshot())
}

func (s *Server) declineCall(c echo.Context) error {
	if err := s.sync.Decline(c.Request().Context()); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, s.sync.Snapshot())
}

func (s *Server) hangupCall(c echo.Context) error {
	s.sync.Hangup(c.Request().Context())
	return c.JSON(http.StatusOK, s.sync.Snapshot())
}

func (s *Server) toggleMute(c echo.Context) error {
	s.sync.ToggleMute()
	return c.JSON(http.StatusOK, s.sync.Snapshot())
}

func (s *Server) toggleVideo(c echo.Context) error {
	s.sync.ToggleVideo()
	return c.JSON(http.StatusOK, s.sync.Snapshot())
}
