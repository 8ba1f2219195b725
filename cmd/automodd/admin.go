package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
	"github.com/swaffX/neuroviabot-website-sub003/automod/engine"
	"github.com/swaffX/neuroviabot-website-sub003/automod/ledger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type LedgerEntry struct {
	GuildID         string `json:"guild_id"`
	UserID          string `json:"user_id"`
	ViolationCount  int    `json:"violation_count"`
	Banned          bool   `json:"banned"`
	LastSeenAt      string `json:"last_seen_at,omitempty"`
	LastViolationAt string `json:"last_violation_at,omitempty"`
	RecentMessages  int    `json:"recent_messages"`
}

type Outcome struct {
	Action         string `json:"action"`
	DurationMs     int64  `json:"duration_ms,omitempty"`
	Reason         string `json:"reason"`
	ViolationCount int    `json:"violation_count"`
	Rule           string `json:"rule"`
	Detail         string `json:"detail,omitempty"`
	Skipped        bool   `json:"skipped,omitempty"`
	AlreadyInState bool   `json:"already_in_state,omitempty"`
	Error          string `json:"error,omitempty"`
}

type ConfigProblem struct {
	Filter string `json:"filter"`
	Reason string `json:"reason"`
}

type ValidateResponse struct {
	GuildID  string          `json:"guild_id"`
	Valid    bool            `json:"valid"`
	Problems []ConfigProblem `json:"problems"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func ledgerEntry(snap ledger.Snapshot) LedgerEntry {
	return LedgerEntry{
		GuildID:         snap.GuildID,
		UserID:          snap.UserID,
		ViolationCount:  snap.Count,
		Banned:          snap.Banned,
		LastSeenAt:      formatTime(snap.LastSeenAt),
		LastViolationAt: formatTime(snap.LastViolationAt),
		RecentMessages:  snap.WindowLen,
	}
}

func outcome(out engine.EscalationOutcome, err error) Outcome {
	o := Outcome{
		Action:         out.Action.String(),
		DurationMs:     out.Duration.Milliseconds(),
		Reason:         out.Reason,
		ViolationCount: out.ViolationCount,
		Rule:           out.Rule,
		Detail:         out.Detail,
		Skipped:        out.Skipped,
		AlreadyInState: out.AlreadyInState,
	}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// Builds the admin HTTP API. Health is always served; the other routes are only registered when an admin password
// is configured.
func (s *Server) newAdminAPI(adminPassword string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/_health", s.HandleHealthCheck)

	if adminPassword == "" {
		s.logger.Warn("no admin password configured, admin API disabled")
		return e
	}
	admin := e.Group("/admin", middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(adminPassword)) == 1, nil
	}))
	admin.GET("/ledger/:guild/:user", s.HandleLedgerGet)
	admin.DELETE("/ledger/:guild/:user", s.HandleLedgerReset)
	admin.POST("/ledger/:guild/:user/replay", s.HandleReplay)
	admin.POST("/config/validate", s.HandleValidateConfig)
	admin.POST("/config/reload", s.HandleReloadConfig)
	return e
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		s.logger.Warn("automodd-http-internal-error", "err", err)
	}
	if err := c.JSON(code, GenericStatus{Status: "error", Daemon: "automodd", Message: errorMessage}); err != nil {
		s.logger.Error("writing error response", "err", err)
	}
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "automodd"})
}

func (s *Server) HandleLedgerGet(c echo.Context) error {
	snap, ok, err := s.engine.Inspect(c.Request().Context(), c.Param("guild"), c.Param("user"))
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("reading violation record: %s", err))
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no violation record for user")
	}
	return c.JSON(http.StatusOK, ledgerEntry(snap))
}

func (s *Server) HandleLedgerReset(c echo.Context) error {
	if err := s.engine.Reset(c.Request().Context(), c.Param("guild"), c.Param("user")); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("clearing violation record: %s", err))
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "automodd", Message: "violations cleared"})
}

func (s *Server) HandleReplay(c echo.Context) error {
	out, err := s.engine.Replay(c.Request().Context(), c.Param("guild"), c.Param("user"))
	var (
		df *engine.DispatchFailure
		tl *engine.TransientLookupError
		ce *config.ConfigurationError
	)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, outcome(out, nil))
	case errors.As(err, &df):
		return c.JSON(http.StatusBadGateway, outcome(out, err))
	case errors.As(err, &tl):
		return c.JSON(http.StatusServiceUnavailable, outcome(out, err))
	case errors.As(err, &ce):
		return c.JSON(http.StatusConflict, outcome(out, err))
	default:
		return err
	}
}

// Checks a single guild config document without storing it.
func (s *Server) HandleValidateConfig(c echo.Context) error {
	var cfg config.GuildAutomodConfig
	if err := json.NewDecoder(c.Request().Body).Decode(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid config JSON: %s", err))
	}
	if id := c.QueryParam("guild"); id != "" {
		cfg.GuildID = id
	}
	cfg.Prepare()
	resp := ValidateResponse{GuildID: cfg.GuildID, Problems: []ConfigProblem{}}
	for _, p := range cfg.Problems() {
		resp.Problems = append(resp.Problems, ConfigProblem{Filter: p.Filter, Reason: p.Reason})
	}
	resp.Valid = len(resp.Problems) == 0
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) HandleReloadConfig(c echo.Context) error {
	if s.fileConfigs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "guild configs are not loaded from a file")
	}
	if err := s.fileConfigs.Reload(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("reloading guild configs: %s", err))
	}
	s.logger.Info("reloaded guild configs", "path", s.fileConfigs.Path)
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "automodd", Message: "guild configs reloaded"})
}
