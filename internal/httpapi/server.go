// Package httpapi exposes a small read-only API over the pipeline's
// file state: memory stats, bookmarks, and the latest run's funnel.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/bookmarks"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/globaltime"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/memory"
)

var errNoRuns = errors.New("no run artifacts found")

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	store     memory.Store
	bookmarks *bookmarks.Store
	dataDir   string
	logger    zerolog.Logger
	opts      Options
}

func NewServer(store memory.Store, bm *bookmarks.Store, dataDir string, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		store:     store,
		bookmarks: bm,
		dataDir:   dataDir,
		logger:    logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)
	api := e.Group("/api")
	api.GET("/memory/stats", s.handleMemoryStats)
	api.GET("/funnel", s.handleFunnel)
	api.GET("/bookmarks", s.handleBookmarks)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "x-trend-digest",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleMemoryStats(c echo.Context) error {
	stats, err := s.store.Stats()
	if err != nil {
		s.logger.Error().Err(err).Msg("memory stats failed")
		return internalError(c, "Failed to load memory stats")
	}
	return success(c, stats)
}

// handleFunnel serves the latest run artifact verbatim.
func (s *Server) handleFunnel(c echo.Context) error {
	run, err := s.latestRun()
	if err != nil {
		if errors.Is(err, errNoRuns) {
			return failNotFound(c, "No runs recorded yet")
		}
		s.logger.Error().Err(err).Msg("load run artifact failed")
		return internalError(c, "Failed to load run artifact")
	}
	return success(c, run)
}

func (s *Server) handleBookmarks(c echo.Context) error {
	if s.bookmarks == nil {
		return failNotFound(c, "Bookmarks are not configured")
	}
	items, err := s.bookmarks.All()
	if err != nil {
		s.logger.Error().Err(err).Msg("load bookmarks failed")
		return internalError(c, "Failed to load bookmarks")
	}
	stats, err := s.bookmarks.Stats()
	if err != nil {
		s.logger.Error().Err(err).Msg("bookmark stats failed")
		return internalError(c, "Failed to load bookmark stats")
	}
	return success(c, map[string]any{
		"items": items,
		"stats": stats,
	})
}

// latestRun reads the newest run-YYYYMMDD.json from the data dir. The
// date is embedded in the name, so lexical order is date order.
func (s *Server) latestRun() (map[string]any, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoRuns
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "run-") || filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errNoRuns
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(s.dataDir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("read run artifact: %w", err)
	}
	var run map[string]any
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run artifact: %w", err)
	}
	return run, nil
}
