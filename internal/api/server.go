package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/reeldraft/internal/draft"
	"github.com/heimdex/reeldraft/internal/export"
	"github.com/heimdex/reeldraft/internal/observe"
	"github.com/heimdex/reeldraft/internal/pipeline"
	"github.com/heimdex/reeldraft/internal/playback"
	"github.com/heimdex/reeldraft/internal/recording"
	"github.com/heimdex/reeldraft/internal/store"
)

// AuthTokenKey is the blob store key holding the API bearer token.
const AuthTokenKey = "config/auth_token"

// SessionService is the recording session the API drives. *draft.Manager
// implements it.
type SessionService interface {
	State() draft.State
	Segments() []recording.Segment
	Load(ctx context.Context, draftID string, mode draft.Mode) error
	AppendSegment(ctx context.Context, seg recording.Segment, budget float64) (recording.Segment, error)
	SetTrim(segmentID string, inMs, outMs *int64) (recording.Segment, error)
	Undo(ctx context.Context) error
	Redo(ctx context.Context) error
	StartOver()
	StartNew()
	SaveAsDraft(ctx context.Context, budget float64, forceNew bool) (*draft.Draft, error)
	Close(ctx context.Context) error
}

// DraftCatalog lists and deletes persisted drafts. *draft.Store implements
// it.
type DraftCatalog interface {
	List(ctx context.Context, mode draft.Mode) ([]draft.Draft, error)
	Get(ctx context.Context, mode draft.Mode, id string) (*draft.Draft, error)
	DeleteFilesAndMetadata(ctx context.Context, mode draft.Mode, id string) (int, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port     int
	Session  SessionService
	Drafts   DraftCatalog
	Exporter export.ExportService
	Media    playback.MediaServer
	Blobs    store.BlobStore

	// Probe and FillerDetector are optional.
	Probe          *pipeline.CachedProbe
	FillerDetector pipeline.FillerDetector

	// DefaultQuality applies to exports that do not name one.
	DefaultQuality pipeline.Quality
	Metrics        *observe.Metrics

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// EnsureAuthToken returns the stored API token, minting and persisting one
// on first run.
func EnsureAuthToken(ctx context.Context, blobs store.BlobStore) (string, error) {
	token, found, err := blobs.Get(ctx, AuthTokenKey)
	if err != nil {
		return "", fmt.Errorf("read auth token: %w", err)
	}
	if found && token != "" {
		return token, nil
	}

	token = uuid.NewString()
	if err := blobs.Set(ctx, AuthTokenKey, token); err != nil {
		return "", fmt.Errorf("store auth token: %w", err)
	}
	return token, nil
}
