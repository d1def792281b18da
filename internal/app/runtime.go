package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/axolutly-go/internal/domain"
	"github.com/yourusername/axolutly-go/internal/infrastructure"
	"github.com/yourusername/axolutly-go/pkg/logger"
)

// Runtime wires the production collaborators of a process: storage, cookie
// encryption, the download engine, browsers and the session manager.
type Runtime struct {
	Config      *domain.Config
	Repo        *infrastructure.SQLiteRepository
	Store       *CookieStore
	Sessions    *SessionManager
	Janitor     *CookieJanitor
	MultiLogger *logger.MultiLogger // nil when logging.logs_dir is empty
	Logger      *zap.Logger
}

// NewRuntime builds a runtime from config. Close releases it.
func NewRuntime(config *domain.Config, log *zap.Logger) (*Runtime, error) {
	rt := &Runtime{Config: config, Logger: log}

	if config.Logging.LogsDir != "" {
		multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
			Level:   config.Logging.Level,
			LogsDir: config.Logging.LogsDir,
		})
		if err != nil {
			log.Warn("Category logs disabled", zap.Error(err))
		} else {
			rt.MultiLogger = multiLog
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Storage.DatabasePath), 0755); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	repo, err := infrastructure.NewSQLiteRepository(config.Storage.DatabasePath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	rt.Repo = repo

	osFs := afero.NewOsFs()
	cipher := infrastructure.LoadCipher(&config.Cookies, osFs, log)
	rt.Store = NewCookieStore(repo, cipher, config.Cookies.Retention(), log,
		WithTempFs(osFs, config.Download.TempDir))
	rt.Janitor = NewCookieJanitor(rt.Store, config.Cookies.EvictInterval, rt.MultiLogger, log)

	engine := infrastructure.NewYTDLPEngine(config.Download.YTDLPBinary, log)
	detector := infrastructure.NewSystemBrowserDetector()
	providers := []domain.BrowserProvider{
		infrastructure.NewRodProvider(config.Auth.ProfilesDir, detector, log),
		infrastructure.NewExternalProvider(engine, detector, log),
	}
	auth := NewAuthCoordinator(rt.Store, providers, detector, &config.Auth, log)

	var notifier *infrastructure.NotificationService
	if config.Notification.Enabled {
		notifier = infrastructure.NewNotificationService(&config.Notification, log)
	}

	rt.Sessions = NewSessionManager(repo, SessionDeps{
		Engine: engine,
		Store:  rt.Store,
		Auth:   auth,
		Fs:     osFs,
		Config: &config.Download,
		Logger: log,
	}, notifier, rt.MultiLogger, log)

	return rt, nil
}

// Close cancels running sessions and closes storage and logs
func (rt *Runtime) Close() error {
	if rt.Sessions != nil {
		if err := rt.Sessions.Shutdown(context.Background()); err != nil {
			rt.Logger.Warn("Session shutdown failed", zap.Error(err))
		}
	}
	if rt.Janitor != nil && rt.Janitor.IsRunning() {
		rt.Janitor.Stop()
	}
	var firstErr error
	if rt.Repo != nil {
		if err := rt.Repo.Close(); err != nil {
			firstErr = err
		}
	}
	if rt.MultiLogger != nil {
		if err := rt.MultiLogger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
