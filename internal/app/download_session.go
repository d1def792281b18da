package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// SessionDeps are the collaborators shared by every session
type SessionDeps struct {
	Engine domain.Engine
	Store  *CookieStore
	Auth   *AuthCoordinator
	Fs     afero.Fs
	Config *domain.DownloadConfig
	Logger *zap.Logger
}

// DownloadSession drives one request from URL to final file. Run executes on
// the session's own goroutine; callers talk to it through Events, Cancel,
// ResolveConfirmation and NotifyAuthCompleted.
type DownloadSession struct {
	id     string
	req    domain.DownloadRequest
	engine domain.Engine
	store  *CookieStore
	auth   *AuthCoordinator
	fs     afero.Fs
	config *domain.DownloadConfig
	logger *zap.Logger

	token    *CancellationToken
	gate     *ConfirmationGate
	authDone chan struct{}
	events   chan domain.Event

	mu         sync.RWMutex
	state      domain.SessionState
	progress   float64
	outputPath string
	base       string
	started    bool
}

// NewDownloadSession creates a session in the created state
func NewDownloadSession(id string, req domain.DownloadRequest, deps SessionDeps) *DownloadSession {
	buffer := deps.Config.EventBuffer
	if buffer < 1 {
		buffer = 1
	}
	logger := deps.Logger.With(zap.String("session", id))

	s := &DownloadSession{
		id:       id,
		req:      req,
		engine:   deps.Engine,
		store:    deps.Store,
		auth:     deps.Auth,
		fs:       deps.Fs,
		config:   deps.Config,
		logger:   logger,
		token:    NewCancellationToken(),
		authDone: make(chan struct{}, 1),
		events:   make(chan domain.Event, buffer),
		state:    domain.StateCreated,
	}
	s.gate = NewConfirmationGate(deps.Config.ConfirmTimeout, func(q *domain.ConfirmationRequest) {
		s.emit(domain.Event{Type: domain.EventConfirmationRequested, Confirmation: q})
	}, logger)
	return s
}

// ID returns the session ID
func (s *DownloadSession) ID() string {
	return s.id
}

// Request returns the request the session serves
func (s *DownloadSession) Request() domain.DownloadRequest {
	return s.req
}

// Events returns the session's event stream. It is closed after the
// terminal event.
func (s *DownloadSession) Events() <-chan domain.Event {
	return s.events
}

// State returns the current state
func (s *DownloadSession) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Progress returns the last forwarded progress as a fraction in [0,1]
func (s *DownloadSession) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress / 100
}

// OutputPath returns the final file path, empty until finished
func (s *DownloadSession) OutputPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputPath
}

// Cancel requests cooperative cancellation. No-op once terminal.
func (s *DownloadSession) Cancel() {
	if s.State().IsTerminal() {
		return
	}
	s.token.Cancel()
}

// ResolveConfirmation answers the outstanding replace question
func (s *DownloadSession) ResolveConfirmation(yes bool) error {
	return s.gate.Resolve(yes)
}

// NotifyAuthCompleted tells a waiting sign-in that the user is done
func (s *DownloadSession) NotifyAuthCompleted() {
	select {
	case s.authDone <- struct{}{}:
	default:
	}
}

// Run executes the session to a terminal state. It must be called once.
func (s *DownloadSession) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session %s already started", s.id)
	}
	s.started = true
	s.mu.Unlock()

	defer close(s.events)

	path, err := s.run(ctx)
	s.finish(path, err)
	return err
}

func (s *DownloadSession) run(ctx context.Context) (string, error) {
	if s.cancelled(ctx) {
		return "", domain.ErrCancelled
	}
	if err := s.advance(domain.StateProbing); err != nil {
		return "", err
	}

	creds, err := s.store.Get(s.req.Platform().CookieDomain())
	if err != nil {
		return "", err
	}

	meta, err := s.probe(ctx, creds)
	if domain.IsRestriction(err) {
		s.logger.Info("Content is restricted, requesting sign-in", zap.Error(err))
		if err := s.advance(domain.StateAuthRetry); err != nil {
			return "", err
		}

		creds, err = s.auth.ObtainCredentials(ctx, AuthRequest{
			Platform:  s.req.Platform(),
			SkipCache: creds != nil,
			Completed: s.authDone,
			Cancel:    s.token.Done(),
			Notify:    s.emit,
		})
		if err != nil {
			return "", err
		}

		if s.cancelled(ctx) {
			return "", domain.ErrCancelled
		}
		if err := s.advance(domain.StateProbing); err != nil {
			return "", err
		}
		meta, err = s.probe(ctx, creds)
	}
	if err != nil {
		return "", err
	}
	if s.cancelled(ctx) {
		return "", domain.ErrCancelled
	}

	base := SanitizeBase(meta)
	s.mu.Lock()
	s.base = base
	s.mu.Unlock()
	target := filepath.Join(s.req.OutputDir(), base+"."+s.expectedExt())

	exists, err := afero.Exists(s.fs, target)
	if err != nil {
		return "", fmt.Errorf("failed to check output file: %w", err)
	}
	if exists {
		if err := s.confirmReplace(target); err != nil {
			return "", err
		}
	}

	if s.cancelled(ctx) {
		return "", domain.ErrCancelled
	}
	if err := s.advance(domain.StateFetching); err != nil {
		return "", err
	}
	path, err := s.fetch(ctx, creds, filepath.Join(s.req.OutputDir(), base))
	if err != nil {
		return "", err
	}
	if path == "" {
		path = target
	}

	if s.cancelled(ctx) {
		// a cancelled session leaves no output behind
		if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove cancelled download", zap.String("file", path), zap.Error(err))
		}
		return "", domain.ErrCancelled
	}
	if err := s.advance(domain.StateFinalizing); err != nil {
		return "", err
	}
	return s.finalize(path)
}

// probe asks the engine for metadata. Stored cookies are decrypted into a
// temp jar only for the duration of the call.
func (s *DownloadSession) probe(ctx context.Context, creds *domain.Credentials) (*domain.Metadata, error) {
	opts := domain.ProbeOptions{}
	if creds != nil {
		path, release, err := s.store.Materialize(creds)
		if err != nil {
			return nil, err
		}
		defer release()
		opts.CookieFile = path
	}
	return s.engine.Probe(ctx, s.req.URL(), opts)
}

func (s *DownloadSession) confirmReplace(target string) error {
	if err := s.advance(domain.StateAwaitingConfirmation); err != nil {
		return err
	}

	q := &domain.ConfirmationRequest{
		File:       target,
		Duplicates: s.findDuplicates(target),
	}
	decision, err := s.gate.Request(q, s.token.Done())
	if err != nil {
		return err
	}
	s.emit(domain.Event{Type: domain.EventConfirmationResolved, Decision: decision})

	if s.token.IsCancelled() {
		return domain.ErrCancelled
	}
	if decision != domain.DecisionYes {
		return &domain.ConflictDeniedError{File: target, Decision: decision}
	}

	if err := s.fs.Remove(target); err != nil {
		return fmt.Errorf("failed to remove existing file %s: %w", target, err)
	}
	s.logger.Info("Removed existing file", zap.String("file", target))
	return nil
}

func (s *DownloadSession) fetch(ctx context.Context, creds *domain.Credentials, outputBase string) (string, error) {
	opts := domain.DownloadOptions{
		Quality:        s.req.Quality(),
		AudioFormat:    s.config.AudioFormat,
		Retries:        s.config.Retries,
		OutputTemplate: outputBase,
	}
	if creds != nil {
		path, release, err := s.store.Materialize(creds)
		if err != nil {
			return "", err
		}
		defer release()
		opts.CookieFile = path
	}

	return s.engine.Download(ctx, s.req.URL(), opts, s.onProgress)
}

// onProgress runs on the engine's reader goroutine. Returning ErrCancelled
// aborts the engine.
func (s *DownloadSession) onProgress(u domain.ProgressUpdate) error {
	if s.token.IsCancelled() {
		return domain.ErrCancelled
	}
	pct, ok := u.Percent()
	if !ok {
		return nil
	}

	s.mu.Lock()
	if pct <= s.progress {
		s.mu.Unlock()
		return nil
	}
	s.progress = pct
	s.mu.Unlock()

	s.emit(domain.Event{Type: domain.EventProgress, Percent: pct})
	return nil
}

func (s *DownloadSession) finalize(path string) (string, error) {
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to check downloaded file: %w", err)
	}
	if !exists {
		return "", &domain.EngineError{Op: "download", Message: fmt.Sprintf("downloaded file not found: %s", path)}
	}

	if s.req.Quality().AudioOnly && !domain.IsAudioExtension(path) {
		renamed := domain.StripExtension(path) + "." + s.config.AudioFormat
		if err := s.fs.Rename(path, renamed); err != nil {
			return "", fmt.Errorf("failed to rename audio file: %w", err)
		}
		s.logger.Info("Renamed audio container",
			zap.String("from", filepath.Base(path)),
			zap.String("to", filepath.Base(renamed)))
		path = renamed
	}
	return path, nil
}

// finish moves to the terminal state and emits the one terminal event
func (s *DownloadSession) finish(path string, err error) {
	ev := domain.Event{}
	var state domain.SessionState

	switch {
	case err == nil:
		state = domain.StateFinished
		ev.Type = domain.EventFinished
		ev.Path = path
	case errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled):
		state = domain.StateCancelled
		ev.Type = domain.EventCancelled
		ev.Message = "download stopped"
		ev.Neutral = true
		ev.Err = domain.ErrCancelled
	default:
		state = domain.StateFailed
		ev.Type = domain.EventFailed
		ev.Message = err.Error()
		ev.Neutral = domain.IsNeutral(err)
		ev.Err = err
	}

	if state != domain.StateFinished {
		s.cleanupPartials()
	}

	s.mu.Lock()
	s.state = state
	if state == domain.StateFinished {
		s.outputPath = path
		s.progress = 100
	}
	s.mu.Unlock()

	switch {
	case state == domain.StateFinished:
		s.logger.Info("Download finished", zap.String("file", path))
	case ev.Neutral:
		s.logger.Info("Download stopped", zap.String("reason", ev.Message))
	default:
		var integrity *domain.IntegrityError
		if errors.As(err, &integrity) {
			s.logger.Error("Credential store integrity failure", zap.Error(err))
		} else {
			s.logger.Warn("Download failed", zap.Error(err))
		}
	}

	s.emit(ev)
}

func (s *DownloadSession) advance(next domain.SessionState) error {
	s.mu.Lock()
	if !s.state.CanAdvance(next) {
		current := s.state
		s.mu.Unlock()
		return fmt.Errorf("invalid session transition %s -> %s", current, next)
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Debug("Session state changed", zap.String("state", string(next)))
	s.emit(domain.Event{Type: domain.EventState, State: next})
	return nil
}

// emit publishes an event. Progress is dropped when the buffer is full since
// a later update supersedes it; every other event waits for room.
func (s *DownloadSession) emit(ev domain.Event) {
	ev.SessionID = s.id
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Type == domain.EventProgress {
		select {
		case s.events <- ev:
		default:
		}
		return
	}
	s.events <- ev
}

func (s *DownloadSession) cancelled(ctx context.Context) bool {
	return s.token.IsCancelled() || ctx.Err() != nil
}

func (s *DownloadSession) expectedExt() string {
	if s.req.Quality().AudioOnly {
		return s.config.AudioFormat
	}
	return "mp4"
}

// findDuplicates lists files in the output directory with the same content
// as target
func (s *DownloadSession) findDuplicates(target string) []string {
	info, err := s.fs.Stat(target)
	if err != nil {
		return nil
	}
	want, err := fileDigest(s.fs, target)
	if err != nil {
		return nil
	}

	entries, err := afero.ReadDir(s.fs, filepath.Dir(target))
	if err != nil {
		return nil
	}

	var dups []string
	for _, e := range entries {
		path := filepath.Join(filepath.Dir(target), e.Name())
		if e.IsDir() || path == target || e.Size() != info.Size() {
			continue
		}
		sum, err := fileDigest(s.fs, path)
		if err != nil {
			continue
		}
		if bytes.Equal(sum, want) {
			dups = append(dups, path)
		}
	}
	return dups
}

// cleanupPartials removes the engine's leftovers for this session's output
func (s *DownloadSession) cleanupPartials() {
	s.mu.RLock()
	base := s.base
	s.mu.RUnlock()
	if base == "" {
		return
	}

	dir := s.req.OutputDir()
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base) || !isPartialFile(name) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(dir, name)); err == nil {
			s.logger.Debug("Removed partial file", zap.String("file", name))
		}
	}
}

// SanitizeBase builds the output file name, without extension, for a media item
func SanitizeBase(meta *domain.Metadata) string {
	if meta.ID == "" {
		return domain.SanitizeFilename(meta.Title)
	}
	return domain.SanitizeFilename(fmt.Sprintf("%s [%s]", meta.Title, meta.ID))
}

func isPartialFile(name string) bool {
	return strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".ytdl") ||
		strings.Contains(name, ".part-Frag")
}

func fileDigest(fs afero.Fs, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
