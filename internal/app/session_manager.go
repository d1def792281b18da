package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yourusername/axolutly-go/internal/domain"
	"github.com/yourusername/axolutly-go/internal/infrastructure"
	"github.com/yourusername/axolutly-go/pkg/logger"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown session IDs
var ErrSessionNotFound = errors.New("session not found")

// SessionManager starts download sessions on their own goroutines, persists
// their history and fans their events out to subscribers.
type SessionManager struct {
	repo               domain.SessionRepository
	deps               SessionDeps
	notifier           *infrastructure.NotificationService
	multiLogger        *logger.MultiLogger
	logger             *zap.Logger
	platformSemaphores map[domain.Platform]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	sessions    map[string]*DownloadSession // running, removed once their stream closes
	subscribers map[string][]*subscriber
	finals      map[string]domain.Event
}

type subscriber struct {
	ch   chan domain.Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewSessionManager creates a new session manager. notifier and multiLogger
// may be nil.
func NewSessionManager(
	repo domain.SessionRepository,
	deps SessionDeps,
	notifier *infrastructure.NotificationService,
	multiLogger *logger.MultiLogger,
	logger *zap.Logger,
) *SessionManager {
	limit := deps.Config.ConcurrentLimit
	if limit < 1 {
		limit = 1
	}

	// Platforms download in parallel; sessions of one platform share its slots
	platformSemaphores := make(map[domain.Platform]chan struct{})
	for _, p := range []domain.Platform{domain.PlatformYouTube, domain.PlatformTwitch, domain.PlatformTikTok} {
		platformSemaphores[p] = make(chan struct{}, limit)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		repo:               repo,
		deps:               deps,
		notifier:           notifier,
		multiLogger:        multiLogger,
		logger:             logger,
		platformSemaphores: platformSemaphores,
		ctx:                ctx,
		cancel:             cancel,
		sessions:           make(map[string]*DownloadSession),
		subscribers:        make(map[string][]*subscriber),
		finals:             make(map[string]domain.Event),
	}
}

// Start records the request and runs a session for it in the background
func (m *SessionManager) Start(req domain.DownloadRequest) (string, error) {
	id, _, _, err := m.start(req, false)
	return id, err
}

// StartAndSubscribe is Start with a subscription that sees every event of the
// session, including the first state change.
func (m *SessionManager) StartAndSubscribe(req domain.DownloadRequest) (string, <-chan domain.Event, func(), error) {
	return m.start(req, true)
}

func (m *SessionManager) start(req domain.DownloadRequest, subscribe bool) (string, <-chan domain.Event, func(), error) {
	record := domain.NewSessionRecord(req)
	if err := m.repo.Create(record); err != nil {
		return "", nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	session := NewDownloadSession(record.ID, req, m.deps)

	m.mu.Lock()
	m.sessions[record.ID] = session
	var events <-chan domain.Event
	var unsubscribe func()
	if subscribe {
		events, unsubscribe = m.addSubscriber(record.ID)
	}
	m.mu.Unlock()

	m.logger.Info("Session started",
		zap.String("id", record.ID),
		zap.String("url", req.URL()),
		zap.String("platform", string(req.Platform())),
		zap.String("quality", req.Quality().String()))
	if m.multiLogger != nil {
		m.multiLogger.LogSessionEvent("session_started",
			zap.String("id", record.ID),
			zap.String("url", req.URL()),
			zap.String("platform", string(req.Platform())))
	}

	m.wg.Add(2)
	go m.pump(session, record)
	go m.run(session)

	return record.ID, events, unsubscribe, nil
}

func (m *SessionManager) run(session *DownloadSession) {
	defer m.wg.Done()

	sem := m.platformSemaphores[session.Request().Platform()]
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-session.token.Done():
		// cancelled while waiting for a slot; Run reports it
	case <-m.ctx.Done():
	}

	session.Run(m.ctx)
}

// pump persists, logs, notifies and fans out every event of a session
func (m *SessionManager) pump(session *DownloadSession, record *domain.SessionRecord) {
	defer m.wg.Done()
	req := session.Request()

	for ev := range session.Events() {
		record.Apply(ev)
		if ev.Type != domain.EventProgress || ev.Percent >= 100 {
			if err := m.repo.Update(record); err != nil {
				m.logger.Error("Failed to update session record",
					zap.String("id", record.ID),
					zap.Error(err))
			}
		}

		if m.notifier != nil {
			m.notifier.Notify(req.URL(), req.Platform(), ev)
		}
		m.logEvent(ev)
		if ev.Type.IsTerminal() {
			m.mu.Lock()
			m.finals[record.ID] = ev
			m.mu.Unlock()
		}
		m.publish(ev)
	}

	// progress between lifecycle events is only persisted here
	if err := m.repo.Update(record); err != nil {
		m.logger.Error("Failed to update session record", zap.String("id", record.ID), zap.Error(err))
	}

	m.mu.Lock()
	for _, sub := range m.subscribers[record.ID] {
		close(sub.ch)
	}
	delete(m.subscribers, record.ID)
	delete(m.finals, record.ID)
	delete(m.sessions, record.ID)
	m.mu.Unlock()
}

func (m *SessionManager) logEvent(ev domain.Event) {
	if m.multiLogger == nil || ev.Type == domain.EventProgress {
		return
	}
	fields := []zap.Field{
		zap.String("id", ev.SessionID),
		zap.String("type", string(ev.Type)),
	}
	if ev.State != "" {
		fields = append(fields, zap.String("state", string(ev.State)))
	}
	if ev.Browser != "" {
		fields = append(fields, zap.String("browser", ev.Browser))
	}
	if ev.Path != "" {
		fields = append(fields, zap.String("file", ev.Path))
	}
	if ev.Message != "" {
		fields = append(fields, zap.String("message", ev.Message))
	}
	m.multiLogger.LogSessionEvent("session_"+string(ev.Type), fields...)

	if ev.Type == domain.EventFailed && !ev.Neutral {
		m.multiLogger.LogAppError("Session failed",
			zap.String("id", ev.SessionID),
			zap.Error(ev.Err))
	}
}

// publish delivers an event to subscribers. A slow subscriber misses
// progress updates but never a lifecycle event.
func (m *SessionManager) publish(ev domain.Event) {
	m.mu.RLock()
	subs := append([]*subscriber(nil), m.subscribers[ev.SessionID]...)
	m.mu.RUnlock()

	for _, sub := range subs {
		if ev.Type == domain.EventProgress {
			select {
			case sub.ch <- ev:
			case <-sub.done:
			default:
			}
			continue
		}
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// Subscribe returns a stream of the session's future events, closed after
// its terminal event. A session that already ended yields just its terminal
// event. unsubscribe stops delivery early.
func (m *SessionManager) Subscribe(id string) (<-chan domain.Event, func(), error) {
	m.mu.Lock()
	if final, ok := m.finals[id]; ok {
		m.mu.Unlock()
		return endedStream(final, true), func() {}, nil
	}
	if _, ok := m.sessions[id]; ok {
		events, unsubscribe := m.addSubscriber(id)
		m.mu.Unlock()
		return events, unsubscribe, nil
	}
	m.mu.Unlock()

	record, err := m.repo.FindByID(id)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, ErrSessionNotFound
	}
	final, ok := record.TerminalEvent()
	return endedStream(final, ok), func() {}, nil
}

func endedStream(final domain.Event, ok bool) <-chan domain.Event {
	ch := make(chan domain.Event, 1)
	if ok {
		ch <- final
	}
	close(ch)
	return ch
}

// addSubscriber must be called with m.mu held
func (m *SessionManager) addSubscriber(id string) (<-chan domain.Event, func()) {
	sub := &subscriber{
		ch:   make(chan domain.Event, m.deps.Config.EventBuffer+1),
		done: make(chan struct{}),
	}
	m.subscribers[id] = append(m.subscribers[id], sub)

	unsubscribe := func() {
		sub.stop()
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[id]
		for i, s := range subs {
			if s == sub {
				m.subscribers[id] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
	return sub.ch, unsubscribe
}

// Cancel cancels a running session. Cancelling a finished session is a no-op.
func (m *SessionManager) Cancel(id string) error {
	session, err := m.session(id)
	if err != nil {
		return err
	}
	if session == nil || session.State().IsTerminal() {
		return nil
	}
	session.Cancel()
	m.logger.Info("Session cancel requested", zap.String("id", id))
	return nil
}

// ResolveConfirmation answers a session's replace question
func (m *SessionManager) ResolveConfirmation(id string, yes bool) error {
	session, err := m.session(id)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNoPendingConfirmation
	}
	return session.ResolveConfirmation(yes)
}

// NotifyAuthCompleted signals that the user finished signing in
func (m *SessionManager) NotifyAuthCompleted(id string) error {
	session, err := m.session(id)
	if err != nil {
		return err
	}
	if session != nil {
		session.NotifyAuthCompleted()
	}
	return nil
}

// Get returns the record of a session
func (m *SessionManager) Get(id string) (*domain.SessionRecord, error) {
	record, err := m.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrSessionNotFound
	}
	return record, nil
}

// List returns session records matching filters
func (m *SessionManager) List(filters map[string]interface{}) ([]*domain.SessionRecord, error) {
	return m.repo.FindAll(filters)
}

// Stats returns session statistics
func (m *SessionManager) Stats() (*domain.SessionStats, error) {
	return m.repo.GetStats()
}

// Shutdown cancels all sessions and waits for them to finish
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, s := range m.sessions {
		s.Cancel()
	}
	m.mu.RUnlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every started session has finished
func (m *SessionManager) Wait() {
	m.wg.Wait()
}

// session returns a running session. A nil session with a nil error means
// the session exists but has already ended.
func (m *SessionManager) session(id string) (*DownloadSession, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return session, nil
	}

	record, err := m.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrSessionNotFound
	}
	return nil, nil
}
