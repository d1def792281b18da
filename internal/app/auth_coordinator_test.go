package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

type authHarness struct {
	repo     *memCookieRepo
	store    *CookieStore
	provider *stubProvider
	coord    *AuthCoordinator

	completed chan struct{}
	cancel    chan struct{}

	mu     sync.Mutex
	events []domain.Event
}

func newAuthHarness(detector domain.BrowserDetector, preference []string, timeout time.Duration) *authHarness {
	repo := newMemCookieRepo()
	store := NewCookieStore(repo, xorCipher{}, 7*24*time.Hour, zap.NewNop(), WithTempFs(afero.NewMemMapFs(), "/tmp"))
	provider := &stubProvider{cookies: youtubeCookies(), fail: map[string]bool{}}
	return &authHarness{
		repo:     repo,
		store:    store,
		provider: provider,
		coord: NewAuthCoordinator(store, []domain.BrowserProvider{provider}, detector, &domain.AuthConfig{
			BrowserPreference: preference,
			Timeout:           timeout,
		}, zap.NewNop()),
		completed: make(chan struct{}, 1),
		cancel:    make(chan struct{}),
	}
}

// request signs in whenever a browser listed in signIn asks for it
func (h *authHarness) request(signIn ...string) AuthRequest {
	return AuthRequest{
		Platform:  domain.PlatformYouTube,
		Completed: h.completed,
		Cancel:    h.cancel,
		Notify: func(ev domain.Event) {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()
			if ev.Type != domain.EventAuthRequested {
				return
			}
			for _, name := range signIn {
				if ev.Browser == name {
					h.completed <- struct{}{}
				}
			}
		},
	}
}

func (h *authHarness) eventTypes() []domain.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	var types []domain.EventType
	for _, ev := range h.events {
		types = append(types, ev.Type)
	}
	return types
}

func TestAuthCoordinator_UsesStoredCookies(t *testing.T) {
	h := newAuthHarness(stubDetector{}, []string{"brave"}, time.Second)
	_, err := h.store.Put("youtube.com", youtubeCookies())
	require.NoError(t, err)

	creds, err := h.coord.ObtainCredentials(context.Background(), h.request())
	require.NoError(t, err)
	assert.Equal(t, "youtube.com", creds.Domain)
	assert.Empty(t, h.provider.launches())
}

func TestAuthCoordinator_FallsBackToNextBrowser(t *testing.T) {
	h := newAuthHarness(stubDetector{}, []string{"brave", "firefox"}, 100*time.Millisecond)

	creds, err := h.coord.ObtainCredentials(context.Background(), h.request("firefox"))
	require.NoError(t, err)
	require.NotNil(t, creds)

	assert.Equal(t, []string{"brave", "firefox"}, h.provider.launches())
	assert.Equal(t, []domain.EventType{
		domain.EventAuthRequested,
		domain.EventAuthNotice,
		domain.EventAuthRequested,
	}, h.eventTypes())

	// Only the platform's cookies are kept
	assert.Equal(t, 2, creds.CookieCount)
	stored, err := h.store.Cookies(creds)
	require.NoError(t, err)
	for _, c := range stored {
		assert.NotEqual(t, ".example.com", c.Domain)
	}
}

func TestAuthCoordinator_SkipCache(t *testing.T) {
	h := newAuthHarness(stubDetector{}, []string{"chrome"}, time.Second)
	_, err := h.store.Put("youtube.com", youtubeCookies()[:1])
	require.NoError(t, err)

	req := h.request("chrome")
	req.SkipCache = true
	creds, err := h.coord.ObtainCredentials(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, creds.CookieCount)
	assert.Equal(t, []string{"chrome"}, h.provider.launches())
}

func TestAuthCoordinator_Exhausted(t *testing.T) {
	h := newAuthHarness(stubDetector{}, []string{"brave", "edge"}, 50*time.Millisecond)
	h.provider.fail["brave"] = true

	_, err := h.coord.ObtainCredentials(context.Background(), h.request())

	var exhausted *domain.AuthExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Contains(t, exhausted.Error(), "edge timed out")

	// The last candidate's failure is reported as the error, not as a notice
	assert.Equal(t, []domain.EventType{domain.EventAuthNotice, domain.EventAuthRequested}, h.eventTypes())
}

func TestAuthCoordinator_Cancel(t *testing.T) {
	h := newAuthHarness(stubDetector{}, []string{"brave", "firefox"}, time.Minute)
	req := h.request()
	notify := req.Notify
	req.Notify = func(ev domain.Event) {
		notify(ev)
		if ev.Type == domain.EventAuthRequested {
			close(h.cancel)
		}
	}

	_, err := h.coord.ObtainCredentials(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, []string{"brave"}, h.provider.launches())
}

func TestAuthCoordinator_NoBrowsers(t *testing.T) {
	h := newAuthHarness(stubDetector{}, nil, time.Second)

	_, err := h.coord.ObtainCredentials(context.Background(), h.request())
	var exhausted *domain.AuthExhaustedError
	assert.True(t, errors.As(err, &exhausted))
}

func TestOrderCandidates(t *testing.T) {
	firefox := domain.BrowserIdentity{Name: "firefox", Binary: "/usr/bin/firefox"}
	chrome := domain.BrowserIdentity{Name: "chrome", Binary: "/usr/bin/google-chrome"}
	edge := domain.BrowserIdentity{Name: "edge", Binary: "/usr/bin/microsoft-edge"}

	t.Run("default first then preference then installed", func(t *testing.T) {
		got := OrderCandidates(&firefox, []string{"Brave", "chrome", "firefox"}, []domain.BrowserIdentity{firefox, chrome, edge})
		assert.Equal(t, []domain.BrowserIdentity{firefox, chrome, edge}, got)
	})

	t.Run("unknown installed keeps preference", func(t *testing.T) {
		got := OrderCandidates(nil, []string{"Brave", "chrome", "brave"}, nil)
		assert.Equal(t, []domain.BrowserIdentity{{Name: "brave"}, {Name: "chrome"}}, got)
	})

	t.Run("nothing known", func(t *testing.T) {
		assert.Empty(t, OrderCandidates(nil, nil, nil))
	})
}
