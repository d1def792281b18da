package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// AuthRequest describes one credential acquisition for a session
type AuthRequest struct {
	Platform domain.Platform
	// SkipCache is set when the stored credentials were already rejected
	SkipCache bool
	// Completed receives the user's "I have signed in" signal
	Completed <-chan struct{}
	Cancel    <-chan struct{}
	Notify    func(domain.Event)
}

// AuthCoordinator obtains platform credentials, falling back across browsers
// until one sign-in succeeds.
type AuthCoordinator struct {
	store      *CookieStore
	providers  []domain.BrowserProvider
	detector   domain.BrowserDetector
	preference []string
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthCoordinator creates a coordinator. Providers are consulted in order;
// the first one supporting a browser drives it.
func NewAuthCoordinator(
	store *CookieStore,
	providers []domain.BrowserProvider,
	detector domain.BrowserDetector,
	config *domain.AuthConfig,
	logger *zap.Logger,
) *AuthCoordinator {
	return &AuthCoordinator{
		store:      store,
		providers:  providers,
		detector:   detector,
		preference: config.BrowserPreference,
		timeout:    config.Timeout,
		logger:     logger,
		now:        time.Now,
	}
}

// ObtainCredentials returns usable credentials for req.Platform
func (c *AuthCoordinator) ObtainCredentials(ctx context.Context, req AuthRequest) (*domain.Credentials, error) {
	cookieDomain := req.Platform.CookieDomain()

	if !req.SkipCache {
		creds, err := c.store.Get(cookieDomain)
		if err != nil {
			return nil, err
		}
		if creds != nil {
			c.logger.Info("Using stored cookies",
				zap.String("domain", cookieDomain),
				zap.Int("count", creds.CookieCount))
			return creds, nil
		}
	}

	var def *domain.BrowserIdentity
	var installed []domain.BrowserIdentity
	if c.detector != nil {
		if id, ok := c.detector.DefaultBrowser(); ok {
			def = &id
		}
		installed = c.detector.Installed()
	}
	candidates := OrderCandidates(def, c.preference, installed)
	if len(candidates) == 0 {
		return nil, &domain.AuthExhaustedError{Last: fmt.Errorf("no browser available")}
	}

	var lastErr error
	attempts := 0
	for i, id := range candidates {
		select {
		case <-req.Cancel:
			return nil, domain.ErrCancelled
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		attempts++
		creds, err := c.attempt(ctx, req, id)
		if err == nil {
			return creds, nil
		}
		if errors.Is(err, domain.ErrCancelled) || ctx.Err() != nil {
			return nil, err
		}
		var integrity *domain.IntegrityError
		if errors.As(err, &integrity) {
			return nil, err
		}

		lastErr = err
		c.logger.Warn("Browser sign-in failed",
			zap.String("browser", id.Name),
			zap.String("platform", string(req.Platform)),
			zap.Error(err))

		if i < len(candidates)-1 {
			notify(req, domain.Event{
				Type:    domain.EventAuthNotice,
				Browser: id.Name,
				Message: fmt.Sprintf("Sign-in with %s failed, trying next browser…", id.Name),
			})
		}
	}

	return nil, &domain.AuthExhaustedError{Attempts: attempts, Last: lastErr}
}

func (c *AuthCoordinator) attempt(ctx context.Context, req AuthRequest, id domain.BrowserIdentity) (*domain.Credentials, error) {
	provider := c.providerFor(id)
	if provider == nil {
		return nil, fmt.Errorf("no provider can drive %s", id.Name)
	}

	session := &domain.AuthSession{Browser: id, StartedAt: c.now()}
	signInURL := req.Platform.SignInURL()

	bs, err := provider.Launch(ctx, id, signInURL)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", id.Name, err)
	}
	defer func() {
		if err := bs.Close(); err != nil {
			c.logger.Debug("Failed to close browser", zap.String("browser", id.Name), zap.Error(err))
		}
	}()

	// Discard a completion signal left over from an earlier candidate
	select {
	case <-req.Completed:
	default:
	}

	c.logger.Info("Waiting for browser sign-in",
		zap.String("browser", id.Name),
		zap.String("url", signInURL),
		zap.Duration("timeout", c.timeout))
	notify(req, domain.Event{
		Type:      domain.EventAuthRequested,
		Browser:   id.Name,
		SignInURL: signInURL,
	})

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-req.Completed:
		session.Completed = true
	case <-timer.C:
		return nil, fmt.Errorf("sign-in with %s timed out after %s", id.Name, c.timeout)
	case <-req.Cancel:
		return nil, domain.ErrCancelled
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cookies, err := bs.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies from %s: %w", id.Name, err)
	}
	session.Cookies = domain.FilterCookies(cookies, req.Platform.AuthDomains())
	if len(session.Cookies) == 0 {
		return nil, fmt.Errorf("no %s cookies found in %s", req.Platform.CookieDomain(), id.Name)
	}

	creds, err := c.store.Put(req.Platform.CookieDomain(), session.Cookies)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Browser sign-in completed",
		zap.String("browser", id.Name),
		zap.Int("cookies", len(session.Cookies)),
		zap.Duration("elapsed", session.Elapsed(c.now())))
	return creds, nil
}

func (c *AuthCoordinator) providerFor(id domain.BrowserIdentity) domain.BrowserProvider {
	for _, p := range c.providers {
		if p.Supports(id) {
			return p
		}
	}
	return nil
}

func notify(req AuthRequest, ev domain.Event) {
	if req.Notify != nil {
		req.Notify(ev)
	}
}

// OrderCandidates lists browsers to try: the OS default first, then the
// preference list, then anything else installed. Names are compared case
// insensitively and each browser appears once. When installed browsers are
// known, preferred browsers that are not installed are skipped.
func OrderCandidates(def *domain.BrowserIdentity, preference []string, installed []domain.BrowserIdentity) []domain.BrowserIdentity {
	byName := make(map[string]domain.BrowserIdentity, len(installed))
	for _, id := range installed {
		byName[strings.ToLower(id.Name)] = id
	}

	seen := make(map[string]bool)
	var out []domain.BrowserIdentity
	add := func(id domain.BrowserIdentity) {
		key := strings.ToLower(id.Name)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, id)
	}

	if def != nil {
		add(*def)
	}
	for _, name := range preference {
		if id, ok := byName[strings.ToLower(name)]; ok {
			add(id)
		} else if len(installed) == 0 {
			add(domain.BrowserIdentity{Name: strings.ToLower(name)})
		}
	}
	for _, id := range installed {
		add(id)
	}
	return out
}
