package infrastructure

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// chromiumBrowsers can be driven over the DevTools protocol
var chromiumBrowsers = map[string]bool{
	"brave":    true,
	"chrome":   true,
	"chromium": true,
	"edge":     true,
}

// RodProvider opens Chromium based browsers with a dedicated profile and
// reads their cookies over DevTools
type RodProvider struct {
	profilesDir string
	detector    *SystemBrowserDetector
	logger      *zap.Logger
}

// NewRodProvider creates a provider keeping one profile per browser under
// profilesDir. detector resolves binaries of identities without one.
func NewRodProvider(profilesDir string, detector *SystemBrowserDetector, logger *zap.Logger) *RodProvider {
	return &RodProvider{
		profilesDir: profilesDir,
		detector:    detector,
		logger:      logger,
	}
}

func (p *RodProvider) Supports(id domain.BrowserIdentity) bool {
	return chromiumBrowsers[strings.ToLower(id.Name)]
}

// Launch starts a visible browser window at signInURL
func (p *RodProvider) Launch(ctx context.Context, id domain.BrowserIdentity, signInURL string) (domain.BrowserSession, error) {
	bin, err := p.binary(id)
	if err != nil {
		return nil, err
	}

	l := launcher.New().
		Context(ctx).
		Bin(bin).
		Headless(false).
		UserDataDir(filepath.Join(p.profilesDir, strings.ToLower(id.Name))).
		Set("disable-blink-features", "AutomationControlled").
		Set("exclude-switches", "enable-automation").
		Devtools(false)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", id.Name, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to %s: %w", id.Name, err)
	}
	if _, err := browser.Page(proto.TargetCreateTarget{URL: signInURL}); err != nil {
		browser.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open sign-in page: %w", err)
	}

	p.logger.Debug("Browser launched",
		zap.String("browser", id.Name),
		zap.String("bin", bin),
		zap.String("control_url", controlURL))

	return &rodSession{browser: browser, launcher: l}, nil
}

func (p *RodProvider) binary(id domain.BrowserIdentity) (string, error) {
	if id.Binary != "" {
		return id.Binary, nil
	}
	if p.detector != nil {
		if found, ok := p.detector.Lookup(id.Name); ok {
			return found.Binary, nil
		}
	}
	if name := strings.ToLower(id.Name); name == "chrome" || name == "chromium" {
		if path, ok := launcher.LookPath(); ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s is not installed", id.Name)
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (s *rodSession) Cookies(ctx context.Context) ([]domain.Cookie, error) {
	cookies, err := s.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, err
	}
	return fromNetworkCookies(cookies), nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	return err
}

func fromNetworkCookies(cookies []*proto.NetworkCookie) []domain.Cookie {
	out := make([]domain.Cookie, 0, len(cookies))
	for _, c := range cookies {
		dc := domain.Cookie{
			Domain:   c.Domain,
			Path:     c.Path,
			Name:     c.Name,
			Value:    c.Value,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			dc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, dc)
	}
	return out
}
