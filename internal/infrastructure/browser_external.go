package infrastructure

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// CookieExporter reads cookies out of a browser's own profile
type CookieExporter interface {
	ExportBrowserCookies(ctx context.Context, browser, url string) ([]domain.Cookie, error)
}

// ExternalProvider opens any installed browser at the sign-in page in the
// user's normal profile. Cookies are exported from that profile afterwards.
type ExternalProvider struct {
	exporter CookieExporter
	detector *SystemBrowserDetector
	logger   *zap.Logger
	start    func(bin string, args ...string) error
}

// NewExternalProvider creates a provider exporting cookies through exporter
func NewExternalProvider(exporter CookieExporter, detector *SystemBrowserDetector, logger *zap.Logger) *ExternalProvider {
	return &ExternalProvider{
		exporter: exporter,
		detector: detector,
		logger:   logger,
		start: func(bin string, args ...string) error {
			cmd := exec.Command(bin, args...)
			if err := cmd.Start(); err != nil {
				return err
			}
			// the window belongs to the user; it may outlive the session
			return cmd.Process.Release()
		},
	}
}

func (p *ExternalProvider) Supports(id domain.BrowserIdentity) bool {
	return id.Name != ""
}

func (p *ExternalProvider) Launch(ctx context.Context, id domain.BrowserIdentity, signInURL string) (domain.BrowserSession, error) {
	bin := id.Binary
	if bin == "" && p.detector != nil {
		if found, ok := p.detector.Lookup(id.Name); ok {
			bin = found.Binary
		}
	}
	if bin == "" {
		return nil, fmt.Errorf("%s is not installed", id.Name)
	}

	if err := p.start(bin, signInURL); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", id.Name, err)
	}
	p.logger.Debug("Browser opened", zap.String("browser", id.Name), zap.String("bin", bin))

	return &externalSession{
		exporter: p.exporter,
		browser:  strings.ToLower(id.Name),
		url:      signInURL,
	}, nil
}

type externalSession struct {
	exporter CookieExporter
	browser  string
	url      string
}

func (s *externalSession) Cookies(ctx context.Context) ([]domain.Cookie, error) {
	return s.exporter.ExportBrowserCookies(ctx, s.browser, s.url)
}

func (s *externalSession) Close() error {
	return nil
}
