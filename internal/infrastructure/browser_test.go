package infrastructure

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

func fakeDetector(goos string, installed map[string]string, xdg string) *SystemBrowserDetector {
	return &SystemBrowserDetector{
		goos: goos,
		lookPath: func(file string) (string, error) {
			if path, ok := installed[file]; ok {
				return path, nil
			}
			return "", errors.New("not found")
		},
		output: func(name string, args ...string) ([]byte, error) {
			if xdg == "" {
				return nil, errors.New("xdg-settings missing")
			}
			return []byte(xdg + "\n"), nil
		},
	}
}

func TestSystemBrowserDetector_Installed(t *testing.T) {
	d := fakeDetector("linux", map[string]string{
		"firefox":               "/usr/bin/firefox",
		"google-chrome-stable":  "/usr/bin/google-chrome-stable",
		"unrelated-application": "/usr/bin/x",
	}, "")

	installed := d.Installed()
	assert.Equal(t, []domain.BrowserIdentity{
		{Name: "chrome", Binary: "/usr/bin/google-chrome-stable"},
		{Name: "firefox", Binary: "/usr/bin/firefox"},
	}, installed)
}

func TestSystemBrowserDetector_DefaultBrowser(t *testing.T) {
	d := fakeDetector("linux", map[string]string{"brave-browser": "/usr/bin/brave-browser"}, "brave-browser.desktop")
	id, ok := d.DefaultBrowser()
	require.True(t, ok)
	assert.Equal(t, domain.BrowserIdentity{Name: "brave", Binary: "/usr/bin/brave-browser"}, id)

	d = fakeDetector("linux", nil, "")
	_, ok = d.DefaultBrowser()
	assert.False(t, ok)

	d = fakeDetector("linux", nil, "opera.desktop")
	_, ok = d.DefaultBrowser()
	assert.False(t, ok)

	d = fakeDetector("darwin", nil, "firefox.desktop")
	_, ok = d.DefaultBrowser()
	assert.False(t, ok)
}

func TestSystemBrowserDetector_Lookup(t *testing.T) {
	d := fakeDetector("linux", map[string]string{"msedge": "/opt/msedge"}, "")
	id, ok := d.Lookup("Edge")
	require.True(t, ok)
	assert.Equal(t, "/opt/msedge", id.Binary)

	_, ok = d.Lookup("firefox")
	assert.False(t, ok)
}

func TestRodProvider_Supports(t *testing.T) {
	p := NewRodProvider(t.TempDir(), nil, zap.NewNop())
	assert.True(t, p.Supports(domain.BrowserIdentity{Name: "Brave"}))
	assert.True(t, p.Supports(domain.BrowserIdentity{Name: "edge"}))
	assert.False(t, p.Supports(domain.BrowserIdentity{Name: "firefox"}))
}

func TestRodProvider_MissingBinary(t *testing.T) {
	p := NewRodProvider(t.TempDir(), fakeDetector("linux", nil, ""), zap.NewNop())
	_, err := p.Launch(context.Background(), domain.BrowserIdentity{Name: "brave"}, "https://accounts.google.com")
	assert.Error(t, err)
}

func TestFromNetworkCookies(t *testing.T) {
	cookies := fromNetworkCookies([]*proto.NetworkCookie{
		{Domain: ".youtube.com", Path: "/", Name: "SID", Value: "v", Secure: true, HTTPOnly: true, Expires: 1893456000},
		{Domain: "www.youtube.com", Path: "/", Name: "PREF", Value: "x", Session: true, Expires: -1},
	})

	require.Len(t, cookies, 2)
	assert.Equal(t, int64(1893456000), cookies[0].Expires.Unix())
	assert.True(t, cookies[0].HTTPOnly)
	assert.True(t, cookies[0].IncludeSubdomains())
	assert.True(t, cookies[1].Expires.IsZero())
}

type stubExporter struct {
	browser, url string
	cookies      []domain.Cookie
}

func (s *stubExporter) ExportBrowserCookies(ctx context.Context, browser, url string) ([]domain.Cookie, error) {
	s.browser, s.url = browser, url
	return s.cookies, nil
}

func TestExternalProvider(t *testing.T) {
	exporter := &stubExporter{cookies: []domain.Cookie{{Domain: ".youtube.com", Name: "SID", Value: "v"}}}
	p := NewExternalProvider(exporter, fakeDetector("linux", map[string]string{"firefox": "/usr/bin/firefox"}, ""), zap.NewNop())

	var started []string
	p.start = func(bin string, args ...string) error {
		started = append([]string{bin}, args...)
		return nil
	}

	assert.True(t, p.Supports(domain.BrowserIdentity{Name: "firefox"}))

	session, err := p.Launch(context.Background(), domain.BrowserIdentity{Name: "Firefox"}, "https://accounts.google.com/ServiceLogin")
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/firefox", "https://accounts.google.com/ServiceLogin"}, started)

	cookies, err := session.Cookies(context.Background())
	require.NoError(t, err)
	assert.Len(t, cookies, 1)
	assert.Equal(t, "firefox", exporter.browser)
	assert.NoError(t, session.Close())

	_, err = p.Launch(context.Background(), domain.BrowserIdentity{Name: "safari"}, "https://x")
	assert.Error(t, err)
}
