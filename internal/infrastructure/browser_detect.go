package infrastructure

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/yourusername/axolutly-go/internal/domain"
)

// knownBrowser lists the executables a browser may be installed as
type knownBrowser struct {
	name     string
	binaries []string
	// desktop entry prefixes reported by xdg-settings
	desktop []string
}

var knownBrowsers = []knownBrowser{
	{
		name:     "brave",
		binaries: []string{"brave-browser", "brave", "brave.exe", "/Applications/Brave Browser.app/Contents/MacOS/Brave Browser"},
		desktop:  []string{"brave"},
	},
	{
		name:     "chrome",
		binaries: []string{"google-chrome", "google-chrome-stable", "chrome", "chrome.exe", "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
		desktop:  []string{"google-chrome", "com.google.chrome"},
	},
	{
		name:     "chromium",
		binaries: []string{"chromium", "chromium-browser", "/Applications/Chromium.app/Contents/MacOS/Chromium"},
		desktop:  []string{"chromium", "org.chromium"},
	},
	{
		name:     "edge",
		binaries: []string{"microsoft-edge", "microsoft-edge-stable", "msedge", "msedge.exe", "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		desktop:  []string{"microsoft-edge", "com.microsoft.edge"},
	},
	{
		name:     "firefox",
		binaries: []string{"firefox", "firefox-esr", "firefox.exe", "/Applications/Firefox.app/Contents/MacOS/firefox"},
		desktop:  []string{"firefox", "org.mozilla.firefox"},
	},
}

// SystemBrowserDetector finds browsers on PATH and in the usual install
// locations
type SystemBrowserDetector struct {
	goos     string
	lookPath func(file string) (string, error)
	output   func(name string, args ...string) ([]byte, error)
}

// NewSystemBrowserDetector creates a detector for the current OS
func NewSystemBrowserDetector() *SystemBrowserDetector {
	return &SystemBrowserDetector{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		output: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
	}
}

// Installed returns the known browsers found on this machine
func (d *SystemBrowserDetector) Installed() []domain.BrowserIdentity {
	var found []domain.BrowserIdentity
	for _, kb := range knownBrowsers {
		if bin := d.find(kb); bin != "" {
			found = append(found, domain.BrowserIdentity{Name: kb.name, Binary: bin})
		}
	}
	return found
}

// DefaultBrowser asks xdg-settings on Linux. Other systems report no default
// and fall back to the preference order.
func (d *SystemBrowserDetector) DefaultBrowser() (domain.BrowserIdentity, bool) {
	if d.goos != "linux" {
		return domain.BrowserIdentity{}, false
	}
	out, err := d.output("xdg-settings", "get", "default-web-browser")
	if err != nil {
		return domain.BrowserIdentity{}, false
	}
	entry := strings.ToLower(strings.TrimSpace(string(out)))
	if entry == "" {
		return domain.BrowserIdentity{}, false
	}

	for _, kb := range knownBrowsers {
		for _, prefix := range kb.desktop {
			if strings.HasPrefix(entry, prefix) {
				return domain.BrowserIdentity{Name: kb.name, Binary: d.find(kb)}, true
			}
		}
	}
	return domain.BrowserIdentity{}, false
}

// Lookup resolves a browser name to its identity, if it is installed
func (d *SystemBrowserDetector) Lookup(name string) (domain.BrowserIdentity, bool) {
	name = strings.ToLower(name)
	for _, kb := range knownBrowsers {
		if kb.name == name {
			if bin := d.find(kb); bin != "" {
				return domain.BrowserIdentity{Name: kb.name, Binary: bin}, true
			}
		}
	}
	return domain.BrowserIdentity{}, false
}

func (d *SystemBrowserDetector) find(kb knownBrowser) string {
	for _, bin := range kb.binaries {
		if path, err := d.lookPath(bin); err == nil {
			return path
		}
	}
	return ""
}
