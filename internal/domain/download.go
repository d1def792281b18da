package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform represents the source platform for downloads
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
	PlatformTikTok  Platform = "tiktok"
)

// MaxURLLength is the longest URL accepted for a download request
const MaxURLLength = 2048

var platformHosts = map[string]Platform{
	"youtube.com":       PlatformYouTube,
	"youtu.be":          PlatformYouTube,
	"music.youtube.com": PlatformYouTube,
	"twitch.tv":         PlatformTwitch,
	"clips.twitch.tv":   PlatformTwitch,
	"tiktok.com":        PlatformTikTok,
	"vm.tiktok.com":     PlatformTikTok,
}

var urlPattern = regexp.MustCompile(`(?i)^https?://[^\s<>"]+$`)

// DetectPlatform detects the platform from a URL
func DetectPlatform(raw string) Platform {
	if raw == "" || len(raw) > MaxURLLength || !urlPattern.MatchString(raw) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	if p, ok := platformHosts[host]; ok {
		return p
	}
	return ""
}

// ValidatePlatform checks if a platform is valid
func ValidatePlatform(platform Platform) bool {
	return platform == PlatformYouTube || platform == PlatformTwitch || platform == PlatformTikTok
}

// CookieDomain returns the service domain credentials for the platform are stored under
func (p Platform) CookieDomain() string {
	switch p {
	case PlatformYouTube:
		return "youtube.com"
	case PlatformTwitch:
		return "twitch.tv"
	case PlatformTikTok:
		return "tiktok.com"
	}
	return ""
}

// AuthDomains returns the cookie domains worth keeping after a browser sign-in.
// YouTube sessions depend on the Google account cookies as well.
func (p Platform) AuthDomains() []string {
	switch p {
	case PlatformYouTube:
		return []string{"youtube.com", "google.com"}
	case PlatformTwitch:
		return []string{"twitch.tv"}
	case PlatformTikTok:
		return []string{"tiktok.com"}
	}
	return nil
}

// SignInURL returns the identity provider page a browser is pointed at
func (p Platform) SignInURL() string {
	switch p {
	case PlatformYouTube:
		return "https://accounts.google.com/ServiceLogin?service=youtube&continue=https%3A%2F%2Fwww.youtube.com%2F"
	case PlatformTwitch:
		return "https://www.twitch.tv/login"
	case PlatformTikTok:
		return "https://www.tiktok.com/login"
	}
	return ""
}

// HomeURL returns a lightweight page of the platform, used when cookies are
// read back from a browser profile through the engine.
func (p Platform) HomeURL() string {
	switch p {
	case PlatformYouTube:
		return "https://www.youtube.com/feed/history"
	case PlatformTwitch:
		return "https://www.twitch.tv/directory"
	case PlatformTikTok:
		return "https://www.tiktok.com/foryou"
	}
	return ""
}

// Quality is the requested target quality: a vertical resolution cap or audio only.
// A zero MaxHeight without AudioOnly means best available.
type Quality struct {
	MaxHeight int  `json:"max_height,omitempty"`
	AudioOnly bool `json:"audio_only,omitempty"`
}

// ParseQuality parses presets like "1080p", "720", "best" and "audio"
func ParseQuality(s string) (Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "best":
		return Quality{}, nil
	case "audio", "audio-only", "audio_only":
		return Quality{AudioOnly: true}, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	if err != nil || n <= 0 {
		return Quality{}, fmt.Errorf("invalid quality: %q", s)
	}
	return Quality{MaxHeight: n}, nil
}

// String returns the preset form of the quality
func (q Quality) String() string {
	switch {
	case q.AudioOnly:
		return "audio"
	case q.MaxHeight > 0:
		return strconv.Itoa(q.MaxHeight) + "p"
	default:
		return "best"
	}
}

// DownloadRequest is one immutable download request. Fields are unexported so
// a request cannot be changed after NewDownloadRequest validated it.
type DownloadRequest struct {
	url       string
	quality   Quality
	outputDir string
	platform  Platform
}

// NewDownloadRequest validates the URL and builds a request
func NewDownloadRequest(rawURL string, quality Quality, outputDir string) (DownloadRequest, error) {
	rawURL = strings.TrimSpace(rawURL)
	platform := DetectPlatform(rawURL)
	if platform == "" {
		return DownloadRequest{}, fmt.Errorf("unsupported URL: %s", rawURL)
	}
	if outputDir == "" {
		return DownloadRequest{}, fmt.Errorf("output directory not set")
	}
	return DownloadRequest{
		url:       rawURL,
		quality:   quality,
		outputDir: outputDir,
		platform:  platform,
	}, nil
}

func (r DownloadRequest) URL() string        { return r.url }
func (r DownloadRequest) Quality() Quality   { return r.quality }
func (r DownloadRequest) OutputDir() string  { return r.outputDir }
func (r DownloadRequest) Platform() Platform { return r.platform }

// SessionRecord is the persisted history entry of one download session
type SessionRecord struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	URL          string       `json:"url" gorm:"not null"`
	Platform     Platform     `json:"platform" gorm:"not null;index"`
	Quality      string       `json:"quality"`
	OutputDir    string       `json:"output_dir"`
	State        SessionState `json:"state" gorm:"not null;index"`
	Progress     float64      `json:"progress"`
	AuthRetried  bool         `json:"auth_retried"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Neutral      bool         `json:"neutral,omitempty"`
	FilePath     string       `json:"file_path,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (SessionRecord) TableName() string {
	return "sessions"
}

// NewSessionRecord creates a history record for a request
func NewSessionRecord(req DownloadRequest) *SessionRecord {
	now := time.Now()
	return &SessionRecord{
		ID:        uuid.New().String(),
		URL:       req.URL(),
		Platform:  req.Platform(),
		Quality:   req.Quality().String(),
		OutputDir: req.OutputDir(),
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply folds a session event into the record
func (r *SessionRecord) Apply(ev Event) {
	now := ev.Time
	if now.IsZero() {
		now = time.Now()
	}
	r.UpdatedAt = now
	switch ev.Type {
	case EventState:
		r.State = ev.State
		if ev.State == StateProbing && r.StartedAt == nil {
			r.StartedAt = &now
		}
		if ev.State == StateAuthRetry {
			r.AuthRetried = true
		}
	case EventProgress:
		r.Progress = ev.Percent
	case EventFinished:
		r.State = StateFinished
		r.FilePath = ev.Path
		r.Progress = 100
		r.CompletedAt = &now
	case EventFailed:
		r.State = StateFailed
		r.ErrorMessage = ev.Message
		r.Neutral = ev.Neutral
		r.CompletedAt = &now
	case EventCancelled:
		r.State = StateCancelled
		r.ErrorMessage = ev.Message
		r.Neutral = true
		r.CompletedAt = &now
	}
}

// TerminalEvent rebuilds the event that ended the session. ok is false while
// the session is still running.
func (r *SessionRecord) TerminalEvent() (ev Event, ok bool) {
	ev = Event{SessionID: r.ID, Message: r.ErrorMessage, Neutral: r.Neutral}
	if r.CompletedAt != nil {
		ev.Time = *r.CompletedAt
	}
	switch r.State {
	case StateFinished:
		ev.Type = EventFinished
		ev.Path = r.FilePath
	case StateFailed:
		ev.Type = EventFailed
	case StateCancelled:
		ev.Type = EventCancelled
	default:
		return Event{}, false
	}
	return ev, true
}

// IsTerminal checks if the session is in a terminal state
func (r *SessionRecord) IsTerminal() bool {
	return r.State.IsTerminal()
}
