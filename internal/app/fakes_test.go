package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// memCookieRepo implements domain.CookieRepository in memory
type memCookieRepo struct {
	mu      sync.Mutex
	records map[string]*domain.CookieRecord
}

func newMemCookieRepo() *memCookieRepo {
	return &memCookieRepo{records: make(map[string]*domain.CookieRecord)}
}

func (r *memCookieRepo) SaveCookies(rec *domain.CookieRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.Domain] = &cp
	return nil
}

func (r *memCookieRepo) FindCookies(d string) (*domain.CookieRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[d]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *memCookieRepo) DeleteCookies(d string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, d)
	return nil
}

func (r *memCookieRepo) AllCookies() ([]*domain.CookieRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CookieRecord
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memCookieRepo) has(d string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[d]
	return ok
}

// memSessionRepo implements domain.SessionRepository in memory
type memSessionRepo struct {
	mu      sync.Mutex
	records map[string]domain.SessionRecord
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{records: make(map[string]domain.SessionRecord)}
}

func (r *memSessionRepo) Create(rec *domain.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = *rec
	return nil
}

func (r *memSessionRepo) Update(rec *domain.SessionRecord) error {
	return r.Create(rec)
}

func (r *memSessionRepo) FindByID(id string) (*domain.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memSessionRepo) FindAll(filters map[string]interface{}) ([]*domain.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SessionRecord
	for _, rec := range r.records {
		rec := rec
		if state, ok := filters["state"]; ok && string(rec.State) != state {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *memSessionRepo) GetStats() (*domain.SessionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.SessionStats{Total: int64(len(r.records))}
	for _, rec := range r.records {
		switch rec.State {
		case domain.StateFinished:
			stats.Finished++
		case domain.StateFailed:
			stats.Failed++
		case domain.StateCancelled:
			stats.Cancelled++
		default:
			stats.Active++
		}
	}
	return stats, nil
}

// xorCipher is a reversible stand-in for the real cipher
type xorCipher struct {
	fail bool
}

func (c xorCipher) Encrypt(p []byte) ([]byte, error) {
	if c.fail {
		return nil, errors.New("cipher broken")
	}
	return c.xor(p), nil
}

func (c xorCipher) Decrypt(p []byte) ([]byte, error) {
	if c.fail {
		return nil, errors.New("cipher broken")
	}
	return c.xor(p), nil
}

func (xorCipher) xor(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ 0x5a
	}
	return out
}

// scriptedEngine plays back canned probe results and writes the downloaded
// file into fs
type scriptedEngine struct {
	fs afero.Fs

	mu           sync.Mutex
	probeResults []error
	probeCalls   int
	probeJars    []string
	downloads    int
	downloadJar  string
	retries      int
	ext          string
	progress     []domain.ProgressUpdate
	// onProbe runs at the start of every probe
	onProbe func()
	// onDownload runs before progress is reported
	onDownload  func(ctx context.Context) error
	downloadErr error
}

func (e *scriptedEngine) Probe(ctx context.Context, url string, opts domain.ProbeOptions) (*domain.Metadata, error) {
	e.mu.Lock()
	onProbe := e.onProbe
	e.mu.Unlock()
	if onProbe != nil {
		onProbe()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	jar := ""
	if opts.CookieFile != "" {
		data, err := afero.ReadFile(e.fs, opts.CookieFile)
		if err != nil {
			return nil, fmt.Errorf("cookie file unreadable: %w", err)
		}
		jar = string(data)
	}
	e.probeJars = append(e.probeJars, jar)

	i := e.probeCalls
	e.probeCalls++
	if i < len(e.probeResults) && e.probeResults[i] != nil {
		return nil, e.probeResults[i]
	}
	return &domain.Metadata{ID: "abc123", Title: "My Clip", Ext: "webm", Extractor: "youtube"}, nil
}

func (e *scriptedEngine) Download(ctx context.Context, url string, opts domain.DownloadOptions, fn domain.ProgressFunc) (string, error) {
	e.mu.Lock()
	e.downloads++
	e.retries = opts.Retries
	if opts.CookieFile != "" {
		e.downloadJar = opts.CookieFile
	}
	onDownload := e.onDownload
	progress := e.progress
	ext := e.ext
	downloadErr := e.downloadErr
	e.mu.Unlock()

	if onDownload != nil {
		if err := onDownload(ctx); err != nil {
			return "", err
		}
	}
	for _, u := range progress {
		if err := fn(u); err != nil {
			return "", err
		}
	}
	if downloadErr != nil {
		return "", downloadErr
	}

	if ext == "" {
		ext = "mp4"
	}
	path := opts.OutputTemplate + "." + ext
	if err := afero.WriteFile(e.fs, path, []byte("media"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (e *scriptedEngine) ExportBrowserCookies(ctx context.Context, browser, url string) ([]domain.Cookie, error) {
	return nil, errors.New("not supported")
}

func (e *scriptedEngine) calls() (probes, downloads int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.probeCalls, e.downloads
}

// stubProvider drives every browser; launches listed in fail error out
type stubProvider struct {
	mu       sync.Mutex
	launched []string
	fail     map[string]bool
	cookies  []domain.Cookie
	// onLaunch runs after a successful launch
	onLaunch func(name string)
}

func (p *stubProvider) Supports(domain.BrowserIdentity) bool { return true }

func (p *stubProvider) Launch(ctx context.Context, id domain.BrowserIdentity, signInURL string) (domain.BrowserSession, error) {
	p.mu.Lock()
	p.launched = append(p.launched, id.Name)
	fail := p.fail[id.Name]
	onLaunch := p.onLaunch
	p.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("%s crashed", id.Name)
	}
	if onLaunch != nil {
		onLaunch(id.Name)
	}
	return &stubBrowserSession{cookies: p.cookies}, nil
}

func (p *stubProvider) launches() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.launched...)
}

type stubBrowserSession struct {
	cookies []domain.Cookie
}

func (s *stubBrowserSession) Cookies(context.Context) ([]domain.Cookie, error) {
	return s.cookies, nil
}

func (s *stubBrowserSession) Close() error { return nil }

type stubDetector struct {
	def       *domain.BrowserIdentity
	installed []domain.BrowserIdentity
}

func (d stubDetector) DefaultBrowser() (domain.BrowserIdentity, bool) {
	if d.def == nil {
		return domain.BrowserIdentity{}, false
	}
	return *d.def, true
}

func (d stubDetector) Installed() []domain.BrowserIdentity {
	return d.installed
}

func youtubeCookies() []domain.Cookie {
	return []domain.Cookie{
		{Domain: ".youtube.com", Path: "/", Name: "LOGIN_INFO", Value: "li", Secure: true, HTTPOnly: true},
		{Domain: ".google.com", Path: "/", Name: "SID", Value: "sid", Secure: true},
		{Domain: ".example.com", Path: "/", Name: "tracker", Value: "t"},
	}
}

// testEnv wires a session's collaborators over in-memory fakes
type testEnv struct {
	fs       afero.Fs
	engine   *scriptedEngine
	cookies  *memCookieRepo
	store    *CookieStore
	provider *stubProvider
	auth     *AuthCoordinator
	config   *domain.DownloadConfig
}

func newTestEnv() *testEnv {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll("/downloads", 0755)
	_ = fs.MkdirAll("/tmp", 0700)

	cookies := newMemCookieRepo()
	store := NewCookieStore(cookies, xorCipher{}, 7*24*time.Hour, zap.NewNop(), WithTempFs(fs, "/tmp"))
	provider := &stubProvider{cookies: youtubeCookies()}
	auth := NewAuthCoordinator(store, []domain.BrowserProvider{provider}, stubDetector{}, &domain.AuthConfig{
		BrowserPreference: []string{"brave", "firefox"},
		Timeout:           time.Second,
	}, zap.NewNop())

	return &testEnv{
		fs:       fs,
		engine:   &scriptedEngine{fs: fs},
		cookies:  cookies,
		store:    store,
		provider: provider,
		auth:     auth,
		config: &domain.DownloadConfig{
			AudioFormat:     "m4a",
			ConfirmTimeout:  time.Second,
			ConcurrentLimit: 2,
			EventBuffer:     64,
		},
	}
}

func (e *testEnv) deps() SessionDeps {
	return SessionDeps{
		Engine: e.engine,
		Store:  e.store,
		Auth:   e.auth,
		Fs:     e.fs,
		Config: e.config,
		Logger: zap.NewNop(),
	}
}

func mustRequest(url string, quality domain.Quality) domain.DownloadRequest {
	req, err := domain.NewDownloadRequest(url, quality, "/downloads")
	if err != nil {
		panic(err)
	}
	return req
}
