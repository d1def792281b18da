package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// CookieStore keeps per-domain cookie jars encrypted at rest and evicts them
// after the retention window.
type CookieStore struct {
	repo      domain.CookieRepository
	cipher    domain.Cipher
	fs        afero.Fs
	tempDir   string
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
	mu        sync.Mutex
}

// CookieStoreOption configures a CookieStore
type CookieStoreOption func(*CookieStore)

// WithClock replaces the store's time source
func WithClock(now func() time.Time) CookieStoreOption {
	return func(s *CookieStore) {
		s.now = now
	}
}

// WithTempFs sets the file system and directory decrypted jars are written to
func WithTempFs(fs afero.Fs, dir string) CookieStoreOption {
	return func(s *CookieStore) {
		s.fs = fs
		s.tempDir = dir
	}
}

// NewCookieStore creates a store and evicts records past retention
func NewCookieStore(
	repo domain.CookieRepository,
	cipher domain.Cipher,
	retention time.Duration,
	logger *zap.Logger,
	opts ...CookieStoreOption,
) *CookieStore {
	s := &CookieStore{
		repo:      repo,
		cipher:    cipher,
		fs:        afero.NewOsFs(),
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.EvictExpired(); err != nil {
		logger.Warn("Failed to evict expired cookies", zap.Error(err))
	}
	return s
}

// Get returns the stored credentials of a domain. Nil means nothing usable is
// stored: no record, an empty one, or one past retention (which is removed).
func (s *CookieStore) Get(domainName string) (*domain.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.FindCookies(domainName)
	if err != nil {
		return nil, fmt.Errorf("failed to load cookies: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Expired(s.now(), s.retention) {
		if err := s.repo.DeleteCookies(domainName); err != nil {
			return nil, fmt.Errorf("failed to evict cookies: %w", err)
		}
		s.logger.Info("Evicted expired cookies",
			zap.String("domain", domainName),
			zap.Time("created_at", rec.CreatedAt))
		return nil, nil
	}
	if rec.CookieCount == 0 || len(rec.Blob) == 0 {
		return nil, nil
	}
	return domain.NewCredentials(rec), nil
}

// Put encrypts and persists cookies for a domain, replacing what was stored
func (s *CookieStore) Put(domainName string, cookies []domain.Cookie) (*domain.Credentials, error) {
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookies for %s", domainName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := s.cipher.Encrypt(domain.MarshalCookieJar(cookies))
	if err != nil {
		return nil, &domain.IntegrityError{Op: "encrypt", Err: err}
	}

	rec := &domain.CookieRecord{
		Domain:      domainName,
		Blob:        blob,
		CookieCount: len(cookies),
		CreatedAt:   s.now(),
	}
	if err := s.repo.SaveCookies(rec); err != nil {
		return nil, fmt.Errorf("failed to save cookies: %w", err)
	}

	s.logger.Info("Stored cookies",
		zap.String("domain", domainName),
		zap.Int("count", len(cookies)))
	return domain.NewCredentials(rec), nil
}

// Cookies decrypts a credential handle
func (s *CookieStore) Cookies(creds *domain.Credentials) ([]domain.Cookie, error) {
	jar, err := s.decrypt(creds)
	if err != nil {
		return nil, err
	}
	cookies, err := domain.ParseCookieJar(jar)
	if err != nil {
		return nil, &domain.IntegrityError{Op: "decode", Err: err}
	}
	return cookies, nil
}

// Materialize writes the decrypted jar of creds to an owner-only temp file
// for the engine. release removes the file and must be called as soon as the
// engine call that reads it returns.
func (s *CookieStore) Materialize(creds *domain.Credentials) (string, func(), error) {
	jar, err := s.decrypt(creds)
	if err != nil {
		return "", nil, err
	}

	f, err := afero.TempFile(s.fs, s.tempDir, "axolutly-cookies-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create cookie file: %w", err)
	}
	path := f.Name()
	release := func() {
		if err := s.fs.Remove(path); err != nil {
			s.logger.Warn("Failed to remove cookie file", zap.String("path", path), zap.Error(err))
		}
	}

	if err := s.fs.Chmod(path, 0600); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("failed to restrict cookie file: %w", err)
	}
	if _, err := f.Write(jar); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("failed to write cookie file: %w", err)
	}
	return path, release, nil
}

// EvictExpired removes every record past retention
func (s *CookieStore) EvictExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.repo.AllCookies()
	if err != nil {
		return 0, fmt.Errorf("failed to list cookies: %w", err)
	}

	now := s.now()
	evicted := 0
	for _, rec := range records {
		if !rec.Expired(now, s.retention) {
			continue
		}
		if err := s.repo.DeleteCookies(rec.Domain); err != nil {
			return evicted, fmt.Errorf("failed to evict cookies for %s: %w", rec.Domain, err)
		}
		evicted++
		s.logger.Info("Evicted expired cookies",
			zap.String("domain", rec.Domain),
			zap.Time("created_at", rec.CreatedAt))
	}
	return evicted, nil
}

// Purge removes the record of a domain
func (s *CookieStore) Purge(domainName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteCookies(domainName); err != nil {
		return fmt.Errorf("failed to purge cookies: %w", err)
	}
	s.logger.Info("Purged cookies", zap.String("domain", domainName))
	return nil
}

func (s *CookieStore) decrypt(creds *domain.Credentials) ([]byte, error) {
	if creds == nil {
		return nil, fmt.Errorf("no credentials")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := s.cipher.Decrypt(creds.Sealed())
	if err != nil {
		return nil, &domain.IntegrityError{Op: "decrypt", Err: err}
	}
	return jar, nil
}
