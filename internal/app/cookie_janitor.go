package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/axolutly-go/pkg/logger"
)

// CookieJanitor periodically evicts expired cookie records while a
// long-running process keeps the store open
type CookieJanitor struct {
	store       *CookieStore
	interval    time.Duration
	multiLogger *logger.MultiLogger
	logger      *zap.Logger
	mu          sync.RWMutex
	running     bool
	stopChan    chan struct{}
	workerWg    sync.WaitGroup
}

// NewCookieJanitor creates a janitor sweeping store every interval
func NewCookieJanitor(store *CookieStore, interval time.Duration, multiLogger *logger.MultiLogger, logger *zap.Logger) *CookieJanitor {
	return &CookieJanitor{
		store:       store,
		interval:    interval,
		multiLogger: multiLogger,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start starts the sweep loop
func (j *CookieJanitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("cookie janitor already running")
	}
	j.running = true
	j.mu.Unlock()

	j.workerWg.Add(1)
	go j.sweep(ctx)
	return nil
}

// Stop stops the sweep loop and waits for it to exit
func (j *CookieJanitor) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return fmt.Errorf("cookie janitor not running")
	}
	j.running = false
	j.mu.Unlock()

	close(j.stopChan)
	j.workerWg.Wait()
	return nil
}

// IsRunning returns whether the janitor is running
func (j *CookieJanitor) IsRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.running
}

func (j *CookieJanitor) sweep(ctx context.Context) {
	defer j.workerWg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopChan:
			return
		case <-ticker.C:
			evicted, err := j.store.EvictExpired()
			if err != nil {
				j.logger.Warn("Cookie sweep failed", zap.Error(err))
				if j.multiLogger != nil {
					j.multiLogger.LogAppError("Failed to evict expired cookies", zap.Error(err))
				}
				continue
			}
			if evicted > 0 {
				j.logger.Info("Cookie sweep finished", zap.Int("evicted", evicted))
				if j.multiLogger != nil {
					j.multiLogger.LogSessionEvent("cookies_evicted", zap.Int("count", evicted))
				}
			}
		}
	}
}
