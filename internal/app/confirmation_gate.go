package app

import (
	"errors"
	"sync"
	"time"

	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

var (
	// ErrConfirmationPending is returned when a question is already outstanding
	ErrConfirmationPending = errors.New("a confirmation is already pending")

	// ErrNoPendingConfirmation is returned when an answer arrives with no question
	ErrNoPendingConfirmation = errors.New("no confirmation is pending")
)

// ConfirmationGate lets a worker ask a human a yes/no question and block until
// the answer arrives, the question times out or the session is cancelled.
type ConfirmationGate struct {
	timeout  time.Duration
	announce func(*domain.ConfirmationRequest)
	logger   *zap.Logger

	mu      sync.Mutex
	pending *domain.ConfirmationRequest
	answers chan bool
}

// NewConfirmationGate creates a gate whose questions expire after timeout.
// announce, if set, is called once a question is registered and can be
// answered.
func NewConfirmationGate(timeout time.Duration, announce func(*domain.ConfirmationRequest), logger *zap.Logger) *ConfirmationGate {
	return &ConfirmationGate{
		timeout:  timeout,
		announce: announce,
		logger:   logger,
		answers:  make(chan bool, 1),
	}
}

// Request asks q and blocks for the answer. The returned error is
// ErrCancelled when cancel fires first.
func (g *ConfirmationGate) Request(q *domain.ConfirmationRequest, cancel <-chan struct{}) (domain.Decision, error) {
	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		return "", ErrConfirmationPending
	}
	g.pending = q
	g.mu.Unlock()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	if g.announce != nil {
		g.announce(q)
	}

	var yes, answered, cancelled bool
	select {
	case yes = <-g.answers:
		answered = true
	case <-timer.C:
	case <-cancel:
		cancelled = true
	}

	// Close the question. An answer Resolve accepted before this point
	// still counts; later ones get ErrNoPendingConfirmation.
	g.mu.Lock()
	g.pending = nil
	if !answered {
		select {
		case yes = <-g.answers:
			answered = true
		default:
		}
	}
	g.mu.Unlock()

	switch {
	case cancelled:
		return "", domain.ErrCancelled
	case !answered:
		g.logger.Info("Replace confirmation timed out",
			zap.String("file", q.File),
			zap.Duration("timeout", g.timeout))
		return domain.DecisionTimedOut, nil
	case yes:
		g.logger.Info("Replace confirmed", zap.String("file", q.File))
		return domain.DecisionYes, nil
	default:
		g.logger.Info("Replace declined by user", zap.String("file", q.File))
		return domain.DecisionNo, nil
	}
}

// Resolve answers the outstanding question. A nil error means the answer
// decides the question.
func (g *ConfirmationGate) Resolve(yes bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return ErrNoPendingConfirmation
	}
	select {
	case g.answers <- yes:
		return nil
	default:
		// already answered, not yet consumed
		return ErrNoPendingConfirmation
	}
}
