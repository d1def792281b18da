package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// answerOnAnnounce returns an announce hook that answers every question
func answerOnAnnounce(gate **ConfirmationGate, yes bool) func(*domain.ConfirmationRequest) {
	return func(*domain.ConfirmationRequest) {
		go (*gate).Resolve(yes)
	}
}

func TestConfirmationGate_Answers(t *testing.T) {
	for _, tc := range []struct {
		name string
		yes  bool
		want domain.Decision
	}{
		{"yes", true, domain.DecisionYes},
		{"no", false, domain.DecisionNo},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var gate *ConfirmationGate
			gate = NewConfirmationGate(time.Second, answerOnAnnounce(&gate, tc.yes), zap.NewNop())

			decision, err := gate.Request(&domain.ConfirmationRequest{File: "/a.mp4"}, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, decision)
		})
	}
}

func TestConfirmationGate_TimesOut(t *testing.T) {
	gate := NewConfirmationGate(50*time.Millisecond, nil, zap.NewNop())

	start := time.Now()
	decision, err := gate.Request(&domain.ConfirmationRequest{File: "/a.mp4"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionTimedOut, decision)
	assert.Less(t, time.Since(start), time.Second)

	// A late answer is rejected, not saved for the next question
	assert.ErrorIs(t, gate.Resolve(true), ErrNoPendingConfirmation)
}

func TestConfirmationGate_AcceptedAnswerDecides(t *testing.T) {
	// answers land right around the deadline; whichever side wins, an
	// accepted answer must decide the question
	for i := 0; i < 200; i++ {
		resolved := make(chan error, 1)
		var gate *ConfirmationGate
		gate = NewConfirmationGate(time.Millisecond, func(*domain.ConfirmationRequest) {
			go func() {
				time.Sleep(time.Millisecond)
				resolved <- gate.Resolve(true)
			}()
		}, zap.NewNop())

		decision, err := gate.Request(&domain.ConfirmationRequest{File: "/a.mp4"}, nil)
		require.NoError(t, err)
		if err := <-resolved; err == nil {
			require.Equal(t, domain.DecisionYes, decision, "iteration %d", i)
		} else {
			require.ErrorIs(t, err, ErrNoPendingConfirmation)
			require.Equal(t, domain.DecisionTimedOut, decision, "iteration %d", i)
		}
	}
}

func TestConfirmationGate_Cancel(t *testing.T) {
	cancel := make(chan struct{})
	gate := NewConfirmationGate(time.Minute, func(*domain.ConfirmationRequest) {
		close(cancel)
	}, zap.NewNop())

	_, err := gate.Request(&domain.ConfirmationRequest{File: "/a.mp4"}, cancel)
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestConfirmationGate_OneOutstanding(t *testing.T) {
	announced := make(chan struct{})
	gate := NewConfirmationGate(time.Minute, func(*domain.ConfirmationRequest) {
		close(announced)
	}, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	var decision domain.Decision
	go func() {
		defer wg.Done()
		decision, _ = gate.Request(&domain.ConfirmationRequest{File: "/a.mp4"}, nil)
	}()
	<-announced

	_, err := gate.Request(&domain.ConfirmationRequest{File: "/b.mp4"}, nil)
	assert.ErrorIs(t, err, ErrConfirmationPending)

	require.NoError(t, gate.Resolve(false))
	wg.Wait()
	assert.Equal(t, domain.DecisionNo, decision)
}

func TestConfirmationGate_ResolveWithoutQuestion(t *testing.T) {
	gate := NewConfirmationGate(time.Second, nil, zap.NewNop())
	assert.ErrorIs(t, gate.Resolve(true), ErrNoPendingConfirmation)
}

func TestCancellationToken(t *testing.T) {
	token := NewCancellationToken()
	assert.False(t, token.IsCancelled())

	select {
	case <-token.Done():
		t.Fatal("done closed before cancel")
	default:
	}

	token.Cancel()
	token.Cancel()
	assert.True(t, token.IsCancelled())
	<-token.Done()
}
