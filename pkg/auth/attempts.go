package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/forest6511/pinvault/internal/fsutil"
)

// Failed-attempt cooldown thresholds: 5 failures -> 30s, 10 -> 5min,
// 20 -> 30min. A 4-digit PIN has 10^4 candidates, so throttling matters.
const (
	CooldownThreshold1 = 5
	CooldownThreshold2 = 10
	CooldownThreshold3 = 20
	CooldownDuration1  = 30 * time.Second
	CooldownDuration2  = 5 * time.Minute
	CooldownDuration3  = 30 * time.Minute
)

// AttemptState tracks failed PIN attempts.
type AttemptState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

func (a *Authenticator) loadAttempts() (*AttemptState, error) {
	data, err := os.ReadFile(a.attemptsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &AttemptState{}, nil
		}
		return nil, fmt.Errorf("auth: failed to read attempt state: %w", err)
	}

	var state AttemptState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupted file - start over
		return &AttemptState{}, nil
	}
	return &state, nil
}

func (a *Authenticator) saveAttempts(state *AttemptState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("auth: failed to marshal attempt state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(a.attemptsPath, data, fsutil.FileMode); err != nil {
		return fmt.Errorf("auth: failed to write attempt state: %w", err)
	}
	return nil
}

func (a *Authenticator) clearAttempts() error {
	if a.attemptsPath == "" {
		return nil
	}
	err := os.Remove(a.attemptsPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auth: failed to clear attempt state: %w", err)
	}
	return nil
}

// checkCooldown returns the remaining cooldown, or 0 if attempts are allowed.
func (a *Authenticator) checkCooldown() (time.Duration, error) {
	if a.attemptsPath == "" {
		return 0, nil
	}
	state, err := a.loadAttempts()
	if err != nil {
		return 0, err
	}
	now := a.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now), nil
	}
	return 0, nil
}

func (a *Authenticator) recordFailure() error {
	if a.attemptsPath == "" {
		return nil
	}
	state, err := a.loadAttempts()
	if err != nil {
		return err
	}

	now := a.now()
	state.FailedAttempts++
	state.LastAttempt = now

	switch {
	case state.FailedAttempts >= CooldownThreshold3:
		state.CooldownUntil = now.Add(CooldownDuration3)
	case state.FailedAttempts >= CooldownThreshold2:
		state.CooldownUntil = now.Add(CooldownDuration2)
	case state.FailedAttempts >= CooldownThreshold1:
		state.CooldownUntil = now.Add(CooldownDuration1)
	}
	return a.saveAttempts(state)
}

// RemainingCooldown returns how long Verify will keep refusing attempts.
func (a *Authenticator) RemainingCooldown() time.Duration {
	d, err := a.checkCooldown()
	if err != nil {
		return 0
	}
	return d
}
