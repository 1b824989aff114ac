package mute

import (
	"time"
	"warden-bot/model"
)

// correlate looks for the moderator log entry that caused a mute-onset
// signal: a mute or tempmute case for the same subject created within
// the correlation window, scored by timestamp proximity. The best match
// is attached as metadata only; a miss records the session with reason
// "unknown" rather than guessing.
func (m *Machine) correlate(guildID, userID string, at time.Time) (*model.CaseRecord, error) {
	since := at.Add(-m.cfg.CorrelationWindow)
	candidates, err := m.store.RecentCasesForSubject(guildID, userID, since)
	if err != nil {
		return nil, err
	}

	var best *model.CaseRecord
	bestScore := -1.0
	for i := range candidates {
		c := candidates[i]
		if c.Kind != model.ActionMute && c.Kind != model.ActionTempMute {
			continue
		}
		delta := at.Sub(time.Unix(c.CreatedAt, 0))
		if delta < 0 {
			delta = -delta
		}
		if delta > m.cfg.CorrelationWindow {
			continue
		}
		// Closest in time wins; score decays linearly over the window.
		score := 1 - float64(delta)/float64(m.cfg.CorrelationWindow)
		if score > bestScore {
			bestScore = score
			best = &c
		}
	}
	return best, nil
}
