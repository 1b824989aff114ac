package mute

import (
	"log"
	"sync"
	"time"
	"warden-bot/model"
	"warden-bot/utils"
	"warden-bot/utils/database/casestore"
)

// Machine derives each user's FREE/MUTED state from asynchronous
// platform signals (muted-role changes, timeouts) and writes through to
// mute sessions in the case store. It owns the authoritative in-memory
// index of currently muted users, rebuilt from the store at startup.
//
// All transitions for a given user are serialized through a keyed lock,
// which enforces the at-most-one-active-session invariant; transitions
// for different users proceed concurrently.
type Machine struct {
	store *casestore.Store
	cfg   model.MuteConfig
	locks *utils.KeyedLock

	mu     sync.Mutex
	active map[string]*openSession // guildID:userID -> open session
	repeat map[string]bool         // guildID:userID -> repeat offender flag

	now func() time.Time
}

// openSession is the in-memory view of one active mute session.
type openSession struct {
	sessionID     int64
	guildID       string
	userID        string
	username      string
	reason        string
	caseID        int64
	mutedAtSource int64     // advisory external timestamp
	mutedAtLocal  time.Time // monotonic local receipt, authoritative for duration
	correlated    bool
	timeoutUntil  time.Time // set when a platform timeout opened the session

	// Close that arrived before the insert retry landed; the retry
	// finishes the row with these instead of leaving it active.
	closed         bool
	closedAt       int64
	closedDuration int64
	closedBy       string
}

// New creates a mute state machine over the given store.
func New(store *casestore.Store, cfg model.MuteConfig) *Machine {
	if cfg.RepeatOffenderThreshold <= 0 {
		cfg.RepeatOffenderThreshold = 5
	}
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = time.Minute
	}
	return &Machine{
		store:  store,
		cfg:    cfg,
		locks:  utils.NewKeyedLock(),
		active: make(map[string]*openSession),
		repeat: make(map[string]bool),
		now:    time.Now,
	}
}

func key(guildID, userID string) string {
	return guildID + ":" + userID
}

// Rebuild loads the open sessions from the store into the in-memory
// index. Called once at startup so state survives process restarts.
func (m *Machine) Rebuild() error {
	sessions, err := m.store.ActiveSessions()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range sessions {
		m.active[key(sess.GuildID, sess.UserID)] = &openSession{
			sessionID:     sess.SessionID,
			guildID:       sess.GuildID,
			userID:        sess.UserID,
			username:      sess.Username,
			reason:        sess.Reason,
			caseID:        sess.CaseID,
			mutedAtSource: sess.MutedAt,
			// Local receipt time is lost across restarts; duration
			// falls back to the stored timestamp, clamped to zero.
			correlated: sess.CaseID != 0,
		}
	}
	log.Printf("mute: rebuilt index with %d active sessions", len(sessions))
	return nil
}

// HandleRoleChange feeds a muted-role assignment or removal into the
// machine.
func (m *Machine) HandleRoleChange(sig model.RoleChangeSignal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if sig.Added {
		return m.onset(sig.GuildID, sig.UserID, sig.Username, sig.Timestamp, sig.ReceivedAt, time.Time{})
	}
	return m.offset(sig.GuildID, sig.UserID, "", sig.ReceivedAt)
}

// HandleTimeoutChange feeds a platform timeout change into the machine.
// A future expiry is a mute onset; a cleared or elapsed one is an offset.
func (m *Machine) HandleTimeoutChange(sig model.TimeoutChangeSignal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if sig.Until != nil && sig.Until.After(m.now()) {
		return m.onset(sig.GuildID, sig.UserID, sig.Username, m.now().Unix(), sig.ReceivedAt, *sig.Until)
	}
	return m.offset(sig.GuildID, sig.UserID, "", sig.ReceivedAt)
}

// ForceRelease closes a user's session on behalf of the expiry
// scheduler or a moderator command.
func (m *Machine) ForceRelease(guildID, userID, unmutedBy string) error {
	return m.offset(guildID, userID, unmutedBy, m.now())
}

// ReleaseLapsedTimeouts closes sessions opened by a platform timeout
// whose deadline has passed. The gateway emits no member update when a
// timeout lapses on its own, so the expiry scheduler sweeps these on
// its tick.
func (m *Machine) ReleaseLapsedTimeouts() int {
	now := m.now()
	type lapsed struct{ guildID, userID string }
	var due []lapsed
	m.mu.Lock()
	for _, sess := range m.active {
		if !sess.timeoutUntil.IsZero() && sess.timeoutUntil.Before(now) {
			due = append(due, lapsed{sess.guildID, sess.userID})
		}
	}
	m.mu.Unlock()

	for _, l := range due {
		if err := m.offset(l.guildID, l.userID, model.SystemActorID, now); err != nil {
			log.Printf("mute: failed to release lapsed timeout for %s in %s: %v", l.userID, l.guildID, err)
		}
	}
	return len(due)
}

// IsMuted reports whether the user currently has an open session.
func (m *Machine) IsMuted(guildID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[key(guildID, userID)]
	return ok
}

// IsRepeatOffender reports whether the user's lifetime session count has
// reached the configured threshold. The flag is computed from the store
// on the first query after startup, then kept current by session closes.
func (m *Machine) IsRepeatOffender(guildID, userID string) bool {
	k := key(guildID, userID)
	m.mu.Lock()
	flag, known := m.repeat[k]
	m.mu.Unlock()
	if known {
		return flag
	}

	count, err := m.store.SessionCount(guildID, userID)
	if err != nil {
		log.Printf("mute: failed to count sessions for %s in %s: %v", userID, guildID, err)
		return false
	}
	flag = count >= m.cfg.RepeatOffenderThreshold
	m.mu.Lock()
	m.repeat[k] = flag
	m.mu.Unlock()
	return flag
}

// ActiveCount returns the number of open sessions across all guilds.
func (m *Machine) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// onset transitions FREE -> MUTED. A repeated onset for an already
// muted user is an idempotent no-op: no second session is opened.
func (m *Machine) onset(guildID, userID, username string, sourceTS int64, receivedAt time.Time, timeoutUntil time.Time) error {
	k := key(guildID, userID)
	m.locks.Lock(k)
	defer m.locks.Unlock(k)

	m.mu.Lock()
	if sess, muted := m.active[k]; muted {
		// A timeout extension moves the sweep deadline; a role-opened
		// session has no deadline and keeps none.
		if !timeoutUntil.IsZero() && !sess.timeoutUntil.IsZero() {
			sess.timeoutUntil = timeoutUntil
		}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if receivedAt.IsZero() {
		receivedAt = m.now()
	}

	sess := &openSession{
		guildID:       guildID,
		userID:        userID,
		username:      username,
		reason:        model.UnknownReason,
		mutedAtSource: sourceTS,
		mutedAtLocal:  receivedAt,
		timeoutUntil:  timeoutUntil,
	}

	// Best-effort correlation: a failing lookup never blocks the
	// transition, it is retried on the offset.
	if match, err := m.correlate(guildID, userID, receivedAt); err != nil {
		log.Printf("mute: correlation lookup failed for %s in %s: %v", userID, guildID, err)
	} else if match != nil {
		sess.reason = match.Reason
		sess.caseID = match.CaseID
		sess.correlated = true
	}

	record := model.MuteSession{
		GuildID:  guildID,
		UserID:   userID,
		Username: username,
		Reason:   sess.reason,
		MutedAt:  sourceTS,
		CaseID:   sess.caseID,
		MutedBy:  m.actorForCase(guildID, sess.caseID),
		IsActive: true,
	}
	if sess.correlated {
		if c, err := m.store.GetCase(guildID, sess.caseID); err == nil {
			record.TriggerContent = c.TriggerContent
		}
	}

	sessionID, err := m.store.OpenSession(record)
	if err != nil {
		// Losing an audit record is worse than a delayed one: keep the
		// in-memory transition and retry the write in the background.
		log.Printf("mute: failed to persist session for %s in %s: %v", userID, guildID, err)
		m.retrySessionOpen(sess, record)
	} else {
		sess.sessionID = sessionID
	}

	m.mu.Lock()
	m.active[k] = sess
	m.mu.Unlock()
	return nil
}

// offset transitions MUTED -> FREE. Offsets for users who are not muted
// are no-ops.
func (m *Machine) offset(guildID, userID, unmutedBy string, receivedAt time.Time) error {
	k := key(guildID, userID)
	m.locks.Lock(k)
	defer m.locks.Unlock(k)

	m.mu.Lock()
	sess, muted := m.active[k]
	if !muted {
		m.mu.Unlock()
		return nil
	}
	delete(m.active, k)
	sessionID := sess.sessionID
	m.mu.Unlock()

	if receivedAt.IsZero() {
		receivedAt = m.now()
	}

	// Duration comes from monotonic local receipt times, never from the
	// possibly-skewed external timestamps, and is clamped to zero.
	var duration int64
	if !sess.mutedAtLocal.IsZero() {
		duration = int64(receivedAt.Sub(sess.mutedAtLocal).Seconds())
	} else if sess.mutedAtSource > 0 {
		duration = receivedAt.Unix() - sess.mutedAtSource
	}
	if duration < 0 {
		duration = 0
	}

	if sessionID == 0 {
		// The onset's insert has not landed yet. Leave the close on the
		// session so the retry goroutine finishes the row instead of
		// persisting an active session for a user who is already free.
		m.mu.Lock()
		sess.closed = true
		sess.closedAt = receivedAt.UTC().Unix()
		sess.closedDuration = duration
		sess.closedBy = unmutedBy
		m.mu.Unlock()

		m.updateRepeatFlag(guildID, userID)
		return nil
	}

	// Opportunistic retry of a correlation that failed on onset.
	if !sess.correlated {
		since := sess.mutedAtLocal
		if since.IsZero() {
			since = time.Unix(sess.mutedAtSource, 0)
		}
		if match, err := m.correlate(guildID, userID, since); err == nil && match != nil {
			if err := m.store.AttachSessionCase(sessionID, match.CaseID, match.Reason, match.TriggerContent, match.ActorID); err != nil {
				log.Printf("mute: failed to attach correlated case %d to session %d: %v", match.CaseID, sessionID, err)
			}
		}
	}

	if err := m.store.CloseSession(sessionID, receivedAt.UTC().Unix(), duration, unmutedBy); err != nil {
		log.Printf("mute: failed to close session %d: %v", sessionID, err)
		go m.retryClose(sessionID, receivedAt.UTC().Unix(), duration, unmutedBy)
	}

	m.updateRepeatFlag(guildID, userID)
	return nil
}

// updateRepeatFlag recomputes the lifetime session count after a close.
func (m *Machine) updateRepeatFlag(guildID, userID string) {
	count, err := m.store.SessionCount(guildID, userID)
	if err != nil {
		log.Printf("mute: failed to count sessions for %s in %s: %v", userID, guildID, err)
		return
	}
	m.mu.Lock()
	m.repeat[key(guildID, userID)] = count >= m.cfg.RepeatOffenderThreshold
	m.mu.Unlock()
}

func (m *Machine) actorForCase(guildID string, caseID int64) string {
	if caseID == 0 {
		return ""
	}
	c, err := m.store.GetCase(guildID, caseID)
	if err != nil {
		return ""
	}
	return c.ActorID
}

// retrySessionOpen retries a failed session insert with bounded backoff.
// The user may have been released while the insert was pending, so each
// attempt runs under the per-user lock and a close recorded in the
// meantime is applied to the fresh row immediately.
func (m *Machine) retrySessionOpen(sess *openSession, record model.MuteSession) {
	go func() {
		k := key(record.GuildID, record.UserID)
		delay := time.Second
		for attempt := 0; attempt < 5; attempt++ {
			time.Sleep(delay)
			delay *= 2

			m.locks.Lock(k)
			id, err := m.store.OpenSession(record)
			if err != nil {
				m.locks.Unlock(k)
				continue
			}

			m.mu.Lock()
			sess.sessionID = id
			closed := sess.closed
			closedAt, closedDuration, closedBy := sess.closedAt, sess.closedDuration, sess.closedBy
			m.mu.Unlock()

			if closed {
				if cerr := m.store.CloseSession(id, closedAt, closedDuration, closedBy); cerr != nil {
					log.Printf("mute: failed to close retried session %d: %v", id, cerr)
				}
			}
			m.locks.Unlock(k)
			return
		}
		log.Printf("mute: giving up persisting session for %s in %s", record.UserID, record.GuildID)
	}()
}

func (m *Machine) retryClose(sessionID, unmutedAt, duration int64, unmutedBy string) {
	delay := time.Second
	for attempt := 0; attempt < 5; attempt++ {
		time.Sleep(delay)
		delay *= 2
		if err := m.store.CloseSession(sessionID, unmutedAt, duration, unmutedBy); err == nil {
			return
		}
	}
	log.Printf("mute: giving up closing session %d", sessionID)
}
