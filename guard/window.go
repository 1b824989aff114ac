package guard

import (
	"sync"
	"time"
	"warden-bot/model"

	"github.com/RussellLuo/slidingwindow"
)

// subjectKey identifies one threat window: a signal type observed for
// one subject (user or channel) in one guild.
type subjectKey struct {
	GuildID string
	Signal  model.SignalType
	Subject string
}

// threatWindow accumulates weighted event counts for one subject. The
// window is ephemeral: never persisted, rebuilt from live traffic. A
// breach hard-resets the count and advances the epoch, so a second
// breach is always a new, independent one.
type threatWindow struct {
	mu       sync.Mutex
	win      slidingwindow.Window
	stop     slidingwindow.StopFunc
	epoch    uint64
	lastSeen time.Time
}

func newThreatWindow() *threatWindow {
	win, stop := slidingwindow.NewLocalWindow()
	return &threatWindow{win: win, stop: stop}
}

// observe adds one weighted event and reports whether the aggregate
// reached the threshold. On a breach the count resets to zero; gradual
// decay would invite an immediate re-trigger storm while the protective
// action is still being applied.
func (w *threatWindow) observe(now time.Time, rule model.SignalRule) (fired bool, epoch uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSeen = now
	if now.Sub(w.win.Start()) >= rule.Window {
		w.win.Reset(now, 0)
		w.epoch++
	}
	w.win.AddCount(rule.Weight)
	if w.win.Count() >= rule.Threshold {
		firedEpoch := w.epoch
		w.win.Reset(now, 0)
		w.epoch++
		return true, firedEpoch
	}
	return false, w.epoch
}

func (w *threatWindow) idleSince(cutoff time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen.Before(cutoff)
}

func (w *threatWindow) close() {
	if w.stop != nil {
		w.stop()
	}
}
