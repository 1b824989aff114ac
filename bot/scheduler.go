package bot

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
	"warden-bot/guard"
	"warden-bot/mod"
	"warden-bot/model"
	"warden-bot/mute"
	"warden-bot/scanner"
	"warden-bot/tasks"
	"warden-bot/utils/database/casestore"

	"github.com/bwmarrin/discordgo"
)

// BotProvider defines the methods the scheduler needs from the Bot.
type BotProvider interface {
	GetConfig() *model.Config
	GetStore() *casestore.Store
	GetService() *mod.Service
	GetDetector() *guard.Detector
	GetMachine() *mute.Machine
	GetSession() *discordgo.Session
}

// Scheduler drives temporary-action expiry and periodic maintenance.
// One instance runs per process; two processes independently enforcing
// expiries would race and double-apply reversal actions.
type Scheduler struct {
	bot  BotProvider
	done chan struct{}
	wg   sync.WaitGroup

	// scanning guards against overlapping expiry scans: if a scan is
	// still in progress when the next tick fires, the tick is skipped,
	// not queued.
	scanning atomic.Bool
}

// NewScheduler creates a new scheduler.
func NewScheduler(bot BotProvider) *Scheduler {
	return &Scheduler{
		bot:  bot,
		done: make(chan struct{}),
	}
}

// Start begins the expiry loop and the daily maintenance loop. The
// first expiry scan runs immediately as the restart catch-up: only the
// currently outstanding expirations are processed, there is no
// historical replay of missed runs.
func (s *Scheduler) Start() {
	s.wg.Add(2)

	go func() {
		defer s.wg.Done()
		log.Println("Running startup catch-up expiry scan...")
		s.RunExpiryScan()
		s.runExpiryLoop()
	}()

	go func() {
		defer s.wg.Done()
		s.runDailyLoop()
	}()
}

// Stop terminates the scheduler, allowing in-flight work the given
// grace period to finish.
func (s *Scheduler) Stop(grace time.Duration) {
	log.Println("Stopping scheduler...")
	close(s.done)

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		log.Println("Scheduler stopped.")
	case <-time.After(grace):
		log.Println("Scheduler stop timed out; abandoning in-flight work.")
	}
}

func (s *Scheduler) runExpiryLoop() {
	interval := s.bot.GetConfig().Scheduler.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunExpiryScan()
		case <-s.done:
			return
		}
	}
}

// RunExpiryScan reverses every active temporary case whose expiry has
// passed. Safe to invoke concurrently: overlapping calls are skipped,
// and the per-case status flip inside ExpireCase guarantees each case
// is reversed exactly once.
func (s *Scheduler) RunExpiryScan() {
	if !s.scanning.CompareAndSwap(false, true) {
		log.Println("Expiry scan still in progress, skipping tick.")
		return
	}
	defer s.scanning.Store(false)

	store := s.bot.GetStore()
	expired, err := store.ExpiredCases(time.Now())
	if err != nil {
		log.Printf("Error scanning expired cases: %v", err)
		return
	}

	for _, c := range expired {
		res, err := s.bot.GetService().ExpireCase(c)
		if err != nil {
			log.Printf("Error expiring case %d in guild %s: %v", c.CaseID, c.GuildID, err)
			continue
		}
		if res == nil {
			continue // claimed by an earlier scan
		}
		if res.EnforcementErr != nil {
			log.Printf("Case %d expired but reversal enforcement failed: %v", c.CaseID, res.EnforcementErr)
		} else {
			log.Printf("Case %d in guild %s expired, reversal case %d recorded.", c.CaseID, c.GuildID, res.CaseID)
		}
	}

	// Timeouts lapse without any gateway signal; sweep their sessions here.
	if released := s.bot.GetMachine().ReleaseLapsedTimeouts(); released > 0 {
		log.Printf("Released %d sessions with lapsed timeouts.", released)
	}
}

func (s *Scheduler) runDailyLoop() {
	runHour := s.bot.GetConfig().Scheduler.DailyRunHour

	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), runHour, 0, 0, 0, now.Location())
		if !now.Before(next) {
			next = next.Add(24 * time.Hour)
		}

		log.Printf("Next daily maintenance scheduled for: %v", next)
		select {
		case <-time.After(next.Sub(now)):
			s.runDailyMaintenance()
		case <-s.done:
			return
		}
	}
}

// runDailyMaintenance trims prison channel history, prunes stale threat
// windows and posts the daily moderation report.
func (s *Scheduler) runDailyMaintenance() {
	log.Println("Running daily maintenance...")
	cfg := s.bot.GetConfig()

	scanner.CleanPrisonChannels(s.bot.GetSession(), cfg)

	removed := s.bot.GetDetector().PruneIdle(time.Hour)
	if removed > 0 {
		log.Printf("Pruned %d idle threat windows.", removed)
	}

	for guildID, serverCfg := range cfg.ServerConfigs {
		if serverCfg.StatsChannelID == "" {
			continue
		}
		guildID, serverCfg := guildID, serverCfg
		go func() {
			if err := tasks.PostModerationReport(s.bot.GetSession(), s.bot.GetStore(), guildID, serverCfg.StatsChannelID, 24*time.Hour); err != nil {
				log.Printf("Failed to post moderation report for guild %s: %v", guildID, err)
			}
		}()
	}
}
