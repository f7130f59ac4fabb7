package server

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/notify"
	"github.com/scanmark/scanmark/internal/task"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the
// duration until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// SweepLoop periodically returns stale Out tasks to the pool, on the
// configured cron schedule. A zero stale-claim TTL disables the sweep.
// Blocks until ctx is cancelled.
func SweepLoop(ctx context.Context, gdb *gorm.DB, cfg *config.Config) {
	ttl := time.Duration(cfg.Marking.StaleClaimTTLMinute) * time.Minute
	if ttl <= 0 {
		return
	}
	for {
		wait := nextCronDuration(cfg.Marking.SweepCron)
		if wait <= 0 {
			log.Printf("server: bad sweep cron %q, sweep disabled", cfg.Marking.SweepCron)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		swept, err := task.SweepStaleClaims(gdb, ttl)
		if err != nil {
			log.Printf("server: stale-claim sweep: %v", err)
			continue
		}
		if swept > 0 {
			log.Printf("server: returned %d stale claims to the pool", swept)
		}
	}
}

// DigestLoop posts a marking-progress digest on the configured cron
// schedule. An empty schedule disables it. Blocks until ctx is
// cancelled.
func DigestLoop(ctx context.Context, gdb *gorm.DB, cfg *config.Config, notifier *notify.Notifier) {
	if cfg.Notify.DigestCron == "" || notifier == nil {
		return
	}
	for {
		wait := nextCronDuration(cfg.Notify.DigestCron)
		if wait <= 0 {
			log.Printf("server: bad digest cron %q, digest disabled", cfg.Notify.DigestCron)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		entries, err := buildDigest(gdb, cfg)
		if err != nil {
			log.Printf("server: build digest: %v", err)
			continue
		}
		notifier.Digest(ctx, entries)
	}
}

// buildDigest computes the per-question progress lines for a digest.
func buildDigest(gdb *gorm.DB, cfg *config.Config) ([]notify.DigestEntry, error) {
	entries := make([]notify.DigestEntry, 0, len(cfg.Marking.Questions))
	for _, q := range cfg.Marking.Questions {
		var total, marked int64
		if err := gdb.Model(&models.Task{}).Where("question_index = ?", q.Index).Count(&total).Error; err != nil {
			return nil, err
		}
		if err := gdb.Model(&models.Task{}).
			Where("question_index = ? AND status = ?", q.Index, models.TaskComplete).
			Count(&marked).Error; err != nil {
			return nil, err
		}
		entries = append(entries, notify.DigestEntry{
			Label:  q.Label,
			Total:  int(total),
			Marked: int(marked),
		})
	}
	return entries, nil
}
