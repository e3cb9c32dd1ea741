package core

import (
	"context"
	"time"

	"codemother/schema"
	"pkt.systems/pslog"
)

// startPollLocked begins the bounded build-status poll for an app. The
// session owns the poll: LoadApp, Reset and CancelGeneration stop it.
func (s *Session) startPollLocked(appID schema.AppID) {
	s.stopPollLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel
	epoch := s.epoch
	go func() {
		// Release the derived context on every exit path, terminal
		// outcomes included.
		defer cancel()
		s.runPoll(ctx, appID, epoch)
	}()
}

func (s *Session) stopPollLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

// runPoll checks the build status at a fixed cadence until the build
// resolves, the attempt budget runs out, or the poll is cancelled.
// Transient status errors are logged and do not consume the outcome.
func (s *Session) runPoll(ctx context.Context, appID schema.AppID, epoch uint64) {
	log := s.logger.With("app", appID)
	log.Debug("build poll start", "interval", s.cfg.PollInterval, "max_attempts", s.cfg.PollMaxAttempts)
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()
	for attempt := 1; attempt <= s.cfg.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		status, err := s.api.BuildStatus(ctx, appID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug("build status check failed", "attempt", attempt, "err", err)
			timer.Reset(s.cfg.PollInterval)
			continue
		}
		switch status {
		case schema.BuildStatusDone:
			s.finishPoll(appID, epoch, log)
			return
		case schema.BuildStatusFailed:
			log.Warn("build failed", "attempt", attempt)
			s.clearPoll(epoch)
			return
		default:
			timer.Reset(s.cfg.PollInterval)
		}
	}
	log.Warn("build poll exhausted", "max_attempts", s.cfg.PollMaxAttempts)
	s.clearPoll(epoch)
}

// finishPoll refreshes the preview after a successful build.
func (s *Session) finishPoll(appID schema.AppID, epoch uint64, log pslog.Logger) {
	s.mu.Lock()
	if s.epoch != epoch || s.app == nil {
		s.mu.Unlock()
		return
	}
	s.pollCancel = nil
	s.previewURL = s.refreshedPreviewURLLocked()
	event := schema.StateEvent{AppID: appID, Type: schema.StatePreviewUpdated, PreviewURL: s.previewURL}
	s.mu.Unlock()
	log.Info("build done, preview refreshed")
	s.emitState(event)
}

func (s *Session) clearPoll(epoch uint64) {
	s.mu.Lock()
	if s.epoch == epoch {
		s.pollCancel = nil
	}
	s.mu.Unlock()
}
