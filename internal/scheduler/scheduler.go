package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"FXForecaster/internal/artifact"
	"FXForecaster/internal/notifier"
	"FXForecaster/internal/recorder"
	"FXForecaster/internal/retrain"
)

// Retrainer runs one retrain cycle.
type Retrainer interface {
	Run(ctx context.Context) (*artifact.Artifact, error)
	LastRun() *recorder.RetrainRun
}

// Sender delivers a text message; *notifier.TelegramNotifier satisfies it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs retrains on a cron schedule and on demand.
type Scheduler struct {
	Cron     *cron.Cron
	Retrain  Retrainer
	Notifier Sender // optional
	Recorder recorder.Recorder
	Status   func() string // reply for the status command
	Ctx      context.Context

	log zerolog.Logger
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NewScheduler creates a scheduler whose cron specs carry a seconds field and
// are evaluated in loc. A retrain that is still running when the next tick
// fires makes that tick a no-op.
func NewScheduler(ctx context.Context, r Retrainer, sender Sender, rec recorder.Recorder, loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	l := log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: l}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Retrain:  r,
		Notifier: sender,
		Recorder: rec,
		Ctx:      ctx,
		log:      l,
	}
}

// Register adds the retrain job.
func (s *Scheduler) Register(retrainCron string) error {
	if _, err := s.Cron.AddFunc(retrainCron, s.retrainTask); err != nil {
		return fmt.Errorf("register retrain task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the scheduler and waits for a running retrain to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunRetrainNow executes the retrain task immediately.
func (s *Scheduler) RunRetrainNow() error {
	return s.retrain()
}

func (s *Scheduler) retrainTask() {
	_ = s.retrain()
}

func (s *Scheduler) retrain() error {
	s.log.Info().Msg("running retrain task")
	_, err := s.Retrain.Run(s.Ctx)
	if errors.Is(err, retrain.ErrRunning) {
		s.log.Warn().Msg("retrain already in progress, skipped")
		return err
	}
	if run := s.Retrain.LastRun(); run != nil {
		s.trySend(notifier.FormatRetrain(run))
	}
	return err
}

// HandleCommand processes a chat command and returns the reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/retrain":
		go func() {
			if err := s.retrain(); errors.Is(err, retrain.ErrRunning) {
				s.trySend("Retrain already in progress.")
			}
		}()
		return "Retrain requested."
	case "/status":
		if s.Status == nil {
			return "No status available."
		}
		return s.Status()
	case "/history":
		runs, err := s.Recorder.RecentRetrains(5)
		if err != nil {
			return fmt.Sprintf("Could not read retrain history: %v", err)
		}
		if len(runs) == 0 {
			return "No retrains recorded."
		}
		var b strings.Builder
		for _, r := range runs {
			fmt.Fprintf(&b, "%s %s %s %s\n", r.StartedAt.Format("2006-01-02 15:04"), r.Outcome, r.Stage, r.Version)
		}
		return b.String()
	default:
		return "Commands:\n• /status\n• /retrain\n• /history"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error().Err(err).Msg("send notification")
	}
}
