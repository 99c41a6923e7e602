package scheduler

import (
	"context"
	"log/slog"

	"github.com/h1v3-io/leadflow/internal/session"
	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// BookingJob is the name of the booking retry job.
const BookingJob = "booking-retry"

// SessionLister lists sessions matching a filter.
type SessionLister interface {
	List(ctx context.Context, filter session.Filter) ([]*protocol.Session, error)
}

// BookingResumer completes the booking of a qualified session.
type BookingResumer interface {
	ResumeBooking(ctx context.Context, sessionID string) (string, bool, error)
}

// Sweeper retries bookings for sessions that collected every field but
// whose calendar or CRM step failed.
type Sweeper struct {
	sessions SessionLister
	resumer  BookingResumer
	logger   *slog.Logger
	batch    int
}

// NewSweeper creates a sweeper that handles up to batch sessions per run
// (0 = no limit).
func NewSweeper(sessions SessionLister, resumer BookingResumer, batch int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{sessions: sessions, resumer: resumer, batch: batch, logger: logger}
}

// SweepResult counts what one run did.
type SweepResult struct {
	Checked int
	Booked  int
	Failed  int
}

// Run checks pending sessions once.
func (s *Sweeper) Run(ctx context.Context) SweepResult {
	var res SweepResult

	filter := session.PendingBookings()
	filter.Limit = s.batch
	pending, err := s.sessions.List(ctx, filter)
	if err != nil {
		s.logger.Error("list pending bookings", "error", err)
		return res
	}

	for _, sess := range pending {
		if ctx.Err() != nil {
			break
		}
		if !sess.Fields.Complete() {
			continue
		}
		res.Checked++
		_, booked, err := s.resumer.ResumeBooking(ctx, sess.ID)
		switch {
		case err != nil:
			res.Failed++
			s.logger.Warn("booking retry failed", "session_id", sess.ID, "error", err)
		case booked:
			res.Booked++
		}
	}

	if res.Checked > 0 {
		s.logger.Info("booking sweep finished", "checked", res.Checked, "booked", res.Booked, "failed", res.Failed)
	}
	return res
}

// Register adds the sweeper to sched under BookingJob.
func (s *Sweeper) Register(sched *Scheduler, schedule string) error {
	return sched.AddJob(BookingJob, schedule, func(ctx context.Context) { s.Run(ctx) })
}
