package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// reportTimeout bounds one report run
const reportTimeout = time.Minute

// ReportSender publishes the closed-auction report
type ReportSender interface {
	SendClosedReport(ctx context.Context) error
}

// ReportScheduler runs the closed-auction report on a cron schedule
type ReportScheduler struct {
	cron     *cron.Cron
	schedule string
	reports  ReportSender
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

type ReportSchedulerParams struct {
	// Schedule is a six-field cron expression, seconds first
	Schedule string
	Reports  ReportSender
	Logger   zerolog.Logger
}

func NewReportScheduler(params ReportSchedulerParams) *ReportScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &ReportScheduler{
		cron:     cron.New(cron.WithSeconds()),
		schedule: params.Schedule,
		reports:  params.Reports,
		logger:   params.Logger.With().Str("component", "report_scheduler").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the report job and starts the cron loop
func (s *ReportScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Report scheduler started")
	return nil
}

// Stop halts the cron loop once a running report has finished
func (s *ReportScheduler) Stop() {
	s.logger.Info().Msg("Stopping report scheduler")
	<-s.cron.Stop().Done()
	s.cancel()
}

func (s *ReportScheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, reportTimeout)
	defer cancel()

	start := time.Now()
	if err := s.reports.SendClosedReport(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send closed auction report")
		return
	}
	s.logger.Info().Dur("took", time.Since(start)).Msg("Closed auction report sent")
}
