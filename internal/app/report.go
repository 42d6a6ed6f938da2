package app

import (
	"context"
	"time"

	"auction-lifecycle-service/internal/domain/event"
	"auction-lifecycle-service/internal/domain/shared"
	"auction-lifecycle-service/internal/pkg/clock"
	"auction-lifecycle-service/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// DefaultReportWindow is how far back the closed-auction report looks
const DefaultReportWindow = 24 * time.Hour

// ReportService collects recently closed auctions with their bids and
// ships them to the metrics service.
type ReportService struct {
	auctionRepo outbound.AuctionRepository
	bidRepo     outbound.BidRepository
	notifier    *Notifier
	clock       clock.Clock
	window      time.Duration
	logger      zerolog.Logger
}

type ReportServiceParams struct {
	AuctionRepo outbound.AuctionRepository
	BidRepo     outbound.BidRepository
	Notifier    *Notifier
	Clock       clock.Clock
	Window      time.Duration
	Logger      zerolog.Logger
}

func NewReportService(params ReportServiceParams) *ReportService {
	c := params.Clock
	if c == nil {
		c = clock.NewRealClock()
	}
	window := params.Window
	if window <= 0 {
		window = DefaultReportWindow
	}
	return &ReportService{
		auctionRepo: params.AuctionRepo,
		bidRepo:     params.BidRepo,
		notifier:    params.Notifier,
		clock:       c,
		window:      window,
		logger:      params.Logger.With().Str("component", "report_service").Logger(),
	}
}

// BuildClosedReport lists the auctions closed in the window ending now
func (s *ReportService) BuildClosedReport(ctx context.Context) (*event.ClosedReport, error) {
	now := s.clock.Now().UTC()
	window := shared.TimeWindow{From: now.Add(-s.window), To: now}

	auctions, err := s.auctionRepo.ListClosedBetween(ctx, window)
	if err != nil {
		return nil, err
	}

	report := &event.ClosedReport{
		Auctions: make([]event.ClosedAuction, 0, len(auctions)),
		From:     window.From.Format(time.RFC3339),
		To:       window.To.Format(time.RFC3339),
	}
	for _, a := range auctions {
		bids, err := s.bidRepo.GetByAuctionID(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		report.Auctions = append(report.Auctions, event.ClosedAuction{Auction: a, Bids: bids})
	}

	return report, nil
}

// SendClosedReport builds the report and publishes it. Empty reports are
// not sent.
func (s *ReportService) SendClosedReport(ctx context.Context) error {
	report, err := s.BuildClosedReport(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to build closed auction report")
		return err
	}

	if len(report.Auctions) == 0 {
		s.logger.Debug().Str("from", report.From).Str("to", report.To).Msg("No auctions closed in window")
		return nil
	}

	if err := s.notifier.PublishReport(ctx, *report); err != nil {
		s.logger.Error().Err(err).Msg("Failed to publish closed auction report")
		return err
	}

	s.logger.Info().
		Int("auctions", len(report.Auctions)).
		Str("from", report.From).
		Str("to", report.To).
		Msg("Closed auction report sent")
	return nil
}
