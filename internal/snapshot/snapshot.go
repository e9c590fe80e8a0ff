// Package snapshot runs the periodic reconstruction cycle: refresh the
// fleet, propagate discharges downstream, publish and archive the result,
// and alert on newly started discharges.
package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/cso-impact-service/internal/domain"
	"github.com/couchcryptid/cso-impact-service/internal/observability"
)

// Publisher delivers impacted-node snapshots to the sink topic.
type Publisher interface {
	PublishImpact(ctx context.Context, takenAt time.Time, nodes []domain.ImpactedNode) error
}

// Store archives discharge rows and per-cycle summaries.
type Store interface {
	RecordDischarges(ctx context.Context, rows []domain.DischargeRow) error
	SaveSnapshot(ctx context.Context, takenAt time.Time, operator string, tracked, discharging, recent, impacted int) error
}

// Notifier alerts on monitors that newly started discharging.
type Notifier interface {
	NotifyDischargeStart(monitors []*domain.Monitor)
}

// Service orchestrates the snapshot loop. Publisher, Store and Notifier are
// all optional; a nil dependency simply skips that step.
type Service struct {
	fleet         *domain.Fleet
	publisher     Publisher
	store         Store
	notifier      Notifier
	logger        *slog.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	includeRecent bool

	ready atomic.Bool

	// cycleMu serializes snapshot cycles against cron-triggered bulk
	// history refreshes.
	cycleMu sync.Mutex

	// Discharging set of the previous cycle. The first cycle only seeds
	// the baseline so a restart does not re-alert every ongoing spill.
	prevDischarging map[string]bool
}

// New creates the snapshot service around a fleet.
func New(fleet *domain.Fleet, interval time.Duration, includeRecent bool, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		fleet:         fleet,
		logger:        logger,
		metrics:       metrics,
		interval:      interval,
		includeRecent: includeRecent,
	}
}

// WithPublisher attaches the Kafka sink.
func (s *Service) WithPublisher(p Publisher) *Service { s.publisher = p; return s }

// WithStore attaches the archive.
func (s *Service) WithStore(st Store) *Service { s.store = st; return s }

// WithNotifier attaches the alert channel.
func (s *Service) WithNotifier(n Notifier) *Service { s.notifier = n; return s }

// CheckReadiness returns nil once at least one snapshot cycle has completed.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no snapshot cycle has completed yet")
	}
	return nil
}

// Run executes the snapshot loop until the context is cancelled. Failed
// cycles retry with exponential backoff (200ms doubling to 5s) instead of
// waiting out the full interval.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("snapshot loop started",
		"operator", s.fleet.Operator(),
		"interval", s.interval,
		"include_recent", s.includeRecent,
	)
	s.metrics.ServiceRunning.Set(1)
	defer s.metrics.ServiceRunning.Set(0)

	const initialBackoff = 200 * time.Millisecond
	const maxBackoff = 5 * time.Second
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshot loop stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("snapshot cycle failed", "error", err)
			s.metrics.RefreshErrors.Inc()
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if !sleepWithContext(ctx, s.interval) {
			return nil
		}
	}
}

// RunCycle performs one refresh-propagate-publish cycle.
func (s *Service) RunCycle(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	if err := s.fleet.Refresh(ctx); err != nil {
		return err
	}
	s.metrics.FleetRefreshes.Inc()

	monitors := s.fleet.Monitors()
	discharging := s.fleet.Discharging()
	recent := s.fleet.RecentlyDischarging()
	s.metrics.MonitorsTracked.Set(float64(len(monitors)))
	s.metrics.MonitorsDischarging.Set(float64(len(discharging)))
	s.metrics.MonitorsRecentlyDischarging.Set(float64(len(recent)))

	s.alertNewDischarges(discharging)

	nodes, err := s.fleet.ImpactedNodes(s.includeRecent, s.logger)
	if err != nil {
		return err
	}
	s.metrics.ImpactedNodes.Set(float64(len(nodes)))

	takenAt := time.Now().UTC()
	if s.publisher != nil {
		if err := s.publisher.PublishImpact(ctx, takenAt, nodes); err != nil {
			return err
		}
		s.metrics.ImpactRecordsPublished.Add(float64(len(nodes)))
	}

	s.archive(ctx, takenAt, len(monitors), len(discharging), len(recent), len(nodes))

	s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	s.ready.Store(true)
	s.logger.Info("snapshot cycle complete",
		"monitors", len(monitors),
		"discharging", len(discharging),
		"impacted_nodes", len(nodes),
		"duration", time.Since(start),
	)
	return nil
}

// RefreshHistories bulk loads event histories, typically on a cron schedule
// during the night when the EDM APIs are quiet.
func (s *Service) RefreshHistories(ctx context.Context) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	// At startup the bulk load can run before the first snapshot cycle.
	if s.fleet.RefreshedAt().IsZero() {
		if err := s.fleet.Refresh(ctx); err != nil {
			s.logger.Error("history refresh failed", "error", err)
			s.metrics.HistoryFetchErrors.Inc()
			return
		}
	}
	if err := s.fleet.LoadAllHistories(ctx, s.logger); err != nil {
		s.logger.Error("history refresh failed", "error", err)
		s.metrics.HistoryFetchErrors.Inc()
		return
	}
	s.metrics.HistoryRefreshes.Inc()
	s.logger.Info("histories refreshed", "monitors", len(s.fleet.Monitors()))
}

// alertNewDischarges compares the discharging set against the previous
// cycle and notifies for additions. The first cycle only records the
// baseline.
func (s *Service) alertNewDischarges(discharging []*domain.Monitor) {
	current := make(map[string]bool, len(discharging))
	for _, m := range discharging {
		current[m.ID()] = true
	}

	if s.prevDischarging == nil {
		s.prevDischarging = current
		return
	}

	var started []*domain.Monitor
	for _, m := range discharging {
		if !s.prevDischarging[m.ID()] {
			started = append(started, m)
		}
	}
	s.prevDischarging = current

	if len(started) == 0 {
		return
	}
	s.logger.Info("new discharges detected", "count", len(started))
	if s.notifier != nil {
		s.notifier.NotifyDischargeStart(started)
		s.metrics.AlertsSent.Add(float64(len(started)))
	}
}

// archive persists the cycle best-effort; an unavailable archive must not
// fail the snapshot.
func (s *Service) archive(ctx context.Context, takenAt time.Time, tracked, discharging, recent, impacted int) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSnapshot(ctx, takenAt, s.fleet.Operator(), tracked, discharging, recent, impacted); err != nil {
		s.logger.Warn("snapshot archive failed", "error", err)
	}

	rows, err := s.fleet.DischargeLog(s.logger)
	if err != nil {
		// Histories load on their own schedule; nothing to archive until
		// the first bulk load has happened.
		if !errors.Is(err, domain.ErrInvalidState) {
			s.logger.Warn("discharge log unavailable", "error", err)
		}
		return
	}
	if err := s.store.RecordDischarges(ctx, rows); err != nil {
		s.logger.Warn("discharge archive failed", "error", err)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
