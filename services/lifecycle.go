package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"artpriyo-settlement/models"
	"artpriyo-settlement/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ScanFailure is one event that failed during a scan.
type ScanFailure struct {
	EventID string `json:"event_id"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// ScanReport lists what a lifecycle scan did, by event id.
type ScanReport struct {
	Started []string      `json:"started"`
	Settled []string      `json:"settled"`
	Skipped []string      `json:"skipped"`
	Failed  []ScanFailure `json:"failed"`

	mu sync.Mutex
}

func (r *ScanReport) add(list *[]string, id string) {
	r.mu.Lock()
	*list = append(*list, id)
	r.mu.Unlock()
}

func (r *ScanReport) fail(id, stage string, err error) {
	r.mu.Lock()
	r.Failed = append(r.Failed, ScanFailure{EventID: id, Stage: stage, Error: err.Error()})
	r.mu.Unlock()
}

// Settlement is the outcome of settling one event.
type Settlement struct {
	EventID string                    `json:"event_id"`
	Winners models.Winners            `json:"winners"`
	Ranking []models.LeaderboardEntry `json:"ranking"`
}

// LifecycleService moves events through upcoming → ongoing → completed and
// settles each completed event exactly once.
type LifecycleService struct {
	Events      repository.EventStore
	Ranker      *Ranker
	Distributor *Distributor
	Ref         *ReferenceClock
	Lease       time.Duration
	Concurrency int
	Metrics     *Metrics
	Log         zerolog.Logger

	flight singleflight.Group
}

func NewLifecycleService(events repository.EventStore, ranker *Ranker, distributor *Distributor, ref *ReferenceClock, lease time.Duration, concurrency int, metrics *Metrics, log zerolog.Logger) *LifecycleService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &LifecycleService{
		Events:      events,
		Ranker:      ranker,
		Distributor: distributor,
		Ref:         ref,
		Lease:       lease,
		Concurrency: concurrency,
		Metrics:     metrics,
		Log:         log,
	}
}

// RunLifecycleScan runs the started check, then the ended check. Failures of
// single events are collected in the report; only store listing failures
// are returned as errors. Safe to run concurrently with itself.
func (s *LifecycleService) RunLifecycleScan(ctx context.Context) (*ScanReport, error) {
	began := time.Now()
	report := &ScanReport{
		Started: []string{},
		Settled: []string{},
		Skipped: []string{},
		Failed:  []ScanFailure{},
	}

	errStarted := s.CheckStartedEvents(ctx, report)
	if errStarted != nil {
		s.Log.Error().Err(errStarted).Msg("[Scheduler] ❌ started check failed")
	}
	errEnded := s.CheckEndedEvents(ctx, report)
	if errEnded != nil {
		s.Log.Error().Err(errEnded).Msg("[Scheduler] ❌ ended check failed")
	}

	s.Metrics.scan(time.Since(began), report)
	if len(report.Started)+len(report.Settled)+len(report.Failed) > 0 {
		s.Log.Info().
			Int("started", len(report.Started)).
			Int("settled", len(report.Settled)).
			Int("skipped", len(report.Skipped)).
			Int("failed", len(report.Failed)).
			Dur("took", time.Since(began)).
			Msg("[Scheduler] lifecycle scan finished")
	}
	return report, errors.Join(errStarted, errEnded)
}

// CheckStartedEvents flips upcoming events whose window is open to ongoing.
// Upcoming events already past their end are left to CheckEndedEvents.
func (s *LifecycleService) CheckStartedEvents(ctx context.Context, report *ScanReport) error {
	events, err := s.Events.FindEventsByStatus(ctx, models.EventStatusUpcoming)
	if err != nil {
		return err
	}
	for i := range events {
		ev := &events[i]
		if s.Ref.Window(ev) != WindowOpen {
			continue
		}
		ok, err := s.Events.UpdateEventStatus(ctx, ev.ID, models.EventStatusUpcoming, models.EventStatusOngoing)
		if err != nil {
			s.Log.Error().Err(err).Str("event_id", ev.ID).Msg("[Scheduler] ❌ failed to start event")
			report.fail(ev.ID, "start", err)
			continue
		}
		if !ok {
			s.Log.Debug().Str("event_id", ev.ID).Msg("[Scheduler] start already applied elsewhere")
			report.add(&report.Skipped, ev.ID)
			continue
		}
		s.Metrics.transition(string(models.EventStatusUpcoming), string(models.EventStatusOngoing))
		s.Log.Info().Str("event_id", ev.ID).Msgf("✅ Event started: %s", ev.Name)
		report.add(&report.Started, ev.ID)
	}
	return nil
}

// CheckEndedEvents settles every unsettled event whose end date has passed,
// including upcoming ones that were never seen ongoing.
func (s *LifecycleService) CheckEndedEvents(ctx context.Context, report *ScanReport) error {
	events, err := s.Events.FindEventsByStatus(ctx, models.EventStatusUpcoming, models.EventStatusOngoing)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.Concurrency)
	for i := range events {
		ev := events[i]
		if ev.Settled || s.Ref.Window(&ev) != WindowAfter {
			continue
		}
		g.Go(func() error {
			_, err := s.SettleEvent(ctx, ev.ID)
			switch {
			case err == nil:
				report.add(&report.Settled, ev.ID)
			case errors.Is(err, ErrConcurrencyConflict):
				report.add(&report.Skipped, ev.ID)
			default:
				stage := "settle"
				var se *SettlementError
				if errors.As(err, &se) {
					stage = se.Stage
				}
				report.fail(ev.ID, stage, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// SettleEvent settles one ended event. Concurrent calls for the same event
// in this process share one run; across processes the settlement claim
// decides. A lost claim returns ErrConcurrencyConflict.
func (s *LifecycleService) SettleEvent(ctx context.Context, eventID string) (*Settlement, error) {
	v, err, _ := s.flight.Do(eventID, func() (interface{}, error) {
		return s.settle(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Settlement), nil
}

func (s *LifecycleService) settle(ctx context.Context, eventID string) (*Settlement, error) {
	log := s.Log.With().Str("event_id", eventID).Logger()

	ev, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, s.failed(log, &SettlementError{EventID: eventID, Stage: StageClaim, Err: translate(err)})
	}
	if ev.Settled || ev.Status == models.EventStatusCompleted {
		return nil, kindError(ErrConcurrencyConflict, errors.New("event already settled"))
	}
	if s.Ref.Window(ev) != WindowAfter {
		return nil, kindError(ErrConflict, errors.New("event has not ended"))
	}

	claim := uuid.NewString()
	ok, err := s.Events.ClaimSettlement(ctx, eventID, claim, s.Ref.Clock.Now(), s.Lease)
	if err != nil {
		return nil, s.failed(log, &SettlementError{EventID: eventID, EventName: ev.Name, Stage: StageClaim, Err: err})
	}
	if !ok {
		log.Debug().Msg("settlement claimed elsewhere")
		s.Metrics.settlement("skipped", 0)
		return nil, kindError(ErrConcurrencyConflict, errClaimLost)
	}

	log.Info().Str("prize_pool", ev.PrizePool.String()).Msgf("🏆 Settling event: %s", ev.Name)
	result, stage, err := s.runSettlement(ctx, eventID, claim)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			s.Metrics.settlement("skipped", 0)
			return nil, err
		}
		// Drop the claim so the next scan can retry straight away.
		if _, relErr := s.Events.ReleaseSettlement(context.WithoutCancel(ctx), eventID, claim); relErr != nil {
			log.Error().Err(relErr).Msg("❌ failed to release settlement claim, retry waits for lease expiry")
		}
		return nil, s.failed(log, &SettlementError{EventID: eventID, EventName: ev.Name, Stage: stage, Err: err})
	}

	s.Metrics.transition(string(ev.Status), string(models.EventStatusCompleted))
	s.Metrics.settlement("settled", result.Winners.Count())
	log.Info().Int("winners", result.Winners.Count()).Msgf("✅ Event completed: %s", ev.Name)
	return result, nil
}

// runSettlement performs the claimed steps in order. The completed status
// is the last write.
func (s *LifecycleService) runSettlement(ctx context.Context, eventID, claim string) (*Settlement, string, error) {
	// Reload under the claim so winners set by an interrupted run are seen.
	ev, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, StageClaim, translate(err)
	}
	if ev.SettlementClaim != claim {
		return nil, StageClaim, kindError(ErrConcurrencyConflict, errClaimLost)
	}

	if _, err := s.Events.ReleaseActiveEnrollments(ctx, eventID); err != nil {
		return nil, StageRelease, err
	}

	ranked, err := s.Ranker.Rank(ctx, eventID, ev.ParticipantIDs())
	if err != nil {
		return nil, StageRank, err
	}

	winners, err := s.Distributor.Distribute(ctx, ev, claim, ranked)
	if err != nil {
		return nil, StageDistrib, err
	}

	ok, err := s.Events.CompleteSettlement(ctx, eventID, claim)
	if err != nil {
		return nil, StageComplete, err
	}
	if !ok {
		return nil, StageComplete, kindError(ErrConcurrencyConflict, errClaimLost)
	}
	return &Settlement{EventID: eventID, Winners: winners, Ranking: ranked}, "", nil
}

func (s *LifecycleService) failed(log zerolog.Logger, se *SettlementError) error {
	s.Metrics.settlement("failed", 0)
	log.Error().
		Err(se.Err).
		Str("event_name", se.EventName).
		Str("stage", se.Stage).
		Msg("❌ settlement failed, event left for next scan")
	return se
}
