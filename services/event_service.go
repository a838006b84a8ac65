package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"artpriyo-settlement/models"
	"artpriyo-settlement/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const dateLayout = "2006-01-02"

// CreateEventInput is the admin payload for a new event.
type CreateEventInput struct {
	Name      string          `json:"name"`
	EntryFee  decimal.Decimal `json:"entry_fee"`
	PrizePool decimal.Decimal `json:"prize_pool"`
	StartDate string          `json:"start_date"` // YYYY-MM-DD
	EndDate   string          `json:"end_date"`
	StartTime string          `json:"start_time"`
	EndTime   string          `json:"end_time"`
	Rules     string          `json:"rules"`
	ImageURL  string          `json:"image_url"`
}

type EventService struct {
	Store repository.EventStore
	Ref   *ReferenceClock
	Log   zerolog.Logger
}

func NewEventService(store repository.EventStore, ref *ReferenceClock, log zerolog.Logger) *EventService {
	return &EventService{Store: store, Ref: ref, Log: log}
}

func (s *EventService) CreateEvent(ctx context.Context, in CreateEventInput) (*models.Event, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.StartDate == "" || in.EndDate == "" || in.StartTime == "" || in.EndTime == "" || strings.TrimSpace(in.Rules) == "" {
		return nil, kindError(ErrValidation, errors.New("all fields are required"))
	}
	if in.EntryFee.IsNegative() || in.PrizePool.IsNegative() {
		return nil, kindError(ErrValidation, errors.New("entry fee and prize pool must not be negative"))
	}
	start, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		return nil, kindError(ErrValidation, errors.New("start_date must be YYYY-MM-DD"))
	}
	end, err := time.Parse(dateLayout, in.EndDate)
	if err != nil {
		return nil, kindError(ErrValidation, errors.New("end_date must be YYYY-MM-DD"))
	}
	if end.Before(start) {
		return nil, kindError(ErrValidation, errors.New("end date cannot be before start date"))
	}

	ev := &models.Event{
		Name:      in.Name,
		Rules:     in.Rules,
		ImageURL:  in.ImageURL,
		EntryFee:  in.EntryFee,
		PrizePool: in.PrizePool,
		StartDate: datatypes.Date(start),
		EndDate:   datatypes.Date(end),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Status:    models.EventStatusUpcoming,
	}
	if err := s.Store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	s.Log.Info().Str("event_id", ev.ID).Msgf("✅ Event created: %s", ev.Name)
	return ev, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.Store.GetEvent(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return ev, nil
}

// UpcomingEvents lists upcoming events starting today or later, soonest first.
func (s *EventService) UpcomingEvents(ctx context.Context) ([]models.Event, error) {
	events, err := s.Store.FindEventsByStatus(ctx, models.EventStatusUpcoming)
	if err != nil {
		return nil, err
	}
	today := s.Ref.Today()
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if !civil(time.Time(ev.StartDate)).Before(today) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return time.Time(out[i].StartDate).Before(time.Time(out[j].StartDate))
	})
	return out, nil
}
