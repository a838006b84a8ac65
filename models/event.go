package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EventStatus is the lifecycle state of an event. Transitions only move forward.
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusCompleted EventStatus = "completed"
)

// Event is a time-boxed competition with an entry fee and a prize pool.
// StartDate/EndDate are calendar dates without a zone; they are compared
// against "today" in the configured reference offset.
type Event struct {
	ID        string          `json:"id" gorm:"primaryKey"`
	Name      string          `json:"name" gorm:"not null"`
	Rules     string          `json:"rules" gorm:"type:text"`
	ImageURL  string          `json:"image_url"`
	EntryFee  decimal.Decimal `json:"entry_fee" gorm:"type:numeric(18,2);not null;default:0"`
	PrizePool decimal.Decimal `json:"prize_pool" gorm:"type:numeric(18,2);not null;default:0"`
	StartDate datatypes.Date  `json:"start_date" gorm:"not null;index"`
	EndDate   datatypes.Date  `json:"end_date" gorm:"not null;index"`
	StartTime string          `json:"start_time"` // display only, e.g. "10:00"
	EndTime   string          `json:"end_time"`
	Status    EventStatus     `json:"status" gorm:"type:varchar(16);not null;default:'upcoming';index"`

	// Winners are written once, during settlement.
	FirstPlaceUserID  *string `json:"first_place_user_id,omitempty"`
	SecondPlaceUserID *string `json:"second_place_user_id,omitempty"`
	ThirdPlaceUserID  *string `json:"third_place_user_id,omitempty"`

	// Settled flips together with status=completed in a single conditional update.
	Settled             bool       `json:"settled" gorm:"not null;default:false;index"`
	SettlementClaim     string     `json:"-" gorm:"type:varchar(64)"`
	SettlementClaimedAt *time.Time `json:"-"`
	ReceiptURL          string     `json:"receipt_url,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Participants []EventParticipant `json:"participants,omitempty" gorm:"foreignKey:EventID"`
}

// ParticipantIDs returns participant user ids in join order.
func (e *Event) ParticipantIDs() []string {
	ids := make([]string, 0, len(e.Participants))
	for _, p := range e.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasParticipant reports whether userID already joined the event.
func (e *Event) HasParticipant(userID string) bool {
	for _, p := range e.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Winners returns the winners recorded so far.
func (e *Event) Winners() Winners {
	return Winners{
		First:  e.FirstPlaceUserID,
		Second: e.SecondPlaceUserID,
		Third:  e.ThirdPlaceUserID,
	}
}

// SetWinner records userID for the given placement on the in-memory copy.
func (e *Event) SetWinner(p Placement, userID string) {
	id := userID
	switch p {
	case PlacementFirst:
		e.FirstPlaceUserID = &id
	case PlacementSecond:
		e.SecondPlaceUserID = &id
	case PlacementThird:
		e.ThirdPlaceUserID = &id
	}
}

// EventParticipant is one entry of an event's ordered participant set.
type EventParticipant struct {
	ID       string    `json:"-" gorm:"primaryKey"`
	EventID  string    `json:"event_id" gorm:"not null;uniqueIndex:idx_event_participant"`
	UserID   string    `json:"user_id" gorm:"not null;uniqueIndex:idx_event_participant"`
	Seq      int64     `json:"seq" gorm:"not null;default:0"`
	JoinedAt time.Time `json:"joined_at" gorm:"autoCreateTime"`
}

// ActiveEnrollment marks the single event a user is currently taking part in.
// UserID is the primary key, so a second active enrollment cannot be inserted.
type ActiveEnrollment struct {
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	EventID   string    `json:"event_id" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
