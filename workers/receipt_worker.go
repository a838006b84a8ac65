// workers/receipt_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artpriyo-settlement/models"
	"artpriyo-settlement/services"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReceiptStore is the slice of the event store the archiver needs.
type ReceiptStore interface {
	FindUnarchivedSettlements(ctx context.Context, limit int) ([]models.Event, error)
	SetReceiptURL(ctx context.Context, id, url string) error
}

// ObjectUploader stores a JSON document and returns its public URL.
type ObjectUploader interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
}

// ReceiptPlacement is one podium line of a receipt.
type ReceiptPlacement struct {
	Place  string          `json:"place"`
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// SettlementReceipt is the archived record of a settled event.
type SettlementReceipt struct {
	EventID    string             `json:"event_id"`
	EventName  string             `json:"event_name"`
	PrizePool  decimal.Decimal    `json:"prize_pool"`
	EntryFee   decimal.Decimal    `json:"entry_fee"`
	Entrants   int                `json:"entrants"`
	Placements []ReceiptPlacement `json:"placements"`
	SettledAt  time.Time          `json:"settled_at"`
}

const receiptBatch = 50

// BuildReceipt derives the receipt from the event's recorded winners.
func BuildReceipt(ev *models.Event) SettlementReceipt {
	shares := services.PrizeShares(ev.PrizePool)
	winners := ev.Winners()
	placements := make([]ReceiptPlacement, 0, len(models.Placements))
	for i, p := range models.Placements {
		uid, ok := winners.Get(p)
		if !ok {
			continue
		}
		placements = append(placements, ReceiptPlacement{Place: p.Label(), UserID: uid, Amount: shares[i]})
	}
	return SettlementReceipt{
		EventID:    ev.ID,
		EventName:  ev.Name,
		PrizePool:  ev.PrizePool,
		EntryFee:   ev.EntryFee,
		Entrants:   len(ev.Participants),
		Placements: placements,
		SettledAt:  ev.UpdatedAt.UTC(),
	}
}

// ReceiptKey is the object key for an event's receipt.
func ReceiptKey(ev *models.Event) string {
	name := slug.Make(ev.Name)
	if name == "" {
		name = "event"
	}
	return fmt.Sprintf("receipts/%s-%s.json", name, ev.ID)
}

// ArchiveSettlements uploads a receipt for each settled event that has none
// yet. Failures are collected and the rest of the batch continues.
func ArchiveSettlements(ctx context.Context, store ReceiptStore, uploader ObjectUploader, log zerolog.Logger) (int, error) {
	events, err := store.FindUnarchivedSettlements(ctx, receiptBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list settled events: %w", err)
	}

	var errs []error
	archived := 0
	for i := range events {
		ev := &events[i]
		url, err := uploader.PutJSON(ctx, ReceiptKey(ev), BuildReceipt(ev))
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
			continue
		}
		if err := store.SetReceiptURL(ctx, ev.ID, url); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
			continue
		}
		archived++
		log.Info().Str("event_id", ev.ID).Str("url", url).Msg("🧾 Settlement receipt archived")
	}
	return archived, errors.Join(errs...)
}

// PollSettlementReceipts archives receipts every interval until ctx is done.
func PollSettlementReceipts(ctx context.Context, store ReceiptStore, uploader ObjectUploader, interval time.Duration, log zerolog.Logger) {
	log.Info().Dur("interval", interval).Msg("Starting settlement receipt polling...")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Settlement receipt polling stopped.")
			return
		case <-ticker.C:
			n, err := ArchiveSettlements(ctx, store, uploader, log)
			if err != nil {
				// Events without a URL are picked up again next tick.
				log.Error().Err(err).Int("archived", n).Msg("❌ Error archiving receipts")
				continue
			}
			if n > 0 {
				log.Info().Int("archived", n).Msg("✅ Receipts archived")
			}
		}
	}
}
