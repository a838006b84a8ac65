package services

import (
	"context"
	"fmt"

	"artpriyo-settlement/models"
	"artpriyo-settlement/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var prizeRatios = [...]decimal.Decimal{
	decimal.NewFromFloat(0.5),
	decimal.NewFromFloat(0.3),
	decimal.NewFromFloat(0.2),
}

// PrizeShares splits pool 50/30/20, each share rounded half-up to a whole
// unit. The shares may not add up to pool; the remainder stays undistributed.
func PrizeShares(pool decimal.Decimal) [3]decimal.Decimal {
	var shares [3]decimal.Decimal
	for i, ratio := range prizeRatios {
		shares[i] = pool.Mul(ratio).Round(0)
	}
	return shares
}

// Distributor credits the top three ranked participants of an event.
type Distributor struct {
	Events repository.EventStore
	Ledger *Ledger
	Log    zerolog.Logger
}

func NewDistributor(events repository.EventStore, ledger *Ledger, log zerolog.Logger) *Distributor {
	return &Distributor{Events: events, Ledger: ledger, Log: log}
}

// Distribute awards every placement of ev that is still empty, walking the
// ranking in order. Users already holding a placement are skipped, so a resumed settlement
// never pays anyone twice. claim must be the caller's live settlement claim
// on ev.
func (d *Distributor) Distribute(ctx context.Context, ev *models.Event, claim string, ranked []models.LeaderboardEntry) (models.Winners, error) {
	winners := ev.Winners()
	shares := PrizeShares(ev.PrizePool)

	placed := make(map[string]bool)
	for _, p := range models.Placements {
		if id, ok := winners.Get(p); ok {
			placed[id] = true
		}
	}

	next := 0
	for i, p := range models.Placements {
		if _, ok := winners.Get(p); ok {
			continue
		}
		for next < len(ranked) && placed[ranked[next].UserID] {
			next++
		}
		if next >= len(ranked) {
			break
		}
		userID := ranked[next].UserID
		next++

		var credit *models.Transaction
		if shares[i].IsPositive() {
			var err error
			credit, err = d.Ledger.NewEntry(
				userID,
				models.TransactionCredit,
				shares[i],
				fmt.Sprintf("%s Prize - %s", p.Label(), ev.Name),
				ev.ID,
				fmt.Sprintf("WIN_%s_%d", ev.ID, p),
			)
			if err != nil {
				return winners, err
			}
		}

		ok, err := d.Events.AwardPlacement(ctx, ev.ID, claim, p, userID, credit)
		if err != nil {
			return winners, translate(err)
		}
		if !ok {
			return winners, kindError(ErrConcurrencyConflict, errClaimLost)
		}
		placed[userID] = true
		winners.Set(p, userID)

		d.Log.Info().
			Str("event_id", ev.ID).
			Str("user_id", userID).
			Str("placement", p.Label()).
			Str("amount", shares[i].String()).
			Msgf("🏆 %s place awarded for %s", p.Label(), ev.Name)
	}
	return winners, nil
}
