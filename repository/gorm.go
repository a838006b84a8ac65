package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artpriyo-settlement/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgUniqueViolation = "23505"

// GormStore is the PostgreSQL Store. Row locks are always taken event row
// first, wallet row second.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

var _ Store = (*GormStore)(nil)

// AutoMigrate creates or updates every table the engine owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Event{},
		&models.EventParticipant{},
		&models.ActiveEnrollment{},
		&models.Wallet{},
		&models.Transaction{},
		&models.Post{},
	)
}

// withTx runs fn in a transaction. A failed commit is reported as
// ErrCommitUncertain because the writes may or may not have landed.
func (s *GormStore) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %w", ErrCommitUncertain, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// --- events ---

func (s *GormStore) CreateEvent(ctx context.Context, ev *models.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Status == "" {
		ev.Status = models.EventStatusUpcoming
	}
	return s.DB.WithContext(ctx).Create(ev).Error
}

func (s *GormStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	err := s.DB.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&ev, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return &ev, nil
}

func (s *GormStore) FindEventsByStatus(ctx context.Context, statuses ...models.EventStatus) ([]models.Event, error) {
	var events []models.Event
	err := s.DB.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

func (s *GormStore) UpdateEventStatus(ctx context.Context, id string, expected, next models.EventStatus) (bool, error) {
	result := s.DB.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND status = ?", id, expected).
		Update("status", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) ClaimSettlement(ctx context.Context, id, claim string, now time.Time, lease time.Duration) (bool, error) {
	result := s.DB.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND settled = ? AND status <> ?", id, false, models.EventStatusCompleted).
		Where("settlement_claim IS NULL OR settlement_claim = '' OR settlement_claimed_at IS NULL OR settlement_claimed_at <= ?", now.Add(-lease)).
		Updates(map[string]interface{}{
			"settlement_claim":      claim,
			"settlement_claimed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) AwardPlacement(ctx context.Context, eventID, claim string, place models.Placement, userID string, credit *models.Transaction) (bool, error) {
	awarded := false
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&models.Event{}).
			Where("id = ? AND settled = ? AND settlement_claim = ?", eventID, false, claim).
			Where(place.Column() + " IS NULL").
			Update(place.Column(), userID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if credit != nil {
			if err := applyEntry(tx, credit); err != nil {
				return err
			}
		}
		awarded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return awarded, nil
}

func (s *GormStore) CompleteSettlement(ctx context.Context, id, claim string) (bool, error) {
	result := s.DB.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND settled = ? AND settlement_claim = ? AND status <> ?", id, false, claim, models.EventStatusCompleted).
		Updates(map[string]interface{}{
			"status":           models.EventStatusCompleted,
			"settled":          true,
			"settlement_claim": "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) ReleaseSettlement(ctx context.Context, id, claim string) (bool, error) {
	result := s.DB.WithContext(ctx).Model(&models.Event{}).
		Where("id = ? AND settled = ? AND settlement_claim = ?", id, false, claim).
		Updates(map[string]interface{}{
			"settlement_claim":      "",
			"settlement_claimed_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) ReleaseActiveEnrollments(ctx context.Context, eventID string) (int64, error) {
	result := s.DB.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&models.ActiveEnrollment{})
	return result.RowsAffected, result.Error
}

// lockEvent loads the event row FOR UPDATE and its participants in join order.
func lockEvent(tx *gorm.DB, eventID string) (*models.Event, error) {
	var ev models.Event
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ev, "id = ?", eventID).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	if err := tx.Where("event_id = ?", eventID).
		Order("seq ASC").
		Find(&ev.Participants).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *GormStore) Enroll(ctx context.Context, userID, eventID string, prepare PrepareFunc) (*models.Event, *models.Transaction, error) {
	var (
		ev    *models.Event
		entry *models.Transaction
	)
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		var err error
		if ev, err = lockEvent(tx, eventID); err != nil {
			return err
		}
		var wallet models.Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&wallet, "user_id = ?", userID).Error; err != nil {
			return notFound(err, ErrUserNotFound)
		}

		var active int64
		if err := tx.Model(&models.ActiveEnrollment{}).
			Where("user_id = ?", userID).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 || ev.HasParticipant(userID) {
			return ErrAlreadyEnrolled
		}

		if entry, err = prepare(ev); err != nil {
			return err
		}
		if entry != nil {
			if err := applyEntry(tx, entry); err != nil {
				return err
			}
		}

		var maxSeq int64
		if err := tx.Model(&models.EventParticipant{}).
			Where("event_id = ?", eventID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		p := models.EventParticipant{
			ID:      uuid.NewString(),
			EventID: eventID,
			UserID:  userID,
			Seq:     maxSeq + 1,
		}
		if err := tx.Create(&p).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyEnrolled
			}
			return err
		}
		// The primary key on user_id rejects a concurrent join of another event.
		if err := tx.Create(&models.ActiveEnrollment{UserID: userID, EventID: eventID}).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyEnrolled
			}
			return err
		}
		ev.Participants = append(ev.Participants, p)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ev, entry, nil
}

func (s *GormStore) Withdraw(ctx context.Context, userID, eventID string, prepare PrepareFunc) (*models.Event, *models.Transaction, error) {
	var (
		ev    *models.Event
		entry *models.Transaction
	)
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		var err error
		if ev, err = lockEvent(tx, eventID); err != nil {
			return err
		}
		if !ev.HasParticipant(userID) {
			return ErrNotEnrolled
		}
		if entry, err = prepare(ev); err != nil {
			return err
		}
		if entry != nil {
			if err := applyEntry(tx, entry); err != nil {
				return err
			}
		}
		if err := tx.Where("event_id = ? AND user_id = ?", eventID, userID).
			Delete(&models.EventParticipant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND event_id = ?", userID, eventID).
			Delete(&models.ActiveEnrollment{}).Error; err != nil {
			return err
		}
		kept := ev.Participants[:0]
		for _, p := range ev.Participants {
			if p.UserID != userID {
				kept = append(kept, p)
			}
		}
		ev.Participants = kept
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ev, entry, nil
}

func (s *GormStore) FindUnarchivedSettlements(ctx context.Context, limit int) ([]models.Event, error) {
	var events []models.Event
	q := s.DB.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("settled = ? AND (receipt_url IS NULL OR receipt_url = '')", true).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

func (s *GormStore) SetReceiptURL(ctx context.Context, id, url string) error {
	result := s.DB.WithContext(ctx).Model(&models.Event{}).
		Where("id = ?", id).
		UpdateColumn("receipt_url", url)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- wallets & ledger ---

func (s *GormStore) CreateWallet(ctx context.Context, userID string) error {
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Wallet{UserID: userID, Balance: decimal.Zero}).Error
}

func (s *GormStore) GetWalletBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var wallet models.Wallet
	if err := s.DB.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error; err != nil {
		return decimal.Zero, notFound(err, ErrUserNotFound)
	}
	return wallet.Balance, nil
}

func (s *GormStore) ApplyEntry(ctx context.Context, entry *models.Transaction) error {
	return s.withTx(ctx, func(tx *gorm.DB) error {
		return applyEntry(tx, entry)
	})
}

// applyEntry inserts the ledger row and moves the balance inside tx.
func applyEntry(tx *gorm.DB, entry *models.Transaction) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	result := tx.Model(&models.Wallet{}).
		Where("user_id = ?", entry.UserID).
		Update("balance", gorm.Expr("balance + ?", entry.Type.Signed(entry.Amount)))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	if err := tx.Create(entry).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

func (s *GormStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	q := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}

func (s *GormStore) LedgerTotals(ctx context.Context, userID string) (decimal.Decimal, decimal.Decimal, error) {
	var rows []struct {
		Type  models.TransactionType
		Total decimal.Decimal
	}
	err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	credits, debits := decimal.Zero, decimal.Zero
	for _, r := range rows {
		switch r.Type {
		case models.TransactionCredit:
			credits = r.Total
		case models.TransactionDebit:
			debits = r.Total
		}
	}
	return credits, debits, nil
}

// --- posts ---

func (s *GormStore) CreatePost(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Create(post).Error
}

func (s *GormStore) FindPostsByEventAndUsers(ctx context.Context, eventID string, userIDs []string) ([]models.PostLikes, error) {
	var rows []models.PostLikes
	if len(userIDs) == 0 {
		return rows, nil
	}
	err := s.DB.WithContext(ctx).Model(&models.Post{}).
		Select("user_id, likes AS like_count").
		Where("event_id = ? AND user_id IN ?", eventID, userIDs).
		Order("created_at ASC").
		Scan(&rows).Error
	return rows, err
}
