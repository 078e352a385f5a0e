package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whop_checkout_echo/internal/models"
)

// OrderStore is the slice of the shop's order storage the reconciler relies on
type OrderStore interface {
	GetOrder(ctx context.Context, id uint) (*models.Order, error)
	AddNote(ctx context.Context, orderID uint, note string) error
	MarkOnHold(ctx context.Context, orderID uint, note string) error
	MarkPaid(ctx context.Context, orderID uint, paidAt time.Time) error
}

// SessionStore persists payment sessions.
// CreateSession, CompleteSession and MarkEmailSent are conditional writes and
// report whether this caller won.
type SessionStore interface {
	FindSession(ctx context.Context, orderID uint) (*models.PaymentSession, error)
	CreateSession(ctx context.Context, session *models.PaymentSession) (stored *models.PaymentSession, created bool, err error)
	CompleteSession(ctx context.Context, orderID uint, at time.Time) (bool, error)
	MarkEmailSent(ctx context.Context, orderID uint) (bool, error)
	ListPendingSessions(ctx context.Context, createdBefore time.Time) ([]models.PaymentSession, error)
}

// TaskScheduler enqueues background work for the worker
type TaskScheduler interface {
	Schedule(ctx context.Context, task *models.ScheduledTask) error
}

// WebhookLog records inbound webhook deliveries
type WebhookLog interface {
	RecordWebhook(ctx context.Context, event *models.WebhookEvent) error
}

// GormStore implements the stores above on PostgreSQL
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *GormStore) AddNote(ctx context.Context, orderID uint, note string) error {
	return s.db.WithContext(ctx).Create(&models.OrderNote{OrderID: orderID, Content: note}).Error
}

func (s *GormStore) MarkOnHold(ctx context.Context, orderID uint, note string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).Where("id = ?", orderID).Update("status", models.OrderStatusOnHold)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrOrderNotFound
		}
		if note == "" {
			return nil
		}
		return tx.Create(&models.OrderNote{OrderID: orderID, Content: note}).Error
	})
}

// MarkPaid moves the order to processing; already-paid orders are left alone
func (s *GormStore) MarkPaid(ctx context.Context, orderID uint, paidAt time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND paid_at IS NULL", orderID).
		Updates(map[string]interface{}{
			"status":  models.OrderStatusProcessing,
			"paid_at": paidAt,
		}).Error
}

func (s *GormStore) FindSession(ctx context.Context, orderID uint) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// CreateSession inserts the session unless one already exists for the order,
// in which case the existing row is returned with created=false.
func (s *GormStore) CreateSession(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(session)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return session, true, nil
	}

	existing, err := s.FindSession(ctx, session.OrderID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("payment session insert conflicted but no row was found")
	}
	return existing, false, nil
}

// CompleteSession flips the session to completed in one statement.
// It returns false when the session was already completed.
func (s *GormStore) CompleteSession(ctx context.Context, orderID uint, at time.Time) (bool, error) {
	session := models.PaymentSession{
		OrderID:     orderID,
		Status:      models.SessionStatusCompleted,
		PaymentDate: &at,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":       models.SessionStatusCompleted,
			"payment_date": at,
			"updated_at":   at,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Neq{Column: clause.Column{Table: "payment_sessions", Name: "status"}, Value: models.SessionStatusCompleted},
		}},
	}).Create(&session)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkEmailSent claims the email flag; only the first caller gets true
func (s *GormStore) MarkEmailSent(ctx context.Context, orderID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentSession{}).
		Where("order_id = ? AND email_sent = ?", orderID, false).
		Update("email_sent", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ListPendingSessions(ctx context.Context, createdBefore time.Time) ([]models.PaymentSession, error) {
	var sessions []models.PaymentSession
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.SessionStatusPending, createdBefore).
		Order("created_at asc").
		Find(&sessions).Error
	return sessions, err
}

func (s *GormStore) Schedule(ctx context.Context, task *models.ScheduledTask) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *GormStore) RecordWebhook(ctx context.Context, event *models.WebhookEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}
