package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"whop_checkout_echo/internal/models"
)

// MemoryStore is an in-process store used when DATABASE_URL is not set.
// It keeps the same conditional-write semantics as GormStore.
type MemoryStore struct {
	mu       sync.Mutex
	orders   map[uint]*models.Order
	notes    map[uint][]string
	sessions map[uint]*models.PaymentSession
	tasks    []*models.ScheduledTask
	history  []models.ScheduledTaskHistory
	webhooks []*models.WebhookEvent
	nextID   uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[uint]*models.Order),
		notes:    make(map[uint][]string),
		sessions: make(map[uint]*models.PaymentSession),
	}
}

// PutOrder adds or replaces an order, assigning an id when it has none
func (s *MemoryStore) PutOrder(order models.Order) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == 0 {
		s.nextID++
		order.ID = s.nextID
	} else if order.ID > s.nextID {
		s.nextID = order.ID
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	o := order
	s.orders[o.ID] = &o
	cp := o
	return &cp
}

func (s *MemoryStore) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) AddNote(ctx context.Context, orderID uint, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes[orderID] = append(s.notes[orderID], note)
	return nil
}

// Notes returns a copy of the notes recorded on an order
func (s *MemoryStore) Notes(orderID uint) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.notes[orderID]...)
}

func (s *MemoryStore) MarkOnHold(ctx context.Context, orderID uint, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = models.OrderStatusOnHold
	if note != "" {
		s.notes[orderID] = append(s.notes[orderID], note)
	}
	return nil
}

func (s *MemoryStore) MarkPaid(ctx context.Context, orderID uint, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.PaidAt != nil {
		return nil
	}
	o.Status = models.OrderStatusProcessing
	o.PaidAt = &paidAt
	return nil
}

func (s *MemoryStore) FindSession(ctx context.Context, orderID uint) (*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[orderID]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, session *models.PaymentSession) (*models.PaymentSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[session.OrderID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	now := time.Now()
	stored := *session
	stored.ID = uint(len(s.sessions) + 1)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.sessions[stored.OrderID] = &stored

	cp := stored
	return &cp, true, nil
}

func (s *MemoryStore) CompleteSession(ctx context.Context, orderID uint, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[orderID]
	if !ok {
		s.sessions[orderID] = &models.PaymentSession{
			ID:          uint(len(s.sessions) + 1),
			CreatedAt:   at,
			UpdatedAt:   at,
			OrderID:     orderID,
			Status:      models.SessionStatusCompleted,
			PaymentDate: &at,
		}
		return true, nil
	}
	if sess.IsCompleted() {
		return false, nil
	}
	sess.Status = models.SessionStatusCompleted
	sess.PaymentDate = &at
	sess.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) MarkEmailSent(ctx context.Context, orderID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[orderID]
	if !ok || sess.EmailSent {
		return false, nil
	}
	sess.EmailSent = true
	return true, nil
}

func (s *MemoryStore) ListPendingSessions(ctx context.Context, createdBefore time.Time) ([]models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.PaymentSession
	for _, sess := range s.sessions {
		if sess.Status == models.SessionStatusPending && sess.CreatedAt.Before(createdBefore) {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Schedule(ctx context.Context, task *models.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.ID = uint(len(s.tasks) + 1)
	cp := *task
	s.tasks = append(s.tasks, &cp)
	return nil
}

// Tasks returns copies of every scheduled task
func (s *MemoryStore) Tasks() []models.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// DueTasks returns active tasks due at or before now, oldest first
func (s *MemoryStore) DueTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ScheduledTask
	for _, t := range s.tasks {
		if t.Status == models.ScheduledTaskStatusActive && !t.Due.After(now) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out, nil
}

func (s *MemoryStore) SaveRun(ctx context.Context, task *models.ScheduledTask, history *models.ScheduledTaskHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.tasks {
		if t.ID == task.ID {
			cp := *task
			s.tasks[i] = &cp
			break
		}
	}
	h := *history
	h.ID = uint(len(s.history) + 1)
	h.CreatedAt = time.Now()
	s.history = append(s.history, h)
	return nil
}

// TaskHistory returns every recorded task run
func (s *MemoryStore) TaskHistory() []models.ScheduledTaskHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.ScheduledTaskHistory(nil), s.history...)
}

func (s *MemoryStore) RecordWebhook(ctx context.Context, event *models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	cp.ID = uint(len(s.webhooks) + 1)
	cp.CreatedAt = time.Now()
	s.webhooks = append(s.webhooks, &cp)
	return nil
}

// Webhooks returns copies of every recorded webhook delivery
func (s *MemoryStore) Webhooks() []models.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.WebhookEvent, 0, len(s.webhooks))
	for _, w := range s.webhooks {
		out = append(out, *w)
	}
	return out
}
