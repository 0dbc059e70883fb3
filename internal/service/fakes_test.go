package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"enrollment-service/internal/models"
	"enrollment-service/internal/paymob"
)

type memStore struct {
	mu          sync.Mutex
	nextID      int64
	enrollments map[int64]*models.Enrollment
	payments    map[int64]*models.Payment
	callbacks   []models.PaymentCallback
	createErr   error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:      1,
		enrollments: make(map[int64]*models.Enrollment),
		payments:    make(map[int64]*models.Payment),
	}
}

func (m *memStore) put(e models.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[e.ID] = &e
	if e.ID >= m.nextID {
		m.nextID = e.ID + 1
	}
}

func (m *memStore) status(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.enrollments[id]; ok {
		return e.Status
	}
	return ""
}

func (m *memStore) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	e.ID = m.nextID
	m.nextID++
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	stored := *e
	m.enrollments[e.ID] = &stored
	return nil
}

func (m *memStore) GetEnrollmentByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) TransitionEnrollmentStatus(ctx context.Context, id int64, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusPending {
		return false, nil
	}
	e.Status = status
	e.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) HasPaidEnrollment(ctx context.Context, studentID, courseID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID && e.Status == models.EnrollmentStatusPaid {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CancelStalePendingEnrollments(ctx context.Context, cutoff time.Time) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Enrollment
	for _, e := range m.enrollments {
		if e.Status == models.EnrollmentStatusPending && e.CreatedAt.Before(cutoff) {
			e.Status = models.EnrollmentStatusCanceled
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.EnrollmentID] = &cp
	return nil
}

func (m *memStore) UpdatePaymentStatus(ctx context.Context, enrollmentID int64, status, providerTxID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[enrollmentID]; ok {
		p.Status = status
		p.ProviderTxID = providerTxID
	}
	return nil
}

func (m *memStore) GetPaymentByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[enrollmentID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

func (m *memStore) SaveCallback(ctx context.Context, cb *models.PaymentCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, *cb)
	return nil
}

type memCatalog struct {
	courses  map[int64]*models.Course
	students map[int64]*models.Student
	users    map[string]*models.User
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		courses: map[int64]*models.Course{
			7: {ID: 7, Title: "Go in Production", Price: 149.99},
			8: {ID: 8, Title: "Intro to SQL", IsFree: true},
		},
		students: map[int64]*models.Student{
			3: {ID: 3, UserID: "user-3", Name: "Sam", Email: "sam@example.com"},
			4: {ID: 4, UserID: "ghost"},
		},
		users: map[string]*models.User{
			"user-3": {ID: "user-3", FirstName: "Sam", Email: "sam@example.com"},
		},
	}
}

func (c *memCatalog) GetCourseByID(ctx context.Context, id int64) (*models.Course, error) {
	return c.courses[id], nil
}

func (c *memCatalog) GetStudentByID(ctx context.Context, id int64) (*models.Student, error) {
	return c.students[id], nil
}

func (c *memCatalog) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.users[id], nil
}

type fakeGateway struct {
	mu           sync.Mutex
	store        *memStore
	storedAtAuth int
	authErr      error
	orderErr     error
	keyErr       error
	calls        []string
	hmacEnabled  bool
	validSig     string
}

func (g *fakeGateway) record(step string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, step)
}

func (g *fakeGateway) Authenticate(ctx context.Context) (string, error) {
	g.record(paymob.StepAuthenticate)
	if g.store != nil {
		g.storedAtAuth = g.store.count()
	}
	if g.authErr != nil {
		return "", g.authErr
	}
	return "auth-token", nil
}

func (g *fakeGateway) RegisterOrder(ctx context.Context, token string, course *models.Course, enrollmentID int64) (*paymob.RegisteredOrder, error) {
	g.record(paymob.StepRegisterOrder)
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	return &paymob.RegisteredOrder{
		ID:              fmt.Sprintf("po-%d", enrollmentID),
		MerchantOrderID: paymob.MerchantOrderID(enrollmentID, course.ID),
		AmountCents:     paymob.AmountCents(course.Price),
		Currency:        "EGP",
	}, nil
}

func (g *fakeGateway) CreatePaymentKey(ctx context.Context, token, providerOrderID string, course *models.Course, user *models.User) (string, error) {
	g.record(paymob.StepCreatePaymentKey)
	if g.keyErr != nil {
		return "", g.keyErr
	}
	return "key-" + providerOrderID, nil
}

func (g *fakeGateway) CheckoutURL(paymentKey string) string {
	return "https://accept.paymob.com/api/acceptance/iframes/99?payment_token=" + paymentKey
}

func (g *fakeGateway) HMACEnabled() bool { return g.hmacEnabled }

func (g *fakeGateway) VerifyCallbackHMAC(fields map[string]string, signature string) bool {
	return signature != "" && signature == g.validSig
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type memCoordinator struct {
	mu      sync.Mutex
	locks   map[string]string
	keys    map[string]interface{}
	lockErr error
	seq     int
}

func newMemCoordinator() *memCoordinator {
	return &memCoordinator{
		locks: make(map[string]string),
		keys:  make(map[string]interface{}),
	}
}

func (c *memCoordinator) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lockErr != nil {
		return "", false, c.lockErr
	}
	if _, held := c.locks[lockKey]; held {
		return "", false, nil
	}
	c.seq++
	token := fmt.Sprintf("token-%d", c.seq)
	c.locks[lockKey] = token
	return token, true, nil
}

func (c *memCoordinator) ReleaseLock(ctx context.Context, lockKey, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[lockKey] != token {
		return errors.New("lock not owned")
	}
	delete(c.locks, lockKey)
	return nil
}

func (c *memCoordinator) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok, nil
}

func (c *memCoordinator) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = value
	return nil
}

func (c *memCoordinator) held(lockKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.locks[lockKey]
	return ok
}

type publishedEvent struct {
	kind         string
	enrollmentID int64
	detail       string
}

type memPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *memPublisher) add(kind string, e *models.Enrollment, detail string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: kind, enrollmentID: e.ID, detail: detail})
	return nil
}

func (p *memPublisher) PublishEnrollmentCreated(ctx context.Context, e *models.Enrollment, free bool) error {
	return p.add(models.EventTypeEnrollmentCreated, e, fmt.Sprint(free))
}

func (p *memPublisher) PublishEnrollmentPaid(ctx context.Context, e *models.Enrollment, transactionID string) error {
	return p.add(models.EventTypeEnrollmentPaid, e, transactionID)
}

func (p *memPublisher) PublishEnrollmentCanceled(ctx context.Context, e *models.Enrollment, reason string) error {
	return p.add(models.EventTypeEnrollmentCanceled, e, reason)
}

func (p *memPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.kind)
	}
	return out
}

type fixture struct {
	store       *memStore
	catalog     *memCatalog
	gateway     *fakeGateway
	coordinator *memCoordinator
	publisher   *memPublisher
	svc         *PaymentService
}

func newFixture() *fixture {
	f := &fixture{
		store:       newMemStore(),
		catalog:     newMemCatalog(),
		gateway:     &fakeGateway{},
		coordinator: newMemCoordinator(),
		publisher:   &memPublisher{},
	}
	f.gateway.store = f.store
	f.svc = NewPaymentService(f.store, f.catalog, f.gateway, f.coordinator, f.publisher, Options{})
	return f
}
