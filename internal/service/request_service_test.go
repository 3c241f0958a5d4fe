package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"foodshare-backend/internal/model"
	"foodshare-backend/internal/notifier"
	"foodshare-backend/pkg/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// In-memory fakes. The stock fake mirrors the guarded-update contract of the
// real repository: the availability check and the reservation write happen
// atomically under one lock.

type fakeStockRepo struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*model.StockBatch
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{batches: make(map[uuid.UUID]*model.StockBatch)}
}

func (f *fakeStockRepo) addBatch(barcode string, qty int, expiry *time.Time) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.batches[id] = &model.StockBatch{ID: id, Barcode: barcode, Quantity: qty, ExpiryDate: expiry, CreatedAt: time.Now()}
	return id
}

func (f *fakeStockRepo) batch(id uuid.UUID) model.StockBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.batches[id]
}

func (f *fakeStockRepo) CreateBatch(_ context.Context, batch *model.StockBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	clone := *batch
	f.batches[batch.ID] = &clone
	return nil
}

func (f *fakeStockRepo) FindByID(_ context.Context, id uuid.UUID) (*model.StockBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (f *fakeStockRepo) FindAvailableByProduct(ctx context.Context, barcode string) ([]model.StockBatch, error) {
	return f.FindAvailableByProductForUpdate(ctx, barcode)
}

func (f *fakeStockRepo) FindAvailableByProductForUpdate(_ context.Context, barcode string) ([]model.StockBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StockBatch
	for _, b := range f.batches {
		if b.Barcode == barcode && b.Available() > 0 {
			out = append(out, *b)
		}
	}
	// Soonest expiry first, undated batches last
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].ExpiryDate, out[j].ExpiryDate
		switch {
		case ei == nil && ej == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case ei == nil:
			return false
		case ej == nil:
			return true
		default:
			return ei.Before(*ej)
		}
	})
	return out, nil
}

func (f *fakeStockRepo) Reserve(_ context.Context, batchID uuid.UUID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return apperr.ErrNotFound
	}
	if b.Quantity-b.ReservedQuantity < qty {
		return apperr.ErrInsufficientStock
	}
	b.ReservedQuantity += qty
	return nil
}

func (f *fakeStockRepo) Release(_ context.Context, batchID uuid.UUID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return apperr.ErrNotFound
	}
	if b.ReservedQuantity < qty {
		return apperr.ErrInsufficientStock
	}
	b.ReservedQuantity -= qty
	return nil
}

func (f *fakeStockRepo) Consume(_ context.Context, batchID uuid.UUID, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return apperr.ErrNotFound
	}
	if b.Quantity < qty || b.ReservedQuantity < qty {
		return apperr.ErrInsufficientStock
	}
	b.Quantity -= qty
	b.ReservedQuantity -= qty
	return nil
}

func (f *fakeStockRepo) ListProductsWithStock(_ context.Context, afterBarcode string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	for _, b := range f.batches {
		if b.Available() > 0 && b.Barcode > afterBarcode {
			seen[b.Barcode] = true
		}
	}
	var out []string
	for bc := range seen {
		out = append(out, bc)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStockRepo) FindAvailableByProducts(ctx context.Context, barcodes []string) ([]model.StockBatch, error) {
	var out []model.StockBatch
	for _, bc := range barcodes {
		batches, _ := f.FindAvailableByProductForUpdate(ctx, bc)
		out = append(out, batches...)
	}
	return out, nil
}

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*model.Request
	seq      int
	base     time.Time
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{
		requests: make(map[uuid.UUID]*model.Request),
		base:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRequestRepo) Create(_ context.Context, request *model.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if request.IdempotencyKey != nil {
		for _, existing := range f.requests {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *request.IdempotencyKey {
				return errors.New("duplicated key")
			}
		}
	}
	request.ID = uuid.New()
	f.seq++
	request.SubmissionDate = f.base.Add(time.Duration(f.seq) * time.Second)
	clone := *request
	f.requests[request.ID] = &clone
	return nil
}

func (f *fakeRequestRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (f *fakeRequestRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeRequestRepo) FindByIdempotencyKey(_ context.Context, key string) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			clone := *r
			return &clone, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeRequestRepo) Save(_ context.Context, request *model.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[request.ID]; !ok {
		return apperr.ErrNotFound
	}
	clone := *request
	f.requests[request.ID] = &clone
	return nil
}

func (f *fakeRequestRepo) ListBySubmissionDesc(_ context.Context, before *time.Time, beforeID uuid.UUID, limit int) ([]model.Request, error) {
	return f.list(nil, before, beforeID, limit), nil
}

func (f *fakeRequestRepo) ListByUser(_ context.Context, userID uuid.UUID, before *time.Time, beforeID uuid.UUID, limit int) ([]model.Request, error) {
	return f.list(&userID, before, beforeID, limit), nil
}

func (f *fakeRequestRepo) list(userID *uuid.UUID, before *time.Time, beforeID uuid.UUID, limit int) []model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Request
	for _, r := range f.requests {
		if userID != nil && r.UserID != *userID {
			continue
		}
		if before != nil {
			tied := r.SubmissionDate.Equal(*before) && beforeID != uuid.Nil && r.ID.String() < beforeID.String()
			if !r.SubmissionDate.Before(*before) && !tied {
				continue
			}
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmissionDate.Equal(out[j].SubmissionDate) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].SubmissionDate.After(out[j].SubmissionDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// stampAll forces one submission timestamp onto every stored request,
// reproducing same-instant submissions from a server-side clock.
func (f *fakeRequestRepo) stampAll(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		r.SubmissionDate = at
	}
}

func (f *fakeRequestRepo) CountByStatus(_ context.Context, status model.RequestStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, r := range f.requests {
		if r.Status == status {
			count++
		}
	}
	return count, nil
}

type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*model.User
	absences map[uuid.UUID]int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*model.User), absences: make(map[uuid.UUID]int)}
}

func (f *fakeUserRepo) addUser(name string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &model.User{ID: id, Name: name, Role: model.RoleBeneficiary, FCMToken: "tok-" + name}
	return id
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = uuid.New()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeUserRepo) UpdateFCMToken(_ context.Context, id uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.FCMToken = token
	}
	return nil
}

func (f *fakeUserRepo) IncrementAbsence(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.absences[id]++
	return nil
}

func (f *fakeUserRepo) List(_ context.Context, page, limit int) ([]model.User, int64, error) {
	return nil, 0, nil
}

// passthroughTx runs the unit of work without transactional semantics. Fine
// for these tests: the fakes apply effects immediately and no test exercises
// a mid-transaction failure that needs rollback.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type recordedAudit struct {
	action  string
	details map[string]interface{}
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (f *fakeAudit) Record(_ context.Context, _ *uuid.UUID, action string, details map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedAudit{action: action, details: details})
	return nil
}

func (f *fakeAudit) List(context.Context, *time.Time, *time.Time) ([]AuditLogResponse, error) {
	return nil, nil
}

func (f *fakeAudit) CampaignProducts(context.Context, uuid.UUID) ([]CampaignProductResponse, error) {
	return nil, nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.action)
	}
	return out
}

type fakePush struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (f *fakePush) Send(_ context.Context, n notifier.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

type fixture struct {
	svc      RequestService
	stock    *fakeStockRepo
	requests *fakeRequestRepo
	users    *fakeUserRepo
	audit    *fakeAudit
	push     *fakePush
}

func newFixture() *fixture {
	stock := newFakeStockRepo()
	requests := newFakeRequestRepo()
	users := newFakeUserRepo()
	audit := &fakeAudit{}
	push := &fakePush{}
	svc := NewRequestService(requests, stock, users, passthroughTx{}, audit, push, nil, zap.NewNop())
	return &fixture{svc: svc, stock: stock, requests: requests, users: users, audit: audit, push: push}
}

func daysFromNow(d int) *time.Time {
	t := time.Now().AddDate(0, 0, d)
	return &t
}

func TestSubmitAllocatesFEFO(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")

	late := f.stock.addBatch("111", 10, daysFromNow(30))
	soon := f.stock.addBatch("111", 4, daysFromNow(2))

	res, err := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 6}},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if res.TotalItems != 6 {
		t.Errorf("TotalItems = %d, want 6", res.TotalItems)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(res.Items))
	}
	if res.Items[0].BatchID != soon.String() || res.Items[0].Quantity != 4 {
		t.Errorf("first item should drain the soonest-expiring batch: got batch %s qty %d", res.Items[0].BatchID, res.Items[0].Quantity)
	}
	if res.Items[1].BatchID != late.String() || res.Items[1].Quantity != 2 {
		t.Errorf("second item should take the remainder from the later batch: got batch %s qty %d", res.Items[1].BatchID, res.Items[1].Quantity)
	}

	if got := f.stock.batch(soon).ReservedQuantity; got != 4 {
		t.Errorf("soon batch reserved = %d, want 4", got)
	}
	if got := f.stock.batch(late).ReservedQuantity; got != 2 {
		t.Errorf("late batch reserved = %d, want 2", got)
	}
}

func TestSubmitPartialAllocation(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	f.stock.addBatch("111", 6, nil)

	res, err := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 10}},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if res.TotalItems != 6 {
		t.Errorf("TotalItems = %d, want 6 (partial allocation)", res.TotalItems)
	}
	if len(res.Items) != 1 || res.Items[0].RequestedQuantity != 10 || res.Items[0].Quantity != 6 {
		t.Errorf("item should record requested 10 / allocated 6, got %+v", res.Items)
	}
}

func TestSubmitMultiProduct(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	f.stock.addBatch("111", 10, nil)
	f.stock.addBatch("222", 2, nil)

	res, err := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{
			{Barcode: "111", Quantity: 10},
			{Barcode: "222", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.TotalItems != 12 {
		t.Errorf("TotalItems = %d, want 12", res.TotalItems)
	}
	if res.Status != int(model.StatusSubmitted) {
		t.Errorf("Status = %d, want %d", res.Status, model.StatusSubmitted)
	}
}

func TestSubmitNoStockAvailable(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")

	_, err := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "999", Quantity: 3}},
	})
	if !errors.Is(err, apperr.ErrNoStockAvailable) {
		t.Fatalf("err = %v, want ErrNoStockAvailable", err)
	}

	if n, _ := f.requests.CountByStatus(context.Background(), model.StatusSubmitted); n != 0 {
		t.Errorf("no request should be stored on failed allocation, found %d", n)
	}
}

func TestSubmitIdempotency(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	batchID := f.stock.addBatch("111", 10, nil)

	in := SubmitRequestInput{
		Selections:     []RequestSelection{{Barcode: "111", Quantity: 4}},
		IdempotencyKey: "retry-123",
	}

	first, err := f.svc.Submit(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	second, err := f.svc.Submit(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("retried submission should return the original request: %s vs %s", first.ID, second.ID)
	}
	if got := f.stock.batch(batchID).ReservedQuantity; got != 4 {
		t.Errorf("stock reserved = %d, want 4 (reserved once)", got)
	}
}

func TestSubmitConcurrentNeverOverAllocates(t *testing.T) {
	f := newFixture()
	batchID := f.stock.addBatch("111", 5, nil)

	const attempts = 20
	var wg sync.WaitGroup
	allocated := make(chan int, attempts)

	for i := 0; i < attempts; i++ {
		userID := f.users.addUser("user")
		wg.Add(1)
		go func(uid uuid.UUID) {
			defer wg.Done()
			res, err := f.svc.Submit(context.Background(), uid, SubmitRequestInput{
				Selections: []RequestSelection{{Barcode: "111", Quantity: 1}},
			})
			if err == nil {
				allocated <- res.TotalItems
			}
		}(userID)
	}
	wg.Wait()
	close(allocated)

	total := 0
	for n := range allocated {
		total += n
	}
	if total > 5 {
		t.Errorf("allocated %d units from a batch of 5", total)
	}

	b := f.stock.batch(batchID)
	if b.ReservedQuantity > b.Quantity {
		t.Errorf("reserved %d exceeds quantity %d", b.ReservedQuantity, b.Quantity)
	}
	if b.ReservedQuantity != total {
		t.Errorf("reserved %d does not match allocated %d", b.ReservedQuantity, total)
	}
}

func TestAcceptTransitionsAndNotifies(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	staffID := f.users.addUser("bob")
	f.stock.addBatch("111", 5, nil)

	res, _ := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 2}},
	})
	requestID := uuid.MustParse(res.ID)
	pickup := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	accepted, err := f.svc.Accept(context.Background(), staffID, requestID, pickup)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if accepted.Status != int(model.StatusAcceptedPendingPickup) {
		t.Errorf("Status = %d, want %d", accepted.Status, model.StatusAcceptedPendingPickup)
	}
	if accepted.ScheduledPickupDate == nil || !accepted.ScheduledPickupDate.Equal(pickup) {
		t.Errorf("ScheduledPickupDate = %v, want %v", accepted.ScheduledPickupDate, pickup)
	}

	// Accepting again must fail: the request is no longer SUBMITTED
	if _, err := f.svc.Accept(context.Background(), staffID, requestID, pickup); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Errorf("second Accept err = %v, want ErrInvalidStateTransition", err)
	}

	f.push.mu.Lock()
	defer f.push.mu.Unlock()
	found := false
	for _, n := range f.push.sent {
		if n.Kind == notifier.KindRequestAccepted && n.Token == "tok-alice" {
			found = true
		}
	}
	if !found {
		t.Error("beneficiary should receive a request-accepted push")
	}
}

func TestRejectReleasesStock(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	staffID := f.users.addUser("bob")
	batchID := f.stock.addBatch("111", 5, nil)

	res, _ := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 3}},
	})
	requestID := uuid.MustParse(res.ID)

	rejected, err := f.svc.Reject(context.Background(), staffID, requestID, "out of area")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != int(model.StatusRejected) {
		t.Errorf("Status = %d, want %d", rejected.Status, model.StatusRejected)
	}
	if rejected.RejectionReason != "out of area" {
		t.Errorf("RejectionReason = %q", rejected.RejectionReason)
	}
	if got := f.stock.batch(batchID).ReservedQuantity; got != 0 {
		t.Errorf("reserved = %d after reject, want 0", got)
	}
}

func TestCompleteConsumesStock(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	staffID := f.users.addUser("bob")
	batchID := f.stock.addBatch("111", 5, nil)

	res, _ := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 3}},
	})
	requestID := uuid.MustParse(res.ID)

	// Completing a SUBMITTED request is not allowed
	if _, err := f.svc.Complete(context.Background(), staffID, requestID); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("Complete from SUBMITTED err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := f.svc.Accept(context.Background(), staffID, requestID, time.Now()); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	completed, err := f.svc.Complete(context.Background(), staffID, requestID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completed.Status != int(model.StatusCompleted) {
		t.Errorf("Status = %d, want %d", completed.Status, model.StatusCompleted)
	}

	b := f.stock.batch(batchID)
	if b.Quantity != 2 || b.ReservedQuantity != 0 {
		t.Errorf("batch after pickup = qty %d reserved %d, want qty 2 reserved 0", b.Quantity, b.ReservedQuantity)
	}
}

func TestCancelReleasesAndCountsAbsence(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	staffID := f.users.addUser("bob")
	batchID := f.stock.addBatch("111", 5, nil)

	res, _ := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 3}},
	})
	requestID := uuid.MustParse(res.ID)
	if _, err := f.svc.Accept(context.Background(), staffID, requestID, time.Now()); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	cancelled, err := f.svc.Cancel(context.Background(), staffID, model.RoleEmployee, requestID, true)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != int(model.StatusCancelled) {
		t.Errorf("Status = %d, want %d", cancelled.Status, model.StatusCancelled)
	}
	if got := f.stock.batch(batchID).ReservedQuantity; got != 0 {
		t.Errorf("reserved = %d after cancel, want 0", got)
	}
	if f.users.absences[userID] != 1 {
		t.Errorf("absence count = %d, want 1", f.users.absences[userID])
	}

	// Terminal states accept no further transitions
	if _, err := f.svc.Complete(context.Background(), staffID, requestID); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Errorf("Complete after Cancel err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestCancelByOwnerBeneficiary(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	staffID := f.users.addUser("bob")
	batchID := f.stock.addBatch("111", 5, nil)

	res, _ := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 2}},
	})
	requestID := uuid.MustParse(res.ID)
	if _, err := f.svc.Accept(context.Background(), staffID, requestID, time.Now()); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	cancelled, err := f.svc.Cancel(context.Background(), userID, model.RoleBeneficiary, requestID, false)
	if err != nil {
		t.Fatalf("Cancel by owner failed: %v", err)
	}
	if cancelled.Status != int(model.StatusCancelled) {
		t.Errorf("Status = %d, want %d", cancelled.Status, model.StatusCancelled)
	}
	if got := f.stock.batch(batchID).ReservedQuantity; got != 0 {
		t.Errorf("reserved = %d after cancel, want 0", got)
	}
}

func TestCancelByNonOwnerBeneficiary(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	otherID := f.users.addUser("mallory")
	staffID := f.users.addUser("bob")
	batchID := f.stock.addBatch("111", 5, nil)

	res, _ := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 3}},
	})
	requestID := uuid.MustParse(res.ID)
	if _, err := f.svc.Accept(context.Background(), staffID, requestID, time.Now()); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	if _, err := f.svc.Cancel(context.Background(), otherID, model.RoleBeneficiary, requestID, true); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("Cancel by non-owner err = %v, want ErrUnauthorized", err)
	}

	// The denied cancel must leave no trace: status, reservation and the
	// owner's absence count all stand.
	stored, err := f.svc.Get(context.Background(), requestID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != int(model.StatusAcceptedPendingPickup) {
		t.Errorf("Status = %d after denied cancel, want %d", stored.Status, model.StatusAcceptedPendingPickup)
	}
	if got := f.stock.batch(batchID).ReservedQuantity; got != 3 {
		t.Errorf("reserved = %d after denied cancel, want 3", got)
	}
	if f.users.absences[userID] != 0 || f.users.absences[otherID] != 0 {
		t.Errorf("absence counts = %d/%d after denied cancel, want 0/0", f.users.absences[userID], f.users.absences[otherID])
	}

	// Staff can still cancel any request
	if _, err := f.svc.Cancel(context.Background(), staffID, model.RoleEmployee, requestID, false); err != nil {
		t.Errorf("Cancel by staff failed: %v", err)
	}
}

func TestProposeDeliveryDateClearsPickup(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	otherID := f.users.addUser("mallory")
	staffID := f.users.addUser("bob")
	f.stock.addBatch("111", 5, nil)

	res, _ := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 1}},
	})
	requestID := uuid.MustParse(res.ID)

	pickup := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	proposed, err := f.svc.ProposePickupDate(context.Background(), staffID, requestID, pickup)
	if err != nil {
		t.Fatalf("ProposePickupDate failed: %v", err)
	}
	if proposed.Status != int(model.StatusSubmitted) {
		t.Errorf("proposing a date must not change status, got %d", proposed.Status)
	}
	if proposed.ScheduledPickupDate == nil {
		t.Fatal("ScheduledPickupDate not set")
	}

	if _, err := f.svc.ProposeDeliveryDate(context.Background(), otherID, requestID, pickup.AddDate(0, 0, 2)); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("counter-proposal by non-owner err = %v, want ErrUnauthorized", err)
	}

	// The denied counter-proposal must not have touched the stored request:
	// the standing pickup date survives and no delivery date appears.
	stored, err := f.svc.Get(context.Background(), requestID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.ScheduledPickupDate == nil || !stored.ScheduledPickupDate.Equal(pickup) {
		t.Errorf("ScheduledPickupDate = %v after denied counter-proposal, want %v", stored.ScheduledPickupDate, pickup)
	}
	if stored.ProposedDeliveryDate != nil {
		t.Errorf("ProposedDeliveryDate = %v after denied counter-proposal, want nil", stored.ProposedDeliveryDate)
	}

	counter, err := f.svc.ProposeDeliveryDate(context.Background(), userID, requestID, pickup.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("ProposeDeliveryDate failed: %v", err)
	}
	if counter.ScheduledPickupDate != nil {
		t.Error("counter-proposal should void the standing pickup date")
	}
	if counter.ProposedDeliveryDate == nil {
		t.Error("ProposedDeliveryDate not set")
	}
}

func TestAcceptProposedDateRequiresStandingDate(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	staffID := f.users.addUser("bob")
	f.stock.addBatch("111", 5, nil)

	res, _ := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 1}},
	})
	requestID := uuid.MustParse(res.ID)

	if _, err := f.svc.AcceptProposedDate(context.Background(), userID, requestID); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Fatalf("accepting without a standing date err = %v, want ErrInvalidStateTransition", err)
	}

	pickup := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if _, err := f.svc.ProposePickupDate(context.Background(), staffID, requestID, pickup); err != nil {
		t.Fatalf("ProposePickupDate failed: %v", err)
	}

	accepted, err := f.svc.AcceptProposedDate(context.Background(), userID, requestID)
	if err != nil {
		t.Fatalf("AcceptProposedDate failed: %v", err)
	}
	if accepted.Status != int(model.StatusAcceptedPendingPickup) {
		t.Errorf("Status = %d, want %d", accepted.Status, model.StatusAcceptedPendingPickup)
	}
}

func TestListPaginationWalksAllRequestsOnce(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	f.stock.addBatch("111", 100, nil)

	const total = 5
	for i := 0; i < total; i++ {
		if _, err := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
			Selections: []RequestSelection{{Barcode: "111", Quantity: 1}},
		}); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	seen := make(map[string]bool)
	cursor := ""
	var prev time.Time
	for page := 0; ; page++ {
		if page > total {
			t.Fatal("pagination did not terminate")
		}
		results, next, hasMore, err := f.svc.ListPaginated(context.Background(), 2, cursor)
		if err != nil {
			t.Fatalf("ListPaginated failed: %v", err)
		}
		for _, r := range results {
			if seen[r.ID] {
				t.Errorf("request %s returned twice", r.ID)
			}
			seen[r.ID] = true

			sub, _ := time.Parse(time.RFC3339, r.SubmissionDate)
			if !prev.IsZero() && sub.After(prev) {
				t.Error("results not ordered newest-first across pages")
			}
			prev = sub
		}
		if !hasMore {
			break
		}
		cursor = next
	}

	if len(seen) != total {
		t.Errorf("pagination yielded %d requests, want %d", len(seen), total)
	}
}

func TestListPaginationKeepsTiedSubmissionDates(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	f.stock.addBatch("111", 100, nil)

	const total = 4
	for i := 0; i < total; i++ {
		if _, err := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
			Selections: []RequestSelection{{Barcode: "111", Quantity: 1}},
		}); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}
	f.requests.stampAll(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	// Page size 1 puts every row on a page boundary: with all submission
	// dates equal, the cursor's id tiebreak is the only thing keeping rows
	// from being skipped.
	seen := make(map[string]bool)
	cursor := ""
	for page := 0; ; page++ {
		if page > total {
			t.Fatal("pagination did not terminate")
		}
		results, next, hasMore, err := f.svc.ListPaginated(context.Background(), 1, cursor)
		if err != nil {
			t.Fatalf("ListPaginated failed: %v", err)
		}
		for _, r := range results {
			if seen[r.ID] {
				t.Errorf("request %s returned twice", r.ID)
			}
			seen[r.ID] = true
		}
		if !hasMore {
			break
		}
		cursor = next
	}

	if len(seen) != total {
		t.Errorf("pagination yielded %d requests, want %d", len(seen), total)
	}
}

func TestSubmitRecordsAudit(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	f.stock.addBatch("111", 5, nil)

	if _, err := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
		Selections: []RequestSelection{{Barcode: "111", Quantity: 1}},
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	actions := f.audit.actions()
	if len(actions) != 1 || actions[0] != model.ActionCreateRequest {
		t.Errorf("audit actions = %v, want [%s]", actions, model.ActionCreateRequest)
	}
}

func TestPendingCount(t *testing.T) {
	f := newFixture()
	userID := f.users.addUser("alice")
	staffID := f.users.addUser("bob")
	f.stock.addBatch("111", 100, nil)

	var firstID uuid.UUID
	for i := 0; i < 3; i++ {
		res, err := f.svc.Submit(context.Background(), userID, SubmitRequestInput{
			Selections: []RequestSelection{{Barcode: "111", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if i == 0 {
			firstID = uuid.MustParse(res.ID)
		}
	}

	if _, err := f.svc.Accept(context.Background(), staffID, firstID, time.Now()); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	count, err := f.svc.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("PendingCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("PendingCount = %d, want 2", count)
	}
}
