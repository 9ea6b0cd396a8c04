package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
)

type fakeBatchStore struct {
	mu        sync.Mutex
	batches   map[string]*models.Batch
	failMove  error
	moveCalls int
}

func newFakeBatchStore(batches ...models.Batch) *fakeBatchStore {
	store := &fakeBatchStore{batches: make(map[string]*models.Batch)}
	for i := range batches {
		b := batches[i]
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
		}
		store.batches[b.ID] = &b
	}
	return store
}

func (f *fakeBatchStore) get(id string) models.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.batches[id]
}

func (f *fakeBatchStore) setActive(id string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[id].IsActive = active
}

func (f *fakeBatchStore) FindByName(ctx context.Context, name string) (*models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		if strings.EqualFold(b.Name, strings.TrimSpace(name)) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeBatchStore) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.batches[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

// applySeat mirrors the guarded seat statements: the reservation is checked
// before anything changes so a refusal leaves every batch untouched.
func (f *fakeBatchStore) applySeat(change repository.SeatChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if change.Release != "" && change.Reserve != "" {
		f.moveCalls++
		if f.failMove != nil {
			return f.failMove
		}
	}
	if change.Reserve != "" {
		to, ok := f.batches[change.Reserve]
		if !ok || !to.IsActive || to.Enrolled >= to.Capacity {
			return repository.ErrNoSeatAvailable
		}
	}
	if from, ok := f.batches[change.Release]; ok && from.Enrolled > 0 {
		from.Enrolled--
	}
	if to, ok := f.batches[change.Reserve]; ok {
		to.Enrolled++
	}
	return nil
}

func (f *fakeBatchStore) ListActive(ctx context.Context) ([]models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Batch
	for _, b := range f.batches {
		if b.IsActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type fakeEnrollmentRepo struct {
	mu           sync.Mutex
	requests     map[string]*models.EnrollmentRequest
	seats        *fakeBatchStore
	nextID       int
	failStatus   error
	failUpdate   error
	failDelete   error
	statusWrites int
}

func newFakeEnrollmentRepo(requests ...models.EnrollmentRequest) *fakeEnrollmentRepo {
	repo := &fakeEnrollmentRepo{requests: make(map[string]*models.EnrollmentRequest)}
	for i := range requests {
		r := requests[i]
		if r.ContactFingerprint == "" {
			r.ContactFingerprint = models.ContactFingerprint(r.Contact)
		}
		repo.requests[r.ID] = &r
	}
	return repo
}

func (f *fakeEnrollmentRepo) get(id string) models.EnrollmentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.requests[id]
}

func (f *fakeEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnrollmentRequest
	for _, r := range f.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *fakeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentRepo) ExistsByFingerprint(ctx context.Context, fingerprint, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.requests {
		if id != excludeID && r.ContactFingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.ContactFingerprint == request.ContactFingerprint {
			return repository.ErrDuplicateContact
		}
	}
	f.nextID++
	if request.ID == "" {
		request.ID = fmt.Sprintf("req-%d", f.nextID)
	}
	cp := *request
	f.requests[request.ID] = &cp
	return nil
}

// locked checks the guard and applies the seat change; callers hold f.mu so the
// pair behaves like one transaction.
func (f *fakeEnrollmentRepo) locked(id string, expected repository.RequestGuard, seat repository.SeatChange) (*models.EnrollmentRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if r.Status != expected.Status || !strings.EqualFold(r.BatchName, expected.BatchName) {
		return nil, repository.ErrRequestChanged
	}
	if f.seats != nil {
		if err := f.seats.applySeat(seat); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (f *fakeEnrollmentRepo) Update(ctx context.Context, request *models.EnrollmentRequest, expected repository.RequestGuard, seat repository.SeatChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	if _, err := f.locked(request.ID, expected, seat); err != nil {
		return err
	}
	cp := *request
	f.requests[request.ID] = &cp
	return nil
}

func (f *fakeEnrollmentRepo) UpdateStatus(ctx context.Context, id string, expected repository.RequestGuard, status models.EnrollmentStatus, notes *string, seat repository.SeatChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStatus != nil {
		return f.failStatus
	}
	r, err := f.locked(id, expected, seat)
	if err != nil {
		return err
	}
	f.statusWrites++
	r.Status = status
	r.Notes = notes
	return nil
}

func (f *fakeEnrollmentRepo) Delete(ctx context.Context, id string, expected repository.RequestGuard, seat repository.SeatChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, err := f.locked(id, expected, seat); err != nil {
		return err
	}
	delete(f.requests, id)
	return nil
}

// racingEnrollmentRepo holds the first n loads until all n have read, so that
// concurrent callers act on the same snapshot of a request.
type racingEnrollmentRepo struct {
	*fakeEnrollmentRepo
	mu      sync.Mutex
	pending int
	gate    sync.WaitGroup
}

func newRacingEnrollmentRepo(repo *fakeEnrollmentRepo, n int) *racingEnrollmentRepo {
	r := &racingEnrollmentRepo{fakeEnrollmentRepo: repo, pending: n}
	r.gate.Add(n)
	return r
}

func (r *racingEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	request, err := r.fakeEnrollmentRepo.FindByID(ctx, id)
	r.mu.Lock()
	hold := r.pending > 0
	if hold {
		r.pending--
	}
	r.mu.Unlock()
	if hold {
		r.gate.Done()
		r.gate.Wait()
	}
	return request, err
}

type recordingDispatcher struct {
	mu       sync.Mutex
	sections []string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, section string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sections = append(d.sections, section)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sections)
}

type fakeSectionStore struct {
	mu      sync.Mutex
	docs    map[string]models.SectionDocument
	upserts int
	failGet error
	failPut error
}

func newFakeSectionStore() *fakeSectionStore {
	return &fakeSectionStore{docs: make(map[string]models.SectionDocument)}
}

func (f *fakeSectionStore) List(ctx context.Context) ([]models.SectionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SectionDocument, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeSectionStore) Get(ctx context.Context, name string) (*models.SectionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	doc, ok := f.docs[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (f *fakeSectionStore) Upsert(ctx context.Context, doc *models.SectionDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return f.failPut
	}
	f.upserts++
	doc.UpdatedAt = time.Now().UTC()
	stored := *doc
	stored.Payload = append([]byte(nil), doc.Payload...)
	f.docs[doc.Name] = stored
	return nil
}

func (f *fakeSectionStore) payload(name string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.docs[name].Payload...)
}

type fakeDisplayItems struct {
	mu      sync.Mutex
	items   []models.DisplayItem
	nextID  int
	failErr error
}

func (f *fakeDisplayItems) List(ctx context.Context) ([]models.DisplayItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DisplayItem(nil), f.items...), nil
}

func (f *fakeDisplayItems) ListActive(ctx context.Context) ([]models.DisplayItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	var out []models.DisplayItem
	for _, item := range f.items {
		if item.IsActive {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeDisplayItems) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items), nil
}

func (f *fakeDisplayItems) FindByID(ctx context.Context, id string) (*models.DisplayItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == id {
			cp := item
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDisplayItems) Create(ctx context.Context, item *models.DisplayItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if item.ID == "" {
		item.ID = fmt.Sprintf("item-%d", f.nextID)
	}
	f.items = append(f.items, *item)
	return nil
}

func (f *fakeDisplayItems) BulkCreate(ctx context.Context, items []models.DisplayItem) error {
	for i := range items {
		if err := f.Create(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeDisplayItems) Update(ctx context.Context, item *models.DisplayItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == item.ID {
			f.items[i] = *item
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeDisplayItems) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type recordingInvalidator struct {
	mu       sync.Mutex
	sections []string
	err      error
}

func (r *recordingInvalidator) InvalidateSection(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sections = append(r.sections, name)
	return r.err
}

var errStorageDown = errors.New("storage down")

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }

func (f *fakeBatchStore) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Batch
	for _, b := range f.batches {
		if filter.ActiveOnly && !b.IsActive {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *fakeBatchStore) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, b := range f.batches {
		if id != excludeID && strings.EqualFold(b.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBatchStore) Create(ctx context.Context, batch *models.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch.ID == "" {
		batch.ID = fmt.Sprintf("batch-%d", len(f.batches)+1)
	}
	batch.Enrolled = 0
	batch.CreatedAt = time.Now().UTC()
	cp := *batch
	f.batches[batch.ID] = &cp
	return nil
}

func (f *fakeBatchStore) Update(ctx context.Context, batch *models.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.batches[batch.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Enrolled > batch.Capacity {
		return repository.ErrCapacityBelowEnrolled
	}
	cp := *batch
	cp.Enrolled = current.Enrolled
	f.batches[batch.ID] = &cp
	return nil
}

func (f *fakeBatchStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.batches[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.batches, id)
	return nil
}

func (f *fakeEnrollmentRepo) RenameBatch(ctx context.Context, oldName, newName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var moved int64
	for _, r := range f.requests {
		if strings.EqualFold(r.BatchName, oldName) {
			r.BatchName = newName
			moved++
		}
	}
	return moved, nil
}

func (f *fakeEnrollmentRepo) ListApprovedByBatch(ctx context.Context, batchName string) ([]models.EnrollmentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnrollmentRequest
	for _, r := range f.requests {
		if strings.EqualFold(r.BatchName, batchName) && r.Status == models.EnrollmentStatusApproved {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}
