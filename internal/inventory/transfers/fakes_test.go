package transfers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sitewarehouse/internal/locking"
	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/repository"
	"sitewarehouse/internal/workflow"
	"sitewarehouse/pkg/auditlog"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

// fakeTransactor applies the repository's staged transfer writes only when
// fn succeeds.
type fakeTransactor struct {
	repo *fakeRepository
}

func (t fakeTransactor) WithTransaction(_ context.Context, fn func(tx *goqu.TxDatabase) error) error {
	err := fn(nil)
	t.repo.finish(err == nil)
	return err
}

type MockAccessChecker struct {
	mock.Mock
}

func (m *MockAccessChecker) HasProjectAccess(ctx context.Context, actor models.Actor, projectID int) (bool, error) {
	args := m.Called(ctx, actor, projectID)
	return args.Bool(0), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, tx *goqu.TxDatabase, actor models.Actor, action string, item auditlog.Auditable, change auditlog.Change) error {
	args := m.Called(ctx, tx, actor, action, item, change)
	return args.Error(0)
}

// recordingDispatcher keeps every event type it was asked to deliver.
type recordingDispatcher struct {
	events []notifications.EventType
}

func (d *recordingDispatcher) Notify(_ context.Context, event notifications.Event) error {
	d.events = append(d.events, event.Type)
	return nil
}

type fakeAssets struct {
	assets    map[int]*models.Asset
	updateErr error
}

func (f *fakeAssets) LockAsset(_ context.Context, _ *goqu.TxDatabase, id int) (*models.Asset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssets) UpdateStatusAndProject(_ context.Context, _ *goqu.TxDatabase, id, projectID int, status metadata.Status) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.assets[id]
	if !ok {
		return fmt.Errorf("no asset found with id: %d", id)
	}
	a.ProjectID = projectID
	a.Status = status
	return nil
}

type fakeRepository struct {
	transfers map[int]*models.Transfer
	staged    []models.Transfer
	nextID    int
}

func (f *fakeRepository) finish(commit bool) {
	if commit {
		for _, t := range f.staged {
			f.put(t)
		}
	}
	f.staged = nil
}

func (f *fakeRepository) put(t models.Transfer) *models.Transfer {
	if t.ID == 0 {
		f.nextID++
		t.ID = f.nextID
	}
	f.transfers[t.ID] = &t
	return &t
}

func (f *fakeRepository) GetTransfer(_ context.Context, _ *goqu.TxDatabase, id int) (*models.Transfer, error) {
	t, ok := f.transfers[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepository) LockTransfer(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Transfer, error) {
	return f.GetTransfer(ctx, tx, id)
}

func (f *fakeRepository) GetTransfersBy(_ context.Context, projectID *int, _ repository.QueryBuilder) ([]models.Transfer, error) {
	ids := make([]int, 0, len(f.transfers))
	for id := range f.transfers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := []models.Transfer{}
	for _, id := range ids {
		t := f.transfers[id]
		if projectID != nil && t.FromProjectID != *projectID && t.ToProjectID != *projectID {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeRepository) HasOpenTransfer(_ context.Context, _ *goqu.TxDatabase, assetID int) (bool, error) {
	for _, t := range f.transfers {
		if t.AssetID != assetID {
			continue
		}
		if !t.Status.IsTerminal() {
			return true, nil
		}
		if t.Status == metadata.TransferCompleted && t.IsTemporary() && t.ReturnStatus != metadata.ReturnReturned {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) InsertTransfer(_ context.Context, _ *goqu.TxDatabase, t *models.Transfer) error {
	f.nextID++
	t.ID = f.nextID
	f.staged = append(f.staged, *t)
	return nil
}

func (f *fakeRepository) UpdateTransfer(_ context.Context, _ *goqu.TxDatabase, t *models.Transfer) error {
	f.staged = append(f.staged, *t)
	return nil
}

func (f *fakeRepository) GetOverdueReturns(_ context.Context, now time.Time) ([]models.Transfer, error) {
	out := []models.Transfer{}
	for _, t := range f.transfers {
		if t.IsTemporary() && t.Status == metadata.TransferCompleted &&
			t.ReturnStatus == metadata.ReturnNotReturned && t.ExpectedReturn != nil && t.ExpectedReturn.Before(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

type serviceFixture struct {
	service    *TransferService
	repo       *fakeRepository
	assets     *fakeAssets
	access     *MockAccessChecker
	recorder   *MockRecorder
	dispatcher *recordingDispatcher
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		repo:       &fakeRepository{transfers: map[int]*models.Transfer{}},
		assets:     &fakeAssets{assets: map[int]*models.Asset{}},
		access:     new(MockAccessChecker),
		recorder:   new(MockRecorder),
		dispatcher: &recordingDispatcher{},
	}

	f.access.On("HasProjectAccess", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	f.recorder.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	rt := workflow.Runtime{
		Tx:         fakeTransactor{repo: f.repo},
		Access:     f.access,
		Audit:      f.recorder,
		Locker:     locking.NewNoopLocker(),
		Dispatcher: f.dispatcher,
		Logger:     zap.NewNop(),
	}
	f.service = NewTransferService(f.repo, f.assets, rt)
	f.service.now = func() time.Time { return fixedNow }
	return f
}

// availableAsset seeds an approved excavator sitting idle at project 7.
func (f *serviceFixture) availableAsset() *models.Asset {
	a := &models.Asset{
		ID:             21,
		Ref:            "CL-HEQ-00021",
		Name:           "Excavator",
		ProjectID:      7,
		Status:         metadata.StatusAvailable,
		WorkflowStatus: metadata.WorkflowApproved,
	}
	f.assets.assets[a.ID] = a
	return a
}

func (f *serviceFixture) asset(id int) models.Asset {
	return *f.assets.assets[id]
}

// seedTransfer stores a transfer of asset 21 from project 7 to 9 and puts
// the asset in the state that matches the transfer status.
func (f *serviceFixture) seedTransfer(status metadata.TransferStatus, transferType metadata.TransferType) *models.Transfer {
	asset := f.availableAsset()
	asset.Status = metadata.AssetStatusFor(status)
	if status == metadata.TransferCompleted {
		asset.ProjectID = 9
	}

	t := models.Transfer{
		AssetID:       asset.ID,
		AssetRef:      asset.Ref,
		FromProjectID: 7,
		ToProjectID:   9,
		TransferType:  transferType,
		TransferDate:  fixedNow.AddDate(0, 0, -10),
		Status:        status,
		ReturnStatus:  metadata.ReturnNotReturned,
		InitiatedBy:   11,
	}
	if transferType == metadata.TransferTemporary {
		expected := fixedNow.AddDate(0, 0, -2)
		t.ExpectedReturn = &expected
	}
	return f.repo.put(t)
}
