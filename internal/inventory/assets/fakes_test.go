package assets

import (
	"context"
	"fmt"
	"sort"

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

type fakeTransactor struct{}

func (fakeTransactor) WithTransaction(_ context.Context, fn func(tx *goqu.TxDatabase) error) error {
	return fn(nil)
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

type MockCategoryReader struct {
	mock.Mock
}

func (m *MockCategoryReader) GetCategory(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Category, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}

type assetLink struct {
	assetID  int
	quantity int
}

// fakeRepository keeps assets in memory so multi-step flows can be observed.
type fakeRepository struct {
	assets   map[int]*models.Asset
	links    map[int][]assetLink
	openRefs map[int][]string
	seq      map[string]int
	nextID   int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		assets:   map[int]*models.Asset{},
		links:    map[int][]assetLink{},
		openRefs: map[int][]string{},
		seq:      map[string]int{},
	}
}

func (f *fakeRepository) put(a models.Asset) *models.Asset {
	if a.ID == 0 {
		f.nextID++
		a.ID = f.nextID
	}
	f.assets[a.ID] = &a
	return &a
}

func (f *fakeRepository) generated(itemID int) int {
	total := 0
	for _, l := range f.links[itemID] {
		total += l.quantity
	}
	return total
}

func (f *fakeRepository) GetAsset(_ context.Context, _ *goqu.TxDatabase, id int) (*models.Asset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepository) LockAsset(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Asset, error) {
	return f.GetAsset(ctx, tx, id)
}

func (f *fakeRepository) GetAssetsBy(_ context.Context, conditions repository.QueryBuilder) ([]models.Asset, error) {
	ids := make([]int, 0, len(f.assets))
	for id := range f.assets {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]models.Asset, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.assets[id])
	}
	return out, nil
}

func (f *fakeRepository) NextRefSequence(_ context.Context, _ *goqu.TxDatabase, prefix, code string) (int, error) {
	f.seq[prefix+code]++
	return f.seq[prefix+code], nil
}

func (f *fakeRepository) PersistAsset(_ context.Context, _ *goqu.TxDatabase, asset *models.Asset) error {
	stored := f.put(*asset)
	asset.ID = stored.ID
	return nil
}

func (f *fakeRepository) UpdateWorkflow(_ context.Context, _ *goqu.TxDatabase, asset *models.Asset) error {
	f.put(*asset)
	return nil
}

func (f *fakeRepository) UpdateQuantity(_ context.Context, _ *goqu.TxDatabase, asset *models.Asset) error {
	f.put(*asset)
	return nil
}

func (f *fakeRepository) UpdateStatusAndProject(_ context.Context, _ *goqu.TxDatabase, id, projectID int, status metadata.Status) error {
	a, ok := f.assets[id]
	if !ok {
		return fmt.Errorf("no asset found with id: %d", id)
	}
	a.ProjectID = projectID
	a.Status = status
	return nil
}

func (f *fakeRepository) OpenReferences(_ context.Context, _ *goqu.TxDatabase, id int) ([]string, error) {
	return f.openRefs[id], nil
}

func (f *fakeRepository) RemoveAsset(_ context.Context, _ *goqu.TxDatabase, id int) error {
	delete(f.assets, id)
	return nil
}

func (f *fakeRepository) LinkProcurementItem(_ context.Context, _ *goqu.TxDatabase, itemID, assetID, quantity int) error {
	f.links[itemID] = append(f.links[itemID], assetLink{assetID: assetID, quantity: quantity})
	return nil
}

func (f *fakeRepository) FindGeneratedAsset(ctx context.Context, tx *goqu.TxDatabase, itemID int) (*models.Asset, error) {
	links := f.links[itemID]
	if len(links) == 0 {
		return nil, nil
	}
	return f.GetAsset(ctx, tx, links[0].assetID)
}

// fakeProcurement derives generated quantities from the fake repository links.
type fakeProcurement struct {
	order *models.ProcurementOrder
	repo  *fakeRepository
}

func (f *fakeProcurement) GetOrder(_ context.Context, _ *goqu.TxDatabase, orderID int) (*models.ProcurementOrder, error) {
	if f.order == nil || f.order.ID != orderID {
		return nil, nil
	}
	cp := *f.order
	cp.Items = make([]models.ProcurementItem, len(f.order.Items))
	for i, item := range f.order.Items {
		item.GeneratedQuantity = f.repo.generated(item.ID)
		cp.Items[i] = item
	}
	return &cp, nil
}

func (f *fakeProcurement) LockItem(ctx context.Context, tx *goqu.TxDatabase, orderID, itemID int) (*models.ProcurementItem, error) {
	order, _ := f.GetOrder(ctx, tx, orderID)
	if order == nil {
		return nil, nil
	}
	for _, item := range order.Items {
		if item.ID == itemID {
			return &item, nil
		}
	}
	return nil, nil
}

type serviceFixture struct {
	service    *AssetService
	repo       *fakeRepository
	access     *MockAccessChecker
	recorder   *MockRecorder
	categories *MockCategoryReader
	procure    *fakeProcurement
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		repo:       newFakeRepository(),
		access:     new(MockAccessChecker),
		recorder:   new(MockRecorder),
		categories: new(MockCategoryReader),
	}
	f.procure = &fakeProcurement{repo: f.repo}

	f.access.On("HasProjectAccess", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	f.recorder.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	rt := workflow.Runtime{
		Tx:         fakeTransactor{},
		Access:     f.access,
		Audit:      f.recorder,
		Locker:     locking.NewNoopLocker(),
		Dispatcher: notifications.NewLogDispatcher(zap.NewNop()),
		Logger:     zap.NewNop(),
	}
	f.service = NewAssetService(f.repo, f.categories, f.procure, rt, "CL")
	return f
}
