package procurement

import (
	"context"
	"sort"
	"time"

	"sitewarehouse/internal/locking"
	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/repository"
	"sitewarehouse/internal/requests"
	"sitewarehouse/internal/workflow"
	"sitewarehouse/pkg/auditlog"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
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

type MockLinker struct {
	mock.Mock
}

func (m *MockLinker) CanBeProcured(ctx context.Context, tx *goqu.TxDatabase, requestID int) (requests.Eligibility, error) {
	args := m.Called(ctx, tx, requestID)
	return args.Get(0).(requests.Eligibility), args.Error(1)
}

func (m *MockLinker) LinkToProcurementOrder(ctx context.Context, tx *goqu.TxDatabase, requestID, orderID int) error {
	args := m.Called(ctx, tx, requestID, orderID)
	return args.Error(0)
}

// fakeRepository keeps orders, items and tracking in memory. Order and item
// rows are stored separately so a transition that forgets to write an item
// is visible in tests.
type fakeRepository struct {
	orders    map[int]*models.ProcurementOrder
	tracking  []models.DeliveryTracking
	generated map[int]int
	poSeq     map[int]int
	nextOrder int
	nextItem  int
	clock     time.Time
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		orders:    map[int]*models.ProcurementOrder{},
		generated: map[int]int{},
		poSeq:     map[int]int{},
		clock:     time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC),
	}
}

func copyOrder(o *models.ProcurementOrder) *models.ProcurementOrder {
	cp := *o
	cp.Items = append([]models.ProcurementItem(nil), o.Items...)
	return &cp
}

func (f *fakeRepository) seed(o models.ProcurementOrder) *models.ProcurementOrder {
	f.nextOrder++
	o.ID = f.nextOrder
	for i := range o.Items {
		f.nextItem++
		o.Items[i].ID = f.nextItem
		o.Items[i].ProcurementOrderID = o.ID
	}
	f.orders[o.ID] = copyOrder(&o)
	return copyOrder(&o)
}

func (f *fakeRepository) stored(id int) *models.ProcurementOrder {
	return f.orders[id]
}

func (f *fakeRepository) GetOrder(_ context.Context, _ *goqu.TxDatabase, orderID int) (*models.ProcurementOrder, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := copyOrder(o)
	for i := range cp.Items {
		cp.Items[i].GeneratedQuantity = f.generated[cp.Items[i].ID]
	}
	return cp, nil
}

func (f *fakeRepository) LockOrder(ctx context.Context, tx *goqu.TxDatabase, orderID int) (*models.ProcurementOrder, error) {
	return f.GetOrder(ctx, tx, orderID)
}

func (f *fakeRepository) LockItem(ctx context.Context, tx *goqu.TxDatabase, orderID, itemID int) (*models.ProcurementItem, error) {
	o, _ := f.GetOrder(ctx, tx, orderID)
	if o == nil {
		return nil, nil
	}
	for _, item := range o.Items {
		if item.ID == itemID {
			return &item, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) NextPOSequence(_ context.Context, _ *goqu.TxDatabase, year int) (int, error) {
	f.poSeq[year]++
	return f.poSeq[year], nil
}

func (f *fakeRepository) PersistOrder(_ context.Context, _ *goqu.TxDatabase, order *models.ProcurementOrder) error {
	stored := f.seed(*order)
	order.ID = stored.ID
	for i := range order.Items {
		order.Items[i].ID = stored.Items[i].ID
		order.Items[i].ProcurementOrderID = stored.ID
	}
	return nil
}

func (f *fakeRepository) UpdateOrder(_ context.Context, _ *goqu.TxDatabase, order *models.ProcurementOrder) error {
	current, ok := f.orders[order.ID]
	if !ok {
		return custom_error.NewNotFoundError("procurement_order", order.ID)
	}
	cp := *order
	cp.Items = current.Items
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeRepository) UpdateItem(_ context.Context, _ *goqu.TxDatabase, item *models.ProcurementItem) error {
	o, ok := f.orders[item.ProcurementOrderID]
	if !ok {
		return custom_error.NewNotFoundError("procurement_item", item.ID)
	}
	for i := range o.Items {
		if o.Items[i].ID == item.ID {
			o.Items[i] = *item
			return nil
		}
	}
	return custom_error.NewNotFoundError("procurement_item", item.ID)
}

func (f *fakeRepository) AppendTracking(_ context.Context, _ *goqu.TxDatabase, entry *models.DeliveryTracking) error {
	f.clock = f.clock.Add(time.Minute)
	entry.ID = len(f.tracking) + 1
	entry.CreatedAt = f.clock
	f.tracking = append(f.tracking, *entry)
	return nil
}

func sameItem(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeRepository) LatestOpenDiscrepancy(_ context.Context, _ *goqu.TxDatabase, orderID int, itemID *int) (*models.DeliveryTracking, error) {
	for i := len(f.tracking) - 1; i >= 0; i-- {
		entry := f.tracking[i]
		if entry.ProcurementOrderID == orderID && sameItem(entry.ProcurementItemID, itemID) &&
			entry.EventType == metadata.TrackingDiscrepancy && entry.ResolvedAt == nil {
			return &entry, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) ResolveTracking(_ context.Context, _ *goqu.TxDatabase, entry *models.DeliveryTracking) error {
	f.tracking[entry.ID-1] = *entry
	return nil
}

func (f *fakeRepository) GetTracking(_ context.Context, orderID int) ([]models.DeliveryTracking, error) {
	var out []models.DeliveryTracking
	for _, entry := range f.tracking {
		if entry.ProcurementOrderID == orderID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeRepository) GetUnresolvedDiscrepancies(_ context.Context, conditions repository.QueryBuilder) ([]UnresolvedDiscrepancy, error) {
	where := conditions.BuildConditions(nil)

	ids := make([]int, 0, len(f.orders))
	for id := range f.orders {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []UnresolvedDiscrepancy
	for _, id := range ids {
		o := f.orders[id]
		if project, ok := where["project_id"]; ok && project != o.ProjectID {
			continue
		}
		for _, item := range o.Items {
			if !item.HasOpenDiscrepancy() {
				continue
			}
			out = append(out, UnresolvedDiscrepancy{
				ProcurementOrderID: o.ID,
				PONumber:           o.PONumber,
				ProjectID:          o.ProjectID,
				ProcurementItemID:  item.ID,
				ItemName:           item.ItemName,
				Quantity:           item.Quantity,
				QuantityReceived:   item.QuantityReceived,
				DiscrepancyNotes:   *item.DiscrepancyNotes,
				ResolutionNotes:    item.ResolutionNotes,
			})
		}
	}
	return out, nil
}

type serviceFixture struct {
	service    *ProcurementService
	repo       *fakeRepository
	access     *MockAccessChecker
	recorder   *MockRecorder
	categories *MockCategoryReader
	linker     *MockLinker
}

var fixedNow = time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC)

func newFixture() *serviceFixture {
	f := &serviceFixture{
		repo:       newFakeRepository(),
		access:     new(MockAccessChecker),
		recorder:   new(MockRecorder),
		categories: new(MockCategoryReader),
		linker:     new(MockLinker),
	}

	f.access.On("HasProjectAccess", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	f.recorder.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.categories.On("GetCategory", mock.Anything, mock.Anything, capitalCategory.ID).Return(&capitalCategory, nil).Maybe()
	f.categories.On("GetCategory", mock.Anything, mock.Anything, expenseCategory.ID).Return(&expenseCategory, nil).Maybe()
	f.categories.On("GetCategory", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()

	rt := workflow.Runtime{
		Tx:         fakeTransactor{},
		Access:     f.access,
		Audit:      f.recorder,
		Locker:     locking.NewNoopLocker(),
		Dispatcher: notifications.NewLogDispatcher(zap.NewNop()),
		Logger:     zap.NewNop(),
	}
	f.service = NewProcurementService(f.repo, f.categories, f.linker, rt, Defaults{
		VATRate: decimal.NewFromInt(12),
		EWTRate: decimal.Zero,
	})
	f.service.now = func() time.Time { return fixedNow }
	return f
}

var (
	capitalCategory = models.Category{
		ID:                        1,
		Name:                      "Heavy equipment",
		Code:                      "HEQ",
		AssetType:                 models.AssetTypeCapital,
		GeneratesAssets:           true,
		CapitalizationThreshold:   decimal.NewFromInt(10000),
		AutoExpenseBelowThreshold: true,
	}
	expenseCategory = models.Category{
		ID:   3,
		Name: "Office supplies",
		Code: "OFF",
	}
)

// approvedOrder is a single-line order ready for delivery.
func (f *serviceFixture) approvedOrder(quantity int) *models.ProcurementOrder {
	return f.repo.seed(models.ProcurementOrder{
		PONumber:       "PO-2026-0001",
		VendorID:       4,
		ProjectID:      7,
		Title:          "Site generators",
		VATRate:        decimal.NewFromInt(12),
		Status:         metadata.OrderApproved,
		DeliveryStatus: metadata.DeliveryPending,
		Items: []models.ProcurementItem{
			{CategoryID: capitalCategory.ID, ItemName: "Generator 45kVA", Unit: "unit", Quantity: quantity, UnitPrice: decimal.NewFromInt(11000)},
		},
	})
}
