package procurement

import (
	"context"
	"fmt"
	"time"

	"sitewarehouse/internal/repository"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type Repository interface {
	GetOrder(ctx context.Context, tx *goqu.TxDatabase, orderID int) (*models.ProcurementOrder, error)
	LockOrder(ctx context.Context, tx *goqu.TxDatabase, orderID int) (*models.ProcurementOrder, error)
	LockItem(ctx context.Context, tx *goqu.TxDatabase, orderID, itemID int) (*models.ProcurementItem, error)
	NextPOSequence(ctx context.Context, tx *goqu.TxDatabase, year int) (int, error)
	PersistOrder(ctx context.Context, tx *goqu.TxDatabase, order *models.ProcurementOrder) error
	UpdateOrder(ctx context.Context, tx *goqu.TxDatabase, order *models.ProcurementOrder) error
	UpdateItem(ctx context.Context, tx *goqu.TxDatabase, item *models.ProcurementItem) error
	AppendTracking(ctx context.Context, tx *goqu.TxDatabase, entry *models.DeliveryTracking) error
	LatestOpenDiscrepancy(ctx context.Context, tx *goqu.TxDatabase, orderID int, itemID *int) (*models.DeliveryTracking, error)
	ResolveTracking(ctx context.Context, tx *goqu.TxDatabase, entry *models.DeliveryTracking) error
	GetTracking(ctx context.Context, orderID int) ([]models.DeliveryTracking, error)
	GetUnresolvedDiscrepancies(ctx context.Context, conditions repository.QueryBuilder) ([]UnresolvedDiscrepancy, error)
}

// UnresolvedDiscrepancy is an item with a discrepancy note and no resolution.
type UnresolvedDiscrepancy struct {
	ProcurementOrderID int     `json:"procurement_order_id" db:"procurement_order_id"`
	PONumber           string  `json:"po_number" db:"po_number"`
	ProjectID          int     `json:"project_id" db:"project_id"`
	ProcurementItemID  int     `json:"procurement_item_id" db:"procurement_item_id"`
	ItemName           string  `json:"item_name" db:"item_name"`
	Quantity           int     `json:"quantity" db:"quantity"`
	QuantityReceived   int     `json:"quantity_received" db:"quantity_received"`
	DiscrepancyNotes   string  `json:"discrepancy_notes" db:"discrepancy_notes"`
	ResolutionNotes    *string `json:"resolution_notes,omitempty" db:"resolution_notes"`
}

type ProcurementRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *ProcurementRepository {
	return &ProcurementRepository{repository: r}
}

var orderColumns = []interface{}{
	"id", "po_number", "vendor_id", "project_id", "request_id", "title",
	"subtotal", "vat_rate", "vat_amount", "ewt_rate", "ewt_amount", "handling_fee", "discount_amount", "net_total",
	"status", "delivery_status", "scheduled_delivery_date", "delivery_method", "delivery_location",
	"tracking_number", "actual_delivery_date", "received_by", "received_at",
	"has_discrepancy", "discrepancy_type", "discrepancy_notes", "discrepancy_reported_by", "discrepancy_reported_at",
	"discrepancy_resolved_by", "discrepancy_resolved_at", "discrepancy_resolution_notes", "discrepancy_resolution_action",
	"is_retroactive", "retroactive_reason", "created_by", "approved_by", "approved_at", "rejection_reason",
	"created_at", "updated_at",
}

func itemColumns() []interface{} {
	return []interface{}{
		goqu.I("i.id"), goqu.I("i.procurement_order_id"), goqu.I("i.category_id"), goqu.I("i.item_name"),
		goqu.I("i.description"), goqu.I("i.unit"), goqu.I("i.quantity"), goqu.I("i.quantity_received"),
		goqu.I("i.unit_price"), goqu.I("i.subtotal"), goqu.I("i.discrepancy_notes"),
		goqu.I("i.discrepancy_resolved_at"), goqu.I("i.discrepancy_resolved_by"),
		goqu.I("i.resolution_notes"), goqu.I("i.resolution_action"),
		goqu.L("COALESCE((SELECT SUM(pia.quantity) FROM procurement_item_assets pia WHERE pia.procurement_item_id = i.id), 0)").
			As("generated_quantity"),
	}
}

func (r *ProcurementRepository) GetOrder(ctx context.Context, tx *goqu.TxDatabase, orderID int) (*models.ProcurementOrder, error) {
	query := r.repository.Conn(tx).From("procurement_orders").Select(orderColumns...).Where(goqu.Ex{"id": orderID})
	return r.fetchOrder(ctx, tx, query)
}

// LockOrder reads the order with its items and holds the order row lock
// until tx ends.
func (r *ProcurementRepository) LockOrder(ctx context.Context, tx *goqu.TxDatabase, orderID int) (*models.ProcurementOrder, error) {
	query := repository.ForUpdate(
		r.repository.Conn(tx).From("procurement_orders").Select(orderColumns...).Where(goqu.Ex{"id": orderID}),
	)
	return r.fetchOrder(ctx, tx, query)
}

func (r *ProcurementRepository) fetchOrder(ctx context.Context, tx *goqu.TxDatabase, query *goqu.SelectDataset) (*models.ProcurementOrder, error) {
	var order models.ProcurementOrder
	found, err := query.Executor().ScanStructContext(ctx, &order)
	if err != nil {
		return nil, fmt.Errorf("unable to select procurement order: %w", err)
	}
	if !found {
		return nil, nil
	}

	items, err := r.getItems(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *ProcurementRepository) getItems(ctx context.Context, tx *goqu.TxDatabase, orderID int) ([]models.ProcurementItem, error) {
	var items []models.ProcurementItem
	err := r.repository.Conn(tx).
		From(goqu.T("procurement_items").As("i")).
		Select(itemColumns()...).
		Where(goqu.Ex{"i.procurement_order_id": orderID}).
		Order(goqu.I("i.id").Asc()).
		Executor().
		ScanStructsContext(ctx, &items)
	if err != nil {
		return nil, fmt.Errorf("unable to select items of procurement order %d: %w", orderID, err)
	}

	return items, nil
}

// LockItem reads one item of the order and holds its row lock. The
// generated quantity is read under the same lock so concurrent generation
// runs see each other's links.
func (r *ProcurementRepository) LockItem(ctx context.Context, tx *goqu.TxDatabase, orderID, itemID int) (*models.ProcurementItem, error) {
	query := repository.ForUpdateOf(
		r.repository.Conn(tx).
			From(goqu.T("procurement_items").As("i")).
			Select(itemColumns()...).
			Where(goqu.Ex{"i.id": itemID, "i.procurement_order_id": orderID}),
		"i",
	)

	var item models.ProcurementItem
	found, err := query.Executor().ScanStructContext(ctx, &item)
	if err != nil {
		return nil, fmt.Errorf("unable to select procurement item %d: %w", itemID, err)
	}
	if !found {
		return nil, nil
	}

	return &item, nil
}

// NextPOSequence returns the next free PO sequence of the year under a
// transaction advisory lock.
func (r *ProcurementRepository) NextPOSequence(ctx context.Context, tx *goqu.TxDatabase, year int) (int, error) {
	conn := r.repository.Conn(tx)
	pattern := metadata.PONumberPattern(year)

	_, err := conn.Select(goqu.Func("pg_advisory_xact_lock", goqu.Func("hashtext", pattern))).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to lock PO sequence %d: %w", year, err)
	}

	var current int
	_, err = conn.From("procurement_orders").
		Select(goqu.L("COALESCE(MAX(CAST(SUBSTRING(po_number FROM ?) AS INTEGER)), 0)", pattern)).
		Where(goqu.L("po_number ~ ?", pattern)).
		Executor().
		ScanValContext(ctx, &current)
	if err != nil {
		return 0, fmt.Errorf("failed to read PO sequence %d: %w", year, err)
	}

	return current + 1, nil
}

// PersistOrder inserts the order and its items and sets their ids.
func (r *ProcurementRepository) PersistOrder(ctx context.Context, tx *goqu.TxDatabase, order *models.ProcurementOrder) error {
	conn := r.repository.Conn(tx)

	record := orderRecord(order)
	record["po_number"] = order.PONumber
	record["vendor_id"] = order.VendorID
	record["project_id"] = order.ProjectID
	record["request_id"] = order.RequestID
	record["title"] = order.Title
	record["is_retroactive"] = order.IsRetroactive
	record["retroactive_reason"] = order.RetroactiveReason
	record["created_by"] = order.CreatedBy

	_, err := conn.Insert("procurement_orders").Rows(record).Returning("id").Executor().ScanValContext(ctx, &order.ID)
	if err != nil {
		return custom_error.FromPQ(fmt.Sprintf("procurement order %s", order.PONumber), err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.ProcurementOrderID = order.ID

		_, err := conn.Insert("procurement_items").
			Rows(goqu.Record{
				"procurement_order_id": item.ProcurementOrderID,
				"category_id":          item.CategoryID,
				"item_name":            item.ItemName,
				"description":          item.Description,
				"unit":                 item.Unit,
				"quantity":             item.Quantity,
				"quantity_received":    item.QuantityReceived,
				"unit_price":           item.UnitPrice,
				"subtotal":             item.Subtotal,
			}).
			Returning("id").
			Executor().
			ScanValContext(ctx, &item.ID)
		if err != nil {
			return custom_error.FromPQ(fmt.Sprintf("procurement item %q", item.ItemName), err)
		}
	}

	return nil
}

// orderRecord holds the columns that change after creation.
func orderRecord(order *models.ProcurementOrder) goqu.Record {
	return goqu.Record{
		"subtotal":                      order.Subtotal,
		"vat_rate":                      order.VATRate,
		"vat_amount":                    order.VATAmount,
		"ewt_rate":                      order.EWTRate,
		"ewt_amount":                    order.EWTAmount,
		"handling_fee":                  order.HandlingFee,
		"discount_amount":               order.DiscountAmount,
		"net_total":                     order.NetTotal,
		"status":                        order.Status,
		"delivery_status":               order.DeliveryStatus,
		"scheduled_delivery_date":       order.ScheduledDeliveryDate,
		"delivery_method":               order.DeliveryMethod,
		"delivery_location":             order.DeliveryLocation,
		"tracking_number":               order.TrackingNumber,
		"actual_delivery_date":          order.ActualDeliveryDate,
		"received_by":                   order.ReceivedBy,
		"received_at":                   order.ReceivedAt,
		"has_discrepancy":               order.HasDiscrepancy,
		"discrepancy_type":              order.DiscrepancyType,
		"discrepancy_notes":             order.DiscrepancyNotes,
		"discrepancy_reported_by":       order.DiscrepancyReportedBy,
		"discrepancy_reported_at":       order.DiscrepancyReportedAt,
		"discrepancy_resolved_by":       order.DiscrepancyResolvedBy,
		"discrepancy_resolved_at":       order.DiscrepancyResolvedAt,
		"discrepancy_resolution_notes":  order.DiscrepancyResolutionNotes,
		"discrepancy_resolution_action": order.DiscrepancyResolutionAction,
		"approved_by":                   order.ApprovedBy,
		"approved_at":                   order.ApprovedAt,
		"rejection_reason":              order.RejectionReason,
		"updated_at":                    goqu.L("NOW()"),
	}
}

func (r *ProcurementRepository) UpdateOrder(ctx context.Context, tx *goqu.TxDatabase, order *models.ProcurementOrder) error {
	result, err := r.repository.Conn(tx).
		Update("procurement_orders").
		Set(orderRecord(order)).
		Where(goqu.Ex{"id": order.ID}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update procurement order %d: %w", order.ID, err)
	}

	return expectRow(result.RowsAffected, "procurement_order", order.ID)
}

func (r *ProcurementRepository) UpdateItem(ctx context.Context, tx *goqu.TxDatabase, item *models.ProcurementItem) error {
	result, err := r.repository.Conn(tx).
		Update("procurement_items").
		Set(goqu.Record{
			"quantity":                item.Quantity,
			"quantity_received":       item.QuantityReceived,
			"unit_price":              item.UnitPrice,
			"subtotal":                item.Subtotal,
			"discrepancy_notes":       item.DiscrepancyNotes,
			"discrepancy_resolved_at": item.DiscrepancyResolvedAt,
			"discrepancy_resolved_by": item.DiscrepancyResolvedBy,
			"resolution_notes":        item.ResolutionNotes,
			"resolution_action":       item.ResolutionAction,
		}).
		Where(goqu.Ex{"id": item.ID}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update procurement item %d: %w", item.ID, err)
	}

	return expectRow(result.RowsAffected, "procurement_item", item.ID)
}

func expectRow(rowsAffected func() (int64, error), entity string, id int) error {
	affected, err := rowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated %s %d: %w", entity, id, err)
	}
	if affected == 0 {
		return custom_error.NewNotFoundError(entity, id)
	}
	return nil
}

func (r *ProcurementRepository) AppendTracking(ctx context.Context, tx *goqu.TxDatabase, entry *models.DeliveryTracking) error {
	_, err := r.repository.Conn(tx).
		Insert("procurement_delivery_tracking").
		Rows(goqu.Record{
			"procurement_order_id": entry.ProcurementOrderID,
			"procurement_item_id":  entry.ProcurementItemID,
			"event_type":           entry.EventType,
			"delivery_status":      entry.DeliveryStatus,
			"notes":                entry.Notes,
			"discrepancy_type":     entry.DiscrepancyType,
			"resolution_notes":     entry.ResolutionNotes,
			"resolved_by":          entry.ResolvedBy,
			"resolved_at":          entry.ResolvedAt,
			"created_by":           entry.CreatedBy,
		}).
		Returning("id").
		Executor().
		ScanValContext(ctx, &entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append tracking for procurement order %d: %w", entry.ProcurementOrderID, err)
	}

	return nil
}

var trackingColumns = []interface{}{
	"id", "procurement_order_id", "procurement_item_id", "event_type", "delivery_status", "notes",
	"discrepancy_type", "resolution_notes", "resolved_by", "resolved_at", "created_by", "created_at",
}

// LatestOpenDiscrepancy returns the newest unresolved discrepancy record of
// the item, or of the order itself when itemID is nil.
func (r *ProcurementRepository) LatestOpenDiscrepancy(ctx context.Context, tx *goqu.TxDatabase, orderID int, itemID *int) (*models.DeliveryTracking, error) {
	where := goqu.Ex{
		"procurement_order_id": orderID,
		"procurement_item_id":  nil,
		"event_type":           metadata.TrackingDiscrepancy,
		"resolved_at":          nil,
	}
	if itemID != nil {
		where["procurement_item_id"] = *itemID
	}

	var entry models.DeliveryTracking
	found, err := repository.ForUpdate(
		r.repository.Conn(tx).
			From("procurement_delivery_tracking").
			Select(trackingColumns...).
			Where(where).
			Order(goqu.I("created_at").Desc(), goqu.I("id").Desc()).
			Limit(1),
	).Executor().ScanStructContext(ctx, &entry)
	if err != nil {
		return nil, fmt.Errorf("failed to select open discrepancy of procurement order %d: %w", orderID, err)
	}
	if !found {
		return nil, nil
	}

	return &entry, nil
}

func (r *ProcurementRepository) ResolveTracking(ctx context.Context, tx *goqu.TxDatabase, entry *models.DeliveryTracking) error {
	_, err := r.repository.Conn(tx).
		Update("procurement_delivery_tracking").
		Set(goqu.Record{
			"resolution_notes": entry.ResolutionNotes,
			"resolved_by":      entry.ResolvedBy,
			"resolved_at":      entry.ResolvedAt,
		}).
		Where(goqu.Ex{"id": entry.ID}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve tracking record %d: %w", entry.ID, err)
	}

	return nil
}

func (r *ProcurementRepository) GetTracking(ctx context.Context, orderID int) ([]models.DeliveryTracking, error) {
	var entries []models.DeliveryTracking
	err := r.repository.GoquDBWrapper.
		From("procurement_delivery_tracking").
		Select(trackingColumns...).
		Where(goqu.Ex{"procurement_order_id": orderID}).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc()).
		Executor().
		ScanStructsContext(ctx, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to select tracking of procurement order %d: %w", orderID, err)
	}

	return entries, nil
}

func (r *ProcurementRepository) GetUnresolvedDiscrepancies(ctx context.Context, conditions repository.QueryBuilder) ([]UnresolvedDiscrepancy, error) {
	aliases := map[string]string{
		"project_id":           "o.project_id",
		"procurement_order_id": "o.id",
	}

	query := r.repository.GoquDBWrapper.
		From(goqu.T("procurement_items").As("i")).
		InnerJoin(goqu.T("procurement_orders").As("o"), goqu.On(goqu.I("o.id").Eq(goqu.I("i.procurement_order_id")))).
		Select(
			goqu.I("o.id").As("procurement_order_id"),
			goqu.I("o.po_number"),
			goqu.I("o.project_id"),
			goqu.I("i.id").As("procurement_item_id"),
			goqu.I("i.item_name"),
			goqu.I("i.quantity"),
			goqu.I("i.quantity_received"),
			goqu.I("i.discrepancy_notes"),
			goqu.I("i.resolution_notes"),
		).
		Where(
			goqu.I("i.discrepancy_notes").IsNotNull(),
			goqu.I("i.discrepancy_resolved_at").IsNull(),
			goqu.I("o.status").NotIn(metadata.OrderCanceled, metadata.OrderRejected),
		)
	if conditions != nil && conditions.HasConditions() {
		query = query.Where(conditions.BuildConditions(aliases))
	}

	var rows []UnresolvedDiscrepancy
	if err := query.Order(goqu.I("o.id").Asc(), goqu.I("i.id").Asc()).Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to select unresolved discrepancies: %w", err)
	}

	return rows, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
