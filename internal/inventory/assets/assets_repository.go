package assets

import (
	"context"
	"fmt"
	"time"

	"sitewarehouse/internal/repository"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

type Repository interface {
	GetAsset(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Asset, error)
	LockAsset(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Asset, error)
	GetAssetsBy(ctx context.Context, conditions repository.QueryBuilder) ([]models.Asset, error)
	NextRefSequence(ctx context.Context, tx *goqu.TxDatabase, prefix, categoryCode string) (int, error)
	PersistAsset(ctx context.Context, tx *goqu.TxDatabase, asset *models.Asset) error
	UpdateWorkflow(ctx context.Context, tx *goqu.TxDatabase, asset *models.Asset) error
	UpdateQuantity(ctx context.Context, tx *goqu.TxDatabase, asset *models.Asset) error
	UpdateStatusAndProject(ctx context.Context, tx *goqu.TxDatabase, id, projectID int, status metadata.Status) error
	OpenReferences(ctx context.Context, tx *goqu.TxDatabase, id int) ([]string, error)
	RemoveAsset(ctx context.Context, tx *goqu.TxDatabase, id int) error
	LinkProcurementItem(ctx context.Context, tx *goqu.TxDatabase, itemID, assetID, quantity int) error
	FindGeneratedAsset(ctx context.Context, tx *goqu.TxDatabase, itemID int) (*models.Asset, error)
}

type AssetsRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *AssetsRepository {
	return &AssetsRepository{
		repository: r,
	}
}

func (r *AssetsRepository) GetAsset(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Asset, error) {
	return r.fetchFlatAsset(ctx, r.getAssetQuery(tx).Where(goqu.Ex{"a.id": id}))
}

// LockAsset reads the asset and holds its row lock until tx ends.
func (r *AssetsRepository) LockAsset(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Asset, error) {
	query := repository.ForUpdateOf(r.getAssetQuery(tx).Where(goqu.Ex{"a.id": id}), "a")
	return r.fetchFlatAsset(ctx, query)
}

func (r *AssetsRepository) GetAssetsBy(ctx context.Context, conditions repository.QueryBuilder) ([]models.Asset, error) {
	aliases := map[string]string{
		"project_id":      "a.project_id",
		"category_id":     "a.category_id",
		"status":          "a.status",
		"workflow_status": "a.workflow_status",
		"is_legacy":       "a.is_legacy",
		"procurement_id":  "a.procurement_order_id",
	}

	query := r.getAssetQuery(nil)
	if conditions != nil && conditions.HasConditions() {
		query = query.Where(conditions.BuildConditions(aliases))
	}
	query = query.Order(goqu.I("a.id").Asc())

	var flatAssets []models.FlatAssetRecord
	if err := query.Executor().ScanStructsContext(ctx, &flatAssets); err != nil {
		return nil, fmt.Errorf("unable to select assets from database: %w", err)
	}

	assets := make([]models.Asset, 0, len(flatAssets))
	for _, flatAsset := range flatAssets {
		assets = append(assets, flatAsset.TransformToAsset())
	}

	return assets, nil
}

// NextRefSequence returns the next free sequence for prefix/category. The
// advisory lock serialises concurrent creations of the same reference
// family until tx commits.
func (r *AssetsRepository) NextRefSequence(ctx context.Context, tx *goqu.TxDatabase, prefix, categoryCode string) (int, error) {
	conn := r.repository.Conn(tx)
	pattern := metadata.RefPattern(prefix, categoryCode)

	_, err := conn.Select(goqu.Func("pg_advisory_xact_lock", goqu.Func("hashtext", pattern))).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to lock reference sequence %s: %w", pattern, err)
	}

	var current int
	_, err = conn.From("assets").
		Select(goqu.L("COALESCE(MAX(CAST(SUBSTRING(ref FROM ?) AS INTEGER)), 0)", pattern)).
		Where(goqu.L("ref ~ ?", pattern)).
		Executor().
		ScanValContext(ctx, &current)
	if err != nil {
		return 0, fmt.Errorf("failed to read reference sequence %s: %w", pattern, err)
	}

	return current + 1, nil
}

func (r *AssetsRepository) PersistAsset(ctx context.Context, tx *goqu.TxDatabase, asset *models.Asset) error {
	disciplines, err := metadata.JoinDisciplines(asset.Disciplines)
	if err != nil {
		return custom_error.NewFieldError("disciplines", err.Error())
	}

	query := r.repository.Conn(tx).
		Insert("assets").
		Rows(goqu.Record{
			"ref":                  asset.Ref,
			"name":                 asset.Name,
			"description":          asset.Description,
			"category_id":          asset.Category.ID,
			"project_id":           asset.ProjectID,
			"acquired_date":        asset.AcquiredDate,
			"acquisition_cost":     asset.AcquisitionCost,
			"unit_cost":            asset.UnitCost,
			"quantity":             asset.Quantity,
			"available_quantity":   asset.AvailableQuantity,
			"unit":                 asset.Unit,
			"status":               asset.Status,
			"workflow_status":      asset.WorkflowStatus,
			"procurement_order_id": asset.ProcurementOrderID,
			"procurement_item_id":  asset.ProcurementItemID,
			"disciplines":          disciplines,
			"is_legacy":            asset.IsLegacy,
			"created_by":           asset.CreatedBy,
			"authorized_by":        asset.AuthorizedBy,
			"authorization_date":   asset.AuthorizationDate,
		}).
		Returning("id")

	if _, err := query.Executor().ScanValContext(ctx, &asset.ID); err != nil {
		return custom_error.FromPQ(fmt.Sprintf("asset reference %s already exists", asset.Ref), err)
	}

	return nil
}

func (r *AssetsRepository) UpdateWorkflow(ctx context.Context, tx *goqu.TxDatabase, asset *models.Asset) error {
	return r.updateAsset(ctx, tx, asset.ID, goqu.Record{
		"status":             asset.Status,
		"workflow_status":    asset.WorkflowStatus,
		"made_by":            asset.MadeBy,
		"made_at":            asset.MadeAt,
		"verified_by":        asset.VerifiedBy,
		"verification_date":  asset.VerificationDate,
		"authorized_by":      asset.AuthorizedBy,
		"authorization_date": asset.AuthorizationDate,
		"rejected_by":        asset.RejectedBy,
		"rejected_at":        asset.RejectedAt,
		"rejection_reason":   asset.RejectionReason,
	})
}

func (r *AssetsRepository) UpdateQuantity(ctx context.Context, tx *goqu.TxDatabase, asset *models.Asset) error {
	return r.updateAsset(ctx, tx, asset.ID, goqu.Record{
		"quantity":           asset.Quantity,
		"available_quantity": asset.AvailableQuantity,
		"acquisition_cost":   asset.AcquisitionCost,
	})
}

func (r *AssetsRepository) UpdateStatusAndProject(ctx context.Context, tx *goqu.TxDatabase, id, projectID int, status metadata.Status) error {
	return r.updateAsset(ctx, tx, id, goqu.Record{
		"project_id": projectID,
		"status":     status,
	})
}

// openReferenceChecks lists the neighbouring records that keep an asset alive.
var openReferenceChecks = []struct {
	label string
	table string
	where exp.Expression
}{
	{
		label: "withdrawals",
		table: "withdrawals",
		where: goqu.C("status").NotIn("completed", "returned", "canceled", "rejected"),
	},
	{
		label: "transfers",
		table: "transfers",
		where: goqu.Or(
			goqu.C("status").NotIn(string(metadata.TransferCompleted), string(metadata.TransferCanceled)),
			goqu.And(
				goqu.C("status").Eq(string(metadata.TransferCompleted)),
				goqu.C("transfer_type").Eq(string(metadata.TransferTemporary)),
				goqu.C("return_status").Neq(string(metadata.ReturnReturned)),
			),
		),
	},
	{
		label: "borrowed_tools",
		table: "borrowed_tools",
		where: goqu.C("status").NotIn("returned", "canceled"),
	},
	{
		label: "maintenance",
		table: "maintenance",
		where: goqu.C("status").NotIn("completed", "canceled"),
	},
}

// OpenReferences returns the record types that block deleting the asset.
func (r *AssetsRepository) OpenReferences(ctx context.Context, tx *goqu.TxDatabase, id int) ([]string, error) {
	var blocking []string
	for _, check := range openReferenceChecks {
		var count int
		_, err := r.repository.Conn(tx).
			From(check.table).
			Select(goqu.COUNT("*")).
			Where(goqu.C("asset_id").Eq(id), check.where).
			Executor().
			ScanValContext(ctx, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s referencing asset %d: %w", check.label, id, err)
		}
		if count > 0 {
			blocking = append(blocking, check.label)
		}
	}

	return blocking, nil
}

func (r *AssetsRepository) RemoveAsset(ctx context.Context, tx *goqu.TxDatabase, id int) error {
	conn := r.repository.Conn(tx)

	if _, err := conn.Delete("procurement_item_assets").Where(goqu.Ex{"asset_id": id}).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to unlink asset %d from procurement items: %w", id, err)
	}

	result, err := conn.Delete("assets").Where(goqu.Ex{"id": id}).Executor().ExecContext(ctx)
	if err != nil {
		return custom_error.FromPQ(fmt.Sprintf("asset %d", id), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return custom_error.NewNotFoundError("asset", id)
	}

	return nil
}

func (r *AssetsRepository) LinkProcurementItem(ctx context.Context, tx *goqu.TxDatabase, itemID, assetID, quantity int) error {
	_, err := r.repository.Conn(tx).
		Insert("procurement_item_assets").
		Rows(goqu.Record{
			"procurement_item_id": itemID,
			"asset_id":            assetID,
			"quantity":            quantity,
		}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to link asset %d to procurement item %d: %w", assetID, itemID, err)
	}

	return nil
}

// FindGeneratedAsset returns the pooled asset already minted from itemID,
// locked for update, or nil when none exists.
func (r *AssetsRepository) FindGeneratedAsset(ctx context.Context, tx *goqu.TxDatabase, itemID int) (*models.Asset, error) {
	conn := r.repository.Conn(tx)
	query := r.getAssetQuery(tx).
		Where(goqu.I("a.id").In(
			conn.From("procurement_item_assets").
				Select("asset_id").
				Where(goqu.Ex{"procurement_item_id": itemID}),
		)).
		Order(goqu.I("a.id").Asc()).
		Limit(1)

	return r.fetchFlatAsset(ctx, repository.ForUpdateOf(query, "a"))
}

func (r *AssetsRepository) getAssetQuery(tx *goqu.TxDatabase) *goqu.SelectDataset {
	return r.repository.Conn(tx).
		From(goqu.T("assets").As("a")).
		Join(
			goqu.T("categories").As("c"),
			goqu.On(goqu.Ex{"a.category_id": goqu.I("c.id")}),
		).
		Select(
			goqu.I("a.id").As("asset_id"),
			goqu.I("a.ref").As("ref"),
			goqu.I("a.name").As("name"),
			goqu.I("a.description").As("description"),
			goqu.I("a.project_id").As("project_id"),
			goqu.I("a.acquired_date").As("acquired_date"),
			goqu.I("a.acquisition_cost").As("acquisition_cost"),
			goqu.I("a.unit_cost").As("unit_cost"),
			goqu.I("a.quantity").As("quantity"),
			goqu.I("a.available_quantity").As("available_quantity"),
			goqu.I("a.unit").As("unit"),
			goqu.I("a.status").As("status"),
			goqu.I("a.workflow_status").As("workflow_status"),
			goqu.I("a.procurement_order_id").As("procurement_order_id"),
			goqu.I("a.procurement_item_id").As("procurement_item_id"),
			goqu.I("a.disciplines").As("disciplines"),
			goqu.I("a.is_legacy").As("is_legacy"),
			goqu.I("a.created_by").As("created_by"),
			goqu.I("a.made_by").As("made_by"),
			goqu.I("a.made_at").As("made_at"),
			goqu.I("a.verified_by").As("verified_by"),
			goqu.I("a.verification_date").As("verification_date"),
			goqu.I("a.authorized_by").As("authorized_by"),
			goqu.I("a.authorization_date").As("authorization_date"),
			goqu.I("a.rejected_by").As("rejected_by"),
			goqu.I("a.rejected_at").As("rejected_at"),
			goqu.I("a.rejection_reason").As("rejection_reason"),
			goqu.I("a.created_at").As("created_at"),
			goqu.I("a.updated_at").As("updated_at"),
			goqu.I("c.id").As("category_id"),
			goqu.I("c.name").As("category_name"),
			goqu.I("c.code").As("category_code"),
			goqu.I("c.asset_type").As("category_asset_type"),
			goqu.I("c.is_consumable").As("category_is_consumable"),
			goqu.I("c.generates_assets").As("category_generates_assets"),
			goqu.I("c.capitalization_threshold").As("category_capitalization_threshold"),
			goqu.I("c.auto_expense_below_threshold").As("category_auto_expense_below_threshold"),
		)
}

func (r *AssetsRepository) fetchFlatAsset(ctx context.Context, query *goqu.SelectDataset) (*models.Asset, error) {
	var flatAsset models.FlatAssetRecord
	found, err := query.Executor().ScanStructContext(ctx, &flatAsset)
	if err != nil {
		return nil, fmt.Errorf("error executing SQL statement for asset: %w", err)
	}
	if !found {
		return nil, nil
	}

	asset := flatAsset.TransformToAsset()
	return &asset, nil
}

func (r *AssetsRepository) updateAsset(ctx context.Context, tx *goqu.TxDatabase, id int, record goqu.Record) error {
	record["updated_at"] = time.Now()

	result, err := r.repository.Conn(tx).
		Update("assets").
		Set(record).
		Where(goqu.Ex{"id": id}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update asset %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no asset found with id: %d", id)
	}

	return nil
}
