package transfers

import (
	"context"
	"fmt"
	"time"

	"sitewarehouse/internal/repository"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type TransferRepository interface {
	GetTransfer(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Transfer, error)
	LockTransfer(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Transfer, error)
	GetTransfersBy(ctx context.Context, projectID *int, conditions repository.QueryBuilder) ([]models.Transfer, error)
	HasOpenTransfer(ctx context.Context, tx *goqu.TxDatabase, assetID int) (bool, error)
	InsertTransfer(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer) error
	UpdateTransfer(ctx context.Context, tx *goqu.TxDatabase, transfer *models.Transfer) error
	GetOverdueReturns(ctx context.Context, now time.Time) ([]models.Transfer, error)
}

type transferRepository struct {
	Repo *repository.Repository
}

func NewRepository(r *repository.Repository) *transferRepository {
	return &transferRepository{Repo: r}
}

func (r *transferRepository) getTransferQuery(tx *goqu.TxDatabase) *goqu.SelectDataset {
	return r.Repo.Conn(tx).
		From(goqu.T("transfers").As("t")).
		Select(
			goqu.L("t.*"),
			goqu.I("a.ref").As("asset_ref"),
		).
		LeftJoin(
			goqu.T("assets").As("a"),
			goqu.On(goqu.Ex{"t.asset_id": goqu.I("a.id")}),
		)
}

func (r *transferRepository) GetTransfer(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Transfer, error) {
	return r.fetchTransfer(ctx, r.getTransferQuery(tx).Where(goqu.Ex{"t.id": id}))
}

// LockTransfer reads the transfer and holds its row lock until tx ends.
func (r *transferRepository) LockTransfer(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Transfer, error) {
	return r.fetchTransfer(ctx, repository.ForUpdateOf(r.getTransferQuery(tx).Where(goqu.Ex{"t.id": id}), "t"))
}

func (r *transferRepository) fetchTransfer(ctx context.Context, query *goqu.SelectDataset) (*models.Transfer, error) {
	var transfer models.Transfer
	found, err := query.Executor().ScanStructContext(ctx, &transfer)
	if err != nil {
		return nil, fmt.Errorf("error executing SQL statement: %w", err)
	}
	if !found {
		return nil, nil
	}

	return &transfer, nil
}

// GetTransfersBy filters by the given columns. projectID matches either
// end of the transfer.
func (r *transferRepository) GetTransfersBy(ctx context.Context, projectID *int, conditions repository.QueryBuilder) ([]models.Transfer, error) {
	query := r.getTransferQuery(nil)

	if conditions != nil && conditions.HasConditions() {
		aliases := map[string]string{
			"asset_id":      "t.asset_id",
			"status":        "t.status",
			"transfer_type": "t.transfer_type",
			"return_status": "t.return_status",
		}
		query = query.Where(conditions.BuildConditions(aliases))
	}
	if projectID != nil {
		query = query.Where(goqu.Or(
			goqu.I("t.from_project_id").Eq(*projectID),
			goqu.I("t.to_project_id").Eq(*projectID),
		))
	}

	var transfers []models.Transfer
	if err := query.Order(goqu.I("t.id").Desc()).Executor().ScanStructsContext(ctx, &transfers); err != nil {
		return nil, fmt.Errorf("error executing SQL statement: %w", err)
	}

	return transfers, nil
}

// HasOpenTransfer reports an unfinished transfer of the asset, including a
// completed temporary transfer whose return has not been received.
func (r *transferRepository) HasOpenTransfer(ctx context.Context, tx *goqu.TxDatabase, assetID int) (bool, error) {
	var count int
	_, err := r.Repo.Conn(tx).
		From("transfers").
		Select(goqu.COUNT("id")).
		Where(
			goqu.C("asset_id").Eq(assetID),
			goqu.Or(
				goqu.C("status").NotIn(string(metadata.TransferCompleted), string(metadata.TransferCanceled)),
				goqu.And(
					goqu.C("status").Eq(string(metadata.TransferCompleted)),
					goqu.C("transfer_type").Eq(string(metadata.TransferTemporary)),
					goqu.C("return_status").Neq(string(metadata.ReturnReturned)),
				),
			),
		).
		Executor().
		ScanValContext(ctx, &count)
	if err != nil {
		return false, fmt.Errorf("failed to check open transfers of asset %d: %w", assetID, err)
	}

	return count > 0, nil
}

func (r *transferRepository) InsertTransfer(ctx context.Context, tx *goqu.TxDatabase, t *models.Transfer) error {
	record := transferRecord(t)
	record["asset_id"] = t.AssetID
	record["from_project_id"] = t.FromProjectID
	record["to_project_id"] = t.ToProjectID
	record["transfer_type"] = t.TransferType
	record["reason"] = t.Reason
	record["notes"] = t.Notes
	record["transfer_date"] = t.TransferDate
	record["expected_return"] = t.ExpectedReturn
	record["initiated_by"] = t.InitiatedBy

	query := r.Repo.Conn(tx).Insert("transfers").Rows(record).Returning("id")
	if _, err := query.Executor().ScanValContext(ctx, &t.ID); err != nil {
		return fmt.Errorf("failed to insert transfer record: %w", err)
	}

	return nil
}

func transferRecord(t *models.Transfer) goqu.Record {
	return goqu.Record{
		"status":              t.Status,
		"return_status":       t.ReturnStatus,
		"actual_return":       t.ActualReturn,
		"verified_by":         t.VerifiedBy,
		"verification_date":   t.VerificationDate,
		"approved_by":         t.ApprovedBy,
		"approval_date":       t.ApprovalDate,
		"dispatched_by":       t.DispatchedBy,
		"dispatch_date":       t.DispatchDate,
		"received_by":         t.ReceivedBy,
		"receipt_date":        t.ReceiptDate,
		"canceled_by":         t.CanceledBy,
		"canceled_at":         t.CanceledAt,
		"cancel_reason":       t.CancelReason,
		"return_initiated_by": t.ReturnInitiatedBy,
		"return_initiated_at": t.ReturnInitiatedAt,
		"return_received_by":  t.ReturnReceivedBy,
		"updated_at":          goqu.L("NOW()"),
	}
}

func (r *transferRepository) UpdateTransfer(ctx context.Context, tx *goqu.TxDatabase, t *models.Transfer) error {
	query := r.Repo.Conn(tx).
		Update("transfers").
		Set(transferRecord(t)).
		Where(goqu.Ex{"id": t.ID})

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to update transfer %d: %w", t.ID, err)
	}

	return nil
}

func (r *transferRepository) GetOverdueReturns(ctx context.Context, now time.Time) ([]models.Transfer, error) {
	query := r.getTransferQuery(nil).
		Where(
			goqu.I("t.transfer_type").Eq(string(metadata.TransferTemporary)),
			goqu.I("t.status").Eq(string(metadata.TransferCompleted)),
			goqu.I("t.return_status").Eq(string(metadata.ReturnNotReturned)),
			goqu.I("t.expected_return").Lt(now),
		).
		Order(goqu.I("t.expected_return").Asc())

	var transfers []models.Transfer
	if err := query.Executor().ScanStructsContext(ctx, &transfers); err != nil {
		return nil, fmt.Errorf("failed to select overdue returns: %w", err)
	}

	return transfers, nil
}
