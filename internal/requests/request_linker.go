package requests

import (
	"context"
	"fmt"

	"sitewarehouse/internal/repository"

	"github.com/doug-martin/goqu/v9"
)

const statusApproved = "Approved"

type Eligibility struct {
	CanBeProcured bool   `json:"can_be_procured"`
	Reason        string `json:"reason,omitempty"`
	RequestID     int    `json:"request_id"`
	ProjectID     int    `json:"project_id"`
}

// Linker ties a material request to the procurement order that fulfils it.
type Linker interface {
	CanBeProcured(ctx context.Context, tx *goqu.TxDatabase, requestID int) (Eligibility, error)
	LinkToProcurementOrder(ctx context.Context, tx *goqu.TxDatabase, requestID, orderID int) error
}

type RequestRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *RequestRepository {
	return &RequestRepository{repository: r}
}

type requestRow struct {
	ID                 int    `db:"id"`
	ProjectID          int    `db:"project_id"`
	Status             string `db:"status"`
	ProcurementOrderID *int   `db:"procurement_order_id"`
}

// CanBeProcured locks the request row so the check and the link happen
// atomically in the caller's transaction.
func (r *RequestRepository) CanBeProcured(ctx context.Context, tx *goqu.TxDatabase, requestID int) (Eligibility, error) {
	var row requestRow
	found, err := repository.ForUpdate(
		r.repository.Conn(tx).
			From("requests").
			Select("id", "project_id", "status", "procurement_order_id").
			Where(goqu.Ex{"id": requestID}),
	).Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}

	result := Eligibility{RequestID: requestID, ProjectID: row.ProjectID}
	switch {
	case !found:
		result.Reason = fmt.Sprintf("request %d does not exist", requestID)
	case row.Status != statusApproved:
		result.Reason = fmt.Sprintf("request %d is %s, only approved requests can be procured", requestID, row.Status)
	case row.ProcurementOrderID != nil:
		result.Reason = fmt.Sprintf("request %d is already linked to procurement order %d", requestID, *row.ProcurementOrderID)
	default:
		result.CanBeProcured = true
	}

	return result, nil
}

func (r *RequestRepository) LinkToProcurementOrder(ctx context.Context, tx *goqu.TxDatabase, requestID, orderID int) error {
	result, err := r.repository.Conn(tx).
		Update("requests").
		Set(goqu.Record{
			"procurement_order_id": orderID,
			"updated_at":           goqu.L("NOW()"),
		}).
		Where(goqu.Ex{"id": requestID, "procurement_order_id": nil}).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to link request %d: %w", requestID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check linked request %d: %w", requestID, err)
	}
	if affected == 0 {
		return fmt.Errorf("request %d was linked concurrently", requestID)
	}

	return nil
}
