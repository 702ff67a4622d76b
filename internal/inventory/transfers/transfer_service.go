package transfers

import (
	"context"
	"strings"
	"time"

	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/repository"
	"sitewarehouse/internal/workflow"
	"sitewarehouse/pkg/auditlog"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"
	"sitewarehouse/pkg/validation"

	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"
)

const aggregate = "transfer"

// AssetStore is the asset side touched by every transfer transition.
type AssetStore interface {
	LockAsset(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Asset, error)
	UpdateStatusAndProject(ctx context.Context, tx *goqu.TxDatabase, id, projectID int, status metadata.Status) error
}

type TransferService struct {
	r      TransferRepository
	assets AssetStore
	rt     workflow.Runtime
	now    func() time.Time
}

func NewTransferService(r TransferRepository, assets AssetStore, rt workflow.Runtime) *TransferService {
	rt.Logger = rt.Logger.Named("transfers")
	return &TransferService{
		r:      r,
		assets: assets,
		rt:     rt,
		now:    time.Now,
	}
}

type InitiateTransferInput struct {
	AssetID        int        `json:"asset_id" validate:"required"`
	FromProjectID  int        `json:"from_project_id" validate:"required"`
	ToProjectID    int        `json:"to_project_id" validate:"required,nefield=FromProjectID"`
	TransferType   string     `json:"transfer_type" validate:"required,oneof=temporary permanent"`
	Reason         *string    `json:"reason"`
	Notes          *string    `json:"notes"`
	TransferDate   time.Time  `json:"transfer_date"`
	ExpectedReturn *time.Time `json:"expected_return"`
}

func (in *InitiateTransferInput) validate(now time.Time) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.TransferDate.IsZero() {
		in.TransferDate = now
	}
	if metadata.TransferType(in.TransferType) != metadata.TransferTemporary {
		in.ExpectedReturn = nil
		return nil
	}
	if in.ExpectedReturn == nil {
		return custom_error.NewFieldError("expected_return", "is required for temporary transfers")
	}
	if !in.ExpectedReturn.After(in.TransferDate) {
		return custom_error.NewFieldError("expected_return", "must be after transfer_date")
	}
	return nil
}

// InitiateTransfer reserves the asset for a move between projects. Directors
// skip the approval chain and the transfer completes at once.
func (s *TransferService) InitiateTransfer(ctx context.Context, actor models.Actor, input InitiateTransferInput) (*models.Transfer, error) {
	if !actor.Role.Can(roles.InitiateTransfer) {
		return nil, custom_error.NewForbiddenError("role %s cannot initiate transfers", actor.Role)
	}

	now := s.now()
	if err := input.validate(now); err != nil {
		return nil, err
	}
	if err := s.rt.EnsureAccess(ctx, actor, input.FromProjectID); err != nil {
		return nil, s.rt.Hide("check project access", err)
	}

	transfer := &models.Transfer{
		AssetID:        input.AssetID,
		FromProjectID:  input.FromProjectID,
		ToProjectID:    input.ToProjectID,
		TransferType:   metadata.TransferType(input.TransferType),
		Reason:         input.Reason,
		Notes:          input.Notes,
		TransferDate:   input.TransferDate,
		ExpectedReturn: input.ExpectedReturn,
		Status:         metadata.TransferPendingVerification,
		ReturnStatus:   metadata.ReturnNotReturned,
		InitiatedBy:    actor.UserID,
	}
	fastPath := actor.Role.IsDirector()
	if fastPath {
		completeImmediately(transfer, actor.UserID, now)
	}

	err := s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, Transition: "initiate"}, func(tx *goqu.TxDatabase) error {
		asset, err := s.assets.LockAsset(ctx, tx, input.AssetID)
		if err != nil {
			return err
		}
		if asset == nil {
			return custom_error.NewFieldError("asset_id", "does not exist")
		}
		if err := s.checkTransferable(ctx, tx, asset, input.FromProjectID); err != nil {
			return err
		}

		if err := s.r.InsertTransfer(ctx, tx, transfer); err != nil {
			return err
		}

		projectID := transfer.FromProjectID
		if fastPath {
			projectID = transfer.ToProjectID
		}
		if err := s.assets.UpdateStatusAndProject(ctx, tx, asset.ID, projectID, metadata.AssetStatusFor(transfer.Status)); err != nil {
			return err
		}
		transfer.AssetRef = asset.Ref

		return s.rt.Record(ctx, tx, actor, "initiate", transfer, auditlog.Change{
			After: transfer.Snapshot(),
			Data:  map[string]interface{}{"fast_path": fastPath},
		})
	})
	if err != nil {
		return nil, err
	}

	event := notifications.TransferInitiated
	if fastPath {
		event = notifications.TransferCompleted
	}
	s.rt.Notify(ctx, s.event(event, transfer, actor))

	s.rt.Logger.Info("Transfer initiated",
		zap.Int("transfer_id", transfer.ID),
		zap.Int("asset_id", transfer.AssetID),
		zap.String("status", string(transfer.Status)),
	)

	return transfer, nil
}

func completeImmediately(t *models.Transfer, userID int, now time.Time) {
	t.Status = metadata.TransferCompleted
	t.VerifiedBy, t.VerificationDate = &userID, &now
	t.ApprovedBy, t.ApprovalDate = &userID, &now
	t.DispatchedBy, t.DispatchDate = &userID, &now
	t.ReceivedBy, t.ReceiptDate = &userID, &now
}

func (s *TransferService) checkTransferable(ctx context.Context, tx *goqu.TxDatabase, asset *models.Asset, fromProjectID int) error {
	if asset.ProjectID != fromProjectID {
		return custom_error.NewBusinessRuleError("asset_not_at_origin",
			"asset %s is at project %d, not %d", asset.Ref, asset.ProjectID, fromProjectID)
	}
	if asset.WorkflowStatus != metadata.WorkflowApproved {
		return custom_error.NewBusinessRuleError("asset_not_approved",
			"asset %s is %s and cannot be transferred", asset.Ref, asset.WorkflowStatus)
	}
	if asset.Status != metadata.StatusAvailable {
		return custom_error.NewBusinessRuleError("asset_not_available",
			"asset %s is %s and cannot be transferred", asset.Ref, asset.Status)
	}

	open, err := s.r.HasOpenTransfer(ctx, tx, asset.ID)
	if err != nil {
		return err
	}
	if open {
		return custom_error.NewBusinessRuleError("asset_has_open_transfer",
			"asset %s already has an open transfer", asset.Ref)
	}
	return nil
}

func (s *TransferService) VerifyTransfer(ctx context.Context, actor models.Actor, id int) (*models.Transfer, error) {
	return s.advance(ctx, actor, id, stage{
		permission: roles.VerifyTransfer,
		transition: metadata.TransferVerify,
		event:      notifications.TransferVerified,
		apply: func(t *models.Transfer, now time.Time) {
			t.VerifiedBy, t.VerificationDate = &actor.UserID, &now
		},
	})
}

// ApproveTransfer puts the asset in transit.
func (s *TransferService) ApproveTransfer(ctx context.Context, actor models.Actor, id int) (*models.Transfer, error) {
	return s.advance(ctx, actor, id, stage{
		permission: roles.ApproveTransfer,
		transition: metadata.TransferApprove,
		event:      notifications.TransferApproved,
		apply: func(t *models.Transfer, now time.Time) {
			t.ApprovedBy, t.ApprovalDate = &actor.UserID, &now
		},
	})
}

func (s *TransferService) DispatchTransfer(ctx context.Context, actor models.Actor, id int) (*models.Transfer, error) {
	return s.advance(ctx, actor, id, stage{
		permission: roles.DispatchTransfer,
		transition: metadata.TransferDispatch,
		event:      notifications.TransferDispatched,
		apply: func(t *models.Transfer, now time.Time) {
			t.DispatchedBy, t.DispatchDate = &actor.UserID, &now
		},
	})
}

// ReceiveTransfer lands the asset at the destination project.
func (s *TransferService) ReceiveTransfer(ctx context.Context, actor models.Actor, id int) (*models.Transfer, error) {
	return s.advance(ctx, actor, id, stage{
		permission:  roles.ReceiveTransfer,
		transition:  metadata.TransferReceive,
		event:       notifications.TransferCompleted,
		destination: true,
		apply: func(t *models.Transfer, now time.Time) {
			t.ReceivedBy, t.ReceiptDate = &actor.UserID, &now
		},
	})
}

// CancelTransfer releases the asset where it currently stands.
func (s *TransferService) CancelTransfer(ctx context.Context, actor models.Actor, id int, reason string) (*models.Transfer, error) {
	reason = strings.TrimSpace(reason)
	var data map[string]interface{}
	if reason != "" {
		data = map[string]interface{}{"reason": reason}
	}

	return s.advance(ctx, actor, id, stage{
		permission: roles.CancelTransfer,
		transition: metadata.TransferCancel,
		event:      notifications.TransferCanceled,
		data:       data,
		apply: func(t *models.Transfer, now time.Time) {
			t.CanceledBy, t.CanceledAt = &actor.UserID, &now
			if reason != "" {
				t.CancelReason = &reason
			}
		},
	})
}

// stage describes one step of the main transfer chain.
type stage struct {
	permission  roles.Permission
	transition  string
	event       notifications.EventType
	destination bool
	data        map[string]interface{}
	apply       func(t *models.Transfer, now time.Time)
}

// advance moves the transfer and its asset together. The asset follows the
// transfer status and lands at to_project only on completion.
func (s *TransferService) advance(ctx context.Context, actor models.Actor, id int, st stage) (*models.Transfer, error) {
	if !actor.Role.Can(st.permission) {
		return nil, custom_error.NewForbiddenError("role %s cannot %s transfers", actor.Role, st.transition)
	}

	var transfer *models.Transfer
	err := s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, ID: id, Transition: st.transition}, func(tx *goqu.TxDatabase) error {
		var err error
		transfer, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}

		projectID := transfer.FromProjectID
		if st.destination {
			projectID = transfer.ToProjectID
		}
		if err := s.rt.EnsureAccess(ctx, actor, projectID); err != nil {
			return err
		}

		next, err := metadata.TransferWorkflow.Guard(st.transition, id, transfer.Status)
		if err != nil {
			return err
		}

		asset, err := s.lockAsset(ctx, tx, transfer.AssetID)
		if err != nil {
			return err
		}

		before := transfer.Snapshot()
		transfer.Status = next
		st.apply(transfer, s.now())

		if err := s.r.UpdateTransfer(ctx, tx, transfer); err != nil {
			return err
		}

		assetProject := asset.ProjectID
		if next == metadata.TransferCompleted {
			assetProject = transfer.ToProjectID
		}
		if err := s.assets.UpdateStatusAndProject(ctx, tx, asset.ID, assetProject, metadata.AssetStatusFor(next)); err != nil {
			return err
		}

		return s.rt.Record(ctx, tx, actor, st.transition, transfer, auditlog.Change{
			Before: before,
			After:  transfer.Snapshot(),
			Data:   st.data,
		})
	})
	if err != nil {
		return nil, err
	}

	s.rt.Notify(ctx, s.event(st.event, transfer, actor))

	return transfer, nil
}

// InitiateReturn sends a temporarily transferred asset back to its origin.
func (s *TransferService) InitiateReturn(ctx context.Context, actor models.Actor, id int) (*models.Transfer, error) {
	if !actor.Role.Can(roles.DispatchTransfer) {
		return nil, custom_error.NewForbiddenError("role %s cannot return transfers", actor.Role)
	}

	var transfer *models.Transfer
	err := s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, ID: id, Transition: metadata.TransferInitiateReturn}, func(tx *goqu.TxDatabase) error {
		var err error
		transfer, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.rt.EnsureAccess(ctx, actor, transfer.ToProjectID); err != nil {
			return err
		}

		if !transfer.IsTemporary() {
			return custom_error.NewBusinessRuleError("transfer_not_temporary", "transfer %d is permanent", id)
		}
		if transfer.Status != metadata.TransferCompleted {
			return &custom_error.StateGuardError{
				Entity:     "transfer",
				ID:         id,
				Transition: metadata.TransferInitiateReturn,
				Current:    string(transfer.Status),
				Required:   []string{string(metadata.TransferCompleted)},
			}
		}
		next, err := metadata.ReturnWorkflow.Guard(metadata.TransferInitiateReturn, id, transfer.ReturnStatus)
		if err != nil {
			return err
		}

		asset, err := s.lockAsset(ctx, tx, transfer.AssetID)
		if err != nil {
			return err
		}
		if asset.ProjectID != transfer.ToProjectID || asset.Status != metadata.StatusAvailable {
			return custom_error.NewBusinessRuleError("asset_not_returnable",
				"asset %s is %s at project %d", asset.Ref, asset.Status, asset.ProjectID)
		}

		before := transfer.Snapshot()
		now := s.now()
		transfer.ReturnStatus = next
		transfer.ReturnInitiatedBy, transfer.ReturnInitiatedAt = &actor.UserID, &now

		if err := s.r.UpdateTransfer(ctx, tx, transfer); err != nil {
			return err
		}
		if err := s.assets.UpdateStatusAndProject(ctx, tx, asset.ID, asset.ProjectID, metadata.StatusInTransit); err != nil {
			return err
		}

		return s.rt.Record(ctx, tx, actor, metadata.TransferInitiateReturn, transfer, auditlog.Change{
			Before: before,
			After:  transfer.Snapshot(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.rt.Notify(ctx, s.event(notifications.TransferReturnInitiated, transfer, actor))

	return transfer, nil
}

// ReceiveReturn puts the asset back at the origin project.
func (s *TransferService) ReceiveReturn(ctx context.Context, actor models.Actor, id int) (*models.Transfer, error) {
	if !actor.Role.Can(roles.ReceiveTransfer) {
		return nil, custom_error.NewForbiddenError("role %s cannot receive returns", actor.Role)
	}

	var transfer *models.Transfer
	err := s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, ID: id, Transition: metadata.TransferReceiveReturn}, func(tx *goqu.TxDatabase) error {
		var err error
		transfer, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.rt.EnsureAccess(ctx, actor, transfer.FromProjectID); err != nil {
			return err
		}

		next, err := metadata.ReturnWorkflow.Guard(metadata.TransferReceiveReturn, id, transfer.ReturnStatus)
		if err != nil {
			return err
		}

		asset, err := s.lockAsset(ctx, tx, transfer.AssetID)
		if err != nil {
			return err
		}
		if asset.ProjectID == transfer.FromProjectID {
			s.rt.Logger.Warn("Returned asset already at origin project",
				zap.Int("transfer_id", id),
				zap.Int("asset_id", asset.ID),
				zap.Int("project_id", asset.ProjectID),
			)
		}

		before := transfer.Snapshot()
		now := s.now()
		transfer.ReturnStatus = next
		transfer.ReturnReceivedBy = &actor.UserID
		transfer.ActualReturn = &now

		if err := s.r.UpdateTransfer(ctx, tx, transfer); err != nil {
			return err
		}
		if err := s.assets.UpdateStatusAndProject(ctx, tx, asset.ID, transfer.FromProjectID, metadata.StatusAvailable); err != nil {
			return err
		}

		return s.rt.Record(ctx, tx, actor, metadata.TransferReceiveReturn, transfer, auditlog.Change{
			Before: before,
			After:  transfer.Snapshot(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.rt.Notify(ctx, s.event(notifications.TransferReturned, transfer, actor))

	return transfer, nil
}

func (s *TransferService) lock(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Transfer, error) {
	transfer, err := s.r.LockTransfer(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, custom_error.NewNotFoundError("transfer", id)
	}
	return transfer, nil
}

func (s *TransferService) lockAsset(ctx context.Context, tx *goqu.TxDatabase, id int) (*models.Asset, error) {
	asset, err := s.assets.LockAsset(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, custom_error.NewNotFoundError("asset", id)
	}
	return asset, nil
}

func (s *TransferService) event(t notifications.EventType, transfer *models.Transfer, actor models.Actor) notifications.Event {
	return notifications.NewEvent(t, aggregate, transfer.ID, transfer.ToProjectID, actor.UserID, map[string]interface{}{
		"asset_id":        transfer.AssetID,
		"asset_ref":       transfer.AssetRef,
		"from_project_id": transfer.FromProjectID,
		"status":          transfer.Status,
		"return_status":   transfer.ReturnStatus,
	})
}

func (s *TransferService) GetTransfer(ctx context.Context, actor models.Actor, id int) (*models.Transfer, error) {
	transfer, err := s.r.GetTransfer(ctx, nil, id)
	if err != nil {
		return nil, s.rt.Hide("load transfer", err)
	}
	if transfer == nil {
		return nil, custom_error.NewNotFoundError("transfer", id)
	}

	if err := s.ensureEitherEnd(ctx, actor, transfer); err != nil {
		return nil, s.rt.Hide("check project access", err)
	}

	return transfer, nil
}

// ensureEitherEnd passes when the actor belongs to the origin or the
// destination project.
func (s *TransferService) ensureEitherEnd(ctx context.Context, actor models.Actor, t *models.Transfer) error {
	err := s.rt.EnsureAccess(ctx, actor, t.FromProjectID)
	if _, forbidden := err.(*custom_error.ForbiddenError); forbidden {
		return s.rt.EnsureAccess(ctx, actor, t.ToProjectID)
	}
	return err
}

type TransferFilter struct {
	ProjectID    *int    `form:"project_id"`
	AssetID      *int    `form:"asset_id"`
	Status       *string `form:"status"`
	TransferType *string `form:"transfer_type"`
	ReturnStatus *string `form:"return_status"`
}

// ListTransfers scopes users without global access to a project they belong to.
func (s *TransferService) ListTransfers(ctx context.Context, actor models.Actor, filter TransferFilter) ([]models.Transfer, error) {
	if filter.ProjectID == nil && !actor.Role.HasGlobalProjectAccess() {
		if actor.CurrentProjectID == nil {
			return nil, custom_error.NewFieldError("project_id", "is required")
		}
		filter.ProjectID = actor.CurrentProjectID
	}
	if filter.ProjectID != nil {
		if err := s.rt.EnsureAccess(ctx, actor, *filter.ProjectID); err != nil {
			return nil, s.rt.Hide("check project access", err)
		}
	}

	conditions := repository.NewQueryBuilder()
	if filter.AssetID != nil {
		conditions.AddCondition("asset_id", *filter.AssetID)
	}
	if filter.Status != nil {
		conditions.AddCondition("status", *filter.Status)
	}
	if filter.TransferType != nil {
		conditions.AddCondition("transfer_type", *filter.TransferType)
	}
	if filter.ReturnStatus != nil {
		conditions.AddCondition("return_status", *filter.ReturnStatus)
	}

	transfers, err := s.r.GetTransfersBy(ctx, filter.ProjectID, conditions)
	if err != nil {
		return nil, s.rt.Hide("list transfers", err)
	}

	return transfers, nil
}

// ListOverdueReturns lists completed temporary transfers past their
// expected return date.
func (s *TransferService) ListOverdueReturns(ctx context.Context) ([]models.Transfer, error) {
	transfers, err := s.r.GetOverdueReturns(ctx, s.now())
	if err != nil {
		return nil, s.rt.Hide("list overdue returns", err)
	}
	return transfers, nil
}

// OverdueEvent is the reminder raised for a late temporary transfer.
func OverdueEvent(t models.Transfer, now time.Time) notifications.Event {
	days := 0
	if t.ExpectedReturn != nil {
		days = int(now.Sub(*t.ExpectedReturn).Hours() / 24)
	}
	return notifications.NewEvent(notifications.TransferReturnOverdue, aggregate, t.ID, t.ToProjectID, 0, map[string]interface{}{
		"asset_id":        t.AssetID,
		"asset_ref":       t.AssetRef,
		"from_project_id": t.FromProjectID,
		"expected_return": t.ExpectedReturn,
		"days_overdue":    days,
	})
}
