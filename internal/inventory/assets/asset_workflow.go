package assets

import (
	"context"
	"strings"
	"time"

	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/workflow"
	"sitewarehouse/pkg/auditlog"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/metadata"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"

	"github.com/doug-martin/goqu/v9"
)

// SubmitForVerification hands a draft to the verifier. The actor is the maker.
func (s *AssetService) SubmitForVerification(ctx context.Context, actor models.Actor, id int) (*models.Asset, error) {
	return s.advance(ctx, actor, id, roles.SubmitAsset, metadata.AssetSubmit, notifications.AssetSubmitted, nil,
		func(a *models.Asset, now time.Time) {
			a.MadeBy = &actor.UserID
			a.MadeAt = &now
		})
}

func (s *AssetService) VerifyAsset(ctx context.Context, actor models.Actor, id int) (*models.Asset, error) {
	return s.advance(ctx, actor, id, roles.VerifyAsset, metadata.AssetVerify, notifications.AssetVerified, nil,
		func(a *models.Asset, now time.Time) {
			a.VerifiedBy = &actor.UserID
			a.VerificationDate = &now
		})
}

// AuthorizeAsset approves the asset and makes it usable.
func (s *AssetService) AuthorizeAsset(ctx context.Context, actor models.Actor, id int) (*models.Asset, error) {
	return s.advance(ctx, actor, id, roles.AuthorizeAsset, metadata.AssetAuthorize, notifications.AssetAuthorized, nil,
		func(a *models.Asset, now time.Time) {
			a.AuthorizedBy = &actor.UserID
			a.AuthorizationDate = &now
			a.Status = metadata.StatusAvailable
		})
}

// RejectAsset ends the approval chain. Verifiers and authorizers may reject.
func (s *AssetService) RejectAsset(ctx context.Context, actor models.Actor, id int, reason string) (*models.Asset, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, custom_error.NewFieldError("reason", "is required")
	}
	if !actor.Role.Can(roles.VerifyAsset) && !actor.Role.Can(roles.AuthorizeAsset) {
		return nil, custom_error.NewForbiddenError("role %s cannot reject assets", actor.Role)
	}

	data := map[string]interface{}{"reason": reason}
	return s.advance(ctx, actor, id, "", metadata.AssetReject, notifications.AssetRejected, data,
		func(a *models.Asset, now time.Time) {
			a.RejectedBy = &actor.UserID
			a.RejectedAt = &now
			a.RejectionReason = &reason
		})
}

// advance runs one approval transition. The guard is checked on the locked
// row before anything is mutated. An empty permission means the caller
// already checked it.
func (s *AssetService) advance(
	ctx context.Context,
	actor models.Actor,
	id int,
	permission roles.Permission,
	transition string,
	event notifications.EventType,
	data map[string]interface{},
	apply func(a *models.Asset, now time.Time),
) (*models.Asset, error) {
	if permission != "" && !actor.Role.Can(permission) {
		return nil, custom_error.NewForbiddenError("role %s cannot %s assets", actor.Role, transition)
	}

	var asset *models.Asset
	err := s.rt.Run(ctx, workflow.Step{Aggregate: aggregate, ID: id, Transition: transition}, func(tx *goqu.TxDatabase) error {
		var err error
		asset, err = s.r.LockAsset(ctx, tx, id)
		if err != nil {
			return err
		}
		if asset == nil {
			return custom_error.NewNotFoundError("asset", id)
		}
		if err := s.rt.EnsureAccess(ctx, actor, asset.ProjectID); err != nil {
			return err
		}

		next, err := metadata.AssetWorkflow.Guard(transition, id, asset.WorkflowStatus)
		if err != nil {
			return err
		}

		before := asset.Snapshot()
		asset.WorkflowStatus = next
		apply(asset, s.now())

		if err := s.r.UpdateWorkflow(ctx, tx, asset); err != nil {
			return err
		}

		return s.rt.Record(ctx, tx, actor, transition, asset, auditlog.Change{
			Before: before,
			After:  asset.Snapshot(),
			Data:   data,
		})
	})
	if err != nil {
		return nil, err
	}

	s.rt.Notify(ctx, notifications.NewEvent(event, aggregate, asset.ID, asset.ProjectID, actor.UserID, map[string]interface{}{
		"ref":             asset.Ref,
		"workflow_status": asset.WorkflowStatus,
	}))

	return asset, nil
}
