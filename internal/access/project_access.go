package access

import (
	"context"
	"fmt"

	"sitewarehouse/internal/repository"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type Checker interface {
	HasProjectAccess(ctx context.Context, actor models.Actor, projectID int) (bool, error)
}

type ProjectAccessRepository struct {
	repository *repository.Repository
}

func NewProjectAccessRepository(r *repository.Repository) *ProjectAccessRepository {
	return &ProjectAccessRepository{repository: r}
}

// HasProjectAccess grants directors and admins every project; everyone else
// needs a project_users membership.
func (r *ProjectAccessRepository) HasProjectAccess(ctx context.Context, actor models.Actor, projectID int) (bool, error) {
	if actor.Role.HasGlobalProjectAccess() {
		return true, nil
	}

	var count int
	_, err := r.repository.GoquDBWrapper.
		From("project_users").
		Select(goqu.COUNT("*")).
		Where(goqu.Ex{
			"user_id":    actor.UserID,
			"project_id": projectID,
		}).
		Executor().
		ScanValContext(ctx, &count)
	if err != nil {
		return false, fmt.Errorf("failed to check project access: %w", err)
	}

	return count > 0, nil
}

// Ensure turns a negative access check into a ForbiddenError.
func Ensure(ctx context.Context, checker Checker, actor models.Actor, projectID int) error {
	ok, err := checker.HasProjectAccess(ctx, actor, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return custom_error.NewForbiddenError("user %d has no access to project %d", actor.UserID, projectID)
	}
	return nil
}
