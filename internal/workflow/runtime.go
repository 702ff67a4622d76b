// Package workflow holds the collaborators every workflow manager shares and
// the transition envelope they all run in.
package workflow

import (
	"context"

	"sitewarehouse/internal/access"
	"sitewarehouse/internal/locking"
	"sitewarehouse/internal/metrics"
	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/repository"
	"sitewarehouse/pkg/auditlog"
	custom_error "sitewarehouse/pkg/errors"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"
)

type Runtime struct {
	Tx         repository.Transactor
	Access     access.Checker
	Audit      auditlog.Recorder
	Locker     locking.Locker
	Dispatcher notifications.Dispatcher
	Logger     *zap.Logger
}

// Step names one transition of one aggregate. A zero ID means the aggregate
// does not exist yet and no lock is taken.
type Step struct {
	Aggregate  string
	ID         int
	Transition string
}

// Run executes fn in a single transaction under the aggregate lock. Domain
// errors are returned unchanged; any other failure is logged and replaced
// by a PersistenceError after the rollback.
func (rt Runtime) Run(ctx context.Context, step Step, fn func(tx *goqu.TxDatabase) error) error {
	err := rt.run(ctx, step, fn)
	metrics.ObserveTransition(step.Aggregate, step.Transition, err)

	if err == nil || custom_error.IsDomainError(err) {
		return err
	}

	rt.Logger.Error("Workflow transition failed",
		zap.String("aggregate", step.Aggregate),
		zap.Int("id", step.ID),
		zap.String("transition", step.Transition),
		zap.Error(err),
	)
	return custom_error.NewPersistenceError(step.Transition+" "+step.Aggregate, err)
}

func (rt Runtime) run(ctx context.Context, step Step, fn func(tx *goqu.TxDatabase) error) error {
	if step.ID != 0 {
		lock, err := rt.Locker.Obtain(ctx, locking.Key(step.Aggregate, step.ID))
		if err != nil {
			return err
		}
		defer locking.Release(ctx, lock, rt.Logger)
	}

	return rt.Tx.WithTransaction(ctx, fn)
}

func (rt Runtime) EnsureAccess(ctx context.Context, actor models.Actor, projectID int) error {
	return access.Ensure(ctx, rt.Access, actor, projectID)
}

func (rt Runtime) Record(ctx context.Context, tx *goqu.TxDatabase, actor models.Actor, action string, item auditlog.Auditable, change auditlog.Change) error {
	return rt.Audit.Record(ctx, tx, actor, action, item, change)
}

// Notify dispatches events after commit. Failures are only logged.
func (rt Runtime) Notify(ctx context.Context, events ...notifications.Event) {
	notifications.NotifyAfterCommit(ctx, rt.Dispatcher, rt.Logger, events...)
}

// Hide converts an unexpected read failure into a PersistenceError.
func (rt Runtime) Hide(op string, err error) error {
	if err == nil || custom_error.IsDomainError(err) {
		return err
	}
	rt.Logger.Error("Unable to "+op, zap.Error(err))
	return custom_error.NewPersistenceError(op, err)
}
