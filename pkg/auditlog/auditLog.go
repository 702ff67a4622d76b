package auditlog

import (
	"context"

	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"
)

type Auditable interface {
	CreateLogView() models.AuditLog
}

type LogPersister interface {
	PersistLog(ctx context.Context, tx *goqu.TxDatabase, entry models.AuditLog) error
}

// Change carries the before/after snapshots of one audited mutation.
type Change struct {
	Before map[string]interface{}
	After  map[string]interface{}
	Data   map[string]interface{}
}

// Recorder is the audit sink used by the workflow services.
type Recorder interface {
	Record(ctx context.Context, tx *goqu.TxDatabase, actor models.Actor, action string, item Auditable, change Change) error
}

type Auditlog struct {
	r      LogPersister
	logger *zap.Logger
}

func NewAuditLog(persister LogPersister, logger *zap.Logger) *Auditlog {
	return &Auditlog{r: persister, logger: logger.Named("auditlog")}
}

// Record persists the entry inside tx. A failure aborts the surrounding
// transaction, so an unaudited change is never committed.
func (a *Auditlog) Record(ctx context.Context, tx *goqu.TxDatabase, actor models.Actor, action string, item Auditable, change Change) error {
	entry := item.CreateLogView()
	entry.Action = action
	entry.Before = change.Before
	entry.After = change.After
	entry.Data = change.Data

	userID := actor.UserID
	entry.UserID = &userID

	if err := a.r.PersistLog(ctx, tx, entry); err != nil {
		a.logger.Error("Unable to create audit log entry",
			zap.String("resource_type", entry.ResourceType),
			zap.Int("resource_id", entry.ResourceID),
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}

	a.logger.Debug("Created audit log entry",
		zap.String("resource_type", entry.ResourceType),
		zap.Int("resource_id", entry.ResourceID),
		zap.String("action", action),
	)
	return nil
}
