package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"sitewarehouse/internal/repository"
	"sitewarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type AuditLogRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *AuditLogRepository {
	return &AuditLogRepository{repository: r}
}

// PersistLog writes the entry through tx so it commits or rolls back with
// the change it describes.
func (r *AuditLogRepository) PersistLog(ctx context.Context, tx *goqu.TxDatabase, entry models.AuditLog) error {
	record := goqu.Record{
		"resource_id":   entry.ResourceID,
		"resource_type": entry.ResourceType,
		"action":        entry.Action,
		"user_id":       entry.UserID,
	}

	for column, value := range map[string]map[string]interface{}{
		"before": entry.Before,
		"after":  entry.After,
		"data":   entry.Data,
	} {
		if value == nil {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal audit log %s: %w", column, err)
		}
		record[column] = string(raw)
	}

	_, err := r.repository.Conn(tx).Insert("audit_logs").Rows(record).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

func (r *AuditLogRepository) GetResourceLog(ctx context.Context, id int, resourceType string) ([]models.AuditLog, error) {
	query := r.repository.GoquDBWrapper.
		From(goqu.T("audit_logs").As("a")).
		Select(
			goqu.I("a.id").As("id"),
			goqu.I("a.resource_id").As("resource_id"),
			goqu.I("a.resource_type").As("resource_type"),
			goqu.I("a.action").As("action"),
			goqu.L("COALESCE(a.before::text, '')").As("before"),
			goqu.L("COALESCE(a.after::text, '')").As("after"),
			goqu.L("COALESCE(a.data::text, '')").As("data"),
			goqu.I("a.created_at").As("created_at"),
			goqu.I("a.user_id").As("user_id"),
		).
		Where(goqu.Ex{
			"a.resource_id":   id,
			"a.resource_type": resourceType,
		}).
		Order(goqu.I("a.id").Asc())

	var auditLogs []models.AuditLog
	if err := query.Executor().ScanStructsContext(ctx, &auditLogs); err != nil {
		return nil, fmt.Errorf("error executing SQL statement: %w", err)
	}

	for i := range auditLogs {
		auditLogs[i].LoadFromDB()
	}

	return auditLogs, nil
}
