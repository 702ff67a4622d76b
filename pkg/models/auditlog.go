package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           int                    `json:"id" db:"id"`
	ResourceID   int                    `json:"resource_id" db:"resource_id"`
	ResourceType string                 `json:"resource_type" db:"resource_type"`
	Action       string                 `json:"action" db:"action"` // e.g. create, verify, consume, dispatch
	BeforeRaw    []byte                 `json:"-" db:"before"`
	AfterRaw     []byte                 `json:"-" db:"after"`
	DataRaw      []byte                 `json:"-" db:"data"`
	Before       map[string]interface{} `json:"before,omitempty" db:"-"`
	After        map[string]interface{} `json:"after,omitempty" db:"-"`
	Data         map[string]interface{} `json:"data,omitempty" db:"-"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
	UserID       *int                   `json:"user_id,omitempty" db:"user_id"`
}

func (a *AuditLog) LoadFromDB() {
	if len(a.BeforeRaw) > 0 {
		_ = json.Unmarshal(a.BeforeRaw, &a.Before)
	}
	if len(a.AfterRaw) > 0 {
		_ = json.Unmarshal(a.AfterRaw, &a.After)
	}
	if len(a.DataRaw) > 0 {
		_ = json.Unmarshal(a.DataRaw, &a.Data)
	}
}
