package models

import (
	"time"

	"gorm.io/datatypes"
)

// EntityType is the kind of advertising entity an operation touched
type EntityType string

const (
	EntityCampaign EntityType = "campaign"
	EntityAdSet    EntityType = "ad_set"
	EntityAd       EntityType = "ad"
)

// ExecutionLog is the audit record of one successfully applied operation
type ExecutionLog struct {
	ID                uint              `json:"id" gorm:"primaryKey"`
	UserID            string            `json:"user_id" gorm:"type:varchar(64);index;not null"`
	EntityID          *string           `json:"entity_id"`
	EntityType        EntityType        `json:"entity_type" gorm:"type:varchar(16)"`
	EntityName        string            `json:"entity_name"`
	OperationMethod   string            `json:"operation_method" gorm:"type:varchar(8)"`
	OperationEndpoint string            `json:"operation_endpoint"`
	OperationParams   datatypes.JSONMap `json:"operation_params"`
	Status            string            `json:"status" gorm:"type:varchar(16)"`
	ExecutedAt        time.Time         `json:"executed_at" gorm:"index"`
}

// TableName overrides the default table name
func (ExecutionLog) TableName() string {
	return "execution_logs"
}
