package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contractor is the counterparty a payment request references. Its CRUD
// lives outside this service; the lifecycle engine only needs existence,
// active and tenant-match checks.
type Contractor struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(200);not null"`
	INN       string         `json:"inn" gorm:"type:varchar(12)"`
	TenantID  string         `json:"tenant_id" gorm:"type:uuid;index;not null"`
	IsActive  bool           `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (c *Contractor) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Contract is an agreement under a contractor, optionally referenced by a
// payment request.
type Contract struct {
	ID           string         `json:"id" gorm:"type:uuid;primaryKey"`
	Number       string         `json:"number" gorm:"type:varchar(100)"`
	ContractorID string         `json:"contractor_id" gorm:"type:uuid;index;not null"`
	TenantID     string         `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (c *Contract) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
