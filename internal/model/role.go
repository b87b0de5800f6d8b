package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"payflow/internal/permission"
)

// Role groups permissions inside a tenant. Permissions is a jsonb array of
// permission keys; unknown entries are filtered on read, not on write.
type Role struct {
	ID          string         `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Permissions string         `json:"-" gorm:"type:jsonb"`
	TenantID    string         `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// PermissionSet parses the stored payload into a validated set.
func (r *Role) PermissionSet() permission.Set {
	return permission.ParseSet(r.Permissions)
}

// UserRole links a user to a role; a user may hold any number of roles.
type UserRole struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:uuid;index:idx_user_role,unique;not null"`
	RoleID    string    `json:"role_id" gorm:"type:uuid;index:idx_user_role,unique;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (ur *UserRole) BeforeCreate(tx *gorm.DB) error {
	if ur.ID == "" {
		ur.ID = uuid.NewString()
	}
	return nil
}
