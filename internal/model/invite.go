package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Invite is a single-use, time-boxed onboarding credential binding an email
// to a tenant and an optional role. Once UsedAt is stamped it can never
// produce another user.
type Invite struct {
	ID        string     `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string     `json:"email" gorm:"type:varchar(100);index;not null"`
	Token     string     `json:"-" gorm:"type:varchar(128);uniqueIndex;not null"`
	TenantID  string     `json:"tenant_id" gorm:"type:uuid;index;not null"`
	RoleID    *string    `json:"role_id,omitempty" gorm:"type:uuid"`
	InvitedBy string     `json:"invited_by" gorm:"type:uuid;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (i *Invite) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// IsExpired checks the invite against the given moment.
func (i *Invite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsUsed reports whether the invite was already consumed.
func (i *Invite) IsUsed() bool {
	return i.UsedAt != nil
}
