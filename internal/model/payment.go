package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentStatus is the lifecycle state of a payment request.
type PaymentStatus string

const (
	StatusDraft           PaymentStatus = "DRAFT"
	StatusPendingApproval PaymentStatus = "PENDING_APPROVAL"
	StatusApproved        PaymentStatus = "APPROVED"
	StatusRejected        PaymentStatus = "REJECTED"
	StatusRevision        PaymentStatus = "REVISION"
	StatusInRegistry      PaymentStatus = "IN_REGISTRY"
	StatusPaid            PaymentStatus = "PAID"
)

// Editable reports whether the author may still change the request.
func (s PaymentStatus) Editable() bool {
	return s == StatusDraft || s == StatusRevision
}

// PaymentRequest is the unit of work routed through approval. Number is a
// tenant-scoped monotonic sequence and is never reused, even after delete.
type PaymentRequest struct {
	ID           string        `json:"id" gorm:"type:uuid;primaryKey"`
	Number       int           `json:"number" gorm:"index:idx_tenant_number,unique;not null"`
	Amount       float64       `json:"amount" gorm:"type:numeric(14,2);not null"`
	Currency     string        `json:"currency" gorm:"type:varchar(3);default:'RUB'"`
	Purpose      string        `json:"purpose" gorm:"type:varchar(500);not null"`
	DueDate      *time.Time    `json:"due_date,omitempty"`
	Status       PaymentStatus `json:"status" gorm:"type:varchar(20);index;default:'DRAFT'"`
	AuthorID     string        `json:"author_id" gorm:"type:uuid;index;not null"`
	ContractorID string        `json:"contractor_id" gorm:"type:uuid;index;not null"`
	ContractID   *string       `json:"contract_id,omitempty" gorm:"type:uuid"`
	TenantID     string        `json:"tenant_id" gorm:"type:uuid;index:idx_tenant_number,unique;not null"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (p *PaymentRequest) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Attachment is a file bound to a payment request. Upload and download live
// outside this service; the model exists so deleting a draft can cascade.
type Attachment struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	PaymentID string    `json:"payment_id" gorm:"type:uuid;index;not null"`
	FileName  string    `json:"file_name" gorm:"type:varchar(255)"`
	TenantID  string    `json:"tenant_id" gorm:"type:uuid;index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// PaymentCounter backs the tenant-scoped request numbering. The row is
// locked for update inside the creating transaction so concurrent creates
// never hand out the same number.
type PaymentCounter struct {
	TenantID   string `gorm:"type:uuid;primaryKey"`
	LastNumber int    `gorm:"not null;default:0"`
}
