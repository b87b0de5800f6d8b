package repository

import (
	"context"
	"errors"
	"time"

	"payflow/internal/model"
)

var (
	// ErrNotFound reports a missing row, or a conditional write whose
	// condition did not hold.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicate reports a unique-constraint violation.
	ErrDuplicate = errors.New("repository: duplicate record")
)

// PaymentFilter narrows a tenant-scoped payment listing. AuthorID, when set,
// restricts the listing to one author's requests.
type PaymentFilter struct {
	Status       model.PaymentStatus
	ContractorID string
	AuthorID     string
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
	Offset       int
}

// Store is the persistence port for every tenant-scoped entity. Methods
// report ErrNotFound for absent rows and ErrDuplicate for unique violations;
// multi-row write sequences run inside WithTx.
type Store interface {
	// WithTx runs fn against a transactional view of the store. If fn
	// returns an error, none of its writes survive.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	CreateTenant(ctx context.Context, tenant *model.Tenant) error
	TenantByID(ctx context.Context, id string) (*model.Tenant, error)

	CreateUser(ctx context.Context, user *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)

	CreateRole(ctx context.Context, role *model.Role) error
	RoleByID(ctx context.Context, id, tenantID string) (*model.Role, error)
	RolesByTenant(ctx context.Context, tenantID string) ([]model.Role, error)
	CreateUserRole(ctx context.Context, link *model.UserRole) error
	RolesForUser(ctx context.Context, userID string) ([]model.Role, error)

	CreateInvite(ctx context.Context, invite *model.Invite) error
	InviteByToken(ctx context.Context, token string) (*model.Invite, error)
	// ConsumeInvite stamps used_at on the invite iff it is still unused;
	// ErrNotFound means another acceptance won the race.
	ConsumeInvite(ctx context.Context, id string, usedAt time.Time) error

	CreateContractor(ctx context.Context, contractor *model.Contractor) error
	ContractorByID(ctx context.Context, id, tenantID string) (*model.Contractor, error)
	CreateContract(ctx context.Context, contract *model.Contract) error
	ContractByID(ctx context.Context, id, tenantID string) (*model.Contract, error)

	// NextPaymentNumber increments and returns the tenant's payment
	// sequence. Callers run it inside WithTx together with CreatePayment.
	NextPaymentNumber(ctx context.Context, tenantID string) (int, error)
	CreatePayment(ctx context.Context, payment *model.PaymentRequest) error
	PaymentByID(ctx context.Context, id, tenantID string) (*model.PaymentRequest, error)
	ListPayments(ctx context.Context, tenantID string, filter PaymentFilter) ([]model.PaymentRequest, int64, error)
	SavePayment(ctx context.Context, payment *model.PaymentRequest) error
	// DeletePayment removes the request and its attachments.
	DeletePayment(ctx context.Context, id string) error
}
