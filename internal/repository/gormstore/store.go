package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payflow/internal/model"
	"payflow/internal/repository"
	"payflow/prometheus"
)

const uniqueViolation = "23505"

// Store implements repository.Store on top of gorm/postgres.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	return translate(s.db.WithContext(ctx).Create(tenant).Error)
}

func (s *Store) TenantByID(ctx context.Context, id string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &tenant, nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	return translate(s.db.WithContext(ctx).Create(role).Error)
}

func (s *Store) RoleByID(ctx context.Context, id, tenantID string) (*model.Role, error) {
	var role model.Role
	if err := s.db.WithContext(ctx).First(&role, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (s *Store) RolesByTenant(ctx context.Context, tenantID string) ([]model.Role, error) {
	var roles []model.Role
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name").Find(&roles).Error; err != nil {
		return nil, translate(err)
	}
	return roles, nil
}

func (s *Store) CreateUserRole(ctx context.Context, link *model.UserRole) error {
	return translate(s.db.WithContext(ctx).Create(link).Error)
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]model.Role, error) {
	var roles []model.Role
	err := s.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Find(&roles).Error
	if err != nil {
		return nil, translate(err)
	}
	return roles, nil
}

func (s *Store) CreateInvite(ctx context.Context, invite *model.Invite) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	return translate(s.db.WithContext(ctx).Create(invite).Error)
}

func (s *Store) InviteByToken(ctx context.Context, token string) (*model.Invite, error) {
	var invite model.Invite
	if err := s.db.WithContext(ctx).First(&invite, "token = ?", token).Error; err != nil {
		return nil, translate(err)
	}
	return &invite, nil
}

func (s *Store) ConsumeInvite(ctx context.Context, id string, usedAt time.Time) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	res := s.db.WithContext(ctx).Model(&model.Invite{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) CreateContractor(ctx context.Context, contractor *model.Contractor) error {
	return translate(s.db.WithContext(ctx).Create(contractor).Error)
}

func (s *Store) ContractorByID(ctx context.Context, id, tenantID string) (*model.Contractor, error) {
	var contractor model.Contractor
	if err := s.db.WithContext(ctx).First(&contractor, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		return nil, translate(err)
	}
	return &contractor, nil
}

func (s *Store) CreateContract(ctx context.Context, contract *model.Contract) error {
	return translate(s.db.WithContext(ctx).Create(contract).Error)
}

func (s *Store) ContractByID(ctx context.Context, id, tenantID string) (*model.Contract, error) {
	var contract model.Contract
	if err := s.db.WithContext(ctx).First(&contract, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		return nil, translate(err)
	}
	return &contract, nil
}

// NextPaymentNumber serializes numbering per tenant with a row lock on the
// counter, so it must run inside the transaction that creates the payment.
func (s *Store) NextPaymentNumber(ctx context.Context, tenantID string) (int, error) {
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.PaymentCounter{TenantID: tenantID}).Error; err != nil {
		return 0, translate(err)
	}

	var counter model.PaymentCounter
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&counter, "tenant_id = ?", tenantID).Error; err != nil {
		return 0, translate(err)
	}

	counter.LastNumber++
	if err := db.Save(&counter).Error; err != nil {
		return 0, translate(err)
	}
	return counter.LastNumber, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment *model.PaymentRequest) error {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	return translate(s.db.WithContext(ctx).Create(payment).Error)
}

func (s *Store) PaymentByID(ctx context.Context, id, tenantID string) (*model.PaymentRequest, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var payment model.PaymentRequest
	if err := s.db.WithContext(ctx).First(&payment, "id = ? AND tenant_id = ?", id, tenantID).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (s *Store) ListPayments(ctx context.Context, tenantID string, filter repository.PaymentFilter) ([]model.PaymentRequest, int64, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	query := s.db.WithContext(ctx).Model(&model.PaymentRequest{}).Where("tenant_id = ?", tenantID)

	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ContractorID != "" {
		query = query.Where("contractor_id = ?", filter.ContractorID)
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var items []model.PaymentRequest
	if err := query.Order("created_at DESC").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&items).Error; err != nil {
		return nil, 0, translate(err)
	}
	return items, total, nil
}

func (s *Store) SavePayment(ctx context.Context, payment *model.PaymentRequest) error {
	defer prometheus.TrackDBOperation("update")(time.Now())
	return translate(s.db.WithContext(ctx).Save(payment).Error)
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	defer prometheus.TrackDBOperation("delete")(time.Now())
	return s.WithTx(ctx, func(tx repository.Store) error {
		g := tx.(*Store)
		if err := g.db.WithContext(ctx).Where("payment_id = ?", id).Delete(&model.Attachment{}).Error; err != nil {
			return translate(err)
		}
		res := g.db.WithContext(ctx).Delete(&model.PaymentRequest{}, "id = ?", id)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrDuplicate
	}
	return err
}
