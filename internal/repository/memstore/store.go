package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"payflow/internal/model"
	"payflow/internal/repository"
)

type data struct {
	tenants         map[string]model.Tenant
	users           map[string]model.User
	userIDByEmail   map[string]string
	roles           map[string]model.Role
	userRoles       []model.UserRole
	invites         map[string]model.Invite
	inviteIDByToken map[string]string
	contractors     map[string]model.Contractor
	contracts       map[string]model.Contract
	payments        map[string]model.PaymentRequest
	attachments     map[string]model.Attachment
	counters        map[string]int
}

func newData() *data {
	return &data{
		tenants:         make(map[string]model.Tenant),
		users:           make(map[string]model.User),
		userIDByEmail:   make(map[string]string),
		roles:           make(map[string]model.Role),
		invites:         make(map[string]model.Invite),
		inviteIDByToken: make(map[string]string),
		contractors:     make(map[string]model.Contractor),
		contracts:       make(map[string]model.Contract),
		payments:        make(map[string]model.PaymentRequest),
		attachments:     make(map[string]model.Attachment),
		counters:        make(map[string]int),
	}
}

func (d *data) clone() *data {
	c := &data{
		tenants:         make(map[string]model.Tenant, len(d.tenants)),
		users:           make(map[string]model.User, len(d.users)),
		userIDByEmail:   make(map[string]string, len(d.userIDByEmail)),
		roles:           make(map[string]model.Role, len(d.roles)),
		userRoles:       append([]model.UserRole(nil), d.userRoles...),
		invites:         make(map[string]model.Invite, len(d.invites)),
		inviteIDByToken: make(map[string]string, len(d.inviteIDByToken)),
		contractors:     make(map[string]model.Contractor, len(d.contractors)),
		contracts:       make(map[string]model.Contract, len(d.contracts)),
		payments:        make(map[string]model.PaymentRequest, len(d.payments)),
		attachments:     make(map[string]model.Attachment, len(d.attachments)),
		counters:        make(map[string]int, len(d.counters)),
	}
	for k, v := range d.tenants {
		c.tenants[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.userIDByEmail {
		c.userIDByEmail[k] = v
	}
	for k, v := range d.roles {
		c.roles[k] = v
	}
	for k, v := range d.invites {
		c.invites[k] = v
	}
	for k, v := range d.inviteIDByToken {
		c.inviteIDByToken[k] = v
	}
	for k, v := range d.contractors {
		c.contractors[k] = v
	}
	for k, v := range d.contracts {
		c.contracts[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.attachments {
		c.attachments[k] = v
	}
	for k, v := range d.counters {
		c.counters[k] = v
	}
	return c
}

// Store is an in-memory repository.Store. A single mutex serializes every
// operation, which is also what makes WithTx atomic: the whole transaction
// runs under the lock and rolls back to a snapshot on error.
type Store struct {
	mu   sync.Mutex
	d    *data
	inTx bool
}

func NewStore() *Store {
	return &Store{d: newData()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	tx := &Store{d: s.d, inTx: true}
	if err := fn(tx); err != nil {
		*s.d = *snapshot
		return err
	}
	return nil
}

func (s *Store) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	defer s.lock()()
	stampNew(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	s.d.tenants[tenant.ID] = *tenant
	return nil
}

func (s *Store) TenantByID(ctx context.Context, id string) (*model.Tenant, error) {
	defer s.lock()()
	tenant, ok := s.d.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tenant, nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	defer s.lock()()
	if _, exists := s.d.userIDByEmail[user.Email]; exists {
		return repository.ErrDuplicate
	}
	stampNew(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	s.d.users[user.ID] = *user
	s.d.userIDByEmail[user.Email] = user.ID
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	defer s.lock()()
	id, ok := s.d.userIDByEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := s.d.users[id]
	return &user, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	defer s.lock()()
	user, ok := s.d.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	defer s.lock()()
	stampNew(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	s.d.roles[role.ID] = *role
	return nil
}

func (s *Store) RoleByID(ctx context.Context, id, tenantID string) (*model.Role, error) {
	defer s.lock()()
	role, ok := s.d.roles[id]
	if !ok || role.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (s *Store) RolesByTenant(ctx context.Context, tenantID string) ([]model.Role, error) {
	defer s.lock()()
	var roles []model.Role
	for _, role := range s.d.roles {
		if role.TenantID == tenantID {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (s *Store) CreateUserRole(ctx context.Context, link *model.UserRole) error {
	defer s.lock()()
	for _, existing := range s.d.userRoles {
		if existing.UserID == link.UserID && existing.RoleID == link.RoleID {
			return repository.ErrDuplicate
		}
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.CreatedAt = time.Now().UTC()
	s.d.userRoles = append(s.d.userRoles, *link)
	return nil
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]model.Role, error) {
	defer s.lock()()
	var roles []model.Role
	for _, link := range s.d.userRoles {
		if link.UserID != userID {
			continue
		}
		if role, ok := s.d.roles[link.RoleID]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (s *Store) CreateInvite(ctx context.Context, invite *model.Invite) error {
	defer s.lock()()
	if _, exists := s.d.inviteIDByToken[invite.Token]; exists {
		return repository.ErrDuplicate
	}
	if invite.ID == "" {
		invite.ID = uuid.NewString()
	}
	invite.CreatedAt = time.Now().UTC()
	s.d.invites[invite.ID] = *invite
	s.d.inviteIDByToken[invite.Token] = invite.ID
	return nil
}

func (s *Store) InviteByToken(ctx context.Context, token string) (*model.Invite, error) {
	defer s.lock()()
	id, ok := s.d.inviteIDByToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	invite := s.d.invites[id]
	return &invite, nil
}

func (s *Store) ConsumeInvite(ctx context.Context, id string, usedAt time.Time) error {
	defer s.lock()()
	invite, ok := s.d.invites[id]
	if !ok || invite.UsedAt != nil {
		return repository.ErrNotFound
	}
	stamp := usedAt
	invite.UsedAt = &stamp
	s.d.invites[id] = invite
	return nil
}

func (s *Store) CreateContractor(ctx context.Context, contractor *model.Contractor) error {
	defer s.lock()()
	stampNew(&contractor.ID, &contractor.CreatedAt, &contractor.UpdatedAt)
	s.d.contractors[contractor.ID] = *contractor
	return nil
}

func (s *Store) ContractorByID(ctx context.Context, id, tenantID string) (*model.Contractor, error) {
	defer s.lock()()
	contractor, ok := s.d.contractors[id]
	if !ok || contractor.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &contractor, nil
}

func (s *Store) CreateContract(ctx context.Context, contract *model.Contract) error {
	defer s.lock()()
	stampNew(&contract.ID, &contract.CreatedAt, &contract.UpdatedAt)
	s.d.contracts[contract.ID] = *contract
	return nil
}

func (s *Store) ContractByID(ctx context.Context, id, tenantID string) (*model.Contract, error) {
	defer s.lock()()
	contract, ok := s.d.contracts[id]
	if !ok || contract.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &contract, nil
}

func (s *Store) NextPaymentNumber(ctx context.Context, tenantID string) (int, error) {
	defer s.lock()()
	s.d.counters[tenantID]++
	return s.d.counters[tenantID], nil
}

func (s *Store) CreatePayment(ctx context.Context, payment *model.PaymentRequest) error {
	defer s.lock()()
	stampNew(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	s.d.payments[payment.ID] = *payment
	return nil
}

func (s *Store) PaymentByID(ctx context.Context, id, tenantID string) (*model.PaymentRequest, error) {
	defer s.lock()()
	payment, ok := s.d.payments[id]
	if !ok || payment.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &payment, nil
}

func (s *Store) ListPayments(ctx context.Context, tenantID string, filter repository.PaymentFilter) ([]model.PaymentRequest, int64, error) {
	defer s.lock()()
	var matched []model.PaymentRequest
	for _, payment := range s.d.payments {
		if payment.TenantID != tenantID {
			continue
		}
		if filter.AuthorID != "" && payment.AuthorID != filter.AuthorID {
			continue
		}
		if filter.Status != "" && payment.Status != filter.Status {
			continue
		}
		if filter.ContractorID != "" && payment.ContractorID != filter.ContractorID {
			continue
		}
		if filter.DateFrom != nil && payment.CreatedAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && payment.CreatedAt.After(*filter.DateTo) {
			continue
		}
		matched = append(matched, payment)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) SavePayment(ctx context.Context, payment *model.PaymentRequest) error {
	defer s.lock()()
	if _, ok := s.d.payments[payment.ID]; !ok {
		return repository.ErrNotFound
	}
	payment.UpdatedAt = time.Now().UTC()
	s.d.payments[payment.ID] = *payment
	return nil
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.d.payments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.d.payments, id)
	for attID, att := range s.d.attachments {
		if att.PaymentID == id {
			delete(s.d.attachments, attID)
		}
	}
	return nil
}

// SetUserActive flips a user's active flag; used by tests to exercise the
// inactive-account paths.
func (s *Store) SetUserActive(email string, active bool) {
	defer s.lock()()
	id, ok := s.d.userIDByEmail[email]
	if !ok {
		return
	}
	user := s.d.users[id]
	user.IsActive = active
	s.d.users[id] = user
}

// AddAttachment seeds an attachment; used by tests to exercise the delete
// cascade.
func (s *Store) AddAttachment(att model.Attachment) {
	defer s.lock()()
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	s.d.attachments[att.ID] = att
}

// AttachmentCount reports how many attachments a payment has.
func (s *Store) AttachmentCount(paymentID string) int {
	defer s.lock()()
	n := 0
	for _, att := range s.d.attachments {
		if att.PaymentID == paymentID {
			n++
		}
	}
	return n
}

func stampNew(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now().UTC()
	*createdAt = now
	*updatedAt = now
}
