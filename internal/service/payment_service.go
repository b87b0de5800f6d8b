package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"payflow/internal/apperr"
	"payflow/internal/model"
	"payflow/internal/permission"
	"payflow/internal/repository"
)

const defaultPageSize = 21

// PaymentService owns the payment-request state machine, tenant-scoped
// numbering and per-operation authorization.
type PaymentService struct {
	store repository.Store
	log   *zap.Logger
}

func NewPaymentService(store repository.Store, log *zap.Logger) *PaymentService {
	return &PaymentService{store: store, log: log}
}

type CreatePaymentInput struct {
	Amount       float64    `json:"amount"`
	Currency     string     `json:"currency,omitempty"`
	Purpose      string     `json:"purpose"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ContractorID string     `json:"contractorId"`
	ContractID   *string    `json:"contractId,omitempty"`
}

// UpdatePaymentInput carries partial updates; nil fields stay untouched.
type UpdatePaymentInput struct {
	Amount       *float64   `json:"amount,omitempty"`
	Purpose      *string    `json:"purpose,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	ContractorID *string    `json:"contractorId,omitempty"`
	ContractID   *string    `json:"contractId,omitempty"`
}

type ListPaymentsQuery struct {
	Status       model.PaymentStatus
	ContractorID string
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
	Offset       int
}

// Create validates the referenced contractor (and contract, if given) inside
// the caller's tenant, assigns the next tenant sequence number and stores the
// request as a draft. Numbering and insert share one transaction.
func (s *PaymentService) Create(ctx context.Context, caller Caller, input CreatePaymentInput) (*model.PaymentRequest, error) {
	contractor, err := s.store.ContractorByID(ctx, input.ContractorID, caller.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("contractor not found")
		}
		return nil, apperr.Internal("lookup contractor", err)
	}
	if !contractor.IsActive {
		return nil, apperr.NotFound("contractor not found")
	}

	if input.ContractID != nil {
		if _, err := s.store.ContractByID(ctx, *input.ContractID, caller.TenantID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("contract not found")
			}
			return nil, apperr.Internal("lookup contract", err)
		}
	}

	currency := input.Currency
	if currency == "" {
		currency = "RUB"
	}

	payment := &model.PaymentRequest{
		Amount:       input.Amount,
		Currency:     currency,
		Purpose:      input.Purpose,
		DueDate:      input.DueDate,
		Status:       model.StatusDraft,
		AuthorID:     caller.UserID,
		ContractorID: input.ContractorID,
		ContractID:   input.ContractID,
		TenantID:     caller.TenantID,
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		number, err := tx.NextPaymentNumber(ctx, caller.TenantID)
		if err != nil {
			return apperr.Internal("next payment number", err)
		}
		payment.Number = number
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return apperr.Internal("create payment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment request created",
		zap.String("payment_id", payment.ID),
		zap.Int("number", payment.Number),
		zap.String("tenant_id", caller.TenantID))

	return payment, nil
}

// List returns the tenant's requests matching the query. Callers without
// PAYMENT_VIEW_ALL only ever see their own requests.
func (s *PaymentService) List(ctx context.Context, caller Caller, query ListPaymentsQuery) ([]model.PaymentRequest, int64, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	filter := repository.PaymentFilter{
		Status:       query.Status,
		ContractorID: query.ContractorID,
		DateFrom:     query.DateFrom,
		DateTo:       query.DateTo,
		Limit:        limit,
		Offset:       query.Offset,
	}
	if !caller.Permissions.Has(permission.PaymentViewAll) {
		filter.AuthorID = caller.UserID
	}

	items, total, err := s.store.ListPayments(ctx, caller.TenantID, filter)
	if err != nil {
		return nil, 0, apperr.Internal("list payments", err)
	}
	return items, total, nil
}

// Get returns one request. Absence and foreign-tenant rows are both
// NotFound; a non-author without PAYMENT_VIEW_ALL gets Forbidden.
func (s *PaymentService) Get(ctx context.Context, caller Caller, id string) (*model.PaymentRequest, error) {
	payment, err := s.findInTenant(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !caller.Permissions.Has(permission.PaymentViewAll) && payment.AuthorID != caller.UserID {
		return nil, apperr.Forbidden("no access to this payment request")
	}
	return payment, nil
}

// Update applies a partial edit. Author-only; the request must be in DRAFT
// or REVISION, and editing a REVISION request moves it back to DRAFT.
func (s *PaymentService) Update(ctx context.Context, caller Caller, id string, input UpdatePaymentInput) (*model.PaymentRequest, error) {
	payment, err := s.findInTenant(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if payment.AuthorID != caller.UserID {
		return nil, apperr.Forbidden("only the author may edit a payment request")
	}
	if !payment.Status.Editable() {
		return nil, apperr.BadRequest("only draft and revision requests can be edited")
	}

	if input.Amount != nil {
		payment.Amount = *input.Amount
	}
	if input.Purpose != nil {
		payment.Purpose = *input.Purpose
	}
	if input.DueDate != nil {
		payment.DueDate = input.DueDate
	}
	if input.ContractorID != nil {
		payment.ContractorID = *input.ContractorID
	}
	if input.ContractID != nil {
		if *input.ContractID == "" {
			payment.ContractID = nil
		} else {
			payment.ContractID = input.ContractID
		}
	}
	// An edit from REVISION un-flags the rework request, even when nothing
	// actually changed.
	if payment.Status == model.StatusRevision {
		payment.Status = model.StatusDraft
	}

	if err := s.store.SavePayment(ctx, payment); err != nil {
		return nil, apperr.Internal("save payment", err)
	}
	return payment, nil
}

// Remove deletes a draft and its attachments. Author-only, DRAFT only.
func (s *PaymentService) Remove(ctx context.Context, caller Caller, id string) error {
	payment, err := s.findInTenant(ctx, caller, id)
	if err != nil {
		return err
	}
	if payment.AuthorID != caller.UserID {
		return apperr.Forbidden("only the author may delete a payment request")
	}
	if payment.Status != model.StatusDraft {
		return apperr.BadRequest("only draft requests can be deleted")
	}

	if err := s.store.DeletePayment(ctx, payment.ID); err != nil {
		return apperr.Internal("delete payment", err)
	}

	s.log.Info("payment request deleted",
		zap.String("payment_id", payment.ID),
		zap.String("tenant_id", caller.TenantID))
	return nil
}

// Submit hands a draft over to approval. From PENDING_APPROVAL on, the
// approval engine owns the APPROVED/REJECTED/REVISION decisions.
func (s *PaymentService) Submit(ctx context.Context, caller Caller, id string) (*model.PaymentRequest, error) {
	payment, err := s.findInTenant(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if payment.AuthorID != caller.UserID {
		return nil, apperr.Forbidden("only the author may submit a payment request")
	}
	if payment.Status != model.StatusDraft {
		return nil, apperr.BadRequest("only a draft can be submitted for approval")
	}

	payment.Status = model.StatusPendingApproval
	if err := s.store.SavePayment(ctx, payment); err != nil {
		return nil, apperr.Internal("save payment", err)
	}

	s.log.Info("payment request submitted",
		zap.String("payment_id", payment.ID),
		zap.Int("number", payment.Number),
		zap.String("tenant_id", caller.TenantID))
	return payment, nil
}

func (s *PaymentService) findInTenant(ctx context.Context, caller Caller, id string) (*model.PaymentRequest, error) {
	payment, err := s.store.PaymentByID(ctx, id, caller.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("payment request not found")
		}
		return nil, apperr.Internal("lookup payment", err)
	}
	return payment, nil
}
