package service

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"payflow/internal/apperr"
	"payflow/internal/model"
	"payflow/internal/permission"
	"payflow/internal/repository/memstore"
)

type paymentFixture struct {
	svc        *PaymentService
	store      *memstore.Store
	tenant     *model.Tenant
	contractor *model.Contractor
	author     Caller
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	store := memstore.NewStore()
	ctx := context.Background()

	tenant := &model.Tenant{Name: "Acme LLC"}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("seed tenant failed: %v", err)
	}

	contractor := &model.Contractor{
		Name:     "Supplies Inc",
		INN:      "7700123456",
		TenantID: tenant.ID,
		IsActive: true,
	}
	if err := store.CreateContractor(ctx, contractor); err != nil {
		t.Fatalf("seed contractor failed: %v", err)
	}

	author := &model.User{
		Email:    "author@acme.test",
		Name:     "Author",
		TenantID: tenant.ID,
		IsActive: true,
	}
	if err := store.CreateUser(ctx, author); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	return &paymentFixture{
		svc:        NewPaymentService(store, zap.NewNop()),
		store:      store,
		tenant:     tenant,
		contractor: contractor,
		author: Caller{
			UserID:   author.ID,
			TenantID: tenant.ID,
			Permissions: permission.NewSet(
				permission.PaymentCreate,
				permission.PaymentEditOwn,
				permission.PaymentViewOwn,
			),
		},
	}
}

func (f *paymentFixture) callerWith(keys ...permission.Key) Caller {
	return Caller{
		UserID:      "other-user",
		TenantID:    f.tenant.ID,
		Permissions: permission.NewSet(keys...),
	}
}

func (f *paymentFixture) createDraft(t *testing.T, amount float64) *model.PaymentRequest {
	t.Helper()
	payment, err := f.svc.Create(context.Background(), f.author, CreatePaymentInput{
		Amount:       amount,
		Purpose:      "office supplies",
		ContractorID: f.contractor.ID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return payment
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	f := newPaymentFixture(t)

	first := f.createDraft(t, 100)
	second := f.createDraft(t, 200)

	if first.Status != model.StatusDraft {
		t.Fatalf("new request status = %s, want DRAFT", first.Status)
	}
	if first.Currency != "RUB" {
		t.Fatalf("default currency = %s, want RUB", first.Currency)
	}
	if first.Number != 1 || second.Number != 2 {
		t.Fatalf("numbers = %d, %d, want 1, 2", first.Number, second.Number)
	}
	if first.AuthorID != f.author.UserID {
		t.Fatalf("author = %s, want %s", first.AuthorID, f.author.UserID)
	}
}

func TestCreateRejectsBadContractor(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.author, CreatePaymentInput{
		Amount:       100,
		Purpose:      "supplies",
		ContractorID: "no-such-contractor",
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown contractor: expected not found, got %v", err)
	}

	inactive := &model.Contractor{Name: "Gone Inc", TenantID: f.tenant.ID, IsActive: false}
	if err := f.store.CreateContractor(ctx, inactive); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_, err = f.svc.Create(ctx, f.author, CreatePaymentInput{
		Amount:       100,
		Purpose:      "supplies",
		ContractorID: inactive.ID,
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("inactive contractor: expected not found, got %v", err)
	}

	foreign := &model.Contractor{Name: "Elsewhere Inc", TenantID: "other-tenant", IsActive: true}
	if err := f.store.CreateContractor(ctx, foreign); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_, err = f.svc.Create(ctx, f.author, CreatePaymentInput{
		Amount:       100,
		Purpose:      "supplies",
		ContractorID: foreign.ID,
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("foreign contractor: expected not found, got %v", err)
	}
}

func TestCreateValidatesContractTenant(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	foreign := &model.Contract{Number: "C-42", ContractorID: f.contractor.ID, TenantID: "other-tenant"}
	if err := f.store.CreateContract(ctx, foreign); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err := f.svc.Create(ctx, f.author, CreatePaymentInput{
		Amount:       100,
		Purpose:      "supplies",
		ContractorID: f.contractor.ID,
		ContractID:   &foreign.ID,
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentCreatesGetUniqueNumbers(t *testing.T) {
	f := newPaymentFixture(t)

	const workers = 10
	var wg sync.WaitGroup
	numbers := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payment, err := f.svc.Create(context.Background(), f.author, CreatePaymentInput{
				Amount:       float64(i + 1),
				Purpose:      "bulk order",
				ContractorID: f.contractor.ID,
			})
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			numbers[i] = payment.Number
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, workers)
	for _, n := range numbers {
		if n < 1 || n > workers {
			t.Fatalf("number %d outside expected range", n)
		}
		if seen[n] {
			t.Fatalf("number %d assigned twice", n)
		}
		seen[n] = true
	}
}

func TestGetEnforcesTenantAndVisibility(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.createDraft(t, 100)

	// Author sees own request.
	if _, err := f.svc.Get(ctx, f.author, payment.ID); err != nil {
		t.Fatalf("author get failed: %v", err)
	}

	// Another tenant sees nothing, not even existence.
	outsider := Caller{UserID: "outsider", TenantID: "other-tenant",
		Permissions: permission.NewSet(permission.PaymentViewAll)}
	if _, err := f.svc.Get(ctx, outsider, payment.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("cross-tenant get: expected not found, got %v", err)
	}

	// A colleague without PAYMENT_VIEW_ALL is forbidden.
	colleague := f.callerWith(permission.PaymentViewOwn)
	if _, err := f.svc.Get(ctx, colleague, payment.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("colleague get: expected forbidden, got %v", err)
	}

	// With PAYMENT_VIEW_ALL the same colleague may read it.
	viewer := f.callerWith(permission.PaymentViewAll)
	if _, err := f.svc.Get(ctx, viewer, payment.ID); err != nil {
		t.Fatalf("viewer get failed: %v", err)
	}
}

func TestListScopesToAuthorWithoutViewAll(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.createDraft(t, 100)
	f.createDraft(t, 200)

	// Seed a request by someone else in the same tenant.
	other := f.callerWith(permission.PaymentCreate)
	if _, err := f.svc.Create(ctx, other, CreatePaymentInput{
		Amount:       300,
		Purpose:      "their supplies",
		ContractorID: f.contractor.ID,
	}); err != nil {
		t.Fatalf("seed create failed: %v", err)
	}

	items, total, err := f.svc.List(ctx, f.author, ListPaymentsQuery{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("scoped list: total=%d len=%d, want 2/2", total, len(items))
	}
	for _, item := range items {
		if item.AuthorID != f.author.UserID {
			t.Fatalf("scoped list leaked a foreign request")
		}
	}

	viewer := f.callerWith(permission.PaymentViewAll)
	_, total, err = f.svc.List(ctx, viewer, ListPaymentsQuery{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("tenant-wide list total=%d, want 3", total)
	}
}

func TestListFilters(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	draft := f.createDraft(t, 100)
	submitted := f.createDraft(t, 200)
	if _, err := f.svc.Submit(ctx, f.author, submitted.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	items, total, err := f.svc.List(ctx, f.author, ListPaymentsQuery{Status: model.StatusDraft})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != draft.ID {
		t.Fatalf("status filter returned wrong rows: total=%d", total)
	}

	// Pagination caps the page but reports the full count.
	f.createDraft(t, 300)
	items, total, err = f.svc.List(ctx, f.author, ListPaymentsQuery{Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("paged list: total=%d len=%d, want 3/2", total, len(items))
	}
}

func TestUpdateDraftAndRevision(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.createDraft(t, 100)

	newAmount := 250.0
	newPurpose := "revised supplies"
	updated, err := f.svc.Update(ctx, f.author, payment.ID, UpdatePaymentInput{
		Amount:  &newAmount,
		Purpose: &newPurpose,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Amount != 250 || updated.Purpose != "revised supplies" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Status != model.StatusDraft {
		t.Fatalf("draft status changed to %s", updated.Status)
	}

	// Editing a request sent back for revision returns it to draft.
	updated.Status = model.StatusRevision
	if err := f.store.SavePayment(ctx, updated); err != nil {
		t.Fatalf("seed revision failed: %v", err)
	}
	after, err := f.svc.Update(ctx, f.author, payment.ID, UpdatePaymentInput{Purpose: &newPurpose})
	if err != nil {
		t.Fatalf("revision update failed: %v", err)
	}
	if after.Status != model.StatusDraft {
		t.Fatalf("revision edit left status %s, want DRAFT", after.Status)
	}
}

func TestUpdateGuards(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.createDraft(t, 100)
	amount := 1.0

	// Only the author may edit, regardless of permissions.
	stranger := f.callerWith(permission.PaymentEditOwn, permission.PaymentViewAll)
	if _, err := f.svc.Update(ctx, stranger, payment.ID, UpdatePaymentInput{Amount: &amount}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// Submitted requests are frozen.
	if _, err := f.svc.Submit(ctx, f.author, payment.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.svc.Update(ctx, f.author, payment.ID, UpdatePaymentInput{Amount: &amount}); apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestUpdateClearsContractWithEmptyString(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	contract := &model.Contract{Number: "C-1", ContractorID: f.contractor.ID, TenantID: f.tenant.ID}
	if err := f.store.CreateContract(ctx, contract); err != nil {
		t.Fatalf("seed contract failed: %v", err)
	}

	payment, err := f.svc.Create(ctx, f.author, CreatePaymentInput{
		Amount:       100,
		Purpose:      "contracted work",
		ContractorID: f.contractor.ID,
		ContractID:   &contract.ID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if payment.ContractID == nil || *payment.ContractID != contract.ID {
		t.Fatalf("contract not attached")
	}

	empty := ""
	updated, err := f.svc.Update(ctx, f.author, payment.ID, UpdatePaymentInput{ContractID: &empty})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.ContractID != nil {
		t.Fatalf("contract link not cleared")
	}
}

func TestRemoveDraftCascadesAttachments(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.createDraft(t, 100)

	f.store.AddAttachment(model.Attachment{PaymentID: payment.ID, FileName: "invoice.pdf", TenantID: f.tenant.ID})
	f.store.AddAttachment(model.Attachment{PaymentID: payment.ID, FileName: "act.pdf", TenantID: f.tenant.ID})

	if err := f.svc.Remove(ctx, f.author, payment.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.author, payment.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("deleted request still readable: %v", err)
	}
	if n := f.store.AttachmentCount(payment.ID); n != 0 {
		t.Fatalf("%d attachments survived the delete", n)
	}
}

func TestRemoveGuards(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.createDraft(t, 100)

	stranger := f.callerWith(permission.PaymentEditOwn)
	if err := f.svc.Remove(ctx, stranger, payment.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if _, err := f.svc.Submit(ctx, f.author, payment.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := f.svc.Remove(ctx, f.author, payment.ID); apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request for non-draft delete, got %v", err)
	}
}

func TestSubmitTransitions(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.createDraft(t, 100)

	submitted, err := f.svc.Submit(ctx, f.author, payment.ID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if submitted.Status != model.StatusPendingApproval {
		t.Fatalf("status after submit = %s, want PENDING_APPROVAL", submitted.Status)
	}
	if submitted.Number != payment.Number {
		t.Fatalf("submit changed the number")
	}

	// A second submit is rejected.
	if _, err := f.svc.Submit(ctx, f.author, payment.ID); apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}

	// Only the author may submit.
	other := f.createDraft(t, 200)
	stranger := f.callerWith(permission.PaymentCreate)
	if _, err := f.svc.Submit(ctx, stranger, other.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestNumbersAreNeverReused(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	first := f.createDraft(t, 100)
	if err := f.svc.Remove(ctx, f.author, first.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	second := f.createDraft(t, 200)
	if second.Number != first.Number+1 {
		t.Fatalf("number %d reused after delete, want %d", second.Number, first.Number+1)
	}
}
