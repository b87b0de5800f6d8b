package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"payflow/internal/apperr"
	"payflow/internal/model"
	"payflow/internal/permission"
	"payflow/internal/repository/memstore"
	"payflow/pkg/jwtutil"
)

func newAuthService() (*AuthService, *memstore.Store) {
	store := memstore.NewStore()
	tokens := jwtutil.NewIssuer(&jwtutil.Config{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	return NewAuthService(store, tokens, zap.NewNop()), store
}

func registerTenant(t *testing.T, svc *AuthService, email string) *AuthResult {
	t.Helper()
	result, err := svc.Register(context.Background(), RegisterInput{
		CompanyName: "Acme LLC",
		Email:       email,
		Password:    "initial-password",
		Name:        "Owner",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return result
}

func TestRegisterCreatesTenantWithFullPermissionAdmin(t *testing.T) {
	svc, _ := newAuthService()

	result := registerTenant(t, svc, "owner@acme.test")

	if result.User == nil || result.Tenant == nil {
		t.Fatalf("expected user and tenant in result")
	}
	if result.User.TenantID != result.Tenant.ID {
		t.Fatalf("user belongs to tenant %s, want %s", result.User.TenantID, result.Tenant.ID)
	}
	if result.User.Password != "" {
		t.Fatalf("password hash leaked into result")
	}
	if len(result.Permissions) != len(permission.All()) {
		t.Fatalf("first user holds %d permissions, want the full catalog of %d",
			len(result.Permissions), len(permission.All()))
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected a token pair")
	}

	perms, err := svc.ResolvePermissions(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("resolve permissions failed: %v", err)
	}
	if !perms.HasAll(permission.All()...) {
		t.Fatalf("stored admin role is missing permissions: %v", perms.Keys())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthService()
	registerTenant(t, svc, "owner@acme.test")

	_, err := svc.Register(context.Background(), RegisterInput{
		CompanyName: "Other Co",
		Email:       "owner@acme.test",
		Password:    "whatever",
		Name:        "Imposter",
	})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	svc, _ := newAuthService()
	reg := registerTenant(t, svc, "owner@acme.test")

	result, err := svc.Login(context.Background(), LoginInput{
		Email:    "owner@acme.test",
		Password: "initial-password",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.User.ID != reg.User.ID {
		t.Fatalf("login resolved wrong user")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected a token pair")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, store := newAuthService()
	registerTenant(t, svc, "owner@acme.test")

	_, wrongPass := svc.Login(context.Background(), LoginInput{
		Email:    "owner@acme.test",
		Password: "not-the-password",
	})
	_, unknownEmail := svc.Login(context.Background(), LoginInput{
		Email:    "nobody@acme.test",
		Password: "initial-password",
	})

	if apperr.KindOf(wrongPass) != apperr.KindUnauthorized {
		t.Fatalf("wrong password: expected unauthorized, got %v", wrongPass)
	}
	if apperr.KindOf(unknownEmail) != apperr.KindUnauthorized {
		t.Fatalf("unknown email: expected unauthorized, got %v", unknownEmail)
	}
	if apperr.MessageOf(wrongPass) != apperr.MessageOf(unknownEmail) {
		t.Fatalf("failure messages differ: %q vs %q",
			apperr.MessageOf(wrongPass), apperr.MessageOf(unknownEmail))
	}

	// Deactivated accounts fail the same way.
	store.SetUserActive("owner@acme.test", false)

	_, inactive := svc.Login(context.Background(), LoginInput{
		Email:    "owner@acme.test",
		Password: "initial-password",
	})
	if apperr.KindOf(inactive) != apperr.KindUnauthorized {
		t.Fatalf("inactive account: expected unauthorized, got %v", inactive)
	}
	if apperr.MessageOf(inactive) != apperr.MessageOf(wrongPass) {
		t.Fatalf("inactive message differs: %q", apperr.MessageOf(inactive))
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, _ := newAuthService()
	reg := registerTenant(t, svc, "owner@acme.test")

	result, err := svc.Refresh(context.Background(), reg.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if result.AccessToken == reg.AccessToken {
		t.Fatalf("refresh returned the original access token")
	}
	if result.RefreshToken == "" || result.RefreshToken == reg.RefreshToken {
		t.Fatalf("expected a rotated refresh token")
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _ := newAuthService()
	reg := registerTenant(t, svc, "owner@acme.test")

	cases := []string{"", "not-a-jwt", reg.AccessToken}
	for _, token := range cases {
		if _, err := svc.Refresh(context.Background(), token); apperr.KindOf(err) != apperr.KindUnauthorized {
			t.Fatalf("Refresh(%q): expected unauthorized, got %v", token, err)
		}
	}
}

func TestCreateInviteRejectsExistingEmail(t *testing.T) {
	svc, _ := newAuthService()
	reg := registerTenant(t, svc, "owner@acme.test")
	caller := Caller{UserID: reg.User.ID, TenantID: reg.Tenant.ID}

	_, err := svc.CreateInvite(context.Background(), caller, InviteInput{Email: "owner@acme.test"})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateInviteChecksRoleTenant(t *testing.T) {
	svc, _ := newAuthService()
	first := registerTenant(t, svc, "owner@acme.test")
	second := registerTenant(t, svc, "owner@other.test")

	// A role id from another tenant must not be attachable.
	roles, err := svc.store.RolesForUser(context.Background(), second.User.ID)
	if err != nil || len(roles) == 0 {
		t.Fatalf("expected the other tenant's admin role, got %v", err)
	}
	foreignRoleID := roles[0].ID

	caller := Caller{UserID: first.User.ID, TenantID: first.Tenant.ID}
	_, err = svc.CreateInvite(context.Background(), caller, InviteInput{
		Email:  "newhire@acme.test",
		RoleID: &foreignRoleID,
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAcceptInvite(t *testing.T) {
	svc, _ := newAuthService()
	reg := registerTenant(t, svc, "owner@acme.test")
	caller := Caller{UserID: reg.User.ID, TenantID: reg.Tenant.ID}

	roles, err := svc.store.RolesForUser(context.Background(), reg.User.ID)
	if err != nil || len(roles) == 0 {
		t.Fatalf("expected admin role: %v", err)
	}
	roleID := roles[0].ID

	invite, err := svc.CreateInvite(context.Background(), caller, InviteInput{
		Email:  "newhire@acme.test",
		RoleID: &roleID,
	})
	if err != nil {
		t.Fatalf("create invite failed: %v", err)
	}
	if invite.Token == "" {
		t.Fatalf("expected an invite token")
	}

	result, err := svc.AcceptInvite(context.Background(), invite.Token, AcceptInviteInput{
		Password: "newhire-password",
		Name:     "New Hire",
	})
	if err != nil {
		t.Fatalf("accept invite failed: %v", err)
	}
	if result.User.TenantID != reg.Tenant.ID {
		t.Fatalf("new user landed in tenant %s, want %s", result.User.TenantID, reg.Tenant.ID)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected a token pair")
	}

	perms, err := svc.ResolvePermissions(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("resolve permissions failed: %v", err)
	}
	if !perms.Has(permission.PaymentCreate) {
		t.Fatalf("invited user did not receive the assigned role")
	}

	// The invite is single use.
	_, err = svc.AcceptInvite(context.Background(), invite.Token, AcceptInviteInput{
		Password: "other-password",
		Name:     "Second Taker",
	})
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request on reuse, got %v", err)
	}
}

func TestAcceptExpiredInvite(t *testing.T) {
	svc, store := newAuthService()
	reg := registerTenant(t, svc, "owner@acme.test")

	expired := &model.Invite{
		Email:     "late@acme.test",
		Token:     "expired-invite-token",
		TenantID:  reg.Tenant.ID,
		InvitedBy: reg.User.ID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := store.CreateInvite(context.Background(), expired); err != nil {
		t.Fatalf("seed invite failed: %v", err)
	}

	_, err := svc.AcceptInvite(context.Background(), expired.Token, AcceptInviteInput{
		Password: "late-password",
		Name:     "Too Late",
	})
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}

	// An unknown token fails the same way.
	_, err = svc.AcceptInvite(context.Background(), "no-such-token", AcceptInviteInput{
		Password: "late-password",
		Name:     "Nobody",
	})
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request for unknown token, got %v", err)
	}
}

func TestAcceptInviteConcurrentRedemption(t *testing.T) {
	svc, store := newAuthService()
	reg := registerTenant(t, svc, "owner@acme.test")
	caller := Caller{UserID: reg.User.ID, TenantID: reg.Tenant.ID}

	invite, err := svc.CreateInvite(context.Background(), caller, InviteInput{Email: "raced@acme.test"})
	if err != nil {
		t.Fatalf("create invite failed: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AcceptInvite(context.Background(), invite.Token, AcceptInviteInput{
				Password: "raced-password",
				Name:     "Racer",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d redemptions succeeded, want exactly 1", succeeded)
	}

	if _, err := store.UserByEmail(context.Background(), "raced@acme.test"); err != nil {
		t.Fatalf("winner's account missing: %v", err)
	}
}

func TestGetMe(t *testing.T) {
	svc, _ := newAuthService()
	reg := registerTenant(t, svc, "owner@acme.test")

	me, err := svc.GetMe(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("get me failed: %v", err)
	}
	if me.User.ID != reg.User.ID || me.Tenant.ID != reg.Tenant.ID {
		t.Fatalf("resolved wrong identity")
	}
	if len(me.Permissions) != len(permission.All()) {
		t.Fatalf("expected full permission catalog, got %d", len(me.Permissions))
	}

	if _, err := svc.GetMe(context.Background(), "no-such-user"); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}
}

func TestRegisteredTenantsAreIsolated(t *testing.T) {
	svc, _ := newAuthService()
	first := registerTenant(t, svc, "owner@acme.test")
	second := registerTenant(t, svc, "owner@other.test")

	if first.Tenant.ID == second.Tenant.ID {
		t.Fatalf("two registrations share a tenant")
	}

	if first.User.TenantID == second.User.TenantID {
		t.Fatalf("users from separate registrations share a tenant")
	}
}
