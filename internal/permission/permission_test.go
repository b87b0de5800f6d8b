package permission

import (
	"sort"
	"testing"
)

func TestParseSetRoundTrip(t *testing.T) {
	raw, err := MarshalKeys([]Key{PaymentCreate, AdminUsers})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	set := ParseSet(raw)
	if len(set) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(set))
	}
	if !set.Has(PaymentCreate) || !set.Has(AdminUsers) {
		t.Fatalf("round trip lost keys: %v", set.Keys())
	}
}

func TestParseSetDropsUnknownAndMalformedEntries(t *testing.T) {
	set := ParseSet(`["PAYMENT_CREATE", "NOT_A_PERMISSION", 42, {"nested": true}, "ADMIN_ROLES"]`)
	if len(set) != 2 {
		t.Fatalf("expected 2 keys, got %v", set.Keys())
	}
	if !set.Has(PaymentCreate) || !set.Has(AdminRoles) {
		t.Fatalf("expected surviving keys, got %v", set.Keys())
	}
}

func TestParseSetBadPayload(t *testing.T) {
	for _, raw := range []string{"", "null", "not json", `{"a":1}`, `"PAYMENT_CREATE"`} {
		if set := ParseSet(raw); len(set) != 0 {
			t.Fatalf("ParseSet(%q) = %v, want empty set", raw, set.Keys())
		}
	}
}

func TestHasAll(t *testing.T) {
	set := NewSet(PaymentCreate, PaymentEditOwn)
	if !set.HasAll(PaymentCreate, PaymentEditOwn) {
		t.Fatalf("expected HasAll to pass for subset")
	}
	if set.HasAll(PaymentCreate, AdminUsers) {
		t.Fatalf("expected HasAll to fail for missing key")
	}
}

func TestUnionDeduplicates(t *testing.T) {
	a := NewSet(PaymentCreate, PaymentViewOwn)
	b := NewSet(PaymentViewOwn, ApprovalDecide)

	union := Union(a, b)
	got := union.Strings()
	sort.Strings(got)

	want := []string{"APPROVAL_DECIDE", "PAYMENT_CREATE", "PAYMENT_VIEW_OWN"}
	if len(got) != len(want) {
		t.Fatalf("union = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("union = %v, want %v", got, want)
		}
	}
}

func TestAllKeysAreKnown(t *testing.T) {
	for _, k := range All() {
		if !Known(k) {
			t.Fatalf("catalog key %s not recognized", k)
		}
	}
	if Known("MADE_UP") {
		t.Fatalf("unexpected key recognized")
	}
}
