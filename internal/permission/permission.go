package permission

import "encoding/json"

// Key is a permission identifier drawn from the fixed catalog below. Roles
// grant sets of keys; a user's effective set is the union over its roles.
type Key string

const (
	PaymentCreate  Key = "PAYMENT_CREATE"
	PaymentEditOwn Key = "PAYMENT_EDIT_OWN"
	PaymentViewOwn Key = "PAYMENT_VIEW_OWN"
	PaymentViewAll Key = "PAYMENT_VIEW_ALL"

	ApprovalDecide      Key = "APPROVAL_DECIDE"
	ApprovalRouteManage Key = "APPROVAL_ROUTE_MANAGE"

	RegistryCreate   Key = "REGISTRY_CREATE"
	RegistryExport   Key = "REGISTRY_EXPORT"
	RegistryMarkPaid Key = "REGISTRY_MARK_PAID"

	ContractorManage Key = "CONTRACTOR_MANAGE"

	AdminUsers  Key = "ADMIN_USERS"
	AdminRoles  Key = "ADMIN_ROLES"
	AdminTenant Key = "ADMIN_TENANT"
)

// All lists the full catalog. The Administrator role seeded at registration
// receives every key.
func All() []Key {
	return []Key{
		PaymentCreate, PaymentEditOwn, PaymentViewOwn, PaymentViewAll,
		ApprovalDecide, ApprovalRouteManage,
		RegistryCreate, RegistryExport, RegistryMarkPaid,
		ContractorManage,
		AdminUsers, AdminRoles, AdminTenant,
	}
}

var catalog = func() map[Key]struct{} {
	m := make(map[Key]struct{})
	for _, k := range All() {
		m[k] = struct{}{}
	}
	return m
}()

// Known reports whether k belongs to the catalog.
func Known(k Key) bool {
	_, ok := catalog[k]
	return ok
}

// Set is an unordered permission set.
type Set map[Key]struct{}

func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s Set) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// HasAll reports whether s is a superset of the required keys.
func (s Set) HasAll(keys ...Key) bool {
	for _, k := range keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Keys returns the set members as a slice, order unspecified.
func (s Set) Keys() []Key {
	out := make([]Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// Strings returns the set members as strings for serialization.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, string(k))
	}
	return out
}

// MarshalKeys encodes keys as the jsonb payload stored on a role.
func MarshalKeys(keys []Key) (string, error) {
	raw, err := json.Marshal(keys)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseSet decodes a role's stored permission payload. Entries that are not
// strings or not in the catalog are dropped rather than failing the parse;
// a payload that is not a JSON array yields an empty set.
func ParseSet(raw string) Set {
	s := make(Set)
	if raw == "" {
		return s
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return s
	}
	for _, entry := range entries {
		var key string
		if err := json.Unmarshal(entry, &key); err != nil {
			continue
		}
		if Known(Key(key)) {
			s[Key(key)] = struct{}{}
		}
	}
	return s
}

// Union merges the given sets into a new set.
func Union(sets ...Set) Set {
	out := make(Set)
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}
