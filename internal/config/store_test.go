package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wardenmcp/warden/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBackendCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &model.BackendConfig{
		Name:     "github",
		Label:    "GitHub tools",
		Kind:     "http",
		URL:      "http://localhost:9001/rpc",
		IsActive: true,
	}
	if err := store.CreateBackend(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == 0 {
		t.Fatal("ID not populated")
	}
	if b.Timeout != model.DefaultBackendTimeout {
		t.Errorf("timeout = %v, want default", b.Timeout)
	}

	got, err := store.GetBackendByName(ctx, "github")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.URL != b.URL || got.Kind != "http" {
		t.Errorf("got = %+v", got)
	}

	got.Label = "GitHub (prod)"
	if err := store.UpdateBackend(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := store.GetBackendByName(ctx, "github")
	if again.Label != "GitHub (prod)" {
		t.Errorf("label = %s", again.Label)
	}

	if err := store.DeleteBackend(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetBackendByName(ctx, "github"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	if err := store.DeleteBackend(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestBackendNameUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := &model.BackendConfig{Name: "jira", Kind: "http", URL: "http://x", IsActive: true}
	if err := store.CreateBackend(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &model.BackendConfig{Name: "jira", Kind: "http", URL: "http://y", IsActive: true}
	if err := store.CreateBackend(ctx, dup); err == nil {
		t.Error("duplicate name accepted")
	}
}

func TestRoleCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	role := &model.Role{
		Name:        "developer",
		Description: "read/write on dev tools",
		Permissions: []string{"github:read", "github:write"},
		IsActive:    true,
	}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetRoleByName(ctx, "developer")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if len(got.Permissions) != 2 || got.Permissions[0] != "github:read" {
		t.Errorf("permissions = %v", got.Permissions)
	}

	byID, err := store.GetRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("get by ID: %v", err)
	}
	if byID.Name != "developer" {
		t.Errorf("name = %s", byID.Name)
	}

	got.Permissions = append(got.Permissions, "jira:read")
	if err := store.UpdateRole(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := store.GetRole(ctx, role.ID)
	if len(again.Permissions) != 3 {
		t.Errorf("permissions after update = %v", again.Permissions)
	}

	roles, err := store.ListRoles(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(roles) != 1 {
		t.Errorf("len(roles) = %d", len(roles))
	}

	if err := store.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetRoleByName(ctx, "developer"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestRoleEmptyPermissions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	role := &model.Role{Name: "empty", IsActive: true}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.GetRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Permissions == nil || len(got.Permissions) != 0 {
		t.Errorf("permissions = %#v, want empty non-nil slice", got.Permissions)
	}
}

func TestAdminStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	any, err := store.HasAnyAdmin(ctx)
	if err != nil {
		t.Fatalf("HasAnyAdmin: %v", err)
	}
	if any {
		t.Error("fresh store reports admins")
	}

	admin := &model.Admin{
		Email:        "root@example.com",
		PasswordHash: HashAPIKey("hunter22"),
		Name:         "Root",
		IsActive:     true,
	}
	if err := store.CreateAdmin(ctx, admin); err != nil {
		t.Fatalf("create: %v", err)
	}

	any, _ = store.HasAnyAdmin(ctx)
	if !any {
		t.Error("HasAnyAdmin = false after create")
	}

	got, err := store.GetAdminByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Root" || !got.IsActive {
		t.Errorf("got = %+v", got)
	}
	if got.LastLoginAt != nil {
		t.Error("LastLoginAt set before any login")
	}

	if err := store.UpdateAdminLastLogin(ctx, admin.ID); err != nil {
		t.Fatalf("update last login: %v", err)
	}
	got, _ = store.GetAdminByEmail(ctx, "root@example.com")
	if got.LastLoginAt == nil {
		t.Error("LastLoginAt not recorded")
	}

	if _, err := store.GetAdminByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown email err = %v, want ErrNotFound", err)
	}
}

func TestAPIKeyStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	role := &model.Role{Name: "viewer", Permissions: []string{"*:read"}, IsActive: true}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}

	const raw = "wdn_storetest000000000000000000000000000"
	key := &model.APIKey{
		KeyHash:   HashAPIKey(raw),
		KeyPrefix: raw[:12],
		Label:     "ci key",
		UserID:    "alice",
		RoleID:    role.ID,
		Team:      "platform",
		IsActive:  true,
	}
	if err := store.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("create key: %v", err)
	}

	got, err := store.GetAPIKeyByHash(ctx, HashAPIKey(raw))
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got.UserID != "alice" || got.Team != "platform" {
		t.Errorf("got = %+v", got)
	}

	if err := store.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("update last used: %v", err)
	}
	got, _ = store.GetAPIKeyByHash(ctx, HashAPIKey(raw))
	if got.LastUsed == nil {
		t.Error("LastUsed not recorded")
	}

	if err := store.RevokeAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, err = store.GetAPIKeyByHash(ctx, HashAPIKey(raw))
	if err != nil {
		t.Fatalf("get after revoke: %v", err)
	}
	if got.IsActive {
		t.Error("key still active after revoke")
	}
}

func TestRevokeAPIKeyByPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	role := &model.Role{Name: "viewer", Permissions: []string{"*:read"}, IsActive: true}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}

	const raw = "wdn_prefix000000000000000000000000000000"
	key := &model.APIKey{
		KeyHash:   HashAPIKey(raw),
		KeyPrefix: raw[:12],
		UserID:    "bob",
		RoleID:    role.ID,
		IsActive:  true,
	}
	if err := store.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("create key: %v", err)
	}

	if err := store.RevokeAPIKeyByPrefix(ctx, raw[:12]); err != nil {
		t.Fatalf("revoke by prefix: %v", err)
	}
	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].IsActive {
		t.Errorf("keys = %+v", keys)
	}

	if err := store.RevokeAPIKeyByPrefix(ctx, "wdn_nosuch00"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown prefix err = %v, want ErrNotFound", err)
	}
}

func TestSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetSetting(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing setting err = %v, want ErrNotFound", err)
	}

	if err := store.SetSetting(ctx, "retention_days", "90"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := store.GetSetting(ctx, "retention_days")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "90" {
		t.Errorf("value = %q", v)
	}

	// SetSetting upserts.
	if err := store.SetSetting(ctx, "retention_days", "30"); err != nil {
		t.Fatalf("set again: %v", err)
	}
	v, _ = store.GetSetting(ctx, "retention_days")
	if v != "30" {
		t.Errorf("value after upsert = %q", v)
	}
}

func TestHashAPIKeyDeterministic(t *testing.T) {
	a := HashAPIKey("wdn_abc")
	b := HashAPIKey("wdn_abc")
	if a != b {
		t.Error("hash not deterministic")
	}
	if a == HashAPIKey("wdn_abd") {
		t.Error("distinct inputs collide")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestStoreTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	role := &model.Role{Name: "stamped", IsActive: true}
	before := time.Now().Add(-time.Second)
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create: %v", err)
	}
	if role.CreatedAt.Before(before) || role.UpdatedAt.Before(before) {
		t.Errorf("timestamps not set: created=%v updated=%v", role.CreatedAt, role.UpdatedAt)
	}
}
