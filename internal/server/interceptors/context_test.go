package interceptors

import (
	"context"
	"testing"

	"orgscope/internal/security"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "org-1", "session-1")

	if userID, ok := GetUserID(ctx); !ok || userID != "user-1" {
		t.Errorf("user_id = %q, ok = %v, want %q", userID, ok, "user-1")
	}
	if orgID, ok := GetOrgID(ctx); !ok || orgID != "org-1" {
		t.Errorf("org_id = %q, ok = %v, want %q", orgID, ok, "org-1")
	}
	if sessionID, ok := GetSessionID(ctx); !ok || sessionID != "session-1" {
		t.Errorf("session_id = %q, ok = %v, want %q", sessionID, ok, "session-1")
	}
}

func TestGetters_ReturnFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserID(ctx); ok {
		t.Error("GetUserID should return false")
	}
	if _, ok := GetOrgID(ctx); ok {
		t.Error("GetOrgID should return false")
	}
	if _, ok := GetSessionID(ctx); ok {
		t.Error("GetSessionID should return false")
	}
	if _, ok := SessionFrom(ctx); ok {
		t.Error("SessionFrom should return false")
	}
}

func TestWithPrincipal(t *testing.T) {
	ctx := WithPrincipal(context.Background(), security.Principal{UserID: "u", OrgID: "o", SessionID: "s"})
	if v, _ := GetOrgID(ctx); v != "o" {
		t.Errorf("org_id = %q, want %q", v, "o")
	}
	if v, _ := GetSessionID(ctx); v != "s" {
		t.Errorf("session_id = %q, want %q", v, "s")
	}
}

func TestWithSession_OverridesOrgID(t *testing.T) {
	dir := newDirectory()
	dir.join("u1", "org-b", joined)
	m := newTestManager(t, dir, nil)
	sess, err := m.Open(context.Background(), security.Principal{UserID: "u1"}, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	ctx := WithIdentity(context.Background(), "u1", "org-from-token", "s1")
	ctx = WithSession(ctx, sess)
	if got, ok := SessionFrom(ctx); !ok || got != sess {
		t.Fatal("SessionFrom should return the stored session")
	}
	if v, _ := GetOrgID(ctx); v != "org-b" {
		t.Errorf("org_id = %q, want %q", v, "org-b")
	}
}
