package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/unitask/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserCreateAndGet(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	u, err := us.Create("alice", "1001")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}

	byUUID, err := us.GetByUUID("1001")
	if err != nil {
		t.Fatalf("get by uuid: %v", err)
	}
	if byUUID == nil || byUUID.Username != "alice" {
		t.Errorf("get by uuid = %+v, want alice", byUUID)
	}
}

func TestUserGetNotFound(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	u, err := us.GetByID(999)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil, got %+v", u)
	}
}

func TestUpsertFromBotCreates(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	u, changed, err := us.UpsertFromBot("2002", "bob")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !changed {
		t.Error("expected changed=true on create")
	}
	if u.UUID != "2002" || u.Username != "bob" {
		t.Errorf("user = %+v", u)
	}
}

func TestUpsertFromBotRenames(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	us.UpsertFromBot("2002", "bob")

	u, changed, err := us.UpsertFromBot("2002", "bobby")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !changed {
		t.Error("expected changed=true on rename")
	}
	if u.Username != "bobby" {
		t.Errorf("username = %q, want %q", u.Username, "bobby")
	}

	_, changed, _ = us.UpsertFromBot("2002", "bobby")
	if changed {
		t.Error("expected changed=false when nothing differs")
	}
}

func TestUpsertFromBotUsernameConflict(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	us.Create("carol", "3003")

	u, _, err := us.UpsertFromBot("4004", "carol")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.Username != "carol_4004" {
		t.Errorf("username = %q, want %q", u.Username, "carol_4004")
	}
}
