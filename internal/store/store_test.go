package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/matheus3301/teamchat/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already migrated; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
	if result.Dirty {
		t.Error("migration left the schema dirty")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := testDB(t)

	if err := db.SaveSession(&Session{Name: "main", Token: "tok-1", UserID: 7, Username: "alice"}); err != nil {
		t.Fatal(err)
	}
	s, err := db.LoadSession("main")
	if err != nil {
		t.Fatal(err)
	}
	if s.Token != "tok-1" || s.UserID != 7 || s.Username != "alice" {
		t.Errorf("got %+v", s)
	}
	if s.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	// A token refresh without identity keeps the stored identity.
	if err := db.SaveSession(&Session{Name: "main", Token: "tok-2"}); err != nil {
		t.Fatal(err)
	}
	s, err = db.LoadSession("main")
	if err != nil {
		t.Fatal(err)
	}
	if s.Token != "tok-2" || s.Username != "alice" {
		t.Errorf("after refresh got %+v", s)
	}
}

func TestLoadMissingSession(t *testing.T) {
	db := testDB(t)

	_, err := db.LoadSession("absent")
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("LoadSession() error = %v, want ErrNoSession", err)
	}
}

func TestDeleteSession(t *testing.T) {
	db := testDB(t)

	if err := db.SaveSession(&Session{Name: "main", Token: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteSession("main"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.LoadSession("main"); !errors.Is(err, ErrNoSession) {
		t.Errorf("after delete error = %v, want ErrNoSession", err)
	}
	if err := db.DeleteSession("main"); err != nil {
		t.Errorf("second delete error = %v", err)
	}
}

func TestTokenStore(t *testing.T) {
	db := testDB(t)
	if err := db.SaveSession(&Session{Name: "work", Token: "stored"}); err != nil {
		t.Fatal(err)
	}

	ts := db.Tokens("work")
	if got := ts.Token(); got != "stored" {
		t.Errorf("Token() = %q, want stored", got)
	}

	if err := ts.Set("fresh", models.User{ID: 3, Username: "bob"}); err != nil {
		t.Fatal(err)
	}
	if got := ts.Token(); got != "fresh" {
		t.Errorf("Token() after Set = %q, want fresh", got)
	}
	s, err := db.LoadSession("work")
	if err != nil {
		t.Fatal(err)
	}
	if s.Username != "bob" {
		t.Errorf("stored username = %q, want bob", s.Username)
	}

	if err := ts.Clear(); err != nil {
		t.Fatal(err)
	}
	if got := ts.Token(); got != "" {
		t.Errorf("Token() after Clear = %q, want empty", got)
	}
	if other := db.Tokens("other").Token(); other != "" {
		t.Errorf("unrelated session token = %q", other)
	}
}
