package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func testBook(t *testing.T) (*Book, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlite.db")
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b, path
}

func id(seed byte) []byte {
	b := make([]byte, 57)
	for i := range b {
		b[i] = seed
	}
	return b
}

func TestInsertGet(t *testing.T) {
	b, _ := testBook(t)

	if err := b.Insert(id(1), "aaa.onion"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	u, err := b.Get(id(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if u == nil {
		t.Fatal("inserted user not found")
	}
	if !bytes.Equal(u.ID, id(1)) || u.Hostname != "aaa.onion" {
		t.Fatalf("row mismatch: %x %s", u.ID, u.Hostname)
	}
	if u.LastUpdate == 0 {
		t.Fatal("lastupdate not set on insert")
	}
	if u.Username != "" {
		t.Fatalf("fresh row has username %q", u.Username)
	}
}

func TestGetAbsent(t *testing.T) {
	b, _ := testBook(t)
	u, err := b.Get(id(9))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if u != nil {
		t.Fatal("absent id returned a row")
	}
}

func TestInsertDuplicate(t *testing.T) {
	b, _ := testBook(t)

	if err := b.Insert(id(1), "aaa.onion"); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if err := b.Insert(id(1), "bbb.onion"); !errors.Is(err, ErrExists) {
		t.Fatalf("got %v, want ErrExists", err)
	}
	users, err := b.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("got %d rows, want 1", len(users))
	}
	if users[0].Hostname != "aaa.onion" {
		t.Fatal("duplicate insert mutated the original row")
	}
}

func TestListOrder(t *testing.T) {
	b, _ := testBook(t)

	clock := int64(1000)
	b.now = func() int64 { clock++; return clock }

	for i := byte(1); i <= 3; i++ {
		if err := b.Insert(id(i), "peer.onion"); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// Touching the oldest entry moves it to the front.
	if err := b.Touch(id(1)); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	users, err := b.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d rows, want 3", len(users))
	}
	if !bytes.Equal(users[0].ID, id(1)) {
		t.Fatalf("touched user not first, got id %x", users[0].ID[0])
	}
	for i := 1; i < len(users); i++ {
		if users[i-1].LastUpdate < users[i].LastUpdate {
			t.Fatal("list not ordered by lastupdate DESC")
		}
	}
}

func TestTouchAbsent(t *testing.T) {
	b, _ := testBook(t)
	if err := b.Touch(id(7)); err != nil {
		t.Fatalf("Touch of absent id failed: %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	b, _ := testBook(t)

	if err := b.Insert(id(1), "aaa.onion"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := b.Delete(id(1)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := b.Delete(id(1)); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	u, err := b.Get(id(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if u != nil {
		t.Fatal("deleted user still present")
	}
}

func TestSetUsername(t *testing.T) {
	b, _ := testBook(t)

	if err := b.Insert(id(1), "aaa.onion"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := b.SetUsername(id(1), "alice"); err != nil {
		t.Fatalf("SetUsername failed: %v", err)
	}
	u, err := b.Get(id(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("got username %q, want alice", u.Username)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlite.db")
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := b.Insert(id(1), "aaa.onion"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b.Close()
	users, err := b.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 1 || users[0].Hostname != "aaa.onion" {
		t.Fatal("row did not survive reopen")
	}
}
