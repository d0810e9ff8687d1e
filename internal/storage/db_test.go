package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	version, err := schemaVersion(db.DB)
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if version == 0 {
		t.Fatal("no migrations applied")
	}

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='messages'").Scan(&name)
	if err != nil {
		t.Fatalf("messages table missing: %v", err)
	}
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	v1, _ := schemaVersion(db1.DB)
	db1.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	v2, _ := schemaVersion(db2.DB)
	if v1 != v2 {
		t.Fatalf("version changed across opens: %d != %d", v1, v2)
	}
}

func TestWithTxRollback(t *testing.T) {
	db := openTestDB(t)

	wantErr := errors.New("boom")
	err := db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
			"m1", "a1", "user", "hi", time.Now(),
		); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}

	count, err := db.CountMessages("a1")
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 0 {
		t.Fatalf("rolled-back insert persisted, count = %d", count)
	}
}
