package persist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mahyarmirrashed/dsd/internal/rule"
)

func TestFileKVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	kv, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if _, ok, err := kv.Get(Key); ok || err != nil {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	doc := []byte(`[{"id":"1","from":"/a","to":"/b","mode":"Copy","enabled":false}]`)
	if err := kv.Set(Key, doc); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Set must not touch disk before Flush, stat err = %v", err)
	}
	if err := kv.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := reopened.Get(Key)
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	if string(got) != string(doc) {
		t.Errorf("Get() = %s, want %s", got, doc)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the store file, found %d entries", len(entries))
	}
}

func TestFileKVRejectsInvalidJSON(t *testing.T) {
	kv, err := OpenFile(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(Key, []byte("{broken")); err == nil {
		t.Error("expected error for invalid JSON value")
	}
}

func TestFileKVMalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("[1,2,3]"), 0644); err != nil {
		t.Fatal(err)
	}
	kv, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if _, ok, _ := kv.Get(Key); ok {
		t.Error("expected malformed file to yield empty store")
	}
}

func TestFileKVClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	kv, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(Key, []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Close should flush staged values: %v", err)
	}
	if err := kv.Set(Key, []byte(`[]`)); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close error = %v, want ErrClosed", err)
	}
}

func TestSQLiteKVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	kv, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}

	if err := kv.Set(Key, []byte(`["first"]`)); err != nil {
		t.Fatal(err)
	}
	got, ok, err := kv.Get(Key)
	if err != nil || !ok || string(got) != `["first"]` {
		t.Fatalf("Get() of staged value = %s ok=%v err=%v", got, ok, err)
	}
	if err := kv.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := kv.Set(Key, []byte(`["second"]`)); err != nil {
		t.Fatal(err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, ok, err = reopened.Get(Key)
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	if string(got) != `["second"]` {
		t.Errorf("Get() = %s, want [\"second\"]", got)
	}
	if _, ok, _ := reopened.Get("missing"); ok {
		t.Error("expected missing key to be absent")
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []Backend{BackendFile, BackendSQLite, ""} {
		kv, err := Open(backend, filepath.Join(dir, "store-"+string(backend)))
		if err != nil {
			t.Errorf("Open(%q) error = %v", backend, err)
			continue
		}
		kv.Close()
	}
	if _, err := Open("redis", filepath.Join(dir, "x")); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestLoadRules(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []rule.SyncRule
	}{
		{"absent", "", nil},
		{"not a list", `{"id":"1"}`, nil},
		{"bad element", `[{"id":"1","mode":"Copy"},"x"]`, nil},
		{"empty list", `[]`, []rule.SyncRule{}},
		{
			"well formed",
			`[{"id":"2","from":"/c","to":"/d","mode":"Link","enabled":true},{"id":"1","from":"/a","to":"/b","mode":"Copy","enabled":false,"error":"old"}]`,
			[]rule.SyncRule{
				{ID: "2", From: "/c", To: "/d", Mode: rule.Link, Enabled: true},
				{ID: "1", From: "/a", To: "/b", Mode: rule.Copy, Error: "old"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newMemKV()
			if tt.doc != "" {
				kv.values[Key] = []byte(tt.doc)
			}
			got := LoadRules(kv)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("LoadRules() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOpenLockedIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "store.json")

	first, err := OpenLocked(BackendFile, path)
	if err != nil {
		t.Fatalf("OpenLocked() error = %v", err)
	}
	if _, err := OpenLocked(BackendFile, path); !errors.Is(err, ErrInUse) {
		t.Fatalf("second OpenLocked() error = %v, want ErrInUse", err)
	}

	if err := first.Set(Key, []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := OpenLocked(BackendFile, path)
	if err != nil {
		t.Fatalf("OpenLocked() after release error = %v", err)
	}
	defer second.Close()
	if _, ok, _ := second.Get(Key); !ok {
		t.Error("document written under the first lock is missing")
	}
}
