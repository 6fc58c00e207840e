package rule

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewDefaults(t *testing.T) {
	r := New("/a", "/b")
	if r.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if r.Mode != Copy {
		t.Errorf("expected mode Copy, got %s", r.Mode)
	}
	if r.Enabled {
		t.Error("expected new rule to be disabled")
	}
}

func TestActive(t *testing.T) {
	cases := []struct {
		name string
		r    SyncRule
		want bool
	}{
		{"disabled", SyncRule{}, false},
		{"enabled", SyncRule{Enabled: true}, true},
		{"errored", SyncRule{Enabled: true, Error: "disk full"}, false},
		{"disabled with error", SyncRule{Error: "disk full"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.r.Active(); got != tc.want {
				t.Errorf("Active() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewIDUniqueAndOrdered(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("ids not time-ordered: %s after %s", id, prev)
		}
		prev = id
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"Copy", Copy, false},
		{"copy", Copy, false},
		{"LINK", Link, false},
		{"move", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeWellFormed(t *testing.T) {
	doc := `[
		{"id":"1","from":"/a","to":"/b","mode":"Copy","enabled":false},
		{"id":"2","from":"/c","to":"/d","mode":"Link","enabled":true,"error":"disk full","extra":42}
	]`
	got, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []SyncRule{
		{ID: "1", From: "/a", To: "/b", Mode: Copy},
		{ID: "2", From: "/c", To: "/d", Mode: Link, Enabled: true, Error: "disk full"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := map[string]string{
		"object":       `{"id":"1"}`,
		"null":         `null`,
		"garbage":      `not json`,
		"scalar entry": `[{"id":"1","mode":"Copy"}, 3]`,
		"bad mode":     `[{"id":"1","mode":"Move"}]`,
		"missing id":   `[{"from":"/a","mode":"Copy"}]`,
		"wrong type":   `[{"id":"1","mode":"Copy","enabled":"yes"}]`,
		"duplicate id": `[{"id":"1","mode":"Copy"},{"id":"1","mode":"Link"}]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if rules, err := Decode([]byte(doc)); err == nil {
				t.Errorf("expected error, got %v", rules)
			}
		})
	}
}

func TestEncodeKeepsOrderAndOmitsEmptyError(t *testing.T) {
	rules := []SyncRule{
		{ID: "b", From: "/1", To: "/2", Mode: Link},
		{ID: "a", From: "/3", To: "/4", Mode: Copy, Enabled: true, Error: "boom"},
	}
	data, err := Encode(rules)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `[{"id":"b","from":"/1","to":"/2","mode":"Link","enabled":false},` +
		`{"id":"a","from":"/3","to":"/4","mode":"Copy","enabled":true,"error":"boom"}]`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}

	empty, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode(nil) error = %v", err)
	}
	if string(empty) != "[]" {
		t.Errorf("Encode(nil) = %s, want []", empty)
	}
}
