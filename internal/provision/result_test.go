package provision

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResult_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livekit-sip.json")
	r := &Result{
		BaseName:        "my-agent",
		InboundTrunkID:  "ST_in",
		OutboundTrunkID: "ST_out",
		TwilioTrunkSID:  "TK123",
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if err := r.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := LoadResult(path)
	if err != nil {
		t.Fatalf("LoadResult() failed: %v", err)
	}
	if loaded.OutboundTrunkID != "ST_out" || loaded.InboundTrunkID != "ST_in" || loaded.TwilioTrunkSID != "TK123" {
		t.Errorf("Expected %+v, got %+v", r, loaded)
	}
	if !loaded.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("Expected CreatedAt %v, got %v", r.CreatedAt, loaded.CreatedAt)
	}
}

func TestResolveOutboundTrunkID(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "saved.json")
	if err := (&Result{OutboundTrunkID: "ST_file"}).Save(saved); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	empty := filepath.Join(dir, "empty.json")
	if err := (&Result{}).Save(empty); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	tests := []struct {
		name     string
		explicit string
		path     string
		want     string
		wantErr  bool
	}{
		{"explicit wins", "ST_env", saved, "ST_env", false},
		{"artifact fallback", "", saved, "ST_file", false},
		{"missing artifact", "", filepath.Join(dir, "absent.json"), "", true},
		{"artifact without id", "", empty, "", true},
		{"nothing configured", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveOutboundTrunkID(tt.explicit, tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrNoOutboundTrunk) {
					t.Errorf("Expected ErrNoOutboundTrunk, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
