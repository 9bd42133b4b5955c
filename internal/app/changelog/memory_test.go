package changelog

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_KeepsVersionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, v := range []int64{2, 0, 3, 1} {
		if _, err := store.Append(ctx, Entry{ID: "e", ResourceID: "t", Version: v}); err != nil {
			t.Fatalf("Append(%d) error: %v", v, err)
		}
	}

	got, err := store.FindSince(ctx, 0)
	if err != nil {
		t.Fatalf("FindSince error: %v", err)
	}
	if len(got) != 3 || got[0].Version != 1 || got[1].Version != 2 || got[2].Version != 3 {
		t.Fatalf("unexpected entries: %+v", got)
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if latest.Version != 3 {
		t.Fatalf("expected latest version 3, got %d", latest.Version)
	}
}

func TestMemoryStore_RejectsDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Append(ctx, Entry{ID: "a", ResourceID: "t", Version: 0}); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if _, err := store.Append(ctx, Entry{ID: "b", ResourceID: "t", Version: 0}); !errors.Is(err, ErrDuplicateVersion) {
		t.Fatalf("expected ErrDuplicateVersion, got %v", err)
	}
}

func TestMemoryStore_LatestEmpty(t *testing.T) {
	if _, err := NewMemoryStore().Latest(context.Background()); !errors.Is(err, ErrNoEntries) {
		t.Fatalf("expected ErrNoEntries, got %v", err)
	}
}

func TestParseWatermark(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"", NoWatermark, false},
		{"  ", NoWatermark, false},
		{"0", 0, false},
		{"-1", NoWatermark, false},
		{"-7", NoWatermark, false},
		{"42", 42, false},
		{"abc", 0, true},
		{"1.5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseWatermark(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidWatermark) {
				t.Fatalf("ParseWatermark(%q): expected ErrInvalidWatermark, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseWatermark(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
}
