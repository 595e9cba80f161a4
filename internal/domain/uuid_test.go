package domain

import (
	"testing"
	"time"
)

const sampleHash = "d2354010a3ca4ade5b7427bb093a62a3899ff381"

func TestNewTorrentUUIDStable(t *testing.T) {
	added := time.Unix(1700000000, 0)
	a := NewTorrentUUID(sampleHash, added)
	b := NewTorrentUUID(sampleHash, added.Add(300*time.Millisecond))
	if a != b {
		t.Fatalf("uuid changed for same hash and second: %s vs %s", a, b)
	}
	if len(a) != 36 {
		t.Fatalf("unexpected uuid format %q", a)
	}
}

func TestNewTorrentUUIDHashCaseInsensitive(t *testing.T) {
	added := time.Unix(1700000000, 0)
	lower := NewTorrentUUID(sampleHash, added)
	upper := NewTorrentUUID("  D2354010A3CA4ADE5B7427BB093A62A3899FF381 ", added)
	if lower != upper {
		t.Fatalf("expected case-insensitive identity, got %s and %s", lower, upper)
	}
}

func TestNewTorrentUUIDDistinct(t *testing.T) {
	added := time.Unix(1700000000, 0)
	base := NewTorrentUUID(sampleHash, added)
	if NewTorrentUUID(sampleHash, added.Add(time.Second)) == base {
		t.Fatal("different added date must give a different uuid")
	}
	if NewTorrentUUID("e2354010a3ca4ade5b7427bb093a62a3899ff381", added) == base {
		t.Fatal("different hash must give a different uuid")
	}
}

func TestTorrentUUIDIgnoresNumericID(t *testing.T) {
	added := time.Unix(1700000000, 0)
	a := Torrent{ID: 1, Hash: sampleHash, AddedAt: added}
	b := Torrent{ID: 99, Hash: sampleHash, AddedAt: added}
	if a.UUID() != b.UUID() {
		t.Fatal("daemon id reassignment must not change the uuid")
	}
}

func TestNormalizeInfoHash(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{sampleHash, sampleHash},
		{"D2354010A3CA4ADE5B7427BB093A62A3899FF381", sampleHash},
		{" NotAHash ", "notahash"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeInfoHash(tt.in); got != tt.want {
			t.Errorf("NormalizeInfoHash(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
