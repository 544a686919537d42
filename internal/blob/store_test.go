package blob

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s, dir
}

func TestPutAudioIsIdempotent(t *testing.T) {
	s, dir := newTestStore(t)
	data := []byte("opus opus opus")

	key, err := s.PutAudio(data, "audio/webm")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(key, ".webm") {
		t.Fatalf("unexpected key: %q", key)
	}

	// Tamper with the stored file; a second put of the same bytes must not
	// rewrite it.
	dest := filepath.Join(dir, "audio", key)
	if err := os.WriteFile(dest, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	again, err := s.PutAudio(data, "audio/webm")
	if err != nil {
		t.Fatalf("put again: %v", err)
	}
	if again != key {
		t.Fatalf("identical bytes produced different keys: %q vs %q", key, again)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "tampered" {
		t.Fatal("second put rewrote an existing blob")
	}
}

func TestPutRejectsEmptyPayload(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.PutAudio(nil, "audio/ogg"); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if _, err := s.PutBlob([]byte{}, "image/png", "x.png"); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestAudioExtensionSelection(t *testing.T) {
	s, _ := newTestStore(t)

	tests := []struct {
		declared string
		wantExt  string
	}{
		{"audio/ogg; codecs=opus", ".ogg"},
		{"audio/ogg", ".ogg"},
		{"audio/webm; codecs=opus", ".webm"},
		{"audio/mp4", ".m4a"},
		{"audio/x-weird-codec", ".webm"},
		{"", ".webm"},
	}

	for _, tt := range tests {
		key, err := s.PutAudio([]byte("payload-"+tt.declared), tt.declared)
		if err != nil {
			t.Fatalf("put %q: %v", tt.declared, err)
		}
		if !strings.HasSuffix(key, tt.wantExt) {
			t.Errorf("declared %q: expected extension %s, got key %q", tt.declared, tt.wantExt, key)
		}
	}
}

func TestBlobExtensionFallbacks(t *testing.T) {
	s, _ := newTestStore(t)

	pngMagic := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	opaque := []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE}

	// Declared MIME wins, normalized to a canonical extension.
	key, err := s.PutBlob([]byte("jpeg bytes"), "image/jpeg", "photo.unknown")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Fatalf("expected .jpg from declared type, got %q", key)
	}

	// No usable declared type: sniff the content.
	key, err = s.PutBlob(pngMagic, "", "whatever")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Fatalf("expected sniffed .png, got %q", key)
	}

	// Unrecognizable content: fall back to the original filename.
	key, err = s.PutBlob(opaque, "", "report.pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("expected filename extension, got %q", key)
	}

	// Nothing to go on at all.
	key, err = s.PutBlob(opaque, "", "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(key, ".bin") {
		t.Fatalf("expected generic .bin, got %q", key)
	}
}

func TestValidateKeyRejectsTraversal(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"../etc/passwd",
		"a/b.ogg",
		`a\b.ogg`,
		"foo..bar.webm",
	}
	for _, key := range bad {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}

	if err := ValidateKey("0a1b2c.webm"); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
}

func TestOpenRejectsTraversalBeforeFilesystem(t *testing.T) {
	s, _ := newTestStore(t)

	if _, _, err := s.OpenAudio("../secret"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, _, err := s.OpenBlob("..\\secret"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	data := []byte("voice note")

	key, err := s.PutAudio(data, "audio/ogg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	f, contentType, err := s.OpenAudio(key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if contentType != "audio/ogg" {
		t.Fatalf("unexpected content type %q", contentType)
	}

	if _, _, err := s.OpenAudio("deadbeef.ogg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		declared string
		want     string
	}{
		{"image/png", "image"},
		{"IMAGE/JPEG", "image"},
		{"video/mp4", "video"},
		{"application/pdf", "file"},
		{"", "file"},
	}
	for _, tt := range tests {
		if got := Classify(tt.declared); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.declared, got, tt.want)
		}
	}
}
