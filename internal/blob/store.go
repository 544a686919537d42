package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrNotFound is returned when no blob exists for a key.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidKey is returned for keys that could escape the store
	// directory. Checked before any filesystem access.
	ErrInvalidKey = errors.New("invalid object key")
	// ErrEmptyPayload is returned when a zero-length upload is stored.
	ErrEmptyPayload = errors.New("empty payload")
)

// Preferred extensions for the audio content types recorders produce.
// Safari records audio/mp4, everything else ogg/webm opus.
var audioExtByType = map[string]string{
	"audio/ogg; codecs=opus":  "ogg",
	"audio/ogg":               "ogg",
	"audio/webm; codecs=opus": "webm",
	"audio/webm":              "webm",
	"audio/mp4; codecs=opus":  "m4a",
	"audio/mp4":               "m4a",
	"audio/m4a":               "m4a",
}

var audioTypeByExt = map[string]string{
	"ogg":  "audio/ogg",
	"webm": "audio/webm",
	"m4a":  "audio/mp4",
}

// Store keeps content-addressed blobs on disk: object key = sha256 of the
// bytes plus an extension, which doubles as the filename. Voice notes and
// generic files live in separate directories.
type Store struct {
	audioDir string
	filesDir string
}

// NewStore creates the audio and files directories under dataDir.
func NewStore(dataDir string) (*Store, error) {
	audioDir := filepath.Join(dataDir, "audio")
	filesDir := filepath.Join(dataDir, "files")
	for _, dir := range []string{audioDir, filesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blob dir: %w", err)
		}
	}
	return &Store{audioDir: audioDir, filesDir: filesDir}, nil
}

// ValidateKey rejects keys containing path separators or "..". This is a
// security boundary: keys come straight from URLs.
func ValidateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" ||
		strings.Contains(key, "/") ||
		strings.Contains(key, "\\") ||
		strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}

// PutAudio stores a voice recording and returns its object key. Identical
// bytes always produce the identical key; the write is skipped when the file
// already exists.
func (s *Store) PutAudio(data []byte, declaredType string) (string, error) {
	return s.put(s.audioDir, data, audioExt(declaredType))
}

// PutBlob stores a generic upload (image, video, document) and returns its
// object key.
func (s *Store) PutBlob(data []byte, declaredType, filename string) (string, error) {
	return s.put(s.filesDir, data, blobExt(data, declaredType, filename))
}

func (s *Store) put(dir string, data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}

	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:]) + "." + ext

	dest := filepath.Join(dir, key)
	if _, err := os.Stat(dest); err == nil {
		return key, nil // identical bytes already stored
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat blob: %w", err)
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return key, nil
}

// OpenAudio opens a stored voice recording and reports its content type.
func (s *Store) OpenAudio(key string) (*os.File, string, error) {
	f, err := s.open(s.audioDir, key)
	if err != nil {
		return nil, "", err
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(key)), ".")
	ct, ok := audioTypeByExt[ext]
	if !ok {
		ct = "audio/webm"
	}
	return f, ct, nil
}

// OpenBlob opens a stored generic blob and reports its content type.
func (s *Store) OpenBlob(key string) (*os.File, string, error) {
	f, err := s.open(s.filesDir, key)
	if err != nil {
		return nil, "", err
	}

	ct := mime.TypeByExtension(filepath.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, ct, nil
}

func (s *Store) open(dir, key string) (*os.File, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Classify maps a declared MIME type to the content kind used on the
// timeline: image, video, or file.
func Classify(declaredType string) string {
	ct := strings.ToLower(strings.TrimSpace(declaredType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return "image"
	case strings.HasPrefix(ct, "video/"):
		return "video"
	default:
		return "file"
	}
}

// audioExt picks the extension for a recorded voice note. Unknown audio
// types fall back to webm, the most common recorder output.
func audioExt(declaredType string) string {
	ct := strings.ToLower(strings.TrimSpace(declaredType))
	if ext, ok := audioExtByType[ct]; ok {
		return ext
	}
	if strings.HasPrefix(ct, "audio/") {
		switch {
		case strings.Contains(ct, "webm"):
			return "webm"
		case strings.Contains(ct, "ogg"):
			return "ogg"
		case strings.Contains(ct, "mp4"), strings.Contains(ct, "m4a"):
			return "m4a"
		}
	}
	return "webm"
}

// blobExt picks an extension for a generic upload: declared MIME type first,
// then content sniffing, then the original filename, then a generic binary
// extension.
func blobExt(data []byte, declaredType, filename string) string {
	if exts, err := mime.ExtensionsByType(declaredType); err == nil && len(exts) > 0 {
		if ext := normalizeExt(exts[0]); ext != "" {
			return ext
		}
	}

	if ext := normalizeExt(mimetype.Detect(data).Extension()); ext != "" && ext != "bin" {
		return ext
	}

	if ext := normalizeExt(filepath.Ext(filename)); ext != "" {
		return ext
	}

	return "bin"
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "jpe" || ext == "jpeg" {
		ext = "jpg"
	}
	return ext
}
