package http

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/rs/zerolog"

	"github.com/blackroom/relay/internal/blob"
	"github.com/blackroom/relay/internal/config"
	"github.com/blackroom/relay/internal/core"
	"github.com/blackroom/relay/internal/store/sqlite"
)

// newTestServer wires the full stack (in-memory store, temp blob dirs) and
// serves it over httptest.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	blobs, err := blob.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	hub := core.NewHub(&logger)
	resolver := core.NewIdentityResolver(st)
	ingestor := core.NewIngestor(st, resolver, hub, &logger)

	server := NewServer(hub, ingestor, resolver, st, blobs, config.Default(), &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		st.Close()
	})

	return ts
}

// multipartUpload builds a multipart body with a single file part plus form
// fields, letting tests control the part's declared content type.
func multipartUpload(t *testing.T, filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	return &body, writer.FormDataContentType()
}
