package mimetype

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func TestPatternFor(t *testing.T) {
	if PatternFor("shapefile") != "application/zip" {
		t.Errorf("shapefile pattern = %q", PatternFor("shapefile"))
	}
	if PatternFor("some-future-format") != "" {
		t.Error("unknown formats must have no pattern")
	}
}

// zipPayload builds a small but structurally complete zip archive; libmagic
// will not classify a bare local-header signature as application/zip.
func zipPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("hydrants/hydrants.shp")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("shapefile bytes")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCheckBuffer(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Skipf("libmagic unavailable: %v", err)
	}
	defer v.Close()

	archive := zipPayload(t)
	html := []byte("<!DOCTYPE html><html><body>Not Found</body></html>")

	cases := []struct {
		pattern string
		payload []byte
		wantErr bool
	}{
		{"application/zip", archive, false},
		{"application/zip", html, true},
		{"text/*,!text/html", html, true},
		{"text/*,!text/html", []byte("id,name\n1,hydrant\n"), false},
	}

	for _, tc := range cases {
		v.Reset(tc.pattern)
		_, err := v.Read(bytes.NewReader(tc.payload))
		if (err != nil) != tc.wantErr {
			t.Errorf("pattern %q payload %q: err = %v, wantErr %v",
				tc.pattern, truncate(tc.payload), err, tc.wantErr)
		}
		if err != nil {
			if _, ok := err.(ErrMismatch); !ok {
				t.Errorf("pattern %q: error type %T, want ErrMismatch", tc.pattern, err)
			}
		}
	}
}

func TestReadReportsConsumedBytes(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Skipf("libmagic unavailable: %v", err)
	}
	defer v.Close()

	payload := []byte("id,name\n1,hydrant\n")
	v.Reset("text/*")
	n, err := v.Read(bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(payload)) {
		t.Errorf("Read consumed %d bytes, want %d", n, len(payload))
	}
}

func truncate(p []byte) string {
	s := string(p)
	if len(s) > 16 {
		s = s[:16] + "..."
	}
	return strings.TrimSpace(s)
}
