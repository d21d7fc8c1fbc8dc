// Package mimetype validates that a downloaded export's bytes match the
// content type expected for its format, catching the catalog handing back an
// HTML error page where a zip was promised.
package mimetype

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rakyll/magicmime"
)

// SniffThreshold is how many leading bytes are inspected.
const SniffThreshold = 1024

// formatPatterns maps export formats to the mime pattern their content must
// match. A pattern is a comma-separated list of globs; a leading "!" negates
// a glob. Formats not listed here are not validated.
var formatPatterns = map[string]string{
	"shapefile": "application/zip",
	"kml":       "application/*xml*,text/xml",
	"csv":       "text/*,!text/html",
	"geojson":   "application/json,text/plain",
}

// PatternFor returns the expected mime pattern for an export format, or ""
// when the format has no registered expectation.
func PatternFor(format string) string {
	return formatPatterns[format]
}

// Validator checks a stream's leading bytes against a mime pattern using a
// libmagic decoder. It is reused across downloads via Reset.
type Validator struct {
	buffer  *bytes.Buffer
	decoder *magicmime.Decoder
	checks  []check
}

type check struct {
	pattern string
	negate  bool
}

// ErrMismatch reports content that failed its format's mime expectation.
type ErrMismatch struct {
	Expected string
	Found    string
}

func (e ErrMismatch) Error() string {
	return fmt.Sprintf("expected content type matching (%s), found (%s)", e.Expected, e.Found)
}

// New constructs a Validator. It holds a libmagic decoder and must be
// released with Close.
func New() (*Validator, error) {
	decoder, err := magicmime.NewDecoder(magicmime.MAGIC_MIME_TYPE)
	if err != nil {
		return nil, err
	}

	// Buffer's internal slice grows to 2*size + MinRead during ReadFrom, so
	// allocate that once up front.
	buf := bytes.NewBuffer(make([]byte, 0, 2*SniffThreshold+bytes.MinRead))
	return &Validator{decoder: decoder, buffer: buf}, nil
}

// Reset prepares the validator for a new stream with the given pattern.
func (v *Validator) Reset(pattern string) {
	v.checks = nil
	for _, c := range strings.Split(pattern, ",") {
		c = strings.TrimSpace(c)
		if strings.HasPrefix(c, "!") {
			v.checks = append(v.checks, check{pattern: c[1:], negate: true})
			continue
		}
		v.checks = append(v.checks, check{pattern: c})
	}
	v.buffer.Reset()
}

// Read consumes up to SniffThreshold bytes from r and checks their detected
// mime type against the current pattern. It returns how many bytes it
// consumed so callers tallying throughput can account for them. Read errors
// from r are returned verbatim.
func (v *Validator) Read(r io.Reader) (int64, error) {
	n, err := v.buffer.ReadFrom(io.LimitReader(r, SniffThreshold))
	if err != nil {
		return n, err
	}
	return n, v.CheckBuffer(v.buffer.Bytes())
}

// CheckBuffer checks p's detected mime type against the current pattern.
func (v *Validator) CheckBuffer(p []byte) error {
	// libmagic panics on empty input; it reports empty buffers as
	// application/x-empty, so do the same here.
	mime := "application/x-empty"
	if len(p) > 0 {
		var err error
		mime, err = v.decoder.TypeByBuffer(p)
		if err != nil {
			return err
		}
	}

	var matched bool
	var expected []string
	for _, c := range v.checks {
		if c.negate {
			if ok, _ := filepath.Match(c.pattern, mime); ok {
				return ErrMismatch{Expected: "!" + c.pattern, Found: mime}
			}
			continue
		}
		expected = append(expected, c.pattern)
		if ok, _ := filepath.Match(c.pattern, mime); ok {
			matched = true
		}
	}
	if len(expected) > 0 && !matched {
		return ErrMismatch{Expected: strings.Join(expected, ","), Found: mime}
	}
	return nil
}

// Close releases the libmagic decoder.
func (v *Validator) Close() {
	v.decoder.Close()
}
