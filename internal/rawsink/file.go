package rawsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

// FileSink writes each response to its own JSON file under a
// configured directory: <api_type>-p<N>.json for list pages and
// <api_type>-r<request_id>.json for details.
type FileSink struct {
	dir    string
	indent int
	enc    *encoding.Encoder
}

// NewFileSink creates a file-mode sink. indent < 0 writes compact
// JSON; encodingName follows JSON_ENCODING (IANA name, UTF-8 default).
func NewFileSink(dir string, indent int, encodingName string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create raw data directory: %w", err)
	}
	return &FileSink{dir: dir, indent: indent, enc: lookupEncoder(encodingName)}, nil
}

func lookupEncoder(name string) *encoding.Encoder {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil
	}
	e, err := ianaindex.IANA.Encoding(name)
	if err != nil || e == nil {
		return nil
	}
	return e.NewEncoder()
}

func (s *FileSink) SavePage(_ context.Context, apiType jobcan.APIType, pageNo int, body []byte) error {
	name := fmt.Sprintf("%s-p%d.json", apiType, pageNo)
	return s.write(name, body)
}

func (s *FileSink) SaveDetail(_ context.Context, _ int, requestID string, body []byte) error {
	name := fmt.Sprintf("%s-r%s.json", jobcan.RequestDetail, requestID)
	return s.write(name, body)
}

func (s *FileSink) write(name string, body []byte) error {
	out := s.render(body)
	if s.enc != nil {
		if encoded, err := s.enc.Bytes(out); err == nil {
			out = encoded
		}
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write raw response %s: %w", name, err)
	}
	return nil
}

// render re-indents the body per JSON_INDENT. Bodies that fail to
// re-indent (non-JSON error pages) are written verbatim.
func (s *FileSink) render(body []byte) []byte {
	if s.indent < 0 {
		return body
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", strings.Repeat(" ", s.indent)); err != nil {
		return body
	}
	return buf.Bytes()
}

func (s *FileSink) Close() error { return nil }
