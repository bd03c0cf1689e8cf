package multipart

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vitrine-app/archive-ingest/internal/domain"
)

// State identifies the parser's position in the multipart stream.
// Transitions are linear (preamble -> headers -> body -> done) except for the
// rewind from headers back to preamble when a field carries no file.
type State int

const (
	// StatePreamble scans for the first boundary of the next part.
	StatePreamble State = iota

	// StateHeaders accumulates a part's header block.
	StateHeaders

	// StateBody streams the file field's payload to the sink.
	StateBody

	// StateDone is terminal; further input is ignored.
	StateDone
)

// maxHeaderBytes caps the accumulated header block of a single part.
// Part headers are a handful of short lines; anything larger is hostile.
const maxHeaderBytes = 16 * 1024

// OpenSinkFunc opens the output sink for the file field found in the stream.
// It receives the raw filename from the Content-Disposition header and
// returns the open sink plus the (sanitized) filename the result reports.
type OpenSinkFunc func(rawFilename string) (sink *os.File, filename string, err error)

// Result describes a completed parse.
type Result struct {
	// Path is the temporary file holding the extracted payload.
	Path string

	// Filename is the sanitized filename reported by OpenSinkFunc.
	Filename string

	// Size is the number of payload bytes written to Path.
	Size int64
}

// Parser extracts the first file-bearing field from a multipart byte stream.
//
// Feed the request body in increments of any size; boundaries split across
// increments are handled by retaining a small holdback window. Memory usage
// is bounded by one increment plus the holdback, regardless of file size.
//
// At most one output file is ever created. On any failure path the partial
// output is removed and the sink closed.
type Parser struct {
	boundary []byte // "--<token>", opens a part
	marker   []byte // "\r\n--<token>", ends a part body
	limit    int64  // total request-byte ceiling, 0 = unlimited
	open     OpenSinkFunc

	state    State
	buf      []byte
	total    int64
	filename string
	sink     *os.File
	sinkPath string
	written  int64
	err      error
}

// NewParser creates a parser for the given boundary token.
// limit caps the total number of bytes fed; 0 disables the cap.
func NewParser(boundaryToken string, limit int64, open OpenSinkFunc) (*Parser, error) {
	if boundaryToken == "" {
		return nil, domain.ErrMissingBoundary
	}
	return &Parser{
		boundary: []byte("--" + boundaryToken),
		marker:   []byte("\r\n--" + boundaryToken),
		limit:    limit,
		open:     open,
	}, nil
}

// ParseBoundary extracts the boundary token from a Content-Type header value.
// Returns domain.ErrMissingBoundary if the declaration is not multipart
// form data or carries no boundary parameter. Rejection happens before any
// body byte is read.
func ParseBoundary(contentType string) (string, error) {
	mediaType, params, ok := splitHeaderValue(contentType)
	if !ok || !strings.EqualFold(mediaType, "multipart/form-data") {
		return "", domain.ErrMissingBoundary
	}
	token, ok := params["boundary"]
	if !ok || token == "" {
		return "", domain.ErrMissingBoundary
	}
	return token, nil
}

// State returns the parser's current state. Exposed for tests.
func (p *Parser) State() State {
	return p.state
}

// Feed processes one increment of the request body.
// Returns domain.ErrUploadTooLarge once the running total exceeds the
// ceiling; the partial output is already removed when that happens. Any
// error is sticky: subsequent calls return it unchanged.
func (p *Parser) Feed(data []byte) error {
	if p.err != nil {
		return p.err
	}
	if p.state == StateDone {
		return nil
	}

	// The running total counts every byte fed, before any processing.
	p.total += int64(len(data))
	if p.limit > 0 && p.total > p.limit {
		return p.fail(domain.ErrUploadTooLarge)
	}

	p.buf = append(p.buf, data...)
	return p.advance()
}

// Finish signals end of stream and returns the parse result.
// In StateBody a final boundary search is performed over the remaining
// buffer, covering the terminal "--<boundary>--" form; whatever precedes the
// boundary (or the whole remainder if none is found) is written as a
// best-effort completion. End of stream in any earlier state fails.
func (p *Parser) Finish() (*Result, error) {
	if p.err != nil {
		return nil, p.err
	}

	switch p.state {
	case StateDone:
		return p.result(), nil

	case StateBody:
		rest := p.buf
		if idx := Scan(rest, p.marker); idx >= 0 {
			rest = rest[:idx]
		}
		if err := p.writeSink(rest); err != nil {
			return nil, p.fail(err)
		}
		p.buf = nil
		if err := p.closeSink(); err != nil {
			return nil, p.fail(err)
		}
		p.state = StateDone
		return p.result(), nil

	default:
		return nil, p.fail(domain.ErrIncompleteBody)
	}
}

// Abort discards the parse and removes any partial output.
// Called when the client drops the connection mid-upload.
func (p *Parser) Abort() {
	if p.err == nil {
		p.err = domain.ErrIncompleteBody
	}
	p.cleanup()
	p.state = StateDone
}

// advance runs state transitions until no further progress can be made
// with the bytes accumulated so far.
func (p *Parser) advance() error {
	for {
		var progressed bool
		var err error

		switch p.state {
		case StatePreamble:
			progressed, err = p.stepPreamble()
		case StateHeaders:
			progressed, err = p.stepHeaders()
		case StateBody:
			progressed, err = p.stepBody()
		case StateDone:
			p.buf = nil
			return nil
		}

		if err != nil {
			return p.fail(err)
		}
		if !progressed {
			return nil
		}
	}
}

// stepPreamble scans for the opening boundary of the next part.
func (p *Parser) stepPreamble() (bool, error) {
	idx := Scan(p.buf, p.boundary)
	if idx < 0 {
		// Keep just enough tail to catch a boundary split across reads.
		keep := len(p.boundary) + 2
		if len(p.buf) > keep {
			p.buf = append(p.buf[:0], p.buf[len(p.buf)-keep:]...)
		}
		return false, nil
	}

	after := p.buf[idx+len(p.boundary):]
	if len(after) < 2 {
		// Not enough bytes to classify what follows the boundary.
		p.buf = append(p.buf[:0], p.buf[idx:]...)
		return false, nil
	}

	switch {
	case HasPrefix(after, []byte("\r\n")):
		p.buf = append(p.buf[:0], after[2:]...)
		p.state = StateHeaders
		return true, nil
	case HasPrefix(after, []byte("--")):
		// Terminal boundary with no file field seen.
		return false, domain.ErrNoFileField
	default:
		return false, domain.ErrMalformedBody
	}
}

// stepHeaders accumulates the part's header block and decides whether this
// field carries a file.
func (p *Parser) stepHeaders() (bool, error) {
	idx := Scan(p.buf, []byte("\r\n\r\n"))
	if idx < 0 {
		if len(p.buf) > maxHeaderBytes {
			return false, domain.ErrHeadersTooLarge
		}
		return false, nil
	}

	headerBlock := string(p.buf[:idx])
	p.buf = append(p.buf[:0], p.buf[idx+4:]...)

	rawName, ok := dispositionFilename(headerBlock)
	if !ok {
		// Plain form field: discard it by rewinding to the boundary scan.
		p.state = StatePreamble
		return true, nil
	}

	sink, filename, err := p.open(rawName)
	if err != nil {
		return false, fmt.Errorf("open upload sink: %w", err)
	}
	p.sink = sink
	p.sinkPath = sink.Name()
	p.filename = filename
	p.state = StateBody
	return true, nil
}

// stepBody streams payload bytes to the sink, withholding the holdback
// window so a boundary split across reads is never written out.
func (p *Parser) stepBody() (bool, error) {
	idx := Scan(p.buf, p.marker)
	if idx >= 0 {
		if err := p.writeSink(p.buf[:idx]); err != nil {
			return false, err
		}
		p.buf = nil
		if err := p.closeSink(); err != nil {
			return false, err
		}
		p.state = StateDone
		return true, nil
	}

	holdback := len(p.marker) + 2
	if len(p.buf) > holdback {
		flush := len(p.buf) - holdback
		if err := p.writeSink(p.buf[:flush]); err != nil {
			return false, err
		}
		p.buf = append(p.buf[:0], p.buf[flush:]...)
	}
	return false, nil
}

// writeSink writes payload bytes to the output sink.
func (p *Parser) writeSink(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := p.sink.Write(data)
	p.written += int64(n)
	if err != nil {
		return fmt.Errorf("write upload sink: %w", err)
	}
	return nil
}

// closeSink flushes and closes the output sink, keeping the file.
func (p *Parser) closeSink() error {
	if p.sink == nil {
		return nil
	}
	err := p.sink.Close()
	p.sink = nil
	if err != nil {
		return fmt.Errorf("close upload sink: %w", err)
	}
	return nil
}

// fail records err, removes any partial output, and returns err.
func (p *Parser) fail(err error) error {
	p.err = err
	p.cleanup()
	p.state = StateDone
	return err
}

// cleanup closes the sink and removes the partial output file.
func (p *Parser) cleanup() {
	if p.sink != nil {
		_ = p.sink.Close()
		p.sink = nil
	}
	if p.sinkPath != "" {
		_ = os.Remove(p.sinkPath)
		p.sinkPath = ""
	}
	p.buf = nil
}

// result builds the parse result for a finished stream.
func (p *Parser) result() *Result {
	return &Result{
		Path:     p.sinkPath,
		Filename: p.filename,
		Size:     p.written,
	}
}

// ReadFrom feeds the parser from r in fixed-size increments until EOF, then
// finalizes the parse. This is the path HTTP handlers use: the request body
// is never read into memory as a whole.
func (p *Parser) ReadFrom(r io.Reader) (*Result, error) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := p.Feed(buf[:n]); ferr != nil {
				return nil, ferr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			p.Abort()
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}
	return p.Finish()
}

// =============================================================================
// Header parsing
// =============================================================================

// splitHeaderValue splits "type; k=v; k2=\"v2\"" into its media type and a
// lowercase-keyed parameter map.
func splitHeaderValue(value string) (string, map[string]string, bool) {
	if value == "" {
		return "", nil, false
	}
	parts := strings.Split(value, ";")
	mediaType := strings.TrimSpace(parts[0])
	params := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])
		if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
			val = val[1 : len(val)-1]
		}
		params[key] = val
	}
	return mediaType, params, true
}

// dispositionFilename extracts the filename token from a part's header
// block. Returns false when the field carries no file (plain form text).
func dispositionFilename(headerBlock string) (string, bool) {
	for _, line := range strings.Split(headerBlock, "\r\n") {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(line[:colon]), "Content-Disposition") {
			continue
		}
		_, params, ok := splitHeaderValue(line[colon+1:])
		if !ok {
			return "", false
		}
		name, present := params["filename"]
		return name, present
	}
	return "", false
}
