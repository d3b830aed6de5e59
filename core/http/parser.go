package http

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// State is the position of a Parser within one request.
type State uint8

const (
	StateRequestLine State = iota
	StateHeaders
	StateBody
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateRequestLine:
		return "request-line"
	case StateHeaders:
		return "headers"
	case StateBody:
		return "body"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	}
	return "unknown"
}

type bodyMode uint8

const (
	bodyNone bodyMode = iota
	bodyFixed
	bodyChunked
)

type chunkState uint8

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataEnd
	chunkTrailer
)

// maxChunkLine bounds a chunk-size line including extensions.
const maxChunkLine = 4096

// Limits bounds what a Parser accepts.
type Limits struct {
	MaxHeaderBytes int   // request line, headers and trailers together
	MaxHeaderCount int   // header and trailer fields together
	MaxBodyBytes   int64 // declared or de-chunked body size

	// PassUnknownMethods lets methods other than the seven known ones
	// through to the router instead of failing with NotImplemented.
	PassUnknownMethods bool

	// BodylessMethods may not carry a body. Content-Length: 0 is accepted.
	BodylessMethods []string

	KeepTrailers bool
}

// DefaultLimits mirrors the defaults of config.Default.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes:  16 << 10,
		MaxHeaderCount:  100,
		MaxBodyBytes:    1 << 20,
		BodylessMethods: []string{MethodGet, MethodHead, MethodDelete},
	}
}

// Parser is an incremental HTTP/1.x request decoder. It performs no I/O:
// the caller feeds it bytes and keeps whatever it did not consume.
type Parser struct {
	limits Limits

	state State
	err   *ProtocolError
	req   *Request

	headerBytes int
	headerCount int
	blankBytes  int // empty lines skipped before the request line

	mode      bodyMode
	remaining int64
	bodyLen   int64
	chunk     chunkState
}

// NewParser returns a parser positioned at the start of a request.
func NewParser(limits Limits) *Parser {
	return &Parser{limits: limits}
}

// Reset discards all state of the previous request. Nothing interpreted
// from it survives; only the caller's unconsumed bytes carry over.
func (p *Parser) Reset() {
	*p = Parser{limits: p.limits}
}

// State returns the current state.
func (p *Parser) State() State {
	return p.state
}

// Started reports whether any byte of the current request was consumed.
func (p *Parser) Started() bool {
	return p.state != StateRequestLine || p.headerBytes > 0
}

// Request returns the parsed request once State is StateComplete.
func (p *Parser) Request() *Request {
	if p.state != StateComplete {
		return nil
	}
	return p.req
}

// ExpectsContinue reports whether the headers are complete, the body is
// still pending and the client waits for "100 Continue" before sending it.
func (p *Parser) ExpectsContinue() bool {
	return p.state == StateBody && p.req.Version == HTTP11 &&
		httpguts.HeaderValuesContainsToken(p.req.Header.Values("Expect"), "100-continue")
}

// Parse consumes as much of data as it can and reports how many bytes were
// used. Incomplete lines are left unconsumed; the caller must present them
// again with more bytes appended. Parsing stops at the end of a request so
// pipelined bytes remain with the caller. After an error the parser stays in
// StateError.
func (p *Parser) Parse(data []byte) (int, error) {
	if p.state == StateError {
		return 0, p.err
	}

	n := 0
	for p.state != StateComplete {
		var (
			m   int
			err *ProtocolError
		)
		switch p.state {
		case StateRequestLine:
			m, err = p.parseRequestLine(data[n:])
		case StateHeaders:
			m, err = p.parseHeaderLine(data[n:])
		case StateBody:
			m, err = p.parseBody(data[n:])
		}
		n += m
		if err != nil {
			p.state = StateError
			p.err = err
			return n, err
		}
		if m == 0 {
			break
		}
	}
	return n, nil
}

// nextLine returns the next line without its terminator and the number of
// bytes it spans. ok is false when no line feed has arrived yet.
func nextLine(data []byte) (line []byte, consumed int, ok bool) {
	lf := bytes.IndexByte(data, '\n')
	if lf < 0 {
		return nil, 0, false
	}
	line = data[:lf]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, lf + 1, true
}

// headerLine reads one line that counts against the header budget.
func (p *Parser) headerLine(data []byte) ([]byte, int, *ProtocolError) {
	line, consumed, ok := nextLine(data)
	if !ok {
		if p.headerBytes+len(data) > p.limits.MaxHeaderBytes {
			return nil, 0, protoErr(HeadersTooLarge, "header section exceeds "+strconv.Itoa(p.limits.MaxHeaderBytes)+" bytes")
		}
		return nil, 0, nil
	}
	p.headerBytes += consumed
	if p.headerBytes > p.limits.MaxHeaderBytes {
		return nil, 0, protoErr(HeadersTooLarge, "header section exceeds "+strconv.Itoa(p.limits.MaxHeaderBytes)+" bytes")
	}
	if bytes.IndexByte(line, '\r') >= 0 {
		return nil, 0, protoErr(BadHeader, "bare CR in line")
	}
	return line, consumed, nil
}

func (p *Parser) parseRequestLine(data []byte) (int, *ProtocolError) {
	line, consumed, err := p.headerLine(data)
	if err != nil {
		if err.Kind == BadHeader {
			err.Kind = BadRequestLine
		}
		return 0, err
	}
	if consumed == 0 {
		return 0, nil
	}
	if len(line) == 0 {
		// Empty lines before a request line are ignored and do not start
		// a request, but they are still bounded.
		p.headerBytes -= consumed
		p.blankBytes += consumed
		if p.blankBytes > p.limits.MaxHeaderBytes {
			return 0, protoErr(BadRequestLine, "too many empty lines before request line")
		}
		return consumed, nil
	}

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return 0, protoErr(BadRequestLine, "missing method")
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 < 0 {
		return 0, protoErr(BadRequestLine, "missing version")
	}
	sp2 += sp1 + 1

	method := line[:sp1]
	target := line[sp1+1 : sp2]
	proto := line[sp2+1:]

	for _, c := range method {
		if !httpguts.IsTokenRune(rune(c)) {
			return 0, protoErr(BadRequestLine, "invalid method")
		}
	}
	if len(target) == 0 {
		return 0, protoErr(BadRequestLine, "empty request target")
	}

	var version Version
	switch string(proto) {
	case "HTTP/1.1":
		version = HTTP11
	case "HTTP/1.0":
		version = HTTP10
	default:
		return 0, protoErr(BadRequestLine, "unsupported version")
	}

	m := string(method)
	if !KnownMethod(m) && !p.limits.PassUnknownMethods {
		return 0, protoErr(NotImplemented, "method "+m)
	}

	rawTarget := string(target)
	path, rawQuery, ok := splitTarget(rawTarget)
	if !ok {
		return 0, protoErr(BadRequestLine, "malformed request target")
	}

	p.req = &Request{
		Method:    m,
		RawTarget: rawTarget,
		Path:      path,
		RawQuery:  rawQuery,
		Version:   version,
	}
	p.state = StateHeaders
	return consumed, nil
}

// parseField validates one "name: value" line.
func (p *Parser) parseField(line []byte) (string, string, *ProtocolError) {
	if line[0] == ' ' || line[0] == '\t' {
		return "", "", protoErr(BadHeader, "obsolete line folding")
	}
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return "", "", protoErr(BadHeader, "missing colon")
	}
	name := string(line[:colon])
	if !httpguts.ValidHeaderFieldName(name) {
		return "", "", protoErr(BadHeader, "invalid field name")
	}
	value := string(bytes.Trim(line[colon+1:], " \t"))
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", "", protoErr(BadHeader, "invalid value for "+name)
	}
	p.headerCount++
	if p.headerCount > p.limits.MaxHeaderCount {
		return "", "", protoErr(HeadersTooLarge, "more than "+strconv.Itoa(p.limits.MaxHeaderCount)+" fields")
	}
	return name, value, nil
}

func (p *Parser) parseHeaderLine(data []byte) (int, *ProtocolError) {
	line, consumed, err := p.headerLine(data)
	if err != nil || consumed == 0 {
		return 0, err
	}
	if len(line) == 0 {
		return consumed, p.finishHeaders()
	}

	name, value, err := p.parseField(line)
	if err != nil {
		return 0, err
	}
	p.req.Header.Add(name, value)
	return consumed, nil
}

// finishHeaders picks the body mode once the header section is complete.
func (p *Parser) finishHeaders() *ProtocolError {
	req := p.req
	if req.Version == HTTP11 && !req.Header.Has("Host") {
		return protoErr(BadHeader, "missing Host")
	}

	te := req.Header.Values("Transfer-Encoding")
	cl := req.Header.Values("Content-Length")
	if len(te) > 0 && len(cl) > 0 {
		return protoErr(BadHeader, "both Content-Length and Transfer-Encoding")
	}

	switch {
	case len(te) > 0:
		if len(te) != 1 || !strings.EqualFold(strings.TrimSpace(te[0]), "chunked") {
			return protoErr(NotImplemented, "transfer coding "+strings.Join(te, ", "))
		}
		p.mode = bodyChunked
	case len(cl) > 0:
		n, err := parseContentLength(cl)
		if err != nil {
			return err
		}
		if n > p.limits.MaxBodyBytes {
			return protoErr(PayloadTooLarge, "Content-Length "+strconv.FormatInt(n, 10))
		}
		if n > 0 {
			p.mode = bodyFixed
			p.remaining = n
		}
	}

	if p.mode != bodyNone && p.bodyless(req.Method) {
		return protoErr(UnexpectedBody, req.Method+" request with a body")
	}

	switch p.mode {
	case bodyNone:
		p.state = StateComplete
	case bodyFixed:
		req.Body = make([]byte, 0, p.remaining)
		p.state = StateBody
	case bodyChunked:
		p.chunk = chunkSize
		p.state = StateBody
	}
	return nil
}

func (p *Parser) bodyless(method string) bool {
	for _, m := range p.limits.BodylessMethods {
		if m == method {
			return true
		}
	}
	return false
}

// parseContentLength accepts repeated fields and comma lists only when all
// values agree.
func parseContentLength(values []string) (int64, *ProtocolError) {
	n := int64(-1)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || strings.TrimLeft(part, "0123456789") != "" {
				return 0, protoErr(BadHeader, "invalid Content-Length")
			}
			x, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return 0, protoErr(BadHeader, "invalid Content-Length")
			}
			if n >= 0 && x != n {
				return 0, protoErr(BadHeader, "conflicting Content-Length values")
			}
			n = x
		}
	}
	return n, nil
}

func (p *Parser) parseBody(data []byte) (int, *ProtocolError) {
	if p.mode == bodyFixed {
		take := p.take(data)
		if p.remaining == 0 {
			p.state = StateComplete
		}
		return take, nil
	}

	switch p.chunk {
	case chunkSize:
		line, consumed, ok := nextLine(data)
		if !ok {
			if len(data) > maxChunkLine {
				return 0, protoErr(ChunkFraming, "chunk size line too long")
			}
			return 0, nil
		}
		size, err := parseChunkSize(line)
		if err != nil {
			return 0, err
		}
		if size == 0 {
			p.chunk = chunkTrailer
			return consumed, nil
		}
		if size > uint64(p.limits.MaxBodyBytes-p.bodyLen) {
			return 0, protoErr(PayloadTooLarge, "chunked body exceeds "+strconv.FormatInt(p.limits.MaxBodyBytes, 10)+" bytes")
		}
		p.remaining = int64(size)
		p.chunk = chunkData
		return consumed, nil

	case chunkData:
		take := p.take(data)
		if p.remaining == 0 {
			p.chunk = chunkDataEnd
		}
		return take, nil

	case chunkDataEnd:
		switch {
		case len(data) == 0:
			return 0, nil
		case data[0] == '\n':
			p.chunk = chunkSize
			return 1, nil
		case data[0] != '\r':
			return 0, protoErr(ChunkFraming, "missing CRLF after chunk data")
		case len(data) < 2:
			return 0, nil
		case data[1] != '\n':
			return 0, protoErr(ChunkFraming, "missing CRLF after chunk data")
		}
		p.chunk = chunkSize
		return 2, nil

	case chunkTrailer:
		line, consumed, err := p.headerLine(data)
		if err != nil || consumed == 0 {
			return 0, err
		}
		if len(line) == 0 {
			p.state = StateComplete
			return consumed, nil
		}
		name, value, err := p.parseField(line)
		if err != nil {
			return 0, err
		}
		if p.limits.KeepTrailers {
			p.req.Trailer.Add(name, value)
		}
		return consumed, nil
	}
	return 0, nil
}

// take appends up to p.remaining bytes of data to the body.
func (p *Parser) take(data []byte) int {
	n := int64(len(data))
	if n > p.remaining {
		n = p.remaining
	}
	p.req.Body = append(p.req.Body, data[:n]...)
	p.remaining -= n
	p.bodyLen += n
	return int(n)
}

func parseChunkSize(line []byte) (uint64, *ProtocolError) {
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	line = bytes.Trim(line, " \t")
	if len(line) == 0 || len(line) > 16 {
		return 0, protoErr(ChunkFraming, "invalid chunk size")
	}
	size, err := strconv.ParseUint(string(line), 16, 64)
	if err != nil {
		return 0, protoErr(ChunkFraming, "invalid chunk size")
	}
	return size, nil
}
