package http

import (
	"io"
	"strconv"
)

// ChunkedWriter frames every Write as one chunk of a chunked body. Close
// writes the terminating zero-length chunk; it does not close the
// underlying writer.
type ChunkedWriter struct {
	w      io.Writer
	header []byte
	closed bool
}

// NewChunkedWriter returns a writer that chunk-encodes onto w.
func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w, header: make([]byte, 0, 20)}
}

func (cw *ChunkedWriter) Write(p []byte) (int, error) {
	if cw.closed {
		return 0, io.ErrClosedPipe
	}
	// An empty chunk would terminate the body.
	if len(p) == 0 {
		return 0, nil
	}

	cw.header = strconv.AppendInt(cw.header[:0], int64(len(p)), 16)
	cw.header = append(cw.header, '\r', '\n')
	if _, err := cw.w.Write(cw.header); err != nil {
		return 0, err
	}
	n, err := cw.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(cw.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// Close writes the last-chunk and the empty trailer section.
func (cw *ChunkedWriter) Close() error {
	if cw.closed {
		return nil
	}
	cw.closed = true
	_, err := io.WriteString(cw.w, "0\r\n\r\n")
	return err
}

// countingWriter enforces a declared body length on a streamed body.
type countingWriter struct {
	w     io.Writer
	limit int64
	n     int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.n+int64(len(p)) > cw.limit {
		return 0, ErrBodyLengthMismatch
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
