package strands

import (
	"bufio"
	"fmt"
	"io"

	"github.com/fwojciec/relay"
)

// maxRecordSize caps one record line. Image-bearing records carry base64
// payloads, so the default bufio limit is far too small.
const maxRecordSize = 16 << 20

// Reader is a relay.Source over newline-delimited JSON records from an
// io.Reader. One line is one record; blank lines and ignored records are
// skipped transparently.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	closed  bool
}

// Interface compliance check.
var _ relay.Source = (*Reader)(nil)

// NewReader creates a Reader over r. If r is an io.Closer, Close closes it.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), maxRecordSize)
	closer, _ := r.(io.Closer)
	return &Reader{scanner: scanner, closer: closer}
}

// Next returns the next decoded raw event. It returns io.EOF when the input
// is exhausted.
func (r *Reader) Next() (relay.RawEvent, error) {
	if r.closed {
		return nil, relay.ErrSourceClosed
	}
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := Decode(line)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			continue
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("strands: %w", err)
	}
	return nil, io.EOF
}

// Close marks the reader closed and closes the underlying reader when it
// supports closing.
func (r *Reader) Close() error {
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
