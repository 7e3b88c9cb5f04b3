package core

// streaming.go provides the reader wrappers applied to every upload stream:
//
//   - BOMSkippingReader: removes a UTF-8 BOM (0xEF 0xBB 0xBF) from Windows files
//   - CountingReader: tracks bytes consumed for job progress
//
// Invalid UTF-8 is deliberately left in place so the parser can report it
// against the row that contains it.

import (
	"io"
	"sync/atomic"
)

var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte // bytes read during BOM detection that are not a BOM
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. The first call peeks three bytes for the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !r.checked {
		r.checked = true

		var buf [3]byte
		n, err := io.ReadFull(r.reader, buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n == 3 && buf == utf8BOM {
			n = 0
		}
		r.pending = append(r.pending, buf[:n]...)
		if err != nil && len(r.pending) == 0 {
			return 0, err
		}
		if err == io.EOF {
			copied := copy(p, r.pending)
			r.pending = r.pending[copied:]
			if len(r.pending) == 0 {
				return copied, io.EOF
			}
			return copied, nil
		}
		if err != nil {
			return 0, err
		}
	}

	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read.
// BytesRead may be called from other goroutines while reads are in flight.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 when unknown
}

// NewCountingReader creates a counting reader with an optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(min(r.BytesRead()*100/r.Total, 100))
}
