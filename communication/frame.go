package communication

import (
	"bytes"
	"errors"
	"io"
)

const readChunk = 4096

// Reader splits a byte stream into delimiter-terminated messages. Bytes read past the first
// delimiter are kept for the next call.
type Reader struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	err   error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, chunk: make([]byte, readChunk)}
}

// Next returns the next message. A clean EOF with no complete message pending yields ErrClosed;
// any partial message is discarded. Other read errors are returned as is and the buffered bytes
// are kept, so a call interrupted by a deadline can be retried.
func (fr *Reader) Next() ([]byte, error) {
	for {
		if i := bytes.IndexByte(fr.buf, Delimiter); i >= 0 {
			msg := make([]byte, i)
			copy(msg, fr.buf[:i])
			fr.buf = fr.buf[i+1:]
			return msg, nil
		}
		if fr.err != nil {
			err := fr.err
			if !isTemporary(err) {
				fr.buf = nil
			} else {
				fr.err = nil
			}
			return nil, err
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.buf = append(fr.buf, fr.chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			fr.err = err
		}
	}
}

// Buffered reports how many bytes are held for the next message.
func (fr *Reader) Buffered() int {
	return len(fr.buf)
}

// WriteFrame writes msg and the delimiter in a single write.
func WriteFrame(w io.Writer, msg []byte) error {
	frame := make([]byte, len(msg)+1)
	copy(frame, msg)
	frame[len(msg)] = Delimiter
	_, err := w.Write(frame)
	return err
}

type timeout interface {
	Timeout() bool
}

func isTemporary(err error) bool {
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
