package resp

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// Encoder serializes Values to the exact byte-for-byte RESP wire format.
// It is not safe for concurrent use.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder wraps w. If w is not already buffered it is wrapped in a
// bufio.Writer.
func NewEncoder(w io.Writer) *Encoder {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &Encoder{w: bw}
}

// Encode writes v and returns any write error. Callers that need the bytes
// on the wire immediately must call Flush.
func (e *Encoder) Encode(v Value) error {
	switch v.Type {
	case SimpleString:
		return e.writeLine('+', v.Str)
	case Error:
		return e.writeLine('-', v.Str)
	case Integer:
		return e.writeLine(':', []byte(strconv.FormatInt(v.Int, 10)))
	case BulkString:
		return e.encodeBulk(v)
	case Array:
		return e.encodeArray(v)
	default:
		return ErrMalformed
	}
}

// Flush pushes any buffered bytes to the underlying writer.
func (e *Encoder) Flush() error { return e.w.Flush() }

func (e *Encoder) writeLine(tag byte, body []byte) error {
	if err := e.w.WriteByte(tag); err != nil {
		return err
	}
	if _, err := e.w.Write(body); err != nil {
		return err
	}
	_, err := e.w.WriteString("\r\n")
	return err
}

func (e *Encoder) encodeBulk(v Value) error {
	if v.BulkNull {
		_, err := e.w.WriteString("$-1\r\n")
		return err
	}
	if err := e.w.WriteByte('$'); err != nil {
		return err
	}
	if _, err := e.w.WriteString(strconv.Itoa(len(v.Bulk))); err != nil {
		return err
	}
	if _, err := e.w.WriteString("\r\n"); err != nil {
		return err
	}
	if _, err := e.w.Write(v.Bulk); err != nil {
		return err
	}
	_, err := e.w.WriteString("\r\n")
	return err
}

func (e *Encoder) encodeArray(v Value) error {
	if v.ArrayNull {
		_, err := e.w.WriteString("*-1\r\n")
		return err
	}
	if err := e.w.WriteByte('*'); err != nil {
		return err
	}
	if _, err := e.w.WriteString(strconv.Itoa(len(v.Elems))); err != nil {
		return err
	}
	if _, err := e.w.WriteString("\r\n"); err != nil {
		return err
	}
	for _, el := range v.Elems {
		if err := e.Encode(el); err != nil {
			return err
		}
	}
	return nil
}

// EncodeToBytes renders v standalone, for logging and persistence records
// where an io.Writer isn't already in hand.
func EncodeToBytes(v Value) []byte {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	_ = enc.Encode(v)
	_ = enc.Flush()
	return buf.Bytes()
}
