package resp

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func roundTrip(t *testing.T, v Value, wire string) {
	t.Helper()

	got := EncodeToBytes(v)
	if string(got) != wire {
		t.Fatalf("encode mismatch:\n got:  %q\n want: %q\n value: %s", got, wire, spew.Sdump(v))
	}

	dec := NewDecoder(bufio.NewReader(bytes.NewReader([]byte(wire))))
	decoded, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(v) {
		t.Fatalf("decode mismatch:\n got:  %s\n want: %s", spew.Sdump(decoded), spew.Sdump(v))
	}
}

func TestRoundTripSimpleString(t *testing.T) {
	roundTrip(t, NewSimpleString("OK"), "+OK\r\n")
}

func TestRoundTripError(t *testing.T) {
	roundTrip(t, NewError("ERR wrong number of arguments"), "-ERR wrong number of arguments\r\n")
}

func TestRoundTripInteger(t *testing.T) {
	roundTrip(t, NewInteger(1000), ":1000\r\n")
	roundTrip(t, NewInteger(-1), ":-1\r\n")
}

func TestRoundTripBulkString(t *testing.T) {
	roundTrip(t, NewBulkStringFromString("bar"), "$3\r\nbar\r\n")
	roundTrip(t, NewBulkStringFromString(""), "$0\r\n\r\n")
}

func TestRoundTripNullBulkString(t *testing.T) {
	roundTrip(t, NullBulkString(), "$-1\r\n")
}

func TestRoundTripArray(t *testing.T) {
	roundTrip(t, NewArray([]Value{
		NewBulkStringFromString("c"),
		NewBulkStringFromString("b"),
		NewBulkStringFromString("a"),
	}), "*3\r\n$1\r\nc\r\n$1\r\nb\r\n$1\r\na\r\n")
}

func TestRoundTripEmptyArray(t *testing.T) {
	roundTrip(t, NewArray(nil), "*0\r\n")
}

func TestRoundTripNullArray(t *testing.T) {
	roundTrip(t, NullArray(), "*-1\r\n")
}

func TestRoundTripBulkStringArbitraryBytes(t *testing.T) {
	payload := []byte{0x00, '\r', '\n', 0xff, 'a'}
	v := NewBulkString(payload)
	wire := "$5\r\n" + string(payload) + "\r\n"
	roundTrip(t, v, wire)
}

func TestDecodeMalformedUnknownType(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte("!foo\r\n")))
	if _, err := dec.Decode(); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeMalformedBadLength(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte("$-5\r\n")))
	if _, err := dec.Decode(); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeMalformedLengthMismatch(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte("$3\r\nabXXX\r\n")))
	if _, err := dec.Decode(); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeIncrementalPartialFrameBlocks(t *testing.T) {
	// A pipe reader blocks instead of returning EOF for a partial frame,
	// which is how a live TCP connection behaves mid-write.
	pr, pw := io.Pipe()
	dec := NewDecoder(pr)

	done := make(chan struct{})
	go func() {
		v, err := dec.Decode()
		if err != nil {
			t.Errorf("decode: %v", err)
		}
		if !v.Equal(NewSimpleString("OK")) {
			t.Errorf("unexpected value: %+v", v)
		}
		close(done)
	}()

	_, _ = pw.Write([]byte("+O"))
	_, _ = pw.Write([]byte("K\r\n"))
	<-done
}

func TestDecodeCommand(t *testing.T) {
	wire := "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"
	dec := NewDecoder(bytes.NewReader([]byte(wire)))
	v, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(v.Elems) != 2 || string(v.Elems[0].Bulk) != "GET" || string(v.Elems[1].Bulk) != "foo" {
		t.Fatalf("unexpected command: %s", spew.Sdump(v))
	}
}
