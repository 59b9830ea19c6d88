package resp

import "errors"

// ErrMalformed is returned by Decoder.Decode when the input cannot be a
// valid RESP frame: an unknown type byte, a negative length outside {-1},
// a CR without a following LF, or a bulk payload not followed by CRLF at
// its declared length. A stream that ends before the declared length is
// delivered yields io.ErrUnexpectedEOF instead.
var ErrMalformed = errors.New("resp: malformed frame")

// errIncomplete is declared but not referenced by the decoder; it is never
// returned from Decode.
var errIncomplete = errors.New("resp: incomplete frame")
