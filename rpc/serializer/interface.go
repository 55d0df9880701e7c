package serializer

import "errors"

var (
	// ErrMalformedPayload is returned for truncated data, trailing bytes or invalid values
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrPayloadTooLarge is returned if a payload exceeds the configured or encodable size
	ErrPayloadTooLarge = errors.New("payload too large")
)

// IEncoder is implemented by every payload value
type IEncoder interface {
	// Encode appends the payload to w
	Encode(w *Writer)
}

// IDecoder is implemented by pointers to payload values
type IDecoder interface {
	// Decode reads the payload from r, errors are collected by r
	Decode(r *Reader)
}

// IPayload is implemented by pointers to every structured payload that travels after a header
type IPayload interface {
	IEncoder
	IDecoder
}

// Marshal encodes p. The result carries no length prefix of its own, its
// size is transmitted as the header's PayloadSize.
func Marshal(p IEncoder) ([]byte, error) {
	w := NewWriter()
	p.Encode(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes data into p. Decoding is all-or-nothing: on error the
// content of p must not be used.
func Unmarshal(data []byte, p IDecoder) error {
	r := NewReader(data)
	p.Decode(r)
	return r.Finish()
}
