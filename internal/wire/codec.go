package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

// MaxDatagramSize is the largest encoded Frame this package will produce.
// Values whose encoding would exceed it are rejected by Encode rather than
// silently truncated; Decode does not check the input length.
const MaxDatagramSize = 65536

// Encode serializes f with gob. Every paxcast process speaks only to other
// paxcast processes, so a closed-world, schema-free codec is appropriate
// here.
func Encode(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	if buf.Len() > MaxDatagramSize {
		return nil, errors.Errorf("encoded frame of %d bytes exceeds max datagram size %d", buf.Len(), MaxDatagramSize)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a Frame and validates it. Any error (malformed gob,
// an unknown Type, or a negative instance number) is returned so the
// caller can drop the datagram and continue rather than act on it.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&f); err != nil {
		return Frame{}, errors.Wrap(err, "decode frame")
	}
	if err := f.Validate(); err != nil {
		return Frame{}, errors.Wrap(err, "validate frame")
	}
	return f, nil
}
