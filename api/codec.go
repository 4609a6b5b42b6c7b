package api

import (
	"bytes"
	"io"

	"github.com/ugorji/go/codec"
)

// Field names come from the `json` struct tags.
func jsonHandle() *codec.JsonHandle {
	h := &codec.JsonHandle{}
	h.Indent = 2
	h.HTMLCharsAsIs = true
	return h
}

func EncodeJSON(w io.Writer, x interface{}) error {
	return codec.NewEncoder(w, jsonHandle()).Encode(x)
}

func DecodeJSON(r io.Reader, x interface{}) error {
	return codec.NewDecoder(r, jsonHandle()).Decode(x)
}

func MarshalJSON(x interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := EncodeJSON(&buf, x)
	return buf.Bytes(), err
}

func UnmarshalJSON(b []byte, x interface{}) error {
	return codec.NewDecoderBytes(b, jsonHandle()).Decode(x)
}
