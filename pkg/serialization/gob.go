package serialization

import (
	"encoding/base64"
	"encoding/gob"
	"io"
)

func newGobEncoder(w io.Writer) Encoder {
	return gob.NewEncoder(w)
}

func newGobDecoder(r io.Reader) Decoder {
	return gob.NewDecoder(r)
}

func wrapGob(b []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(b), nil
}

func unwrapGob(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
