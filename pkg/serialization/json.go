package serialization

import (
	"bytes"
	"encoding/json"
	"io"
)

// newJSONEncoder keeps '<', '>' and '&' literal so stored names stay readable.
func newJSONEncoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

func newJSONDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}

// json.Encoder terminates every value with a newline; media store the bare value.
func trimJSON(b []byte) (string, error) {
	return string(bytes.TrimRight(b, "\n")), nil
}

func rawJSON(s string) ([]byte, error) {
	return []byte(s), nil
}
