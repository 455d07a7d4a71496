// Package serialization encodes values persisted through a storage medium.
package serialization

import (
	"bytes"
	"fmt"
	"io"
)

const (
	// JSONType selects the JSON codec.
	JSONType = "json"
	// GobType selects the gob codec. Gob output is binary and is base64
	// wrapped by Codec so it fits string-valued media.
	GobType = "gob"
)

// Decoder reads one value from a stream.
type Decoder interface {
	Decode(v any) error
}

// Encoder writes one value to a stream.
type Encoder interface {
	Encode(v any) error
}

// Codec turns values into the string form stored in a medium and back.
type Codec struct {
	Type       string
	NewEncoder func(io.Writer) Encoder
	NewDecoder func(io.Reader) Decoder

	// wrap and unwrap convert between the encoded stream and the stored string.
	wrap   func([]byte) (string, error)
	unwrap func(string) ([]byte, error)
}

// JSON returns the default codec.
func JSON() Codec {
	return Codec{
		Type:       JSONType,
		NewEncoder: newJSONEncoder,
		NewDecoder: newJSONDecoder,
		wrap:       trimJSON,
		unwrap:     rawJSON,
	}
}

// Gob returns a codec backed by encoding/gob.
func Gob() Codec {
	return Codec{
		Type:       GobType,
		NewEncoder: newGobEncoder,
		NewDecoder: newGobDecoder,
		wrap:       wrapGob,
		unwrap:     unwrapGob,
	}
}

// ByName resolves a codec from its type name.
func ByName(name string) (Codec, error) {
	switch name {
	case JSONType, "":
		return JSON(), nil
	case GobType:
		return Gob(), nil
	default:
		return Codec{}, fmt.Errorf("unsupported serialization type: %s", name)
	}
}

// Marshal encodes v.
func (c Codec) Marshal(v any) (string, error) {
	var buf bytes.Buffer
	if err := c.NewEncoder(&buf).Encode(v); err != nil {
		return "", err
	}
	if c.wrap == nil {
		return buf.String(), nil
	}
	return c.wrap(buf.Bytes())
}

// Unmarshal decodes data into v.
func (c Codec) Unmarshal(data string, v any) error {
	raw := []byte(data)
	if c.unwrap != nil {
		var err error
		if raw, err = c.unwrap(data); err != nil {
			return fmt.Errorf("failed to unwrap %s payload: %w", c.Type, err)
		}
	}
	return c.NewDecoder(bytes.NewReader(raw)).Decode(v)
}
