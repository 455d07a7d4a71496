package serialization

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string
	Values []float64
}

func TestCodecs(t *testing.T) {
	for _, name := range []string{JSONType, GobType} {
		t.Run(name, func(t *testing.T) {
			codec, err := ByName(name)
			require.NoError(t, err)

			in := sample{Name: "x", Values: []float64{1.5, 1609.34}}
			data, err := codec.Marshal(in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, codec.Unmarshal(data, &out))
			require.Equal(t, in, out)
		})
	}
}

func TestJSONHasNoTrailingNewline(t *testing.T) {
	data, err := JSON().Marshal([]int{1, 2})
	require.NoError(t, err)
	require.Equal(t, "[1,2]", data)
}

func TestUnmarshalMalformed(t *testing.T) {
	var out sample
	require.Error(t, JSON().Unmarshal("invalid json", &out))
	require.Error(t, Gob().Unmarshal("%%%", &out))
}

func TestByNameUnknown(t *testing.T) {
	_, err := ByName("xml")
	require.Error(t, err)
}

func TestJSONKeepsMarkupLiteral(t *testing.T) {
	data, err := JSON().Marshal("A&B <club>")
	require.NoError(t, err)
	require.Equal(t, `"A&B <club>"`, data)
}
