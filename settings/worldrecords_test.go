package settings

import (
	"testing"

	"github.com/stretchr/testify/require"

	"goflare.io/stride/pace"
)

func TestWorldRecordBoardStartsEmpty(t *testing.T) {
	b := NewWorldRecordBoard()
	require.Equal(t, WorldRecords{Men: pace.Records{}, Women: pace.Records{}}, b.Get())
	require.False(t, b.Loading().Get())
}

func TestWorldRecordBoardSetAndUpdate(t *testing.T) {
	b := NewWorldRecordBoard()

	b.Set(WorldRecords{
		Men:   pace.Records{100: 9.58, 200: 19.19},
		Women: pace.Records{100: 10.49, 200: 21.34},
	})
	require.Equal(t, 19.19, b.Get().Men[200])

	before := b.Get()
	next := b.Update(func(r WorldRecords) WorldRecords {
		r.Men = pace.Records{1500: 206}
		return r
	})
	require.Equal(t, pace.Records{1500: 206}, next.Men)
	require.Equal(t, pace.Records{100: 10.49, 200: 21.34}, next.Women)
	require.Equal(t, 9.58, before.Men[100])

	b.Set(WorldRecords{})
	require.NotNil(t, b.Get().Men)
	require.NotNil(t, b.Get().Women)
}

func TestWorldRecordRowMatch(t *testing.T) {
	b := NewWorldRecordBoard()
	b.Set(WorldRecords{Men: pace.Records{100: 9.58}, Women: pace.Records{100: 10.49}})

	require.True(t, b.IsMenRecord(100, 9.58, 1))
	require.False(t, b.IsMenRecord(100, 9.70, 1))
	require.False(t, b.IsMenRecord(200, 9.58, 1))
	require.True(t, b.IsWomenRecord(100, 10.50, 1))

	b.SetLoading(true)
	require.False(t, b.IsMenRecord(100, 9.58, 1))
	b.SetLoading(false)
	require.True(t, b.IsMenRecord(100, 9.58, 1))
}
