package settings

import (
	"maps"

	"goflare.io/stride/pace"
	"goflare.io/stride/pkg/observable"
)

// WorldRecords are the reference marks per distance, one set per sex.
type WorldRecords struct {
	Men   pace.Records `json:"men"`
	Women pace.Records `json:"women"`
}

// WorldRecordBoard holds the world records shown beside the table. Nothing is
// persisted; callers fill it from whatever source they have.
type WorldRecordBoard struct {
	records *observable.Value[WorldRecords]
	loading *observable.Value[bool]
}

// NewWorldRecordBoard returns an empty, idle board.
func NewWorldRecordBoard() *WorldRecordBoard {
	return &WorldRecordBoard{
		records: observable.New(WorldRecords{Men: pace.Records{}, Women: pace.Records{}}),
		loading: observable.New(false),
	}
}

// Set replaces both record sets. Missing sets become empty.
func (b *WorldRecordBoard) Set(records WorldRecords) {
	b.records.Set(normalize(records))
}

// Update derives the next records from the current ones.
func (b *WorldRecordBoard) Update(fn func(WorldRecords) WorldRecords) WorldRecords {
	return b.records.Update(func(current WorldRecords) WorldRecords {
		return normalize(fn(WorldRecords{Men: maps.Clone(current.Men), Women: maps.Clone(current.Women)}))
	})
}

// Get returns the current records.
func (b *WorldRecordBoard) Get() WorldRecords {
	return b.records.Get()
}

// SetLoading flags a refresh in progress.
func (b *WorldRecordBoard) SetLoading(loading bool) {
	b.loading.Set(loading)
}

// Loading holds the refresh flag.
func (b *WorldRecordBoard) Loading() *observable.Value[bool] {
	return b.loading
}

// Records holds the current records.
func (b *WorldRecordBoard) Records() *observable.Value[WorldRecords] {
	return b.records
}

// IsMenRecord reports whether the men's record at distance falls on the row
// with time rowTime. It is false while a refresh is running.
func (b *WorldRecordBoard) IsMenRecord(distance pace.Distance, rowTime, increment float64) bool {
	return b.matches(b.Get().Men, distance, rowTime, increment)
}

// IsWomenRecord is IsMenRecord for the women's records.
func (b *WorldRecordBoard) IsWomenRecord(distance pace.Distance, rowTime, increment float64) bool {
	return b.matches(b.Get().Women, distance, rowTime, increment)
}

func (b *WorldRecordBoard) matches(records pace.Records, distance pace.Distance, rowTime, increment float64) bool {
	if b.loading.Get() {
		return false
	}
	record, ok := records[distance]
	return ok && pace.MatchesRow(distance, rowTime, increment, record)
}

func normalize(r WorldRecords) WorldRecords {
	if r.Men == nil {
		r.Men = pace.Records{}
	}
	if r.Women == nil {
		r.Women = pace.Records{}
	}
	return r
}
