// Package selection keeps the ordered list of selected athletes. Every
// entity holds one palette color for as long as it is selected.
package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"goflare.io/stride/metrics"
	"goflare.io/stride/pace"
	"goflare.io/stride/palette"
	"goflare.io/stride/pkg/observable"
	"goflare.io/stride/storage"
)

// Config describes a Store.
type Config struct {
	Key      string
	Logger   *zap.Logger
	Recorder *metrics.Recorder
}

// Store is the selection list. Mutations are atomic with respect to each
// other; each one publishes a fresh slice and persists the whole list.
type Store struct {
	pool     *palette.Pool
	medium   storage.Medium
	key      string
	value    *observable.Value[[]Entity]
	logger   *zap.Logger
	recorder *metrics.Recorder
}

// New creates an empty store drawing colors from pool.
func New(pool *palette.Pool, medium storage.Medium, cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:     pool,
		medium:   medium,
		key:      cfg.Key,
		value:    observable.New[[]Entity](nil),
		logger:   logger,
		recorder: cfg.Recorder,
	}
}

// Restore loads the persisted list through SetAll and marks the restored
// colors as held, so a lost pool state cannot hand them out twice. Malformed
// data restores nothing. Only a medium failure is returned.
func (s *Store) Restore(ctx context.Context) error {
	raw, found, err := s.medium.Read(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to read selection: %w", err)
	}
	if !found {
		return nil
	}
	var entities []Entity
	if err := json.Unmarshal([]byte(raw), &entities); err != nil {
		s.logger.Warn("Ignoring malformed selection", zap.String("key", s.key), zap.Error(err))
		return nil
	}
	s.SetAll(ctx, entities)

	colors := make([]palette.Color, 0, len(entities))
	for _, e := range s.List() {
		colors = append(colors, e.Color)
	}
	if n := s.pool.Claim(ctx, colors...); n > 0 {
		s.logger.Info("Reclaimed colors of restored athletes", zap.Int("count", n))
	}
	return nil
}

// SetAll replaces the list. Entities keep the colors they carry.
func (s *Store) SetAll(ctx context.Context, entities []Entity) {
	next := make([]Entity, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		next = append(next, e.clone())
	}
	s.commit(ctx, func([]Entity) ([]Entity, bool) { return next, true })
}

// Add selects athlete with a freshly allocated color. It reports false when
// the id is already selected.
func (s *Store) Add(ctx context.Context, athlete Athlete) bool {
	return s.commit(ctx, func(current []Entity) ([]Entity, bool) {
		if indexOf(current, athlete.ID) != -1 {
			return current, false
		}
		entity := Entity{
			Athlete: athlete,
			Color:   s.pool.Allocate(ctx),
			Visible: true,
			Records: pace.Records{},
		}
		return append(slices.Clip(current), entity), true
	})
}

// Remove deselects id and returns its color to the pool.
func (s *Store) Remove(ctx context.Context, id string) bool {
	return s.commit(ctx, func(current []Entity) ([]Entity, bool) {
		i := indexOf(current, id)
		if i == -1 {
			return current, false
		}
		s.pool.Release(ctx, current[i].Color)
		return slices.Delete(slices.Clone(current), i, i+1), true
	})
}

// SetLoading sets the loading flag of id.
func (s *Store) SetLoading(ctx context.Context, id string, loading bool) {
	s.update(ctx, id, func(e *Entity) { e.IsLoading = loading })
}

// SetRecords stores the records of id and clears its loading flag.
func (s *Store) SetRecords(ctx context.Context, id string, records pace.Records) {
	s.update(ctx, id, func(e *Entity) {
		e.Records = records
		e.IsLoading = false
	})
}

// ToggleVisible flips the visibility of id and returns the new value.
func (s *Store) ToggleVisible(ctx context.Context, id string) bool {
	visible := false
	s.update(ctx, id, func(e *Entity) {
		e.Visible = !e.Visible
		visible = e.Visible
	})
	return visible
}

// SetAllInvisible hides every entity.
func (s *Store) SetAllInvisible(ctx context.Context) {
	s.commit(ctx, func(current []Entity) ([]Entity, bool) {
		next := slices.Clone(current)
		for i := range next {
			next[i].Visible = false
		}
		return next, true
	})
}

// IsVisible reports the visibility of id, false when unknown.
func (s *Store) IsVisible(id string) bool {
	e, ok := s.Get(id)
	return ok && e.Visible
}

// ColorsAt returns the colors of the visible athletes whose record over
// distance falls on the table row timed rowTime.
func (s *Store) ColorsAt(distance pace.Distance, rowTime, increment float64) []palette.Color {
	var colors []palette.Color
	for _, e := range s.value.Get() {
		if !e.Visible {
			continue
		}
		if record, ok := e.Records[distance]; ok && pace.MatchesRow(distance, rowTime, increment, record) {
			colors = append(colors, e.Color)
		}
	}
	return colors
}

// Reset frees every color and empties the list.
func (s *Store) Reset(ctx context.Context) {
	s.pool.Reset(ctx)
	s.commit(ctx, func([]Entity) ([]Entity, bool) { return []Entity{}, true })
}

// List returns a snapshot of the selection in insertion order.
func (s *Store) List() []Entity {
	current := s.value.Get()
	out := make([]Entity, len(current))
	for i, e := range current {
		out[i] = e.clone()
	}
	return out
}

// Get returns the entity with id.
func (s *Store) Get(id string) (Entity, bool) {
	current := s.value.Get()
	if i := indexOf(current, id); i != -1 {
		return current[i].clone(), true
	}
	return Entity{}, false
}

// Len returns the number of selected athletes.
func (s *Store) Len() int {
	return len(s.value.Get())
}

// Subscribe calls fn with the current list and after every mutation. The
// slice must not be modified.
func (s *Store) Subscribe(fn func([]Entity)) func() {
	return s.value.Subscribe(fn)
}

// Watch streams the list until ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan []Entity {
	return s.value.Watch(ctx)
}

func (s *Store) update(ctx context.Context, id string, fn func(*Entity)) {
	s.commit(ctx, func(current []Entity) ([]Entity, bool) {
		i := indexOf(current, id)
		if i == -1 {
			return current, false
		}
		next := slices.Clone(current)
		entity := next[i].clone()
		fn(&entity)
		next[i] = entity
		return next, true
	})
}

// commit applies fn and persists its result before subscribers are told, so
// the stored list follows the order of mutations.
func (s *Store) commit(ctx context.Context, fn func([]Entity) ([]Entity, bool)) bool {
	_, changed := s.value.Mutate(func(current []Entity) ([]Entity, bool) {
		next, changed := fn(current)
		if changed {
			s.recorder.SelectionSize(len(next))
			s.persist(ctx, next)
		}
		return next, changed
	})
	return changed
}

func (s *Store) persist(ctx context.Context, entities []Entity) {
	if entities == nil {
		entities = []Entity{}
	}
	data, err := json.Marshal(entities)
	if err != nil {
		s.logger.Error("Failed to encode selection", zap.Error(err))
		return
	}
	if err := s.medium.Write(ctx, s.key, string(data)); err != nil {
		s.logger.Warn("Failed to persist selection", zap.String("key", s.key), zap.Error(err))
	}
}

func indexOf(entities []Entity, id string) int {
	return slices.IndexFunc(entities, func(e Entity) bool { return e.ID == id })
}
