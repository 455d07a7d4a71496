// Package palette hands out colors from a fixed pool and takes them back.
//
// Allocation scans for the first free slot. When every slot is taken the
// pool is wiped and slot 0 is handed out again, so colors repeat once more
// entities hold colors than the pool has slots.
package palette

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"goflare.io/stride/metrics"
	"goflare.io/stride/storage"
)

// Color is one token of the palette, e.g. "#03A9F4".
type Color string

// ErrNoColors is returned when a pool is configured without colors.
var ErrNoColors = errors.New("palette: no colors")

// Config describes a pool.
type Config struct {
	Colors   []string
	Key      string
	Logger   *zap.Logger
	Recorder *metrics.Recorder
}

// Pool tracks which colors are held. Its usage state is persisted under Key.
type Pool struct {
	mu       sync.Mutex
	colors   []Color
	used     []bool
	medium   storage.Medium
	key      string
	logger   *zap.Logger
	recorder *metrics.Recorder
}

// Load restores the pool state from medium. Missing, undecodable or
// mis-sized state starts every slot free.
func Load(ctx context.Context, medium storage.Medium, cfg Config) (*Pool, error) {
	if len(cfg.Colors) == 0 {
		return nil, ErrNoColors
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		colors:   make([]Color, len(cfg.Colors)),
		used:     make([]bool, len(cfg.Colors)),
		medium:   medium,
		key:      cfg.Key,
		logger:   logger,
		recorder: cfg.Recorder,
	}
	for i, c := range cfg.Colors {
		p.colors[i] = Color(c)
	}

	raw, found, err := medium.Read(ctx, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read color usage: %w", err)
	}
	if !found {
		return p, nil
	}

	var stored []bool
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		logger.Warn("Ignoring malformed color usage", zap.String("key", cfg.Key), zap.Error(err))
		return p, nil
	}
	if len(stored) != len(p.used) {
		logger.Warn("Ignoring color usage for a different palette",
			zap.Int("stored", len(stored)), zap.Int("capacity", len(p.used)))
		return p, nil
	}
	copy(p.used, stored)
	return p, nil
}

// Allocate marks the first free color as used and returns it. An exhausted
// pool is reset and hands out the first color.
func (p *Pool) Allocate(ctx context.Context) Color {
	p.mu.Lock()
	defer p.mu.Unlock()

	index := -1
	for i, inUse := range p.used {
		if !inUse {
			index = i
			break
		}
	}
	if index == -1 {
		p.logger.Debug("Color pool exhausted, recycling from the start", zap.Int("capacity", len(p.colors)))
		p.recorder.PaletteEvent("wraparound")
		clear(p.used)
		index = 0
	}

	p.used[index] = true
	p.recorder.PaletteEvent("allocate")
	p.persist(ctx)
	return p.colors[index]
}

// Release frees color. Unknown colors are ignored.
func (p *Pool) Release(ctx context.Context, color Color) {
	p.mu.Lock()
	defer p.mu.Unlock()

	index := p.indexOf(color)
	if index == -1 {
		return
	}
	p.used[index] = false
	p.recorder.PaletteEvent("release")
	p.persist(ctx)
}

// Claim marks colors as held, for holders restored without pool state. Unknown
// and already held colors are skipped. It returns how many slots it took.
func (p *Pool) Claim(ctx context.Context, colors ...Color) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	claimed := 0
	for _, color := range colors {
		index := p.indexOf(color)
		if index == -1 || p.used[index] {
			continue
		}
		p.used[index] = true
		claimed++
	}
	if claimed > 0 {
		p.persist(ctx)
	}
	return claimed
}

// Reset frees every color.
func (p *Pool) Reset(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clear(p.used)
	p.recorder.PaletteEvent("reset")
	p.persist(ctx)
}

// Used returns a copy of the slot usage.
func (p *Pool) Used() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.used...)
}

// InUse returns the number of held colors.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, inUse := range p.used {
		if inUse {
			n++
		}
	}
	return n
}

// Colors returns the palette in allocation order.
func (p *Pool) Colors() []Color {
	return append([]Color(nil), p.colors...)
}

// Capacity returns the number of colors.
func (p *Pool) Capacity() int {
	return len(p.colors)
}

// Index returns the slot of color, or -1.
func (p *Pool) Index(color Color) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexOf(color)
}

func (p *Pool) indexOf(color Color) int {
	for i, c := range p.colors {
		if c == color {
			return i
		}
	}
	return -1
}

// persist writes the usage state. Failures are logged: the in-memory pool
// stays authoritative for the session.
func (p *Pool) persist(ctx context.Context) {
	data, err := json.Marshal(p.used)
	if err != nil {
		p.logger.Error("Failed to encode color usage", zap.Error(err))
		return
	}
	if err := p.medium.Write(ctx, p.key, string(data)); err != nil {
		p.logger.Warn("Failed to persist color usage", zap.String("key", p.key), zap.Error(err))
	}
}
