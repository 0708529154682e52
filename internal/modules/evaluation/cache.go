// Package evaluation turns parameter vectors into energies.
//
// The Evaluator measures every term of an observable through an external Executor
// and aggregates the weighted sum. Every distinct parameter vector is measured at
// most once: results are kept in an append-only Cache that also serves as the run
// history.
package evaluation

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/modules/observable"
	"github.com/aristath/hybrid/internal/modules/parameters"
)

// TermValue is the measured expectation of one observable term.
type TermValue struct {
	Index       int // Position of the term in the observable
	Term        observable.Term
	Expectation float64
}

// Contribution returns coefficient times expectation.
func (tv TermValue) Contribution() float64 {
	return tv.Term.Coefficient * tv.Expectation
}

// Record is the result of evaluating one distinct parameter vector.
// Records are created once and never mutated.
type Record struct {
	Sequence    int // Insertion position, starting at 0
	Params      parameters.Vector
	Energy      float64
	TermValues  []TermValue
	EvaluatedAt time.Time
}

func (r Record) clone() Record {
	out := r
	out.Params = r.Params.Clone()
	out.TermValues = make([]TermValue, len(r.TermValues))
	for i, tv := range r.TermValues {
		out.TermValues[i] = TermValue{
			Index:       tv.Index,
			Term:        observable.NewTerm(tv.Term.Coefficient, tv.Term.Basis...),
			Expectation: tv.Expectation,
		}
	}
	return out
}

// EnergyParams pairs an energy with the parameters that produced it.
type EnergyParams struct {
	Energy float64
	Params parameters.Vector
}

// CacheStats is a point-in-time snapshot of cache activity.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Cache is an append-only, insertion-ordered map from parameter vector to Record.
// It is safe for one writer and any number of concurrent readers; readers only
// ever see fully inserted records.
type Cache struct {
	mu      sync.RWMutex
	records []Record
	index   map[string]int
	hits    uint64
	misses  uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		records: make([]Record, 0),
		index:   make(map[string]int),
	}
}

// Lookup returns the record for params if it was evaluated before.
// Lookups are counted as hits or misses.
func (c *Cache) Lookup(params parameters.Vector) (Record, bool) {
	key := params.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[key]
	if !ok {
		c.misses++
		return Record{}, false
	}
	c.hits++
	return c.records[i].clone(), true
}

// Contains reports whether params is cached without touching the statistics.
func (c *Cache) Contains(params parameters.Vector) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.index[params.Key()]
	return ok
}

// Insert appends a record and returns it with its sequence number assigned.
// Inserting a parameter vector that is already present is a logic error and
// returns ErrCacheIntegrity.
func (c *Cache) Insert(rec Record) (Record, error) {
	key := rec.Params.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[key]; exists {
		return Record{}, fmt.Errorf("%w: parameters %s already evaluated", domain.ErrCacheIntegrity, rec.Params)
	}

	stored := rec.clone()
	stored.Sequence = len(c.records)
	c.records = append(c.records, stored)
	c.index[key] = stored.Sequence

	return stored.clone(), nil
}

// Len returns the number of distinct parameter vectors evaluated.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.records)
}

// Records returns copies of all records in insertion order.
func (c *Cache) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.clone()
	}
	return out
}

// Since returns copies of the records with Sequence >= seq.
func (c *Cache) Since(seq int) []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if seq < 0 {
		seq = 0
	}
	if seq >= len(c.records) {
		return []Record{}
	}
	out := make([]Record, 0, len(c.records)-seq)
	for _, r := range c.records[seq:] {
		out = append(out, r.clone())
	}
	return out
}

// UniqueParameters returns every distinct parameter vector in first-seen order.
func (c *Cache) UniqueParameters() []parameters.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]parameters.Vector, len(c.records))
	for i, r := range c.records {
		out[i] = r.Params.Clone()
	}
	return out
}

// UniqueEnergies returns (energy, params) pairs in first-seen order. The order is
// historical and deliberately not sorted by energy.
func (c *Cache) UniqueEnergies() []EnergyParams {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]EnergyParams, len(c.records))
	for i, r := range c.records {
		out[i] = EnergyParams{Energy: r.Energy, Params: r.Params.Clone()}
	}
	return out
}

// Best returns the lowest-energy record. The earliest record wins ties.
func (c *Cache) Best() (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.records) == 0 {
		return Record{}, false
	}
	best := 0
	for i, r := range c.records {
		if r.Energy < c.records[best].Energy {
			best = i
		}
	}
	return c.records[best].clone(), true
}

// Stats returns a snapshot of the hit/miss counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: len(c.records),
	}
}
