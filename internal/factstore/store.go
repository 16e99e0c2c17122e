// Package factstore keeps production facts in memory, indexed by zone code.
package factstore

import (
	"hash/fnv"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/model"
)

const shardCount = 16

// Store holds at most one fact per (sub-sector, zone code, year). Writes are
// serialized per shard; reads never block on writes to other shards.
type Store struct {
	shards  [shardCount]shard
	size    atomic.Int64
	version atomic.Uint64
}

type shard struct {
	mu     sync.RWMutex
	byCode map[string]*codeFacts
}

// codeFacts keeps the facts of one zone code in first-insertion order.
type codeFacts struct {
	facts []model.Fact
	pos   map[model.FactKey]int
}

// New creates an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].byCode = make(map[string]*codeFacts)
	}
	return s
}

func (s *Store) shardFor(code string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return &s.shards[h.Sum32()%shardCount]
}

// Upsert stores f, replacing any fact with the same key. A replaced fact
// keeps its original position in iteration order.
func (s *Store) Upsert(f model.Fact) error {
	if f.ZoneCode == "" {
		return eris.New("factstore: fact has empty zone code")
	}
	sh := s.shardFor(f.ZoneCode)
	key := f.Key()

	sh.mu.Lock()
	cf, ok := sh.byCode[f.ZoneCode]
	if !ok {
		cf = &codeFacts{pos: make(map[model.FactKey]int)}
		sh.byCode[f.ZoneCode] = cf
	}
	if i, exists := cf.pos[key]; exists {
		cf.facts[i] = f
	} else {
		cf.pos[key] = len(cf.facts)
		cf.facts = append(cf.facts, f)
		s.size.Add(1)
	}
	sh.mu.Unlock()

	s.version.Add(1)
	return nil
}

// UpsertAll upserts facts in order and returns how many were stored. It stops
// at the first invalid fact.
func (s *Store) UpsertAll(facts []model.Fact) (int, error) {
	for i, f := range facts {
		if err := s.Upsert(f); err != nil {
			return i, eris.Wrapf(err, "factstore: upsert fact %d", i)
		}
	}
	return len(facts), nil
}

// Get returns the fact stored under key.
func (s *Store) Get(key model.FactKey) (model.Fact, bool) {
	sh := s.shardFor(key.ZoneCode)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	cf, ok := sh.byCode[key.ZoneCode]
	if !ok {
		return model.Fact{}, false
	}
	i, ok := cf.pos[key]
	if !ok {
		return model.Fact{}, false
	}
	return cf.facts[i], true
}

// Len returns the number of distinct facts.
func (s *Store) Len() int { return int(s.size.Load()) }

// Version increases on every write; equal versions mean identical contents.
func (s *Store) Version() uint64 { return s.version.Load() }

// Query validates the filter, then returns a lazy sequence over matching
// facts, visiting codes in filter order and each code's facts in insertion
// order. Each code is read under its shard lock and yielded after release, so
// a consumer may call back into the store.
func (s *Store) Query(filter Filter) (iter.Seq[model.Fact], error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return func(yield func(model.Fact) bool) {
		var buf []model.Fact
		for _, code := range filter.Codes {
			buf = s.collect(code, filter, buf[:0])
			for _, f := range buf {
				if !yield(f) {
					return
				}
			}
		}
	}, nil
}

func (s *Store) collect(code string, filter Filter, buf []model.Fact) []model.Fact {
	sh := s.shardFor(code)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	cf, ok := sh.byCode[code]
	if !ok {
		return buf
	}
	for _, f := range cf.facts {
		if filter.match(f) {
			buf = append(buf, f)
		}
	}
	return buf
}

// Codes returns every zone code that has at least one fact.
func (s *Store) Codes() []string {
	var out []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for code := range sh.byCode {
			out = append(out, code)
		}
		sh.mu.RUnlock()
	}
	return out
}
