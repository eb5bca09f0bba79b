// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrmgr tracks known peer addresses in new/tried buckets and
// feeds candidates to the connection manager: a lightweight store of
// dial targets, ranked so the connector prefers addresses that have
// worked before.
package addrmgr

import (
	"encoding/json"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/exccoin-labs/xpeerd/wire"
)

const (
	newBucketCount   = 1024
	triedBucketCount = 256
	bucketSize       = 64
	maxAddresses     = 20000

	// staleAfter marks an address terrible if it has failed this long
	// without a single success.
	staleAfter = 30 * 24 * time.Hour
	// retryGap is the minimum spacing between connection attempts to the
	// same address.
	retryGap = 60 * time.Second
	// maxAttempts marks an address terrible once exceeded.
	maxAttempts = 10
	// goodWindow is how long a past success keeps an address "good".
	goodWindow = time.Hour
)

// KnownAddress is one address the manager has learned about, either from a
// peer's addr/addrv2 announcement or from a direct --peer flag.
type KnownAddress struct {
	Addr        string
	Services    wire.ServiceFlag
	Source      string
	LastSeen    time.Time
	LastSuccess time.Time
	LastAttempt time.Time
	Attempts    int
	Tried       bool
}

// isTerrible reports whether addr should never be selected or shared:
// too many failures, or an attempt too recently.
func (ka *KnownAddress) isTerrible(now time.Time) bool {
	if ka.Attempts > maxAttempts {
		return true
	}
	if !ka.LastAttempt.IsZero() && now.Sub(ka.LastAttempt) < retryGap {
		return true
	}
	if ka.LastSuccess.IsZero() && !ka.LastAttempt.IsZero() && now.Sub(ka.LastAttempt) > staleAfter {
		return true
	}
	return false
}

// isGood reports whether addr connected successfully recently with few
// failed attempts since.
func (ka *KnownAddress) isGood(now time.Time) bool {
	return !ka.LastSuccess.IsZero() && now.Sub(ka.LastSuccess) < goodWindow && ka.Attempts < 3
}

// chance returns this address's relative weight for random selection: more
// attempts without success lower it, a recent success raises it.
func (ka *KnownAddress) chance(now time.Time) float64 {
	c := 1.0
	if ka.Attempts > 0 {
		c /= float64(1 + ka.Attempts)
	}
	if !ka.LastAttempt.IsZero() && now.Sub(ka.LastAttempt) < 10*time.Minute {
		c *= 0.01
	}
	if !ka.LastSuccess.IsZero() && now.Sub(ka.LastSuccess) < 20*time.Minute {
		c *= 2.0
	}
	if c > 1.0 {
		c = 1.0
	}
	if c < 0 {
		c = 0
	}
	return c
}

// Manager buckets known addresses into "new" (unverified) and "tried"
// (successfully dialed) tables, persisting both to a LevelDB instance so
// known-good peers survive a restart.
type Manager struct {
	mu sync.RWMutex

	db *leveldb.DB

	new   map[string]*KnownAddress
	tried map[string]*KnownAddress

	newBuckets   [newBucketCount]map[string]struct{}
	triedBuckets [triedBucketCount]map[string]struct{}

	ownAddrs map[string]struct{}

	rng *rand.Rand
}

// New opens (or creates) the LevelDB-backed address store at path and loads
// any previously persisted addresses into memory.
func New(path string) (*Manager, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		db:       db,
		new:      make(map[string]*KnownAddress),
		tried:    make(map[string]*KnownAddress),
		ownAddrs: make(map[string]struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range m.newBuckets {
		m.newBuckets[i] = make(map[string]struct{})
	}
	for i := range m.triedBuckets {
		m.triedBuckets[i] = make(map[string]struct{})
	}

	if err := m.load(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	iter := m.db.NewIterator(util.BytesPrefix([]byte("addr:")), nil)
	defer iter.Release()
	for iter.Next() {
		var ka KnownAddress
		if err := json.Unmarshal(iter.Value(), &ka); err != nil {
			log.Warnf("addrmgr: skipping corrupt record %q: %v", iter.Key(), err)
			continue
		}
		if ka.Tried {
			m.tried[ka.Addr] = &ka
			m.triedBuckets[triedBucket(ka.Addr)][ka.Addr] = struct{}{}
		} else {
			m.new[ka.Addr] = &ka
			m.newBuckets[newBucket(ka.Addr, ka.Source)][ka.Addr] = struct{}{}
		}
	}
	return iter.Error()
}

func (m *Manager) persist(ka *KnownAddress) {
	buf, err := json.Marshal(ka)
	if err != nil {
		log.Warnf("addrmgr: marshal %s: %v", ka.Addr, err)
		return
	}
	if err := m.db.Put([]byte("addr:"+ka.Addr), buf, nil); err != nil {
		log.Warnf("addrmgr: persist %s: %v", ka.Addr, err)
	}
}

func newBucket(addr, source string) int {
	h := fnv.New64a()
	h.Write([]byte(addr))
	h.Write([]byte(source))
	return int(h.Sum64() % newBucketCount)
}

func triedBucket(addr string) int {
	h := fnv.New64a()
	h.Write([]byte(addr))
	return int(h.Sum64() % triedBucketCount)
}

// AddOwnAddress records addr as one of our own listening addresses, so it
// is never accepted into the new/tried tables.
func (m *Manager) AddOwnAddress(addr string) {
	m.mu.Lock()
	m.ownAddrs[addr] = struct{}{}
	m.mu.Unlock()
}

// AddAddress learns of addr, reported with services by source. It returns
// true if addr was newly added. An address already in tried, or claimed as
// our own, is ignored; an address already in new has its services and
// last-seen time refreshed instead of being duplicated.
func (m *Manager) AddAddress(addr string, services wire.ServiceFlag, source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ownAddrs[addr]; ok {
		return false
	}
	if _, ok := m.tried[addr]; ok {
		return false
	}
	if ka, ok := m.new[addr]; ok {
		ka.LastSeen = time.Now()
		if services != 0 {
			ka.Services = services
		}
		m.persist(ka)
		return false
	}
	if len(m.new) >= maxAddresses {
		return false
	}

	ka := &KnownAddress{
		Addr:     addr,
		Services: services,
		Source:   source,
		LastSeen: time.Now(),
	}
	b := newBucket(addr, source)
	if len(m.newBuckets[b]) >= bucketSize {
		m.evictOneLocked(m.newBuckets[b], m.new)
	}
	m.newBuckets[b][addr] = struct{}{}
	m.new[addr] = ka
	m.persist(ka)
	return true
}

// evictOneLocked removes one arbitrary member of bucket from both bucket
// and table. Map iteration order in Go is randomized per-run, so this
// evicts an effectively random entry without an explicit RNG.
func (m *Manager) evictOneLocked(bucket map[string]struct{}, table map[string]*KnownAddress) {
	for addr := range bucket {
		delete(bucket, addr)
		delete(table, addr)
		if err := m.db.Delete([]byte("addr:"+addr), nil); err != nil {
			log.Warnf("addrmgr: evict %s: %v", addr, err)
		}
		return
	}
}

// Good records a successful connection to addr, promoting it from new to
// tried if necessary.
func (m *Manager) Good(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if ka, ok := m.new[addr]; ok {
		delete(m.new, addr)
		delete(m.newBuckets[newBucket(addr, ka.Source)], addr)

		ka.LastSuccess = now
		ka.LastAttempt = now
		ka.Attempts = 0
		ka.Tried = true

		b := triedBucket(addr)
		if len(m.triedBuckets[b]) >= bucketSize {
			m.evictOneLocked(m.triedBuckets[b], m.tried)
		}
		m.triedBuckets[b][addr] = struct{}{}
		m.tried[addr] = ka
		m.persist(ka)
		return
	}
	if ka, ok := m.tried[addr]; ok {
		ka.LastSuccess = now
		ka.LastAttempt = now
		ka.Attempts = 0
		m.persist(ka)
	}
}

// Attempt records a connection attempt to addr, whether or not it
// succeeded; call Good afterward if it did.
func (m *Manager) Attempt(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if ka, ok := m.new[addr]; ok {
		ka.LastAttempt = now
		ka.Attempts++
		m.persist(ka)
		return
	}
	if ka, ok := m.tried[addr]; ok {
		ka.LastAttempt = now
		ka.Attempts++
		m.persist(ka)
	}
}

// GetAddress selects one candidate address to dial: 50% from tried (when
// non-empty), else from new, falling back to whichever table is
// non-empty. Terrible addresses are never selected.
func (m *Manager) GetAddress() (string, bool) {
	// The write lock, not RLock: the selection path shares m.rng, which is
	// not safe for concurrent use.
	m.mu.Lock()
	defer m.mu.Unlock()

	useTried := m.rng.Float64() < 0.5
	if useTried && len(m.tried) > 0 {
		if addr, ok := m.selectFrom(m.tried); ok {
			return addr, true
		}
	}
	if len(m.new) > 0 {
		if addr, ok := m.selectFrom(m.new); ok {
			return addr, true
		}
	}
	if len(m.tried) > 0 {
		return m.selectFrom(m.tried)
	}
	return "", false
}

func (m *Manager) selectFrom(table map[string]*KnownAddress) (string, bool) {
	now := time.Now()
	type candidate struct {
		addr   string
		weight float64
	}
	var candidates []candidate
	var total float64
	for addr, ka := range table {
		if ka.isTerrible(now) {
			continue
		}
		w := ka.chance(now)
		candidates = append(candidates, candidate{addr, w})
		total += w
	}
	if len(candidates) == 0 {
		return "", false
	}
	if total <= 0 {
		return candidates[m.rng.Intn(len(candidates))].addr, true
	}
	threshold := m.rng.Float64() * total
	for _, c := range candidates {
		threshold -= c.weight
		if threshold <= 0 {
			return c.addr, true
		}
	}
	return candidates[len(candidates)-1].addr, true
}

// GetAddresses returns up to max addresses suitable for sharing with a peer
// that sent getaddr, preferring good tried addresses first.
func (m *Manager) GetAddresses(max int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var result []string
	for addr, ka := range m.tried {
		if len(result) >= max {
			return result
		}
		if ka.isGood(now) && !ka.isTerrible(now) {
			result = append(result, addr)
		}
	}
	for addr, ka := range m.new {
		if len(result) >= max {
			return result
		}
		if !ka.isTerrible(now) {
			result = append(result, addr)
		}
	}
	return result
}

// Stats reports the current size of the new and tried tables.
func (m *Manager) Stats() (newCount, triedCount int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.new), len(m.tried)
}

// Close releases the underlying LevelDB handle.
func (m *Manager) Close() error {
	return m.db.Close()
}
