package store

// identityKey addresses one cached instance.
type identityKey struct {
	typ string
	id  int64
}

// IdentityMap guarantees at most one live instance per (type, identity).
//
// A cached instance is handed out unchanged on every later lookup, even if the
// underlying row was modified outside this process; staleness is neither
// detected nor repaired. The map never mutates object fields.
//
// IdentityMap is not safe for concurrent use.
type IdentityMap struct {
	entries map[identityKey]DomainObject
	metrics *Metrics
}

// NewIdentityMap creates an empty identity map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{entries: make(map[identityKey]DomainObject)}
}

// GetOrLoad returns the cached instance for (typ, id), or calls loader, caches
// its result and returns it. Loader errors are returned unchanged and nothing
// is cached. An unset identity (id <= 0) is never cached: loader is called and
// its result returned as is.
func (m *IdentityMap) GetOrLoad(typ string, id int64, loader func() (DomainObject, error)) (DomainObject, error) {
	if id <= 0 {
		return loader()
	}
	key := identityKey{typ: typ, id: id}
	if obj, ok := m.entries[key]; ok {
		m.metrics.observeLookup(typ, true)
		return obj, nil
	}
	m.metrics.observeLookup(typ, false)
	obj, err := loader()
	if err != nil {
		return nil, err
	}
	m.entries[key] = obj
	return obj, nil
}

// Get returns the cached instance for (typ, id), if any.
func (m *IdentityMap) Get(typ string, id int64) (DomainObject, bool) {
	obj, ok := m.entries[identityKey{typ: typ, id: id}]
	return obj, ok
}

// Add caches obj under its own type and identity. It reports false, leaving
// the map unchanged, when obj has no identity or another instance is already
// cached under the same key.
func (m *IdentityMap) Add(obj DomainObject) bool {
	if !obj.HasID() {
		return false
	}
	key := identityKey{typ: obj.EntityType(), id: obj.ID()}
	if cur, ok := m.entries[key]; ok {
		return cur == obj
	}
	m.entries[key] = obj
	return true
}

// Resolve returns the cached instance sharing obj's identity, caching obj
// first when there is none. Objects without identity are returned unchanged.
func (m *IdentityMap) Resolve(obj DomainObject) DomainObject {
	if !obj.HasID() {
		return obj
	}
	key := identityKey{typ: obj.EntityType(), id: obj.ID()}
	if cur, ok := m.entries[key]; ok {
		m.metrics.observeLookup(key.typ, true)
		return cur
	}
	m.metrics.observeLookup(key.typ, false)
	m.entries[key] = obj
	return obj
}

// Evict removes the entry for (typ, id).
func (m *IdentityMap) Evict(typ string, id int64) {
	delete(m.entries, identityKey{typ: typ, id: id})
}

// EvictAll empties the map.
func (m *IdentityMap) EvictAll() {
	clear(m.entries)
}

// Len returns the number of cached instances.
func (m *IdentityMap) Len() int {
	return len(m.entries)
}

// journalEntry is one pending identity map change.
type journalEntry struct {
	obj    DomainObject
	key    identityKey
	remove bool
}

// journal records the identity map changes implied by writes in the open
// engine transaction. They are applied in order once the transaction commits
// and dropped when it rolls back. A nil journal records nothing.
type journal struct {
	entries []journalEntry
}

func (j *journal) inserted(obj DomainObject) {
	if j == nil {
		return
	}
	j.entries = append(j.entries, journalEntry{obj: obj})
}

func (j *journal) deleted(typ string, id int64) {
	if j == nil {
		return
	}
	j.entries = append(j.entries, journalEntry{key: identityKey{typ: typ, id: id}, remove: true})
}

func (j *journal) apply(m *IdentityMap) {
	if j == nil {
		return
	}
	for _, e := range j.entries {
		if e.remove {
			m.Evict(e.key.typ, e.key.id)
			continue
		}
		m.Add(e.obj)
	}
	j.entries = nil
}

func (j *journal) discard() {
	if j == nil {
		return
	}
	j.entries = nil
}
