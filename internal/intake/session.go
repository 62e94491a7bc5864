package intake

import (
	"sync"
	"time"
)

type Step string

const (
	StepUnitType   Step = "unit-type"
	StepUnitNumber Step = "unit-number"
	StepLinkTruck  Step = "link-truck"
	StepRepair     Step = "repair"
	StepPaidBy     Step = "paid-by"
	StepTotal      Step = "total"
	StepNotes      Step = "notes"
	StepAwaitFile  Step = "await-file"
	StepDone       Step = "done"
)

var orderedSteps = []Step{
	StepUnitType,
	StepUnitNumber,
	StepLinkTruck,
	StepRepair,
	StepPaidBy,
	StepTotal,
	StepNotes,
	StepAwaitFile,
	StepDone,
}

func (s Step) Valid() bool {
	for _, step := range orderedSteps {
		if s == step {
			return true
		}
	}
	return false
}

type AssetType string

const (
	AssetTruck   AssetType = "truck"
	AssetTrailer AssetType = "trailer"
)

type Payer string

const (
	PayerDriver  Payer = "driver"
	PayerCompany Payer = "company"
)

// Draft holds the fields confirmed so far. Empty strings mean "not yet
// collected"; Notes is only meaningful once HasNotes is set because "-"
// confirms an empty note.
type Draft struct {
	AssetType AssetType `json:"assetType,omitempty"`
	TruckNo   string    `json:"truckNo,omitempty"`
	TrailerNo string    `json:"trailerNo,omitempty"`
	Issue     string    `json:"issue,omitempty"`
	PaidBy    Payer     `json:"paidBy,omitempty"`
	Total     string    `json:"total,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	HasNotes  bool      `json:"hasNotes,omitempty"`
}

type Session struct {
	Step  Step  `json:"step"`
	Draft Draft `json:"draft"`
}

func NewSession() Session {
	return Session{Step: StepUnitType}
}

// SessionStore is the key-value boundary the engine keeps conversation state
// behind. Implementations must be safe for concurrent use.
type SessionStore interface {
	Get(chatID int64) (Session, bool)
	Set(chatID int64, session Session)
	Delete(chatID int64)
}

type MemorySessionStore struct {
	cache *boundedCache[int64, Session]
}

func NewMemorySessionStore(capacity int, ttl time.Duration) *MemorySessionStore {
	return newMemorySessionStore(capacity, ttl, time.Now)
}

func newMemorySessionStore(capacity int, ttl time.Duration, now func() time.Time) *MemorySessionStore {
	if capacity <= 0 {
		capacity = defaultSessionCapacity
	}
	if ttl == 0 {
		ttl = defaultSessionTTL
	}
	return &MemorySessionStore{cache: newBoundedCache[int64, Session](capacity, ttl, now)}
}

func (s *MemorySessionStore) Get(chatID int64) (Session, bool) {
	return s.cache.get(chatID)
}

func (s *MemorySessionStore) Set(chatID int64, session Session) {
	s.cache.set(chatID, session)
}

func (s *MemorySessionStore) Delete(chatID int64) {
	s.cache.delete(chatID)
}

func (s *MemorySessionStore) Len() int {
	return s.cache.len()
}

// keyedMutex serializes work per conversation without a global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[int64]*keyedLock{}}
}

func (k *keyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
