package avm

import (
	"maps"
	"slices"
)

// AppState holds the persistent state of one application.
type AppState struct {
	AppID  uint64
	Global *ByteArrayMap
	Local  map[string]*ByteArrayMap
	Box    *ByteArrayMap
}

func NewAppState(appID uint64) *AppState {
	return &AppState{
		AppID:  appID,
		Global: NewByteArrayMap(),
		Local:  make(map[string]*ByteArrayMap),
		Box:    NewByteArrayMap(),
	}
}

func (s *AppState) LocalState(account string) (*ByteArrayMap, bool) {
	m, ok := s.Local[account]
	return m, ok
}

// EnsureLocal returns the local state of the account, creating an empty one when absent.
func (s *AppState) EnsureLocal(account string) *ByteArrayMap {
	m, ok := s.Local[account]
	if !ok {
		m = NewByteArrayMap()
		s.Local[account] = m
	}
	return m
}

// Accounts returns the sorted addresses that own local state for this application.
func (s *AppState) Accounts() []string {
	return slices.Sorted(maps.Keys(s.Local))
}

func (s *AppState) Clone() *AppState {
	cloned := &AppState{
		AppID:  s.AppID,
		Global: s.Global.Clone(),
		Local:  make(map[string]*ByteArrayMap, len(s.Local)),
		Box:    s.Box.Clone(),
	}
	for account, local := range s.Local {
		cloned.Local[account] = local.Clone()
	}
	return cloned
}

// AppStateStore is the set of application states of one snapshot.
type AppStateStore struct {
	apps map[uint64]*AppState
}

func NewAppStateStore() *AppStateStore {
	return &AppStateStore{apps: make(map[uint64]*AppState)}
}

func (s *AppStateStore) Get(appID uint64) (*AppState, bool) {
	st, ok := s.apps[appID]
	return st, ok
}

// GetOrEmpty never fails: unknown applications read as empty state.
func (s *AppStateStore) GetOrEmpty(appID uint64) *AppState {
	if st, ok := s.apps[appID]; ok {
		return st
	}
	return NewAppState(appID)
}

func (s *AppStateStore) Ensure(appID uint64) *AppState {
	st, ok := s.apps[appID]
	if !ok {
		st = NewAppState(appID)
		s.apps[appID] = st
	}
	return st
}

func (s *AppStateStore) AppIDs() []uint64 {
	return slices.Sorted(maps.Keys(s.apps))
}

func (s *AppStateStore) Len() int {
	return len(s.apps)
}

func (s *AppStateStore) Clone() *AppStateStore {
	cloned := &AppStateStore{apps: make(map[uint64]*AppState, len(s.apps))}
	for id, st := range s.apps {
		cloned.apps[id] = st.Clone()
	}
	return cloned
}
