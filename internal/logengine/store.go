// Package logengine implements C6 (rules), C7 (correlation store), and C8
// (the engine that drives lines from a logsource.Source through the rules
// and into published events).
package logengine

import (
	"sync"

	"go.fieldops.dev/squadctl/internal/events"
)

// Store is the in-memory correlation state (C7): the live player table plus
// the short-lived tables that correlate multi-line sequences into single
// events. A single mutex guards it since both the engine and the façade's
// RCON reconciliation sweep mutate the player table.
type Store struct {
	mu sync.Mutex

	players          map[string]events.PlayerInfo // key: eosID
	playersByName    map[string]string            // name -> eosID
	playersByCtrl    map[string]string            // controller -> eosID
	joinRequests     map[string]events.PlayerInfo // key: chainID
	sessions         map[string]sessionEntry      // key: victim name
	disconnected     map[string]struct{}          // key: eosID
	roundWinner      *events.RoundResultData
	roundLoser       *events.RoundResultData
	wonBeforeNewGame *wonData
}

type sessionEntry struct {
	chainID            string
	attackerName       string
	attackerEOS        string
	attackerController string
	weapon             string
	teamID             string
}

type wonData struct {
	winner string
	layer  string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		players:       make(map[string]events.PlayerInfo),
		playersByName: make(map[string]string),
		playersByCtrl: make(map[string]string),
		joinRequests:  make(map[string]events.PlayerInfo),
		sessions:      make(map[string]sessionEntry),
		disconnected:  make(map[string]struct{}),
	}
}

// UpsertPlayer merges info into the live player table, indexed by EOSID.
// Fields left empty in info never overwrite a previously known value.
func (s *Store) UpsertPlayer(info events.PlayerInfo) events.PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertPlayerLocked(info)
}

func (s *Store) upsertPlayerLocked(info events.PlayerInfo) events.PlayerInfo {
	key := info.EOSID
	if key == "" {
		key = info.SteamID
	}
	merged := info
	if existing, ok := s.players[key]; ok {
		merged = existing.Merge(info)
	}
	if key != "" {
		s.players[key] = merged
	}
	if merged.Name != "" {
		s.playersByName[merged.Name] = key
	}
	if merged.Controller != "" {
		s.playersByCtrl[merged.Controller] = key
	}
	return merged
}

// PlayerByEOSID looks up a player by their EOSID (or SteamID, for entries
// that never had an EOSID observed).
func (s *Store) PlayerByEOSID(eosID string) (events.PlayerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[eosID]
	return p, ok
}

// PlayerByName looks up a player by their last-known display name.
func (s *Store) PlayerByName(name string) (events.PlayerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.playersByName[name]
	if !ok {
		return events.PlayerInfo{}, false
	}
	p, ok := s.players[key]
	return p, ok
}

// PlayerByController looks up a player by their PlayerController path.
func (s *Store) PlayerByController(controller string) (events.PlayerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.playersByCtrl[controller]
	if !ok {
		return events.PlayerInfo{}, false
	}
	p, ok := s.players[key]
	return p, ok
}

// MarkDisconnected records eosID as disconnected.
func (s *Store) MarkDisconnected(eosID string) {
	if eosID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected[eosID] = struct{}{}
}

// ClearDisconnected removes eosID from the disconnected set, used when a
// player reconnects before their entry ages out.
func (s *Store) ClearDisconnected(eosID string) {
	if eosID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disconnected, eosID)
}

// IsDisconnected reports whether eosID is currently in the disconnected set.
func (s *Store) IsDisconnected(eosID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.disconnected[eosID]
	return ok
}

// StoreJoinRequest records a pending join by chainID, between
// PLAYER_CONNECTED and PLAYER_JOIN_SUCCEEDED.
func (s *Store) StoreJoinRequest(chainID string, p events.PlayerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinRequests[chainID] = p
}

// TakeJoinRequest retrieves and removes the join request for chainID.
func (s *Store) TakeJoinRequest(chainID string) (events.PlayerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.joinRequests[chainID]
	if ok {
		delete(s.joinRequests, chainID)
	}
	return p, ok
}

// StoreSession records/updates the combat session keyed by victim name,
// between a damage/wound line and the death/revive line that resolves it.
func (s *Store) StoreSession(victimName string, e sessionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[victimName] = e
}

// TakeSession retrieves and removes the combat session for victimName.
func (s *Store) TakeSession(victimName string) (sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[victimName]
	if ok {
		delete(s.sessions, victimName)
	}
	return e, ok
}

// PeekSession retrieves the combat session for victimName without removing
// it, for the damaged->wounded chain where the session stays open.
func (s *Store) PeekSession(victimName string) (sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[victimName]
	return e, ok
}

// StoreRoundResult records one team's win/loss line for the current map.
// When both the winning and losing side have reported, it returns the
// winner's result and ok=true so the caller can publish ROUND_WINNER.
func (s *Store) StoreRoundResult(result events.RoundResultData, won bool) (events.RoundResultData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := result
	if won {
		s.roundWinner = &r
	} else {
		s.roundLoser = &r
	}
	if s.roundWinner != nil && s.roundLoser != nil {
		return *s.roundWinner, true
	}
	return events.RoundResultData{}, false
}

// TakeRoundResult retrieves and clears the accumulated winner/loser pair,
// used when the match-state transition confirms the round has ended.
func (s *Store) TakeRoundResult() (winner, loser *events.RoundResultData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	winner, loser = s.roundWinner, s.roundLoser
	s.roundWinner, s.roundLoser = nil, nil
	return winner, loser
}

// StoreWonData remembers a match-winner announcement until TakeWonData
// retrieves it. No rule in the catalog calls either, and NEW_GAME payloads
// carry no winner field.
func (s *Store) StoreWonData(winner, layer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wonBeforeNewGame = &wonData{winner: winner, layer: layer}
}

// TakeWonData retrieves and clears the pending won-data, if any.
func (s *Store) TakeWonData() (winner, layer string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wonBeforeNewGame == nil {
		return "", "", false
	}
	w := s.wonBeforeNewGame
	s.wonBeforeNewGame = nil
	return w.winner, w.layer, true
}

// ClearTransient drops join requests, combat sessions, and the disconnected
// set. Used by both NEW_GAME and LOG_ROTATED. It leaves roundWinner/
// roundLoser and the live player table (reconciled separately by RCON)
// alone; the new-game rule itself purges disconnected players from the
// table and drops the round result.
func (s *Store) ClearTransient() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinRequests = make(map[string]events.PlayerInfo)
	s.sessions = make(map[string]sessionEntry)
	s.disconnected = make(map[string]struct{})
}

// Snapshot returns a copy of the live player table, for the façade's RCON
// reconciliation merge and for optional persistence.
func (s *Store) Snapshot() map[string]events.PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]events.PlayerInfo, len(s.players))
	for k, v := range s.players {
		out[k] = v
	}
	return out
}

// ReconcilePlayer is called by the façade after an RCON ListPlayers sweep to
// merge the authoritative team/squad/role fields into the live table.
func (s *Store) ReconcilePlayer(info events.PlayerInfo) events.PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertPlayerLocked(info)
}
