package logengine

import (
	"testing"

	"go.fieldops.dev/squadctl/internal/events"
)

func TestStoreUpsertPlayerMergesByEOSID(t *testing.T) {
	s := NewStore()

	s.UpsertPlayer(events.PlayerInfo{EOSID: "eos1", IP: "1.2.3.4"})
	merged := s.UpsertPlayer(events.PlayerInfo{EOSID: "eos1", Name: "Alice"})

	if merged.IP != "1.2.3.4" {
		t.Errorf("expected IP preserved from first upsert, got %q", merged.IP)
	}
	if merged.Name != "Alice" {
		t.Errorf("expected Name set from second upsert, got %q", merged.Name)
	}

	byName, ok := s.PlayerByName("Alice")
	if !ok {
		t.Fatal("expected lookup by name to find player")
	}
	if byName.EOSID != "eos1" {
		t.Errorf("expected EOSID eos1, got %q", byName.EOSID)
	}
}

func TestStoreDisconnectedSet(t *testing.T) {
	s := NewStore()

	if s.IsDisconnected("eos1") {
		t.Fatal("expected eos1 not disconnected initially")
	}

	s.MarkDisconnected("eos1")
	if !s.IsDisconnected("eos1") {
		t.Fatal("expected eos1 disconnected after MarkDisconnected")
	}

	s.ClearDisconnected("eos1")
	if s.IsDisconnected("eos1") {
		t.Fatal("expected eos1 cleared after ClearDisconnected")
	}
}

func TestStoreJoinRequestRemoveAfterGet(t *testing.T) {
	s := NewStore()

	s.StoreJoinRequest("chain1", events.PlayerInfo{EOSID: "eos1"})

	p, ok := s.TakeJoinRequest("chain1")
	if !ok || p.EOSID != "eos1" {
		t.Fatalf("expected join request for chain1, got %+v ok=%v", p, ok)
	}

	if _, ok := s.TakeJoinRequest("chain1"); ok {
		t.Fatal("expected join request to be consumed after first take")
	}
}

func TestStoreSessionPeekAndTake(t *testing.T) {
	s := NewStore()

	s.StoreSession("Victim", sessionEntry{attackerName: "Attacker", weapon: "BP_AK"})

	peeked, ok := s.PeekSession("Victim")
	if !ok || peeked.attackerName != "Attacker" {
		t.Fatalf("expected peek to find session, got %+v ok=%v", peeked, ok)
	}

	taken, ok := s.TakeSession("Victim")
	if !ok || taken.weapon != "BP_AK" {
		t.Fatalf("expected take to find session, got %+v ok=%v", taken, ok)
	}

	if _, ok := s.TakeSession("Victim"); ok {
		t.Fatal("expected session to be consumed after take")
	}
}

func TestStoreRoundResultFiresOnlyOnceBothSidesReport(t *testing.T) {
	s := NewStore()

	winnerResult := events.RoundResultData{Team: "1", Action: "won", Tickets: "100"}
	loserResult := events.RoundResultData{Team: "2", Action: "lost", Tickets: "40"}

	if _, ok := s.StoreRoundResult(winnerResult, true); ok {
		t.Fatal("expected no winner until both sides have reported")
	}

	winner, ok := s.StoreRoundResult(loserResult, false)
	if !ok {
		t.Fatal("expected winner once both sides reported")
	}
	if winner.Team != "1" {
		t.Errorf("expected winner team 1, got %q", winner.Team)
	}

	gotWinner, gotLoser := s.TakeRoundResult()
	if gotWinner == nil || gotWinner.Team != "1" {
		t.Fatalf("expected taken winner team 1, got %+v", gotWinner)
	}
	if gotLoser == nil || gotLoser.Team != "2" {
		t.Fatalf("expected taken loser team 2, got %+v", gotLoser)
	}

	if w, l := s.TakeRoundResult(); w != nil || l != nil {
		t.Fatalf("expected round result cleared after take, got winner=%+v loser=%+v", w, l)
	}
}

func TestStoreClearTransientPreservesPlayersAndRoundResult(t *testing.T) {
	s := NewStore()

	s.UpsertPlayer(events.PlayerInfo{EOSID: "eos1", Name: "Alice"})
	s.StoreJoinRequest("chain1", events.PlayerInfo{EOSID: "eos2"})
	s.StoreSession("Victim", sessionEntry{attackerName: "Attacker"})
	s.MarkDisconnected("eos3")
	s.StoreRoundResult(events.RoundResultData{Team: "1"}, true)

	s.ClearTransient()

	if _, ok := s.TakeJoinRequest("chain1"); ok {
		t.Fatal("expected join requests cleared")
	}
	if _, ok := s.TakeSession("Victim"); ok {
		t.Fatal("expected sessions cleared")
	}
	if s.IsDisconnected("eos3") {
		t.Fatal("expected disconnected set cleared")
	}
	if _, ok := s.PlayerByEOSID("eos1"); !ok {
		t.Fatal("expected live player table preserved across ClearTransient")
	}
	if w, _ := s.TakeRoundResult(); w == nil {
		t.Fatal("expected roundWinner preserved across ClearTransient")
	}
}
