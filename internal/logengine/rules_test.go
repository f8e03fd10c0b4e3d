package logengine

import (
	"testing"

	"go.fieldops.dev/squadctl/internal/events"
)

type capturingPublisher struct {
	published []events.Event
}

func (c *capturingPublisher) Publish(e events.Event) {
	c.published = append(c.published, e)
}

func ruleByName(t *testing.T, name string) Rule {
	t.Helper()
	for _, r := range Rules() {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no rule named %q", name)
	return Rule{}
}

func TestParseOnlineIDsExtractsEOSAndSteam(t *testing.T) {
	eos, steam, ok := parseOnlineIDs(" EOS: 0002a1b2c3d4e5f60718293a4b5c6d7e steam: 76561198000000000 ")
	if !ok {
		t.Fatal("expected ok for well-formed ids")
	}
	if eos != "0002a1b2c3d4e5f60718293a4b5c6d7e" {
		t.Errorf("unexpected eos: %q", eos)
	}
	if steam != "76561198000000000" {
		t.Errorf("unexpected steam: %q", steam)
	}
}

func TestParseOnlineIDsRejectsInvalid(t *testing.T) {
	_, _, ok := parseOnlineIDs(" INVALID ")
	if ok {
		t.Fatal("expected ok=false for INVALID sentinel")
	}
}

func TestPlayerConnectedRuleStoresJoinRequestAndPublishes(t *testing.T) {
	rule := ruleByName(t, "player-connected")
	line := `[2024.01.15-12.30.45:123][ 42]LogSquad: PostLogin: NewPlayer: BP_PlayerController|Standard_C /Game/Maps/Entry.Entry:PersistentLevel.SomeController (IP: 1.2.3.4 | Online IDs: EOS: 0002a1b2c3d4e5f60718293a4b5c6d7e steam: 76561198000000000)`

	m := rule.regex.FindStringSubmatch(line)
	if m == nil {
		t.Fatal("expected player-connected to match")
	}

	store := NewStore()
	pub := &capturingPublisher{}
	rule.onMatch(m, store, pub)

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.published))
	}
	data, ok := pub.published[0].Data.(events.PlayerConnectedData)
	if !ok {
		t.Fatalf("expected PlayerConnectedData, got %T", pub.published[0].Data)
	}
	if data.ChainID != "42" {
		t.Errorf("expected chainID 42, got %q", data.ChainID)
	}
	if data.Player.EOSID != "0002a1b2c3d4e5f60718293a4b5c6d7e" {
		t.Errorf("unexpected eosID: %q", data.Player.EOSID)
	}

	jr, ok := store.TakeJoinRequest("42")
	if !ok {
		t.Fatal("expected join request stored under chainID 42")
	}
	if jr.EOSID != data.Player.EOSID {
		t.Errorf("join request eosID mismatch: %q vs %q", jr.EOSID, data.Player.EOSID)
	}
}

func TestPlayerJoinSucceededConsumesJoinRequest(t *testing.T) {
	store := NewStore()
	store.StoreJoinRequest("42", events.PlayerInfo{EOSID: "eos1"})

	rule := ruleByName(t, "player-join-succeeded")
	line := `[2024.01.15-12.30.46:000][ 42]LogNet: Join succeeded: SomePlayerName`
	m := rule.regex.FindStringSubmatch(line)
	if m == nil {
		t.Fatal("expected player-join-succeeded to match")
	}

	pub := &capturingPublisher{}
	rule.onMatch(m, store, pub)

	data := pub.published[0].Data.(events.PlayerJoinSucceededData)
	if data.EOSID != "eos1" {
		t.Errorf("expected eosID carried from join request, got %q", data.EOSID)
	}
	if data.Name != "SomePlayerName" {
		t.Errorf("expected name SomePlayerName, got %q", data.Name)
	}

	if _, ok := store.TakeJoinRequest("42"); ok {
		t.Fatal("expected join request consumed")
	}
}

func TestPlayerDiedRulePreservesContollerMisspelling(t *testing.T) {
	rule := ruleByName(t, "player-died")
	line := `[2024.01.15-12.31.00:000][ 10]LogSquadTrace: [DedicatedServer]ASQSoldier::Die(): Player:VictimName KillingDamage=100.000000 from AttackerName (Online IDs: EOS: 0002a1b2c3d4e5f60718293a4b5c6d7e | Contoller ID: ABC123) caused by BP_Weapon_C`

	m := rule.regex.FindStringSubmatch(line)
	if m == nil {
		t.Fatal("expected player-died regex (with literal Contoller misspelling) to match")
	}

	store := NewStore()
	store.StoreSession("VictimName", sessionEntry{attackerName: "AttackerName"})
	pub := &capturingPublisher{}
	rule.onMatch(m, store, pub)

	data := pub.published[0].Data.(events.PlayerDiedData)
	if data.VictimName != "VictimName" {
		t.Errorf("unexpected victim: %q", data.VictimName)
	}
	if _, ok := store.TakeSession("VictimName"); ok {
		t.Fatal("expected combat session consumed on death")
	}
}

func TestRoundTicketsAccumulatesUntilBothSidesReport(t *testing.T) {
	rule := ruleByName(t, "round-tickets")
	store := NewStore()
	pub := &capturingPublisher{}

	winLine := `[2024.01.15-13.00.00:000][ 0]LogSquadGameEvents: Display: Team 1, Irregulars ( Irregulars ) has won the match with 100 Tickets on layer Narva_Invasion_v1 (level Narva)!`
	m := rule.regex.FindStringSubmatch(winLine)
	if m == nil {
		t.Fatal("expected round-tickets to match the win line")
	}
	rule.onMatch(m, store, pub)
	if len(pub.published) != 1 {
		t.Fatalf("expected only ROUND_TICKETS after one side, got %d events", len(pub.published))
	}

	lossLine := `[2024.01.15-13.00.00:000][ 0]LogSquadGameEvents: Display: Team 2, Combined Arms ( Combined Arms ) has lost the match with 40 Tickets on layer Narva_Invasion_v1 (level Narva)!`
	m = rule.regex.FindStringSubmatch(lossLine)
	if m == nil {
		t.Fatal("expected round-tickets to match the loss line")
	}
	rule.onMatch(m, store, pub)

	if len(pub.published) != 3 {
		t.Fatalf("expected ROUND_TICKETS + ROUND_TICKETS + ROUND_WINNER, got %d events", len(pub.published))
	}
	if pub.published[2].Kind != events.KindRoundWinner {
		t.Errorf("expected third event to be ROUND_WINNER, got %s", pub.published[2].Kind)
	}
}

func TestNewGameRuleSkipsTransitionMap(t *testing.T) {
	rule := ruleByName(t, "new-game")
	store := NewStore()
	pub := &capturingPublisher{}

	line := `[2024.01.15-13.00.05:000][ 0]LogWorld: Bringing World /Game/Maps/TransitionMap/TransitionMap.TransitionMap`
	m := rule.regex.FindStringSubmatch(line)
	if m == nil {
		t.Fatal("expected new-game regex to match transition map line")
	}
	rule.onMatch(m, store, pub)

	if len(pub.published) != 0 {
		t.Fatalf("expected transition map to be skipped, got %d events", len(pub.published))
	}
}

func TestNewGameRuleClearsTransientState(t *testing.T) {
	rule := ruleByName(t, "new-game")
	store := NewStore()
	store.StoreJoinRequest("chain1", events.PlayerInfo{EOSID: "eos1"})
	pub := &capturingPublisher{}

	line := `[2024.01.15-13.00.05:000][ 0]LogWorld: Bringing World /Game/Maps/Narva/Narva_Invasion_v1.Narva_Invasion_v1`
	m := rule.regex.FindStringSubmatch(line)
	if m == nil {
		t.Fatal("expected new-game regex to match")
	}
	rule.onMatch(m, store, pub)

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 NEW_GAME event, got %d", len(pub.published))
	}
	data := pub.published[0].Data.(events.NewGameData)
	if data.Level != "Narva" || data.LayerName != "Narva_Invasion_v1" {
		t.Errorf("unexpected new game data: %+v", data)
	}

	if _, ok := store.TakeJoinRequest("chain1"); ok {
		t.Fatal("expected join requests cleared by new-game")
	}
}
