package logengine

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.fieldops.dev/squadctl/internal/events"
)

// linePrefix captures the `[<ts>][<chain>]` prefix common to every rule.
const linePrefix = `^\[([0-9.:-]+)\]\[\s*([0-9]*)\]`

var (
	eosRe   = regexp.MustCompile(`EOS:\s*([0-9a-fA-F]{32})`)
	steamRe = regexp.MustCompile(`steam:\s*([0-9]+)`)
)

// parseOnlineIDs extracts the EOS/Steam ids out of an "Online IDs: ..."
// capture. ok is false when the substring contains the server's INVALID
// sentinel, per §6.
func parseOnlineIDs(raw string) (eosID, steamID string, ok bool) {
	if strings.Contains(raw, "INVALID") {
		return "", "", false
	}
	if m := eosRe.FindStringSubmatch(raw); m != nil {
		eosID = m[1]
	}
	if m := steamRe.FindStringSubmatch(raw); m != nil {
		steamID = m[1]
	}
	return eosID, steamID, true
}

// Rule pairs a compiled pattern with the handler that turns a match into
// store updates and published events. Rules are evaluated in order; the
// first match wins.
type Rule struct {
	Name    string
	regex   *regexp.Regexp
	onMatch func(m []string, store *Store, pub events.Publisher)
}

// parseTimestamp parses the "YYYY.MM.DD-HH.MM.SS:mmm" timestamp (the ':mmm'
// millisecond suffix isn't a fraction Go's time layout can express directly
// since it isn't preceded by a '.', so it's split off and added separately).
func parseTimestamp(raw string) time.Time {
	base := raw
	var ms int
	if idx := strings.LastIndex(raw, ":"); idx != -1 {
		base = raw[:idx]
		ms, _ = strconv.Atoi(raw[idx+1:])
	}
	t, err := time.Parse("2006.01.02-15.04.05", base)
	if err != nil {
		return time.Now().UTC()
	}
	return t.Add(time.Duration(ms) * time.Millisecond)
}

// Rules returns the ordered rule catalog (§4.6). Names are fixed and match
// the taxonomy's event kinds one-to-one, except round-tickets, which
// publishes ROUND_TICKETS for every line and also ROUND_WINNER once both
// sides of the round have been stored.
func Rules() []Rule {
	return []Rule{
		{
			Name:  "player-connected",
			regex: regexp.MustCompile(linePrefix + `LogSquad: PostLogin: NewPlayer: (?:BP_)?PlayerController(?:\|.+)_C .+PersistentLevel\.([^\s]+) \(IP: ([\d.]+) \| Online IDs:([^)\|]+)\)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, chainID, controller, ip, onlineIDs := m[1], strings.TrimSpace(m[2]), m[3], m[4], m[5]
				eosID, steamID, ok := parseOnlineIDs(onlineIDs)
				if !ok {
					return
				}
				store.ClearDisconnected(eosID)

				info := events.PlayerInfo{EOSID: eosID, SteamID: steamID, Controller: controller, IP: ip}
				store.StoreJoinRequest(chainID, info)
				store.UpsertPlayer(info)

				pub.Publish(events.New(events.KindPlayerConnected, parseTimestamp(ts), m[0], events.PlayerConnectedData{
					ChainID: chainID,
					Player:  info,
				}))
			},
		},
		{
			Name:  "player-disconnected",
			regex: regexp.MustCompile(linePrefix + `LogNet: UChannel::Close: Sending CloseBunch\..+RemoteAddr: ([\d.]+).+PC: (\w+PlayerController(?:\|.+)_C_\d+),.+UniqueId: RedpointEOS:([0-9a-f]+)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, ip, _, eosID := m[1], m[3], m[4], m[5]
				store.MarkDisconnected(eosID)

				pub.Publish(events.New(events.KindPlayerDisconnected, parseTimestamp(ts), m[0], events.PlayerDisconnectedData{
					EOSID: eosID,
					IP:    ip,
				}))
			},
		},
		{
			Name:  "player-join-succeeded",
			regex: regexp.MustCompile(linePrefix + `LogNet: Join succeeded: (.+)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, chainID, suffix := m[1], strings.TrimSpace(m[2]), m[3]

				data := events.PlayerJoinSucceededData{ChainID: chainID, Name: suffix}
				if p, ok := store.TakeJoinRequest(chainID); ok {
					data.EOSID = p.EOSID
					p.Name = suffix
					store.UpsertPlayer(p)
					pub.Publish(events.New(events.KindPlayerJoinSucceeded, parseTimestamp(ts), m[0], data))
				}
			},
		},
		{
			Name:  "player-possess",
			regex: regexp.MustCompile(linePrefix + `LogSquadTrace: \[DedicatedServer\](?:ASQPlayerController::)?OnPossess\(\): PC=(.+) \(Online IDs:([^)\|]+)\| Controller ID: ([\w\d]+)\) Pawn=([A-Za-z0-9_]+)_C(?:_[0-9]+)? FullPath=(.+)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, controller, onlineIDs, pawn := m[1], m[3], m[4], m[6]
				eosID, steamID, ok := parseOnlineIDs(onlineIDs)
				if !ok {
					return
				}
				store.UpsertPlayer(events.PlayerInfo{EOSID: eosID, SteamID: steamID, Controller: controller})

				pub.Publish(events.New(events.KindPlayerPossess, parseTimestamp(ts), m[0], events.PlayerPossessData{
					PlayerController: controller,
					EOSID:            eosID,
					SteamID:          steamID,
					PawnClass:        pawn,
				}))
			},
		},
		{
			Name:  "player-unpossess",
			regex: regexp.MustCompile(linePrefix + `LogSquadTrace: \[DedicatedServer\](?:ASQPlayerController::)?OnUnPossess\(\): PC=(.+) \(Online IDs:([^)\|]+)\| Controller ID: ([\w\d]+)\)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, controller, onlineIDs := m[1], m[3], m[4]
				eosID, steamID, ok := parseOnlineIDs(onlineIDs)
				if !ok {
					return
				}

				pub.Publish(events.New(events.KindPlayerUnpossess, parseTimestamp(ts), m[0], events.PlayerUnpossessData{
					PlayerController: controller,
					EOSID:            eosID,
					SteamID:          steamID,
				}))
			},
		},
		{
			Name:  "player-damaged",
			regex: regexp.MustCompile(linePrefix + `LogSquad: Player:(.+) ActualDamage=([0-9.]+) from (.+) \(Online IDs:([^\|]+)\| Player Controller ID: ([^ ]+)\)caused by ([A-Za-z_0-9-]+)_C`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, victim, dmgStr, attacker, onlineIDs, controller, weapon := m[1], m[3], m[4], m[5], m[6], m[7], m[8]
				eosID, _, ok := parseOnlineIDs(onlineIDs)
				if !ok {
					return
				}
				damage, _ := strconv.ParseFloat(dmgStr, 64)

				if eosID != "" {
					store.UpsertPlayer(events.PlayerInfo{EOSID: eosID, Controller: controller})
				}
				store.StoreSession(victim, sessionEntry{attackerName: attacker, attackerEOS: eosID, attackerController: controller, weapon: weapon})

				data := events.PlayerDamagedData{VictimName: victim, Damage: damage, AttackerName: attacker, AttackerEOS: eosID, Controller: controller, Weapon: weapon}
				pub.Publish(events.New(events.KindPlayerDamaged, parseTimestamp(ts), m[0], data))
			},
		},
		{
			Name:  "player-wounded",
			regex: regexp.MustCompile(linePrefix + `LogSquadTrace: \[DedicatedServer\](?:ASQSoldier::)?Wound\(\): Player:(.+) KillingDamage=(?:-)*([0-9.]+) from ([A-Za-z_0-9]+) \(Online IDs:([^)\|]+)\| Controller ID: ([\w\d]+)\) caused by ([A-Za-z_0-9-]+)_C`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, victim, dmgStr, attacker, onlineIDs, controller, weapon := m[1], m[3], m[4], m[5], m[6], m[7], m[8]
				eosID, _, ok := parseOnlineIDs(onlineIDs)
				if !ok {
					return
				}
				damage, _ := strconv.ParseFloat(dmgStr, 64)

				existing, _ := store.PeekSession(victim)
				existing.attackerName = attacker
				existing.attackerEOS = eosID
				existing.attackerController = controller
				existing.weapon = weapon
				store.StoreSession(victim, existing)

				pub.Publish(events.New(events.KindPlayerWounded, parseTimestamp(ts), m[0], events.PlayerWoundedData{
					VictimName: victim, Damage: damage, AttackerName: attacker, AttackerEOS: eosID, Controller: controller, Weapon: weapon,
				}))
			},
		},
		{
			Name:  "player-died",
			regex: regexp.MustCompile(linePrefix + `LogSquadTrace: \[DedicatedServer\](?:ASQSoldier::)?Die\(\): Player:(.+) KillingDamage=(?:-)*([0-9.]+) from ([A-Za-z_0-9]+) \(Online IDs:([^)\|]+)\| Contoller ID: ([\w\d]+)\) caused by ([A-Za-z_0-9-]+)_C`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, victim, attacker, onlineIDs, controller, weapon := m[1], m[3], m[5], m[6], m[7], m[8]
				eosID, _, ok := parseOnlineIDs(onlineIDs)
				if !ok {
					return
				}
				if sess, hasSess := store.TakeSession(victim); hasSess && sess.attackerName != "" {
					attacker = sess.attackerName
				}

				suicide := victim == attacker || (eosID != "" && func() bool {
					if v, vok := store.PlayerByName(victim); vok {
						return v.EOSID == eosID
					}
					return false
				}())

				pub.Publish(events.New(events.KindPlayerDied, parseTimestamp(ts), m[0], events.PlayerDiedData{
					VictimName: victim, AttackerName: attacker, Controller: controller, Weapon: weapon, Suicide: suicide,
				}))
			},
		},
		{
			Name:  "player-revived",
			regex: regexp.MustCompile(linePrefix + `LogSquadTrace: \[DedicatedServer\](?:ASQSoldier::)?Revive\(\): Player:(.+) RevivedBy:(.+) \(Online IDs:([^)\|]+)\| Controller ID: ([\w\d]+)\)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, victim, reviver, onlineIDs, controller := m[1], m[3], m[4], m[5], m[6]
				_, _, ok := parseOnlineIDs(onlineIDs)
				if !ok {
					return
				}
				store.TakeSession(victim)

				pub.Publish(events.New(events.KindPlayerRevived, parseTimestamp(ts), m[0], events.PlayerRevivedData{
					VictimName: victim, ReviverName: reviver, Controller: controller,
				}))
			},
		},
		{
			Name:  "deployable-damaged",
			regex: regexp.MustCompile(linePrefix + `LogSquadTrace: \[DedicatedServer\](?:ASQDeployable::)?TakeDamage\(\): ([A-Za-z0-9_]+)_C_[0-9]+: ([0-9.]+) damage attempt by causer ([A-Za-z0-9_]+)_C_[0-9]+ instigator (.+) with damage type ([A-Za-z0-9_]+)_C health remaining ([0-9.]+)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, deployable, dmgStr, weapon, attacker, damageType, remainStr := m[1], m[3], m[4], m[5], m[6], m[7], m[8]
				damage, _ := strconv.ParseFloat(dmgStr, 64)
				remain, _ := strconv.ParseFloat(remainStr, 64)

				pub.Publish(events.New(events.KindDeployableDamaged, parseTimestamp(ts), m[0], events.DeployableDamagedData{
					Deployable: deployable, Damage: damage, Weapon: weapon, AttackerName: attacker, DamageType: damageType, HealthRemain: remain,
				}))
			},
		},
		{
			Name:  "round-tickets",
			regex: regexp.MustCompile(linePrefix + `LogSquadGameEvents: Display: Team ([0-9]), (.*) \( ?(.*?) ?\) has (won|lost) the match with ([0-9]+) Tickets on layer (.*) \(level (.*)\)!`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, team, subfaction, faction, action, tickets, layer, level := m[1], m[3], m[4], m[5], m[6], m[7], m[8], m[9]

				result := events.RoundResultData{
					Team: team, Subfaction: subfaction, Faction: faction, Action: action, Tickets: tickets, Layer: layer, Level: level,
				}

				pub.Publish(events.New(events.KindRoundTickets, parseTimestamp(ts), m[0], result))

				if winner, complete := store.StoreRoundResult(result, action == "won"); complete {
					pub.Publish(events.New(events.KindRoundWinner, parseTimestamp(ts), m[0], winner))
				}
			},
		},
		{
			Name:  "server-tick-rate",
			regex: regexp.MustCompile(linePrefix + `LogSquad: USQGameState: Server Tick Rate: ([0-9.]+)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, rateStr := m[1], m[3]
				rate, _ := strconv.ParseFloat(rateStr, 64)
				pub.Publish(events.New(events.KindServerTickRate, parseTimestamp(ts), m[0], events.ServerTickRateData{TickRate: rate}))
			},
		},
		{
			Name:  "admin-broadcast",
			regex: regexp.MustCompile(linePrefix + `LogSquad: ADMIN COMMAND: Message broadcasted <(.+)> from (.+)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts, message, from := m[1], m[3], m[4]
				pub.Publish(events.New(events.KindAdminBroadcast, parseTimestamp(ts), m[0], events.AdminBroadcastData{Message: message, From: from}))
			},
		},
		{
			// round-ended fires on the match-state transition line and
			// publishes whatever winner/loser round-tickets has stored for the
			// current map (either may be nil), clearing them from the store.
			Name:  "round-ended",
			regex: regexp.MustCompile(linePrefix + `LogGameState: Match State Changed from InProgress to WaitingPostMatch`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				ts := m[1]
				winner, loser := store.TakeRoundResult()
				pub.Publish(events.New(events.KindRoundEnded, parseTimestamp(ts), m[0], events.RoundEndedData{Winner: winner, Loser: loser}))
			},
		},
		{
			Name:  "new-game",
			regex: regexp.MustCompile(linePrefix + `LogWorld: Bringing World \/([A-Za-z0-9]+)\/(?:Maps\/)?([A-Za-z0-9_-]+)\/(?:.+\/)?([A-Za-z0-9_-]+)(?:\.[A-Za-z0-9_-]+)`),
			onMatch: func(m []string, store *Store, pub events.Publisher) {
				layer := m[5]
				if layer == "TransitionMap" {
					return
				}
				ts := m[1]

				// players still in the disconnected set leave the live table
				store.mu.Lock()
				for eosID := range store.disconnected {
					p := store.players[eosID]
					if store.playersByName[p.Name] == eosID {
						delete(store.playersByName, p.Name)
					}
					if store.playersByCtrl[p.Controller] == eosID {
						delete(store.playersByCtrl, p.Controller)
					}
					delete(store.players, eosID)
				}
				store.mu.Unlock()

				store.ClearTransient()
				store.TakeRoundResult() // the previous map's round result is dropped

				pub.Publish(events.New(events.KindNewGame, parseTimestamp(ts), m[0], events.NewGameData{
					Level:       m[4],
					LayerName:   layer,
					IsFirstGame: false, // always false: see open-question decision in the design notes.
				}))
			},
		},
	}
}
