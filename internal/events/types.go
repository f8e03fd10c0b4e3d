// Package events implements the ordered, typed publish/subscribe bus (C9)
// that sits between the log-parse engine, the RCON session, and everything
// that consumes domain events.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the shape of an event's Data payload. The taxonomy is
// closed and fixed; handlers dispatch on it like a tagged union.
type Kind string

const (
	KindPlayerConnected     Kind = "PLAYER_CONNECTED"
	KindPlayerDisconnected  Kind = "PLAYER_DISCONNECTED"
	KindPlayerJoinSucceeded Kind = "PLAYER_JOIN_SUCCEEDED"
	KindPlayerPossess       Kind = "PLAYER_POSSESS"
	KindPlayerUnpossess     Kind = "PLAYER_UNPOSSESS"
	KindPlayerDamaged       Kind = "PLAYER_DAMAGED"
	KindPlayerWounded       Kind = "PLAYER_WOUNDED"
	KindPlayerDied          Kind = "PLAYER_DIED"
	KindPlayerRevived       Kind = "PLAYER_REVIVED"
	KindDeployableDamaged   Kind = "DEPLOYABLE_DAMAGED"
	KindChatMessage         Kind = "CHAT_MESSAGE"
	KindChatCommand         Kind = "CHAT_COMMAND"
	KindNewGame             Kind = "NEW_GAME"
	KindRoundEnded          Kind = "ROUND_ENDED"
	KindRoundTickets        Kind = "ROUND_TICKETS"
	KindRoundWinner         Kind = "ROUND_WINNER"
	KindServerTickRate      Kind = "SERVER_TICK_RATE"
	KindSquadCreated        Kind = "SQUAD_CREATED"
	KindAdminBroadcast      Kind = "ADMIN_BROADCAST"
	KindAdminCamera         Kind = "ADMIN_CAMERA"
	KindPlayerKicked        Kind = "PLAYER_KICKED"
	KindPlayerWarned        Kind = "PLAYER_WARNED"
	KindPlayerBanned        Kind = "PLAYER_BANNED"
	KindRconConnected       Kind = "RCON_CONNECTED"
	KindRconDisconnected    Kind = "RCON_DISCONNECTED"
	KindRconError           Kind = "RCON_ERROR"
	KindLogRotated          Kind = "LOG_ROTATED"
)

// Event is the envelope every component publishes to the bus. Time and Raw
// are common to all log-origin events; RCON-origin events set Raw to the
// verbatim chat/response body where one exists.
type Event struct {
	ID   uuid.UUID
	Kind Kind
	Time time.Time
	Raw  string
	Data any
}

// New stamps an Event with a fresh ID.
func New(kind Kind, at time.Time, raw string, data any) Event {
	return Event{ID: uuid.New(), Kind: kind, Time: at, Raw: raw, Data: data}
}

// Publisher is implemented by the bus; producers only need this narrow view.
type Publisher interface {
	Publish(Event)
}

// --- Payload types, one per Kind above that isn't self-evident from Kind alone. ---

// PlayerInfo is the partial-or-complete player identity used across the
// taxonomy and the live player table.
type PlayerInfo struct {
	EOSID         string
	SteamID       string
	Name          string
	Controller    string
	IP            string
	Suffix        string
	TeamID        string
	SquadID       string
	Role          string
	IsSquadLeader bool
}

// Merge copies non-empty/non-zero fields of other into a copy of p, never
// overwriting a populated field with an empty one.
func (p PlayerInfo) Merge(other PlayerInfo) PlayerInfo {
	out := p
	if other.EOSID != "" {
		out.EOSID = other.EOSID
	}
	if other.SteamID != "" {
		out.SteamID = other.SteamID
	}
	if other.Name != "" {
		out.Name = other.Name
	}
	if other.Controller != "" {
		out.Controller = other.Controller
	}
	if other.IP != "" {
		out.IP = other.IP
	}
	if other.Suffix != "" {
		out.Suffix = other.Suffix
	}
	if other.TeamID != "" {
		out.TeamID = other.TeamID
	}
	if other.SquadID != "" {
		out.SquadID = other.SquadID
	}
	if other.Role != "" {
		out.Role = other.Role
	}
	if other.IsSquadLeader {
		out.IsSquadLeader = true
	}
	return out
}

type PlayerConnectedData struct {
	ChainID string
	Player  PlayerInfo
}

type PlayerDisconnectedData struct {
	EOSID string
	IP    string
}

type PlayerJoinSucceededData struct {
	ChainID string
	EOSID   string
	Name    string
}

type PlayerPossessData struct {
	PlayerController string
	EOSID            string
	SteamID          string
	PawnClass        string
}

type PlayerUnpossessData struct {
	PlayerController string
	EOSID            string
	SteamID          string
}

type DamageInfo struct {
	VictimName   string
	Damage       float64
	AttackerName string
	AttackerEOS  string
	Controller   string
	Weapon       string
}

type PlayerDamagedData DamageInfo
type PlayerWoundedData DamageInfo

type PlayerDiedData struct {
	VictimName   string
	AttackerName string
	Controller   string
	Weapon       string
	Suicide      bool
}

type PlayerRevivedData struct {
	VictimName  string
	ReviverName string
	Controller  string
}

type DeployableDamagedData struct {
	Deployable   string
	Damage       float64
	Weapon       string
	AttackerName string
	DamageType   string
	HealthRemain float64
}

type ChatMessageData struct {
	ChatType string
	EOSID    string
	SteamID  string
	Name     string
	Message  string
}

type ChatCommandData struct {
	ChatMessageData
	Command string
	Args    string
}

type NewGameData struct {
	Level       string
	LayerName   string
	IsFirstGame bool
}

type RoundResultData struct {
	Team       string
	Subfaction string
	Faction    string
	Action     string
	Tickets    string
	Layer      string
	Level      string
}

type RoundEndedData struct {
	Winner *RoundResultData
	Loser  *RoundResultData
}

type ServerTickRateData struct {
	TickRate float64
}

type SquadCreatedData struct {
	PlayerName string
	EOSID      string
	SteamID    string
	SquadID    string
	SquadName  string
	TeamName   string
}

type AdminBroadcastData struct {
	Message string
	From    string
}

type AdminCameraData struct {
	Possessed bool
	EOSID     string
	SteamID   string
	AdminName string
}

type PlayerKickedData struct {
	PlayerID   string
	EOSID      string
	SteamID    string
	PlayerName string
}

type PlayerWarnedData struct {
	PlayerName string
	Message    string
}

type PlayerBannedData struct {
	PlayerID   string
	SteamID    string
	PlayerName string
	Interval   int
}

type RconConnectedData struct {
	Reconnect bool
}

type RconDisconnectedData struct {
	Reason        string
	WillReconnect bool
}

type RconErrorData struct {
	Fatal  bool
	Reason string
}

type LogRotatedData struct {
	Path string
}
