// Package facade composes the RCON session, the log-parse engine, and the
// event bus into the single object external collaborators (an HTTP/WebSocket
// API, plugins) use to issue commands and subscribe to events (C10).
package facade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"go.fieldops.dev/squadctl/internal/commands"
	"go.fieldops.dev/squadctl/internal/events"
	"go.fieldops.dev/squadctl/internal/logengine"
	"go.fieldops.dev/squadctl/internal/logsource"
	"go.fieldops.dev/squadctl/internal/rcon"
)

const reconcilePeriod = 30 * time.Second

// Config bundles the settings needed to start a Server.
type Config struct {
	Rcon      rcon.Config
	LogSource logsource.Config
	BusQueue  int
}

// Server is the façade (C10): one object through which callers issue RCON
// commands and subscribe to the event taxonomy, with its own lifecycle.
type Server struct {
	ID uuid.UUID

	cfg     Config
	session *rcon.Session
	bus     *events.Bus
	store   *logengine.Store
	engine  *logengine.Engine
	source  logsource.Source

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New builds a Server; it does not start any goroutines until Start is called.
func New(cfg Config) (*Server, error) {
	bus := events.NewBus(cfg.BusQueue)
	cfg.Rcon.Publisher = bus

	source, err := logsource.New(cfg.LogSource)
	if err != nil {
		return nil, fmt.Errorf("facade: build log source: %w", err)
	}

	store := logengine.NewStore()
	return &Server{
		ID:      uuid.New(),
		cfg:     cfg,
		session: rcon.NewSession(cfg.Rcon),
		bus:     bus,
		store:   store,
		engine:  logengine.NewEngine(store, bus),
		source:  source,
	}, nil
}

// Start runs the log engine and reconciliation loop as members of an
// errgroup.Group and starts the RCON session, which connects on its own
// goroutine, mirroring this lineage's top-level
// service composition (one goroutine per subsystem, blocking on ctx.Done
// before tearing itself down). It returns once all of them have been
// launched; connection/authentication happen asynchronously and are
// observable via RCON_CONNECTED/RCON_ERROR.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	s.group = group

	s.session.Start(groupCtx)

	group.Go(func() error {
		if err := s.engine.Run(groupCtx, s.source); err != nil && groupCtx.Err() == nil {
			log.Error().Err(err).Msg("facade: log engine stopped unexpectedly")
			return err
		}
		return nil
	})

	unsubscribe := s.bus.Subscribe(events.KindNewGame, func(events.Event) {
		s.refreshPlayers(groupCtx)
		s.refreshSquads(groupCtx)
	})

	group.Go(func() error {
		defer unsubscribe()
		s.reconcileLoop(groupCtx)
		return nil
	})
}

func (s *Server) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(reconcilePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.session.State() != rcon.StateReady {
				continue
			}
			s.refreshPlayers(ctx)
			s.refreshSquads(ctx)
		}
	}
}

// Stop tears down the log engine, RCON session, and transport in reverse
// order, giving in-flight commands up to drain before cancelling the context
// and waiting for every subsystem goroutine in the errgroup to exit.
func (s *Server) Stop(drain time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	s.session.Stop(drain)
	if s.cancel != nil {
		s.cancel()
	}
	if s.source != nil {
		_ = s.source.Close()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
}

// Execute runs an arbitrary RCON command and returns its raw text response.
func (s *Server) Execute(ctx context.Context, cmd string) (string, error) {
	return s.session.Execute(ctx, cmd)
}

// Subscribe delegates to the event bus.
func (s *Server) Subscribe(kind events.Kind, handler func(events.Event)) func() {
	return s.bus.Subscribe(kind, handler)
}

// Store exposes the correlation store's read surface for API consumers that
// need the live player table (e.g. a ListPlayers cache without issuing RCON).
func (s *Server) Store() *logengine.Store {
	return s.store
}

// ServerInfo returns the latest ShowServerInfo snapshot, refreshed by the
// session's keep-alive ping (§4.4).
func (s *Server) ServerInfo() rcon.ServerInfo {
	return s.session.ServerInfo()
}

func (s *Server) refreshPlayers(ctx context.Context) {
	raw, err := s.Execute(ctx, "ListPlayers")
	if err != nil {
		log.Warn().Err(err).Msg("facade: refreshPlayers failed")
		return
	}
	resp := rcon.ParseListPlayers(raw)
	for _, p := range resp.Players {
		s.store.ReconcilePlayer(events.PlayerInfo{
			EOSID:         p.EOSID,
			SteamID:       p.SteamID,
			Name:          p.Name,
			TeamID:        p.TeamID,
			SquadID:       p.SquadID,
			Role:          p.Role,
			IsSquadLeader: p.IsLeader,
		})
	}
	for _, d := range resp.Disconnected {
		s.store.MarkDisconnected(d.EOSID)
	}
}

func (s *Server) refreshSquads(ctx context.Context) {
	if _, err := s.Execute(ctx, "ListSquads"); err != nil {
		log.Warn().Err(err).Msg("facade: refreshSquads failed")
	}
	// Squad roster reconciliation against the store is left to API-layer
	// consumers of ListSquads's parsed rcon.Squad slice; the store only
	// tracks per-player team/squad/role fields (see refreshPlayers).
}

// --- High-level command wrappers, sourced from commands.CommandMatrix so the
// wire string and its catalog entry cannot drift apart. ---

func (s *Server) commandSyntax(name string) string {
	info, ok := commands.GetCommandByName(name)
	if !ok {
		return name
	}
	return info.Syntax
}

func buildCommand(syntaxTemplate string, args ...string) string {
	parts := strings.Fields(syntaxTemplate)
	name := parts[0]
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

// Warn sends an AdminWarn to nameOrSteamID with the given reason.
func (s *Server) Warn(ctx context.Context, nameOrSteamID, reason string) (string, error) {
	return s.Execute(ctx, buildCommand(s.commandSyntax("AdminWarn"), nameOrSteamID, reason))
}

// Kick sends an AdminKick for nameOrSteamID with the given reason.
func (s *Server) Kick(ctx context.Context, nameOrSteamID, reason string) (string, error) {
	return s.Execute(ctx, buildCommand(s.commandSyntax("AdminKick"), nameOrSteamID, reason))
}

// Ban sends an AdminBan for nameOrSteamID for the given length (e.g. "0",
// "1d", "1M") and reason.
func (s *Server) Ban(ctx context.Context, nameOrSteamID, length, reason string) (string, error) {
	return s.Execute(ctx, buildCommand(s.commandSyntax("AdminBan"), nameOrSteamID, length, reason))
}

// Broadcast sends an AdminBroadcast to the whole server.
func (s *Server) Broadcast(ctx context.Context, message string) (string, error) {
	return s.Execute(ctx, buildCommand(s.commandSyntax("AdminBroadcast"), message))
}

// ChangeLayer travels to layerName immediately.
func (s *Server) ChangeLayer(ctx context.Context, layerName string) (string, error) {
	return s.Execute(ctx, buildCommand(s.commandSyntax("AdminChangeLayer"), layerName))
}

// SetNextLayer queues layerName for after the current match ends.
func (s *Server) SetNextLayer(ctx context.Context, layerName string) (string, error) {
	return s.Execute(ctx, buildCommand(s.commandSyntax("AdminSetNextLayer"), layerName))
}

// ForceTeamChange moves nameOrSteamID to the opposing team.
func (s *Server) ForceTeamChange(ctx context.Context, nameOrSteamID string) (string, error) {
	return s.Execute(ctx, buildCommand(s.commandSyntax("AdminForceTeamChange"), nameOrSteamID))
}

// DisbandSquad disbands squadIndex on teamNumber (1 or 2).
func (s *Server) DisbandSquad(ctx context.Context, teamNumber, squadIndex string) (string, error) {
	return s.Execute(ctx, buildCommand(s.commandSyntax("AdminDisbandSquad"), teamNumber, squadIndex))
}
