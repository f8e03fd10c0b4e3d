// Package valkeysnapshot persists the correlation store's live player table
// to Valkey so it survives a process restart, and restores it on startup.
// This is the optional persistence layer the domain stack documents:
// internal/logengine.Store stays the authoritative in-memory source of
// truth; this package only mirrors Store.Snapshot() out and replays it back
// in through Store.ReconcilePlayer.
package valkeysnapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"go.fieldops.dev/squadctl/internal/events"
	"go.fieldops.dev/squadctl/internal/logengine"
	"go.fieldops.dev/squadctl/internal/valkey"
)

const (
	keyPrefix         = "squadctl:player:"
	defaultInterval   = 30 * time.Second
	defaultExpiration = 6 * time.Hour
)

// Adapter periodically snapshots a Store's live player table into Valkey and
// can restore it back into a fresh Store on startup.
type Adapter struct {
	client   *valkey.Client
	store    *logengine.Store
	interval time.Duration
}

// New builds an Adapter. interval <= 0 uses the default snapshot period.
func New(client *valkey.Client, store *logengine.Store, interval time.Duration) *Adapter {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Adapter{client: client, store: store, interval: interval}
}

// Restore loads every persisted player back into the store via
// ReconcilePlayer. Call this once, before the façade starts, so a restarted
// daemon doesn't lose track of who was on the server.
func (a *Adapter) Restore(ctx context.Context) error {
	keys, err := a.client.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("valkeysnapshot: list keys: %w", err)
	}

	for _, key := range keys {
		raw, err := a.client.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("valkeysnapshot: failed to load player, skipping")
			continue
		}
		var info events.PlayerInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("valkeysnapshot: malformed player snapshot, skipping")
			continue
		}
		a.store.ReconcilePlayer(info)
	}

	log.Info().Int("count", len(keys)).Msg("valkeysnapshot: restored player table")
	return nil
}

// Run persists the store's live player table on a timer until ctx is
// cancelled. It does not return an error on individual failed writes —
// those are logged and skipped, since a missed snapshot just means a
// slightly staler restore point, not a correctness problem for the running
// daemon.
func (a *Adapter) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.persistOnce(ctx)
		}
	}
}

func (a *Adapter) persistOnce(ctx context.Context) {
	snapshot := a.store.Snapshot()
	for eosID, info := range snapshot {
		raw, err := json.Marshal(info)
		if err != nil {
			log.Warn().Err(err).Str("eos_id", eosID).Msg("valkeysnapshot: failed to marshal player")
			continue
		}
		if err := a.client.Set(ctx, playerKey(eosID), string(raw), defaultExpiration); err != nil {
			log.Warn().Err(err).Str("eos_id", eosID).Msg("valkeysnapshot: failed to persist player")
		}
	}
}

func playerKey(eosID string) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteString(eosID)
	return b.String()
}
