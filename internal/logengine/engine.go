package logengine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"go.fieldops.dev/squadctl/internal/events"
	"go.fieldops.dev/squadctl/internal/logsource"
)

// Engine is C8: it drains a logsource.Source's line channel, dispatches each
// line through the ordered rule set, and publishes the resulting events. It
// is restartable - Run can be called again on a fresh context after the
// source reconnects.
type Engine struct {
	store *Store
	pub   events.Publisher
	rules []Rule

	parsed  uint64
	dropped uint64
}

// NewEngine builds an engine over store, publishing matched events to pub.
func NewEngine(store *Store, pub events.Publisher) *Engine {
	return &Engine{store: store, pub: pub, rules: Rules()}
}

// Run consumes lines from src until ctx is cancelled or the source's channel
// closes. A closed channel with no ctx cancellation is treated as the source
// having given up (it already retries internally); Run simply returns.
func (e *Engine) Run(ctx context.Context, src logsource.Source) error {
	lines, err := src.Watch(ctx)
	if err != nil {
		return fmt.Errorf("logengine: start watch: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			e.handleLine(line)
		}
	}
}

func (e *Engine) handleLine(line logsource.Line) {
	if line.Rotated {
		e.store.ClearTransient()
		e.pub.Publish(events.New(events.KindLogRotated, time.Now().UTC(), "", events.LogRotatedData{}))
		return
	}
	if line.Text == "" {
		return
	}
	e.dispatch(line.Text)
}

// dispatch tries each rule in order and stops at the first match, per the
// ordered-rule-set contract. A panicking rule is contained so one malformed
// line never takes down the stream.
func (e *Engine) dispatch(text string) {
	for _, rule := range e.rules {
		m := rule.regex.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		e.applyRule(rule, m, text)
		e.parsed++
		return
	}
	e.dropped++
}

func (e *Engine) applyRule(rule Rule, m []string, raw string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("rule", rule.Name).
				Interface("panic", r).
				Str("line", raw).
				Msg("logengine: rule handler panicked, line dropped")
		}
	}()
	rule.onMatch(m, e.store, e.pub)
}

// Stats returns the running counts of lines matched and dropped, for metrics.
func (e *Engine) Stats() (parsed, dropped uint64) {
	return e.parsed, e.dropped
}
