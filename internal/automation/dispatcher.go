// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package automation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/hook"
	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/internal/store"
	"github.com/tombee/apiconnect/pkg/errors"
)

// Invoker runs connector requests.
type Invoker interface {
	SendRequest(ctx context.Context, c *connector.Connector, ev record.Record) error
	Invoke(ctx context.Context, c *connector.Connector, ev record.Record) error
}

// FilterEvaluator evaluates rule filters.
type FilterEvaluator interface {
	Filter(source string, env map[string]any) (bool, error)
}

// Dispatcher matches record events against rules and runs their
// connectors. Runs of the same connector are serialized; sink writes run
// with hooks suppressed so a write-back cannot trigger its own rule.
type Dispatcher struct {
	invoker Invoker
	store   store.Store
	filters FilterEvaluator
	locks   *KeyedMutex
	logger  *slog.Logger
	runs    *prometheus.CounterVec

	mu    sync.RWMutex
	rules []compiledRule
}

type compiledRule struct {
	Rule
	kinds []hook.Kind
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFilters enables rule filters. Rules with a filter are rejected
// without one.
func WithFilters(f FilterEvaluator) Option {
	return func(d *Dispatcher) { d.filters = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithRegisterer registers the automation run counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(d *Dispatcher) {
		d.runs = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiconnect_automation_runs_total",
				Help: "Automation rule runs by rule and outcome",
			},
			[]string{"rule", "outcome"},
		)
	}
}

// WithLocks shares a keyed mutex with other writers of connectors, such
// as the OAuth callback.
func WithLocks(k *KeyedMutex) Option {
	return func(d *Dispatcher) { d.locks = k }
}

// NewDispatcher creates a dispatcher with no rules.
func NewDispatcher(inv Invoker, s store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		invoker: inv,
		store:   s,
		locks:   NewKeyedMutex(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = log.WithComponent(d.logger, "automation")
	return d
}

// Locks returns the mutex used to serialize connector runs.
func (d *Dispatcher) Locks() *KeyedMutex { return d.locks }

// SetRules validates and replaces the active rules.
func (d *Dispatcher) SetRules(rules []Rule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.Filter != "" && d.filters == nil {
			return &errors.ValidationError{Field: "filter", Message: "rule " + r.Name + " has a filter but no filter engine is configured"}
		}
		kinds, _ := r.Kinds()
		compiled = append(compiled, compiledRule{Rule: r, kinds: kinds})
	}

	d.mu.Lock()
	d.rules = compiled
	d.mu.Unlock()
	d.logger.Info("automation rules loaded", "count", len(compiled))
	return nil
}

// Rules returns the active rules.
func (d *Dispatcher) Rules() []Rule {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Rule, len(d.rules))
	for i, r := range d.rules {
		out[i] = r.Rule
	}
	return out
}

// Attach subscribes the dispatcher to every event kind on hooks.
func (d *Dispatcher) Attach(hooks *hook.Registry) {
	hooks.On(d.HandleEvent, hook.EventCreate, hook.EventWrite, hook.EventUnlink, hook.EventChange)
}

// HandleEvent is a hook.Listener. Rule failures are logged and counted;
// they never propagate to the write that raised the event.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev hook.Event) error {
	d.mu.RLock()
	rules := d.rules
	d.mu.RUnlock()

	for _, r := range rules {
		if !r.matches(ev, r.kinds) {
			continue
		}
		logger := d.logger.With("rule", r.Name, log.EventKey, string(ev.Kind))
		if ev.Record != nil {
			logger = log.WithRecord(logger, ev.Record.Type, ev.Record.ID)
		}

		ok, err := d.evaluate(r, ev)
		if err != nil {
			logger.Warn("automation filter failed", log.Error(err))
			d.count(r.Name, "filter_error")
			continue
		}
		if !ok {
			d.count(r.Name, "skipped")
			continue
		}

		start := time.Now()
		if _, err := d.Run(ctx, r.Connector, ev.Record, true); err != nil {
			logger.Error("automation run failed",
				log.DurationKey, time.Since(start).Milliseconds(),
				"error_type", connector.ErrorType(err),
				log.Error(err))
			d.count(r.Name, "failure")
			continue
		}
		logger.Info("automation run completed", log.DurationKey, time.Since(start).Milliseconds())
		d.count(r.Name, "success")
	}
	return nil
}

func (d *Dispatcher) evaluate(r compiledRule, ev hook.Event) (bool, error) {
	if r.Filter == "" || d.filters == nil {
		return true, nil
	}
	values := make(map[string]any, len(ev.Record.Values)+1)
	for k, v := range ev.Record.Values {
		values[k] = v
	}
	values[record.IDField] = ev.Record.ID
	return d.filters.Filter(r.Filter, map[string]any{
		"record":  values,
		"old":     ev.OldValues,
		"changed": ev.Changed,
		"event":   string(ev.Kind),
	})
}

// Run loads the connector named by ref (id or name), sends its request
// for ev and, when apply is set, maps the response into records. The
// updated connector is saved even when a later phase fails, so the last
// response stays inspectable.
func (d *Dispatcher) Run(ctx context.Context, ref string, ev record.Record, apply bool) (*connector.Connector, error) {
	id, err := d.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}

	defer d.locks.Lock(id)()

	c, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx = hook.Suppress(ctx)
	if apply {
		err = d.invoker.Invoke(ctx, c, ev)
	} else {
		err = d.invoker.SendRequest(ctx, c, ev)
	}
	if saveErr := d.store.Update(ctx, c); saveErr != nil {
		if err == nil {
			err = errors.Wrap(saveErr, "failed to save connector")
		} else {
			d.logger.Warn("failed to save connector", log.ConnectorKey, id, log.Error(saveErr))
		}
	}
	return c, err
}

func (d *Dispatcher) resolveID(ctx context.Context, ref string) (string, error) {
	if _, err := d.store.Get(ctx, ref); err == nil {
		return ref, nil
	}
	c, err := d.store.GetByName(ctx, ref)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (d *Dispatcher) count(rule, outcome string) {
	if d.runs != nil {
		d.runs.WithLabelValues(rule, outcome).Inc()
	}
}
