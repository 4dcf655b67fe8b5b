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

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/apiconnect/internal/connector/transport"
	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/internal/record"
)

const tracerName = "github.com/tombee/apiconnect/internal/connector"

// Transformer evaluates a response transform expression.
type Transformer interface {
	Execute(ctx context.Context, expression string, data any) (any, error)
}

// Engine runs connector invocations. It holds no per-connector state; the
// only thing an invocation mutates is the Connector passed in, so callers
// serialize invocations of the same connector.
type Engine struct {
	transport   transport.Transport
	records     *record.Registry
	secrets     SecretExpander
	transformer Transformer
	scripts     ScriptRunner
	metrics     *Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSecrets expands ${...} references in credentials and static headers.
func WithSecrets(s SecretExpander) Option {
	return func(e *Engine) { e.secrets = s }
}

// WithTransformer enables response_transform.
func WithTransformer(t Transformer) Option {
	return func(e *Engine) { e.transformer = t }
}

// WithScriptRunner enables state=code.
func WithScriptRunner(r ScriptRunner) Option {
	return func(e *Engine) { e.scripts = r }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine that sends through tr and writes through
// records.
func NewEngine(tr transport.Transport, records *record.Registry, opts ...Option) *Engine {
	e := &Engine{
		transport: tr,
		records:   records,
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.WithComponent(e.logger, "connector")
	return e
}

// SendRequest validates, builds and executes c's request and stores the
// flattened response in c.Response as indented JSON. When ev is non-nil it
// is recorded in c.ResponseEventRecord first. A nil ev is a preview and
// leaves ResponseEventRecord alone. On failure c.Response keeps its previous
// value.
func (e *Engine) SendRequest(ctx context.Context, c *Connector, ev record.Record) error {
	_, err := e.send(ctx, c, ev)
	return err
}

// TriggerResponse maps the stored response and applies it to the sink.
func (e *Engine) TriggerResponse(ctx context.Context, c *Connector) error {
	_, err := e.trigger(ctx, c)
	return err
}

// Invoke runs SendRequest followed by TriggerResponse. A failure is
// returned as *InvocationError naming the phase that stopped the pipeline.
// Sink writes that happened before a failure are not rolled back.
func (e *Engine) Invoke(ctx context.Context, c *Connector, ev record.Record) error {
	if phase, err := e.send(ctx, c, ev); err != nil {
		return &InvocationError{ConnectorID: c.ID, Stage: phase, Err: err}
	}
	if phase, err := e.trigger(ctx, c); err != nil {
		return &InvocationError{ConnectorID: c.ID, Stage: phase, Err: err}
	}
	return nil
}

func (e *Engine) send(ctx context.Context, c *Connector, ev record.Record) (phase string, err error) {
	if ev != nil {
		ref := ev.Ref()
		c.ResponseEventRecord = &ref
	}

	logger := log.WithConnector(e.logger, c.ID, c.Name)
	ctx, span := e.tracer.Start(ctx, "connector.send", trace.WithAttributes(
		attribute.String("connector.id", c.ID),
		attribute.String("connector.request_method", string(c.RequestMethod)),
		attribute.String("connector.request_type", string(c.RequestType)),
	))
	defer func() {
		endSpan(span, err)
		e.metrics.recordSend(c.ID, err)
	}()

	if err := e.phase(ctx, logger, PhaseValidate, func(context.Context) error {
		return Validate(c)
	}); err != nil {
		return PhaseValidate, err
	}

	var req *transport.Request
	if err := e.phase(ctx, logger, PhaseBuild, func(ctx context.Context) error {
		var err error
		req, err = e.Build(ctx, c, ev)
		return err
	}); err != nil {
		return PhaseBuild, err
	}

	var resp *transport.Response
	if err := e.phase(ctx, logger, PhaseExecute, func(ctx context.Context) error {
		var err error
		resp, err = e.transport.Execute(ctx, req)
		if err != nil {
			return err
		}
		e.metrics.recordStatus(c.ID, resp.StatusCode)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode != 200 {
			return &UpstreamStatusError{StatusCode: resp.StatusCode, Body: excerpt(resp.Body)}
		}
		return nil
	}); err != nil {
		return PhaseExecute, err
	}

	if err := e.phase(ctx, logger, PhaseFlatten, func(ctx context.Context) error {
		flat, err := e.flattenBody(ctx, c, resp.Body)
		if err != nil {
			return err
		}
		text, err := encodeResponse(flat)
		if err != nil {
			return err
		}
		c.Response = text
		return nil
	}); err != nil {
		return PhaseFlatten, err
	}

	log.Trace(logger, "response stored", slog.String("response", c.Response))
	return "", nil
}

func (e *Engine) trigger(ctx context.Context, c *Connector) (phase string, err error) {
	logger := log.WithConnector(e.logger, c.ID, c.Name)
	ctx, span := e.tracer.Start(ctx, "connector.trigger", trace.WithAttributes(
		attribute.String("connector.id", c.ID),
		attribute.String("connector.state", string(c.State)),
	))
	defer func() { endSpan(span, err) }()

	var values map[string]any
	if err := e.phase(ctx, logger, PhaseMap, func(context.Context) error {
		var err error
		values, err = MapResponse(c)
		return err
	}); err != nil {
		return PhaseMap, err
	}

	if err := e.phase(ctx, logger, PhaseSink, func(ctx context.Context) error {
		return e.ApplySink(ctx, c, values)
	}); err != nil {
		return PhaseSink, err
	}
	return "", nil
}

// phase runs fn inside a span, timing it for logs and metrics.
func (e *Engine) phase(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "connector."+name)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	endSpan(span, err)
	e.metrics.observePhase(name, elapsed, err)

	if err != nil {
		logger.Warn("connector phase failed",
			log.PhaseKey, name,
			log.DurationKey, elapsed.Milliseconds(),
			"error_type", ErrorType(err),
			log.Error(err))
		return err
	}
	logger.Debug("connector phase completed",
		log.PhaseKey, name,
		log.DurationKey, elapsed.Milliseconds())
	return nil
}

func (e *Engine) flattenBody(ctx context.Context, c *Connector, body []byte) (map[string]any, error) {
	if c.ResponseTransform == "" {
		return FlattenJSON(body)
	}
	if e.transformer == nil {
		return nil, &ConfigValidationError{Field: "response_transform", Reason: "no transformer is configured"}
	}

	doc, err := decodeOrdered(body)
	if err != nil {
		return nil, &MalformedResponseError{Reason: err.Error(), Body: excerpt(body)}
	}
	out, err := e.transformer.Execute(ctx, c.ResponseTransform, plain(doc))
	if err != nil {
		return nil, &MalformedResponseError{Reason: "response transform failed: " + err.Error()}
	}
	return FlattenValue(out)
}

// encodeResponse renders the flattened response with four-space indent.
func encodeResponse(flat map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(flat); err != nil {
		return "", &MalformedResponseError{Reason: err.Error()}
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
