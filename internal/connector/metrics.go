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
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/apiconnect/internal/connector/transport"
	pkgerrors "github.com/tombee/apiconnect/pkg/errors"
)

// Metrics holds the Prometheus collectors for connector invocations.
type Metrics struct {
	sends         *prometheus.CounterVec
	upstream      *prometheus.CounterVec
	phaseFailures *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
}

// NewMetrics registers the connector collectors on reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		sends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiconnect_sends_total",
				Help: "Total connector sends by connector and outcome",
			},
			[]string{"connector", "outcome"},
		),
		upstream: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiconnect_upstream_responses_total",
				Help: "Upstream HTTP responses by connector and status class",
			},
			[]string{"connector", "status"},
		),
		phaseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiconnect_phase_failures_total",
				Help: "Connector pipeline failures by phase and error type",
			},
			[]string{"phase", "error_type"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apiconnect_phase_duration_seconds",
				Help:    "Duration of connector pipeline phases",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
	}
}

func (m *Metrics) observePhase(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	if err != nil {
		m.phaseFailures.WithLabelValues(phase, ErrorType(err)).Inc()
	}
}

func (m *Metrics) recordSend(connectorID string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.sends.WithLabelValues(connectorID, outcome).Inc()
}

func (m *Metrics) recordStatus(connectorID string, status int) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(connectorID, statusClass(status)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	}
	return "1xx"
}

// ErrorType names the error class used in metrics and logs.
func ErrorType(err error) string {
	var (
		cfgErr     *ConfigValidationError
		fieldErr   *MissingFieldError
		statusErr  *UpstreamStatusError
		bodyErr    *MalformedResponseError
		keyErr     *ResponseKeyNotFoundError
		oauthErr   *OAuthExchangeError
		tErr       *transport.TransportError
		notFound   *pkgerrors.NotFoundError
		validation *pkgerrors.ValidationError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "config_validation"
	case errors.As(err, &fieldErr):
		return "missing_field"
	case errors.As(err, &statusErr):
		return "upstream_status"
	case errors.As(err, &bodyErr):
		return "malformed_response"
	case errors.As(err, &keyErr):
		return "response_key_not_found"
	case errors.As(err, &oauthErr):
		return "oauth_exchange"
	case errors.As(err, &tErr):
		return "transport_" + string(tErr.Type)
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	}
	return "unknown"
}
