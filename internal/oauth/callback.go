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

package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/log"
	pkgerrors "github.com/tombee/apiconnect/pkg/errors"
)

const (
	callbackSuccess = "Your token has been generated. Please close this tab"
	callbackFailure = "Error while generating the Oauth 2 token\n"
)

// ConnectorStore is the persistence the callback needs.
type ConnectorStore interface {
	Get(ctx context.Context, id string) (*connector.Connector, error)
	Update(ctx context.Context, c *connector.Connector) error
}

// Locker serializes work on one connector.
type Locker interface {
	Lock(key string) (unlock func())
}

// CallbackHandler serves GET /oauthcallback?id=&code=[&state=]. Every
// outcome is reported as plain text; nothing propagates past the handler.
type CallbackHandler struct {
	flow   *Flow
	store  ConnectorStore
	locker Locker
}

// NewCallbackHandler creates the callback endpoint. locker may be nil.
func NewCallbackHandler(flow *Flow, store ConnectorStore, locker Locker) *CallbackHandler {
	return &CallbackHandler{flow: flow, store: store, locker: locker}
}

// ServeHTTP implements http.Handler.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	id := q.Get("id")
	status, err := h.handle(r.Context(), id, q.Get("code"), q.Get("state"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err != nil {
		h.flow.logger.Warn("oauth callback failed",
			log.ConnectorKey, id,
			"error_type", connector.ErrorType(err),
			log.Error(err))
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, callbackFailure+userMessage(err))
		return
	}
	_, _ = fmt.Fprint(w, callbackSuccess)
}

func (h *CallbackHandler) handle(ctx context.Context, id, code, state string) (int, error) {
	if id == "" {
		return http.StatusBadRequest, &pkgerrors.ValidationError{Field: "id", Message: "connector id is missing"}
	}
	if err := h.flow.VerifyState(state, id); err != nil {
		return http.StatusBadRequest, err
	}

	if h.locker != nil {
		defer h.locker.Lock(id)()
	}

	c, err := h.store.Get(ctx, id)
	if err != nil {
		var nf *pkgerrors.NotFoundError
		if errors.As(err, &nf) {
			return http.StatusNotFound, err
		}
		return http.StatusInternalServerError, err
	}
	if err := h.flow.Exchange(ctx, c, code); err != nil {
		return http.StatusBadRequest, err
	}
	if err := h.store.Update(ctx, c); err != nil {
		return http.StatusInternalServerError, err
	}
	h.flow.logger.Info("oauth callback completed", log.ConnectorKey, id, slog.String("connector_name", c.Name))
	return http.StatusOK, nil
}

func userMessage(err error) string {
	if uv, ok := pkgerrors.AsUserVisible(err); ok {
		return uv.UserMessage()
	}
	return err.Error()
}
