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
	"context"
	"fmt"

	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/pkg/errors"
)

// ScriptInput is what a script sees when a connector's state is code.
type ScriptInput struct {
	Code     string
	Values   map[string]any
	Response map[string]any

	// Record is the triggering record, nil when unknown.
	Record *record.Entity
}

// ScriptRunner runs connector code. A non-nil map result is written to the
// triggering record.
type ScriptRunner interface {
	Run(ctx context.Context, in ScriptInput) (map[string]any, error)
}

// ApplySink writes values according to c.State.
func (e *Engine) ApplySink(ctx context.Context, c *Connector, values map[string]any) error {
	switch c.State {
	case StateCreate:
		return e.sinkCreate(ctx, c, values)
	case StateUpdate, "":
		return e.sinkUpdate(ctx, c, values)
	case StateCode:
		return e.sinkCode(ctx, c, values)
	}
	return &ConfigValidationError{Field: "state", Reason: fmt.Sprintf("unknown state %q", c.State)}
}

func (e *Engine) sinkCreate(ctx context.Context, c *Connector, values map[string]any) error {
	repo, err := e.records.Repository(c.TargetModel)
	if err != nil {
		return err
	}
	created, err := repo.Create(ctx, values)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", c.TargetModel)
	}
	e.logger.Debug("record created",
		"entity", c.TargetModel,
		"record_id", created.ID)

	if c.LinkField == "" || c.ResponseEventRecord == nil {
		return nil
	}
	ref := *c.ResponseEventRecord
	trigger, err := e.records.Repository(ref.EntityType)
	if err != nil {
		return err
	}
	if _, err := trigger.Update(ctx, ref.ID, map[string]any{c.LinkField: created.ID}); err != nil {
		return errors.Wrapf(err, "failed to link %s to %s", created.Ref(), ref)
	}
	return nil
}

func (e *Engine) sinkUpdate(ctx context.Context, c *Connector, values map[string]any) error {
	if c.ResponseEventRecord == nil {
		return &errors.NotFoundError{Resource: "event record for connector", ID: c.ID}
	}
	ref := *c.ResponseEventRecord
	repo, err := e.records.Repository(ref.EntityType)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	if _, err := repo.Update(ctx, ref.ID, values); err != nil {
		return errors.Wrapf(err, "failed to update %s", ref)
	}
	return nil
}

func (e *Engine) sinkCode(ctx context.Context, c *Connector, values map[string]any) error {
	if e.scripts == nil {
		return &ConfigValidationError{Field: "state", Reason: "no script runner is configured"}
	}

	var trigger *record.Entity
	if c.ResponseEventRecord != nil {
		ent, err := e.records.Resolve(ctx, *c.ResponseEventRecord)
		if err != nil {
			return err
		}
		trigger = ent
	}

	flat, err := FlattenJSON([]byte(c.Response))
	if err != nil {
		return err
	}

	result, err := e.scripts.Run(ctx, ScriptInput{
		Code:     c.Code,
		Values:   values,
		Response: record.JSONValue(flat).(map[string]any),
		Record:   trigger,
	})
	if err != nil {
		return err
	}
	if len(result) == 0 || trigger == nil {
		return nil
	}

	repo, err := e.records.Repository(trigger.Type)
	if err != nil {
		return err
	}
	if _, err := repo.Update(ctx, trigger.ID, result); err != nil {
		return errors.Wrapf(err, "failed to write script result to %s", trigger.Ref())
	}
	return nil
}
