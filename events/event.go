// Package events consumes tenant lifecycle messages from RabbitMQ and keeps
// the directory caches and tenant pools in step with the control plane.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event types.
const (
	TypeTenantCreated = "tenant.created"
	TypeTenantUpdated = "tenant.updated"
	TypeTenantDeleted = "tenant.deleted"
)

// ErrInvalidEvent marks messages that can never be processed.
var ErrInvalidEvent = errors.New("invalid tenant event")

// Event is a tenant lifecycle message.
type Event struct {
	Type       string    `json:"type"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at,omitzero"`
}

// ParseEvent decodes a message body. When the body carries no type, the
// routing key is used.
func ParseEvent(body []byte, routingKey string) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	evt.TenantID = strings.TrimSpace(evt.TenantID)
	if evt.Type == "" {
		evt.Type = routingKey
	}

	switch evt.Type {
	case TypeTenantCreated, TypeTenantUpdated, TypeTenantDeleted:
	default:
		return Event{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidEvent, evt.Type)
	}
	if evt.TenantID == "" {
		return Event{}, fmt.Errorf("%w: missing tenant_id", ErrInvalidEvent)
	}
	return evt, nil
}
