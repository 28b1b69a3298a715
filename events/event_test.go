package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		routingKey string
		want       Event
		wantErr    bool
	}{
		{
			name: "updated",
			body: `{"type":"tenant.updated","tenant_id":"acme"}`,
			want: Event{Type: TypeTenantUpdated, TenantID: "acme"},
		},
		{
			name:       "type from routing key",
			body:       `{"tenant_id":" beta "}`,
			routingKey: "tenant.deleted",
			want:       Event{Type: TypeTenantDeleted, TenantID: "beta"},
		},
		{
			name:       "body type wins",
			body:       `{"type":"tenant.created","tenant_id":"acme"}`,
			routingKey: "tenant.updated",
			want:       Event{Type: TypeTenantCreated, TenantID: "acme"},
		},
		{name: "malformed json", body: `{"type":`, wantErr: true},
		{name: "unknown type", body: `{"type":"tenant.renamed","tenant_id":"acme"}`, wantErr: true},
		{name: "missing tenant", body: `{"type":"tenant.updated","tenant_id":"  "}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := ParseEvent([]byte(tt.body), tt.routingKey)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Type, evt.Type)
			assert.Equal(t, tt.want.TenantID, evt.TenantID)
		})
	}
}
