package storage

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vms/internal/models"
)

func TestEventQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    models.EventFilter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:     "no filter",
			filter:   models.EventFilter{Limit: 50},
			wantArgs: []any{50},
		},
		{
			name:      "visitor",
			filter:    models.EventFilter{VisitorID: "v1", Limit: 10},
			wantWhere: "WHERE visitor_id = $1",
			wantArgs:  []any{"v1", 10},
		},
		{
			name:      "all fields",
			filter:    models.EventFilter{VisitorID: "v1", CameraID: "cam1", EventType: models.EventLoitering, Limit: 5},
			wantWhere: "WHERE visitor_id = $1 AND camera_id = $2 AND event_type = $3",
			wantArgs:  []any{"v1", "cam1", "loitering", 5},
		},
		{
			name:      "camera and type",
			filter:    models.EventFilter{CameraID: "cam1", EventType: models.EventIdentityTracking, Limit: 1},
			wantWhere: "WHERE camera_id = $1 AND event_type = $2",
			wantArgs:  []any{"cam1", "identity_tracking", 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := eventQuery(tt.filter)
			assert.Equal(t, tt.wantArgs, args)
			if tt.wantWhere == "" {
				assert.NotContains(t, q, "WHERE")
			} else {
				assert.Contains(t, q, tt.wantWhere)
			}
			require.True(t, strings.HasSuffix(q, "ORDER BY timestamp DESC LIMIT $"+strconv.Itoa(len(args))))
		})
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range schema {
		assert.Contains(t, stmt, "IF NOT EXISTS", stmt)
	}
}
