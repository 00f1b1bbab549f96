package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testAlert(cameraID string) models.Alert {
	return &models.RestrictedZoneAlert{
		AlertHeader: models.NewAlertHeader(models.EventRestrictedZoneEntry, "v1", "Ann", cameraID, "Vault", 0.9, time.Now()),
	}
}

func TestHub_BroadcastsToMatchingClients(t *testing.T) {
	hub, url := startHub(t)

	all := dial(t, url)
	cam1 := dial(t, url+"?camera_id=cam1")
	cam2 := dial(t, url+"?camera_id=cam2")
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	alert := testAlert("cam1")
	hub.BroadcastAlert(alert)

	for _, conn := range []*websocket.Conn{all, cam1} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg dto.WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "alert", msg.Type)
		assert.Equal(t, "cam1", msg.CameraID)

		var h models.AlertHeader
		require.NoError(t, json.Unmarshal(msg.Data, &h))
		assert.Equal(t, alert.Header().ID, h.ID)
	}

	require.NoError(t, cam2.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := cam2.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
