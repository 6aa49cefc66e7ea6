package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/clock"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jobServer mimics the conversion service progress endpoint: it sends a
// processing update on connect, answers ping with pong and cancel_request
// with a cancelled terminal event.
func jobServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fileID := strings.TrimPrefix(r.URL.Path, "/api/ws/")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(models.ProgressEvent{FileID: fileID, Status: models.StatusProcessing, Progress: 30, Message: "converting"})

		for {
			var msg outbound
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Action {
			case ActionPing:
				_ = conn.WriteJSON(map[string]string{"action": "pong"})
			case ActionStatusRequest:
				_ = conn.WriteJSON(models.ProgressEvent{FileID: fileID, Status: models.StatusProcessing, Progress: 35})
			case ActionCancelRequest:
				_ = conn.WriteJSON(models.ProgressEvent{FileID: fileID, Status: models.StatusCancelling, Progress: 35})
				_ = conn.WriteJSON(models.ProgressEvent{FileID: fileID, Status: models.StatusCancelled, Progress: 35, Message: "cancelled by user"})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChannel_OverRealWebsocket(t *testing.T) {
	srv := jobServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/"

	events := make(chan models.ProgressEvent, 8)
	ch := New(NewWSDialer(time.Second), func(id string) string { return wsURL + id },
		clock.Real{}, logging.Nop(), Options{}, Handlers{
			OnProgress: func(e models.ProgressEvent) { events <- e },
		})
	t.Cleanup(ch.Disconnect)

	require.NoError(t, ch.Connect(context.Background(), "job-42"))

	first := <-events
	assert.Equal(t, "job-42", first.FileID)
	assert.Equal(t, 30, first.Progress)

	require.NoError(t, ch.RequestStatus())
	assert.Equal(t, 35, (<-events).Progress)

	require.NoError(t, ch.Cancel())
	assert.Equal(t, models.StatusCancelling, (<-events).Status)
	last := <-events
	assert.Equal(t, models.StatusCancelled, last.Status)
	assert.True(t, last.Status.IsTerminal())

	ch.Disconnect()
	assert.Equal(t, StateClosed, ch.State())
}

func TestWSDialer_HandshakeError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	ch := New(NewWSDialer(time.Second), func(string) string { return "ws" + strings.TrimPrefix(srv.URL, "http") + "/nope" },
		clock.Real{}, logging.Nop(), Options{}, Handlers{})

	err := ch.Connect(context.Background(), "x")
	require.ErrorIs(t, err, ErrHandshake)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, StateFailed, ch.State())
}
