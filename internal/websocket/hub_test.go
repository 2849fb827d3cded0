package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("ws-secret")

func signed(t *testing.T, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	return s
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, secret) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func TestPublishReachesSubscribers(t *testing.T) {
	hub, srv := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, signed(t, "accountant")), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	event := model.ReceiptEvent{
		ID:           uuid.New(),
		InvoiceID:    uuid.New(),
		SubmissionID: uuid.New(),
		ClientName:   "Acme",
		ClientEmail:  "owner@acme.test",
		TrackingCode: "PRJ-20250115-7K3QZD",
		Amount:       decimal.NewFromInt(12000),
		IssuedAt:     time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, hub.Publish(context.Background(), event))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string         `json:"type"`
		Data ReceiptPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, EventReceiptIssued, msg.Type)
	assert.Equal(t, event.ID.String(), msg.Data.EventID)
	assert.Equal(t, "12000.00", msg.Data.Amount)
	assert.Equal(t, "PRJ-20250115-7K3QZD", msg.Data.TrackingCode)
}

func TestServeWsRejectsUnauthorized(t *testing.T) {
	_, srv := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "garbage"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, signed(t, "intern")), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPublishAfterShutdown(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	// Without subscribers the loop still accepts the message.
	require.NoError(t, hub.Publish(context.Background(), model.ReceiptEvent{ID: uuid.New()}))

	cancel()
	<-stopped
	assert.ErrorIs(t, hub.Publish(context.Background(), model.ReceiptEvent{ID: uuid.New()}), ErrHubClosed)
}

func TestPublishHonoursContext(t *testing.T) {
	hub := NewHub(zap.NewNop()) // Run never started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, hub.Publish(ctx, model.ReceiptEvent{ID: uuid.New()}), context.Canceled)
}
