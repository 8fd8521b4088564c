package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bayou-chat/internal/chat"
	"bayou-chat/internal/middleware"
	"bayou-chat/internal/models"
	"bayou-chat/internal/store"
	"bayou-chat/internal/utils"
	"bayou-chat/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	*httptest.Server
	hub *websocket.Hub
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	log := slog.Default()
	metrics := utils.NewMetricsCollector()
	memStore := store.NewMemoryStore()

	hub := websocket.NewHub(log, metrics)
	go hub.Run()

	system := actor.NewActorSystem()
	fanout := chat.NewFanout(system, hub, log, metrics)

	service := chat.NewService(memStore, testUploader{}, fanout, log, metrics)
	auth := middleware.NewAuthenticator("test-secret", time.Hour)
	server := NewServer(service, memStore, hub, auth, metrics, log, []string{"*"})

	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)
	return &testEnv{Server: ts, hub: hub}
}

type testUploader struct{}

func (testUploader) Upload(ctx context.Context, payload string) (string, error) {
	return "http://media.local/img.png", nil
}

type session struct {
	token string
	user  *models.User
}

func register(t *testing.T, ts *testEnv, username string) *session {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"email":%q,"password":"hunter2secret"}`, username, username+"@example.com")
	resp, err := http.Post(ts.URL+"/auth/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var loginResp LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))
	return &session{token: loginResp.Token, user: loginResp.User}
}

func (s *session) do(t *testing.T, ts *testEnv, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeMessage(t *testing.T, resp *http.Response, wantStatus int) *models.Message {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	var msg models.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	return &msg
}

func (s *session) connectWS(t *testing.T, ts *testEnv) *ws.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + s.token
	conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	// The hub registers the client asynchronously; wait so pushes
	// committed right after this call are not dropped.
	require.Eventually(t, func() bool {
		return ts.hub.Connected(s.user.ID)
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *ws.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &envelope))
	return envelope.Event, envelope.Data
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/messages/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	register(t, ts, "alice")

	resp, err := http.Post(ts.URL+"/auth/login", "application/json",
		strings.NewReader(`{"email":"alice@example.com","password":"hunter2secret"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/auth/login", "application/json",
		strings.NewReader(`{"email":"alice@example.com","password":"wrong-password"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSidebarListsOtherUsers(t *testing.T) {
	ts := newTestServer(t)
	alice := register(t, ts, "alice")
	bob := register(t, ts, "bob")

	resp := alice.do(t, ts, http.MethodGet, "/messages/users", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users []*models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	require.Len(t, users, 1)
	assert.Equal(t, bob.user.ID, users[0].ID)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	ts := newTestServer(t)
	alice := register(t, ts, "alice")
	bob := register(t, ts, "bob")

	resp := alice.do(t, ts, http.MethodPost, "/messages/send/"+bob.user.ID.String(), SendMessageRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditByNonSenderForbidden(t *testing.T) {
	ts := newTestServer(t)
	alice := register(t, ts, "alice")
	bob := register(t, ts, "bob")

	sent := decodeMessage(t, alice.do(t, ts, http.MethodPost, "/messages/send/"+bob.user.ID.String(),
		SendMessageRequest{Text: "mine"}), http.StatusCreated)

	resp := bob.do(t, ts, http.MethodPut, "/messages/edit/"+sent.ID.String(), EditMessageRequest{Text: "not yours"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// Full lifecycle over HTTP and websocket: A sends, edits and deletes; B
// reads. Each committed mutation reaches the counterpart's connection.
func TestLifecycleWithLivePeers(t *testing.T) {
	ts := newTestServer(t)
	alice := register(t, ts, "alice")
	bob := register(t, ts, "bob")

	aliceConn := alice.connectWS(t, ts)
	bobConn := bob.connectWS(t, ts)

	// send
	sent := decodeMessage(t, alice.do(t, ts, http.MethodPost, "/messages/send/"+bob.user.ID.String(),
		SendMessageRequest{Text: "hi"}), http.StatusCreated)

	event, data := readEvent(t, bobConn)
	assert.Equal(t, chat.EventNewMessage, event)
	var pushed models.Message
	require.NoError(t, json.Unmarshal(data, &pushed))
	assert.Equal(t, sent.ID, pushed.ID)
	assert.Equal(t, "hi", pushed.Text)

	// edit
	edited := decodeMessage(t, alice.do(t, ts, http.MethodPut, "/messages/edit/"+sent.ID.String(),
		EditMessageRequest{Text: "hi there"}), http.StatusOK)
	assert.True(t, edited.IsEdited)
	require.Len(t, edited.EditHistory, 1)
	assert.Equal(t, "hi", edited.EditHistory[0].PriorText)

	event, data = readEvent(t, bobConn)
	assert.Equal(t, chat.EventMessageEdited, event)
	require.NoError(t, json.Unmarshal(data, &pushed))
	assert.Equal(t, "hi there", pushed.Text)

	// delete
	deleted := decodeMessage(t, alice.do(t, ts, http.MethodDelete, "/messages/delete/"+sent.ID.String(), nil), http.StatusOK)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeletedText, deleted.Text)
	assert.Empty(t, deleted.Image)

	event, data = readEvent(t, bobConn)
	assert.Equal(t, chat.EventMessageDeleted, event)
	var deletedPayload chat.DeletedPayload
	require.NoError(t, json.Unmarshal(data, &deletedPayload))
	assert.Equal(t, sent.ID, deletedPayload.MessageID)

	// markRead goes the other way: to the sender's connection.
	read := decodeMessage(t, bob.do(t, ts, http.MethodPut, "/messages/read/"+sent.ID.String(), nil), http.StatusOK)
	require.Len(t, read.ReadBy, 1)
	assert.Equal(t, bob.user.ID, read.ReadBy[0].UserID)

	event, data = readEvent(t, aliceConn)
	assert.Equal(t, chat.EventMessageRead, event)
	var readPayload chat.ReadPayload
	require.NoError(t, json.Unmarshal(data, &readPayload))
	assert.Equal(t, sent.ID, readPayload.MessageID)
	require.Len(t, readPayload.ReadBy, 1)

	// The conversation read path returns the tombstoned message.
	resp := bob.do(t, ts, http.MethodGet, "/messages/"+alice.user.ID.String(), nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conversation []*models.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conversation))
	require.Len(t, conversation, 1)
	assert.Equal(t, models.DeletedText, conversation[0].Text)
}

func TestReplyRoutesBackToOriginalSender(t *testing.T) {
	ts := newTestServer(t)
	alice := register(t, ts, "alice")
	bob := register(t, ts, "bob")

	original := decodeMessage(t, alice.do(t, ts, http.MethodPost, "/messages/send/"+bob.user.ID.String(),
		SendMessageRequest{Text: "question"}), http.StatusCreated)

	aliceConn := alice.connectWS(t, ts)

	reply := decodeMessage(t, bob.do(t, ts, http.MethodPost, "/messages/reply/"+original.ID.String(),
		SendMessageRequest{Text: "answer"}), http.StatusCreated)
	assert.Equal(t, alice.user.ID, reply.ReceiverID)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, original.ID, *reply.ReplyTo)

	event, data := readEvent(t, aliceConn)
	assert.Equal(t, chat.EventNewMessage, event)
	var pushed models.Message
	require.NoError(t, json.Unmarshal(data, &pushed))
	assert.Equal(t, reply.ID, pushed.ID)
}
