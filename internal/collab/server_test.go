package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/collabdocs/collabdocs/internal/config"
	"github.com/collabdocs/collabdocs/internal/models"
	"github.com/collabdocs/collabdocs/internal/presence"
	"github.com/collabdocs/collabdocs/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testSecret = "collab-test-secret"

type liveServer struct {
	*fixture
	srv       *httptest.Server
	blacklist *tokens.Blacklist
}

func startServer(t *testing.T, enforce bool) *liveServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t, enforce)

	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	bl := tokens.NewBlacklist(rdb)

	f.hub = NewHub(f.store, f.reg, nil, config.CollabConfig{
		EnforceAccess: enforce,
		SendQueue:     32,
		PingPeriod:    time.Second,
		MaxMessage:    1 << 16,
	})
	r := gin.New()
	r.GET("/ws", NewHandler(f.hub, tokens.NewHMACVerifier(testSecret), bl, "*").ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(f.hub.Shutdown)
	return &liveServer{fixture: f, srv: srv, blacklist: bl}
}

func tokenFor(t *testing.T, sub, email string) string {
	t.Helper()
	tok, err := tokens.GenerateAccessToken(testSecret, &models.User{Sub: sub, Email: email}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *liveServer) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(u, nil)
}

func (s *liveServer) connect(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := s.dial(t, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: raw}))
}

func expect(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, event, env.Event, string(env.Data))
	return env
}

func TestHandshakeRequiresValidToken(t *testing.T) {
	s := startServer(t, true)

	for name, tok := range map[string]string{
		"missing": "",
		"garbage": "not-a-jwt",
		"foreign": func() string {
			raw, _ := tokens.GenerateAccessToken("other-secret", &models.User{Sub: "x"}, time.Hour)
			return raw
		}(),
	} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := s.dial(t, tok)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	revoked := tokenFor(t, alice.UserID, alice.Email)
	require.NoError(t, s.blacklist.Revoke(context.Background(), revoked, time.Hour))
	_, resp, err := s.dial(t, revoked)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerHeaderHandshake(t *testing.T) {
	s := startServer(t, true)
	u := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tokenFor(t, alice.UserID, alice.Email))
	conn, _, err := websocket.DefaultDialer.Dial(u, h)
	require.NoError(t, err)
	defer conn.Close()

	emit(t, conn, EventJoin, s.docID)
	expect(t, conn, EventJoined)
}

func TestTwoParticipantsLastWriteWins(t *testing.T) {
	s := startServer(t, true)
	a := s.connect(t, tokenFor(t, alice.UserID, alice.Email))
	b := s.connect(t, tokenFor(t, bob.UserID, bob.Email))

	emit(t, a, EventJoin, s.docID)
	expect(t, a, EventJoined)
	emit(t, b, EventJoin, s.docID)
	var joined Joined
	require.NoError(t, json.Unmarshal(expect(t, b, EventJoined).Data, &joined))
	require.Equal(t, "hello", joined.Content)
	require.ElementsMatch(t, []string{alice.UserID, bob.UserID}, joined.ActiveUsers)
	expect(t, a, EventUserJoined)

	emit(t, a, EventContentChange, ContentChange{DocumentID: s.docID, Content: "X"})
	var up ContentUpdated
	require.NoError(t, json.Unmarshal(expect(t, b, EventContentUpdated).Data, &up))
	require.Equal(t, "X", up.Content)
	require.Equal(t, alice.UserID, up.UserID)

	emit(t, b, EventContentChange, ContentChange{DocumentID: s.docID, Content: "Y"})
	// the first frame alice sees is bob's write, never an echo of her own
	require.NoError(t, json.Unmarshal(expect(t, a, EventContentUpdated).Data, &up))
	require.Equal(t, "Y", up.Content)
	require.Equal(t, bob.UserID, up.UserID)

	doc, err := s.store.FindByID(context.Background(), s.docID)
	require.NoError(t, err)
	require.Equal(t, "Y", doc.Content)

	require.NoError(t, b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	var left Presence
	require.NoError(t, json.Unmarshal(expect(t, a, EventUserLeft).Data, &left))
	require.Equal(t, bob.UserID, left.UserID)
	require.Equal(t, []string{alice.UserID}, left.ActiveUsers)
}

func TestSessionErrorsKeepConnectionOpen(t *testing.T) {
	s := startServer(t, true)
	c := s.connect(t, tokenFor(t, carol.UserID, carol.Email))

	emit(t, c, EventJoin, "missing-doc")
	require.Contains(t, string(expect(t, c, EventError).Data), MsgDocumentNotFound)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{")))
	require.Contains(t, string(expect(t, c, EventError).Data), MsgInvalidMessage)

	emit(t, c, EventJoin, s.docID)
	expect(t, c, EventJoined)
	emit(t, c, EventContentChange, ContentChange{DocumentID: s.docID, Content: "nope"})
	require.Contains(t, string(expect(t, c, EventError).Data), "Editor permission required")
}

func TestRedisBackedInstancesShareRooms(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rdb.Close()

	f := newFixture(t, true)
	reg := presence.NewRedisRegistry(rdb, "")
	bus := NewRedisBus(rdb)
	h1 := NewHub(f.store, reg, bus, config.CollabConfig{EnforceAccess: true})
	h2 := NewHub(f.store, reg, bus, config.CollabConfig{EnforceAccess: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	go func() { _ = bus.Subscribe(ctx, h2.Receive, ready) }()
	<-ready

	a := h1.Register(nil, alice)
	b := h2.Register(nil, bob)
	send(h2, b, EventJoin, f.docID)
	recv(t, b)
	send(h1, a, EventJoin, f.docID)
	var joined Joined
	recvEvent(t, a, EventJoined, &joined)
	require.Equal(t, []string{alice.UserID, bob.UserID}, joined.ActiveUsers)

	// h2 learns about alice through the bus
	var p Presence
	recvEvent(t, b, EventUserJoined, &p)
	require.Equal(t, alice.UserID, p.UserID)

	send(h1, a, EventContentChange, ContentChange{DocumentID: f.docID, Content: "remote"})
	var up ContentUpdated
	recvEvent(t, b, EventContentUpdated, &up)
	require.Equal(t, "remote", up.Content)
}
