package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dsarena/go/internal/battle/events"
	"github.com/mcdev12/dsarena/go/internal/battle/judge"
	"github.com/mcdev12/dsarena/go/internal/battle/orchestrator"
	"github.com/mcdev12/dsarena/go/internal/battle/problem"
)

// stubJudge passes every test for the code "good" and none otherwise.
type stubJudge struct{}

func (stubJudge) Run(_ context.Context, _, code string, tests []problem.TestCase) judge.Score {
	if code == "good" {
		return judge.Score{Passed: len(tests), Total: len(tests)}
	}
	return judge.Score{Total: len(tests)}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	svc := NewService(DefaultConfig())
	orch := orchestrator.NewOrchestrator(
		orchestrator.DefaultConfig(),
		problem.NewFallbackGenerator(nil),
		stubJudge{},
		svc,
		orchestrator.WithClock(clockwork.NewFakeClock()),
		orchestrator.WithLanguages("python", "javascript"),
	)
	svc.Attach(orch)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)
	go orch.Run(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func dial(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/battle"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c := &client{t: t, conn: conn}
	var hello events.ConnectedPayload
	c.readInto(events.EventTypeConnected, &hello)
	if hello.YourID == "" {
		t.Fatal("connected event without player id")
	}
	c.id = hello.YourID
	return c
}

func (c *client) send(eventType events.EventType, room string, payload interface{}) {
	c.t.Helper()
	ev := events.MustNew(eventType, room, payload)
	if err := c.conn.WriteJSON(ev); err != nil {
		c.t.Fatalf("write %s: %v", eventType, err)
	}
}

// read returns the next event of the given type, skipping any others.
func (c *client) read(eventType events.EventType) *events.Event {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev events.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			c.t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if ev.Type == eventType {
			return &ev
		}
	}
}

func (c *client) readInto(eventType events.EventType, v interface{}) *events.Event {
	c.t.Helper()
	ev := c.read(eventType)
	if err := json.Unmarshal(ev.Data, v); err != nil {
		c.t.Fatalf("decode %s: %v", eventType, err)
	}
	return ev
}

func getStats(t *testing.T, srv *httptest.Server) StatsResponse {
	t.Helper()
	resp, err := http.Get(srv.URL + "/battle/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	return stats
}

func waitStats(t *testing.T, srv *httptest.Server, ok func(StatsResponse) bool) StatsResponse {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		s := getStats(t, srv)
		if ok(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("stats never converged: %+v", s)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func pair(t *testing.T, srv *httptest.Server) (alice, bob *client, room string) {
	t.Helper()
	alice, bob = dial(t, srv), dial(t, srv)

	alice.send(events.EventTypeJoinBattle, "", events.JoinBattlePayload{Language: "python"})
	var waiting events.WaitingPayload
	alice.readInto(events.EventTypeWaiting, &waiting)
	if waiting.Language != "python" {
		t.Fatalf("waiting language = %q", waiting.Language)
	}

	bob.send(events.EventTypeJoinBattle, "", events.JoinBattlePayload{Language: "python"})

	var aStart, bStart events.BattleStartPayload
	alice.readInto(events.EventTypeBattleStart, &aStart)
	bob.readInto(events.EventTypeBattleStart, &bStart)
	if aStart.Room == "" || aStart.Room != bStart.Room {
		t.Fatalf("rooms differ: %q vs %q", aStart.Room, bStart.Room)
	}
	if aStart.Opponent != bob.id || bStart.Opponent != alice.id {
		t.Fatalf("opponents = %q/%q, want %q/%q", aStart.Opponent, bStart.Opponent, bob.id, alice.id)
	}
	return alice, bob, aStart.Room
}

func TestBattleOverWebSocket(t *testing.T) {
	srv := newTestServer(t)
	alice, bob, room := pair(t, srv)

	alice.send(events.EventTypeSubmitCode, "", events.SubmitCodePayload{Room: room, Code: "good"})
	bob.read(events.EventTypeOpponentSubmitted)

	// room carried in the envelope only
	bob.send(events.EventTypeSubmitCode, room, events.SubmitCodePayload{Code: "print(1)"})

	var aResult, bResult events.BattleResultPayload
	alice.readInto(events.EventTypeBattleResult, &aResult)
	bob.readInto(events.EventTypeBattleResult, &bResult)

	if aResult.Winner == nil || *aResult.Winner != alice.id {
		t.Fatalf("winner = %v, want %s", aResult.Winner, alice.id)
	}
	if aResult.YourID != alice.id || aResult.YourScore != 3 || aResult.OpponentScore != 0 || aResult.Total != 3 {
		t.Errorf("alice result = %+v", aResult)
	}
	if bResult.YourID != bob.id || bResult.YourScore != 0 || bResult.OpponentScore != 3 {
		t.Errorf("bob result = %+v", bResult)
	}

	stats := waitStats(t, srv, func(s StatsResponse) bool { return s.ActiveRooms == 0 })
	if stats.BattlesFinished != 1 || stats.Connections != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestClientErrors(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)

	var e events.ErrorPayload

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.readInto(events.EventTypeError, &e)
	if e.Message != "malformed message" {
		t.Errorf("message = %q", e.Message)
	}

	c.send("teleport", "", nil)
	c.readInto(events.EventTypeError, &e)
	if !strings.Contains(e.Message, "teleport") {
		t.Errorf("message = %q", e.Message)
	}

	c.send(events.EventTypeJoinBattle, "", events.JoinBattlePayload{Language: " "})
	c.readInto(events.EventTypeError, &e)
	if e.Message != "language is required" {
		t.Errorf("message = %q", e.Message)
	}

	c.send(events.EventTypeJoinBattle, "", events.JoinBattlePayload{Language: "cpp"})
	c.readInto(events.EventTypeError, &e)
	if e.Message != "language not supported" {
		t.Errorf("message = %q", e.Message)
	}
}

func TestJoinWhileInBattle(t *testing.T) {
	srv := newTestServer(t)
	alice, _, _ := pair(t, srv)

	alice.send(events.EventTypeJoinBattle, "", events.JoinBattlePayload{Language: "javascript"})
	var e events.ErrorPayload
	alice.readInto(events.EventTypeError, &e)
	if e.Message != "already in a battle" {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestOversizedSubmission(t *testing.T) {
	srv := newTestServer(t)
	alice, _, room := pair(t, srv)

	code := strings.Repeat("x", orchestrator.DefaultConfig().MaxCodeBytes+1)
	alice.send(events.EventTypeSubmitCode, "", events.SubmitCodePayload{Room: room, Code: code})

	var e events.ErrorPayload
	alice.readInto(events.EventTypeError, &e)
	if e.Message != "submission too large" {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestLeaveAndDisconnectClearQueue(t *testing.T) {
	srv := newTestServer(t)
	alice, bob := dial(t, srv), dial(t, srv)

	alice.send(events.EventTypeJoinBattle, "", events.JoinBattlePayload{Language: "python"})
	alice.read(events.EventTypeWaiting)
	alice.send(events.EventTypeLeaveQueue, "", nil)
	waitStats(t, srv, func(s StatsResponse) bool { return s.WaitingPlayers == 0 })

	bob.send(events.EventTypeJoinBattle, "", events.JoinBattlePayload{Language: "python"})
	bob.read(events.EventTypeWaiting)
	bob.conn.Close()

	waitStats(t, srv, func(s StatsResponse) bool { return s.WaitingPlayers == 0 && s.Connections == 1 })
}
