// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aiku/slack-rtm/pkg/bus"
)

// apiCall records one API invocation against the fake server.
type apiCall struct {
	Method string
	Form   url.Values
}

// httpReply makes the fake server answer with a raw HTTP status and body
// instead of a JSON envelope.
type httpReply struct {
	Status int
	Body   string
}

// fakeSlack is a test helper that wraps an httptest.Server simulating the
// Slack API, including a WebSocket RTM endpoint at /ws. It records calls and
// serves queued responses per method; the last queued response is sticky.
type fakeSlack struct {
	Server *httptest.Server

	mu        sync.Mutex
	calls     []apiCall
	responses map[string][]any

	// OnWS, when set, owns each upgraded RTM connection. It receives the
	// zero-based connection index. When unset, the default script reads
	// inbound messages into wsMessages until the connection dies.
	OnWS func(i int, conn *websocket.Conn)

	wsConns    int
	wsMessages [][]byte

	upgrader websocket.Upgrader
}

func newFakeSlack() *fakeSlack {
	f := &fakeSlack{responses: make(map[string][]any)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeSlack) Close() {
	f.Server.Close()
}

// WSURL returns the RTM endpoint URL of the fake server.
func (f *fakeSlack) WSURL() string {
	return "ws" + strings.TrimPrefix(f.Server.URL, "http") + "/ws"
}

// Respond queues envelope responses for a method. Values may be
// map[string]any (encoded as JSON with status 200) or httpReply.
func (f *fakeSlack) Respond(method string, responses ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = append(f.responses[method], responses...)
}

// RespondRTMStart queues a successful rtm.start envelope pointing at the
// fake RTM endpoint.
func (f *fakeSlack) RespondRTMStart() {
	f.Respond("rtm.start", map[string]any{
		"ok":   true,
		"team": map[string]any{"id": "T1", "name": "Acme", "domain": "acme"},
		"self": map[string]any{"id": "UBOT", "name": "bot"},
		"url":  f.WSURL(),
	})
}

func (f *fakeSlack) nextResponse(method string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.responses[method]
	if len(queue) == 0 {
		return nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[method] = queue[1:]
	}
	return resp
}

// Calls returns the recorded invocations of a method.
func (f *fakeSlack) Calls(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how many times a method was invoked.
func (f *fakeSlack) CallCount(method string) int {
	return len(f.Calls(method))
}

// WSConns returns how many RTM connections were accepted.
func (f *fakeSlack) WSConns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wsConns
}

// WSMessages returns the inbound messages captured by the default script.
func (f *fakeSlack) WSMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.wsMessages))
	copy(out, f.wsMessages)
	return out
}

func (f *fakeSlack) handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		f.handleWS(w, r)
		return
	}

	method := strings.TrimPrefix(r.URL.Path, "/")
	_ = r.ParseForm()
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Form: r.PostForm})
	f.mu.Unlock()

	switch resp := f.nextResponse(method).(type) {
	case nil:
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	case httpReply:
		w.WriteHeader(resp.Status)
		_, _ = w.Write([]byte(resp.Body))
	default:
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (f *fakeSlack) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	i := f.wsConns
	f.wsConns++
	script := f.OnWS
	f.mu.Unlock()

	if script != nil {
		script(i, conn)
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.wsMessages = append(f.wsMessages, data)
		f.mu.Unlock()
	}
}

// sleepRecorder captures pagination rate-limit sleeps instead of sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	slept  []time.Duration
	refuse error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse != nil {
		return s.refuse
	}
	s.slept = append(s.slept, d)
	return nil
}

func (s *sleepRecorder) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.slept))
	copy(out, s.slept)
	return out
}

// newTestAPI creates an API client pointed at the fake server, with the
// rate-limit sleep recorded rather than performed.
func newTestAPI(f *fakeSlack) (*API, *sleepRecorder) {
	cfg := &Config{Token: "test-token", APIBaseURL: f.Server.URL}
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	api := NewAPI(cfg, zerolog.Nop())
	rec := &sleepRecorder{}
	api.sleep = rec.sleep
	return api, rec
}

// busEvent records one trigger emitted to the mock bus.
type busEvent struct {
	Name    string
	Payload map[string]any
}

// mockBus captures received messages and triggers for test assertions.
type mockBus struct {
	mu       sync.Mutex
	messages []*bus.Message
	triggers []busEvent
}

func (b *mockBus) Receive(msg *bus.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
}

func (b *mockBus) Trigger(event string, payload map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.triggers = append(b.triggers, busEvent{Name: event, Payload: payload})
}

func (b *mockBus) Messages() []*bus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*bus.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *mockBus) Triggers() []busEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]busEvent, len(b.triggers))
	copy(out, b.triggers)
	return out
}

// testStore is an in-memory UserStore that counts creates.
type testStore struct {
	mu      sync.Mutex
	users   map[string]*User
	creates int
}

func newTestStore() *testStore {
	return &testStore{users: make(map[string]*User)}
}

func (s *testStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id], nil
}

func (s *testStore) Create(_ context.Context, user *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	s.creates++
	return user, nil
}

func (s *testStore) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

// newTestDispatcher wires a dispatcher against the fake server with a mock
// bus, a counting store and a known self identity.
func newTestDispatcher(f *fakeSlack) (*Dispatcher, *mockBus, *testStore) {
	api, _ := newTestAPI(f)
	b := &mockBus{}
	st := newTestStore()
	users := NewUserRegistry(st, api, zerolog.Nop())
	channels := NewChannelRegistry()
	d := NewDispatcher(api, b, users, channels, zerolog.Nop())
	d.SetSelf(User{ID: "UBOT", MentionName: "bot", Name: "Bot"})
	return d, b, st
}

// decodeTestFrame decodes a raw JSON frame, failing the test on error.
func decodeTestFrame(t *testing.T, raw string) *Frame {
	t.Helper()
	f, err := DecodeFrame([]byte(raw))
	if err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	return f
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
