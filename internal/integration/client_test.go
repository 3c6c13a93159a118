package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chathub/internal/app"
	"chathub/internal/config"
	"chathub/pkg/middleware"
	"chathub/pkg/types"
)

const (
	testSecret   = "integration-secret-0123456789"
	eventTimeout = 3 * time.Second
)

// testServer is a running application on a loopback port.
type testServer struct {
	app  *app.Application
	base string
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "integration.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = port
	cfg.Auth.JWTSecret = testSecret

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})

	return &testServer{app: application, base: "http://" + application.GetAddr()}
}

// request performs an authenticated API call as userID and decodes the body into out.
func (s *testServer) request(t *testing.T, method, path, userID string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, s.base+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := middleware.GenerateJWT(testSecret, "chathub", userID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (s *testServer) register(t *testing.T, userID string) {
	t.Helper()
	if code := s.request(t, http.MethodPut, "/api/users/me", userID, map[string]string{"fullName": userID}, nil); code != http.StatusOK {
		t.Fatalf("Registering %s failed with status %d", userID, code)
	}
}

func (s *testServer) sendDirect(t *testing.T, from, to, text string) *types.Message {
	t.Helper()
	var message types.Message
	body := map[string]string{"receiverId": to, "text": text}
	if code := s.request(t, http.MethodPost, "/api/messages", from, body, &message); code != http.StatusCreated {
		t.Fatalf("Sending message failed with status %d", code)
	}
	return &message
}

// testClient is a websocket client collecting every frame it receives.
type testClient struct {
	UserID string

	conn   *websocket.Conn
	events chan types.Envelope
	done   chan struct{}

	writeMu sync.Mutex
}

func connectClient(t *testing.T, s *testServer, userID string) *testClient {
	t.Helper()

	u, err := url.Parse(s.base)
	if err != nil {
		t.Fatal(err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = url.Values{"userId": {userID}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("Failed to connect %s: %v", userID, err)
	}

	c := &testClient{
		UserID: userID,
		conn:   conn,
		events: make(chan types.Envelope, 100),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(c.Close)

	return c
}

func (c *testClient) readLoop() {
	defer close(c.done)
	for {
		var env types.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		select {
		case c.events <- env:
		default:
		}
	}
}

func (c *testClient) Emit(t *testing.T, event string, data any) {
	t.Helper()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("%s failed to emit %s: %v", c.UserID, event, err)
	}
}

// Next returns the next frame whose event is not in skip.
func (c *testClient) Next(t *testing.T, skip ...string) types.Envelope {
	t.Helper()
	timeout := time.After(eventTimeout)
	for {
		select {
		case env := <-c.events:
			if slices.Contains(skip, env.Event) {
				continue
			}
			return env
		case <-timeout:
			t.Fatalf("%s received no event within %v", c.UserID, eventTimeout)
			return types.Envelope{}
		}
	}
}

// WaitFor skips frames until one named event arrives.
func (c *testClient) WaitFor(t *testing.T, event string) types.Envelope {
	t.Helper()
	timeout := time.After(eventTimeout)
	for {
		select {
		case env := <-c.events:
			if env.Event == event {
				return env
			}
		case <-timeout:
			t.Fatalf("%s never received %s", c.UserID, event)
			return types.Envelope{}
		}
	}
}

// WaitForOnline waits for a presence snapshot equal to want.
func (c *testClient) WaitForOnline(t *testing.T, want ...string) {
	t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for time.Now().Before(deadline) {
		env := c.WaitFor(t, types.EventGetOnlineUsers)
		var online []string
		if err := json.Unmarshal(env.Data, &online); err != nil {
			t.Fatalf("Bad presence payload %s: %v", env.Data, err)
		}
		if fmt.Sprint(online) == fmt.Sprint(want) {
			return
		}
	}
	t.Fatalf("%s never saw online users %v", c.UserID, want)
}

func (c *testClient) Close() {
	_ = c.conn.Close()
	<-c.done
}
