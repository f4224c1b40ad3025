package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shreyanshjain05/sparkthon/pkg/agent"
	"github.com/shreyanshjain05/sparkthon/pkg/conversation"
	"github.com/shreyanshjain05/sparkthon/pkg/laneq"
	"github.com/shreyanshjain05/sparkthon/pkg/store"
	"github.com/shreyanshjain05/sparkthon/pkg/toolexec"
)

type echoProvider struct{}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) Infer(ctx context.Context, request agent.Request) (*agent.Response, error) {
	last := request.Messages[len(request.Messages)-1]
	return &agent.Response{Content: "You said: " + last.Content}, nil
}

// blockingProvider waits for its context to die, or for a long timeout.
type blockingProvider struct {
	started chan struct{}
	outcome chan error
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{
		started: make(chan struct{}),
		outcome: make(chan error, 1),
	}
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Infer(ctx context.Context, request agent.Request) (*agent.Response, error) {
	close(p.started)
	select {
	case <-ctx.Done():
		p.outcome <- ctx.Err()
		return nil, ctx.Err()
	case <-time.After(3 * time.Second):
		p.outcome <- nil
		return &agent.Response{Content: "too late"}, nil
	}
}

type testEnv struct {
	server *Server
	store  *store.Store
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, &echoProvider{})
}

func newTestEnvWith(t *testing.T, provider agent.Provider) *testEnv {
	t.Helper()

	s, err := store.New(store.Config{
		Path:   filepath.Join(t.TempDir(), "shop.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	queue := laneq.New()
	t.Cleanup(func() { queue.Close() })

	runner, err := agent.NewRunner(agent.Config{
		Registry: toolexec.New(time.Second),
		Queue:    queue,
		Provider: provider,
		Logger:   zerolog.Nop(),
		Model:    "test-model",
	})
	require.NoError(t, err)

	server, err := NewServer(Config{
		Host:          "127.0.0.1",
		Port:          8000,
		Runner:        runner,
		Conversations: conversation.NewStore(zerolog.Nop()),
		Queue:         queue,
		Store:         s,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: server, store: s, http: ts}
}

func (e *testEnv) seedProduct(t *testing.T, name, sku, brand string, price float64, stock int) {
	t.Helper()
	require.NoError(t, e.store.InsertProduct(context.Background(), &store.Product{
		ItemName:      name,
		SKU:           sku,
		Brand:         brand,
		Quantity:      500,
		Unit:          "g",
		Category:      "pantry",
		Price:         price,
		StockQuantity: stock,
		IsActive:      true,
	}))
}

func TestHealthz(t *testing.T) {
	t.Run("should report ok when the store responds", func(t *testing.T) {
		env := newTestEnv(t)

		resp, err := http.Get(env.http.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "Spaghetti Pasta", "PASTA-001", "Barilla", 2.99, 10)
	env.seedProduct(t, "Penne Pasta", "PASTA-002", "DeCecco", 3.49, 0)

	t.Run("should return matching products", func(t *testing.T) {
		resp, err := http.Get(env.http.URL + "/api/search?q=pasta")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			Products []productSummary `json:"products"`
			Count    int              `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

		assert.Equal(t, 2, body.Count)
		assert.Equal(t, "PASTA-001", body.Products[0].SKU)
		assert.True(t, body.Products[0].InStock)
		assert.False(t, body.Products[1].InStock)
	})

	t.Run("should return nothing for a blank query", func(t *testing.T) {
		resp, err := http.Get(env.http.URL + "/api/search?q=")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 0, body.Count)
	})

	t.Run("should reject non-GET methods", func(t *testing.T) {
		resp, err := http.Post(env.http.URL+"/api/search", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestChat(t *testing.T) {
	t.Run("should answer and hand back a conversation id", func(t *testing.T) {
		env := newTestEnv(t)

		payload, _ := json.Marshal(chatRequest{Message: "hello"})
		resp, err := http.Post(env.http.URL+"/api/chat", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var reply chatReply
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
		assert.Equal(t, "You said: hello", reply.Response)
		assert.NotEmpty(t, reply.ConversationID)
	})

	t.Run("should continue an existing conversation", func(t *testing.T) {
		env := newTestEnv(t)

		payload, _ := json.Marshal(chatRequest{Message: "first"})
		resp, err := http.Post(env.http.URL+"/api/chat", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		var reply chatReply
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
		resp.Body.Close()

		payload, _ = json.Marshal(chatRequest{Message: "second", ConversationID: reply.ConversationID})
		resp, err = http.Post(env.http.URL+"/api/chat", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		var second chatReply
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
		assert.Equal(t, reply.ConversationID, second.ConversationID)
		assert.Equal(t, "You said: second", second.Response)
	})

	t.Run("should reject an empty message", func(t *testing.T) {
		env := newTestEnv(t)

		resp, err := http.Post(env.http.URL+"/api/chat", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestWebSocket(t *testing.T) {
	t.Run("should chat over a websocket connection", func(t *testing.T) {
		env := newTestEnv(t)

		wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(chatMessage{Message: "hi there"}))

		var reply chatReply
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, "You said: hi there", reply.Response)
		assert.Empty(t, reply.Error)
	})

	t.Run("should report malformed frames without closing", func(t *testing.T) {
		env := newTestEnv(t)

		wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

		var reply chatReply
		require.NoError(t, conn.ReadJSON(&reply))
		assert.NotEmpty(t, reply.Error)

		// The connection stays usable.
		require.NoError(t, conn.WriteJSON(chatMessage{Message: "still here"}))
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, "You said: still here", reply.Response)
	})

	t.Run("should cancel the in-flight turn when the client disconnects", func(t *testing.T) {
		provider := newBlockingProvider()
		env := newTestEnvWith(t, provider)

		wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)

		require.NoError(t, conn.WriteJSON(chatMessage{Message: "slow request"}))

		select {
		case <-provider.started:
		case <-time.After(2 * time.Second):
			t.Fatal("inference never started")
		}

		require.NoError(t, conn.Close())

		select {
		case err := <-provider.outcome:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("turn kept running after the client disconnected")
		}
	})
}
