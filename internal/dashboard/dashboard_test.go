package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/wanderlog/wandersync/internal/remote"
	"github.com/wanderlog/wandersync/internal/store"
	"github.com/wanderlog/wandersync/internal/sync"
)

// nopBackend is a remote backend with nothing to pull and an always
// successful push.
type nopBackend struct{}

func (nopBackend) Pull(ctx context.Context, since time.Time) ([]remote.Record, error) {
	return nil, nil
}

func (nopBackend) Push(ctx context.Context, batch []remote.PushOp) error {
	return nil
}

func (nopBackend) AccountStatus(ctx context.Context) (remote.AccountStatus, error) {
	return remote.StatusAvailable, nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, Logger: testLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: testLogger()})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWelcomeMessageCarriesSnapshot(t *testing.T) {
	server := startServer(t)
	server.SetSnapshot(func() StatsData {
		return StatsData{State: "idle", PendingChanges: 2, Network: "online"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected welcome type %s, got %s", MessageTypeStats, msg.Type)
	}

	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.PendingChanges != 2 || stats.State != "idle" {
		t.Errorf("welcome stats = %+v", stats)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn) // welcome

	payload, _ := json.Marshal(SyncProgressData{CompletedBatches: 1, TotalBatches: 3})
	server.Broadcast(Message{Type: MessageTypeSyncProgress, Data: payload})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncProgress {
		t.Fatalf("Expected %s, got %s", MessageTypeSyncProgress, msg.Type)
	}
	var progress SyncProgressData
	if err := json.Unmarshal(msg.Data, &progress); err != nil {
		t.Fatal(err)
	}
	if progress.CompletedBatches != 1 || progress.TotalBatches != 3 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestHandlerStreamsSyncPass(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "wandersync.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	monitor := sync.NewNetworkMonitor(sync.StatusOnline)
	engine := sync.New(st, nopBackend{}, monitor, sync.ConfigForEnvironment(sync.EnvTest), testLogger())

	server := startServer(t)
	handler := NewHandler(server, engine, testLogger())
	handler.Attach(monitor, st)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn) // welcome

	if err := engine.PerformSync(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	// A pass over an empty queue still produces one progress update, a
	// completion, and a stats refresh.
	seen := map[MessageType]bool{}
	for len(seen) < 3 {
		msg := readMessage(t, ctx, conn)
		seen[msg.Type] = true

		if msg.Type == MessageTypeSyncComplete {
			var data SyncCompleteData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				t.Fatal(err)
			}
			if !data.Success {
				t.Errorf("sync_complete reported failure: %+v", data)
			}
		}
	}

	for _, want := range []MessageType{MessageTypeSyncProgress, MessageTypeSyncComplete, MessageTypeStats} {
		if !seen[want] {
			t.Errorf("never received %s", want)
		}
	}
}
