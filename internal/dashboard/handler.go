package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/wanderlog/wandersync/internal/store"
	"github.com/wanderlog/wandersync/internal/sync"
)

// Handler bridges engine, monitor, and store events onto the WebSocket
// server as dashboard messages.
type Handler struct {
	server *Server
	engine *sync.Engine
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, engine *sync.Engine, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		engine: engine,
		logger: logger,
	}
}

// Attach wires the handler into the engine's callbacks, the network
// monitor, and the store's mutation events. Call once, before the server
// starts accepting clients.
func (h *Handler) Attach(monitor *sync.NetworkMonitor, st *store.Store) {
	h.server.SetSnapshot(h.Snapshot)

	h.engine.OnSyncProgress(func(p sync.Progress) {
		h.broadcast(MessageTypeSyncProgress, SyncProgressData{
			CompletedBatches: p.CompletedBatches,
			TotalBatches:     p.TotalBatches,
			Fraction:         p.Fraction(),
		})
	})

	h.engine.OnSyncComplete(func(success bool) {
		data := SyncCompleteData{
			Success:        success,
			PendingChanges: h.engine.PendingChangesCount(),
		}
		if err := h.engine.SyncError(); err != nil {
			data.Error = err.Error()
		}
		h.broadcast(MessageTypeSyncComplete, data)
		h.broadcast(MessageTypeStats, h.Snapshot())
	})

	if monitor != nil {
		monitor.Subscribe(func(status sync.NetworkStatus) {
			h.broadcast(MessageTypeNetworkStatus, NetworkStatusData{
				Status: status.String(),
			})
		})
	}

	if st != nil {
		st.Subscribe(func(e store.Event) {
			h.broadcast(MessageTypeTripUpdate, TripUpdateData{
				TripID: e.TripID,
				Op:     string(e.Op),
			})
		})
	}
}

// Snapshot returns the current engine state for new clients.
func (h *Handler) Snapshot() StatsData {
	return StatsData{
		State:          h.engine.State().String(),
		PendingChanges: h.engine.PendingChangesCount(),
		LastSyncAt:     h.engine.LastSyncDate(),
		Network:        h.engine.NetworkStatus().String(),
	}
}

func (h *Handler) broadcast(typ MessageType, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      payload,
	})
}
