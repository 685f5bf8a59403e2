package ordersync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"trading-sync/internal/events"
	"trading-sync/internal/logging"
	"trading-sync/internal/orders"
)

// DefaultSyncInterval is the pause between reconciliation passes.
const DefaultSyncInterval = 5 * time.Second

// maxConnectBackoff caps the retry delay when the shared store is
// unreachable.
const maxConnectBackoff = 30 * time.Second

// Manager runs the bidirectional order synchronization between the local
// ledger and the shared store.
type Manager struct {
	ledger   Ledger
	store    Store
	bus      *events.EventBus // nil disables event publication
	interval time.Duration
	isCloud  bool

	// lastKnown is read and written only by the outbound goroutine.
	lastKnown map[string]*orders.Order

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a sync manager. A non-positive interval falls back to
// DefaultSyncInterval.
func NewManager(ledger Ledger, store Store, bus *events.EventBus, interval time.Duration, isCloud bool) *Manager {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Manager{
		ledger:    ledger,
		store:     store,
		bus:       bus,
		interval:  interval,
		isCloud:   isCloud,
		lastKnown: make(map[string]*orders.Order),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the outbound and inbound loops. Calling Start on a running
// manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	if err := m.store.Ping(context.Background()); err != nil {
		log.Printf("[ORDER-SYNC] Warning: shared store unreachable at startup: %v", err)
	}

	m.wg.Add(2)
	go m.outboundLoop()
	go m.inboundLoop()

	mode := "local"
	if m.isCloud {
		mode = "cloud"
	}
	log.Printf("[ORDER-SYNC] Started %s sync loops (interval %v)", mode, m.interval)
}

// Stop signals both loops and waits for them to exit. Safe to call from any
// goroutine; the wait is bounded by the current sleep, at most one interval.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	log.Printf("[ORDER-SYNC] Stopped sync loops")
}

// outboundLoop detects local changes and pushes them to the shared store.
func (m *Manager) outboundLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		// Run one pass immediately so a fresh start converges without
		// waiting a full interval.
		m.pushLocalChanges()

		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
		}
	}
}

// pushLocalChanges is a single outbound pass: publish new or changed active
// orders, delete orders that disappeared locally, then replace the snapshot.
func (m *Manager) pushLocalChanges() {
	ctx := context.Background()

	active, err := m.ledger.GetActiveOrders(ctx)
	if err != nil {
		// A failed read may be partial; keep the previous snapshot so a
		// missing order is not mistaken for a deletion.
		log.Printf("[ORDER-SYNC] Error reading active orders: %v", err)
		return
	}

	current := make(map[string]*orders.Order, len(active))
	for _, o := range active {
		if orders.IsPlaceholderID(o.OrderID) {
			continue
		}
		current[o.OrderID] = o
	}

	published, deleted := 0, 0

	for orderID, o := range current {
		if prev, ok := m.lastKnown[orderID]; ok && o.SameSyncState(prev) {
			continue
		}

		payload, err := orders.MarshalWire(o)
		if err != nil {
			log.Printf("[ORDER-SYNC] Error serializing order %s: %v", orderID, err)
			continue
		}
		if err := m.store.PublishOrder(ctx, orderID, payload); err != nil {
			log.Printf("[ORDER-SYNC] Error publishing order %s: %v", orderID, err)
			continue
		}
		published++
		log.Printf("[ORDER-SYNC] Published order %s (status %s)", orderID, o.Status)
	}

	for orderID := range m.lastKnown {
		if _, ok := current[orderID]; ok {
			continue
		}
		if err := m.store.DeleteOrder(ctx, orderID); err != nil {
			log.Printf("[ORDER-SYNC] Error deleting order %s from shared store: %v", orderID, err)
			continue
		}
		deleted++
		log.Printf("[ORDER-SYNC] Deleted order %s from shared store", orderID)
	}

	if published > 0 || deleted > 0 {
		logging.SyncContext("outbound", published).Debug("Outbound pass complete", "deleted", deleted)
	}

	m.lastKnown = current
}

// inboundLoop pulls the shared hash and applies remote changes locally.
func (m *Manager) inboundLoop() {
	defer m.wg.Done()

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxConnectBackoff

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	connected := true
	for {
		if err := m.store.Ping(context.Background()); err != nil {
			if connected {
				connected = false
				if m.bus != nil {
					m.bus.PublishSyncStatus(false, err.Error())
				}
			}
			sleep := backoffCfg.NextBackOff()
			if sleep == backoff.Stop {
				sleep = maxConnectBackoff
			}
			log.Printf("[ORDER-SYNC] Shared store unreachable, retrying in %v: %v", sleep.Round(time.Millisecond), err)
			select {
			case <-m.stopChan:
				return
			case <-time.After(sleep):
			}
			continue
		}
		if !connected {
			connected = true
			if m.bus != nil {
				m.bus.PublishSyncStatus(true, "shared store reachable again")
			}
		}
		backoffCfg.Reset()

		m.applyRemoteChanges()

		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
		}
	}
}

// applyRemoteChanges is a single inbound pass. Per-record failures are
// logged and skipped; nothing aborts the batch.
func (m *Manager) applyRemoteChanges() {
	ctx := context.Background()

	remote, err := m.store.FetchOrders(ctx)
	if err != nil {
		log.Printf("[ORDER-SYNC] Error fetching shared orders: %v", err)
		if m.bus != nil {
			m.bus.PublishError("ordersync", "failed to fetch shared orders", err)
		}
		return
	}

	applied := 0
	for orderID, payload := range remote {
		if orders.IsPlaceholderID(orderID) {
			continue
		}

		incoming, err := orders.UnmarshalWire([]byte(payload))
		if err != nil {
			log.Printf("[ORDER-SYNC] Skipping malformed order %s: %v", orderID, err)
			continue
		}

		existing, err := m.ledger.GetOrder(ctx, orderID)
		if err != nil {
			log.Printf("[ORDER-SYNC] Error looking up order %s: %v", orderID, err)
			continue
		}
		if existing != nil && incoming.SameSyncState(existing) {
			continue
		}

		if err := m.ledger.SaveOrder(ctx, incoming); err != nil {
			log.Printf("[ORDER-SYNC] Error saving order %s: %v", orderID, err)
			continue
		}
		applied++
		if m.bus != nil {
			if existing != nil {
				m.bus.PublishOrderUpdated(orderID, incoming.Symbol, string(incoming.Status), incoming.FilledVolume)
			} else {
				m.bus.PublishOrderSynced(orderID, incoming.Symbol, string(incoming.Status), "store")
			}
		}
		log.Printf("[ORDER-SYNC] Synced order %s (status %s)", orderID, incoming.Status)
	}

	if applied > 0 {
		logging.SyncContext("inbound", applied).Debug("Inbound pass complete")
	}
}
