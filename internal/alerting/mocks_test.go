package alerting

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/leafwatch/leafwatch/internal/datastore/entities"
	"github.com/leafwatch/leafwatch/internal/datastore/repository"
	"github.com/leafwatch/leafwatch/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewZapLogger(io.Discard, logger.LogLevelError, nil)
}

// memStore is an in-memory implementation of every store the orchestrator
// uses. Error fields force failures on the matching call.
type memStore struct {
	mu          sync.Mutex
	owners      map[uint]string
	deviceConds map[uint][]entities.UserDeviceCondition
	plantConds  []entities.PlantCondition
	plants      map[uint]*entities.Plant
	alerts      []entities.Alert
	fahrenheit  map[string]bool
	nextID      uint

	createErr   error
	latestErr   error
	ownerErr    error
	settingsErr error
	deleteErr   error
}

func newMemStore() *memStore {
	return &memStore{
		owners:      make(map[uint]string),
		deviceConds: make(map[uint][]entities.UserDeviceCondition),
		plants:      make(map[uint]*entities.Plant),
		fahrenheit:  make(map[string]bool),
		nextID:      1,
	}
}

func (m *memStore) addDevice(deviceID uint, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[deviceID] = owner
}

func (m *memStore) addDeviceCondition(c entities.UserDeviceCondition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceConds[c.UserDeviceID] = append(m.deviceConds[c.UserDeviceID], c)
}

func (m *memStore) addPlant(p *entities.Plant, cond entities.PlantCondition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plants[p.ID] = p
	m.plantConds = append(m.plantConds, cond)
}

func (m *memStore) seedAlert(a entities.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID
	m.nextID++
	m.alerts = append(m.alerts, a)
}

func (m *memStore) allAlerts() []entities.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

func (m *memStore) DeviceOwner(_ context.Context, deviceID uint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerErr != nil {
		return "", m.ownerErr
	}
	owner, ok := m.owners[deviceID]
	if !ok {
		return "", repository.ErrDeviceNotFound
	}
	return owner, nil
}

func (m *memStore) GetPlant(_ context.Context, id uint) (*entities.Plant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plants[id]
	if !ok {
		return nil, repository.ErrPlantNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListDeviceConditions(_ context.Context, deviceID uint) ([]entities.UserDeviceCondition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.UserDeviceCondition
	for _, c := range m.deviceConds[deviceID] {
		if !c.Deleted {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListActivePlantConditions(_ context.Context) ([]entities.PlantCondition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.PlantCondition
	for _, c := range m.plantConds {
		if !c.Deleted {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CreateAlert(_ context.Context, a *entities.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	a.ID = m.nextID
	m.nextID++
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *memStore) LatestForDeviceCondition(_ context.Context, conditionID uint) (*entities.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	var latest *entities.Alert
	for i := range m.alerts {
		a := &m.alerts[i]
		if a.DeviceConditionID == nil || *a.DeviceConditionID != conditionID {
			continue
		}
		if latest == nil || !a.Time.Before(latest.Time) {
			latest = a
		}
	}
	if latest == nil {
		return nil, repository.ErrAlertNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) LatestPlantAlert(_ context.Context) (*entities.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	var latest *entities.Alert
	for i := range m.alerts {
		a := &m.alerts[i]
		if a.PlantConditionID == nil {
			continue
		}
		if latest == nil || !a.Time.Before(latest.Time) {
			latest = a
		}
	}
	if latest == nil {
		return nil, repository.ErrAlertNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	kept := m.alerts[:0]
	var deleted int64
	for _, a := range m.alerts {
		if a.Time.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return deleted, nil
}

func (m *memStore) UsesCelsius(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settingsErr != nil {
		return true, m.settingsErr
	}
	return !m.fahrenheit[userID], nil
}

type broadcastCall struct {
	topic       string
	message     LiveAlertMessage
	ctxErr      error
	hasDeadline bool
}

// fakeBroadcaster records broadcasts and optionally fails them.
type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
	err   error
}

func (f *fakeBroadcaster) BroadcastToTopic(ctx context.Context, topic string, message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, _ := message.(LiveAlertMessage)
	_, hasDeadline := ctx.Deadline()
	f.calls = append(f.calls, broadcastCall{topic: topic, message: msg, ctxErr: ctx.Err(), hasDeadline: hasDeadline})
	return f.err
}

func (f *fakeBroadcaster) recorded() []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broadcastCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// newTestOrchestrator wires an orchestrator to store and broadcaster with a
// fixed clock.
func newTestOrchestrator(store *memStore, b *fakeBroadcaster, now time.Time) *Orchestrator {
	o := NewOrchestrator(Dependencies{
		Devices:     store,
		Plants:      store,
		Conditions:  store,
		Alerts:      store,
		Settings:    store,
		Broadcaster: b,
		Log:         testLogger(),
	}, nil)
	o.now = func() time.Time { return now }
	return o
}

func uintPtr(v uint) *uint { return &v }
