package statemanager

import (
	"sync"
	"time"

	"grid-box-finder-go/internal/models"
	"grid-box-finder-go/internal/persistence"

	"go.uber.org/zap"
)

// EventType defines the type of a normalized event
type EventType int

const (
	// StateResetEvent replaces the tracked state with a retuner snapshot.
	StateResetEvent EventType = iota
	// FillEvent books one fill into the running totals.
	FillEvent
)

// NormalizedEvent is a standardized internal representation of an event
type NormalizedEvent struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// StateManager is responsible for all state mutations and persistence.
// It ensures that all state changes are processed serially.
type StateManager struct {
	mu              sync.RWMutex
	state           *models.RetunerState
	repo            persistence.StateRepository
	eventChannel    chan NormalizedEvent
	persistenceChan chan *models.RetunerState
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
	logger          *zap.Logger
}

// NewStateManager creates a new StateManager.
func NewStateManager(initialState *models.RetunerState, repo persistence.StateRepository, logger *zap.Logger) *StateManager {
	return &StateManager{
		state:           initialState,
		repo:            repo,
		eventChannel:    make(chan NormalizedEvent, 1024),
		persistenceChan: make(chan *models.RetunerState, 128),
		stopChan:        make(chan struct{}),
		logger:          logger,
	}
}

// Start begins the state manager's event processing and persistence loops.
func (sm *StateManager) Start() {
	sm.wg.Add(2)
	go sm.eventLoop()
	go sm.persistenceLoop()
	sm.logger.Sugar().Info("StateManager started.")
}

// Stop processes the events already queued, flushes pending saves and waits for both loops.
func (sm *StateManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
		sm.wg.Wait()
		sm.logger.Sugar().Info("StateManager stopped.")
	})
}

// DispatchEvent sends an event to the StateManager for processing.
// Events dispatched after Stop are dropped.
func (sm *StateManager) DispatchEvent(event NormalizedEvent) {
	select {
	case <-sm.stopChan:
		sm.logger.Sugar().Warnf("StateManager stopped, dropping event type %d", event.Type)
		return
	default:
	}
	select {
	case sm.eventChannel <- event:
	case <-sm.stopChan:
		sm.logger.Sugar().Warnf("StateManager stopped, dropping event type %d", event.Type)
	}
}

// Publish implements retuner.StatePublisher.
func (sm *StateManager) Publish(state *models.RetunerState) {
	sm.DispatchEvent(NormalizedEvent{Type: StateResetEvent, Timestamp: time.Now(), Data: state})
}

// RecordFill implements retuner.StatePublisher.
func (sm *StateManager) RecordFill(fill models.Fill) {
	sm.DispatchEvent(NormalizedEvent{Type: FillEvent, Timestamp: fill.Time, Data: fill})
}

// GetStateSnapshot returns a deep copy of the current state for safe, concurrent reading.
func (sm *StateManager) GetStateSnapshot() *models.RetunerState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return deepCopy(sm.state)
}

// deepCopy creates a deep copy of the RetunerState to prevent data races.
func deepCopy(state *models.RetunerState) *models.RetunerState {
	if state == nil {
		return nil
	}
	stateCopy := *state
	if state.Band != nil {
		band := *state.Band
		stateCopy.Band = &band
	}
	if state.Risk.SymbolExposure != nil {
		stateCopy.Risk.SymbolExposure = make(map[string]float64, len(state.Risk.SymbolExposure))
		for k, v := range state.Risk.SymbolExposure {
			stateCopy.Risk.SymbolExposure[k] = v
		}
	}
	return &stateCopy
}

// eventLoop is the core processing loop that handles all incoming events serially.
func (sm *StateManager) eventLoop() {
	defer sm.wg.Done()
	defer close(sm.persistenceChan)
	for {
		select {
		case event := <-sm.eventChannel:
			sm.processEvent(event)
		case <-sm.stopChan:
			for {
				select {
				case event := <-sm.eventChannel:
					sm.processEvent(event)
				default:
					return
				}
			}
		}
	}
}

// persistenceLoop saves snapshots until the event loop closes the channel.
func (sm *StateManager) persistenceLoop() {
	defer sm.wg.Done()
	for stateToSave := range sm.persistenceChan {
		if sm.repo == nil {
			continue
		}
		if err := sm.repo.SaveState(stateToSave); err != nil {
			sm.logger.Sugar().Errorf("CRITICAL: Failed to save state for %s: %v", stateToSave.Symbol, err)
		}
	}
}

// processEvent contains the logic to mutate the state based on an event.
func (sm *StateManager) processEvent(event NormalizedEvent) {
	sm.mu.Lock()
	switch event.Type {
	case StateResetEvent:
		newState, ok := event.Data.(*models.RetunerState)
		if !ok || newState == nil {
			sm.mu.Unlock()
			sm.logger.Sugar().Warnf("Received StateResetEvent with unexpected data type: %T", event.Data)
			return
		}
		next := deepCopy(newState)
		// fill totals are owned here, not by the retuner
		if sm.state != nil {
			next.Fills = sm.state.Fills
			next.RealizedPnL = sm.state.RealizedPnL
		}
		sm.state = next
	case FillEvent:
		fill, ok := event.Data.(models.Fill)
		if !ok {
			sm.mu.Unlock()
			sm.logger.Sugar().Warnf("Received FillEvent with unexpected data type: %T", event.Data)
			return
		}
		if sm.state == nil {
			sm.state = &models.RetunerState{Symbol: fill.Symbol}
		}
		sm.state.Fills++
		sm.state.RealizedPnL += fill.RealizedPnL
		sm.logger.Info("Fill recorded",
			zap.String("symbol", fill.Symbol),
			zap.String("side", string(fill.Side)),
			zap.Float64("price", fill.Price),
			zap.Float64("qty", fill.Quantity),
			zap.Float64("realizedPnL", fill.RealizedPnL),
			zap.Int("fills", sm.state.Fills),
			zap.Float64("totalPnL", sm.state.RealizedPnL))
	default:
		sm.mu.Unlock()
		sm.logger.Sugar().Warnf("Received unknown event type: %d", event.Type)
		return
	}

	sm.state.LastUpdateTime = time.Now()
	stateCopy := deepCopy(sm.state)
	sm.mu.Unlock()

	// After processing, send a deep copy of the new state to the persistence channel.
	if stateCopy.Symbol != "" {
		sm.persistenceChan <- stateCopy
	}
}
