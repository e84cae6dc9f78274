// Package room is the in-process broadcast registry keyed by challenge ID.
//
// Rooms exist only while they have subscribers. Delivery is best effort:
// nothing is persisted, retried or acknowledged, and a subscriber whose
// buffer is full misses the event.
package room

import (
	"log/slog"
	"sync"
)

const sendBuffer = 16

// Subscriber is the handle of one live connection. A subscriber may be in
// any number of rooms; frames for all of them arrive on C.
type Subscriber struct {
	ch    chan []byte
	rooms map[string]struct{}
}

// C returns the channel of encoded frames. It is closed by Disconnect.
func (s *Subscriber) C() <-chan []byte { return s.ch }

// Service owns the mapping from room ID to its subscribers.
type Service struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Subscriber]struct{}
	conns  int
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	return &Service{
		rooms:  make(map[string]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// NewSubscriber registers a new connection handle with no rooms.
func (s *Service) NewSubscriber() *Subscriber {
	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
	return &Subscriber{
		ch:    make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
}

// Subscribe adds sub to roomID, creating the room if needed. Subscribing
// twice to the same room is a no-op.
func (s *Service) Subscribe(roomID string, sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.rooms == nil {
		// Already disconnected.
		return
	}
	if s.rooms[roomID] == nil {
		s.rooms[roomID] = make(map[*Subscriber]struct{})
	}
	s.rooms[roomID][sub] = struct{}{}
	sub.rooms[roomID] = struct{}{}
}

// Unsubscribe removes sub from roomID and drops the room once empty.
func (s *Service) Unsubscribe(roomID string, sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked(roomID, sub)
}

func (s *Service) unsubscribeLocked(roomID string, sub *Subscriber) {
	delete(s.rooms[roomID], sub)
	if len(s.rooms[roomID]) == 0 {
		delete(s.rooms, roomID)
	}
	delete(sub.rooms, roomID)
}

// Disconnect removes sub from every room and closes its channel.
// Safe to call more than once.
func (s *Service) Disconnect(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.rooms == nil {
		return
	}
	for roomID := range sub.rooms {
		s.unsubscribeLocked(roomID, sub)
	}
	sub.rooms = nil
	s.conns--
	close(sub.ch)
}

// Broadcast sends ev to every current subscriber of roomID and returns how
// many subscribers accepted it. It never blocks on a slow subscriber.
func (s *Service) Broadcast(roomID string, ev Event) int {
	data, err := Encode(ev)
	if err != nil {
		s.logger.Warn("dropping invalid event", "room", roomID, "type", ev.Type(), "error", err)
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for sub := range s.rooms[roomID] {
		select {
		case sub.ch <- data:
			delivered++
		default:
			// Drop if subscriber is slow.
			s.logger.Debug("subscriber buffer full, event dropped", "room", roomID, "type", ev.Type())
		}
	}
	return delivered
}

// Subscribers reports the number of subscribers currently in roomID.
func (s *Service) Subscribers(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID])
}

// Rooms reports the number of non-empty rooms.
func (s *Service) Rooms() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Connections reports the number of live subscriber handles.
func (s *Service) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns
}
