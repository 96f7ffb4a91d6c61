package services

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var defaultPrinter = message.NewPrinter(language.English)

type RewardEventKind string

const (
	EventRewardCompleted RewardEventKind = "completed"
	EventRewardClaimed   RewardEventKind = "claimed"
)

// RewardEvent is what the UI turns into a toast.
type RewardEvent struct {
	ID       string          `json:"id"`
	Kind     RewardEventKind `json:"kind"`
	UserID   int64           `json:"user_id"`
	RewardID int64           `json:"reward_id"`
	Title    string          `json:"title"`
	Points   int             `json:"points"`
	Health   int             `json:"health"`
	Message  string          `json:"message"`
	At       time.Time       `json:"at"`
}

// RewardEventBus fans reward events out to per-user subscribers.
// Every method is safe on a nil bus: publishes are dropped and subscribers
// never receive anything.
type RewardEventBus struct {
	mu      sync.RWMutex
	subs    map[int64]map[string]chan RewardEvent
	buffer  int
	printer *message.Printer
}

func NewRewardEventBus(buffer int) *RewardEventBus {
	if buffer < 1 {
		buffer = 16
	}
	return &RewardEventBus{
		subs:    make(map[int64]map[string]chan RewardEvent),
		buffer:  buffer,
		printer: message.NewPrinter(language.English),
	}
}

// Subscribe registers a listener for userID. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (b *RewardEventBus) Subscribe(userID int64) (<-chan RewardEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan RewardEvent, b.buffer)
	id := uuid.NewString()

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[string]chan RewardEvent)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
		})
	}
}

// Publish never blocks: a subscriber with a full buffer misses the event.
func (b *RewardEventBus) Publish(ev RewardEvent) {
	if b == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if ev.Message == "" {
		ev.Message = b.ToastMessage(ev.Kind, ev.Points, ev.Health)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			log.Printf("[EVENTS] ⚠️ dropped %s event for user %d (reward %d): subscriber buffer full", ev.Kind, ev.UserID, ev.RewardID)
		}
	}
}

// Subscribers returns the number of live listeners for userID.
func (b *RewardEventBus) Subscribers(userID int64) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// ToastMessage renders e.g. "+1,000 points unlocked" or "+50 points and +5 health claimed".
func (b *RewardEventBus) ToastMessage(kind RewardEventKind, points, health int) string {
	p := defaultPrinter
	if b != nil && b.printer != nil {
		p = b.printer
	}
	verb := "unlocked"
	if kind == EventRewardClaimed {
		verb = "claimed"
	}
	switch {
	case points > 0 && health > 0:
		return p.Sprintf("+%d points and +%d health %s", points, health, verb)
	case health > 0:
		return p.Sprintf("+%d health %s", health, verb)
	default:
		return p.Sprintf("+%d points %s", points, verb)
	}
}
