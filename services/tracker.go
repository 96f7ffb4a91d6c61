package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TrackerKind string

const (
	TrackerIncome  TrackerKind = "income"
	TrackerExpense TrackerKind = "expense"
	TrackerBudget  TrackerKind = "budget"
	TrackerDebt    TrackerKind = "debt"
	TrackerSavings TrackerKind = "savings"
)

func (k TrackerKind) Valid() bool {
	switch k {
	case TrackerIncome, TrackerExpense, TrackerBudget, TrackerDebt, TrackerSavings:
		return true
	}
	return false
}

type TrackerEntry struct {
	ID        string      `json:"id"`
	Kind      TrackerKind `json:"kind"`
	Category  string      `json:"category"`
	Amount    float64     `json:"amount"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// TrackerSnapshot is the user's financial tracker state.
type TrackerSnapshot struct {
	Income   float64        `json:"income"`
	Expenses float64        `json:"expenses"`
	Budget   float64        `json:"budget"`
	Debt     float64        `json:"debt"`
	Savings  float64        `json:"savings"`
	Entries  []TrackerEntry `json:"entries"`
}

// trackerBlob is the stored shape; numbers may have been written by older
// clients as strings, so everything numeric is decoded loosely and coerced.
type trackerBlob struct {
	Income   any `json:"income"`
	Expenses any `json:"expenses"`
	Budget   any `json:"budget"`
	Debt     any `json:"debt"`
	Savings  any `json:"savings"`
	Entries  []struct {
		ID        string      `json:"id"`
		Kind      TrackerKind `json:"kind"`
		Category  string      `json:"category"`
		Amount    any         `json:"amount"`
		Note      string      `json:"note"`
		CreatedAt time.Time   `json:"created_at"`
	} `json:"entries"`
}

func (b trackerBlob) snapshot() TrackerSnapshot {
	snap := TrackerSnapshot{
		Income:   CoerceNumber(b.Income),
		Expenses: CoerceNumber(b.Expenses),
		Budget:   CoerceNumber(b.Budget),
		Debt:     CoerceNumber(b.Debt),
		Savings:  CoerceNumber(b.Savings),
		Entries:  make([]TrackerEntry, 0, len(b.Entries)),
	}
	for _, e := range b.Entries {
		snap.Entries = append(snap.Entries, TrackerEntry{
			ID:        e.ID,
			Kind:      e.Kind,
			Category:  e.Category,
			Amount:    CoerceNumber(e.Amount),
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	return snap
}

// TrackerService persists the financial tracker through a StateStore.
// Writes go through StateStore.Update, so concurrent requests for one user
// serialize per key even across replicas sharing Redis.
type TrackerService struct {
	Store StateStore
}

func NewTrackerService(store StateStore) *TrackerService {
	return &TrackerService{Store: store}
}

func trackerKey(userID int64) string {
	return fmt.Sprintf("tracker:%d", userID)
}

func decodeTracker(raw []byte) (TrackerSnapshot, error) {
	var blob trackerBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return TrackerSnapshot{}, fmt.Errorf("decode tracker: %w", err)
	}
	return blob.snapshot(), nil
}

func (s *TrackerService) Get(ctx context.Context, userID int64) (TrackerSnapshot, error) {
	blob, _, err := GetState[trackerBlob](ctx, s.Store, trackerKey(userID))
	if err != nil {
		return TrackerSnapshot{}, err
	}
	return blob.snapshot(), nil
}

// update applies fn to the stored snapshot and returns what was written.
func (s *TrackerService) update(ctx context.Context, userID int64, fn func(*TrackerSnapshot)) (TrackerSnapshot, error) {
	var out TrackerSnapshot
	err := s.Store.Update(ctx, trackerKey(userID), func(current []byte, ok bool) ([]byte, error) {
		snap := TrackerSnapshot{Entries: []TrackerEntry{}}
		if ok {
			var err error
			if snap, err = decodeTracker(current); err != nil {
				return nil, err
			}
		}
		fn(&snap)
		raw, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("encode tracker: %w", err)
		}
		// Round-trip so callers see exactly what a later Get returns.
		if out, err = decodeTracker(raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return TrackerSnapshot{}, err
	}
	return out, nil
}

// Put replaces the snapshot, normalizing it through the same coercion as reads.
func (s *TrackerService) Put(ctx context.Context, userID int64, snap TrackerSnapshot) (TrackerSnapshot, error) {
	return s.update(ctx, userID, func(cur *TrackerSnapshot) {
		*cur = snap
	})
}

// AddEntry appends an entry and adds its amount to the matching total.
func (s *TrackerService) AddEntry(ctx context.Context, userID int64, entry TrackerEntry) (TrackerSnapshot, error) {
	if !entry.Kind.Valid() {
		return TrackerSnapshot{}, fmt.Errorf("%w: %q", ErrInvalidTrackerKind, entry.Kind)
	}
	entry.Amount = CoerceNumber(entry.Amount)
	entry.Category = strings.TrimSpace(entry.Category)
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return s.update(ctx, userID, func(snap *TrackerSnapshot) {
		switch entry.Kind {
		case TrackerIncome:
			snap.Income += entry.Amount
		case TrackerExpense:
			snap.Expenses += entry.Amount
		case TrackerBudget:
			snap.Budget += entry.Amount
		case TrackerDebt:
			snap.Debt += entry.Amount
		case TrackerSavings:
			snap.Savings += entry.Amount
		}
		snap.Entries = append(snap.Entries, entry)
	})
}
