// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"finquest-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile matches the profile service's public profile payload.
type RemoteProfile struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetProfileChangesResponse is the top-level structure of the profile service response.
type GetProfileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker mirrors profile-service users into the local users table.
// It never writes xp or health; those belong to the reward ledger.
type ProfileSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

func NewProfileSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, interval time.Duration) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Profile Sync Worker (profile-service → users)…")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	// Initial sync backfills from the local cursor
	if _, err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ Initial profile sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ Profile sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Profile Sync Worker stopped")
			return
		}
	}
}

// ProfileCursorName keys the profile feed's row in sync_cursors.
const ProfileCursorName = "profiles"

// SyncOnce pulls changes since the stored cursor, upserts them and advances
// the cursor to the newest remote updated_at that was applied.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since := w.lastSyncTime(ctx)
	n, next, err := w.syncBatch(ctx, since)
	if err != nil {
		return n, err
	}
	if next.After(since) {
		if err := w.saveCursor(ctx, next); err != nil {
			return n, err
		}
	}
	return n, nil
}

// lastSyncTime reads the feed cursor. users.updated_at is not used because
// local writes would move it past unfetched remote changes.
func (w *ProfileSyncWorker) lastSyncTime(ctx context.Context) time.Time {
	var cur models.SyncCursor
	err := w.db.WithContext(ctx).Where("name = ?", ProfileCursorName).Take(&cur).Error
	if err != nil || cur.SyncedUntil.IsZero() {
		return time.Unix(0, 0) // Fallback to epoch if no cursor or error
	}
	return cur.SyncedUntil
}

func (w *ProfileSyncWorker) saveCursor(ctx context.Context, at time.Time) error {
	cur := models.SyncCursor{Name: ProfileCursorName, SyncedUntil: at.UTC()}
	err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"synced_until", "updated_at"}),
	}).Create(&cur).Error
	if err != nil {
		return fmt.Errorf("save %s sync cursor: %w", ProfileCursorName, err)
	}
	return nil
}

func (w *ProfileSyncWorker) fetchChanges(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	log.Printf("[SYNC] ➡️  GET %s", finalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to profile service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[SYNC] ❌ Profile service returned %d for %s: %s", resp.StatusCode, finalURL, string(body))
		return nil, fmt.Errorf("profile service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var out GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	return out.Users, nil
}

// syncBatch upserts every changed profile. It returns how many were written
// and the cursor to resume from: the newest applied updated_at, held back to
// the oldest failed upsert so that profile is fetched again.
func (w *ProfileSyncWorker) syncBatch(ctx context.Context, since time.Time) (int, time.Time, error) {
	profiles, err := w.fetchChanges(ctx, since)
	if err != nil {
		return 0, since, err
	}
	if len(profiles) == 0 {
		log.Printf("[SYNC] ✅ No profile changes since %s", since.UTC().Format(time.RFC3339))
		return 0, since, nil
	}

	log.Printf("[SYNC] 📥 Processing %d profile(s)…", len(profiles))

	var upsertCount, errorCount int
	var latest, oldestFailed time.Time
	for _, p := range profiles {
		if p.ID < 1 {
			errorCount++
			log.Printf("[SYNC] ⚠️ Skipping profile with invalid id %d (username=%q)", p.ID, p.Username)
			continue
		}
		user := models.User{
			ID:        p.ID,
			Email:     p.Email,
			Username:  p.Username,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "username", "first_name", "last_name", "updated_at"}),
		}).Create(&user).Error; err != nil {
			errorCount++
			if oldestFailed.IsZero() || p.UpdatedAt.Before(oldestFailed) {
				oldestFailed = p.UpdatedAt
			}
			log.Printf("[SYNC] ⚠️ Failed to upsert user (id=%d, username=%q): %v", p.ID, p.Username, err)
			continue
		}
		upsertCount++
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}

	next := latest
	if !oldestFailed.IsZero() && oldestFailed.Before(next) {
		next = oldestFailed
	}
	if next.Before(since) {
		next = since
	}

	log.Printf("[SYNC] ✅ Synced %d profile(s) (%d upserted, %d errors). Cursor=%s",
		len(profiles), upsertCount, errorCount, next.UTC().Format(time.RFC3339))
	return upsertCount, next, nil
}
