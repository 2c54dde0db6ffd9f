// workers/user_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finquest-gamification/models"

	"go.uber.org/zap"
)

// RemoteProfile is one entry of the sync service response.
type RemoteProfile struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FirstName     *string   `json:"first_name,omitempty"`
	LastName      *string   `json:"last_name,omitempty"`
	AccountStatus string    `json:"account_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetUserChangesResponse is the top-level structure of the sync service response.
type GetUserChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// UserStore is where mirrored accounts land.
type UserStore interface {
	Upsert(ctx context.Context, u models.User) error
	LastUpdated(ctx context.Context) (*models.User, error)
}

type UserSyncWorker struct {
	users        UserStore
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

func NewUserSyncWorker(users UserStore, syncServiceBaseURL, endpointPath, serviceToken string, interval time.Duration) *UserSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &UserSyncWorker{
		users:        users,
		interval:     interval,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Start runs the worker until ctx is done.
func (w *UserSyncWorker) Start(ctx context.Context) {
	zap.L().Info("starting user sync worker", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *UserSyncWorker) run(ctx context.Context) {
	// initial backfill from the beginning of time
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		zap.L().Warn("initial user sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx, w.lastSyncTime(ctx)); err != nil {
				zap.L().Warn("user sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			zap.L().Info("user sync worker stopped")
			return
		}
	}
}

func (w *UserSyncWorker) lastSyncTime(ctx context.Context) time.Time {
	u, err := w.users.LastUpdated(ctx)
	if err != nil || u == nil || u.UpdatedAt.IsZero() {
		return time.Unix(0, 0)
	}
	return u.UpdatedAt
}

// SyncOnce pulls profile changes since since and mirrors them. It returns
// the number of users stored.
func (w *UserSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("sync service non-200 response: %d: %s", resp.StatusCode, string(body))
	}

	var response GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode sync service response: %w", err)
	}

	var upserted, failed int
	for _, remote := range response.Users {
		id := remote.ExternalID
		if id == "" {
			id = remote.ID
		}
		if id == "" {
			failed++
			continue
		}

		if err := w.users.Upsert(ctx, models.User{
			ID:          id,
			Email:       remote.Email,
			DisplayName: displayName(remote),
			CreatedAt:   remote.CreatedAt,
			UpdatedAt:   remote.UpdatedAt,
		}); err != nil {
			failed++
			zap.L().Warn("failed to upsert user", zap.String("user_id", id), zap.Error(err))
			continue
		}
		upserted++
	}

	if len(response.Users) > 0 {
		zap.L().Info("user sync batch done",
			zap.Int("received", len(response.Users)),
			zap.Int("upserted", upserted),
			zap.Int("failed", failed))
	}
	return upserted, nil
}

func displayName(p RemoteProfile) string {
	var parts []string
	if p.FirstName != nil && strings.TrimSpace(*p.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(*p.FirstName))
	}
	if p.LastName != nil && strings.TrimSpace(*p.LastName) != "" {
		parts = append(parts, strings.TrimSpace(*p.LastName))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return p.Username
}
