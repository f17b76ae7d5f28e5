package auth

import (
	"context"
	"time"

	"github.com/gestionrh/gestionrh-console/internal/hrapi"
)

// Service wraps the sign-in rules of the console.
type Service struct {
	api  *hrapi.Client
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service. A nil repo disables the session registry.
func NewService(api *hrapi.Client, repo Repository) *Service {
	if repo == nil {
		repo = nopRepository{}
	}
	return &Service{api: api, repo: repo, now: time.Now}
}

// Authenticate exchanges credentials for an API token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*hrapi.Login, error) {
	return s.api.Login(ctx, email, password)
}

// Profile reloads the signed-in user from the API.
func (s *Service) Profile(ctx context.Context, creds hrapi.Credentials) (*hrapi.Profile, error) {
	return s.api.For(creds).Me(ctx)
}

// Logout ends the API session.
func (s *Service) Logout(ctx context.Context, creds hrapi.Credentials) error {
	return s.api.For(creds).Logout(ctx)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id, email string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, SessionRecord{
		ID:        id,
		Email:     email,
		IP:        ip,
		UserAgent: ua,
		CreatedAt: s.now(),
		ExpiresAt: expiresAt,
	})
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// RecentSessions lists the latest sign-ins of email.
func (s *Service) RecentSessions(ctx context.Context, email string) ([]SessionRecord, error) {
	return s.repo.RecentSessions(ctx, email, 5)
}
