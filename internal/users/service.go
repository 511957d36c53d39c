package users

import (
	"context"

	"github.com/collabdocs/collabdocs/internal/access"
	"github.com/collabdocs/collabdocs/internal/models"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a user using OIDC claims map.
// A claims map without sub yields nil, nil.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if sub == "" {
		return nil, nil
	}
	return s.repo.UpsertBySub(ctx, &models.User{Sub: sub, Email: email, Name: name})
}

// Remember records the identity so its name can be shown on listings.
func (s *Service) Remember(ctx context.Context, who access.Identity) (*models.User, error) {
	if who.UserID == "" {
		return nil, nil
	}
	return s.repo.UpsertBySub(ctx, &models.User{Sub: who.UserID, Email: who.Email, Name: who.Name})
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

// Summaries resolves owner ids to display info. Unknown ids are absent
// from the result.
func (s *Service) Summaries(ctx context.Context, subs []string) (map[string]models.Summary, error) {
	seen := make(map[string]struct{}, len(subs))
	uniq := make([]string, 0, len(subs))
	for _, sub := range subs {
		if _, ok := seen[sub]; ok || sub == "" {
			continue
		}
		seen[sub] = struct{}{}
		uniq = append(uniq, sub)
	}
	found, err := s.repo.ListBySubs(ctx, uniq)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Summary, len(found))
	for _, u := range found {
		out[u.Sub] = u.Summary()
	}
	return out, nil
}
