package directory

import (
	"context"
	"strings"
)

// Service wraps the read-only directory repositories.
type Service struct {
	agencies AgencyRepository
	contacts ContactRepository
}

func NewService(agencies AgencyRepository, contacts ContactRepository) *Service {
	return &Service{
		agencies: agencies,
		contacts: contacts,
	}
}

func (s *Service) ListAgencies(ctx context.Context, params ListParams) ([]Agency, int64, error) {
	return s.agencies.List(ctx, params)
}

func (s *Service) ListContacts(ctx context.Context, params ListParams) ([]Contact, int64, error) {
	return s.contacts.List(ctx, params)
}

func (s *Service) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return s.contacts.Search(ctx, query)
}

// ResolveContacts is the record resolver: missing IDs are dropped, order of
// ids is preserved.
func (s *Service) ResolveContacts(ctx context.Context, ids []string) ([]Contact, error) {
	return s.contacts.ResolveByIDs(ctx, ids)
}
