package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService caches the technician list and price table for ttl.
type CatalogService struct {
	source domain.CatalogSource
	ttl    time.Duration
	logger *zerolog.Logger

	mu          sync.RWMutex
	technicians []models.Technician
	services    []models.Service
	loadedAt    time.Time
	now         func() time.Time
}

var _ domain.CatalogService = (*CatalogService)(nil)

func NewCatalogService(source domain.CatalogSource, ttl time.Duration, logger *zerolog.Logger) *CatalogService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CatalogService{
		source: source,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (s *CatalogService) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Technician, len(s.technicians))
	copy(out, s.technicians)
	return out, nil
}

func (s *CatalogService) ListServices(ctx context.Context) ([]models.Service, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Service, len(s.services))
	copy(out, s.services)
	return out, nil
}

// FindTechnician returns ErrUnknownCatalogEntry (wrapped in ErrInvalidInput) for unknown names.
func (s *CatalogService) FindTechnician(ctx context.Context, name string) (*models.Technician, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.technicians {
		if t.Name == name {
			found := t
			return &found, nil
		}
	}
	return nil, domain.UnknownEntry("technician", name)
}

func (s *CatalogService) ServiceCatalog(ctx context.Context) (models.ServiceCatalog, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return models.ServiceCatalog{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.BuildServiceCatalog(s.services), nil
}

// Refresh reloads both lists from the source regardless of the cache age.
func (s *CatalogService) Refresh(ctx context.Context) error {
	techs, err := s.source.ListTechnicians(ctx)
	if err != nil {
		return fmt.Errorf("load technicians: %w", err)
	}
	services, err := s.source.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("load services: %w", err)
	}

	s.mu.Lock()
	s.technicians = techs
	s.services = services
	s.loadedAt = s.now()
	s.mu.Unlock()

	s.logger.Debug().Int("technicians", len(techs)).Int("services", len(services)).Msg("catalog refreshed")
	return nil
}

func (s *CatalogService) ensureFresh(ctx context.Context) error {
	s.mu.RLock()
	fresh := !s.loadedAt.IsZero() && (s.ttl <= 0 || s.now().Sub(s.loadedAt) < s.ttl)
	s.mu.RUnlock()
	if fresh {
		return nil
	}

	if err := s.Refresh(ctx); err != nil {
		s.mu.RLock()
		stale := !s.loadedAt.IsZero()
		s.mu.RUnlock()
		// serve the previous copy rather than failing every request while the sheet is down
		if stale {
			s.logger.Warn().Err(err).Msg("catalog refresh failed, serving stale copy")
			return nil
		}
		return err
	}
	return nil
}
