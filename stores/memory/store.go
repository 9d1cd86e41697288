package memory

import (
	"certificate-server/core"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// store keeps templates, issuances and room activity in process memory.
type store struct {
	mu        sync.RWMutex
	templates map[string]*core.Template
	issuances map[string]*core.Issuance
	rooms     map[string]int64
}

func NewStore() *store {
	return &store{
		templates: make(map[string]*core.Template),
		issuances: make(map[string]*core.Issuance),
		rooms:     make(map[string]int64),
	}
}

func (s *store) List(ctx context.Context) ([]*core.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]*core.Template, 0, len(s.templates))
	for _, t := range s.templates {
		templates = append(templates, t.Clone())
	}
	sort.Slice(templates, func(i, j int) bool {
		if templates[i].CreatedAt.Equal(templates[j].CreatedAt) {
			return templates[i].ID > templates[j].ID
		}
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	logrus.Infof("Listed %d templates", len(templates))
	return templates, nil
}

func (s *store) Get(ctx context.Context, id string) (*core.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithField("template_id", id)
	t, ok := s.templates[id]
	if !ok {
		log.Warn("Template not found")
		return nil, fmt.Errorf("template with id %s: %w", id, core.ErrNotFound)
	}
	log.Info("Template retrieved successfully")
	return t.Clone(), nil
}

func (s *store) Create(ctx context.Context, template *core.Template) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ulid.Make().String()
	now := time.Now().UTC()
	stored := template.Clone()
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.templates[id] = stored

	logrus.WithFields(logrus.Fields{
		"template_id":   id,
		"element_bytes": len(stored.Elements),
	}).Info("Template created successfully")
	return id, nil
}

func (s *store) Update(ctx context.Context, template *core.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithField("template_id", template.ID)
	existing, ok := s.templates[template.ID]
	if !ok {
		log.Warn("Template not found for update")
		return fmt.Errorf("template with id %s: %w", template.ID, core.ErrNotFound)
	}

	stored := template.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.templates[template.ID] = stored
	log.Info("Template updated successfully")
	return nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithField("template_id", id)
	if _, ok := s.templates[id]; !ok {
		log.Warn("Template not found for deletion")
		return fmt.Errorf("template with id %s: %w", id, core.ErrNotFound)
	}
	delete(s.templates, id)
	for issuanceID, issuance := range s.issuances {
		if issuance.TemplateID == id {
			delete(s.issuances, issuanceID)
		}
	}
	log.Info("Template deleted successfully")
	return nil
}
