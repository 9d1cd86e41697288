package memory

import (
	"certificate-server/core"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

func (s *store) RecordIssuance(ctx context.Context, issuance *core.Issuance) error {
	if issuance.TemplateID == "" || issuance.StudentID == "" {
		return fmt.Errorf("template id and student id are required: %w", core.ErrInvalidID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[issuance.TemplateID]; !ok {
		return fmt.Errorf("template with id %s: %w", issuance.TemplateID, core.ErrNotFound)
	}

	if issuance.IssuedAt.IsZero() {
		issuance.IssuedAt = time.Now().UTC()
	}
	for _, existing := range s.issuances {
		if existing.TemplateID == issuance.TemplateID && existing.StudentID == issuance.StudentID {
			issuance.ID = existing.ID
			break
		}
	}
	if issuance.ID == "" {
		issuance.ID = ulid.Make().String()
	}
	stored := *issuance
	s.issuances[stored.ID] = &stored

	logrus.WithFields(logrus.Fields{
		"issuance_id": stored.ID,
		"template_id": stored.TemplateID,
		"student_id":  stored.StudentID,
	}).Info("Issuance recorded successfully")
	return nil
}

func (s *store) ListIssuances(ctx context.Context, templateID string) ([]core.Issuance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuances := make([]core.Issuance, 0)
	for _, issuance := range s.issuances {
		if issuance.TemplateID == templateID {
			issuances = append(issuances, *issuance)
		}
	}
	sort.Slice(issuances, func(i, j int) bool {
		return issuances[i].IssuedAt.After(issuances[j].IssuedAt)
	})
	return issuances, nil
}

func (s *store) DeleteIssuance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issuances[id]; !ok {
		return fmt.Errorf("issuance with id %s: %w", id, core.ErrNotFound)
	}
	delete(s.issuances, id)
	logrus.WithField("issuance_id", id).Info("Issuance deleted successfully")
	return nil
}

func (s *store) TouchRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	s.rooms[roomID] = time.Now().UnixMilli()
	s.mu.Unlock()

	return nil
}

func (s *store) ListRooms(ctx context.Context) ([]core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.Room, 0, len(s.rooms))
	for id, last := range s.rooms {
		rooms = append(rooms, core.Room{ID: id, LastActive: last})
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})

	return rooms, nil
}
