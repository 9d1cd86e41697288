package filesystem

import (
	"certificate-server/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	templatesDir = "templates"
	issuancesDir = "issuances"
)

// fsStore keeps one JSON file per template under templates/ and one per
// issuance under issuances/<template id>/.
type fsStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewStore creates a new filesystem-based store rooted at basePath.
func NewStore(basePath string) (*fsStore, error) {
	for _, dir := range []string{templatesDir, issuancesDir} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &fsStore{basePath: basePath}, nil
}

// validID rejects ids that would escape their directory.
func validID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%q: %w", id, core.ErrInvalidID)
	}
	return nil
}

func (s *fsStore) templatePath(id string) string {
	return filepath.Join(s.basePath, templatesDir, id+".json")
}

func (s *fsStore) issuancePath(templateID, id string) string {
	return filepath.Join(s.basePath, issuancesDir, templateID, id+".json")
}

// writeJSON writes v next to path and renames it into place so readers never
// see a partial file.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *fsStore) List(ctx context.Context) ([]*core.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.basePath, templatesDir)
	log := logrus.WithField("path", dir)
	files, err := os.ReadDir(dir)
	if err != nil {
		log.WithError(err).Error("Failed to read templates directory")
		return nil, err
	}

	templates := make([]*core.Template, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		var t core.Template
		if err := readJSON(filepath.Join(dir, file.Name()), &t); err != nil {
			log.WithError(err).Warnf("Failed to read template file %s, skipping", file.Name())
			continue
		}
		templates = append(templates, &t)
	}
	sort.Slice(templates, func(i, j int) bool {
		if templates[i].CreatedAt.Equal(templates[j].CreatedAt) {
			return templates[i].ID > templates[j].ID
		}
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	log.Infof("Listed %d templates", len(templates))
	return templates, nil
}

func (s *fsStore) Get(ctx context.Context, id string) (*core.Template, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *fsStore) get(id string) (*core.Template, error) {
	path := s.templatePath(id)
	log := logrus.WithFields(logrus.Fields{"template_id": id, "path": path})

	var t core.Template
	if err := readJSON(path, &t); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("Template file not found")
			return nil, fmt.Errorf("template with id %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read template file")
		return nil, err
	}
	log.Info("Template retrieved successfully")
	return &t, nil
}

func (s *fsStore) Create(ctx context.Context, template *core.Template) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := template.Clone()
	stored.ID = ulid.Make().String()
	now := time.Now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now

	path := s.templatePath(stored.ID)
	log := logrus.WithFields(logrus.Fields{"template_id": stored.ID, "path": path})
	if err := writeJSON(path, stored); err != nil {
		log.WithError(err).Error("Failed to create template")
		return "", err
	}
	log.Info("Template created successfully")
	return stored.ID, nil
}

func (s *fsStore) Update(ctx context.Context, template *core.Template) error {
	if err := validID(template.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(template.ID)
	if err != nil {
		return err
	}
	stored := template.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	log := logrus.WithField("template_id", template.ID)
	if err := writeJSON(s.templatePath(template.ID), stored); err != nil {
		log.WithError(err).Error("Failed to write template file")
		return err
	}
	log.Info("Template updated successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithField("template_id", id)
	if err := os.Remove(s.templatePath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("Template file not found for deletion")
			return fmt.Errorf("template with id %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to delete template file")
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.basePath, issuancesDir, id)); err != nil {
		log.WithError(err).Warn("Failed to remove issuances of deleted template")
	}
	log.Info("Template deleted successfully")
	return nil
}

func (s *fsStore) listIssuances(templateID string) ([]core.Issuance, error) {
	dir := filepath.Join(s.basePath, issuancesDir, templateID)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []core.Issuance{}, nil
		}
		return nil, err
	}
	issuances := make([]core.Issuance, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		var issuance core.Issuance
		if err := readJSON(filepath.Join(dir, file.Name()), &issuance); err != nil {
			logrus.WithError(err).Warnf("Failed to read issuance file %s, skipping", file.Name())
			continue
		}
		issuances = append(issuances, issuance)
	}
	return issuances, nil
}

func (s *fsStore) RecordIssuance(ctx context.Context, issuance *core.Issuance) error {
	if issuance.StudentID == "" {
		return fmt.Errorf("student id is required: %w", core.ErrInvalidID)
	}
	if err := validID(issuance.TemplateID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(issuance.TemplateID); err != nil {
		return err
	}
	existing, err := s.listIssuances(issuance.TemplateID)
	if err != nil {
		return err
	}
	issuance.ID = ""
	for _, e := range existing {
		if e.StudentID == issuance.StudentID {
			issuance.ID = e.ID
			break
		}
	}
	if issuance.ID == "" {
		issuance.ID = ulid.Make().String()
	}
	if issuance.IssuedAt.IsZero() {
		issuance.IssuedAt = time.Now().UTC()
	}

	dir := filepath.Join(s.basePath, issuancesDir, issuance.TemplateID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"issuance_id": issuance.ID, "template_id": issuance.TemplateID})
	if err := writeJSON(s.issuancePath(issuance.TemplateID, issuance.ID), issuance); err != nil {
		log.WithError(err).Error("Failed to write issuance file")
		return err
	}
	log.Info("Issuance recorded successfully")
	return nil
}

func (s *fsStore) ListIssuances(ctx context.Context, templateID string) ([]core.Issuance, error) {
	if err := validID(templateID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuances, err := s.listIssuances(templateID)
	if err != nil {
		return nil, err
	}
	sort.Slice(issuances, func(i, j int) bool {
		return issuances[i].IssuedAt.After(issuances[j].IssuedAt)
	})
	return issuances, nil
}

func (s *fsStore) DeleteIssuance(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.basePath, issuancesDir, "*", id+".json"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("issuance with id %s: %w", id, core.ErrNotFound)
	}
	if err := os.Remove(matches[0]); err != nil {
		return err
	}
	logrus.WithField("issuance_id", id).Info("Issuance deleted successfully")
	return nil
}
