package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"certificate-server/layout"
	"certificate-server/locks"
)

// guardKey is the save lock of the template a session writes to. Unsaved
// documents lock on the session so a double submit cannot create two
// templates.
func (s *Session) guardKey(templateID string) string {
	if templateID == "" {
		return "session:" + s.ID
	}
	return locks.TemplateKey(templateID)
}

// Save writes the document to the store: a new template is created on the
// first save and adopted by the session, later saves replace the whole
// record. A blank name fails before any I/O. On failure the session is left
// as it was.
func (s *Session) Save(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.touch()
	if strings.TrimSpace(s.meta.Name) == "" {
		s.mu.Unlock()
		return "", ErrNameRequired
	}
	templateID := s.meta.TemplateID
	s.mu.Unlock()

	release, meta, doc, err := s.lockForSave(ctx, templateID)
	if err != nil {
		return "", err
	}
	defer release()
	defer s.setSaving(false)

	log := logrus.WithFields(logrus.Fields{
		"session_id":  s.ID,
		"template_id": meta.TemplateID,
	})

	if thumb, err := s.m.renderer.Thumbnail(ctx, doc); err != nil {
		log.WithError(err).Warn("Failed to render thumbnail, keeping the previous one")
	} else {
		meta.Thumbnail = thumb
	}

	record, err := layout.ToRecord(meta, doc)
	if err != nil {
		return "", err
	}

	id := meta.TemplateID
	if id == "" {
		if id, err = s.m.store.Create(ctx, record); err != nil {
			log.WithError(err).Error("Failed to create template")
			return "", err
		}
	} else if err := s.m.store.Update(ctx, record); err != nil {
		log.WithError(err).Error("Failed to update template")
		return "", err
	}

	s.mu.Lock()
	s.meta.TemplateID = id
	s.meta.Thumbnail = meta.Thumbnail
	s.mu.Unlock()

	log.WithField("template_id", id).Info("Template saved successfully")
	return id, nil
}

// lockForSave takes the save lock and snapshots the session under it. A save
// that finished while this one waited may have adopted a template id; the
// lock is then taken again on the template key.
func (s *Session) lockForSave(ctx context.Context, templateID string) (func(), layout.Meta, *layout.Document, error) {
	for {
		release, err := s.m.guard.Acquire(ctx, s.guardKey(templateID))
		if errors.Is(err, locks.ErrHeld) {
			logrus.WithFields(logrus.Fields{
				"session_id":  s.ID,
				"template_id": templateID,
			}).Warn("Save rejected, another save is in flight")
			return nil, layout.Meta{}, nil, ErrSaveInFlight
		}
		if err != nil {
			return nil, layout.Meta{}, nil, fmt.Errorf("acquire save lock: %w", err)
		}

		s.mu.Lock()
		if s.meta.TemplateID != templateID {
			templateID = s.meta.TemplateID
			s.mu.Unlock()
			release()
			continue
		}
		if strings.TrimSpace(s.meta.Name) == "" {
			s.mu.Unlock()
			release()
			return nil, layout.Meta{}, nil, ErrNameRequired
		}
		s.saving = true
		meta := s.meta
		doc := s.doc.Clone()
		s.mu.Unlock()
		return release, meta, doc, nil
	}
}

func (s *Session) setSaving(v bool) {
	s.mu.Lock()
	s.saving = v
	s.mu.Unlock()
}

// ExportPNG renders the current document at pixelRatio.
func (s *Session) ExportPNG(ctx context.Context, pixelRatio float64) ([]byte, error) {
	_, doc := s.Document()
	return s.m.renderer.PNG(ctx, doc, pixelRatio)
}

// ExportPDF renders the current document as a one-page PDF.
func (s *Session) ExportPDF(ctx context.Context) ([]byte, error) {
	_, doc := s.Document()
	return s.m.renderer.PDF(ctx, doc)
}
