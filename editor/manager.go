// Package editor hosts editing sessions: the in-memory selection and caret
// state over a document, the gestures that mutate it and the save pipeline
// that writes it to a template store.
package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"certificate-server/core"
	"certificate-server/layout"
	"certificate-server/layout/textedit"
	"certificate-server/locks"
)

// Renderer produces the raster outputs of a document.
type Renderer interface {
	Thumbnail(ctx context.Context, doc *layout.Document) (string, error)
	PNG(ctx context.Context, doc *layout.Document, pixelRatio float64) ([]byte, error)
	PDF(ctx context.Context, doc *layout.Document) ([]byte, error)
}

type Manager struct {
	store    core.TemplateStore
	guard    locks.Guard
	renderer Renderer
	measurer textedit.Measurer
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(store core.TemplateStore, guard locks.Guard, renderer Renderer, measurer textedit.Measurer) *Manager {
	if guard == nil {
		guard = locks.NewMemoryGuard()
	}
	return &Manager{
		store:    store,
		guard:    guard,
		renderer: renderer,
		measurer: measurer,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session. With an empty templateID the session edits a new,
// unsaved landscape document; otherwise the template is loaded from the
// store.
func (m *Manager) Open(ctx context.Context, templateID string) (*Session, error) {
	meta := layout.Meta{}
	doc := layout.NewDocument(layout.Landscape, "")
	if templateID != "" {
		t, err := m.store.Get(ctx, templateID)
		if err != nil {
			return nil, err
		}
		if meta, doc, err = layout.FromRecord(t); err != nil {
			return nil, err
		}
	}

	s := &Session{
		ID:         ulid.Make().String(),
		m:          m,
		meta:       meta,
		doc:        doc,
		fontFamily: layout.DefaultFontFamily,
	}
	s.touch()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id":  s.ID,
		"template_id": templateID,
		"elements":    doc.Len(),
	}).Info("Editing session opened")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// Close discards a session and its unsaved changes.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	delete(m.sessions, id)
	logrus.WithField("session_id", id).Info("Editing session closed")
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions that saw no activity for longer than idle and
// returns how many were closed.
func (m *Manager) Sweep(idle time.Duration) int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := 0
	for id, s := range m.sessions {
		if s.idleSince(now) > idle {
			delete(m.sessions, id)
			closed++
		}
	}
	if closed > 0 {
		logrus.WithField("closed", closed).Info("Swept idle editing sessions")
	}
	return closed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(idle)
		}
	}
}
