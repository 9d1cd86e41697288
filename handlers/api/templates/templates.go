package templates

import (
	"certificate-server/core"
	"certificate-server/handlers/api/apiutil"
	"certificate-server/layout"
	"certificate-server/locks"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	// TemplateRequest is the body of create and update. Elements are checked
	// against the element schema and re-encoded before they reach the store.
	TemplateRequest struct {
		Name            string          `json:"name" validate:"required,notblank,max=200"`
		TurmaID         *string         `json:"turma_id"`
		Orientation     string          `json:"orientation" validate:"omitempty,oneof=landscape portrait"`
		BackgroundImage string          `json:"background_image"`
		SchemaVersion   *int            `json:"schema_version" validate:"omitempty,gte=0"`
		Elements        json.RawMessage `json:"elements"`
	}

	TemplateSummary struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		Thumbnail   string    `json:"thumbnail,omitempty"`
		TurmaID     *string   `json:"turma_id"`
		Orientation string    `json:"orientation"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	CreateTemplateResponse struct {
		ID string `json:"id"`
	}

	// Thumbnailer renders the preview stored next to a template.
	Thumbnailer interface {
		Thumbnail(ctx context.Context, doc *layout.Document) (string, error)
	}
)

func summarize(t *core.Template) TemplateSummary {
	return TemplateSummary{
		ID:          t.ID,
		Name:        t.Name,
		Thumbnail:   t.Thumbnail,
		TurmaID:     t.TurmaID,
		Orientation: t.Orientation,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// buildRecord validates the request elements and returns the normalized
// record.
func buildRecord(ctx context.Context, req TemplateRequest, id string, thumbs Thumbnailer) (*core.Template, error) {
	orientation := req.Orientation
	if orientation == "" {
		orientation = core.OrientationLandscape
	}
	version := layout.SchemaVersion
	if req.SchemaVersion != nil {
		version = *req.SchemaVersion
	}

	_, doc, err := layout.FromRecord(&core.Template{
		ID:              id,
		Orientation:     orientation,
		BackgroundImage: req.BackgroundImage,
		SchemaVersion:   version,
		Elements:        req.Elements,
	})
	if err != nil {
		return nil, err
	}

	meta := layout.Meta{TemplateID: id, Name: req.Name, TurmaID: req.TurmaID}
	if thumbs != nil {
		thumb, err := thumbs.Thumbnail(ctx, doc)
		if err != nil {
			logrus.WithError(err).WithField("template_id", id).Warn("Failed to render template thumbnail")
		} else {
			meta.Thumbnail = thumb
		}
	}
	return layout.ToRecord(meta, doc)
}

func HandleList(store core.TemplateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templates, err := store.List(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list templates")
			apiutil.RespondError(w, r, http.StatusInternalServerError, "Failed to list templates")
			return
		}

		summaries := make([]TemplateSummary, 0, len(templates))
		for _, t := range templates {
			summaries = append(summaries, summarize(t))
		}
		render.JSON(w, r, summaries)
	}
}

func HandleGet(store core.TemplateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		template, err := store.Get(r.Context(), id)
		if err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}
		render.JSON(w, r, template)
	}
}

func HandleCreate(store core.TemplateStore, thumbs Thumbnailer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TemplateRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		record, err := buildRecord(r.Context(), req, "", thumbs)
		if err != nil {
			logrus.WithError(err).Debug("Rejected template elements")
			apiutil.RespondError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}

		id, err := store.Create(r.Context(), record)
		if err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}

		logrus.WithField("template_id", id).Info("Template created via API")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateTemplateResponse{ID: id})
	}
}

// lockTemplate takes the save lock of template id, answering 409 while an
// editor save or another request holds it.
func lockTemplate(w http.ResponseWriter, r *http.Request, guard locks.Guard, id string) (func(), bool) {
	release, err := guard.Acquire(r.Context(), locks.TemplateKey(id))
	if err != nil {
		logrus.WithError(err).WithField("template_id", id).Warn("Template write rejected")
		apiutil.RespondStoreError(w, r, err, "Template")
		return nil, false
	}
	return release, true
}

func HandleUpdate(store core.TemplateStore, guard locks.Guard, thumbs Thumbnailer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req TemplateRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		release, ok := lockTemplate(w, r, guard, id)
		if !ok {
			return
		}
		defer release()

		existing, err := store.Get(r.Context(), id)
		if err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}

		record, err := buildRecord(r.Context(), req, id, thumbs)
		if err != nil {
			logrus.WithError(err).WithField("template_id", id).Debug("Rejected template elements")
			apiutil.RespondError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if record.Thumbnail == "" {
			record.Thumbnail = existing.Thumbnail
		}
		record.CreatedAt = existing.CreatedAt

		if err := store.Update(r.Context(), record); err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}

		updated, err := store.Get(r.Context(), id)
		if err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}
		render.JSON(w, r, updated)
	}
}

func HandleDelete(store core.TemplateStore, guard locks.Guard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		release, ok := lockTemplate(w, r, guard, id)
		if !ok {
			return
		}
		defer release()

		if err := store.Delete(r.Context(), id); err != nil {
			apiutil.RespondStoreError(w, r, err, "Template")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
