// Package sessions exposes the editing sessions of the editor package over
// HTTP. Every mutating call answers with the session view so the client can
// redraw from a single response.
package sessions

import (
	"certificate-server/core"
	"certificate-server/editor"
	"certificate-server/handlers/api/apiutil"
	"certificate-server/layout"
	"certificate-server/layout/textedit"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const maxPixelRatio = 4

type (
	OpenSessionRequest struct {
		TemplateID string `json:"template_id"`
	}

	AddElementRequest struct {
		Preset layout.Preset `json:"preset" validate:"required,oneof=text course_name student_name instructor image"`
		Src    string        `json:"src"`
	}

	SelectRequest struct {
		ElementID string `json:"element_id"`
	}

	MoveRequest struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	ResizeRequest struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		ScaleX float64 `json:"scale_x"`
		ScaleY float64 `json:"scale_y"`
	}

	// StyleRequest is a partial style update. Text fields apply to text
	// elements and src/opacity to images.
	StyleRequest struct {
		Text            *string                `json:"text"`
		FontSize        *float64               `json:"font_size"`
		FontSizeInput   *string                `json:"font_size_input"`
		FontSizeDelta   float64                `json:"font_size_delta"`
		FontFamily      *string                `json:"font_family"`
		Fill            *string                `json:"fill"`
		FontWeight      *layout.FontWeight     `json:"font_weight"`
		FontStyle       *layout.FontStyle      `json:"font_style"`
		TextDecoration  *layout.TextDecoration `json:"text_decoration"`
		TextAlign       *layout.TextAlign      `json:"text_align"`
		Width           *float64               `json:"width"`
		ClearWidth      bool                   `json:"clear_width"`
		ToggleBold      bool                   `json:"toggle_bold"`
		ToggleItalic    bool                   `json:"toggle_italic"`
		ToggleUnderline bool                   `json:"toggle_underline"`
		Src             *string                `json:"src"`
		Opacity         *float64               `json:"opacity"`
	}

	LayerRequest struct {
		Direction string `json:"direction" validate:"required,oneof=front back"`
	}

	KeyRequest struct {
		Key string `json:"key" validate:"required"`
		textedit.Modifiers
	}

	ClickRequest struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	SettingsRequest struct {
		Name            *string             `json:"name" validate:"omitempty,max=200"`
		TurmaID         *string             `json:"turma_id"`
		ClearTurma      bool                `json:"clear_turma"`
		Orientation     *layout.Orientation `json:"orientation"`
		BackgroundImage *string             `json:"background_image"`
		FontFamily      *string             `json:"font_family"`
	}

	// Result answers a mutation. Applied is false when the change was
	// rejected and the session left as it was.
	Result struct {
		Applied bool        `json:"applied"`
		Session editor.View `json:"session"`
	}

	ClickResponse struct {
		ElementID string      `json:"element_id,omitempty"`
		Session   editor.View `json:"session"`
	}

	SaveResponse struct {
		TemplateID string      `json:"template_id"`
		Session    editor.View `json:"session"`
	}
)

func (req StyleRequest) style() editor.Style {
	var style editor.Style
	text := layout.TextStyle{
		Text:            req.Text,
		FontSize:        req.FontSize,
		FontSizeDelta:   req.FontSizeDelta,
		FontFamily:      req.FontFamily,
		Fill:            req.Fill,
		FontWeight:      req.FontWeight,
		FontStyle:       req.FontStyle,
		TextDecoration:  req.TextDecoration,
		TextAlign:       req.TextAlign,
		Width:           req.Width,
		ClearWidth:      req.ClearWidth,
		ToggleBold:      req.ToggleBold,
		ToggleItalic:    req.ToggleItalic,
		ToggleUnderline: req.ToggleUnderline,
	}
	if req.FontSizeInput != nil {
		size := layout.ParseFontSize(*req.FontSizeInput)
		text.FontSize = &size
	}
	if text != (layout.TextStyle{}) {
		style.Text = &text
	}
	if req.Src != nil || req.Opacity != nil {
		style.Image = &layout.ImageStyle{Src: req.Src, Opacity: req.Opacity}
	}
	return style
}

// lookup resolves the {sid} URL parameter and answers 404 when the session
// is gone.
func lookup(m *editor.Manager, w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	s, err := m.Get(chi.URLParam(r, "sid"))
	if err != nil {
		apiutil.RespondError(w, r, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return s, true
}

// respondEditError maps editor and layout errors to statuses.
func respondEditError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, layout.ErrElementMissing):
		apiutil.RespondError(w, r, http.StatusNotFound, "Element not found")
	case errors.Is(err, editor.ErrSessionNotFound):
		apiutil.RespondError(w, r, http.StatusNotFound, "Session not found")
	case errors.Is(err, editor.ErrNameRequired):
		apiutil.RespondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, editor.ErrSaveInFlight):
		apiutil.RespondError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, layout.ErrUnsupportedSchema):
		apiutil.RespondError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrInvalidID):
		apiutil.RespondStoreError(w, r, err, "Template")
	default:
		logrus.WithError(err).Error("Session operation failed")
		apiutil.RespondError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

func respondResult(w http.ResponseWriter, r *http.Request, s *editor.Session, applied bool) {
	render.JSON(w, r, Result{Applied: applied, Session: s.View()})
}

func HandleOpen(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenSessionRequest
		if r.ContentLength != 0 {
			if err := apiutil.Decode(r, &req); err != nil {
				apiutil.RespondDecodeError(w, r, err)
				return
			}
		}

		s, err := m.Open(r.Context(), req.TemplateID)
		if err != nil {
			respondEditError(w, r, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, s.View())
	}
}

func HandleGet(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}
		render.JSON(w, r, s.View())
	}
}

func HandleClose(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Close(chi.URLParam(r, "sid")); err != nil {
			respondEditError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleAddElement(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req AddElementRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		if _, err := s.AddPreset(req.Preset, req.Src); err != nil {
			respondEditError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		respondResult(w, r, s, true)
	}
}

func HandleSelect(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req SelectRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		if err := s.Select(req.ElementID); err != nil {
			respondEditError(w, r, err)
			return
		}
		respondResult(w, r, s, true)
	}
}

// HandleDeleteSelected removes the selected element. Without a selection the
// call is a no-op.
func HandleDeleteSelected(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}
		respondResult(w, r, s, s.DeleteSelected())
	}
}

func HandleMove(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req MoveRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		applied, err := s.Move(chi.URLParam(r, "eid"), req.X, req.Y)
		if err != nil {
			respondEditError(w, r, err)
			return
		}
		respondResult(w, r, s, applied)
	}
}

func HandleResize(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req ResizeRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		applied, err := s.Resize(chi.URLParam(r, "eid"), req.X, req.Y, req.ScaleX, req.ScaleY)
		if err != nil {
			respondEditError(w, r, err)
			return
		}
		respondResult(w, r, s, applied)
	}
}

func HandleUpdateStyle(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req StyleRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		applied, err := s.UpdateStyle(chi.URLParam(r, "eid"), req.style())
		if err != nil {
			respondEditError(w, r, err)
			return
		}
		respondResult(w, r, s, applied)
	}
}

func HandleLayer(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req LayerRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		var applied bool
		if req.Direction == "front" {
			applied = s.BringToFront()
		} else {
			applied = s.SendToBack()
		}
		respondResult(w, r, s, applied)
	}
}

func HandleKey(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req KeyRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}
		respondResult(w, r, s, s.HandleKey(textedit.ParseKey(req.Key, req.Modifiers)))
	}
}

func HandleClick(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req ClickRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		id := s.Click(req.X, req.Y)
		render.JSON(w, r, ClickResponse{ElementID: id, Session: s.View()})
	}
}

func HandleSettings(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		var req SettingsRequest
		if err := apiutil.Decode(r, &req); err != nil {
			apiutil.RespondDecodeError(w, r, err)
			return
		}

		applied, err := s.UpdateSettings(editor.Settings{
			Name:            req.Name,
			TurmaID:         req.TurmaID,
			ClearTurma:      req.ClearTurma,
			Orientation:     req.Orientation,
			BackgroundImage: req.BackgroundImage,
			FontFamily:      req.FontFamily,
		})
		if err != nil {
			respondEditError(w, r, err)
			return
		}
		respondResult(w, r, s, applied)
	}
}

func HandleSave(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		id, err := s.Save(r.Context())
		if err != nil {
			respondEditError(w, r, err)
			return
		}
		render.JSON(w, r, SaveResponse{TemplateID: id, Session: s.View()})
	}
}

// HandlePreview renders the session as PNG. The optional ratio query
// parameter sets the pixel ratio.
func HandlePreview(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		ratio := 1.0
		if raw := r.URL.Query().Get("ratio"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(v) || v <= 0 || v > maxPixelRatio {
				apiutil.RespondError(w, r, http.StatusBadRequest, "ratio must be a number in (0, 4]")
				return
			}
			ratio = v
		}

		data, err := s.ExportPNG(r.Context(), ratio)
		if err != nil {
			respondEditError(w, r, err)
			return
		}
		apiutil.WriteFile(w, "image/png", "inline", "preview.png", data)
	}
}

func HandleExportPDF(m *editor.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(m, w, r)
		if !ok {
			return
		}

		data, err := s.ExportPDF(r.Context())
		if err != nil {
			respondEditError(w, r, err)
			return
		}

		name := "certificado.pdf"
		if v := s.View(); v.Name != "" {
			name = v.Name + ".pdf"
		}
		apiutil.WriteFile(w, "application/pdf", "attachment", name, data)
	}
}
