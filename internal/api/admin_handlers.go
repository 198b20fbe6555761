package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/rayin-translation/internal/admin"
	"github.com/JakeFAU/rayin-translation/internal/imageurl"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/presets"
	"github.com/JakeFAU/rayin-translation/internal/source"
)

type savePresetRequest struct {
	Settings library.Settings `json:"settings"`
	ActiveID string           `json:"active_id,omitempty"`
	Name     string           `json:"name,omitempty"`
	NovelID  string           `json:"novel_id,omitempty"`
}

type resetPresetResponse struct {
	ActiveID string           `json:"active_id,omitempty"`
	Settings library.Settings `json:"settings"`
}

type coverResponse struct {
	ImageURL      string `json:"image_url"`
	CoverThumbURL string `json:"cover_thumb_url"`
}

func (s *Server) adminNovels(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		unavailable(w, "admin")
		return
	}
	novels, err := s.admin.LoadNovels(r.Context())
	if err != nil {
		s.writeErr(w, r, err, "list novels")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"novels": novels})
}

func (s *Server) adminNovel(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		unavailable(w, "admin")
		return
	}
	view, err := s.admin.LoadNovelBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeErr(w, r, err, "load novel")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// uploadCover handles PUT /api/admin/novels/{slug}/cover with the raw image
// as the body.
func (s *Server) uploadCover(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		unavailable(w, "admin")
		return
	}
	url, err := s.admin.UploadCover(r.Context(), chi.URLParam(r, "slug"), r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		s.writeErr(w, r, err, "upload cover")
		return
	}
	writeJSON(w, http.StatusOK, coverResponse{
		ImageURL:      url,
		CoverThumbURL: imageurl.Optimize(url, coverThumb),
	})
}

func (s *Server) adminChapter(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		unavailable(w, "admin")
		return
	}
	view, err := s.admin.LoadChapter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err, "load chapter")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) createChapter(w http.ResponseWriter, r *http.Request) {
	s.saveChapter(w, r, "")
}

func (s *Server) updateChapter(w http.ResponseWriter, r *http.Request) {
	s.saveChapter(w, r, chi.URLParam(r, "id"))
}

func (s *Server) saveChapter(w http.ResponseWriter, r *http.Request, chapterID string) {
	if s.admin == nil {
		unavailable(w, "admin")
		return
	}
	var form admin.Form
	if err := decodeJSON(r, &form); err != nil {
		s.writeErr(w, r, err, "save chapter")
		return
	}
	res, err := s.admin.Save(r.Context(), form, chapterID)
	if err != nil {
		s.writeErr(w, r, err, "save chapter")
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) deleteChapter(w http.ResponseWriter, r *http.Request) {
	if s.admin == nil {
		unavailable(w, "admin")
		return
	}
	slug, err := s.admin.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err, "delete chapter")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"slug": slug})
}

// listPresets handles GET /api/admin/presets?novel_id=.
func (s *Server) listPresets(w http.ResponseWriter, r *http.Request) {
	if s.presets == nil {
		unavailable(w, "presets")
		return
	}
	sel, err := s.presets.Load(r.Context(), r.URL.Query().Get("novel_id"))
	if err != nil {
		s.writeErr(w, r, err, "load presets")
		return
	}
	if sel.Presets == nil {
		sel.Presets = []library.Preset{}
	}
	writeJSON(w, http.StatusOK, sel)
}

func (s *Server) savePreset(w http.ResponseWriter, r *http.Request) {
	if s.presets == nil {
		unavailable(w, "presets")
		return
	}
	var in savePresetRequest
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, r, err, "save preset")
		return
	}
	p, err := s.presets.Save(r.Context(), in.Settings, in.ActiveID, in.Name, in.NovelID)
	if err != nil {
		s.writeErr(w, r, err, "save preset")
		return
	}
	status := http.StatusOK
	if in.ActiveID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, p)
}

// resetPreset handles POST /api/admin/presets/reset and returns the default
// preset's settings, or the built-in defaults when none is marked.
func (s *Server) resetPreset(w http.ResponseWriter, r *http.Request) {
	if s.presets == nil {
		unavailable(w, "presets")
		return
	}
	sel, err := s.presets.Load(r.Context(), "")
	if err != nil {
		s.writeErr(w, r, err, "reset preset")
		return
	}
	id, settings := presets.ResetToDefault(sel.Presets)
	writeJSON(w, http.StatusOK, resetPresetResponse{ActiveID: id, Settings: settings})
}

func (s *Server) deletePreset(w http.ResponseWriter, r *http.Request) {
	if s.presets == nil {
		unavailable(w, "presets")
		return
	}
	if err := s.presets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeErr(w, r, err, "delete preset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importSource handles POST /api/admin/source.
func (s *Server) importSource(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		unavailable(w, "source importer")
		return
	}
	var in source.Request
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, r, err, "import source")
		return
	}
	res, err := s.importer.Import(r.Context(), in)
	if err != nil {
		s.writeErr(w, r, err, "import source")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
