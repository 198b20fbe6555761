package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/rayin-translation/internal/imageurl"
	"github.com/JakeFAU/rayin-translation/internal/library"
)

var (
	coverThumb = imageurl.Options{Width: 300, Height: 450, Quality: 80, Format: "webp", Resize: "cover"}
	bannerWide = imageurl.Options{Width: 1200, Quality: 80, Format: "webp"}
	popularIco = imageurl.Options{Width: 96, Height: 144, Quality: 70, Format: "webp", Resize: "cover"}
)

type novelDTO struct {
	library.Novel
	DisplayAuthor string `json:"display_author,omitempty"`
	CoverThumbURL string `json:"cover_thumb_url,omitempty"`
	BannerWideURL string `json:"banner_wide_url,omitempty"`
}

func toNovelDTO(n library.Novel) novelDTO {
	if n.Chapters == nil {
		n.Chapters = []library.ChapterSummary{}
	}
	return novelDTO{
		Novel:         n,
		DisplayAuthor: n.DisplayAuthor(),
		CoverThumbURL: imageurl.Optimize(n.ImageURL, coverThumb),
		BannerWideURL: imageurl.Optimize(n.BannerURL, bannerWide),
	}
}

func toNovelDTOs(in []library.Novel) []novelDTO {
	out := make([]novelDTO, 0, len(in))
	for _, n := range in {
		out = append(out, toNovelDTO(n))
	}
	return out
}

func thumbPopular(in []library.PopularNovel) []library.PopularNovel {
	out := make([]library.PopularNovel, 0, len(in))
	for _, p := range in {
		p.ImageURL = imageurl.Optimize(p.ImageURL, popularIco)
		out = append(out, p)
	}
	return out
}

type homeDTO struct {
	Featured    []novelDTO         `json:"featured"`
	Latest      []novelDTO         `json:"latest"`
	Popular     library.PopularSet `json:"popular"`
	Ready       bool               `json:"ready"`
	LastFetched time.Time          `json:"last_fetched"`
	Error       string             `json:"error,omitempty"`
}

type chapterDTO struct {
	library.Chapter
	Prev *int `json:"prev_chapter,omitempty"`
	Next *int `json:"next_chapter,omitempty"`
}

// getHome handles GET /api/home?force=. Sections that failed keep their
// previous content and the failure is reported in "error".
func (s *Server) getHome(w http.ResponseWriter, r *http.Request) {
	if s.home == nil {
		unavailable(w, "home feed")
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	err := s.home.Fetch(r.Context(), force)
	snap := s.home.Snapshot()
	if err != nil && !snap.Ready {
		s.writeErr(w, r, err, "load home")
		return
	}
	writeJSON(w, http.StatusOK, homeDTO{
		Featured: toNovelDTOs(snap.Featured),
		Latest:   toNovelDTOs(snap.Latest),
		Popular: library.PopularSet{
			AllTime: thumbPopular(snap.Popular.AllTime),
			Weekly:  thumbPopular(snap.Popular.Weekly),
			Monthly: thumbPopular(snap.Popular.Monthly),
		},
		Ready:       snap.Ready,
		LastFetched: snap.LastFetched,
		Error:       snap.Error,
	})
}

// getNovel handles GET /api/novels/{slug}.
func (s *Server) getNovel(w http.ResponseWriter, r *http.Request) {
	if s.novels == nil {
		unavailable(w, "novel cache")
		return
	}
	novel, err := s.novels.FetchNovel(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeErr(w, r, err, "load novel")
		return
	}
	writeJSON(w, http.StatusOK, toNovelDTO(novel))
}

// getChapter handles GET /api/novels/{slug}/chapters/{number} and warms the
// following chapter in the background.
func (s *Server) getChapter(w http.ResponseWriter, r *http.Request) {
	if s.novels == nil {
		unavailable(w, "novel cache")
		return
	}
	slug := chi.URLParam(r, "slug")
	number, ok := chapterNumber(w, r)
	if !ok {
		return
	}
	chapter, err := s.novels.FetchChapter(r.Context(), slug, number)
	if err != nil {
		s.writeErr(w, r, err, "load chapter")
		return
	}
	out := chapterDTO{Chapter: chapter}
	if novel, ok := s.novels.GetNovel(slug); ok {
		out.Prev, out.Next = neighbours(novel.Chapters, number)
	}
	if out.Next != nil {
		s.novels.PrefetchChapter(slug, *out.Next)
	}
	writeJSON(w, http.StatusOK, out)
}

// prefetchNovel handles POST /api/novels/{slug}/prefetch.
func (s *Server) prefetchNovel(w http.ResponseWriter, r *http.Request) {
	if s.novels == nil {
		unavailable(w, "novel cache")
		return
	}
	s.novels.PrefetchNovel(chi.URLParam(r, "slug"))
	w.WriteHeader(http.StatusAccepted)
}

// prefetchChapter handles POST /api/novels/{slug}/chapters/{number}/prefetch.
func (s *Server) prefetchChapter(w http.ResponseWriter, r *http.Request) {
	if s.novels == nil {
		unavailable(w, "novel cache")
		return
	}
	number, ok := chapterNumber(w, r)
	if !ok {
		return
	}
	s.novels.PrefetchChapter(chi.URLParam(r, "slug"), number)
	w.WriteHeader(http.StatusAccepted)
}

func chapterNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "invalid chapter number")
		return 0, false
	}
	return n, true
}

// neighbours finds the chapters published right before and after number.
// The list may be in either order.
func neighbours(chapters []library.ChapterSummary, number int) (prev, next *int) {
	for _, c := range chapters {
		n := c.Number
		switch {
		case n < number && (prev == nil || n > *prev):
			prev = &n
		case n > number && (next == nil || n < *next):
			next = &n
		}
	}
	return prev, next
}
