package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/rayin-translation/internal/admin"
	"github.com/JakeFAU/rayin-translation/internal/auth"
	"github.com/JakeFAU/rayin-translation/internal/clock/manual"
	"github.com/JakeFAU/rayin-translation/internal/hash/sha256"
	"github.com/JakeFAU/rayin-translation/internal/home"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/novelcache"
	"github.com/JakeFAU/rayin-translation/internal/policy/ratelimit"
	"github.com/JakeFAU/rayin-translation/internal/presets"
	pubmem "github.com/JakeFAU/rayin-translation/internal/publisher/memory"
	"github.com/JakeFAU/rayin-translation/internal/storage/memory"
	"github.com/JakeFAU/rayin-translation/internal/translate"
)

const (
	adminToken  = "admin-token"
	readerToken = "reader-token"
	storageBase = "https://x.supabase.co/storage/v1/object/public"
)

type fakeProvider struct {
	users map[string]auth.User
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*oauth2.Token, error) {
	if password != "secret" {
		return nil, &auth.APIError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	for tok, u := range f.users {
		if u.Email == email {
			return &oauth2.Token{AccessToken: tok, RefreshToken: "refresh-" + tok, TokenType: "bearer"}, nil
		}
	}
	return nil, &auth.APIError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
}

func (f *fakeProvider) RefreshSession(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	tok, ok := strings.CutPrefix(refreshToken, "refresh-")
	if !ok {
		return nil, &auth.APIError{Status: http.StatusUnauthorized, Message: "invalid refresh token"}
	}
	return &oauth2.Token{AccessToken: tok, RefreshToken: refreshToken, TokenType: "bearer"}, nil
}

func (f *fakeProvider) SignUp(_ context.Context, email, _, username string) (*oauth2.Token, auth.User, error) {
	return nil, auth.User{ID: "u-new", Email: email, UserMetadata: map[string]any{"username": username}}, nil
}

func (f *fakeProvider) SignOut(context.Context, string) error {
	return errors.New("provider down")
}

func (f *fakeProvider) GetUser(_ context.Context, accessToken string) (auth.User, error) {
	u, ok := f.users[accessToken]
	if !ok {
		return auth.User{}, library.ErrUnauthorized
	}
	return u, nil
}

type fixture struct {
	server *Server
	store  *memory.LibraryStore
	blobs  *memory.BlobStore
	pub    *pubmem.Publisher
	clock  *manual.Clock
}

type fixtureOptions struct {
	translatorURL string
	limiter       *ratelimit.Limiter
	ready         func(context.Context) error
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	logger := zap.NewNop()
	clock := manual.New(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	store := memory.NewLibraryStore(nil)
	published := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	store.PutNovel(library.Novel{
		ID:        "n1",
		Slug:      "slime",
		Title:     "Slime Life",
		Author:    "伏瀬",
		ImageURL:  storageBase + "/covers/slime.png",
		BannerURL: storageBase + "/banners/slime.png",
		UpdatedAt: published,
	})
	for i, title := range []string{"Death", "Rebirth", "Naming"} {
		n := i + 1
		store.PutChapter(library.Chapter{
			ChapterSummary: library.ChapterSummary{ID: "c" + string(rune('0'+n)), Number: n, Title: title, PublishedAt: &published},
			NovelID:        "n1",
			Content:        "content " + title,
		})
	}
	store.PutProfile(library.Profile{ID: "u-admin", Role: library.RoleSuperAdmin, Username: "rayin"})
	store.PutProfile(library.Profile{ID: "u-reader", Role: "user", Username: "reader"})
	store.PutPreset(library.Preset{ID: "p-default", Name: "Default", IsDefault: true, Settings: library.Settings{Model: "m-default", Temperature: 0.5, TopP: 1, MaxTokens: 100}})

	cache, err := novelcache.New(store, clock, nil, logger, novelcache.Config{})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	provider := &fakeProvider{users: map[string]auth.User{
		adminToken:  {ID: "u-admin", Email: "admin@example.com"},
		readerToken: {ID: "u-reader", Email: "reader@example.com"},
	}}
	authStore := auth.NewStore(provider, store, clock, nil, logger, auth.StoreConfig{})

	blobs := memory.NewBlobStore(storageBase)
	pub := pubmem.New()
	adminSvc, err := admin.New(admin.Deps{
		Repo:      store,
		Blobs:     blobs,
		Hasher:    sha256.New(),
		Publisher: pub,
		Cache:     cache,
		Clock:     clock,
		Logger:    logger,
	}, admin.Config{})
	require.NoError(t, err)

	var translator *translate.Translator
	if opts.translatorURL != "" {
		translator, err = translate.New(translate.Config{
			Provider: translate.ProviderOpenRouter,
			BaseURL:  opts.translatorURL,
			APIKey:   "sk-test",
		}, clock, nil, logger)
		require.NoError(t, err)
	}

	frontend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "spa:"+r.URL.Path)
	})

	srv := NewServer(Deps{
		Novels:     cache,
		Home:       home.New(store, cache, clock, nil, logger, home.Config{}),
		Auth:       authStore,
		Presets:    presets.NewService(store, clock, nil, logger),
		Admin:      adminSvc,
		Translator: translator,
		Limiter:    opts.limiter,
		Ready:      opts.ready,
		Frontend:   frontend,
		Logger:     logger,
	}, Options{RequestTimeout: 5 * time.Second})
	return &fixture{server: srv, store: store, blobs: blobs, pub: pub, clock: clock}
}

func (f *fixture) do(method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{ready: func(context.Context) error { return errors.New("db down") }})

	rec := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = f.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestFrontendFallthrough(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	rec := f.do(http.MethodGet, "/novel/slime", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "spa:/novel/slime", rec.Body.String())
}

func TestGetNovel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	rec := f.do(http.MethodGet, "/api/novels/slime", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	require.Equal(t, "Slime Life", got["title"])
	require.Equal(t, "伏瀬", got["display_author"])
	require.Len(t, got["chapters"], 3)
	require.Equal(t,
		"https://x.supabase.co/storage/v1/render/image/public/covers/slime.png?width=300&height=450&quality=80&format=webp&resize=cover",
		got["cover_thumb_url"])

	rec = f.do(http.MethodGet, "/api/novels/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not found", errorMessage(t, rec))
}

func TestGetChapter(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	rec := f.do(http.MethodGet, "/api/novels/slime", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/novels/slime/chapters/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	require.Equal(t, "content Rebirth", got["content"])
	require.EqualValues(t, 1, got["prev_chapter"])
	require.EqualValues(t, 3, got["next_chapter"])

	rec = f.do(http.MethodGet, "/api/novels/slime/chapters/zero", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid chapter number", errorMessage(t, rec))

	rec = f.do(http.MethodGet, "/api/novels/slime/chapters/9", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrefetchAccepted(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/novels/slime/prefetch", "", nil).Code)
	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/novels/slime/chapters/1/prefetch", "", nil).Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/novels/slime/chapters/-1/prefetch", "", nil).Code)
}

func TestGetHome(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	rec := f.do(http.MethodGet, "/api/home?force=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[homeDTO](t, rec)
	require.True(t, got.Ready)
	require.Len(t, got.Featured, 1)
	require.Contains(t, got.Featured[0].BannerWideURL, "/render/image/public/banners/slime.png?width=1200")
	require.Len(t, got.Latest, 1)
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	rec := f.do(http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/auth/me", "bogus", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/signin", "", strings.NewReader(`{"email":"admin@example.com","password":"secret"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	session := decode[struct {
		Session struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"session"`
		State auth.State `json:"state"`
	}](t, rec)
	require.Equal(t, adminToken, session.Session.AccessToken)
	require.True(t, session.State.IsSuperAdmin)

	rec = f.do(http.MethodGet, "/api/auth/me", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[auth.State](t, rec)
	require.Equal(t, "u-admin", me.User.ID)
	require.Equal(t, "rayin", me.Profile.Username)

	rec = f.do(http.MethodPost, "/api/auth/refresh", "", strings.NewReader(`{"refresh_token":"`+session.Session.RefreshToken+`"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/refresh", "", strings.NewReader(`{"refresh_token":"stale"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/signout", adminToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSignInErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	rec := f.do(http.MethodPost, "/api/auth/signin", "", strings.NewReader(`{"email":"admin@example.com"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "email and password are required", errorMessage(t, rec))

	rec = f.do(http.MethodPost, "/api/auth/signin", "", strings.NewReader(`{"email":"admin@example.com","password":"nope"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid login credentials", errorMessage(t, rec))

	rec = f.do(http.MethodPost, "/api/auth/signin", "", strings.NewReader(`{bad`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid JSON", errorMessage(t, rec))
}

func TestSignUpWithoutSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	rec := f.do(http.MethodPost, "/api/auth/signup", "", strings.NewReader(`{"email":"new@example.com","password":"secret"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "username is required", errorMessage(t, rec))

	rec = f.do(http.MethodPost, "/api/auth/signup", "", strings.NewReader(`{"email":"new@example.com","password":"secret","username":"neo"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[map[string]any](t, rec)
	require.NotContains(t, got, "session")
}

func TestAdminRequiresSuperAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/admin/novels", "", nil).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/admin/novels", readerToken, nil).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/admin/translate", readerToken, strings.NewReader(`{}`)).Code)

	rec := f.do(http.MethodGet, "/api/admin/novels", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"slug":"slime"`)
}

func TestAdminChapterLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	rec := f.do(http.MethodGet, "/api/admin/novels/slime", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[admin.NovelView](t, rec)
	require.Equal(t, 4, view.NextChapterNumber)

	rec = f.do(http.MethodPost, "/api/admin/chapters", adminToken,
		strings.NewReader(`{"novel_id":"n1","chapter_number":4,"title":"  Goblins ","content":"text"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	saved := decode[admin.SaveResult](t, rec)
	require.True(t, saved.Created)
	require.Equal(t, "slime", saved.Slug)
	require.Len(t, f.pub.ByEvent(admin.EventChapterPublished), 1)

	rec = f.do(http.MethodGet, "/api/admin/chapters/"+saved.ChapterID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Goblins", decode[admin.ChapterView](t, rec).Chapter.Title)

	rec = f.do(http.MethodPut, "/api/admin/chapters/"+saved.ChapterID, adminToken,
		strings.NewReader(`{"novel_id":"n1","chapter_number":4,"title":"Goblins!","content":"text"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/chapters", adminToken, strings.NewReader(`{"chapter_number":5}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Please select a novel first.", errorMessage(t, rec))

	rec = f.do(http.MethodDelete, "/api/admin/chapters/"+saved.ChapterID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "slime", decode[map[string]string](t, rec)["slug"])

	rec = f.do(http.MethodDelete, "/api/admin/chapters/"+saved.ChapterID, adminToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadCover(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	req := httptest.NewRequest(http.MethodPut, "/api/admin/novels/slime/cover", bytes.NewReader([]byte("png-bytes")))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[coverResponse](t, rec)
	require.True(t, strings.HasPrefix(got.ImageURL, storageBase+"/covers/slime/"))
	require.Contains(t, got.CoverThumbURL, "/render/image/public/covers/slime/")

	req = httptest.NewRequest(http.MethodPut, "/api/admin/novels/slime/cover", strings.NewReader("x"))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPresetEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})

	rec := f.do(http.MethodGet, "/api/admin/presets", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sel := decode[presets.Selection](t, rec)
	require.Equal(t, "p-default", sel.ActiveID)
	require.Equal(t, "m-default", sel.Settings.Model)

	rec = f.do(http.MethodPost, "/api/admin/presets", adminToken,
		strings.NewReader(`{"name":"Creative","novel_id":"n1","settings":{"model":"m2","temperature":1.2,"top_p":0.9,"max_tokens":2000}}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[library.Preset](t, rec)
	require.Equal(t, "Creative", created.Name)

	rec = f.do(http.MethodGet, "/api/admin/presets?novel_id=n1", adminToken, nil)
	require.Equal(t, created.ID, decode[presets.Selection](t, rec).ActiveID)

	rec = f.do(http.MethodPost, "/api/admin/presets", adminToken,
		strings.NewReader(`{"name":"Hot","settings":{"temperature":3,"top_p":1,"max_tokens":10}}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/presets/reset", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "p-default", decode[resetPresetResponse](t, rec).ActiveID)

	rec = f.do(http.MethodDelete, "/api/admin/presets/p-default", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Cannot delete the default preset.", errorMessage(t, rec))

	rec = f.do(http.MethodDelete, "/api/admin/presets/"+created.ID, adminToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func completionServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"Hello", " world"} {
			b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": text}}}})
			_, _ = io.WriteString(w, "data: "+string(b)+"\n\n")
			w.(http.Flusher).Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sseEvents(body string) []string {
	var names []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestTranslateStreamsEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{translatorURL: completionServer(t).URL})

	rec := f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(`{"source":"こんにちは世界"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, []string{"phase", "phase", "phase", "content", "content", "done", "phase"}, sseEvents(rec.Body.String()))
	require.Contains(t, rec.Body.String(), `data: {"type":"content","text":" world","tokens":2}`)
}

func TestTranslateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{translatorURL: completionServer(t).URL})

	rec := f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(`{"source":"   "}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, translate.ErrEmptySource.Error(), errorMessage(t, rec))

	rec = f.do(http.MethodPost, "/api/admin/translate", adminToken,
		strings.NewReader(`{"source":"x","settings":{"temperature":1,"top_p":2,"max_tokens":1}}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(`{"source":"x","preset_id":"nope"}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTranslateRateLimited(t *testing.T) {
	t.Parallel()
	limiter, err := ratelimit.New(ratelimit.Config{PerMinute: 1, Burst: 1})
	require.NoError(t, err)
	f := newFixture(t, fixtureOptions{translatorURL: completionServer(t).URL, limiter: limiter})

	rec := f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(`{"source":"一"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(`{"source":"二"}`))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTranslateMalformedRequestsKeepQuota(t *testing.T) {
	t.Parallel()
	limiter, err := ratelimit.New(ratelimit.Config{PerMinute: 1, Burst: 1})
	require.NoError(t, err)
	f := newFixture(t, fixtureOptions{translatorURL: completionServer(t).URL, limiter: limiter})

	for _, body := range []string{`{"source":`, `{"source":"  "}`} {
		rec := f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(body))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(`{"source":"一"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(`{"source":"二"}`))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestTranslatorNotConfigured(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	rec := f.do(http.MethodPost, "/api/admin/translate", adminToken, strings.NewReader(`{"source":"x"}`))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	req := httptest.NewRequest(http.MethodOptions, "/api/home", nil)
	req.Header.Set("Origin", "https://rayin.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()
	s := &Server{logger: zap.NewNop()}
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal server error", errorMessage(t, rec))
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":               "",
		"Bearer":         "",
		"Bearer abc":     "abc",
		"bearer  xyz ":   "xyz",
		"Basic dXNlcjo=": "",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		require.Equal(t, want, bearerToken(req), header)
	}
}

func TestNeighbours(t *testing.T) {
	t.Parallel()
	list := []library.ChapterSummary{{Number: 5}, {Number: 3}, {Number: 1}}
	prev, next := neighbours(list, 3)
	require.Equal(t, 1, *prev)
	require.Equal(t, 5, *next)
	prev, next = neighbours(list, 1)
	require.Nil(t, prev)
	require.Equal(t, 3, *next)
}
