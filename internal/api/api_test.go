package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/starford/comicshelf/internal/extension"
	"github.com/starford/comicshelf/internal/library"
	"github.com/starford/comicshelf/internal/models"
	"github.com/starford/comicshelf/internal/reconcile"
	"github.com/starford/comicshelf/internal/scanner"
	"github.com/starford/comicshelf/internal/storage"
	"github.com/starford/comicshelf/internal/testutil"
	"github.com/starford/comicshelf/internal/thumbnail"
)

type echoHost struct{}

func (echoHost) Execute(_ context.Context, items []models.Projection) (string, error) {
	return items[0].Title, nil
}

type testEnv struct {
	svc      *library.Service
	router   http.Handler
	launched [][]string
}

// newTestEnv builds a library of three comics behind a router.
// An empty token means auth is disabled.
func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	return newTestEnvWithSSE(t, token, nil)
}

func newTestEnvWithSSE(t *testing.T, token string, sseHandler http.Handler) *testEnv {
	t.Helper()

	fsys := testutil.TestLibrary(t,
		"/lib/Alpha/Omega/1.png",
		"/lib/Alpha/Omega/2.png",
		"/lib/Alpha/Beta/1.png",
		"/lib/Bravo/Zeta/1.png",
	)
	db := testutil.TestStore(t)
	sc := scanner.New(fsys, scanner.Options{
		Roots:             []scanner.Root{{Category: "Manga", Path: "/lib"}},
		ContentExtensions: []string{".png"},
		ImageExtensions:   []string{".png"},
	}, nil)
	rec := reconcile.New(reconcile.NewCollection(), db, sc, nil)

	blobs, err := storage.NewFS(fsys, "/thumbs")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	thumbs := thumbnail.NewCache(blobs, thumbnail.SourceCopy{FS: fsys}, 64, nil)

	reg := extension.NewRegistry()
	reg.Register("first-title", echoHost{})

	env := &testEnv{}
	env.svc = library.NewService(rec, db, thumbs, reg,
		library.Config{Program: "viewer", Args: "{all}"},
		library.WithLauncher(func(argv []string) error {
			env.launched = append(env.launched, argv)
			return nil
		}),
	)
	if _, err := env.svc.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	env.router = NewRouter(env.svc, token != "", token, sseHandler)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func comicPath(id, suffix string) string {
	return "/comics/" + url.PathEscape(id) + suffix
}

func TestListComics(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/comics?sort=title&limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ComicListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
	if len(resp.Comics) != 2 || resp.Comics[0].Title != "Beta" || resp.Comics[1].Title != "Omega" {
		t.Errorf("comics = %+v", resp.Comics)
	}
}

func TestListComics_BadSort(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/comics?sort=size", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad sort = %d, want 400", w.Code)
	}
}

func TestGetComic_EncodedID(t *testing.T) {
	env := newTestEnv(t, "")
	id := string(models.NewIdentifier("Alpha", "Omega"))

	w := env.do(t, http.MethodGet, comicPath(id, ""), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var c ComicDetail
	if err := json.NewDecoder(w.Body).Decode(&c); err != nil {
		t.Fatal(err)
	}
	if c.ID != id || len(c.FilePaths) != 2 {
		t.Errorf("detail = %+v", c)
	}
}

func TestGetComic_NotFound(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, comicPath("Nobody/Nothing", ""), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing comic = %d, want 404", w.Code)
	}
}

func TestSetTagsAndListTags(t *testing.T) {
	env := newTestEnv(t, "")
	id := string(models.NewIdentifier("Bravo", "Zeta"))

	w := env.do(t, http.MethodPut, comicPath(id, "/tags"), TagsRequest{Tags: []string{"color", "action"}})
	if w.Code != http.StatusOK {
		t.Fatalf("set tags = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/comics?tag=color", nil)
	var resp ComicListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Comics[0].ID != id {
		t.Errorf("tag filter = %+v", resp)
	}

	w = env.do(t, http.MethodGet, "/tags", nil)
	var tags TagListResponse
	if err := json.NewDecoder(w.Body).Decode(&tags); err != nil {
		t.Fatal(err)
	}
	if len(tags.Tags) != 2 {
		t.Errorf("tags = %+v, want 2", tags.Tags)
	}
}

func TestSetTags_InvalidBody(t *testing.T) {
	env := newTestEnv(t, "")
	req := httptest.NewRequest(http.MethodPut, comicPath("Bravo/Zeta", "/tags"), bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestLovedAndDisliked(t *testing.T) {
	env := newTestEnv(t, "")
	id := string(models.NewIdentifier("Alpha", "Beta"))

	w := env.do(t, http.MethodPut, comicPath(id, "/loved"), FlagRequest{Value: true})
	if w.Code != http.StatusOK {
		t.Fatalf("loved = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/comics?loved=true", nil)
	var resp ComicListResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Total != 1 {
		t.Errorf("loved total = %d, want 1", resp.Total)
	}

	w = env.do(t, http.MethodPut, comicPath(id, "/disliked"), FlagRequest{Value: true})
	var c ComicDetail
	_ = json.NewDecoder(w.Body).Decode(&c)
	if c.Loved || !c.Disliked {
		t.Errorf("after dislike loved=%v disliked=%v", c.Loved, c.Disliked)
	}

	w = env.do(t, http.MethodGet, "/comics?hide_disliked=true", nil)
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Total != 2 {
		t.Errorf("hide disliked total = %d, want 2", resp.Total)
	}
}

func TestSetOverrides(t *testing.T) {
	env := newTestEnv(t, "")
	id := string(models.NewIdentifier("Alpha", "Omega"))
	title := "The End"

	w := env.do(t, http.MethodPut, comicPath(id, "/overrides"), Overrides{Title: &title})
	if w.Code != http.StatusOK {
		t.Fatalf("overrides = %d, body = %s", w.Code, w.Body.String())
	}
	var c ComicDetail
	_ = json.NewDecoder(w.Body).Decode(&c)
	if c.Title != "The End" || c.ID != id {
		t.Errorf("detail = %+v", c)
	}
}

func TestProgress(t *testing.T) {
	env := newTestEnv(t, "")
	id := string(models.NewIdentifier("Alpha", "Omega"))

	w := env.do(t, http.MethodPut, comicPath(id, "/progress"), ProgressBody{Progress: 7})
	if w.Code != http.StatusNoContent {
		t.Fatalf("set progress = %d, body = %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodGet, comicPath(id, "/progress"), nil)
	var p ProgressBody
	_ = json.NewDecoder(w.Body).Decode(&p)
	if p.Progress != 7 {
		t.Errorf("progress = %d, want 7", p.Progress)
	}

	w = env.do(t, http.MethodPut, comicPath(id, "/progress"), ProgressBody{Progress: -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative progress = %d, want 400", w.Code)
	}
}

func TestCommandAndLaunch(t *testing.T) {
	env := newTestEnv(t, "")
	id := string(models.NewIdentifier("Alpha", "Omega"))

	w := env.do(t, http.MethodGet, comicPath(id, "/command"), nil)
	var cmd CommandResponse
	_ = json.NewDecoder(w.Body).Decode(&cmd)
	want := []string{"viewer", "/lib/Alpha/Omega/1.png", "/lib/Alpha/Omega/2.png"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("command = %v, want %v", cmd.Args, want)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, cmd.Args[i], want[i])
		}
	}

	w = env.do(t, http.MethodPost, comicPath(id, "/launch"), nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("launch = %d, body = %s", w.Code, w.Body.String())
	}
	if len(env.launched) != 1 || env.launched[0][0] != "viewer" {
		t.Errorf("launched = %v", env.launched)
	}
}

func TestTokenize(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/tokenize", TokenizeRequest{Format: "{title} {all:,}", ID: "Alpha/Omega"})
	if w.Code != http.StatusOK {
		t.Fatalf("tokenize = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CommandResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Args) != 2 || resp.Args[0] != "Omega" || resp.Args[1] != "/lib/Alpha/Omega/1.png,/lib/Alpha/Omega/2.png" {
		t.Errorf("args = %q", resp.Args)
	}

	w = env.do(t, http.MethodPost, "/tokenize", TokenizeRequest{Format: "{bad"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad format = %d, want 400", w.Code)
	}
}

func TestThumbnail(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, comicPath("Alpha/Beta", "/thumbnail"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("thumbnail = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "x" {
		t.Errorf("thumbnail body = %q", w.Body.String())
	}
}

func TestRescanAndShuffle(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/rescan", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rescan = %d", w.Code)
	}
	var resp RescanResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Unchanged != 3 || len(resp.Added) != 0 || resp.ScanID == "" {
		t.Errorf("rescan = %+v", resp)
	}

	w = env.do(t, http.MethodPost, "/shuffle", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("shuffle = %d, want 204", w.Code)
	}
}

func TestExtensions(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/extensions", nil)
	var names []string
	_ = json.NewDecoder(w.Body).Decode(&names)
	if len(names) != 1 || names[0] != "first-title" {
		t.Errorf("names = %v", names)
	}

	w = env.do(t, http.MethodPost, "/extensions/first-title", ExtensionRequest{IDs: []string{"Bravo/Zeta"}})
	var resp ExtensionResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if w.Code != http.StatusOK || resp.Status != "Zeta" {
		t.Errorf("run = %d %+v", w.Code, resp)
	}

	w = env.do(t, http.MethodPost, "/extensions/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown extension = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/comics", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	w := env.do(t, http.MethodGet, "/comics", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/comics", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	env := newTestEnv(t, "secret123")

	w := env.do(t, http.MethodGet, "/comics?access_token=secret123", nil)
	if w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/comics", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// Minimal SSE handler stub: writes headers and blocks until context done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newTestEnvWithSSE(t, "secret", sseStub)

	w := env.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := newTestEnvWithSSE(t, "tok", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
