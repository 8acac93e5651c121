package manga_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/binhbb2204/mangashelf/internal/auth"
	"github.com/binhbb2204/mangashelf/internal/events"
	"github.com/binhbb2204/mangashelf/internal/manga"
	"github.com/binhbb2204/mangashelf/internal/pages"
	"github.com/binhbb2204/mangashelf/internal/user"
	"github.com/binhbb2204/mangashelf/pkg/database"
	"github.com/binhbb2204/mangashelf/pkg/logger"
	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/binhbb2204/mangashelf/pkg/utils"
	"github.com/gin-gonic/gin"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type handlerEnv struct {
	router    *gin.Engine
	repo      *manga.DBRepository
	users     *user.DBRepository
	sessions  *auth.SessionManager
	root      string
	published *recordingPublisher
}

func setupHandler(t *testing.T, maxUpload int64) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Init(logger.ERROR, false, nil)

	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	root := filepath.Join(dir, "MANGA")
	files := pages.NewFileRepository(root)
	if err := files.EnsureRoot(); err != nil {
		t.Fatalf("ensure root: %v", err)
	}

	users := user.NewDBRepository(db)
	repo := manga.NewDBRepository(db)
	sessions := auth.NewSessionManager(testSecret, time.Hour, false, users)
	published := &recordingPublisher{}
	h := manga.NewHandler(repo, files, published, maxUpload)

	required := sessions.Authenticate(auth.ModeRequired)
	optional := sessions.Authenticate(auth.ModeOptional)

	r := gin.New()
	r.GET("/manga", optional, h.List)
	r.GET("/manga/:id", optional, h.Get)
	r.POST("/manga/:id/favorite", required, h.SetFavorite)
	r.POST("/manga", required, h.Create)
	r.POST("/manga/:id/upload", required, h.Upload)
	r.POST("/manga/:id", required, h.Update)
	r.DELETE("/manga/:id", required, h.Delete)
	r.DELETE("/manga/:id/:file", required, h.DeletePage)

	return &handlerEnv{
		router:    r,
		repo:      repo,
		users:     users,
		sessions:  sessions,
		root:      root,
		published: published,
	}
}

func (e *handlerEnv) login(t *testing.T, username string) *http.Cookie {
	t.Helper()
	hash, _ := utils.HashPassword("pw1")
	u, err := e.users.Create(context.Background(), username, hash)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	value, err := e.sessions.Sign(u.ID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return &http.Cookie{Name: auth.CookieName, Value: value}
}

func (e *handlerEnv) send(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *handlerEnv) do(method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return e.send(req, cookie)
}

type upload struct {
	name    string
	content string
}

func (e *handlerEnv) upload(id string, files []upload, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, _ := mw.CreateFormFile("file", f.name)
		part.Write([]byte(f.content))
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/manga/"+id+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req, cookie)
}

func (e *handlerEnv) create(t *testing.T, title string, cookie *http.Cookie) models.MangaView {
	t.Helper()
	w := e.do("POST", "/manga", gin.H{"title": title}, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("create %q: %d %s", title, w.Code, w.Body.String())
	}
	return decodeView(t, w)
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) models.MangaView {
	t.Helper()
	var v models.MangaView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v (%s)", err, w.Body.String())
	}
	return v
}

func decodeViews(t *testing.T, w *httptest.ResponseRecorder) []models.MangaView {
	t.Helper()
	var v []models.MangaView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode views: %v (%s)", err, w.Body.String())
	}
	return v
}

func (e *handlerEnv) diskFiles(t *testing.T, id string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.root, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read dir: %v", err)
	}
	names := []string{}
	for _, en := range entries {
		names = append(names, en.Name())
	}
	return names
}

func TestCreateAndGet(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")

	if w := env.do("POST", "/manga", gin.H{"title": "x"}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}
	if w := env.do("POST", "/manga", gin.H{"title": "   "}, alice); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d", w.Code)
	}

	created := env.create(t, "  Berserk  ", alice)
	if created.Title != "Berserk" || created.PageURLs == nil || len(created.PageURLs) != 0 {
		t.Fatalf("unexpected view %+v", created)
	}

	w := env.do("GET", "/manga/"+created.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "favorite") {
		t.Fatalf("anonymous view must not carry a favorite flag: %s", w.Body.String())
	}

	w = env.do("GET", "/manga/"+created.ID, nil, alice)
	view := decodeView(t, w)
	if view.Favorite == nil || *view.Favorite {
		t.Fatalf("expected favorite=false, got %v", view.Favorite)
	}

	if w := env.do("GET", "/manga/not-an-id", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
	if w := env.do("GET", "/manga/"+utils.GenerateID(), nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", w.Code)
	}
}

func TestList(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")

	m1 := env.create(t, "m1", alice)
	env.create(t, "m2", bob)
	m3 := env.create(t, "m3", alice)
	env.create(t, "m4", bob)

	titlesOf := func(views []models.MangaView) string {
		out := []string{}
		for _, v := range views {
			out = append(out, v.Title)
		}
		return strings.Join(out, ",")
	}

	tests := []struct {
		name   string
		query  string
		cookie *http.Cookie
		status int
		want   string
	}{
		{"all", "", nil, 200, "m1,m2,m3,m4"},
		{"second and third", "?limit=2&skip=1", nil, 200, "m2,m3"},
		{"limit zero is unbounded", "?limit=0&skip=2", nil, 200, "m3,m4"},
		{"created", "?created=true", alice, 200, "m1,m3"},
		{"bare created flag", "?created", bob, 200, "m2,m4"},
		{"created false lists all", "?created=false", bob, 200, "m1,m2,m3,m4"},
		{"favorite requires auth", "?favorite", nil, 401, ""},
		{"created requires auth", "?created=1", nil, 401, ""},
		{"negative limit", "?limit=-1", nil, 400, ""},
		{"bad flag", "?favorite=maybe", alice, 400, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("GET", "/manga"+tt.query, nil, tt.cookie)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status == 200 {
				if got := titlesOf(decodeViews(t, w)); got != tt.want {
					t.Fatalf("expected %s, got %s", tt.want, got)
				}
			}
		})
	}

	env.do("POST", "/manga/"+m3.ID+"/favorite", gin.H{"favorite": true}, bob)
	env.do("POST", "/manga/"+m1.ID+"/favorite", gin.H{"favorite": true}, bob)
	w := env.do("GET", "/manga?favorite", nil, bob)
	if got := titlesOf(decodeViews(t, w)); got != "m3,m1" {
		t.Fatalf("expected favorites m3,m1, got %s", got)
	}
}

func TestSetFavorite(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	m := env.create(t, "Fav", alice)

	for _, step := range []bool{true, true, false, false, true} {
		w := env.do("POST", "/manga/"+m.ID+"/favorite", gin.H{"favorite": step}, alice)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if got := strings.TrimSpace(w.Body.String()); got != map[bool]string{true: "true", false: "false"}[step] {
			t.Fatalf("expected bare %v, got %s", step, got)
		}
	}

	view := decodeView(t, env.do("GET", "/manga/"+m.ID, nil, alice))
	if view.Favorite == nil || !*view.Favorite {
		t.Fatalf("expected favorite=true in view")
	}

	if w := env.do("POST", "/manga/"+m.ID+"/favorite", gin.H{}, alice); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without favorite field, got %d", w.Code)
	}
	if w := env.do("POST", "/manga/"+utils.GenerateID()+"/favorite", gin.H{"favorite": true}, alice); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown manga, got %d", w.Code)
	}
	if w := env.do("POST", "/manga/"+m.ID+"/favorite", gin.H{"favorite": true}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}
}

func TestUpload_OrdersByOriginalName(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	m := env.create(t, "Pages", alice)

	w := env.upload(m.ID, []upload{{"b.jpg", "bbb"}, {"a.png", "aaa"}}, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if len(view.PageURLs) != 2 {
		t.Fatalf("expected 2 pages, got %v", view.PageURLs)
	}
	if !strings.HasSuffix(view.PageURLs[0], ".png") || !strings.HasSuffix(view.PageURLs[1], ".jpg") {
		t.Fatalf("expected [*.png *.jpg], got %v", view.PageURLs)
	}
	for _, p := range view.PageURLs {
		if !pages.ValidPageName(p) || len(p) < 32 {
			t.Fatalf("stored name %q must be a generated token", p)
		}
	}

	data, err := os.ReadFile(filepath.Join(env.root, m.ID, view.PageURLs[0]))
	if err != nil || string(data) != "aaa" {
		t.Fatalf("a.png content mismatch: %q %v", data, err)
	}

	w = env.upload(m.ID, []upload{{"C.GIF", "ccc"}}, alice)
	view = decodeView(t, w)
	if len(view.PageURLs) != 3 || !strings.HasSuffix(view.PageURLs[2], ".gif") {
		t.Fatalf("expected appended gif, got %v", view.PageURLs)
	}

	stored, _ := env.repo.FindByID(context.Background(), m.ID)
	if len(stored.PageURLs) != 3 {
		t.Fatalf("pages not persisted: %v", stored.PageURLs)
	}
}

func TestUpload_OrdersMixedCaseNames(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	m := env.create(t, "Mixed", alice)

	w := env.upload(m.ID, []upload{{"B.png", "B"}, {"c.png", "c"}, {"a.png", "a"}, {"A.png", "A"}}, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)

	var got []string
	for _, p := range view.PageURLs {
		data, err := os.ReadFile(filepath.Join(env.root, m.ID, p))
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		got = append(got, string(data))
	}
	want := []string{"a", "A", "B", "c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected page order %v, got %v", want, got)
	}
}

func TestUpload_RejectsBadExtension(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	m := env.create(t, "Pages", alice)

	w := env.upload(m.ID, []upload{{"a.png", "aaa"}, {"evil.exe", "MZ"}}, alice)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	stored, _ := env.repo.FindByID(context.Background(), m.ID)
	if len(stored.PageURLs) != 0 {
		t.Fatalf("pageURLs must be unchanged, got %v", stored.PageURLs)
	}
	if files := env.diskFiles(t, m.ID); len(files) != 0 {
		t.Fatalf("files of the failed request left on disk: %v", files)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	env := setupHandler(t, 512)
	alice := env.login(t, "alice")
	m := env.create(t, "Pages", alice)

	w := env.upload(m.ID, []upload{{"a.png", strings.Repeat("x", 4096)}}, alice)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	if files := env.diskFiles(t, m.ID); len(files) != 0 {
		t.Fatalf("partial upload left on disk: %v", files)
	}
}

func TestUpload_Errors(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")
	m := env.create(t, "Pages", alice)

	if w := env.upload(m.ID, []upload{{"a.png", "a"}}, bob); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", w.Code)
	}
	if w := env.upload(utils.GenerateID(), []upload{{"a.png", "a"}}, alice); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown manga, got %d", w.Code)
	}
	if w := env.upload(m.ID, nil, alice); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty upload, got %d", w.Code)
	}
	if w := env.do("POST", "/manga/"+m.ID+"/upload", gin.H{}, alice); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", w.Code)
	}
}

func TestUpdate(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")
	m := env.create(t, "Old", alice)
	view := decodeView(t, env.upload(m.ID, []upload{{"a.png", "a"}, {"b.png", "b"}, {"c.png", "c"}}, alice))
	p := view.PageURLs

	w := env.do("POST", "/manga/"+m.ID, gin.H{"title": " New ", "pageURLs": []string{p[2], p[0], p[1]}}, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decodeView(t, w)
	if got.Title != "New" || strings.Join(got.PageURLs, ",") != strings.Join([]string{p[2], p[0], p[1]}, ",") {
		t.Fatalf("unexpected view %+v", got)
	}

	before, _ := env.repo.FindByID(context.Background(), m.ID)

	mismatches := [][]string{
		{p[0], p[1], "other.png"},
		{p[0], p[1]},
		{p[0], p[1], p[2], p[2]},
		{p[0], p[0], p[1]},
	}
	for _, urls := range mismatches {
		w := env.do("POST", "/manga/"+m.ID, gin.H{"pageURLs": urls}, alice)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 for %v, got %d", urls, w.Code)
		}
	}
	after, _ := env.repo.FindByID(context.Background(), m.ID)
	if strings.Join(after.PageURLs, ",") != strings.Join(before.PageURLs, ",") {
		t.Fatalf("stored list changed: %v -> %v", before.PageURLs, after.PageURLs)
	}

	w = env.do("POST", "/manga/"+m.ID, gin.H{}, alice)
	if w.Code != http.StatusOK || !decodeView(t, w).UpdatedAt.Equal(after.UpdatedAt) {
		t.Fatalf("empty update must not save")
	}

	if w := env.do("POST", "/manga/"+m.ID, gin.H{"title": "  "}, alice); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d", w.Code)
	}
	if w := env.do("POST", "/manga/"+m.ID, gin.H{"title": "Mine"}, bob); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", w.Code)
	}
}

func TestDelete(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")
	m := env.create(t, "Doomed", alice)
	env.upload(m.ID, []upload{{"a.png", "a"}}, alice)
	env.do("POST", "/manga/"+m.ID+"/favorite", gin.H{"favorite": true}, bob)

	if w := env.do("DELETE", "/manga/"+m.ID, nil, bob); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", w.Code)
	}

	w := env.do("DELETE", "/manga/"+m.ID, nil, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if deleted := decodeView(t, w); deleted.ID != m.ID || len(deleted.PageURLs) != 1 {
		t.Fatalf("expected view of the deleted record, got %+v", deleted)
	}

	if w := env.do("GET", "/manga/"+m.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
	if _, err := os.Stat(filepath.Join(env.root, m.ID)); !os.IsNotExist(err) {
		t.Fatalf("page directory still exists: %v", err)
	}
	if views := decodeViews(t, env.do("GET", "/manga?favorite", nil, bob)); len(views) != 0 {
		t.Fatalf("deleted manga still in favorites: %+v", views)
	}
}

func TestDeletePage(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")
	m := env.create(t, "Pages", alice)
	view := decodeView(t, env.upload(m.ID, []upload{{"a.png", "a"}, {"b.png", "b"}}, alice))
	first, second := view.PageURLs[0], view.PageURLs[1]

	if w := env.do("DELETE", "/manga/"+m.ID+"/bad_name.png", nil, alice); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed name, got %d", w.Code)
	}
	if w := env.do("DELETE", "/manga/"+m.ID+"/"+first, nil, bob); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", w.Code)
	}
	if w := env.do("DELETE", "/manga/"+m.ID+"/missing.png", nil, alice); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown page, got %d", w.Code)
	}

	w := env.do("DELETE", "/manga/"+m.ID+"/"+first, nil, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeView(t, w).PageURLs; len(got) != 1 || got[0] != second {
		t.Fatalf("expected [%s], got %v", second, got)
	}
	if files := env.diskFiles(t, m.ID); len(files) != 1 || files[0] != second {
		t.Fatalf("unexpected files on disk: %v", files)
	}

	os.Remove(filepath.Join(env.root, m.ID, second))
	if w := env.do("DELETE", "/manga/"+m.ID+"/"+second, nil, alice); w.Code != http.StatusOK {
		t.Fatalf("missing backing file must not fail the delete, got %d", w.Code)
	}
}

func TestEventsPublished(t *testing.T) {
	env := setupHandler(t, 1<<20)
	alice := env.login(t, "alice")
	m := env.create(t, "Events", alice)
	view := decodeView(t, env.upload(m.ID, []upload{{"a.png", "a"}}, alice))
	env.do("POST", "/manga/"+m.ID, gin.H{"title": "Renamed"}, alice)
	env.do("POST", "/manga/"+m.ID+"/favorite", gin.H{"favorite": true}, alice)
	env.do("DELETE", "/manga/"+m.ID+"/"+view.PageURLs[0], nil, alice)
	env.do("DELETE", "/manga/"+m.ID, nil, alice)

	want := []events.EventType{
		events.MangaCreated,
		events.MangaPagesUploaded,
		events.MangaUpdated,
		events.FavoriteChanged,
		events.MangaPageDeleted,
		events.MangaDeleted,
	}
	got := env.published.types()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
