package manga

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/binhbb2204/mangashelf/internal/auth"
	"github.com/binhbb2204/mangashelf/internal/events"
	"github.com/binhbb2204/mangashelf/internal/pages"
	"github.com/binhbb2204/mangashelf/pkg/apperror"
	"github.com/binhbb2204/mangashelf/pkg/logger"
	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/binhbb2204/mangashelf/pkg/utils"
	"github.com/gin-gonic/gin"
)

// PageStore is the on-disk page storage used by the handlers.
type PageStore interface {
	EnsureDirectory(mangaID string) error
	WriteFile(mangaID, name string, src io.Reader) (int64, error)
	DeleteFile(mangaID, name string) error
	DeleteDirectory(mangaID string) error
}

type Handler struct {
	repo      Repository
	files     PageStore
	events    events.Publisher
	maxUpload int64
	log       *logger.Logger
}

func NewHandler(repo Repository, files PageStore, publisher events.Publisher, maxUpload int64) *Handler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Handler{
		repo:      repo,
		files:     files,
		events:    publisher,
		maxUpload: maxUpload,
		log:       logger.GetLogger().WithContext("component", "manga"),
	}
}

// List serves GET /manga. favorite takes precedence over created.
func (h *Handler) List(c *gin.Context) {
	var q models.ListMangaQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		apperror.Respond(c, apperror.Validation(err.Error()))
		return
	}
	favorite, err := queryFlag(c, "favorite")
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	created, err := queryFlag(c, "created")
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	ctx := c.Request.Context()
	u := auth.CurrentUser(c)
	if (favorite || created) && u == nil {
		apperror.Respond(c, apperror.Unauthorized("Missing authentication"))
		return
	}

	var list []*models.Manga
	switch {
	case favorite:
		list, err = h.repo.ListFavorites(ctx, u.ID, q.Limit, q.Skip)
	case created:
		list, err = h.repo.List(ctx, Filter{OwnerID: u.ID}, q.Limit, q.Skip)
	default:
		list, err = h.repo.List(ctx, Filter{}, q.Limit, q.Skip)
	}
	if err != nil {
		apperror.Respond(c, apperror.Internal("Failed to list manga", err))
		return
	}

	c.JSON(http.StatusOK, models.NewMangaViews(list))
}

func (h *Handler) Get(c *gin.Context) {
	m, ok := h.findManga(c)
	if !ok {
		return
	}

	view := models.NewMangaView(m)
	if u := auth.CurrentUser(c); u != nil {
		fav, err := h.repo.IsFavorite(c.Request.Context(), u.ID, m.ID)
		if err != nil {
			apperror.Respond(c, apperror.Internal("Failed to load favorite", err))
			return
		}
		view = view.WithFavorite(fav)
	}
	c.JSON(http.StatusOK, view)
}

// SetFavorite answers with the resulting favorite state as a bare boolean.
func (h *Handler) SetFavorite(c *gin.Context) {
	var req models.FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, apperror.Validation(err.Error()))
		return
	}
	m, ok := h.findManga(c)
	if !ok {
		return
	}
	u := auth.CurrentUser(c)

	if err := h.repo.SetFavorite(c.Request.Context(), u.ID, m.ID, *req.Favorite); err != nil {
		apperror.Respond(c, apperror.Internal("Failed to update favorite", err))
		return
	}

	h.events.Publish(events.NewEvent(events.FavoriteChanged, m.ID, u.ID, map[string]interface{}{"favorite": *req.Favorite}))
	c.JSON(http.StatusOK, *req.Favorite)
}

func (h *Handler) Create(c *gin.Context) {
	var req models.CreateMangaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, apperror.Validation(err.Error()))
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		apperror.Respond(c, apperror.Validation("title must not be empty"))
		return
	}
	u := auth.CurrentUser(c)

	m, err := h.repo.Create(c.Request.Context(), title, u.ID)
	if err != nil {
		apperror.Respond(c, apperror.Internal("Failed to create manga", err))
		return
	}

	h.log.Info("manga_created", "manga_id", m.ID, "owner_id", u.ID)
	h.events.Publish(events.NewEvent(events.MangaCreated, m.ID, u.ID, map[string]interface{}{"title": m.Title}))
	c.JSON(http.StatusOK, models.NewMangaView(m))
}

// Update changes the title and/or reorders pages. pageURLs may only be a
// permutation of the stored list.
func (h *Handler) Update(c *gin.Context) {
	var req models.UpdateMangaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Respond(c, apperror.Validation(err.Error()))
		return
	}
	m, ok := h.ownedManga(c)
	if !ok {
		return
	}

	changed := false
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			apperror.Respond(c, apperror.Validation("title must not be empty"))
			return
		}
		if title != m.Title {
			m.Title = title
			changed = true
		}
	}
	if req.PageURLs != nil {
		order := *req.PageURLs
		if !sameElements(order, m.PageURLs) {
			apperror.Respond(c, apperror.Unprocessable("pageURLs contents do not match"))
			return
		}
		if !sameOrder(order, m.PageURLs) {
			m.PageURLs = append([]string{}, order...)
			changed = true
		}
	}

	if changed {
		if err := h.repo.Save(c.Request.Context(), m); err != nil {
			apperror.Respond(c, apperror.Internal("Failed to save manga", err))
			return
		}
		h.events.Publish(events.NewEvent(events.MangaUpdated, m.ID, m.OwnerID, nil))
	}
	c.JSON(http.StatusOK, models.NewMangaView(m))
}

// Delete removes the record, its favorites and its page directory, and
// returns the view of what was deleted.
func (h *Handler) Delete(c *gin.Context) {
	m, ok := h.ownedManga(c)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), m); err != nil {
		if errors.Is(err, ErrNotFound) {
			apperror.Respond(c, apperror.NotFound("Manga not found"))
			return
		}
		apperror.Respond(c, apperror.Internal("Failed to delete manga", err))
		return
	}
	if err := h.files.DeleteDirectory(m.ID); err != nil {
		apperror.Respond(c, apperror.IO("Failed to delete manga pages", err))
		return
	}

	h.log.Info("manga_deleted", "manga_id", m.ID, "owner_id", m.OwnerID)
	h.events.Publish(events.NewEvent(events.MangaDeleted, m.ID, m.OwnerID, nil))
	c.JSON(http.StatusOK, models.NewMangaView(m))
}

func (h *Handler) DeletePage(c *gin.Context) {
	file := c.Param("file")
	if !pages.ValidPageName(file) {
		apperror.Respond(c, apperror.Validation("Invalid page name"))
		return
	}
	m, ok := h.ownedManga(c)
	if !ok {
		return
	}

	idx := indexOf(m.PageURLs, file)
	if idx < 0 {
		apperror.Respond(c, apperror.NotFound("Page not found"))
		return
	}
	m.PageURLs = append(m.PageURLs[:idx:idx], m.PageURLs[idx+1:]...)

	if err := h.repo.Save(c.Request.Context(), m); err != nil {
		apperror.Respond(c, apperror.Internal("Failed to save manga", err))
		return
	}
	if err := h.files.DeleteFile(m.ID, file); err != nil {
		apperror.Respond(c, apperror.IO("Failed to delete page", err))
		return
	}

	h.events.Publish(events.NewEvent(events.MangaPageDeleted, m.ID, m.OwnerID, map[string]interface{}{"page": file}))
	c.JSON(http.StatusOK, models.NewMangaView(m))
}

// findManga loads the manga named by :id, responding on failure.
func (h *Handler) findManga(c *gin.Context) (*models.Manga, bool) {
	id := c.Param("id")
	if !utils.IsValidID(id) {
		apperror.Respond(c, apperror.Validation("Invalid manga id"))
		return nil, false
	}
	m, err := h.repo.FindByID(c.Request.Context(), strings.ToLower(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apperror.Respond(c, apperror.NotFound("Manga not found"))
			return nil, false
		}
		apperror.Respond(c, apperror.Internal("Failed to load manga", err))
		return nil, false
	}
	return m, true
}

// ownedManga is findManga plus the ownership check against the session user.
func (h *Handler) ownedManga(c *gin.Context) (*models.Manga, bool) {
	m, ok := h.findManga(c)
	if !ok {
		return nil, false
	}
	u := auth.CurrentUser(c)
	if u == nil {
		apperror.Respond(c, apperror.Unauthorized("Missing authentication"))
		return nil, false
	}
	if m.OwnerID != u.ID {
		apperror.Respond(c, apperror.Forbidden("You do not own this manga"))
		return nil, false
	}
	return m, true
}

// queryFlag reads a boolean query parameter where a bare "?name" means true.
func queryFlag(c *gin.Context, name string) (bool, error) {
	v, ok := c.GetQuery(name)
	if !ok {
		return false, nil
	}
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperror.Validation(name + " must be a boolean")
	}
	return b, nil
}

// sameElements compares a and b as multisets.
func sameElements(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, s := range a {
		counts[s]++
	}
	for _, s := range b {
		counts[s]--
		if counts[s] < 0 {
			return false
		}
	}
	return true
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
