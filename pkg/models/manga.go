package models

import "time"

type Manga struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	OwnerID   string    `json:"owner" db:"owner_id"`
	PageURLs  []string  `json:"pageURLs" db:"page_urls"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// MangaView is the public projection of a Manga. Favorite is only set for
// authenticated single-manga reads.
type MangaView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Owner     string    `json:"owner"`
	PageURLs  []string  `json:"pageURLs"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Favorite  *bool     `json:"favorite,omitempty"`
}

func NewMangaView(m *Manga) MangaView {
	pages := make([]string, len(m.PageURLs))
	copy(pages, m.PageURLs)
	return MangaView{
		ID:        m.ID,
		Title:     m.Title,
		Owner:     m.OwnerID,
		PageURLs:  pages,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func NewMangaViews(list []*Manga) []MangaView {
	views := make([]MangaView, 0, len(list))
	for _, m := range list {
		views = append(views, NewMangaView(m))
	}
	return views
}

func (v MangaView) WithFavorite(favorite bool) MangaView {
	v.Favorite = &favorite
	return v
}

type Favorite struct {
	UserID    string    `json:"userId" db:"user_id"`
	MangaID   string    `json:"mangaId" db:"manga_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ListMangaQuery carries pagination for GET /manga. The favorite and
// created flags are read separately since a bare "?favorite" means true.
type ListMangaQuery struct {
	Limit int `form:"limit" binding:"min=0"`
	Skip  int `form:"skip" binding:"min=0"`
}

type CreateMangaRequest struct {
	Title string `json:"title" binding:"required"`
}

// UpdateMangaRequest distinguishes absent fields (nil) from empty ones.
type UpdateMangaRequest struct {
	Title    *string   `json:"title"`
	PageURLs *[]string `json:"pageURLs"`
}

type FavoriteRequest struct {
	Favorite *bool `json:"favorite" binding:"required"`
}
