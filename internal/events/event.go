package events

import "time"

type EventType string

const (
	Connected          EventType = "connected"
	MangaCreated       EventType = "manga.created"
	MangaUpdated       EventType = "manga.updated"
	MangaDeleted       EventType = "manga.deleted"
	MangaPagesUploaded EventType = "manga.pages_uploaded"
	MangaPageDeleted   EventType = "manga.page_deleted"
	FavoriteChanged    EventType = "favorite.changed"
)

// Event is the message pushed to every connected websocket client.
type Event struct {
	Type    EventType              `json:"type"`
	MangaID string                 `json:"mangaId"`
	UserID  string                 `json:"userId,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	At      time.Time              `json:"at"`
}

func NewEvent(t EventType, mangaID, userID string, data map[string]interface{}) Event {
	return Event{
		Type:    t,
		MangaID: mangaID,
		UserID:  userID,
		Data:    data,
		At:      time.Now().UTC(),
	}
}

// Publisher is implemented by anything that accepts change events.
type Publisher interface {
	Publish(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
