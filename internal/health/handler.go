package health

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

type Handler struct {
	db       *sql.DB
	mangaDir string
}

func NewHandler(db *sql.DB, mangaDir string) *Handler {
	return &Handler{db: db, mangaDir: mangaDir}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *Handler) Readyz(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "database_not_initialized"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "database_ping_failed"})
		return
	}

	info, err := os.Stat(h.mangaDir)
	if err != nil || !info.IsDir() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "manga_dir_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
