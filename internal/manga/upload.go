package manga

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/binhbb2204/mangashelf/internal/events"
	"github.com/binhbb2204/mangashelf/internal/pages"
	"github.com/binhbb2204/mangashelf/pkg/apperror"
	"github.com/binhbb2204/mangashelf/pkg/metrics"
	"github.com/binhbb2204/mangashelf/pkg/models"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const uploadField = "file"

type storedPage struct {
	original string
	name     string
	size     int64
}

// Upload streams every multipart part named "file" to disk and appends the
// stored names to the manga, ordered by the uploaded file names. A failed
// request removes whatever it already wrote and leaves pageURLs untouched.
func (h *Handler) Upload(c *gin.Context) {
	m, ok := h.ownedManga(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	reader, err := c.Request.MultipartReader()
	if err != nil {
		apperror.Respond(c, apperror.Validation("Expected a multipart/form-data body"))
		return
	}

	if err := h.files.EnsureDirectory(m.ID); err != nil {
		apperror.Respond(c, apperror.IO("Failed to prepare page directory", err))
		return
	}

	var written []storedPage
	fail := func(reason string, err *apperror.Error) {
		for _, p := range written {
			if rmErr := h.files.DeleteFile(m.ID, p.name); rmErr != nil {
				h.log.Warn("upload_cleanup_failed", "manga_id", m.ID, "page", p.name, "error", rmErr.Error())
			}
		}
		metrics.RecordUploadFailure(reason)
		apperror.Respond(c, err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			fail(streamFailure(err))
			return
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}

		original := part.FileName()
		ext, ok := pages.ValidExtension(original)
		if !ok {
			part.Close()
			fail("extension", apperror.Unprocessable(fmt.Sprintf("Unsupported file type: %q", original)))
			return
		}

		name := pages.NewPageName(ext)
		n, err := h.files.WriteFile(m.ID, name, part)
		part.Close()
		if err != nil {
			fail(streamFailure(err))
			return
		}
		written = append(written, storedPage{original: original, name: name, size: n})
	}

	if len(written) == 0 {
		apperror.Respond(c, apperror.Validation("No files uploaded"))
		return
	}

	sortByOriginalName(written)

	before := m.PageURLs
	pagesAfter := append([]string{}, m.PageURLs...)
	for _, p := range written {
		pagesAfter = append(pagesAfter, p.name)
	}
	m.PageURLs = pagesAfter

	if err := h.repo.Save(c.Request.Context(), m); err != nil {
		m.PageURLs = before
		fail("save", apperror.Internal("Failed to save manga", err))
		return
	}

	names := make([]string, 0, len(written))
	for _, p := range written {
		metrics.RecordPageUploaded(p.size)
		names = append(names, p.name)
	}

	h.log.Info("pages_uploaded", "manga_id", m.ID, "count", len(written))
	h.events.Publish(events.NewEvent(events.MangaPagesUploaded, m.ID, m.OwnerID, map[string]interface{}{"pages": names}))
	c.JSON(http.StatusOK, models.NewMangaView(m))
}

// streamFailure classifies an error raised while reading or writing a part.
func streamFailure(err error) (string, *apperror.Error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return "too_large", apperror.IO(fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit), err)
	}
	return "io", apperror.IO("Failed to store uploaded file", err)
}

// sortByOriginalName orders pages with the root collation, so "a.png" sorts
// before "B.png". Names that collate equal keep byte order.
func sortByOriginalName(written []storedPage) {
	col := collate.New(language.Und)
	sort.SliceStable(written, func(i, j int) bool {
		if c := col.CompareString(written[i].original, written[j].original); c != 0 {
			return c < 0
		}
		return written[i].original < written[j].original
	})
}
