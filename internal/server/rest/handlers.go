package rest

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/logging"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/dmitrijs2005/vaultbox/internal/server/services"
	"github.com/gin-gonic/gin"
)

// FileService is what the handlers need from services.FileService.
type FileService interface {
	MaxFiles() int
	Stage(ctx context.Context, name, mimeType string, r io.Reader) (services.StagedFile, error)
	Discard(ctx context.Context, files []services.StagedFile)
	Upload(ctx context.Context, user models.User, files []services.StagedFile, folderID *int64) ([]services.UploadedFile, error)
	List(ctx context.Context, ownerID int64, filter models.FileFilter) ([]*models.File, error)
	Stats(ctx context.Context, ownerID int64) (*models.FileStats, error)
	IssueMediaToken(ctx context.Context, user models.User, fileID int64) (*services.MediaToken, error)
	OpenDecrypted(ctx context.Context, ownerID, fileID int64) (*models.File, io.ReadCloser, error)
	OpenThumbnail(ctx context.Context, ownerID, fileID int64) (*services.Thumbnail, error)
	RecordDownload(ctx context.Context, user models.User, rec *models.File)
	Rename(ctx context.Context, user models.User, fileID int64, newName string) error
	Move(ctx context.Context, user models.User, fileIDs []int64, target *int64) (int, error)
	Copy(ctx context.Context, user models.User, fileIDs []int64, target *int64) ([]*models.File, error)
	Delete(ctx context.Context, user models.User, fileID int64) error
}

type FileHandler struct {
	files  FileService
	logger logging.Logger
}

func NewFileHandler(files FileService, l logging.Logger) *FileHandler {
	return &FileHandler{files: files, logger: l}
}

// fileView is the listing shape the web client expects.
type fileView struct {
	ID            int64           `json:"id"`
	OriginalName  string          `json:"original_name"`
	MimeType      string          `json:"mime_type"`
	FileSize      int64           `json:"file_size"`
	Category      models.Category `json:"category"`
	FolderID      *int64          `json:"folder_id"`
	ThumbnailPath *string         `json:"thumbnail_path"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toView(f *models.File) fileView {
	return fileView{
		ID:            f.ID,
		OriginalName:  f.DisplayName,
		MimeType:      f.MimeType,
		FileSize:      f.SizeBytes,
		Category:      f.Category,
		FolderID:      f.FolderID,
		ThumbnailPath: f.ThumbnailPath,
		CreatedAt:     f.CreatedAt,
	}
}

func toViews(files []*models.File) []fileView {
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		out = append(out, toView(f))
	}
	return out
}

// parseFolderRef reads a folder reference. "" is absent; "root" and "null"
// mean the root; anything else must be a positive id.
func parseFolderRef(raw string) (id *int64, root bool, err error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return nil, false, nil
	case "root", "null":
		return nil, true, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return nil, false, NewBadRequestError("Invalid folder id")
	}
	return &v, false, nil
}

// List handles GET /files.
func (h *FileHandler) List(c *gin.Context) {
	user := currentUser(c)

	filter := models.FileFilter{
		Category: models.Category(c.Query("category")),
		Search:   c.Query("search"),
	}
	if raw, ok := c.GetQuery("folderId"); ok {
		id, root, err := parseFolderRef(raw)
		if err != nil {
			abortWithError(c, FromServiceError(err, ""))
			return
		}
		filter.FolderID = id
		filter.RootOnly = root || id == nil
	}

	files, err := h.files.List(c.Request.Context(), user.ID, filter)
	if err != nil {
		h.logger.Error(c.Request.Context(), "list files failed", "user_id", user.ID, "error", err)
		abortWithError(c, FromServiceError(err, "Failed to retrieve files"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": toViews(files)})
}

// Stats handles GET /files/stats.
func (h *FileHandler) Stats(c *gin.Context) {
	user := currentUser(c)
	st, err := h.files.Stats(c.Request.Context(), user.ID)
	if err != nil {
		abortWithError(c, FromServiceError(err, "Failed to retrieve statistics"))
		return
	}
	c.JSON(http.StatusOK, st)
}

// MediaToken handles GET /files/token/:id.
func (h *FileHandler) MediaToken(c *gin.Context) {
	user := currentUser(c)
	id, ok := fileIDParam(c)
	if !ok {
		return
	}
	tok, err := h.files.IssueMediaToken(c.Request.Context(), user, id)
	if err != nil {
		abortWithError(c, FromServiceError(err, "Failed to issue token"))
		return
	}
	c.JSON(http.StatusOK, tok)
}

// View handles GET /files/view/:id.
func (h *FileHandler) View(c *gin.Context) {
	h.sendDecrypted(c, "inline", false)
}

// Stream handles GET /files/stream/:id.
func (h *FileHandler) Stream(c *gin.Context) {
	h.sendDecrypted(c, "inline", false)
}

// Download handles GET /files/download/:id.
func (h *FileHandler) Download(c *gin.Context) {
	h.sendDecrypted(c, "attachment", true)
}

// firstChunkSize is how much plaintext is decrypted before the status line
// goes out. Files that fit in it never fail after the headers.
const firstChunkSize = 64 * 1024

// sendDecrypted streams a file's plaintext. Every failure the service can
// detect up front, or that shows up in the first chunk, becomes a JSON
// error; after the headers are out, a failure can only abort the
// connection. Range requests get the whole file.
func (h *FileHandler) sendDecrypted(c *gin.Context, disposition string, audit bool) {
	user := currentUser(c)
	id, ok := fileIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	rec, body, err := h.files.OpenDecrypted(ctx, user.ID, id)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			h.logger.Error(ctx, "stream pre-flight failed", "file_id", id, "error", err)
		}
		abortWithError(c, streamError(err))
		return
	}
	defer body.Close()

	first := make([]byte, firstChunkSize)
	n, err := io.ReadFull(body, first)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, context.Canceled) {
			h.logger.Info(ctx, "client went away before the first byte", "file_id", id)
			return
		}
		h.logger.Error(ctx, "stream failed before headers", "file_id", id, "error", err)
		abortWithError(c, NewInternalServerError("Stream failed"))
		return
	}

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", rec.MimeType)
	hdr.Set("Content-Disposition", contentDisposition(disposition, rec.DisplayName))
	hdr.Set("Accept-Ranges", "none")
	hdr.Set("Cache-Control", "private, no-store")
	hdr.Set("X-Content-Type-Options", "nosniff")
	c.Status(http.StatusOK)

	if audit {
		h.files.RecordDownload(ctx, user, rec)
	}

	if _, err := c.Writer.Write(first[:n]); err != nil {
		h.logger.Info(ctx, "client went away mid-stream", "file_id", id, "error", err)
		return
	}
	if n < firstChunkSize {
		return
	}

	if _, err := io.Copy(c.Writer, body); err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Info(ctx, "client went away mid-stream", "file_id", id)
			return
		}
		h.logger.Error(ctx, "stream failed", "file_id", id, "error", err)
		panic(http.ErrAbortHandler)
	}
}

func streamError(err error) *APIError {
	if errors.Is(err, common.ErrNotFound) {
		return NewNotFoundError("File not found")
	}
	return NewInternalServerError("Stream failed")
}

// contentDisposition renders an RFC 6266 header. Non-ASCII names are sent
// in the RFC 2231 filename* form.
func contentDisposition(disposition, name string) string {
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": name}); v != "" {
		return v
	}
	return disposition
}

// Thumbnail handles GET /files/thumbnail/:id.
func (h *FileHandler) Thumbnail(c *gin.Context) {
	user := currentUser(c)
	id, ok := fileIDParam(c)
	if !ok {
		return
	}
	th, err := h.files.OpenThumbnail(c.Request.Context(), user.ID, id)
	if err != nil {
		abortWithError(c, FromServiceError(err, "Failed to load thumbnail"))
		return
	}
	defer th.Body.Close()

	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, -1, th.ContentType, th.Body, nil)
}

type renameRequest struct {
	NewName string `json:"newName"`
}

// Rename handles PATCH /files/:id.
func (h *FileHandler) Rename(c *gin.Context) {
	user := currentUser(c)
	id, ok := fileIDParam(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewBadRequestError("Invalid request body"))
		return
	}
	if err := h.files.Rename(c.Request.Context(), user, id, req.NewName); err != nil {
		abortWithError(c, FromServiceError(err, "Rename failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File renamed successfully"})
}

// Delete handles DELETE /files/:id.
func (h *FileHandler) Delete(c *gin.Context) {
	user := currentUser(c)
	id, ok := fileIDParam(c)
	if !ok {
		return
	}
	if err := h.files.Delete(c.Request.Context(), user, id); err != nil {
		h.logger.Error(c.Request.Context(), "delete failed", "file_id", id, "error", err)
		abortWithError(c, FromServiceError(err, "Delete failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully"})
}

type batchRequest struct {
	FileIDs        []int64 `json:"fileIds"`
	TargetFolderID *int64  `json:"targetFolderId"`
}

func bindBatch(c *gin.Context) (batchRequest, bool) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewBadRequestError("Invalid request body"))
		return req, false
	}
	return req, true
}

// Move handles PUT /files/move.
func (h *FileHandler) Move(c *gin.Context) {
	user := currentUser(c)
	req, ok := bindBatch(c)
	if !ok {
		return
	}
	moved, err := h.files.Move(c.Request.Context(), user, req.FileIDs, req.TargetFolderID)
	if err != nil {
		abortWithError(c, FromServiceError(err, "Move failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Files moved successfully", "moved": moved})
}

// Copy handles POST /files/copy.
func (h *FileHandler) Copy(c *gin.Context) {
	user := currentUser(c)
	req, ok := bindBatch(c)
	if !ok {
		return
	}
	copies, err := h.files.Copy(c.Request.Context(), user, req.FileIDs, req.TargetFolderID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "copy failed", "user_id", user.ID, "error", err)
		abortWithError(c, FromServiceError(err, "Copy failed"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Files copied successfully", "files": toViews(copies)})
}
