package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	uploadField = "files"
	folderField = "folderId"
	maxFieldLen = 64
)

// Upload handles POST /files/upload. Parts are read straight off the wire:
// each file part is spooled to staging as it arrives, so the request body is
// never buffered in memory, and folderId may come before or after the files.
func (h *FileHandler) Upload(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	mr, err := c.Request.MultipartReader()
	if err != nil {
		abortWithError(c, NewBadRequestError("Expected a multipart/form-data body"))
		return
	}

	var staged []services.StagedFile
	handedOff := false
	defer func() {
		if !handedOff {
			h.files.Discard(ctx, staged)
		}
	}()

	var folderRaw string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			abortWithError(c, NewBadRequestError("Malformed multipart body"))
			return
		}

		switch part.FormName() {
		case uploadField:
			if part.FileName() == "" {
				_ = part.Close()
				continue
			}
			if len(staged) >= h.files.MaxFiles() {
				_ = part.Close()
				abortWithError(c, FromServiceError(
					fmt.Errorf("%w: at most %d files per upload", common.ErrTooManyFiles, h.files.MaxFiles()), ""))
				return
			}
			sf, err := h.files.Stage(ctx, part.FileName(), part.Header.Get("Content-Type"), part)
			_ = part.Close()
			if err != nil {
				h.logger.Warn(ctx, "staging upload failed", "user_id", user.ID, "file", part.FileName(), "error", err)
				abortWithError(c, FromServiceError(err, "Upload failed"))
				return
			}
			staged = append(staged, sf)
		case folderField:
			b, err := io.ReadAll(io.LimitReader(part, maxFieldLen))
			_ = part.Close()
			if err != nil {
				abortWithError(c, NewBadRequestError("Malformed multipart body"))
				return
			}
			folderRaw = strings.TrimSpace(string(b))
		default:
			_ = part.Close()
		}
	}

	if len(staged) == 0 {
		abortWithError(c, NewBadRequestError("No files uploaded"))
		return
	}
	// Like a foreign folder, an unparsable one means root.
	folderID, _, err := parseFolderRef(folderRaw)
	if err != nil {
		h.logger.Info(ctx, "upload folder id ignored", "folder_id", folderRaw)
		folderID = nil
	}

	handedOff = true
	uploaded, err := h.files.Upload(ctx, user, staged, folderID)
	if err != nil {
		abortWithError(c, FromServiceError(err, "Upload failed"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Files uploaded successfully",
		"files":   uploaded,
	})
}
