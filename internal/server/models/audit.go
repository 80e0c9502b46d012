package models

import "time"

const (
	ActionUploadFiles = "UPLOAD_FILES"
	ActionRenameFile  = "RENAME_FILE"
	ActionMoveFiles   = "MOVE_FILES"
	ActionCopyFiles   = "COPY_FILES"
	ActionDeleteFile  = "DELETE_FILE"
	ActionDownload    = "DOWNLOAD_FILE"
)

type AuditEntry struct {
	ID        int64
	UserID    int64
	Action    string
	Details   map[string]any
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}
