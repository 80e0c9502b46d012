package models

import "time"

// Folder groups files. Folders are managed elsewhere; this module only
// checks ownership and moves files between them.
type Folder struct {
	ID        int64
	OwnerID   int64
	ParentID  *int64
	Name      string
	CreatedAt time.Time
}
