package model

import "time"

// Document is the metadata record for one uploaded file: the join key between
// the workspace-assigned document identifier and the locally cached bytes.
// Workspace identifiers are backfilled lazily once the upload is embedded.
type Document struct {
	ID           string     `json:"id"`
	OriginalName string     `json:"original_name"`
	StoredName   string     `json:"stored_name"`
	DocFilename  string     `json:"doc_filename,omitempty"`
	DocPath      string     `json:"doc_path,omitempty"`
	DocID        string     `json:"doc_id,omitempty"`
	MetadataID   string     `json:"metadata_id,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	SavedAt      time.Time  `json:"saved_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}
