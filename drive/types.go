package drive

import "time"

const (
	folderMimeType  = "application/vnd.google-apps.folder"
	archiveMimeType = "application/zip"
)

// RemoteFolder is the named container holding backups.
type RemoteFolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ObjectRef is a listed backup. It is immutable once listed.
type ObjectRef struct {
	ID        string
	Name      string
	SizeBytes int64     // 0 when the store did not report a size
	CreatedAt time.Time // zero when the store did not report it
}

type fileList struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		MimeType    string    `json:"mimeType"`
		Size        string    `json:"size"`
		CreatedTime time.Time `json:"createdTime"`
	} `json:"files"`
}

type fileMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}
