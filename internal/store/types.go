package store

import (
	"encoding/json"
	"time"
)

// ProjectRecord is a persisted project. Document is the project's JSON
// document as produced by document.Save.
type ProjectRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Document  json.RawMessage `json:"document,omitempty"`
	Diagrams  int             `json:"diagrams"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProjectFilter narrows ListProjects. List results carry no Document.
type ProjectFilter struct {
	NamePrefix string
	Limit      int
	Offset     int
}

// Generation is one generated source file kept for a project.
type Generation struct {
	ID        int64     `json:"id"`
	ProjectID string    `json:"project_id"`
	Target    string    `json:"target"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
