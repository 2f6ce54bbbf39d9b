package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EmailTemplate is an operator-managed, immutable-at-send-time message template.
// Resolution only ever sees active templates; deactivating a template hides it
// from dispatch without touching historical delivery logs.
type EmailTemplate struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Key         string    `json:"key" db:"key"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`

	Subject     string `json:"subject" db:"subject"`
	HTMLContent string `json:"html_content" db:"html_content"`
	TextContent string `json:"text_content" db:"text_content"`

	Category string `json:"category" db:"category"`
	Language string `json:"language" db:"language"`
	Active   bool   `json:"active" db:"active"`

	// Variables documents the context keys the template expects. Advisory
	// only; the renderer never enforces it.
	Variables json.RawMessage `json:"variables,omitempty" db:"variables"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RenderedEmail holds the three rendered bodies of a template.
type RenderedEmail struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}
