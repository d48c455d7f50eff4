package api

import (
	"github.com/starford/comicshelf/internal/catalog"
	"github.com/starford/comicshelf/internal/library"
)

// ComicSummary is a lightweight item in a list response (aliased from the domain layer).
type ComicSummary = library.ComicSummary

// ComicDetail is the full comic response type (aliased from the domain layer).
type ComicDetail = library.ComicDetail

// Overrides is the request body for PUT /comics/{id}/overrides.
type Overrides = library.Overrides

// ComicListResponse wraps paginated comic listings.
type ComicListResponse struct {
	Comics []ComicSummary `json:"comics" validate:"required"`
	Total  int            `json:"total" example:"42" validate:"required"`
}

// TagsRequest is the request body for replacing a comic's tags.
type TagsRequest struct {
	Tags []string `json:"tags" example:"action,color"`
}

// FlagRequest is the request body for the loved and disliked flags.
type FlagRequest struct {
	Value bool `json:"value" example:"true"`
}

// ProgressBody is the request and response body for reading progress.
type ProgressBody struct {
	Progress int `json:"progress" example:"12"`
}

// CommandResponse is an expanded argument list.
type CommandResponse struct {
	Args []string `json:"args" validate:"required"`
}

// TokenizeRequest asks for an execution string to be expanded. An empty ID
// expands against placeholder values.
type TokenizeRequest struct {
	Format string `json:"format" example:"{all:,}"`
	ID     string `json:"id,omitempty" example:"Author/Title"`
}

// RescanResponse summarises a reconciliation.
type RescanResponse struct {
	ScanID    string   `json:"scan_id" validate:"required"`
	Added     []string `json:"added" validate:"required"`
	Removed   []string `json:"removed" validate:"required"`
	Unchanged int      `json:"unchanged"`
}

// TagListResponse lists tags with usage counts.
type TagListResponse struct {
	Tags []catalog.TagCount `json:"tags" validate:"required"`
}

// ExtensionRequest selects the comics an extension runs over. Empty means all.
type ExtensionRequest struct {
	IDs []string `json:"ids"`
}

// ExtensionResponse carries the status string an extension returned.
type ExtensionResponse struct {
	Status string `json:"status"`
}
