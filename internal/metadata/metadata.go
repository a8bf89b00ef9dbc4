// Package metadata looks up album catalog data from an external provider.
package metadata

import (
	"context"
	"errors"

	"github.com/justestif/playgroup/internal/db"
)

var (
	// ErrProviderDisabled is returned when no provider credentials are configured.
	ErrProviderDisabled = errors.New("metadata provider not configured")

	// ErrAlbumNotFound is returned when the provider does not know the album.
	ErrAlbumNotFound = errors.New("album not found at provider")
)

// Album is catalog data for one album.
type Album struct {
	ExternalID  string   `json:"external_id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"` // comma-separated artist names
	CoverURL    *string  `json:"cover_url"`
	AlbumURL    *string  `json:"album_url"`
	ReleaseDate *string  `json:"release_date"`
	Tracks      []string `json:"tracks,omitempty"`
}

// Metadata returns the fields stored with a submission.
func (a Album) Metadata() db.AlbumMetadata {
	return db.AlbumMetadata{
		Title:       a.Title,
		Artist:      a.Artist,
		CoverURL:    a.CoverURL,
		AlbumURL:    a.AlbumURL,
		ReleaseDate: a.ReleaseDate,
	}
}

// Provider resolves albums by external ID and by free-text search.
type Provider interface {
	Lookup(ctx context.Context, externalID string) (*Album, error)
	Search(ctx context.Context, query string, limit int) ([]Album, error)
}

// Disabled is the Provider used when no credentials are configured.
type Disabled struct{}

func (Disabled) Lookup(context.Context, string) (*Album, error) {
	return nil, ErrProviderDisabled
}

func (Disabled) Search(context.Context, string, int) ([]Album, error) {
	return nil, ErrProviderDisabled
}
