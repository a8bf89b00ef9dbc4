package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxSearchLimit = 50

// Spotify is a Provider backed by the Spotify Web API using app
// (client credentials) tokens.
type Spotify struct {
	api *spotify.Client
}

// NewSpotify creates a Spotify provider for the given app credentials.
func NewSpotify(clientID, clientSecret string, opts ...spotify.ClientOption) *Spotify {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	tokens := NewTokenCache(cfg.Token)
	return NewSpotifyWithTokens(tokens, opts...)
}

// NewSpotifyWithTokens creates a Spotify provider that authorizes requests
// with tokens from src.
func NewSpotifyWithTokens(src oauth2.TokenSource, opts ...spotify.ClientOption) *Spotify {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: src},
	}
	opts = append([]spotify.ClientOption{spotify.WithRetry(true)}, opts...)
	return &Spotify{api: spotify.New(httpClient, opts...)}
}

// Lookup fetches one album by Spotify ID.
func (s *Spotify) Lookup(ctx context.Context, externalID string) (*Album, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return nil, ErrAlbumNotFound
	}
	full, err := s.api.GetAlbum(ctx, spotify.ID(id))
	if err != nil {
		var apiErr spotify.Error
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusBadRequest) {
			return nil, ErrAlbumNotFound
		}
		return nil, fmt.Errorf("getting album %s: %w", id, err)
	}

	album := convertAlbum(full.SimpleAlbum)
	for _, t := range full.Tracks.Tracks {
		album.Tracks = append(album.Tracks, t.Name)
	}
	return &album, nil
}

// Search finds albums matching a free-text query.
func (s *Spotify) Search(ctx context.Context, query string, limit int) ([]Album, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	res, err := s.api.Search(ctx, query, spotify.SearchTypeAlbum, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("searching albums: %w", err)
	}
	if res.Albums == nil {
		return nil, nil
	}

	albums := make([]Album, 0, len(res.Albums.Albums))
	for _, a := range res.Albums.Albums {
		albums = append(albums, convertAlbum(a))
	}
	return albums, nil
}

// convertAlbum converts a Spotify album to an Album. The first image is the
// largest and becomes the cover.
func convertAlbum(a spotify.SimpleAlbum) Album {
	artists := make([]string, len(a.Artists))
	for i, artist := range a.Artists {
		artists[i] = artist.Name
	}

	album := Album{
		ExternalID: a.ID.String(),
		Title:      a.Name,
		Artist:     strings.Join(artists, ", "),
	}
	if len(a.Images) > 0 && a.Images[0].URL != "" {
		cover := a.Images[0].URL
		album.CoverURL = &cover
	}
	if u, ok := a.ExternalURLs["spotify"]; ok && u != "" {
		album.AlbumURL = &u
	}
	if a.ReleaseDate != "" {
		d := a.ReleaseDate
		album.ReleaseDate = &d
	}
	return album
}
