package aggregate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/playgroup/internal/db"
	"github.com/justestif/playgroup/internal/identity"
)

// DefaultTasteClusters is the cluster count used when none is requested.
const DefaultTasteClusters = 3

// favoritesPerCluster bounds TasteCluster.Favorites.
const favoritesPerCluster = 3

// ErrNotEnoughReviewers is returned when there are fewer reviewers than clusters.
var ErrNotEnoughReviewers = errors.New("not enough reviewers to cluster")

// TasteCluster is a group of reviewers who rate albums alike.
type TasteCluster struct {
	Members   []identity.Identity
	Favorites []uuid.UUID // albums rated furthest above the members' own averages
}

// reviewerObservation places a reviewer in album-rating space.
type reviewerObservation struct {
	reviewer identity.Identity
	coords   clusters.Coordinates
}

func (o reviewerObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o reviewerObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// TasteClusters groups reviewers with k-means over their rating vectors.
// Each reviewer's vector holds one dimension per reviewed album: the rating
// minus the reviewer's own mean, or 0 for albums they did not review.
// Clusters are ordered largest first.
func (s *Service) TasteClusters(ctx context.Context, k int) ([]TasteCluster, error) {
	if k <= 0 {
		k = DefaultTasteClusters
	}
	return cached(ctx, s, "taste:"+strconv.Itoa(k), func() ([]TasteCluster, error) {
		ratings, err := s.store.AllRatings(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading ratings: %w", err)
		}
		return clusterTastes(ratings, k)
	})
}

func clusterTastes(ratings []db.Rating, k int) ([]TasteCluster, error) {
	albums, obs := tasteObservations(ratings)
	if len(obs) < k {
		return nil, ErrNotEnoughReviewers
	}

	result, err := kmeans.New().Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("partitioning reviewers: %w", err)
	}

	var out []TasteCluster
	for _, c := range result {
		if len(c.Observations) == 0 {
			continue
		}
		tc := TasteCluster{}
		for _, o := range c.Observations {
			if ro, ok := o.(reviewerObservation); ok {
				tc.Members = append(tc.Members, ro.reviewer)
			}
		}
		slices.SortFunc(tc.Members, func(a, b identity.Identity) int {
			return cmp.Compare(a.String(), b.String())
		})
		tc.Favorites = favorites(albums, c.Center)
		out = append(out, tc)
	}

	slices.SortStableFunc(out, func(a, b TasteCluster) int {
		if len(a.Members) != len(b.Members) {
			return len(b.Members) - len(a.Members)
		}
		return cmp.Compare(a.Members[0].String(), b.Members[0].String())
	})
	return out, nil
}

// tasteObservations builds one mean-centered vector per reviewer. albums
// maps each dimension back to its album.
func tasteObservations(ratings []db.Rating) ([]uuid.UUID, clusters.Observations) {
	var albums []uuid.UUID
	dim := make(map[uuid.UUID]int)
	var reviewers []identity.Identity
	byReviewer := make(map[string]map[int]float64)

	for _, r := range ratings {
		d, ok := dim[r.AlbumID]
		if !ok {
			d = len(albums)
			dim[r.AlbumID] = d
			albums = append(albums, r.AlbumID)
		}
		key := r.Reviewer.String()
		if _, ok := byReviewer[key]; !ok {
			byReviewer[key] = make(map[int]float64)
			reviewers = append(reviewers, r.Reviewer)
		}
		byReviewer[key][d] = float64(r.Rating)
	}

	obs := make(clusters.Observations, 0, len(reviewers))
	for _, reviewer := range reviewers {
		rated := byReviewer[reviewer.String()]
		var sum float64
		for _, v := range rated {
			sum += v
		}
		mean := sum / float64(len(rated))

		coords := make(clusters.Coordinates, len(albums))
		for d, v := range rated {
			coords[d] = v - mean
		}
		obs = append(obs, reviewerObservation{reviewer: reviewer, coords: coords})
	}
	return albums, obs
}

// favorites returns the albums with the highest positive center values.
func favorites(albums []uuid.UUID, center clusters.Coordinates) []uuid.UUID {
	idx := make([]int, 0, len(center))
	for d, v := range center {
		if v > 0 {
			idx = append(idx, d)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(center[b], center[a])
	})
	if len(idx) > favoritesPerCluster {
		idx = idx[:favoritesPerCluster]
	}
	out := make([]uuid.UUID, len(idx))
	for i, d := range idx {
		out[i] = albums[d]
	}
	return out
}
