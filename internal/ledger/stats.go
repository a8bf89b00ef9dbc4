package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/justestif/playgroup/internal/db"
)

// ComputeStats derives album stats from its full review set, oldest first.
// The average is rounded half away from zero to one decimal place. The most
// loved track is the favorite named most often; on a tie, the track that
// reached that count first.
func ComputeStats(reviews []db.Review) db.AlbumStats {
	if len(reviews) == 0 {
		return db.AlbumStats{}
	}

	var sum int64
	counts := make(map[string]int)
	var loved string
	lovedVotes := 0
	for _, r := range reviews {
		sum += int64(r.Rating)
		if r.FavoriteTrack == nil || *r.FavoriteTrack == "" {
			continue
		}
		t := *r.FavoriteTrack
		counts[t]++
		if counts[t] > lovedVotes {
			loved, lovedVotes = t, counts[t]
		}
	}

	avg, _ := decimal.NewFromInt(sum).
		Div(decimal.NewFromInt(int64(len(reviews)))).
		Round(1).
		Float64()

	stats := db.AlbumStats{
		AvgRating:    &avg,
		TotalReviews: len(reviews),
	}
	if lovedVotes > 0 {
		stats.MostLovedTrack = &loved
		stats.MostLovedTrackVotes = lovedVotes
	}
	return stats
}
