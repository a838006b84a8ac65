package services

import (
	"context"
	"sort"

	"artpriyo-settlement/models"
	"artpriyo-settlement/repository"
)

// Ranker orders an event's participants by the likes on their event posts.
type Ranker struct {
	Posts  repository.PostStore
	Events repository.EventStore
}

func NewRanker(posts repository.PostStore, events repository.EventStore) *Ranker {
	return &Ranker{Posts: posts, Events: events}
}

// Rank sums likes per participant and sorts by total, highest first. Ties
// keep the order of participantIDs. An event with no participants or no
// posts ranks empty.
func (r *Ranker) Rank(ctx context.Context, eventID string, participantIDs []string) ([]models.LeaderboardEntry, error) {
	if len(participantIDs) == 0 {
		return []models.LeaderboardEntry{}, nil
	}
	rows, err := r.Posts.FindPostsByEventAndUsers(ctx, eventID, participantIDs)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.LeaderboardEntry{}, nil
	}

	index := make(map[string]int, len(participantIDs))
	entries := make([]models.LeaderboardEntry, 0, len(participantIDs))
	for _, id := range participantIDs {
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = len(entries)
		entries = append(entries, models.LeaderboardEntry{UserID: id})
	}
	for _, row := range rows {
		i, ok := index[row.UserID]
		if !ok {
			continue
		}
		entries[i].TotalLikes += row.LikeCount
		entries[i].PostCount++
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalLikes > entries[j].TotalLikes
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// GetLeaderboard ranks the event's current participants. It works at any
// lifecycle stage.
func (r *Ranker) GetLeaderboard(ctx context.Context, eventID string) ([]models.LeaderboardEntry, error) {
	ev, err := r.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, translate(err)
	}
	return r.Rank(ctx, ev.ID, ev.ParticipantIDs())
}
