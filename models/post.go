package models

import "time"

// Post is the slice of the post collaborator the ranker reads: who posted,
// under which event, and how many likes it has.
type Post struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	EventID   string    `json:"event_id" gorm:"index:idx_post_event_user"`
	UserID    string    `json:"user_id" gorm:"not null;index:idx_post_event_user"`
	Likes     int64     `json:"likes" gorm:"not null;default:0"`
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// PostLikes is one row of FindPostsByEventAndUsers.
type PostLikes struct {
	UserID    string `json:"user_id"`
	LikeCount int64  `json:"like_count"`
}

// LeaderboardEntry is one ranked participant. Derived, never persisted.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"user_id"`
	TotalLikes int64  `json:"total_likes"`
	PostCount  int    `json:"post_count"`
}
