package model

import (
	"encoding/json"
	"time"
)

// Profile is the exporting user's account record.
type Profile struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"displayName,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	ActorURI    string    `json:"actorUri,omitempty"`
	Aliases     []string  `json:"aliases,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ActorCandidates lists every stored reference to the profile, strongest first.
func (p *Profile) ActorCandidates() []string {
	out := make([]string, 0, len(p.Aliases)+2)
	if p.ActorURI != "" {
		out = append(out, p.ActorURI)
	}
	out = append(out, p.Aliases...)
	if p.Handle != "" {
		out = append(out, p.Handle)
	}
	return out
}

type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"authorId"`
	Content       string    `json:"content"`
	Visibility    string    `json:"visibility"`
	InReplyTo     string    `json:"inReplyTo,omitempty"`
	ObjectURI     string    `json:"objectUri,omitempty"`
	ActivityID    string    `json:"activityId,omitempty"`
	MediaIDs      []string  `json:"mediaIds,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	IsDeleted     bool      `json:"isDeleted,omitempty"`
	ReplyCount    int       `json:"replyCount"`
	ReactionCount int       `json:"reactionCount"`
}

// Edge is a social connection from the user to another actor.
type Edge struct {
	UserID         string    `json:"userId"`
	FriendID       string    `json:"friendId"`
	FriendHandle   string    `json:"friendHandle,omitempty"`
	FriendActorURI string    `json:"friendActorUri,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Candidates lists the stored references to the other side of the edge.
func (e *Edge) Candidates() []string {
	var out []string
	for _, s := range []string{e.FriendActorURI, e.FriendHandle, e.FriendID} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

type Reaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	ObjectURI string    `json:"objectUri,omitempty"`
	ActorURI  string    `json:"actorUri,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Bookmark struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	ObjectURI string    `json:"objectUri,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type DmThread struct {
	ID           string    `json:"id"`
	URI          string    `json:"uri,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

type DmMessage struct {
	ID          string          `json:"id"`
	ThreadID    string          `json:"threadId"`
	AuthorID    string          `json:"authorId"`
	Content     string          `json:"content"`
	CreatedAt   time.Time       `json:"createdAt"`
	RawActivity json.RawMessage `json:"rawActivity,omitempty"`
}

type MediaItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
