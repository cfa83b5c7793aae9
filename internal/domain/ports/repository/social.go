package repository

import (
	"context"

	"social-export/internal/domain/model"
)

// The social store is consumed through narrow capabilities. A deployment that
// lacks one (no DMs, no media) simply does not implement it and the matching
// export section is skipped.

type ProfileReader interface {
	GetUser(ctx context.Context, id string) (*model.Profile, error)
}

type PostLister interface {
	ListPostsByAuthors(ctx context.Context, authorIDs []string, includeAll bool) ([]*model.Post, error)
}

type FriendLister interface {
	ListFriends(ctx context.Context, userID string) ([]*model.Edge, error)
}

type ReactionLister interface {
	ListReactionsByUser(ctx context.Context, userID string) ([]*model.Reaction, error)
}

type BookmarkLister interface {
	ListBookmarksByUser(ctx context.Context, userID string) ([]*model.Bookmark, error)
}

type DmThreadLister interface {
	ListAllDmThreads(ctx context.Context) ([]*model.DmThread, error)
}

type DmMessageLister interface {
	// ListDmMessages returns one page of a thread. An empty next cursor ends the thread.
	ListDmMessages(ctx context.Context, threadID, cursor string) (msgs []*model.DmMessage, next string, err error)
}

type MediaLister interface {
	ListMediaByUser(ctx context.Context, userID string) ([]*model.MediaItem, error)
}

// CoreSource is everything the core bundle needs.
type CoreSource interface {
	ProfileReader
	PostLister
	FriendLister
	ReactionLister
	BookmarkLister
}
