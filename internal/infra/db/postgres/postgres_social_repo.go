package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"social-export/internal/domain"
	"social-export/internal/domain/model"
	"social-export/internal/domain/ports/repository"
)

var (
	_ repository.CoreSource      = (*socialRepo)(nil)
	_ repository.DmThreadLister  = (*socialRepo)(nil)
	_ repository.DmMessageLister = (*socialRepo)(nil)
	_ repository.MediaLister     = (*socialRepo)(nil)
)

const dmPageSize = 200

// socialRepo reads the social graph rows an export is built from.
type socialRepo struct{ pool *pgxpool.Pool }

func NewSocialRepo(pool *pgxpool.Pool) *socialRepo {
	return &socialRepo{pool: pool}
}

func (r *socialRepo) GetUser(ctx context.Context, id string) (*model.Profile, error) {
	const q = `SELECT id, handle, display_name, bio, avatar_url, actor_uri, aliases, created_at FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, nil, q, id)
	if err != nil {
		return nil, err
	}
	p := &model.Profile{}
	if err := row.Scan(&p.ID, &p.Handle, &p.DisplayName, &p.Bio, &p.AvatarURL, &p.ActorURI, &p.Aliases, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

// ListPostsByAuthors skips deleted posts unless includeAll is set.
func (r *socialRepo) ListPostsByAuthors(ctx context.Context, authorIDs []string, includeAll bool) ([]*model.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	const q = `
SELECT id, author_id, content, visibility, in_reply_to, object_uri, activity_id, media_ids,
       created_at, updated_at, is_deleted, reply_count, reaction_count
FROM posts
WHERE author_id = ANY($1) AND ($2 OR NOT is_deleted)
ORDER BY created_at ASC, id ASC;`
	return collect(ctx, r.pool, "posts", q, func(rows pgx.Rows) (*model.Post, error) {
		p := &model.Post{}
		err := rows.Scan(&p.ID, &p.AuthorID, &p.Content, &p.Visibility, &p.InReplyTo, &p.ObjectURI, &p.ActivityID, &p.MediaIDs,
			&p.CreatedAt, &p.UpdatedAt, &p.IsDeleted, &p.ReplyCount, &p.ReactionCount)
		return p, err
	}, authorIDs, includeAll)
}

func (r *socialRepo) ListFriends(ctx context.Context, userID string) ([]*model.Edge, error) {
	const q = `
SELECT user_id, friend_id, friend_handle, friend_actor_uri, status, created_at
FROM friendships WHERE user_id=$1 ORDER BY created_at ASC, friend_id ASC;`
	return collect(ctx, r.pool, "friends", q, func(rows pgx.Rows) (*model.Edge, error) {
		e := &model.Edge{}
		err := rows.Scan(&e.UserID, &e.FriendID, &e.FriendHandle, &e.FriendActorURI, &e.Status, &e.CreatedAt)
		return e, err
	}, userID)
}

func (r *socialRepo) ListReactionsByUser(ctx context.Context, userID string) ([]*model.Reaction, error) {
	const q = `
SELECT id, user_id, post_id, object_uri, actor_uri, emoji, created_at
FROM reactions WHERE user_id=$1 ORDER BY created_at ASC, id ASC;`
	return collect(ctx, r.pool, "reactions", q, func(rows pgx.Rows) (*model.Reaction, error) {
		x := &model.Reaction{}
		err := rows.Scan(&x.ID, &x.UserID, &x.PostID, &x.ObjectURI, &x.ActorURI, &x.Emoji, &x.CreatedAt)
		return x, err
	}, userID)
}

func (r *socialRepo) ListBookmarksByUser(ctx context.Context, userID string) ([]*model.Bookmark, error) {
	const q = `
SELECT id, user_id, post_id, object_uri, created_at
FROM bookmarks WHERE user_id=$1 ORDER BY created_at ASC, id ASC;`
	return collect(ctx, r.pool, "bookmarks", q, func(rows pgx.Rows) (*model.Bookmark, error) {
		b := &model.Bookmark{}
		err := rows.Scan(&b.ID, &b.UserID, &b.PostID, &b.ObjectURI, &b.CreatedAt)
		return b, err
	}, userID)
}

func (r *socialRepo) ListAllDmThreads(ctx context.Context) ([]*model.DmThread, error) {
	const q = `SELECT id, uri, participants, created_at FROM dm_threads ORDER BY created_at ASC, id ASC;`
	return collect(ctx, r.pool, "dm threads", q, func(rows pgx.Rows) (*model.DmThread, error) {
		th := &model.DmThread{}
		err := rows.Scan(&th.ID, &th.URI, &th.Participants, &th.CreatedAt)
		return th, err
	})
}

// ListDmMessages pages through a thread in (created_at, id) order. The cursor is
// the id of the last message of the previous page.
func (r *socialRepo) ListDmMessages(ctx context.Context, threadID, cursor string) ([]*model.DmMessage, string, error) {
	const q = `
SELECT m.id, m.thread_id, m.author_id, m.content, m.raw_activity, m.created_at
FROM dm_messages m
WHERE m.thread_id=$1
  AND ($2 = '' OR (m.created_at, m.id) > (SELECT c.created_at, c.id FROM dm_messages c WHERE c.id=$2))
ORDER BY m.created_at ASC, m.id ASC
LIMIT $3;`
	msgs, err := collect(ctx, r.pool, "dm messages", q, func(rows pgx.Rows) (*model.DmMessage, error) {
		m := &model.DmMessage{}
		var raw []byte
		err := rows.Scan(&m.ID, &m.ThreadID, &m.AuthorID, &m.Content, &raw, &m.CreatedAt)
		if len(raw) > 0 {
			m.RawActivity = raw
		}
		return m, err
	}, threadID, cursor, dmPageSize+1)
	if err != nil {
		return nil, "", err
	}
	if len(msgs) <= dmPageSize {
		return msgs, "", nil
	}
	msgs = msgs[:dmPageSize]
	return msgs, msgs[len(msgs)-1].ID, nil
}

func (r *socialRepo) ListMediaByUser(ctx context.Context, userID string) ([]*model.MediaItem, error) {
	const q = `
SELECT id, user_id, url, content_type, size_bytes, width, height, description, created_at
FROM media WHERE user_id=$1 ORDER BY created_at ASC, id ASC;`
	return collect(ctx, r.pool, "media", q, func(rows pgx.Rows) (*model.MediaItem, error) {
		m := &model.MediaItem{}
		err := rows.Scan(&m.ID, &m.UserID, &m.URL, &m.ContentType, &m.SizeBytes, &m.Width, &m.Height, &m.Description, &m.CreatedAt)
		return m, err
	}, userID)
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, what, q string, scan func(pgx.Rows) (*T, error), args ...interface{}) ([]*T, error) {
	rows, err := queryRows(ctx, pool, nil, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	return out, nil
}
