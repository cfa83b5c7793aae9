// Package bundle turns already loaded social rows into export payloads.
//
// Builders do no I/O. The output representation is a closed set of strategies,
// Plain and Protocol, picked once per request by ForFormat.
package bundle

import (
	"fmt"
	"time"

	"social-export/internal/domain"
	"social-export/internal/domain/identity"
	"social-export/internal/domain/model"
)

type Section string

const (
	SectionCore  Section = "core"
	SectionDM    Section = "dm"
	SectionMedia Section = "media"
)

// Count keys reported by the builders.
const (
	CountPosts      = "posts"
	CountFriends    = "friends"
	CountReactions  = "reactions"
	CountBookmarks  = "bookmarks"
	CountDmThreads  = "dmThreads"
	CountDmMessages = "dmMessages"
	CountMedia      = "media"
)

// Bundle is an in-memory payload ready for the artifact writer.
type Bundle struct {
	Payload any
	Counts  map[string]int
}

type CoreInput struct {
	Profile     *model.Profile
	Posts       []*model.Post
	Friends     []*model.Edge
	Reactions   []*model.Reaction
	Bookmarks   []*model.Bookmark
	GeneratedAt time.Time
}

type DMInput struct {
	Owner *model.Profile
	// Threads must already be filtered to the owner, see SelectThreads.
	Threads     []*model.DmThread
	Messages    map[string][]*model.DmMessage
	GeneratedAt time.Time
}

type MediaInput struct {
	Owner       *model.Profile
	Items       []*model.MediaItem
	GeneratedAt time.Time
}

// Representation builds every section in one output shape.
type Representation interface {
	Format() string
	ArtifactName(s Section) string
	Core(in CoreInput) *Bundle
	DM(in DMInput) *Bundle
	Media(in MediaInput) *Bundle
}

// ForFormat returns the representation for a request format.
func ForFormat(format string, res *identity.Resolver) (Representation, error) {
	switch format {
	case model.ExportFormatJSON:
		return Plain{}, nil
	case model.ExportFormatActivityPub:
		if res == nil {
			return nil, fmt.Errorf("%w: activitypub needs a local domain", domain.ErrInvalidArgument)
		}
		return &Protocol{res: res}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
