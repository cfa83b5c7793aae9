package bundle

import (
	"social-export/internal/domain/model"
)

// Plain emits stored rows as they are, with internal identifiers untouched.
type Plain struct{}

var _ Representation = Plain{}

func (Plain) Format() string { return model.ExportFormatJSON }

func (Plain) ArtifactName(s Section) string {
	if s == SectionCore {
		return "core." + model.ExportFormatJSON
	}
	return string(s)
}

type plainCore struct {
	GeneratedAt string            `json:"generatedAt"`
	Format      string            `json:"format"`
	Profile     *model.Profile    `json:"profile"`
	Posts       []*model.Post     `json:"posts"`
	Friends     []*model.Edge     `json:"friends"`
	Reactions   []*model.Reaction `json:"reactions"`
	Bookmarks   []*model.Bookmark `json:"bookmarks"`
}

func (Plain) Core(in CoreInput) *Bundle {
	p := plainCore{
		GeneratedAt: timestamp(in.GeneratedAt),
		Format:      model.ExportFormatJSON,
		Profile:     in.Profile,
		Posts:       nonNil(in.Posts),
		Friends:     nonNil(in.Friends),
		Reactions:   nonNil(in.Reactions),
		Bookmarks:   nonNil(in.Bookmarks),
	}
	return &Bundle{
		Payload: p,
		Counts: map[string]int{
			CountPosts:     len(p.Posts),
			CountFriends:   len(p.Friends),
			CountReactions: len(p.Reactions),
			CountBookmarks: len(p.Bookmarks),
		},
	}
}

type plainThread struct {
	ID           string             `json:"id"`
	URI          string             `json:"uri,omitempty"`
	Participants []string           `json:"participants"`
	CreatedAt    string             `json:"createdAt"`
	Messages     []*model.DmMessage `json:"messages"`
}

func (Plain) DM(in DMInput) *Bundle {
	threads := make([]plainThread, 0, len(in.Threads))
	total := 0
	for _, th := range in.Threads {
		msgs := SortMessages(in.Messages[th.ID])
		total += len(msgs)
		threads = append(threads, plainThread{
			ID:           th.ID,
			URI:          th.URI,
			Participants: nonNil(th.Participants),
			CreatedAt:    timestamp(th.CreatedAt),
			Messages:     msgs,
		})
	}
	return &Bundle{
		Payload: struct {
			GeneratedAt string        `json:"generatedAt"`
			Threads     []plainThread `json:"threads"`
		}{timestamp(in.GeneratedAt), threads},
		Counts: map[string]int{CountDmThreads: len(threads), CountDmMessages: total},
	}
}

func (Plain) Media(in MediaInput) *Bundle {
	items := nonNil(in.Items)
	return &Bundle{
		Payload: struct {
			GeneratedAt string             `json:"generatedAt"`
			Media       []*model.MediaItem `json:"media"`
		}{timestamp(in.GeneratedAt), items},
		Counts: map[string]int{CountMedia: len(items)},
	}
}

// nonNil keeps empty sections as [] rather than null in the artifact.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
