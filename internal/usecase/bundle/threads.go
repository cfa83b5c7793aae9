package bundle

import (
	"net/url"
	"sort"
	"strings"

	"social-export/internal/domain/identity"
	"social-export/internal/domain/model"
)

// OwnerRef resolves the exporting user. The raw user id is kept as an alias so
// participant lists that store bare ids still match.
func OwnerRef(res *identity.Resolver, p *model.Profile) identity.ActorRef {
	candidates := append(p.ActorCandidates(), p.ID)
	ref, ok := res.Actor(candidates...)
	if !ok {
		id := res.Origin() + "/users/" + url.PathEscape(p.ID)
		ref = identity.ActorRef{ID: id, Aliases: []string{id}}
	}
	if p.ID != "" && !ref.Has(p.ID) {
		ref.Aliases = append(ref.Aliases, p.ID)
	}
	return ref
}

// SelectThreads keeps the threads the owner participates in. A participant
// matches when any of its resolved aliases is an owner alias, or when the
// stored string ends in /{userID}.
func SelectThreads(res *identity.Resolver, owner *model.Profile, threads []*model.DmThread) []*model.DmThread {
	ref := OwnerRef(res, owner)
	known := make(map[string]struct{}, len(ref.Aliases))
	for _, a := range ref.Aliases {
		known[a] = struct{}{}
	}
	suffix := "/" + owner.ID

	var out []*model.DmThread
	for _, th := range threads {
		if th == nil {
			continue
		}
		if participates(res, th.Participants, known, suffix) {
			out = append(out, th)
		}
	}
	return out
}

func participates(res *identity.Resolver, participants []string, known map[string]struct{}, suffix string) bool {
	for _, raw := range participants {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, suffix) {
			return true
		}
		if _, ok := known[p]; ok {
			return true
		}
		ref, ok := res.Actor(p)
		if !ok {
			continue
		}
		for _, a := range ref.Aliases {
			if _, ok := known[a]; ok {
				return true
			}
		}
		if strings.HasSuffix(ref.ID, suffix) {
			return true
		}
	}
	return false
}

// SortMessages returns a copy ordered by creation time; equal timestamps keep storage order.
func SortMessages(msgs []*model.DmMessage) []*model.DmMessage {
	out := make([]*model.DmMessage, 0, len(msgs))
	for _, m := range msgs {
		if m != nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
