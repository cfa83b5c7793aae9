package bundle

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"social-export/internal/domain/identity"
	"social-export/internal/domain/model"
)

const (
	asContext    = "https://www.w3.org/ns/activitystreams"
	asPublic     = "https://www.w3.org/ns/activitystreams#Public"
	bookmarkType = "Bookmark"
)

// Protocol emits ActivityPub shaped payloads with every actor and object
// reference resolved to a canonical URI.
type Protocol struct {
	res *identity.Resolver
}

var _ Representation = (*Protocol)(nil)

func NewProtocol(res *identity.Resolver) *Protocol { return &Protocol{res: res} }

func (p *Protocol) Format() string { return model.ExportFormatActivityPub }

func (p *Protocol) ArtifactName(s Section) string {
	return string(s) + "." + model.ExportFormatActivityPub
}

func (p *Protocol) context() []any {
	return []any{
		asContext,
		map[string]any{
			"export":     p.res.Origin() + "/ns/export#",
			bookmarkType: "export:" + bookmarkType,
		},
	}
}

// refIndex collects every actor and object id a payload mentions.
type refIndex struct {
	actors  map[string]struct{}
	objects map[string]struct{}
}

func newRefIndex() *refIndex {
	return &refIndex{actors: map[string]struct{}{}, objects: map[string]struct{}{}}
}

func (r *refIndex) actor(id string) {
	if id != "" {
		r.actors[id] = struct{}{}
	}
}

func (r *refIndex) object(id string) {
	if id != "" {
		r.objects[id] = struct{}{}
	}
}

func (r *refIndex) payload() map[string]any {
	return map[string]any{"actors": sortedKeys(r.actors), "objects": sortedKeys(r.objects)}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p *Protocol) Core(in CoreInput) *Bundle {
	owner := OwnerRef(p.res, in.Profile)
	actorID := owner.ID
	refs := newRefIndex()
	refs.actor(actorID)

	outbox := make([]any, 0, len(in.Posts))
	for _, post := range in.Posts {
		if post == nil {
			continue
		}
		act := p.postActivity(actorID, post)
		refs.object(act.objectID)
		refs.object(act.inReplyTo)
		outbox = append(outbox, act.body)
	}

	following := make([]string, 0, len(in.Friends))
	seen := map[string]struct{}{}
	for _, e := range in.Friends {
		if e == nil {
			continue
		}
		id := p.res.ActorID(e.Candidates()...)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs.actor(id)
		following = append(following, id)
	}

	likes := make([]any, 0, len(in.Reactions))
	for _, r := range in.Reactions {
		if r == nil {
			continue
		}
		target, ok := p.targetRef(r.ObjectURI, r.PostID)
		if !ok {
			continue
		}
		actor := p.res.ActorID(r.ActorURI)
		if actor == "" {
			actor = actorID
		}
		like := map[string]any{
			"id":        p.res.ActivityURI(actor, "like-"+r.ID),
			"type":      "Like",
			"actor":     actor,
			"object":    target,
			"published": timestamp(r.CreatedAt),
		}
		if r.Emoji != "" {
			like["content"] = r.Emoji
		}
		refs.actor(actor)
		refs.object(target)
		likes = append(likes, like)
	}

	bookmarks := make([]any, 0, len(in.Bookmarks))
	for _, b := range in.Bookmarks {
		if b == nil {
			continue
		}
		target, ok := p.targetRef(b.ObjectURI, b.PostID)
		if !ok {
			continue
		}
		refs.object(target)
		bookmarks = append(bookmarks, map[string]any{
			"id":        p.res.ActivityURI(actorID, "bookmark-"+b.ID),
			"type":      bookmarkType,
			"actor":     actorID,
			"object":    target,
			"published": timestamp(b.CreatedAt),
		})
	}

	payload := map[string]any{
		"@context":    p.context(),
		"generatedAt": timestamp(in.GeneratedAt),
		"format":      model.ExportFormatActivityPub,
		"actor":       p.actorObject(owner, in.Profile),
		"outbox":      orderedCollection(actorID+"/outbox", outbox),
		"following":   orderedCollection(actorID+"/following", toAny(following)),
		"liked":       orderedCollection(actorID+"/liked", likes),
		"bookmarks":   orderedCollection(actorID+"/bookmarks", bookmarks),
		"references":  refs.payload(),
	}
	return &Bundle{
		Payload: payload,
		Counts: map[string]int{
			CountPosts:     len(outbox),
			CountFriends:   len(following),
			CountReactions: len(likes),
			CountBookmarks: len(bookmarks),
		},
	}
}

func (p *Protocol) actorObject(ref identity.ActorRef, prof *model.Profile) map[string]any {
	actor := map[string]any{
		"id":                ref.ID,
		"type":              "Person",
		"preferredUsername": prof.Handle,
		"published":         timestamp(prof.CreatedAt),
		"inbox":             ref.ID + "/inbox",
		"outbox":            ref.ID + "/outbox",
		"following":         ref.ID + "/following",
		"followers":         ref.ID + "/followers",
	}
	if prof.DisplayName != "" {
		actor["name"] = prof.DisplayName
	}
	if prof.Bio != "" {
		actor["summary"] = prof.Bio
	}
	if prof.AvatarURL != "" {
		actor["icon"] = map[string]any{"type": "Image", "url": p.res.Absolutize(prof.AvatarURL)}
	}
	var aka []string
	for _, a := range ref.Aliases {
		if a != ref.ID && identity.IsAbsoluteURI(a) {
			aka = append(aka, a)
		}
	}
	if len(aka) > 0 {
		actor["alsoKnownAs"] = aka
	}
	return actor
}

type postActivity struct {
	body      map[string]any
	objectID  string
	inReplyTo string
}

func (p *Protocol) postActivity(actorID string, post *model.Post) postActivity {
	objectID, ok := p.targetRef(post.ObjectURI, post.ID)
	if !ok {
		objectID = p.res.Origin() + "/posts/" + url.PathEscape(post.ID)
	}
	activityID := strings.TrimSpace(post.ActivityID)
	if activityID == "" {
		activityID = p.res.ActivityURI(actorID, "create-"+post.ID)
	}
	to, cc := audience(actorID, post.Visibility)

	obj := map[string]any{
		"id":           objectID,
		"type":         "Note",
		"attributedTo": actorID,
		"content":      post.Content,
		"published":    timestamp(post.CreatedAt),
		"to":           to,
		"cc":           cc,
	}
	if !post.UpdatedAt.IsZero() && post.UpdatedAt.After(post.CreatedAt) {
		obj["updated"] = timestamp(post.UpdatedAt)
	}
	var replyTo string
	if post.InReplyTo != "" {
		if r, ok := p.postRef(post.InReplyTo); ok {
			replyTo = r
			obj["inReplyTo"] = r
		}
	}
	if len(post.MediaIDs) > 0 {
		att := make([]string, 0, len(post.MediaIDs))
		for _, id := range post.MediaIDs {
			if ref, ok := p.mediaRef(id); ok {
				att = append(att, ref)
			}
		}
		obj["attachment"] = att
	}
	if post.IsDeleted {
		obj = map[string]any{"id": objectID, "type": "Tombstone", "formerType": "Note"}
		deleted := post.UpdatedAt
		if deleted.IsZero() {
			deleted = post.CreatedAt
		}
		if !deleted.IsZero() {
			obj["deleted"] = timestamp(deleted)
		}
	}

	return postActivity{
		body: map[string]any{
			"id":        activityID,
			"type":      "Create",
			"actor":     actorID,
			"published": timestamp(post.CreatedAt),
			"to":        to,
			"cc":        cc,
			"object":    obj,
		},
		objectID:  objectID,
		inReplyTo: replyTo,
	}
}

// targetRef prefers a stored object uri and falls back to the local post path.
func (p *Protocol) targetRef(objectURI, postID string) (string, bool) {
	if ref, ok := p.res.Object(objectURI); ok {
		return ref, true
	}
	return p.postRef(postID)
}

// postRef accepts a post id, a relative path or an absolute uri.
func (p *Protocol) postRef(s string) (string, bool) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", false
	case identity.IsAbsoluteURI(s), strings.Contains(s, "/"):
		return p.res.Object(s)
	default:
		return p.res.Object("posts/" + url.PathEscape(s))
	}
}

func audience(actorID, visibility string) (to, cc []string) {
	followers := actorID + "/followers"
	switch strings.ToLower(visibility) {
	case "", "public":
		return []string{asPublic}, []string{followers}
	case "unlisted":
		return []string{followers}, []string{asPublic}
	case "followers", "private":
		return []string{followers}, []string{}
	default:
		return []string{}, []string{}
	}
}

func orderedCollection(id string, items []any) map[string]any {
	return map[string]any{
		"id":           id,
		"type":         "OrderedCollection",
		"totalItems":   len(items),
		"orderedItems": items,
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// rawActivity passes a stored activity through when it is usable JSON.
func rawActivity(raw json.RawMessage) (json.RawMessage, bool) {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, false
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" || !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	return raw, true
}
