package bundle

import (
	"net/url"

	"social-export/internal/domain/model"
)

func (p *Protocol) DM(in DMInput) *Bundle {
	owner := OwnerRef(p.res, in.Owner)
	threads := make([]any, 0, len(in.Threads))
	total := 0

	for _, th := range in.Threads {
		threadURI, ok := p.res.Object(th.URI)
		if !ok {
			threadURI = p.res.Origin() + "/dm/threads/" + url.PathEscape(th.ID)
		}

		participants := make([]string, 0, len(th.Participants))
		for _, raw := range th.Participants {
			if id := p.participantID(owner.ID, in.Owner.ID, raw); id != "" {
				participants = appendUnique(participants, id)
			}
		}

		msgs := SortMessages(in.Messages[th.ID])
		items := make([]any, 0, len(msgs))
		for _, m := range msgs {
			if raw, ok := rawActivity(m.RawActivity); ok {
				items = append(items, raw)
				continue
			}
			items = append(items, p.noteActivity(threadURI, owner.ID, in.Owner.ID, participants, m))
		}
		total += len(items)

		threads = append(threads, map[string]any{
			"id":           threadURI,
			"type":         "OrderedCollection",
			"participants": participants,
			"published":    timestamp(th.CreatedAt),
			"totalItems":   len(items),
			"orderedItems": items,
		})
	}

	return &Bundle{
		Payload: map[string]any{
			"@context":    p.context(),
			"generatedAt": timestamp(in.GeneratedAt),
			"actor":       owner.ID,
			"type":        "Collection",
			"totalItems":  len(threads),
			"items":       threads,
		},
		Counts: map[string]int{CountDmThreads: len(threads), CountDmMessages: total},
	}
}

// participantID resolves a stored participant, mapping the owner's raw id to its actor.
func (p *Protocol) participantID(ownerActor, ownerID, raw string) string {
	if raw == ownerID {
		return ownerActor
	}
	return p.res.ActorID(raw)
}

func (p *Protocol) noteActivity(threadURI, ownerActor, ownerID string, participants []string, m *model.DmMessage) map[string]any {
	author := p.participantID(ownerActor, ownerID, m.AuthorID)
	if author == "" {
		author = m.AuthorID
	}
	to := make([]string, 0, len(participants))
	for _, id := range participants {
		if id != author {
			to = append(to, id)
		}
	}
	objectID := threadURI + "/messages/" + url.PathEscape(m.ID)
	return map[string]any{
		"id":        objectID + "/activity",
		"type":      "Create",
		"actor":     author,
		"published": timestamp(m.CreatedAt),
		"to":        to,
		"object": map[string]any{
			"id":           objectID,
			"type":         "Note",
			"attributedTo": author,
			"content":      m.Content,
			"context":      threadURI,
			"published":    timestamp(m.CreatedAt),
			"to":           to,
		},
	}
}

func appendUnique(ss []string, s string) []string {
	for _, v := range ss {
		if v == s {
			return ss
		}
	}
	return append(ss, s)
}
