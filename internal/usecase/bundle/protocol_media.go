package bundle

import (
	"net/url"
	"strings"
)

// MediaObjectType maps a content type onto an ActivityStreams object type.
func MediaObjectType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return "Image"
	case strings.HasPrefix(ct, "video/"):
		return "Video"
	default:
		return "Document"
	}
}

// mediaRef is the object URI of a media item, shared by post attachments
// and the media collection.
func (p *Protocol) mediaRef(id string) (string, bool) {
	return p.res.Object("media/" + url.PathEscape(id))
}

func (p *Protocol) Media(in MediaInput) *Bundle {
	owner := OwnerRef(p.res, in.Owner)
	items := make([]any, 0, len(in.Items))
	for _, m := range in.Items {
		if m == nil {
			continue
		}
		id, ok := p.mediaRef(m.ID)
		if !ok {
			continue
		}
		obj := map[string]any{
			"id":           id,
			"type":         MediaObjectType(m.ContentType),
			"mediaType":    m.ContentType,
			"url":          p.res.Absolutize(m.URL),
			"attributedTo": owner.ID,
			"published":    timestamp(m.CreatedAt),
		}
		if m.Description != "" {
			obj["name"] = m.Description
		}
		if m.Width > 0 && m.Height > 0 {
			obj["width"] = m.Width
			obj["height"] = m.Height
		}
		if m.SizeBytes > 0 {
			obj["export:size"] = m.SizeBytes
		}
		items = append(items, obj)
	}
	return &Bundle{
		Payload: map[string]any{
			"@context":     p.context(),
			"generatedAt":  timestamp(in.GeneratedAt),
			"type":         "Collection",
			"attributedTo": owner.ID,
			"totalItems":   len(items),
			"items":        items,
		},
		Counts: map[string]int{CountMedia: len(items)},
	}
}
