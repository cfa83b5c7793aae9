// Package identity turns the many shapes a stored actor or object reference can
// take into canonical federation URIs.
//
// Resolution never fails loudly: a malformed third-party identifier resolves to
// nothing and callers carry on without it.
package identity

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	handleRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)
	domainRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)*(?::[0-9]{1,5})?$`)
)

// ActorRef is a resolved actor id and every spelling of it seen along the way.
type ActorRef struct {
	ID      string
	Aliases []string
}

// Has reports whether s is one of the ref's aliases.
func (a ActorRef) Has(s string) bool {
	for _, v := range a.Aliases {
		if v == s {
			return true
		}
	}
	return false
}

// NormalizeDomain strips a scheme, path and trailing slash from a configured hostname.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}

// Origin is the https origin of the local instance.
func Origin(localDomain string) string {
	return "https://" + NormalizeDomain(localDomain)
}

// IsAbsoluteURI reports whether s parses as an http(s) URI with a host.
func IsAbsoluteURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

// ResolveActorRef picks a canonical actor id from candidates. An absolute URI wins
// over handle@domain, which wins over a bare handle mapped onto localDomain.
func ResolveActorRef(localDomain string, candidates ...string) (ActorRef, bool) {
	cleaned := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return ActorRef{}, false
	}

	id := ""
	for _, c := range cleaned {
		if IsAbsoluteURI(c) {
			id = c
			break
		}
	}
	if id == "" {
		for _, c := range cleaned {
			if handle, domain, ok := splitAcct(c); ok {
				id = actorURI(domain, handle)
				break
			}
		}
	}
	if id == "" {
		local := NormalizeDomain(localDomain)
		for _, c := range cleaned {
			h := strings.TrimPrefix(c, "@")
			if local != "" && handleRe.MatchString(h) {
				id = actorURI(local, h)
				break
			}
		}
	}
	if id == "" {
		return ActorRef{}, false
	}

	seen := make(map[string]struct{}, len(cleaned)+1)
	aliases := make([]string, 0, len(cleaned)+1)
	for _, s := range append(cleaned, id) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		aliases = append(aliases, s)
	}
	return ActorRef{ID: id, Aliases: aliases}, true
}

// ResolveObjectRef returns input unchanged when it is already absolute, otherwise a
// local object URI built from the cleaned relative path.
func ResolveObjectRef(input, localDomain string) (string, bool) {
	in := strings.TrimSpace(input)
	if in == "" {
		return "", false
	}
	if IsAbsoluteURI(in) {
		return in, true
	}
	if strings.Contains(in, "://") {
		return "", false
	}
	local := NormalizeDomain(localDomain)
	if local == "" {
		return "", false
	}
	var segs []string
	for _, s := range strings.Split(in, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return "", false
	}
	return "https://" + local + "/" + strings.Join(segs, "/"), true
}

// BuildActivityURIForActor places an activity under the actor's own origin, or the
// local origin when actorID is not a usable URI.
func BuildActivityURIForActor(actorID, activityID, localDomain string) string {
	origin := Origin(localDomain)
	if u, err := url.Parse(strings.TrimSpace(actorID)); err == nil && u.Host != "" && (u.Scheme == "https" || u.Scheme == "http") {
		origin = u.Scheme + "://" + u.Host
	}
	return origin + "/activities/" + url.PathEscape(activityID)
}

// AbsolutizeURL prefixes root-relative paths with the local origin.
func AbsolutizeURL(raw, localDomain string) string {
	s := strings.TrimSpace(raw)
	if s == "" || IsAbsoluteURI(s) {
		return s
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return Origin(localDomain) + s
}

func actorURI(domain, handle string) string {
	return "https://" + domain + "/users/" + handle
}

// splitAcct parses handle@domain, @handle@domain and acct:handle@domain.
func splitAcct(s string) (handle, domain string, ok bool) {
	s = strings.TrimPrefix(s, "acct:")
	s = strings.TrimPrefix(s, "@")
	i := strings.LastIndexByte(s, '@')
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	handle, domain = s[:i], strings.ToLower(s[i+1:])
	if !handleRe.MatchString(handle) || !domainRe.MatchString(domain) {
		return "", "", false
	}
	return handle, domain, true
}

// Resolver binds the package functions to one local instance.
type Resolver struct {
	domain string
}

func NewResolver(localDomain string) *Resolver {
	return &Resolver{domain: NormalizeDomain(localDomain)}
}

func (r *Resolver) Domain() string { return r.domain }
func (r *Resolver) Origin() string { return Origin(r.domain) }

func (r *Resolver) Actor(candidates ...string) (ActorRef, bool) {
	return ResolveActorRef(r.domain, candidates...)
}

// ActorID resolves and returns only the id, "" when unresolvable.
func (r *Resolver) ActorID(candidates ...string) string {
	ref, ok := r.Actor(candidates...)
	if !ok {
		return ""
	}
	return ref.ID
}

func (r *Resolver) Object(input string) (string, bool) {
	return ResolveObjectRef(input, r.domain)
}

func (r *Resolver) ActivityURI(actorID, activityID string) string {
	return BuildActivityURIForActor(actorID, activityID, r.domain)
}

func (r *Resolver) Absolutize(raw string) string {
	return AbsolutizeURL(raw, r.domain)
}
