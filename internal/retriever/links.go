package retriever

import (
	"fmt"
	"net/url"
	"strings"
)

const unknownOwner = "user"

// ParseItem derives an Item from a source link: the ID is the last path
// segment, the owner is the @handle segment, and the kind follows from the
// path containing /photo/. The stored link is canonical (query stripped).
func ParseItem(link string) (Item, error) {
	canonical := CanonicalLink(link)
	u, err := url.Parse(canonical)
	if err != nil {
		return Item{}, fmt.Errorf("parse link: %w", err)
	}
	if u.Host == "" || u.Path == "" {
		return Item{}, fmt.Errorf("link %q has no content path", link)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	id := segments[len(segments)-1]
	if id == "" {
		return Item{}, fmt.Errorf("link %q has no item id", link)
	}

	kind := KindVideo
	if strings.Contains(u.Path, "/photo/") {
		kind = KindPhoto
	}

	owner := unknownOwner
	for _, seg := range segments {
		if strings.HasPrefix(seg, "@") && len(seg) > 1 {
			owner = strings.TrimPrefix(seg, "@")
			break
		}
	}

	return Item{
		ID:     id,
		Link:   canonical,
		Kind:   kind,
		Owner:  owner,
		Status: StatusPending,
	}, nil
}

// IsItemLink reports whether href points at a single content item.
func IsItemLink(href string) bool {
	return strings.Contains(href, "/video/") || strings.Contains(href, "/photo/")
}

// CanonicalLink strips the query string and fragment from href, the
// normalization used for dedup during profile enumeration.
func CanonicalLink(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		return href[:i]
	}
	return href
}

// NormalizeHandle converts a creator handle to the platform's canonical
// "@handle" form.
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return handle
	}
	if !strings.HasPrefix(handle, "@") {
		return "@" + handle
	}
	return handle
}
