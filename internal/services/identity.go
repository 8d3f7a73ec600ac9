package services

import (
	"path"
	"strings"
)

// Identity is the authenticated caller as supplied by the upstream auth layer.
type Identity struct {
	UserID string
	Email  string
}

// BypassList is the allowlist of identities exempt from metering. The zero
// value matches nobody.
type BypassList struct {
	ids    map[string]struct{}
	emails map[string]struct{}
}

// NewBypassList builds an allowlist from user ids and emails. Emails are
// matched case-insensitively; blank values are ignored.
func NewBypassList(userIDs, emails []string) BypassList {
	b := BypassList{ids: map[string]struct{}{}, emails: map[string]struct{}{}}
	for _, id := range userIDs {
		if id = strings.TrimSpace(id); id != "" {
			b.ids[id] = struct{}{}
		}
	}
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			b.emails[e] = struct{}{}
		}
	}
	return b
}

// Contains reports whether id's user id or email is allowlisted.
func (b BypassList) Contains(id Identity) bool {
	if uid := strings.TrimSpace(id.UserID); uid != "" {
		if _, ok := b.ids[uid]; ok {
			return true
		}
	}
	if e := normalizeEmail(id.Email); e != "" {
		if _, ok := b.emails[e]; ok {
			return true
		}
	}
	return false
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// UploadPrefix is the storage namespace owned by userID.
func UploadPrefix(userID string) string { return "uploads/users/" + userID + "/" }

// OwnsPath reports whether p names an object inside userID's upload
// namespace. The path must be clean (no "..", "." or empty segments) so a
// prefix match cannot be escaped.
func OwnsPath(userID, p string) bool {
	if userID == "" || strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return false
	}
	if strings.Contains(p, `\`) || path.Clean(p) != p {
		return false
	}
	prefix := UploadPrefix(userID)
	return strings.HasPrefix(p, prefix) && len(p) > len(prefix)
}
