// Package jid formats WhatsApp conversation identifiers.
package jid

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

const (
	// UserSuffix is appended to bare phone numbers.
	UserSuffix = "@" + types.DefaultUserServer
	// GroupSuffix marks group conversations.
	GroupSuffix = "@" + types.GroupServer
)

// Format qualifies a bare phone number with the direct-message domain.
// Identifiers that already carry a domain separator are returned unchanged,
// so Format(Format(x)) == Format(x).
func Format(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "@") {
		return id
	}
	return id + UserSuffix
}

// IsGroup reports whether a conversation identifier names a group.
func IsGroup(id string) bool {
	return strings.HasSuffix(id, GroupSuffix)
}

// Parse formats id and parses it into a whatsmeow JID.
func Parse(id string) (types.JID, error) {
	return types.ParseJID(Format(id))
}
