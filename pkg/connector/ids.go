// Copyright 2024-2026 Aiku AI

package connector

import (
	"strings"

	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// dmRoomPrefix marks room specs for direct conversations. Direct chats are
// keyed per account so the same remote user reached from two linked
// accounts maps to two separate rooms.
const dmRoomPrefix = "dm-"

// MakeDMRoomID builds the composite room spec for a direct conversation:
// dm-<accountID>-<remoteUserID>.
func MakeDMRoomID(accountID, remoteUserID string) string {
	return dmRoomPrefix + accountID + "-" + skypeweb.NormalizeUserID(remoteUserID)
}

// ParseDMRoomID splits a dm room spec back into its account id and remote
// user id. ok is false for group room specs.
func ParseDMRoomID(spec string) (accountID, remoteUserID string, ok bool) {
	rest, found := strings.CutPrefix(spec, dmRoomPrefix)
	if !found {
		return "", "", false
	}
	// Account ids may contain dashes of their own, so the separator is the
	// last dash followed by a namespaced remote id. MakeDMRoomID always
	// normalizes the remote id into that shape.
	for i := len(rest) - 1; i > 0; i-- {
		if rest[i] == '-' && isNamespacedID(rest[i+1:]) {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}

// isNamespacedID reports whether s has the remote network's
// <digits>:<name> id shape.
func isNamespacedID(s string) bool {
	colon := strings.IndexByte(s, ':')
	if colon <= 0 || colon == len(s)-1 {
		return false
	}
	for i := 0; i < colon; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MakeRoomSpec maps a resolved remote conversation to the room spec used on
// the home side: group threads keep their raw id, direct chats get the
// account-scoped dm key.
func MakeRoomSpec(accountID string, conv *skypeweb.Conversation) string {
	if conv.IsDirect {
		return MakeDMRoomID(accountID, conv.ID)
	}
	return conv.ID
}

// dedupKey builds the composite (account, conversation) key for the dedup
// and expiry tables.
func dedupKey(accountID, conversationID string) string {
	return accountID + ";" + conversationID
}
