// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"

	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// UserInfo is the home framework's view of a remote user.
type UserInfo struct {
	UserID    string
	Name      string
	AvatarURL string
}

// RoomInfo is the home framework's view of a remote conversation.
type RoomInfo struct {
	RoomSpec  string
	Name      string
	Topic     string
	AvatarURL string
	IsDirect  bool
}

// CreateUser resolves a remote user id to profile info for ghost creation.
// Returns nil for unknown users.
func (sc *SkypeConnector) CreateUser(ctx context.Context, accountID, userID string) (*UserInfo, error) {
	p := sc.getPuppet(accountID)
	if p == nil {
		return nil, fmt.Errorf("no such account: %s", accountID)
	}
	contact, err := p.session.GetContact(ctx, userID)
	if err != nil || contact == nil {
		return nil, err
	}
	return &UserInfo{
		UserID:    contact.ID,
		Name:      contact.DisplayName,
		AvatarURL: contact.AvatarURL,
	}, nil
}

// CreateRoom resolves a room spec to conversation info for room creation.
// Returns nil for unknown conversations.
func (sc *SkypeConnector) CreateRoom(ctx context.Context, accountID, roomSpec string) (*RoomInfo, error) {
	p := sc.getPuppet(accountID)
	if p == nil {
		return nil, fmt.Errorf("no such account: %s", accountID)
	}
	conv, err := p.session.GetConversation(ctx, roomSpec)
	if err != nil || conv == nil {
		return nil, err
	}
	return roomInfoFor(p, conv), nil
}

func roomInfoFor(p *puppet, conv *skypeweb.Conversation) *RoomInfo {
	info := &RoomInfo{
		Name:      conv.Topic,
		AvatarURL: conv.AvatarURL,
		IsDirect:  conv.IsDirect,
		RoomSpec:  conv.ID,
	}
	if conv.IsDirect {
		other := ""
		self := p.session.SelfID()
		for _, member := range conv.MemberIDs {
			if member != self {
				other = member
				break
			}
		}
		info.RoomSpec = MakeDMRoomID(p.account.ID, other)
	}
	return info
}

// ListUsers returns the account's contact list for provisioning.
func (sc *SkypeConnector) ListUsers(ctx context.Context, accountID string) ([]*UserInfo, error) {
	p := sc.getPuppet(accountID)
	if p == nil {
		return nil, fmt.Errorf("no such account: %s", accountID)
	}
	contacts, err := p.session.remote.GetContacts(ctx, false)
	if err != nil {
		return nil, err
	}
	users := make([]*UserInfo, len(contacts))
	for i, contact := range contacts {
		users[i] = &UserInfo{
			UserID:    contact.ID,
			Name:      contact.DisplayName,
			AvatarURL: contact.AvatarURL,
		}
	}
	return users, nil
}

// ListRooms returns nil: the remote network has no conversation list
// endpoint, rooms appear as their first message arrives.
func (sc *SkypeConnector) ListRooms(ctx context.Context, accountID string) ([]*RoomInfo, error) {
	return nil, nil
}

// GetUserIDsInRoom returns the remote member ids of a conversation.
func (sc *SkypeConnector) GetUserIDsInRoom(ctx context.Context, accountID, roomSpec string) ([]string, error) {
	p := sc.getPuppet(accountID)
	if p == nil {
		return nil, fmt.Errorf("no such account: %s", accountID)
	}
	conv, err := p.session.GetConversation(ctx, roomSpec)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("unknown conversation for room %s", roomSpec)
	}
	return conv.MemberIDs, nil
}

// GetDMRoomID maps a remote user id to the account-scoped direct room spec.
func (sc *SkypeConnector) GetDMRoomID(accountID, userID string) string {
	return MakeDMRoomID(accountID, skypeweb.NormalizeUserID(userID))
}

// GetDescription identifies the connector to the home framework.
func (sc *SkypeConnector) GetDescription() (name, protocol string) {
	return "Skype (web)", "skype"
}
