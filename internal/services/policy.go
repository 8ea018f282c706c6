package services

import (
	"chatwave-backend/internal/models"
)

// Policy decides who may change an existing message. Sending is always
// limited to participants and is not part of the policy.
type Policy interface {
	CanEdit(actorID string, conv *models.Conversation, msg *models.Message) bool
	CanDelete(actorID string, conv *models.Conversation, msg *models.Message) bool
	CanStar(actorID string, conv *models.Conversation, msg *models.Message) bool
}

// AuthorOnly lets authors edit and delete their own messages and any
// participant star any message.
type AuthorOnly struct{}

func (AuthorOnly) CanEdit(actorID string, conv *models.Conversation, msg *models.Message) bool {
	return msg.UserID == actorID && conv.HasParticipant(actorID)
}

func (AuthorOnly) CanDelete(actorID string, conv *models.Conversation, msg *models.Message) bool {
	return msg.UserID == actorID && conv.HasParticipant(actorID)
}

func (AuthorOnly) CanStar(actorID string, conv *models.Conversation, _ *models.Message) bool {
	return conv.HasParticipant(actorID)
}

// Permissive allows any authenticated caller to change any message.
type Permissive struct{}

func (Permissive) CanEdit(string, *models.Conversation, *models.Message) bool   { return true }
func (Permissive) CanDelete(string, *models.Conversation, *models.Message) bool { return true }
func (Permissive) CanStar(string, *models.Conversation, *models.Message) bool   { return true }

// PolicyByName maps the AUTH_POLICY setting to a policy.
func PolicyByName(name string) Policy {
	if name == "permissive" {
		return Permissive{}
	}
	return AuthorOnly{}
}
