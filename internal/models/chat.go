package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of the conversation about a Document.
type ChatMessage struct {
	ID             string    `firestore:"-" json:"id"`
	DocumentID     string    `firestore:"documentId" json:"documentId"`
	UserID         string    `firestore:"userId" json:"userId"`
	Role           Role      `firestore:"role" json:"role"`
	Content        string    `firestore:"content" json:"content"`
	PageReferences []int     `firestore:"pageReferences,omitempty" json:"pageReferences,omitempty"`
	Model          string    `firestore:"model,omitempty" json:"model,omitempty"`
	TokensUsed     int       `firestore:"tokensUsed,omitempty" json:"tokensUsed,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt" json:"createdAt"`
}
