package models

import (
	"fmt"
	"time"
)

// Status is the processing state of an uploaded Document.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// transitions lists the allowed next states for each state. ready -> processing
// is only reachable through an explicit re-extraction request.
var transitions = map[Status][]Status{
	StatusUploading:  {StatusProcessing, StatusError},
	StatusProcessing: {StatusReady, StatusError},
	StatusReady:      {},
	StatusError:      {StatusProcessing},
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ValidateTransition returns an error when moving from -> to is not allowed.
// reextract permits ready -> processing.
func ValidateTransition(from, to Status, reextract bool) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("unknown document status transition %q -> %q", from, to)
	}
	if reextract && from == StatusReady && to == StatusProcessing {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid document status transition %q -> %q", from, to)
}

// Page is one page-addressable block of extracted text.
type Page struct {
	PageNumber int    `firestore:"pageNumber" json:"pageNumber"`
	Content    string `firestore:"content" json:"content"`
}

// Document represents an uploaded PDF and its extraction state in Firestore.
type Document struct {
	ID               string    `firestore:"-" json:"id"`
	UserID           string    `firestore:"userId" json:"userId"`
	Title            string    `firestore:"title" json:"title"`
	OriginalFilename string    `firestore:"originalFilename" json:"originalFilename"`
	FileSize         int64     `firestore:"fileSize" json:"fileSize"`
	PageCount        int       `firestore:"pageCount" json:"pageCount"`
	StorageHandle    string    `firestore:"storageHandle" json:"storageHandle"`
	FileHash         string    `firestore:"fileHash" json:"-"`
	ExtractedText    []Page    `firestore:"extractedText" json:"extractedText,omitempty"`
	Status           Status    `firestore:"status" json:"status"`
	ErrorMessage     string    `firestore:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// HasText reports whether extraction produced at least one page.
func (d *Document) HasText() bool {
	return len(d.ExtractedText) > 0
}

// StatusUpdate is the patch applied together with a status transition.
// Nil fields are left untouched.
type StatusUpdate struct {
	ErrorMessage  *string
	ExtractedText []Page
	PageCount     *int
	Reextract     bool
}

// User maps an authenticated subject to an internal account and its tier.
type User struct {
	ID        string    `firestore:"-" json:"id"`
	Subject   string    `firestore:"subject" json:"-"`
	Tier      Tier      `firestore:"tier" json:"tier"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
}
