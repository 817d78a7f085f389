package models

import "time"

// SurveyResponse is one free-text health survey answer.
type SurveyResponse struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	RecordNumber string    `bson:"recordNumber" json:"recordNumber"`
	Answer       string    `bson:"answer" json:"answer"`
	SubmittedAt  time.Time `bson:"submittedAt" json:"submittedAt"`
}

// ExamSubmission references the rendered exam document stored under
// <record number>/<Document> in the blob store.
type ExamSubmission struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	RecordNumber string    `bson:"recordNumber" json:"recordNumber"`
	Document     string    `bson:"document" json:"document"`
	SubmittedAt  time.Time `bson:"submittedAt" json:"submittedAt"`
}

// UploadedDocument is a file uploaded by the student. StoredName is the
// generated blob name, OriginalName is what the user sees.
type UploadedDocument struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	RecordNumber string    `bson:"recordNumber" json:"recordNumber"`
	StoredName   string    `bson:"storedName" json:"storedName"`
	OriginalName string    `bson:"originalName" json:"originalName"`
	URL          string    `bson:"url,omitempty" json:"url,omitempty"`
	SubmittedAt  time.Time `bson:"submittedAt" json:"submittedAt"`
}
