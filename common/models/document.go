package models

import "time"

type Resume struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CoverLetter struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	JobID       string    `json:"jobId"`
	JobTitle    string    `json:"jobTitle"`
	Company     string    `json:"company"`
	Content     string    `json:"content"`
	CreditsUsed int       `json:"creditsUsed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type GenerateFromContentRequest struct {
	JobContent      ExtractedContent `json:"jobContent"`
	ResumeID        string           `json:"resumeId"`
	Tone            string           `json:"tone,omitempty"`
	Length          string           `json:"length,omitempty"`
	AdditionalNotes string           `json:"additionalNotes,omitempty"`
}

// GenerateResponse carries the generated text and the balance after the
// server applied its own debit.
type GenerateResponse struct {
	Content          string `json:"content"`
	RemainingCredits int    `json:"remainingCredits"`
}

type BillingSession struct {
	URL string `json:"url"`
}
