package models

import (
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// ExtractedContent is the normalized job-posting record returned by the remote extractor.
type ExtractedContent struct {
	Title        string            `json:"title"`
	Company      string            `json:"company"`
	Location     string            `json:"location"`
	Description  string            `json:"description"`
	Requirements []string          `json:"requirements"`
	Salary       mo.Option[string] `json:"salary"`
	Type         mo.Option[string] `json:"type"`
	PostedDate   mo.Option[string] `json:"postedDate"`
	URL          string            `json:"url"`
	Confidence   float64           `json:"confidence"`
}

// Normalize clamps the confidence into [0,1] and turns a missing requirement
// list into an empty one. Optional fields are left untouched.
func (c ExtractedContent) Normalize() ExtractedContent {
	c.Confidence = lo.Clamp(c.Confidence, 0, 1)
	if c.Requirements == nil {
		c.Requirements = []string{}
	}
	return c
}

// JobData is the job record as stored by the remote service.
type JobData struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Company      string            `json:"company"`
	Location     string            `json:"location"`
	Description  string            `json:"description"`
	Requirements []string          `json:"requirements"`
	Salary       mo.Option[string] `json:"salary"`
	Type         mo.Option[string] `json:"type"`
	PostedDate   mo.Option[string] `json:"postedDate"`
	URL          string            `json:"url"`
	UserID       string            `json:"userId"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Content projects the stored job onto the extraction record shape.
func (j JobData) Content(confidence float64) ExtractedContent {
	return ExtractedContent{
		Title:        j.Title,
		Company:      j.Company,
		Location:     j.Location,
		Description:  j.Description,
		Requirements: j.Requirements,
		Salary:       j.Salary,
		Type:         j.Type,
		PostedDate:   j.PostedDate,
		URL:          j.URL,
		Confidence:   confidence,
	}.Normalize()
}

// ExtractionResult is the response of the snapshot extraction endpoint.
type ExtractionResult struct {
	JobData    JobData `json:"jobData"`
	Confidence float64 `json:"confidence"`
}
