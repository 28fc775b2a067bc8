package popup

import "errors"

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotReady            = errors.New("extraction or resume missing")
	ErrExtraction          = errors.New("extraction failed")
	ErrGeneration          = errors.New("generation failed")
	ErrUpload              = errors.New("resume upload failed")
	ErrAuthentication      = errors.New("authentication failed")
)

// Messages rendered to the user.
const (
	MsgInsufficientCredits = "Insufficient credits. Please upgrade your plan."
	MsgNotReady            = "Please extract content and select a resume first."
	MsgExtractionFailed    = "Failed to extract content. Make sure you're on the page you want to extract from."
	MsgGenerationFailed    = "Failed to generate cover letter. Please try again."
	MsgUploadFailed        = "Failed to upload resume. Please try again."
	MsgAuthFailed          = "Authentication failed"
)

// Failure carries the static message shown to the user and matches its
// kind with errors.Is. The underlying cause is logged where it occurs.
type Failure struct {
	Kind    error
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Is(target error) bool {
	return target == f.Kind
}

func failure(kind error, msg string) *Failure {
	return &Failure{Kind: kind, Message: msg}
}
