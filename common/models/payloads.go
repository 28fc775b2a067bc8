package models

// ExtractionRequest is the payload of EXTRACT_PAGE_CONTENT. Requests sent
// without an id (context menu) get one assigned by the page listener.
type ExtractionRequest struct {
	RequestID string `json:"requestId,omitempty"`
}

// ExtractionNotice is pushed to the interactive surface once the handoff
// cache holds the result of RequestID.
type ExtractionNotice struct {
	RequestID  string   `json:"requestId"`
	TabID      int      `json:"tabId"`
	Confidence float64  `json:"confidence"`
	PageType   PageType `json:"pageType"`
}

// ExtractJobRequest is the payload of EXTRACT_JOB. A zero TabID means the active tab.
type ExtractJobRequest struct {
	TabID int `json:"tabId,omitempty"`
}
