package constants

// MessageType is the discriminant carried by every cross-context message.
type MessageType string

const (
	// ExtractPageContentMessage asks a page listener to extract, call the remote
	// extractor and write the handoff cache.
	ExtractPageContentMessage MessageType = "EXTRACT_PAGE_CONTENT"
	// GetPageDataMessage returns the page snapshot without calling the remote extractor.
	GetPageDataMessage MessageType = "GET_PAGE_DATA"
	// PingMessage checks whether a page listener is installed.
	PingMessage MessageType = "PING"

	OpenPopupMessage            MessageType = "OPEN_POPUP"
	OpenPopupWithContentMessage MessageType = "OPEN_POPUP_WITH_CONTENT"
	GetCurrentTabMessage        MessageType = "GET_CURRENT_TAB"
	ExtractJobMessage           MessageType = "EXTRACT_JOB"
	// ReloadExtensionMessage is only served by development builds.
	ReloadExtensionMessage MessageType = "RELOAD_EXTENSION"

	// ExtractionCompletedMessage is pushed to the interactive surface after a
	// handoff cache write.
	ExtractionCompletedMessage MessageType = "EXTRACTION_COMPLETED"
)

// ContextMenuExtract is the id of the page context-menu entry that triggers extraction.
const ContextMenuExtract = "covercraft-extract"
