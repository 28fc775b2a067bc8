package constants

import "fmt"

const (
	// BackgroundEndpoint is the long-lived coordinator context.
	BackgroundEndpoint = "background"
	// PopupEndpoint is the interactive surface while it is open.
	PopupEndpoint = "popup"
	// contentEndpointPrefix is suffixed with the tab id of the page listener.
	contentEndpointPrefix = "content"
)

// ContentEndpoint returns the endpoint of the page listener attached to tabID.
func ContentEndpoint(tabID int) string {
	return fmt.Sprintf("%s.%d", contentEndpointPrefix, tabID)
}

// Subject maps an endpoint onto a NATS subject under prefix.
func Subject(prefix, endpoint string) string {
	if prefix == "" {
		return endpoint
	}
	return prefix + "." + endpoint
}
