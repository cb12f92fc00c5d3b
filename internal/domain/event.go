package domain

// HostEventType identifies a host-delivered browser event.
type HostEventType string

const (
	EventTabActivated HostEventType = "TAB_ACTIVATED"
	EventTabUpdated   HostEventType = "TAB_UPDATED"
	EventIdleChanged  HostEventType = "IDLE_STATE_CHANGED"
	EventStartup      HostEventType = "STARTUP"
	EventInstalled    HostEventType = "INSTALLED"
	EventSetTracking  HostEventType = "ENABLE_TRACKING"
)

// HostEvent is one decoded message from the browser shim. Only the fields
// relevant to the event type are populated.
type HostEvent struct {
	Type HostEventType

	// Tab events. Status is "complete" when a page finished loading;
	// URLChanged marks a navigation to a different URL within the tab.
	TabID      int
	URL        string
	Title      string
	Status     string
	URLChanged bool

	// Idle events.
	State IdleState

	// ENABLE_TRACKING command.
	Enabled bool
}
