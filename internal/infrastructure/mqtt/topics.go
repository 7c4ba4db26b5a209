package mqtt

import "strings"

// Topics holds the bridge prefix for the topics this package publishes
// itself. SMS and health topics belong to the airlink bridge.
type Topics struct {
	Prefix string
}

// NewTopics returns Topics for prefix with any trailing slash removed.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimRight(prefix, "/")}
}

// Status carries the retained online/offline status and the LWT.
func (t Topics) Status() string {
	return t.Prefix + "/status"
}
