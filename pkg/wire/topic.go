package wire

import (
	"errors"
	"strings"
)

// DefaultBaseTopic is the topic prefix used when none is configured.
const DefaultBaseTopic = "rslogger/audio"

// Channel is the last topic segment, naming the message kind.
type Channel string

const (
	ChannelCommand  Channel = "command"
	ChannelStatus   Channel = "status"
	ChannelResponse Channel = "response"
	ChannelData     Channel = "data"
)

// IsValid returns true if the channel is defined.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelCommand, ChannelStatus, ChannelResponse, ChannelData:
		return true
	}
	return false
}

// ErrInvalidTopic is returned by ParseTopic for topics outside the layout.
var ErrInvalidTopic = errors.New("invalid topic")

// Topics builds topic names for one base prefix.
type Topics struct {
	Base string
}

// NewTopics returns a builder for base, trimming stray slashes.
// An empty base selects DefaultBaseTopic.
func NewTopics(base string) Topics {
	base = strings.Trim(base, "/")
	if base == "" {
		base = DefaultBaseTopic
	}
	return Topics{Base: base}
}

// Module returns the topic for a module's channel.
func (t Topics) Module(moduleID string, ch Channel) string {
	return t.Base + "/" + moduleID + "/" + string(ch)
}

// Command returns the command topic of a module.
func (t Topics) Command(moduleID string) string { return t.Module(moduleID, ChannelCommand) }

// Status returns the status topic of a module.
func (t Topics) Status(moduleID string) string { return t.Module(moduleID, ChannelStatus) }

// Response returns the response topic of a module.
func (t Topics) Response(moduleID string) string { return t.Module(moduleID, ChannelResponse) }

// Data returns the data topic of a module.
func (t Topics) Data(moduleID string) string { return t.Module(moduleID, ChannelData) }

// AllModules returns the single-level wildcard pattern for a channel of every
// module.
func (t Topics) AllModules(ch Channel) string {
	return t.Base + "/+/" + string(ch)
}

// Parse splits a concrete topic into module id and channel.
func (t Topics) Parse(topic string) (moduleID string, ch Channel, err error) {
	rest, ok := strings.CutPrefix(topic, t.Base+"/")
	if !ok {
		return "", "", ErrInvalidTopic
	}
	moduleID, last, ok := strings.Cut(rest, "/")
	if !ok || moduleID == "" || strings.Contains(last, "/") {
		return "", "", ErrInvalidTopic
	}
	ch = Channel(last)
	if !ch.IsValid() {
		return "", "", ErrInvalidTopic
	}
	return moduleID, ch, nil
}

// ValidModuleID returns true if id can be used as a single topic level.
func ValidModuleID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+#")
}
