package gateway

import (
	"encoding/json"
	"strings"
)

// Command is the closed set of inbound frame kinds.
type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandDisconnect  Command = "DISCONNECT"
)

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	switch c {
	case CommandConnect, CommandSubscribe, CommandUnsubscribe, CommandSend, CommandDisconnect:
		return true
	}
	return false
}

// InboundFrame is one client frame. Which fields matter depends on Command.
type InboundFrame struct {
	Command   Command `json:"command"`
	Token     string  `json:"token,omitempty"`
	RequestID uint    `json:"request_id,omitempty"`
	Text      string  `json:"text,omitempty"`
	Receipt   string  `json:"receipt,omitempty"`
}

// ParseFrame decodes a frame. Command matching is case-insensitive.
func ParseFrame(raw []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	f.Command = Command(strings.ToUpper(strings.TrimSpace(string(f.Command))))
	return &f, nil
}
