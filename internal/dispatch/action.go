package dispatch

import "github.com/nidhogg/weatherbot/internal/gateway"

// ActionKind selects what the router does with an Action.
type ActionKind int

const (
	// ActionNone means the message is ignored.
	ActionNone ActionKind = iota
	// ActionSendText sends Body without reacting to the trigger.
	ActionSendText
	// ActionSendTextAndAcknowledge reacts to the trigger, then sends Body.
	ActionSendTextAndAcknowledge
	// ActionAcknowledge only reacts to the trigger.
	ActionAcknowledge
)

func (k ActionKind) String() string {
	switch k {
	case ActionNone:
		return "none"
	case ActionSendText:
		return "send_text"
	case ActionSendTextAndAcknowledge:
		return "send_text_and_acknowledge"
	case ActionAcknowledge:
		return "acknowledge"
	}
	return "unknown"
}

// Outbound is a message to a conversation other than the trigger's.
type Outbound struct {
	Conversation gateway.Conversation
	Body         string
}

// Action is the engine's decision for one inbound message.
type Action struct {
	Kind         ActionKind
	Conversation gateway.Conversation
	MessageID    string
	Body         string
	// Relay messages are delivered before Body.
	Relay []Outbound
}

func noAction() Action { return Action{Kind: ActionNone} }

func reply(msg *gateway.TextMessage, body string, relay []Outbound) Action {
	return Action{
		Kind:         ActionSendTextAndAcknowledge,
		Conversation: msg.Conversation,
		MessageID:    msg.MessageID,
		Body:         body,
		Relay:        relay,
	}
}
