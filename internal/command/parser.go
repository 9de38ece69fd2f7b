package command

import (
	"regexp"
	"strings"
)

// Kind classifies an incoming message.
type Kind int

const (
	KindNotACommand Kind = iota
	KindRecognized
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindRecognized:
		return "recognized"
	case KindUnknown:
		return "unknown"
	case KindNotACommand:
		return "not_a_command"
	default:
		return "invalid"
	}
}

// ParsedMessage is the structured form of one incoming text message.
type ParsedMessage struct {
	Kind Kind
	// Name is the canonical command name; set only for KindRecognized.
	Name string
	// Token is the lower-cased command word for KindRecognized and KindUnknown.
	Token string
	// Trailing is the argument text for KindRecognized, or the whole message
	// for KindNotACommand. Always empty for KindUnknown.
	Trailing string
	Raw      string
}

// "/" + word characters, then optionally one space and the remainder.
var commandRe = regexp.MustCompile(`(?s)^/(\w+)(?: (.*))?`)

// Parse classifies raw against the registry.
func Parse(reg *Registry, raw string) ParsedMessage {
	m := commandRe.FindStringSubmatch(raw)
	if m == nil {
		return ParsedMessage{Kind: KindNotACommand, Trailing: raw, Raw: raw}
	}

	token := strings.ToLower(m[1])
	def, ok := reg.Resolve(token)
	if !ok {
		return ParsedMessage{Kind: KindUnknown, Token: token, Raw: raw}
	}

	trailing := ""
	if def.TakesArgument {
		trailing = strings.TrimSpace(m[2])
	}
	return ParsedMessage{
		Kind:     KindRecognized,
		Name:     def.Name,
		Token:    token,
		Trailing: trailing,
		Raw:      raw,
	}
}
