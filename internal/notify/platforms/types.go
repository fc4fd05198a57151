package platforms

import "context"

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is one rendered notification. PanelKey, when set, asks adapters that
// support it to edit a single message in place instead of posting a new one.
type Message struct {
	PanelKey    string
	Title       string
	Content     string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []Field
	// Data is the raw event for adapters that post structured JSON.
	Data any
}

type Adapter interface {
	Name() string
	Send(ctx context.Context, endpoint, secret string, msg Message) error
}

// PanelForgetter is implemented by adapters that keep per-panel message ids.
type PanelForgetter interface {
	ForgetPanel(endpoint, panelKey string)
}
