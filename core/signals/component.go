package signals

// KindComponentRender identifies a render request.
const KindComponentRender Kind = "component.render"

// ComponentKind names what should be rendered. Actions may use their own
// kinds for custom components.
type ComponentKind string

const (
	ComponentUserMessage      ComponentKind = "user_message"
	ComponentAssistantMessage ComponentKind = "assistant_message"
)

// Input is a single named value passed to a rendered component.
type Input struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Component describes something the presentation layer should render.
type Component struct {
	Kind   ComponentKind `json:"kind"`
	Inputs []Input       `json:"inputs,omitempty"`
	// Index is the position to insert the component at, nil means append.
	Index *int `json:"index,omitempty"`
}

// MessageComponent creates a component with a single "content" input.
func MessageComponent(kind ComponentKind, content string) Component {
	return Component{Kind: kind, Inputs: []Input{{Name: "content", Value: content}}}
}

// Input returns the value of the named input.
func (c Component) Input(name string) (any, bool) {
	for _, input := range c.Inputs {
		if input.Name == name {
			return input.Value, true
		}
	}
	return nil, false
}

// Content returns the "content" input when it is a string.
func (c Component) Content() string {
	value, ok := c.Input("content")
	if !ok {
		return ""
	}
	content, _ := value.(string)
	return content
}

// ComponentRender requests rendering of a component.
type ComponentRender struct {
	Base
	TurnID    string    `json:"turn_id,omitempty"`
	Component Component `json:"component"`
}

// NewComponentRender creates a component render signal.
func NewComponentRender(turnID string, component Component) ComponentRender {
	return ComponentRender{Base: NewBase(KindComponentRender), TurnID: turnID, Component: component}
}
