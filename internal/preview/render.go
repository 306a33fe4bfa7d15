package preview

// Panel is the content of the preview panel.
type Panel struct {
	Visible     bool
	Title       string
	Description string
	ImageURL    string
}

// Effects is everything a View writes for one State.
type Effects struct {
	Fields  Fields
	Panel   Panel
	Message string
	Phase   Phase
}

// Render maps a State to UI effects. A hidden panel renders empty.
func Render(s State) Effects {
	e := Effects{
		Fields:  s.Fields,
		Message: s.Message,
		Phase:   s.Phase,
	}
	if s.PreviewVisible {
		e.Panel = Panel{
			Visible:     true,
			Title:       s.Fields.Title,
			Description: s.Fields.Description,
			ImageURL:    s.Fields.Image,
		}
	}
	return e
}

// View applies rendered effects to a form.
type View interface {
	Apply(Effects)
}

// ViewFunc adapts a function to View.
type ViewFunc func(Effects)

// Apply calls f(e).
func (f ViewFunc) Apply(e Effects) { f(e) }
