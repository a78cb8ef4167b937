package session

// ExpandMode decides who owns a widget's expanded flag.
type ExpandMode interface {
	isExpandMode()
}

// Controlled widgets report expand and collapse requests through OnChange
// and only change when the owner calls SyncExpanded.
type Controlled struct {
	Value    bool
	OnChange func(expanded bool)
}

// Uncontrolled widgets keep their own flag, starting at Initial.
type Uncontrolled struct {
	Initial bool
}

func (Controlled) isExpandMode()   {}
func (Uncontrolled) isExpandMode() {}

// expander is an ExpandMode resolved once at construction.
type expander struct {
	controlled bool
	onChange   func(bool)
}

func resolveExpand(mode ExpandMode) (expander, bool) {
	switch m := mode.(type) {
	case Controlled:
		return expander{controlled: true, onChange: m.OnChange}, m.Value
	case Uncontrolled:
		return expander{}, m.Initial
	}
	return expander{}, false
}
