package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // digit shortcuts, drawn in NumericKeyColor
}

// Component is a page the app can push onto the stack.
type Component interface {
	tview.Primitive
	// Name is the page name and breadcrumb label.
	Name() string
	// FocusTarget is the widget that takes focus when the page is shown.
	FocusTarget() tview.Primitive
}
