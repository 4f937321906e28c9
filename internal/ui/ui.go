// Package ui holds presentation state the host view renders declaratively.
// Nothing here touches the page; the view reads the state and reacts.
package ui

import "slices"

// Disclosure is a popup that opens on its trigger and closes on selection or
// on any interaction outside it.
type Disclosure struct {
	Expanded bool `json:"open"`
}

// Open shows the popup.
func (d *Disclosure) Open() { d.Expanded = true }

// Close hides the popup.
func (d *Disclosure) Close() { d.Expanded = false }

// Toggle flips the popup, as a click on its trigger does.
func (d *Disclosure) Toggle() { d.Expanded = !d.Expanded }

// IsOpen reports whether the popup is shown.
func (d *Disclosure) IsOpen() bool { return d.Expanded }

// DismissOutside handles an interaction outside the popup. It reports whether
// the popup was open and is now closed.
func (d *Disclosure) DismissOutside() bool {
	if !d.Expanded {
		return false
	}
	d.Expanded = false
	return true
}

// Select records a choice made inside the popup and closes it.
func (d *Disclosure) Select(apply func()) {
	if apply != nil {
		apply()
	}
	d.Expanded = false
}

// DisclosureAction names an operation on a Disclosure.
type DisclosureAction string

const (
	ActionOpen    DisclosureAction = "open"
	ActionClose   DisclosureAction = "close"
	ActionToggle  DisclosureAction = "toggle"
	ActionDismiss DisclosureAction = "dismiss"
)

// Apply performs a named action. Unknown actions are ignored and reported.
func (d *Disclosure) Apply(action DisclosureAction) bool {
	switch action {
	case ActionOpen:
		d.Open()
	case ActionClose:
		d.Close()
	case ActionToggle:
		d.Toggle()
	case ActionDismiss:
		d.DismissOutside()
	default:
		return false
	}
	return true
}

// ModalController tracks open modals, most recent last. The page body is
// scroll locked while any modal is open.
type ModalController struct {
	Stack []string `json:"stack,omitempty"`
}

// Open shows the named modal on top. Opening an already open modal moves it
// to the top.
func (m *ModalController) Open(name string) {
	m.Stack = slices.DeleteFunc(m.Stack, func(n string) bool { return n == name })
	m.Stack = append(m.Stack, name)
}

// Close hides the named modal. It reports whether the modal was open.
func (m *ModalController) Close(name string) bool {
	before := len(m.Stack)
	m.Stack = slices.DeleteFunc(m.Stack, func(n string) bool { return n == name })
	return len(m.Stack) != before
}

// CloseTop hides the topmost modal, as an escape key press does.
func (m *ModalController) CloseTop() (string, bool) {
	if len(m.Stack) == 0 {
		return "", false
	}
	top := m.Stack[len(m.Stack)-1]
	m.Stack = m.Stack[:len(m.Stack)-1]
	return top, true
}

// CloseAll hides every modal.
func (m *ModalController) CloseAll() { m.Stack = nil }

// IsOpen reports whether the named modal is shown.
func (m *ModalController) IsOpen(name string) bool {
	return slices.Contains(m.Stack, name)
}

// Top returns the topmost open modal.
func (m *ModalController) Top() string {
	if len(m.Stack) == 0 {
		return ""
	}
	return m.Stack[len(m.Stack)-1]
}

// ModalAction names an operation on a ModalController.
type ModalAction string

const (
	ModalOpen     ModalAction = "open"
	ModalClose    ModalAction = "close"
	ModalEscape   ModalAction = "escape"
	ModalCloseAll ModalAction = "close_all"
)

// Apply performs a named action. Open and close need a modal name; unknown
// actions and missing names are ignored and reported.
func (m *ModalController) Apply(action ModalAction, name string) bool {
	switch action {
	case ModalOpen, ModalClose:
		if name == "" {
			return false
		}
		if action == ModalOpen {
			m.Open(name)
		} else {
			m.Close(name)
		}
	case ModalEscape:
		m.CloseTop()
	case ModalCloseAll:
		m.CloseAll()
	default:
		return false
	}
	return true
}

// BodyScrollLocked reports whether the host page must stop scrolling.
func (m *ModalController) BodyScrollLocked() bool {
	return len(m.Stack) > 0
}
