// Package wizard holds the view state of the character builder and wires
// edits to the draft store, the save providers and the sync orchestrator.
package wizard

import "fmt"

// Step identifies a wizard screen.
type Step string

const (
	StepBasics     Step = "basics"
	StepAttributes Step = "attributes"
	StepSkills     Step = "skills"
	StepGear       Step = "gear"
	StepReview     Step = "review"
)

// StepInfo describes one step.
type StepInfo struct {
	ID    Step   `json:"id"`
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

// Steps lists the wizard steps in order.
var Steps = []StepInfo{
	{ID: StepBasics, Label: "Basics", Hint: "Who are they?"},
	{ID: StepAttributes, Label: "Attributes", Hint: "Core stats"},
	{ID: StepSkills, Label: "Skills", Hint: "Focus and ranks"},
	{ID: StepGear, Label: "Gear", Hint: "Loadout"},
	{ID: StepReview, Label: "Review", Hint: "Summary"},
}

// Index returns the position of s in Steps, or -1.
func (s Step) Index() int {
	for i, info := range Steps {
		if info.ID == s {
			return i
		}
	}
	return -1
}

// ParseStep accepts a step id or its 1-based position.
func ParseStep(v string) (Step, error) {
	for i, info := range Steps {
		if string(info.ID) == v || fmt.Sprint(i+1) == v {
			return info.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStep, v)
}
