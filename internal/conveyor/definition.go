// Package conveyor defines the domain model of the workflow engine:
// versioned workflow definitions, workflow instances, and the variable
// value union shared by both.
package conveyor

// DefaultOutcome is the connection outcome followed when an activity
// result does not name one.
const DefaultOutcome = "done"

// ActivityDefinition is one node of a workflow graph. Properties are
// free-form activity configuration interpreted by the executor for
// the activity's type.
type ActivityDefinition struct {
	ID         string         `json:"id" yaml:"id"`
	Type       string         `json:"type" yaml:"type"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Connection is a directed edge between two activities. Outcome selects
// which result outcome traverses it (DefaultOutcome when empty). When is
// an optional expression evaluated against the instance variables; a
// false result skips the connection.
type Connection struct {
	Source  string `json:"source" yaml:"source"`
	Target  string `json:"target" yaml:"target"`
	Outcome string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	When    string `json:"when,omitempty" yaml:"when,omitempty"`
}

// WorkflowDefinitionVersion is an immutable-once-published snapshot of a
// process template. All versions sharing a DefinitionID form one family;
// at most one row per family is the latest and at most one is published.
type WorkflowDefinitionVersion struct {
	ID           string               `json:"id" yaml:"id"`
	DefinitionID string               `json:"definitionId" yaml:"definitionId"`
	Name         string               `json:"name" yaml:"name"`
	Description  string               `json:"description,omitempty" yaml:"description,omitempty"`
	Version      int                  `json:"version" yaml:"version"`
	IsLatest     bool                 `json:"isLatest" yaml:"isLatest"`
	IsPublished  bool                 `json:"isPublished" yaml:"isPublished"`
	IsSingleton  bool                 `json:"isSingleton" yaml:"isSingleton"`
	IsDisabled   bool                 `json:"isDisabled" yaml:"isDisabled"`
	Activities   []ActivityDefinition `json:"activities" yaml:"activities"`
	Connections  []Connection         `json:"connections,omitempty" yaml:"connections,omitempty"`

	// Rev is the optimistic concurrency token maintained by stores.
	Rev int64 `json:"-" yaml:"-"`
}

// Clone returns a deep copy. The lifecycle manager never mutates a
// caller's row; it clones first.
func (d *WorkflowDefinitionVersion) Clone() *WorkflowDefinitionVersion {
	cp := *d
	cp.Activities = make([]ActivityDefinition, len(d.Activities))
	for i, a := range d.Activities {
		cp.Activities[i] = a
		if a.Properties != nil {
			props := make(map[string]any, len(a.Properties))
			for k, v := range a.Properties {
				props[k] = v
			}
			cp.Activities[i].Properties = props
		}
	}
	cp.Connections = append([]Connection(nil), d.Connections...)
	return &cp
}

// Activity returns the activity definition with the given id, or nil.
func (d *WorkflowDefinitionVersion) Activity(id string) *ActivityDefinition {
	for i := range d.Activities {
		if d.Activities[i].ID == id {
			return &d.Activities[i]
		}
	}
	return nil
}

// StartActivities returns the ids of activities with no inbound
// connection, in declaration order. Graph traversal begins there.
func (d *WorkflowDefinitionVersion) StartActivities() []string {
	inbound := make(map[string]bool, len(d.Connections))
	for _, c := range d.Connections {
		inbound[c.Target] = true
	}
	var starts []string
	for _, a := range d.Activities {
		if !inbound[a.ID] {
			starts = append(starts, a.ID)
		}
	}
	return starts
}

// Outbound returns the connections leaving the given activity with a
// matching outcome, in declaration order.
func (d *WorkflowDefinitionVersion) Outbound(activityID, outcome string) []Connection {
	if outcome == "" {
		outcome = DefaultOutcome
	}
	var out []Connection
	for _, c := range d.Connections {
		co := c.Outcome
		if co == "" {
			co = DefaultOutcome
		}
		if c.Source == activityID && co == outcome {
			out = append(out, c)
		}
	}
	return out
}

// VersionSelectorKind discriminates VersionSelector.
type VersionSelectorKind int

const (
	SelectLatest VersionSelectorKind = iota
	SelectPublished
	SelectSpecific
)

// VersionSelector picks one version out of a definition family. It is a
// query parameter, never stored.
type VersionSelector struct {
	Kind    VersionSelectorKind
	Version int
}

func Latest() VersionSelector { return VersionSelector{Kind: SelectLatest} }
func Published() VersionSelector { return VersionSelector{Kind: SelectPublished} }
func Specific(n int) VersionSelector { return VersionSelector{Kind: SelectSpecific, Version: n} }

// Matches reports whether the definition row satisfies the selector.
func (s VersionSelector) Matches(d *WorkflowDefinitionVersion) bool {
	switch s.Kind {
	case SelectLatest:
		return d.IsLatest
	case SelectPublished:
		return d.IsPublished
	case SelectSpecific:
		return d.Version == s.Version
	}
	return false
}
