package domain

import "fmt"

// ProjectIdentifier names a project, usually "workspace/project".
type ProjectIdentifier string

// SysID names a run within a project. It is stable for the run's lifetime.
type SysID string

// RunIdentifier uniquely identifies a run across projects.
type RunIdentifier struct {
	Project ProjectIdentifier
	SysID   SysID
}

// NewRunIdentifier creates a run identifier.
func NewRunIdentifier(project ProjectIdentifier, sysID SysID) RunIdentifier {
	return RunIdentifier{Project: project, SysID: sysID}
}

func (r RunIdentifier) String() string {
	return fmt.Sprintf("%s/%s", r.Project, r.SysID)
}

// AttributeDefinition identifies one logical attribute slot on a run.
// Two definitions sharing a name but not a type are distinct.
type AttributeDefinition struct {
	Name string
	Type AttributeType
}

func (d AttributeDefinition) String() string {
	return fmt.Sprintf("%s:%s", d.Name, d.Type)
}

// RunAttributeDefinition keys per-run per-attribute data such as series points.
type RunAttributeDefinition struct {
	Run       RunIdentifier
	Attribute AttributeDefinition
}

// SysIDs extracts the sys ids of runs, preserving order.
func SysIDs(runs []RunIdentifier) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = string(r.SysID)
	}
	return ids
}
