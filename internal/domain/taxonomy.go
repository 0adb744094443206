// Package domain defines the complaint taxonomy (issue types, severities,
// statuses and departments) and the GORM persistence models shared by the
// repository and service layers.
package domain

import "strings"

// IssueType is the closed taxonomy of civic problems a complaint can describe.
type IssueType string

const (
	IssueTypePothole           IssueType = "Pothole"
	IssueTypeGarbage           IssueType = "Garbage"
	IssueTypeWaterLeak         IssueType = "Water Leak"
	IssueTypeBrokenStreetlight IssueType = "Broken Streetlight"
	IssueTypeDamagedRoad       IssueType = "Damaged Road"
	IssueTypeIllegalDumping    IssueType = "Illegal Dumping"
	IssueTypeSewageOverflow    IssueType = "Sewage Overflow"
	IssueTypeOther             IssueType = "Other"
)

// Department names. Each issue type maps to exactly one of these.
const (
	DeptRoads       = "Roads & Highways Department"
	DeptSanitation  = "Sanitation & Waste Management"
	DeptWater       = "Water & Sewerage Authority"
	DeptElectricity = "Electricity Department"
	DeptGeneral     = "General Administration"
)

// Severity is the urgency tier of a complaint.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// Status is the lifecycle state of a complaint.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusUnderReview Status = "Under Review"
	StatusAssigned    Status = "Assigned"
	StatusInProgress  Status = "In Progress"
	StatusResolved    Status = "Resolved"
	StatusRejected    Status = "Rejected"
)

type issueInfo struct {
	department string
	severity   Severity
}

// issueTable is the fixed issue_type -> (department, default severity) map.
var issueTable = map[IssueType]issueInfo{
	IssueTypePothole:           {DeptRoads, SeverityHigh},
	IssueTypeGarbage:           {DeptSanitation, SeverityMedium},
	IssueTypeWaterLeak:         {DeptWater, SeverityHigh},
	IssueTypeBrokenStreetlight: {DeptElectricity, SeverityMedium},
	IssueTypeDamagedRoad:       {DeptRoads, SeverityHigh},
	IssueTypeIllegalDumping:    {DeptSanitation, SeverityMedium},
	IssueTypeSewageOverflow:    {DeptWater, SeverityHigh},
	IssueTypeOther:             {DeptGeneral, SeverityLow},
}

var issueOrder = []IssueType{
	IssueTypePothole,
	IssueTypeGarbage,
	IssueTypeWaterLeak,
	IssueTypeBrokenStreetlight,
	IssueTypeDamagedRoad,
	IssueTypeIllegalDumping,
	IssueTypeSewageOverflow,
	IssueTypeOther,
}

// AllIssueTypes returns the taxonomy in its canonical order.
func AllIssueTypes() []IssueType {
	out := make([]IssueType, len(issueOrder))
	copy(out, issueOrder)
	return out
}

// IsValid reports whether t is a member of the taxonomy.
func (t IssueType) IsValid() bool {
	_, ok := issueTable[t]
	return ok
}

// ParseIssueType matches s case-insensitively against the taxonomy.
// Unknown values yield (IssueTypeOther, false).
func ParseIssueType(s string) (IssueType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range issueOrder {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return IssueTypeOther, false
}

// DepartmentFor returns the department responsible for t. Unknown types are
// routed to General Administration.
func DepartmentFor(t IssueType) string {
	if info, ok := issueTable[t]; ok {
		return info.department
	}
	return DeptGeneral
}

// DefaultSeverity returns the keyword-rule severity for t.
func DefaultSeverity(t IssueType) Severity {
	if info, ok := issueTable[t]; ok {
		return info.severity
	}
	return SeverityLow
}

// IssueTypesFor returns the issue types routed to department, in canonical order.
func IssueTypesFor(department string) []IssueType {
	var out []IssueType
	for _, t := range issueOrder {
		if issueTable[t].department == department {
			out = append(out, t)
		}
	}
	return out
}

// Departments returns every distinct department name.
func Departments() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range issueOrder {
		d := issueTable[t].department
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// IsValid reports whether s is one of High, Medium, Low.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// ParseSeverity matches s case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	for _, v := range []Severity{SeverityHigh, SeverityMedium, SeverityLow} {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, true
		}
	}
	return "", false
}

var statusOrder = []Status{
	StatusPending,
	StatusUnderReview,
	StatusAssigned,
	StatusInProgress,
	StatusResolved,
	StatusRejected,
}

// transitions is the allowed status graph. Resolved and Rejected are terminal.
var transitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview, StatusAssigned, StatusRejected},
	StatusUnderReview: {StatusAssigned, StatusRejected},
	StatusAssigned:    {StatusInProgress, StatusRejected},
	StatusInProgress:  {StatusResolved, StatusRejected},
	StatusResolved:    {},
	StatusRejected:    {},
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// IsValid reports whether s is a member of the status enum.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// ParseStatus matches s exactly against the status enum.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.TrimSpace(s))
	if !st.IsValid() {
		return "", false
	}
	return st, true
}

// IsTerminal reports whether no transitions leave s.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether next is an edge out of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step.
func (s Status) NextStatuses() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}
