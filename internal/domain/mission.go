package domain

import "time"

// MissionStatus enumerates mission lifecycle states. Transitions only move forward.
type MissionStatus string

const (
	MissionDraft    MissionStatus = "draft"
	MissionQueried  MissionStatus = "queried"
	MissionAnalyzed MissionStatus = "analyzed"
	MissionAssigned MissionStatus = "assigned"
)

var missionStatusRank = map[MissionStatus]int{
	MissionDraft:    0,
	MissionQueried:  1,
	MissionAnalyzed: 2,
	MissionAssigned: 3,
}

// Mission groups the tickets produced by one tracker query.
type Mission struct {
	ID                    string
	Name                  string
	Status                MissionStatus
	JQLQuery              string
	TotalAssignedCount    int
	FailedAssignmentCount int
	AssignedAt            *time.Time
	AssignmentCompletedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Advance moves the mission to next when next is further along; it never moves backwards.
func (m *Mission) Advance(next MissionStatus) bool {
	target, ok := missionStatusRank[next]
	if !ok {
		return false
	}
	if target <= missionStatusRank[m.Status] {
		return false
	}
	m.Status = next
	return true
}
