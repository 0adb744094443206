// Package services – StatsService
//
// StatsService feeds the admin dashboard. Aggregate is a pure function over
// complaint projections so it can be tested without a database.
package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
)

// UnknownBucket is the key used when a dimension value is empty.
const UnknownBucket = "Unknown"

// DailyCount is the number of complaints filed on one calendar day.
type DailyCount struct {
	Date  string `json:"date" example:"2025-01-31"`
	Count int64  `json:"count"`
}

// Stats is the dashboard summary.
type Stats struct {
	Total          int64            `json:"total"`
	ByStatus       map[string]int64 `json:"by_status"`
	ByDistrict     map[string]int64 `json:"by_district"`
	BySeverity     map[string]int64 `json:"by_severity"`
	ByIssueType    map[string]int64 `json:"by_type"`
	ByDepartment   map[string]int64 `json:"by_department"`
	Resolved       int64            `json:"resolved"`
	ResolutionRate float64          `json:"resolution_rate"`
	// DepartmentResolution is the resolved share per department.
	DepartmentResolution map[string]float64 `json:"department_resolution"`
	// Daily counts complaints per day in the configured time zone, oldest first.
	Daily []DailyCount `json:"daily"`
}

func bucket(v string) string {
	if strings.TrimSpace(v) == "" {
		return UnknownBucket
	}
	return v
}

// Aggregate summarizes rows. Missing dimension values count as "Unknown";
// the resolution rate is 0 when there are no rows.
func Aggregate(rows []repo.StatsRow, loc *time.Location) Stats {
	if loc == nil {
		loc = time.UTC
	}
	st := Stats{
		ByStatus:             map[string]int64{},
		ByDistrict:           map[string]int64{},
		BySeverity:           map[string]int64{},
		ByIssueType:          map[string]int64{},
		ByDepartment:         map[string]int64{},
		DepartmentResolution: map[string]float64{},
		Daily:                []DailyCount{},
	}
	deptResolved := map[string]int64{}
	daily := map[string]int64{}

	for _, r := range rows {
		st.Total++
		st.ByStatus[bucket(r.Status)]++
		st.ByDistrict[bucket(r.District)]++
		st.BySeverity[bucket(r.Severity)]++
		st.ByIssueType[bucket(r.IssueType)]++
		dept := bucket(r.Department)
		st.ByDepartment[dept]++
		if r.Status == string(domain.StatusResolved) {
			st.Resolved++
			deptResolved[dept]++
		}
		if !r.CreatedAt.IsZero() {
			daily[r.CreatedAt.In(loc).Format("2006-01-02")]++
		}
	}

	if st.Total > 0 {
		st.ResolutionRate = float64(st.Resolved) / float64(st.Total)
	}
	for dept, n := range st.ByDepartment {
		st.DepartmentResolution[dept] = float64(deptResolved[dept]) / float64(n)
	}
	for day, n := range daily {
		st.Daily = append(st.Daily, DailyCount{Date: day, Count: n})
	}
	sort.Slice(st.Daily, func(i, j int) bool { return st.Daily[i].Date < st.Daily[j].Date })
	return st
}

// StatsService computes dashboard statistics.
type StatsService struct {
	DB       *gorm.DB
	Location *time.Location
}

// Stats aggregates every complaint matching f.
func (s *StatsService) Stats(ctx context.Context, f ListFilter) (Stats, error) {
	ctx, span := otel.Tracer("services/StatsService").Start(ctx, "Stats")
	defer span.End()

	rf, err := f.toRepo()
	if err != nil {
		return Stats{}, err
	}
	rows, err := repo.ListAllForStats(ctx, s.DB, rf)
	if err != nil {
		return Stats{}, err
	}
	return Aggregate(rows, s.Location), nil
}
