package service

import (
	"math"
	"sort"

	"github.com/98iam/classtrack-api/internal/models"
)

// resolveDailyStatus collapses ledger rows to one status per distinct
// calendar day. When duplicate rows exist for the same day, "present" wins
// over "absent": a student is credited as attending if any record for that
// day says so.
func resolveDailyStatus(records []models.AttendanceRecord) map[string]models.AttendanceStatus {
	byDay := make(map[string]models.AttendanceStatus, len(records))
	for _, rec := range records {
		day := rec.Day()
		if existing, ok := byDay[day]; !ok || existing != models.AttendanceStatusPresent {
			byDay[day] = rec.Status
		}
	}
	return byDay
}

// computeDerivedStats projects a student's full ledger history onto the
// four derived counters. It is a pure function of the ledger, so running
// it repeatedly over unchanged history always yields the same result.
func computeDerivedStats(records []models.AttendanceRecord) models.DerivedStats {
	byDay := resolveDailyStatus(records)

	stats := models.DerivedStats{TotalClasses: len(byDay)}
	for _, status := range byDay {
		if status == models.AttendanceStatusPresent {
			stats.PresentClasses++
		}
	}
	if stats.TotalClasses > 0 {
		stats.AttendancePercentage = int(math.Round(float64(stats.PresentClasses) / float64(stats.TotalClasses) * 100))
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	for _, day := range days {
		if byDay[day] != models.AttendanceStatusAbsent {
			break
		}
		stats.ConsecutiveAbsences++
	}

	return stats
}
