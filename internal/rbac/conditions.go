package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/medrex/hms-access/pkg/rbac"
)

// parseClock parses an "HH:MM" string into minutes after midnight
func parseClock(value string) (int, error) {
	t, err := time.Parse(rbac.TimeFormatHourMinute, value)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// constraintApplies reports whether cc governs a request for p by a holder of roles
func constraintApplies(cc rbac.ContextConstraint, p rbac.Permission, roles []rbac.Role) bool {
	if cc.Category != p.Category() {
		return false
	}
	if len(cc.Roles) == 0 {
		return true
	}
	for _, scoped := range cc.Roles {
		for _, held := range roles {
			if scoped == held {
				return true
			}
		}
	}
	return false
}

// evaluateConstraint returns the deny reason for the first failed condition, or "".
// Missing device or location metadata fails the matching condition.
func evaluateConstraint(cc rbac.ContextConstraint, device, location string, at time.Time) string {
	if len(cc.AllowedDevices) > 0 && !containsFold(cc.AllowedDevices, device) {
		return rbac.ReasonDeviceNotPermitted
	}
	if len(cc.AllowedLocations) > 0 && !containsFold(cc.AllowedLocations, location) {
		return rbac.ReasonLocationDenied
	}
	if cc.TimeRestriction != nil && !withinTimeRestriction(cc.TimeRestriction, at) {
		return rbac.ReasonOutsideHours
	}
	return ""
}

// withinTimeRestriction checks day-of-week and the HH:MM window in the
// restriction's timezone. Windows where start > end wrap past midnight.
func withinTimeRestriction(tr *rbac.TimeRestriction, at time.Time) bool {
	if tr.Timezone != "" {
		loc, err := time.LoadLocation(tr.Timezone)
		if err != nil {
			return false
		}
		at = at.In(loc)
	}

	if len(tr.DaysOfWeek) > 0 && !containsFold(tr.DaysOfWeek, at.Weekday().String()) {
		return false
	}

	if tr.StartTime == "" || tr.EndTime == "" {
		return true
	}
	start, err := parseClock(tr.StartTime)
	if err != nil {
		return false
	}
	end, err := parseClock(tr.EndTime)
	if err != nil {
		return false
	}

	now := at.Hour()*60 + at.Minute()
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func validWeekday(name string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	if value == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
