package versions

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"
)

const day = 24 * time.Hour

// Policy controls which historic versions a cleanup removes.
//
// Versions younger than KeepAllVersionsNewerThanDays are all kept. Between
// that age and KeepLatestVersionPerDayForDays only the latest version of
// each content item per calendar day (UTC) is kept. Older versions are
// removed. Protected versions are always kept.
type Policy struct {
	KeepAllVersionsNewerThanDays   int `yaml:"keep_all_versions_newer_than_days" json:"keep_all_versions_newer_than_days"`
	KeepLatestVersionPerDayForDays int `yaml:"keep_latest_version_per_day_for_days" json:"keep_latest_version_per_day_for_days"`
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		KeepAllVersionsNewerThanDays:   7,
		KeepLatestVersionPerDayForDays: 90,
	}
}

// Validate checks the day counts.
func (p Policy) Validate() error {
	var errs []error
	if p.KeepAllVersionsNewerThanDays < 0 {
		errs = append(errs, fmt.Errorf("versions: keep_all_versions_newer_than_days must be >= 0, got %d", p.KeepAllVersionsNewerThanDays))
	}
	if p.KeepLatestVersionPerDayForDays < 0 {
		errs = append(errs, fmt.Errorf("versions: keep_latest_version_per_day_for_days must be >= 0, got %d", p.KeepLatestVersionPerDayForDays))
	}
	return errors.Join(errs...)
}

// KeepAllCutoff returns the date before which versions become prunable.
func (p Policy) KeepAllCutoff(asAt time.Time) time.Time {
	return asAt.Add(-time.Duration(p.KeepAllVersionsNewerThanDays) * day)
}

// Select returns the versions to remove from candidates as of asAt.
// The result is ordered by content ID, then version date.
func (p Policy) Select(candidates []ContentVersion, asAt time.Time) []ContentVersion {
	keepAll := time.Duration(p.KeepAllVersionsNewerThanDays) * day
	keepDaily := time.Duration(p.KeepLatestVersionPerDayForDays) * day

	type dayKey struct {
		content string
		day     time.Time
	}

	var remove []ContentVersion
	daily := make(map[dayKey][]ContentVersion)

	for _, v := range candidates {
		if v.Protected() {
			continue
		}
		age := asAt.Sub(v.VersionDate)
		switch {
		case age <= keepAll:
		case age > keepDaily:
			remove = append(remove, v)
		default:
			k := dayKey{content: v.ContentID, day: v.VersionDate.UTC().Truncate(day)}
			daily[k] = append(daily[k], v)
		}
	}

	for _, group := range daily {
		slices.SortFunc(group, func(a, b ContentVersion) int {
			if c := b.VersionDate.Compare(a.VersionDate); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		})
		remove = append(remove, group[1:]...)
	}

	slices.SortFunc(remove, func(a, b ContentVersion) int {
		if c := cmp.Compare(a.ContentID, b.ContentID); c != 0 {
			return c
		}
		if c := a.VersionDate.Compare(b.VersionDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return remove
}
