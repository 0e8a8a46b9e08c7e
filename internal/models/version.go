package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VersionStatus is the lifecycle state of one version.
type VersionStatus string

const (
	StatusApproved VersionStatus = "A"
	StatusLocked   VersionStatus = "L"
	StatusDraft    VersionStatus = "D"
	StatusRejected VersionStatus = "R"
	StatusPending  VersionStatus = "P"
)

// VersionNumber identifies a version as major.minor plus a status,
// rendered as "V<major>.<minor>.<status>", e.g. "V1.0.A".
type VersionNumber struct {
	Major  int
	Minor  int
	Status VersionStatus
}

// String renders the canonical "V1.0.A" form.
func (v VersionNumber) String() string {
	return fmt.Sprintf("V%d.%d.%s", v.Major, v.Minor, v.Status)
}

// IsMajor reports whether this is an approved major version (minor == 0).
func (v VersionNumber) IsMajor() bool {
	return v.Minor == 0 && v.Status == StatusApproved
}

// ParseVersionNumber parses the canonical "V1.0.A" form.
func ParseVersionNumber(s string) (VersionNumber, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "V")
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return VersionNumber{}, fmt.Errorf("invalid version number: %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return VersionNumber{}, fmt.Errorf("invalid major in version number %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return VersionNumber{}, fmt.Errorf("invalid minor in version number %q: %w", s, err)
	}
	status := VersionStatus(parts[2])
	switch status {
	case StatusApproved, StatusLocked, StatusDraft, StatusRejected, StatusPending:
	default:
		return VersionNumber{}, fmt.Errorf("invalid status in version number: %q", s)
	}
	return VersionNumber{Major: major, Minor: minor, Status: status}, nil
}

// VersionData is one revision of a node's dynamic content. VersionID is
// assigned by the storage engine and never reused. Timestamp follows the
// same optimistic concurrency rules as NodeHeadData.Timestamp.
type VersionData struct {
	VersionID int64         `json:"version_id"`
	NodeID    int64         `json:"node_id"`
	Version   VersionNumber `json:"version"`
	Timestamp int64         `json:"timestamp"`
	CreatedAt time.Time     `json:"created_at"`
}
