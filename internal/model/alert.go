package model

import "time"

type AlertKind string

const (
	AlertKindStale      AlertKind = "stale"
	AlertKindUnreviewed AlertKind = "unreviewed"
	AlertKindStalled    AlertKind = "stalled"
)

var AlertKinds = []AlertKind{AlertKindStale, AlertKindUnreviewed, AlertKindStalled}

// Marker returns the "last alerted at" marker of the given kind.
func (k AlertKind) Marker(pr *PullRequest) *time.Time {
	switch k {
	case AlertKindStale:
		return pr.StaleAlertAt
	case AlertKindUnreviewed:
		return pr.UnreviewedAlertAt
	case AlertKindStalled:
		return pr.StalledAlertAt
	}
	return nil
}

func (k AlertKind) Valid() bool {
	switch k {
	case AlertKindStale, AlertKindUnreviewed, AlertKindStalled:
		return true
	}
	return false
}
