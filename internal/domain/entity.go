// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"net/url"
	"strings"
	"time"
)

// UnknownDomain is the sentinel used when an activity URL cannot be parsed.
const UnknownDomain = "unknown"

// NewTabTitle is the placeholder title browsers give an empty tab.
// Activities carrying it are noise and are never sent or cached.
const NewTabTitle = "New Tab"

// IdleState is the host-reported user presence state.
type IdleState string

const (
	IdleStateActive IdleState = "active"
	IdleStateIdle   IdleState = "idle"
	IdleStateLocked IdleState = "locked"
)

// Activity is one continuous interval of attention on a single URL.
// At most one activity is open (zero EndTime) at any instant.
type Activity struct {
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  int       `json:"duration"` // whole minutes, computed at close
}

// NewActivity opens an activity for the given page at start.
func NewActivity(rawURL, title string, start time.Time) Activity {
	return Activity{
		URL:       rawURL,
		Domain:    ExtractDomain(rawURL),
		Title:     title,
		StartTime: start,
	}
}

// Close seals the activity at end and computes its duration in whole minutes.
func (a *Activity) Close(end time.Time) {
	a.EndTime = end
	a.Duration = minutesBetween(a.StartTime, end)
}

// Discardable reports whether the activity carries no signal worth reporting:
// an empty tab, or an interval shorter than a minute.
func (a Activity) Discardable() bool {
	return a.Title == NewTabTitle || a.Duration == 0
}

// Session is one continuous period during which tracking is active.
// LocalID is a process-local correlation handle; RemoteID is assigned once
// the collector acknowledges the create call and is immutable afterwards.
type Session struct {
	LocalID   string
	RemoteID  string
	StartTime time.Time
	EndTime   time.Time
	TotalTabs int
	Duration  int // whole minutes, computed at close
}

// PendingSession is the durable snapshot of a session whose latest state has
// not been acknowledged by the collector. At most one exists at a time.
type PendingSession struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	TotalTabs int        `json:"totalTabs"`
}

// Upsert converts the snapshot into the wire fields for a create-or-update
// call. Duration is only meaningful once the session has an end.
func (p PendingSession) Upsert() SessionUpsert {
	up := SessionUpsert{
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		TotalTabs: p.TotalTabs,
	}
	if p.EndTime != nil {
		up.Duration = minutesBetween(p.StartTime, *p.EndTime)
	}
	return up
}

// SessionUpsert carries the session fields of a collector create/update call.
type SessionUpsert struct {
	StartTime time.Time
	EndTime   *time.Time
	Duration  int
	TotalTabs int
}

// ExtractDomain returns the normalized hostname used as the aggregation key
// for a site: lowercase, leading "www." stripped. Unparseable URLs degrade to
// UnknownDomain rather than an error.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return UnknownDomain
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// minutesBetween floors the interval to whole minutes, never negative.
func minutesBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}
