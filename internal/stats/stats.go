// Package stats keeps running counters of authority activity.
package stats

import "sync/atomic"

// Collector counts events. It implements audit.Observer so it can be
// fanned in next to the audit log. All methods are safe for concurrent
// use.
type Collector struct {
	loginsSucceeded   atomic.Int64
	loginsFailed      atomic.Int64
	sessionsDestroyed atomic.Int64
	accessesGranted   atomic.Int64
	grantsDenied      atomic.Int64
	validationsOK     atomic.Int64
	validationsFailed atomic.Int64
	delegatedSessions atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	LoginsSucceeded   int64 `json:"logins_succeeded"`
	LoginsFailed      int64 `json:"logins_failed"`
	SessionsDestroyed int64 `json:"sessions_destroyed"`
	AccessesGranted   int64 `json:"accesses_granted"`
	GrantsDenied      int64 `json:"grants_denied"`
	ValidationsOK     int64 `json:"validations_ok"`
	ValidationsFailed int64 `json:"validations_failed"`
	DelegatedSessions int64 `json:"delegated_sessions"`
}

// NewCollector returns a zeroed collector.
func NewCollector() *Collector { return &Collector{} }

func (c *Collector) LoginSucceeded(string, string) { c.loginsSucceeded.Add(1) }

func (c *Collector) LoginFailed(string) { c.loginsFailed.Add(1) }

func (c *Collector) SessionDestroyed(string) { c.sessionsDestroyed.Add(1) }

func (c *Collector) AccessGranted(string, string, string) { c.accessesGranted.Add(1) }

func (c *Collector) GrantDenied(string, string) { c.grantsDenied.Add(1) }

func (c *Collector) ValidationSucceeded(string, string) { c.validationsOK.Add(1) }

func (c *Collector) ValidationFailed(string, string, string) { c.validationsFailed.Add(1) }

func (c *Collector) DelegatedSessionCreated(string, string) { c.delegatedSessions.Add(1) }

// Snapshot reads all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		LoginsSucceeded:   c.loginsSucceeded.Load(),
		LoginsFailed:      c.loginsFailed.Load(),
		SessionsDestroyed: c.sessionsDestroyed.Load(),
		AccessesGranted:   c.accessesGranted.Load(),
		GrantsDenied:      c.grantsDenied.Load(),
		ValidationsOK:     c.validationsOK.Load(),
		ValidationsFailed: c.validationsFailed.Load(),
		DelegatedSessions: c.delegatedSessions.Load(),
	}
}
