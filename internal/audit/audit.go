// Package audit records the security-relevant events of the
// authentication service.
package audit

import "log/slog"

// Observer receives event callbacks from the orchestrator. Callbacks run
// inline on the request path and must not block.
type Observer interface {
	LoginSucceeded(principalID, sessionID string)
	LoginFailed(reason string)
	SessionDestroyed(sessionID string)
	AccessGranted(sessionID, serviceID, accessID string)
	GrantDenied(serviceID, reason string)
	ValidationSucceeded(token, serviceID string)
	ValidationFailed(token, serviceID, reason string)
	DelegatedSessionCreated(token, sessionID string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) LoginSucceeded(string, string)           {}
func (Nop) LoginFailed(string)                      {}
func (Nop) SessionDestroyed(string)                 {}
func (Nop) AccessGranted(string, string, string)    {}
func (Nop) GrantDenied(string, string)              {}
func (Nop) ValidationSucceeded(string, string)      {}
func (Nop) ValidationFailed(string, string, string) {}
func (Nop) DelegatedSessionCreated(string, string)  {}

// Logger writes each event as a structured log line.
type Logger struct {
	log *slog.Logger
}

// NewLogger builds a logging observer.
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log}
}

func (l *Logger) LoginSucceeded(principalID, sessionID string) {
	l.log.Info("audit: login succeeded",
		slog.String("principal", principalID),
		slog.String("session_id", sessionID))
}

func (l *Logger) LoginFailed(reason string) {
	l.log.Warn("audit: login failed", slog.String("reason", reason))
}

func (l *Logger) SessionDestroyed(sessionID string) {
	l.log.Info("audit: session destroyed", slog.String("session_id", sessionID))
}

func (l *Logger) AccessGranted(sessionID, serviceID, accessID string) {
	l.log.Info("audit: access granted",
		slog.String("session_id", sessionID),
		slog.String("service", serviceID),
		slog.String("access_id", accessID))
}

func (l *Logger) GrantDenied(serviceID, reason string) {
	l.log.Warn("audit: access denied",
		slog.String("service", serviceID),
		slog.String("reason", reason))
}

func (l *Logger) ValidationSucceeded(token, serviceID string) {
	l.log.Info("audit: token validated",
		slog.String("token", token),
		slog.String("service", serviceID))
}

func (l *Logger) ValidationFailed(token, serviceID, reason string) {
	l.log.Warn("audit: token rejected",
		slog.String("token", token),
		slog.String("service", serviceID),
		slog.String("reason", reason))
}

func (l *Logger) DelegatedSessionCreated(token, sessionID string) {
	l.log.Info("audit: delegated session created",
		slog.String("token", token),
		slog.String("session_id", sessionID))
}

// Multi fans events out to several observers.
type Multi []Observer

func (m Multi) LoginSucceeded(principalID, sessionID string) {
	for _, o := range m {
		o.LoginSucceeded(principalID, sessionID)
	}
}

func (m Multi) LoginFailed(reason string) {
	for _, o := range m {
		o.LoginFailed(reason)
	}
}

func (m Multi) SessionDestroyed(sessionID string) {
	for _, o := range m {
		o.SessionDestroyed(sessionID)
	}
}

func (m Multi) AccessGranted(sessionID, serviceID, accessID string) {
	for _, o := range m {
		o.AccessGranted(sessionID, serviceID, accessID)
	}
}

func (m Multi) GrantDenied(serviceID, reason string) {
	for _, o := range m {
		o.GrantDenied(serviceID, reason)
	}
}

func (m Multi) ValidationSucceeded(token, serviceID string) {
	for _, o := range m {
		o.ValidationSucceeded(token, serviceID)
	}
}

func (m Multi) ValidationFailed(token, serviceID, reason string) {
	for _, o := range m {
		o.ValidationFailed(token, serviceID, reason)
	}
}

func (m Multi) DelegatedSessionCreated(token, sessionID string) {
	for _, o := range m {
		o.DelegatedSessionCreated(token, sessionID)
	}
}
