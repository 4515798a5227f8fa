package models

import "time"

// UserStatus is the presence state published by the presence service.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	StatusBusy    UserStatus = "busy"
	StatusAway    UserStatus = "away"
)

// User is a registered subscriber. The softphone core only reads users;
// presence owns the status field.
type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Username string     `json:"username"`
	Password string     `json:"-"`
	Status   UserStatus `json:"status"`
}

// CallType is fixed when a session is created. An inbound offer's body may
// still upgrade the answering side to video (see media.HasVideoSection).
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// CallStatus is the application-level call record state. Legal transitions
// are ringing -> active -> ended and ringing -> missed, nothing else.
type CallStatus string

const (
	CallRinging CallStatus = "ringing"
	CallActive  CallStatus = "active"
	CallEnded   CallStatus = "ended"
	CallMissed  CallStatus = "missed"
)

// CallRecord is one call as the application sees it, distinct from the
// lower-level signaling session.
type CallRecord struct {
	ID        string     `json:"id"`
	Caller    User       `json:"caller"`
	Receiver  User       `json:"receiver"`
	Type      CallType   `json:"type"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Duration  int        `json:"duration"` // whole seconds, 0 until terminal
	Status    CallStatus `json:"status"`
}

// RegistrationState tracks the signaling agent for one configuration.
type RegistrationState string

const (
	Unregistered RegistrationState = "unregistered"
	Registering  RegistrationState = "registering"
	Registered   RegistrationState = "registered"
	RegFailed    RegistrationState = "failed"
)

// SessionState is the lifecycle of one signaling session object.
type SessionState string

const (
	SessionInitial      SessionState = "initial"
	SessionEstablishing SessionState = "establishing"
	SessionEstablished  SessionState = "established"
	SessionTerminated   SessionState = "terminated"
)

// SignalingConfig binds the agent to a signaling server. It is handed out
// after authentication; without it the session controller stays inert.
type SignalingConfig struct {
	ServerAddress string `json:"server_address"`
	Identity      string `json:"identity"`
	Credential    string `json:"credential"`
	Domain        string `json:"domain"`
}

// HistoryRow is the persisted shape of a call record. A provisional row is
// written in ringing state at call start and finalized on the terminal
// transition.
type HistoryRow struct {
	ID         string     `json:"id"`
	CallerID   string     `json:"caller_id"`
	ReceiverID string     `json:"receiver_id"`
	Type       CallType   `json:"type"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time,omitempty"`
	Duration   int        `json:"duration"`
	Status     CallStatus `json:"status"`
}
