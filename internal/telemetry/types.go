package telemetry

import "errors"

var (
	// ErrAuthenticationFailed is returned when the provider rejects the login.
	ErrAuthenticationFailed = errors.New("telemetry: login failed")
	// ErrUpstreamTimeout is returned when the provider does not answer in time.
	ErrUpstreamTimeout = errors.New("telemetry: upstream timeout")
	// ErrUpstream covers transport failures and unexpected provider responses.
	ErrUpstream = errors.New("telemetry: upstream request failed")
)

const statusOK = "ok"

// Session identifies an authenticated provider session. It is shared by every
// request until it expires from the cache.
type Session struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Status is the provider's result envelope.
type Status struct {
	Result  string `json:"Result"`
	Message string `json:"Message,omitempty"`
}

type loginResponse struct {
	Status Status `json:"Status"`
	Result struct {
		UserIDGUID string `json:"UserIdGuid"`
		SessionID  string `json:"SessionId"`
	} `json:"Result"`
}

// PositionsResponse is the provider payload for a position query.
type PositionsResponse struct {
	Status Status `json:"Status"`
	Result struct {
		Position []Position `json:"Position"`
	} `json:"Result"`
}

// Position is a single vendor position row.
type Position struct {
	Unit         *Unit   `json:"Unit"`
	Latitude     float64 `json:"Latitude"`
	Longitude    float64 `json:"Longitude"`
	Address      string  `json:"Address"`
	Speed        float64 `json:"Speed"`
	SpeedMeasure string  `json:"SpeedMeasure"`
	Heading      float64 `json:"Heading"`
	Ignition     string  `json:"Ignition"`
	EngineStatus string  `json:"EngineStatus"`
}

// Unit describes the tracked device a position belongs to.
type Unit struct {
	UID                 string `json:"Uid"`
	Name                string `json:"Name"`
	LastReportedTimeUTC string `json:"LastReportedTimeUTC"`
}
