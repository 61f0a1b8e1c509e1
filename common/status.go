package common

import "fmt"

// DownloadStatus is the terminal status of one asset transfer.
type DownloadStatus int

const (
	DownloadSuccess DownloadStatus = iota
	DownloadFailed
	DownloadRetriedThenFailed
)

func (s DownloadStatus) String() string {
	switch s {
	case DownloadSuccess:
		return "success"
	case DownloadFailed:
		return "failed"
	case DownloadRetriedThenFailed:
		return "retried-then-failed"
	}
	return fmt.Sprintf("DownloadStatus(%d)", int(s))
}

// MarshalJSON implements the json.Marshaler interface
func (s DownloadStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// OutcomeStatus is the aggregate status of one scene.
type OutcomeStatus int

const (
	OutcomeSuccess OutcomeStatus = iota
	OutcomePartial
	OutcomeFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("OutcomeStatus(%d)", int(s))
}

// MarshalJSON implements the json.Marshaler interface
func (s OutcomeStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
