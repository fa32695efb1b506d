package domain

import "time"

// FeedObservation is the latest value an oracle feed reports. Owner is the
// program that wrote the feed; only the oracle program's feeds are trusted.
type FeedObservation struct {
	Feed               Address   `json:"feed"`
	Owner              Address   `json:"owner"`
	Value              float64   `json:"value"`
	ConfidenceInterval float64   `json:"confidence_interval"`
	LastUpdate         time.Time `json:"last_update"`
}
