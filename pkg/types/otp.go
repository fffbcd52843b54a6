package types

import "time"

// FetchRequest identifies one OTP lookup. Immutable once issued.
// A zero MaxWait performs a single scan round before timing out;
// a negative value falls back to the poller's configured default.
type FetchRequest struct {
	TargetRecipient string        `json:"target_recipient"`
	SenderFilter    string        `json:"sender_filter"`
	MaxWait         time.Duration `json:"max_wait"`
	MatchRecipient  bool          `json:"match_recipient,omitempty"`
}

// CacheKey returns the result-cache key for this request. Requests with
// the same recipient and sender share one key and one in-flight poll.
func (r FetchRequest) CacheKey() string {
	return r.TargetRecipient + "|" + r.SenderFilter
}

// CandidateMessage is a message pulled from a folder scan, pending OTP
// extraction. Discarded after parsing.
type CandidateMessage struct {
	Folder     string    `json:"folder"`
	UID        uint32    `json:"uid"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Seen       bool      `json:"seen"`
}

// FetchResult is the outcome of a successful fetch, fresh or cached.
type FetchResult struct {
	OTP             string `json:"otp"`
	Folder          string `json:"folder"`
	Subject         string `json:"subject"`
	Cached          bool   `json:"cached"`
	FetchTimeMillis int64  `json:"fetch_time_ms"`
}
