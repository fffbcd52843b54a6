package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/otp-fetch/pkg/types"
)

// Scanner retrieves recent unread messages from one folder and filters
// them down to OTP candidates. "Nothing matched" is an empty result,
// not an error.
type Scanner struct {
	limit  int
	logger *logrus.Logger
}

// NewScanner creates a scanner that inspects at most limit messages per
// folder per call
func NewScanner(limit int, logger *logrus.Logger) *Scanner {
	return &Scanner{
		limit:  limit,
		logger: logger,
	}
}

// Scan searches folder for unread messages from the request's sender
// and returns them as candidates, newest limit only. The folder is
// selected read-only and bodies are peeked: no flags change.
func (sc *Scanner) Scan(ctx context.Context, sess *Session, folder string, req types.FetchRequest) ([]types.CandidateMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := sess.client.Select(folder, true); err != nil {
		sess.alive = false
		return nil, fmt.Errorf("failed to select folder %s: %w", folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if req.SenderFilter != "" {
		criteria.Header.Add("From", req.SenderFilter)
	}

	seqNums, err := sess.client.Search(criteria)
	if err != nil {
		sess.alive = false
		return nil, fmt.Errorf("failed to search folder %s: %w", folder, err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqNums = newestWindow(seqNums, sc.limit)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- sess.client.Fetch(seqSet, items, messages)
	}()

	var candidates []types.CandidateMessage
	for msg := range messages {
		if cand, ok := sc.candidate(msg, section, folder, req); ok {
			candidates = append(candidates, cand)
		}
	}

	if err := <-done; err != nil {
		sess.alive = false
		return nil, fmt.Errorf("failed to fetch messages in %s: %w", folder, err)
	}

	sess.touch()
	return candidates, nil
}

// candidate converts a fetched message into a CandidateMessage,
// confirming the sender filter client-side (the server-side From search
// matches substrings) and the recipient filter when requested.
func (sc *Scanner) candidate(msg *imap.Message, section *imap.BodySectionName, folder string, req types.FetchRequest) (types.CandidateMessage, bool) {
	if msg.Envelope == nil {
		return types.CandidateMessage{}, false
	}

	if req.SenderFilter != "" && !addressMatch(msg.Envelope.From, req.SenderFilter) {
		return types.CandidateMessage{}, false
	}
	if req.MatchRecipient && req.TargetRecipient != "" {
		recipients := append(msg.Envelope.To, msg.Envelope.Cc...)
		if !addressMatch(recipients, req.TargetRecipient) {
			return types.CandidateMessage{}, false
		}
	}

	cand := types.CandidateMessage{
		Folder:     folder,
		UID:        msg.Uid,
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.InternalDate,
	}
	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			cand.Seen = true
		}
	}

	if literal := msg.GetBody(section); literal != nil {
		cand.Body = sc.bodyText(literal)
	}

	return cand, true
}

// bodyText decodes the MIME body to plain text, falling back to the raw
// bytes when the message does not parse
func (sc *Scanner) bodyText(literal imap.Literal) string {
	raw, err := io.ReadAll(literal)
	if err != nil {
		sc.logger.WithError(err).Debug("Error reading message body")
		return ""
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		sc.logger.WithError(err).Debug("Failed to parse MIME body, using raw content")
		return string(raw)
	}
	if env.Text != "" {
		return env.Text
	}
	return env.HTML
}

// newestWindow keeps only the last limit sequence numbers. Search
// results come back ascending, so the tail is the newest mail.
func newestWindow(seqNums []uint32, limit int) []uint32 {
	if len(seqNums) > limit {
		return seqNums[len(seqNums)-limit:]
	}
	return seqNums
}

// addressMatch reports whether want appears among addrs, ignoring case
func addressMatch(addrs []*imap.Address, want string) bool {
	for _, addr := range addrs {
		if addr != nil && strings.EqualFold(addr.Address(), want) {
			return true
		}
	}
	return false
}
