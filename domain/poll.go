package domain

import "time"

// PollOption is one choice in a poll, carrying its own tally and the voter
// set used for duplicate-vote prevention.
type PollOption struct {
	Text     string   `json:"text"`
	Votes    int      `json:"votes"`
	VoterIDs []string `json:"voter_ids"`
}

// Poll is an ephemeral, stream-scoped vote. At most one active poll may exist
// per stream at a time; the processor enforces that, not the store.
type Poll struct {
	ID                 string       `json:"id"`
	StreamID           string       `json:"stream_id"`
	CreatorID          string       `json:"creator_id"`
	Question           string       `json:"question"`
	Options            []PollOption `json:"options"`
	TotalVotes         int          `json:"total_votes"`
	AllowMultipleVotes bool         `json:"allow_multiple_votes"`
	IsActive           bool         `json:"is_active"`
	StartTime          time.Time    `json:"start_time"`
	EndTime            time.Time    `json:"end_time"`
	Version            int          `json:"version"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Expired reports whether the poll's window has passed.
func (p *Poll) Expired(now time.Time) bool {
	return p != nil && now.After(p.EndTime)
}

// HasVoted reports whether userID appears in any option's voter set.
func (p *Poll) HasVoted(userID string) bool {
	if p == nil {
		return false
	}
	for i := range p.Options {
		for _, id := range p.Options[i].VoterIDs {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// CastVote applies a vote to the option at index. The option tally and the
// poll total are incremented together, never one without the other.
func (p *Poll) CastVote(userID string, index int) error {
	if p == nil {
		return ErrPollNotFound
	}
	if index < 0 || index >= len(p.Options) {
		return NewError(ErrCodeInvalid, "option index out of range")
	}
	if !p.AllowMultipleVotes && p.HasVoted(userID) {
		return ErrDuplicateVote
	}
	p.Options[index].VoterIDs = append(p.Options[index].VoterIDs, userID)
	p.Options[index].Votes++
	p.TotalVotes++
	return nil
}
