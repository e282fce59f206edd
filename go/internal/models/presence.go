package models

import (
	"encoding/json"
	"sort"
)

// Presence is the multiset of tokens attached to a room across all server
// instances. An empty string stands for an anonymous session and is
// encoded as null.
type Presence []string

// Add records one more session holding token.
func (p Presence) Add(token string) Presence {
	return append(p, token)
}

// Remove drops exactly one occurrence of token. Other sessions sharing
// the token are unaffected. It reports whether an occurrence was found.
func (p Presence) Remove(token string) (Presence, bool) {
	for i, t := range p {
		if t == token {
			out := make(Presence, 0, len(p)-1)
			out = append(out, p[:i]...)
			return append(out, p[i+1:]...), true
		}
	}
	return p, false
}

func (p Presence) MarshalJSON() ([]byte, error) {
	out := make([]*string, len(p))
	for i := range p {
		if p[i] != "" {
			t := p[i]
			out[i] = &t
		}
	}
	return json.Marshal(out)
}

func (p *Presence) UnmarshalJSON(data []byte) error {
	var raw []*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*p = nil
		return nil
	}
	out := make(Presence, len(raw))
	for i, t := range raw {
		if t != nil {
			out[i] = *t
		}
	}
	*p = out
	return nil
}

// PresenceSummary is the aggregated view of who is connected.
type PresenceSummary struct {
	Anonymous int
	ByRole    map[Role][]string // role -> invitee emails, sorted
}

// Identified is the number of distinct invitees connected.
func (s PresenceSummary) Identified() int {
	n := 0
	for _, emails := range s.ByRole {
		n += len(emails)
	}
	return n
}

// Total is identified plus anonymous connections.
func (s PresenceSummary) Total() int {
	return s.Identified() + s.Anonymous
}

// SummarizePresence deduplicates connected tokens, maps each to its invitee
// and buckets them by role. Tokens without an invitee are treated as gone;
// anonymous sessions are counted raw.
func SummarizePresence(r *Room) PresenceSummary {
	summary := PresenceSummary{ByRole: map[Role][]string{}}
	seen := make(map[string]bool, len(r.ConnectedTokens))

	for _, token := range r.ConnectedTokens {
		if token == "" {
			summary.Anonymous++
			continue
		}
		if seen[token] {
			continue
		}
		seen[token] = true

		inv, ok := r.Invitees[token]
		if !ok {
			continue
		}
		summary.ByRole[inv.Role] = append(summary.ByRole[inv.Role], inv.Email)
	}

	for role := range summary.ByRole {
		sort.Strings(summary.ByRole[role])
	}
	return summary
}
