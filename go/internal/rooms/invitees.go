package rooms

import (
	"net/mail"
	"strings"

	"github.com/mcdev12/metronome/go/internal/models"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// reconcileInvitees rewrites room.Invitees so it matches target. Invitees whose
// email is still listed keep their token and take the new role; new emails get
// a freshly minted token; everyone else is removed and their token stops
// authorizing. Entries with an invalid email or role are ignored, and when an
// email repeats the last entry wins.
//
// A target without any owner is refused with ErrLastOwner and room is left untouched.
func reconcileInvitees(room *models.Room, target []models.InviteeView, gen TokenGenerator) ([]Invitation, error) {
	roles := make(map[string]models.Role, len(target))
	order := make([]string, 0, len(target))
	for _, entry := range target {
		email := normalizeEmail(entry.Email)
		if !validEmail(email) || !entry.Role.Valid() {
			continue
		}
		if _, seen := roles[email]; !seen {
			order = append(order, email)
		}
		roles[email] = entry.Role
	}

	hasOwner := false
	for _, role := range roles {
		if role == models.RoleOwner {
			hasOwner = true
			break
		}
	}
	if !hasOwner {
		return nil, ErrLastOwner
	}

	next := make(map[string]models.Invitee, len(roles))
	kept := make(map[string]bool, len(room.Invitees))
	for token, inv := range room.Invitees {
		email := normalizeEmail(inv.Email)
		role, ok := roles[email]
		if !ok {
			continue
		}
		next[token] = models.Invitee{Email: inv.Email, Role: role}
		kept[email] = true
	}

	taken := func(token string) bool {
		_, old := room.Invitees[token]
		_, cur := next[token]
		return old || cur
	}

	var minted []Invitation
	for _, email := range order {
		if kept[email] {
			continue
		}
		token, err := mintToken(gen, taken)
		if err != nil {
			return nil, err
		}
		inv := models.Invitee{Email: email, Role: roles[email]}
		next[token] = inv
		minted = append(minted, Invitation{Token: token, Invitee: inv})
	}

	room.Invitees = next
	return minted, nil
}
