package island

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/udisondev/skygrid/internal/event"
)

// GrantCoop gives guest coop access to the island of host (host may be any
// team member). Re-granting refreshes the timestamp and inviter without
// duplicating the grant; CoopJoined is published only for new grants.
func (t *Teams) GrantCoop(host, guest, inviter uuid.UUID) error {
	if guest == uuid.Nil {
		return ErrInvalidOwner
	}

	g := t.grid
	g.mu.Lock()

	isl, ok := g.membership[host]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("coop on island of %s: %w", host, ErrNotFound)
	}
	if g.membership[guest] == isl {
		g.mu.Unlock()
		return fmt.Errorf("coop %s on island of %s: %w", guest, host, ErrSelfCoop)
	}

	now := t.now()
	isl.mu.Lock()
	_, existed := isl.coops[guest]
	isl.coops[guest] = CoopGrant{Inviter: inviter, GrantedAt: now}
	isl.mu.Unlock()

	hosts, ok := g.guests[guest]
	if !ok {
		hosts = make(map[*Island]struct{}, 1)
		g.guests[guest] = hosts
	}
	hosts[isl] = struct{}{}
	ref := isl.Ref()
	g.mu.Unlock()

	if existed {
		slog.Debug("coop grant refreshed", "island", ref.Owner, "guest", guest)
		return nil
	}

	slog.Info("coop granted", "island", ref.Owner, "guest", guest, "inviter", inviter)
	t.sink.Publish(event.CoopJoined{
		Header:  event.Header{Player: guest, Target: ref, At: now},
		Inviter: inviter,
	})
	return nil
}

// RevokeCoop removes guest's grant on host's island. Returns false if there was none.
func (t *Teams) RevokeCoop(host, guest uuid.UUID) bool {
	g := t.grid
	g.mu.Lock()

	isl, ok := g.membership[host]
	if !ok {
		g.mu.Unlock()
		return false
	}
	isl.mu.Lock()
	_, had := isl.coops[guest]
	delete(isl.coops, guest)
	isl.mu.Unlock()
	if !had {
		g.mu.Unlock()
		return false
	}
	g.dropGuestLocked(guest, isl)
	ref := isl.Ref()
	g.mu.Unlock()

	slog.Info("coop revoked", "island", ref.Owner, "guest", guest)
	t.sink.Publish(event.CoopRevoked{
		Header: event.Header{Player: guest, Target: ref, At: t.now()},
	})
	return true
}

// ClearCoops drops every grant held by guest (e.g. on logout).
// Returns the number of grants removed.
func (t *Teams) ClearCoops(guest uuid.UUID) int {
	g := t.grid
	g.mu.Lock()

	hosts := g.guests[guest]
	refs := make([]event.Island, 0, len(hosts))
	for isl := range hosts {
		isl.mu.Lock()
		delete(isl.coops, guest)
		isl.mu.Unlock()
		refs = append(refs, isl.Ref())
	}
	delete(g.guests, guest)
	g.mu.Unlock()

	now := t.now()
	for _, ref := range refs {
		t.sink.Publish(event.CoopRevoked{
			Header: event.Header{Player: guest, Target: ref, At: now},
		})
	}
	if len(refs) > 0 {
		slog.Info("coop grants cleared", "guest", guest, "count", len(refs))
	}
	return len(refs)
}

// CoopIslandsFor returns the islands guest holds a grant on, oldest island first.
// An empty result means guest is not in any coop.
func (t *Teams) CoopIslandsFor(guest uuid.UUID) []*Island {
	g := t.grid
	g.mu.RLock()
	out := make([]*Island, 0, len(g.guests[guest]))
	for isl := range g.guests[guest] {
		out = append(out, isl)
	}
	g.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Island) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

// IsCoop reports whether guest holds at least one coop grant.
func (t *Teams) IsCoop(guest uuid.UUID) bool {
	g := t.grid
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.guests[guest]) > 0
}

// CoopGuests returns the guests holding grants on host's island, sorted by grant time.
func (t *Teams) CoopGuests(host uuid.UUID) []uuid.UUID {
	isl, ok := t.grid.TeamIslandOf(host)
	if !ok {
		return []uuid.UUID{}
	}
	grants := isl.Coops()
	out := make([]uuid.UUID, 0, len(grants))
	for id := range grants {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		if c := grants[a].GrantedAt.Compare(grants[b].GrantedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.String(), b.String())
	})
	return out
}
