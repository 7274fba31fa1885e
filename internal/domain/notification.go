package domain

import "sort"

// NotificationSnapshot is a point-in-time view of pending marketplace events,
// keyed by game identifier.
type NotificationSnapshot struct {
	ToDeliver   map[string]int
	ToSendOffer map[string]int
	ToAccept    map[string]int
}

// TotalToAccept sums the accept counters over all games.
func (s NotificationSnapshot) TotalToAccept() int {
	total := 0
	for _, count := range s.ToAccept {
		total += count
	}
	return total
}

// IsEmpty reports whether every counter of every category is zero.
func (s NotificationSnapshot) IsEmpty() bool {
	for _, category := range []map[string]int{s.ToDeliver, s.ToSendOffer, s.ToAccept} {
		for _, count := range category {
			if count != 0 {
				return false
			}
		}
	}
	return true
}

// PendingGames returns games with a non-zero counter in sorted order.
func PendingGames(counters map[string]int) []string {
	games := make([]string, 0, len(counters))
	for game, count := range counters {
		if count > 0 {
			games = append(games, game)
		}
	}
	sort.Strings(games)
	return games
}
