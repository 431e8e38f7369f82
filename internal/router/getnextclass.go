package router

import "github.com/sitobox/queuerouter/internal/packet"

// getNextClass computes the next class to publish to from process_route and
// history. It returns the class name and its position in process_route, or
// pos == -1 with class == "" at normal route end.
//
// The algorithm locates where execution currently stands by counting how
// many times the last history entry has already appeared in history (nH)
// and matching that against its occurrences in process_route: the nH-th
// occurrence in process_route is the stage that just ran, so the next
// class is whatever immediately follows it. Ties (classes appearing more
// than once in process_route, which retry/branch splicing produces
// routinely) are broken by always taking the nH-th occurrence in route
// order, never the first or last unconditionally.
func (c *Core) getNextClass(pkt *packet.MessagePacket) (class string, pos int, err error) {
	route := pkt.Settings.ProcessRoute
	history := pkt.Settings.History

	if len(route) == 0 {
		return "", -1, ErrNoProcessRoute
	}
	if len(history) == 0 {
		return route[0], 0, nil
	}

	last := history[len(history)-1]
	nH := countOccurrences(history, last)
	occRoute := indicesOf(route, last)

	if len(occRoute) == 0 {
		return "", 0, ErrMissingLastInRoute
	}
	if nH > len(occRoute) {
		return "", 0, ErrHistoryDriftedPastRoute
	}

	curPos := occRoute[nH-1]
	nextPos := curPos + 1
	if nextPos >= len(route) {
		return "", -1, nil
	}
	return route[nextPos], nextPos, nil
}

// countOccurrences counts how many times target appears in s.
func countOccurrences(s []string, target string) int {
	n := 0
	for _, v := range s {
		if v == target {
			n++
		}
	}
	return n
}

// indicesOf returns every index in s holding target, in ascending order.
func indicesOf(s []string, target string) []int {
	var idx []int
	for i, v := range s {
		if v == target {
			idx = append(idx, i)
		}
	}
	return idx
}

// filterOut returns a copy of s with every element equal to target removed,
// preserving order. Used to drop stray sentinel entries before splicing a
// fresh one in.
func filterOut(s []string, target string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
