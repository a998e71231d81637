package compress

import (
	"bytes"
	"slices"
)

// ---------------------------------------------------------------------------
// Dictionary substitution
// ---------------------------------------------------------------------------

const (
	minPattern = 2
	maxPattern = 8

	// patternWindow bounds how much of the stream is scanned when ranking
	// candidate patterns.
	patternWindow = 1 << 16
)

// dictEntryCost is the container cost of one entry besides its pattern:
// length and id bytes.
const dictEntryCost = 2

// maxDictEntries maps a compression level to a dictionary size.
func maxDictEntries(level uint8) int {
	return int(level) * 8
}

// buildDictionary greedily replaces the n-gram with the largest net saving
// by a byte value that does not occur in the stream, until nothing saves or
// the ids or entry budget run out. Later patterns may contain earlier ids,
// so expansion runs in reverse order.
func buildDictionary(s []byte, limit int) ([]DictEntry, []byte) {
	var present [256]bool
	for _, b := range s {
		present[b] = true
	}
	var free []byte
	for b := 0; b < 256; b++ {
		if !present[b] {
			free = append(free, byte(b))
		}
	}

	var dict []DictEntry
	for len(dict) < limit && len(free) > 0 {
		pat, gain := bestPattern(s)
		if gain <= 0 {
			break
		}
		id := free[0]
		out := bytes.ReplaceAll(s, pat, []byte{id})
		if len(out)+len(pat)+dictEntryCost >= len(s) {
			break
		}
		free = free[1:]
		dict = append(dict, DictEntry{ID: id, Pattern: slices.Clone(pat)})
		s = out
	}
	return dict, s
}

// bestPattern ranks every 2..8 byte n-gram by estimated net saving,
// count*(len-1) - (len+cost). Ties prefer the longer, then the smaller,
// pattern so the choice is deterministic.
func bestPattern(s []byte) ([]byte, int) {
	window := s
	if len(window) > patternWindow {
		window = window[:patternWindow]
	}
	best, bestGain := "", 0
	for n := minPattern; n <= maxPattern && n <= len(window); n++ {
		counts := make(map[string]int)
		for i := 0; i+n <= len(window); i++ {
			counts[string(window[i:i+n])]++
		}
		for pat, c := range counts {
			gain := c*(n-1) - (n + dictEntryCost)
			switch {
			case gain > bestGain,
				gain == bestGain && len(pat) > len(best),
				gain == bestGain && len(pat) == len(best) && pat < best:
				best, bestGain = pat, gain
			}
		}
	}
	return []byte(best), bestGain
}

// expandDictionary reverses buildDictionary. The output may not grow past
// limit bytes.
func expandDictionary(s []byte, dict []DictEntry, limit int) ([]byte, error) {
	var seen [256]bool
	for _, e := range dict {
		if seen[e.ID] {
			return nil, Corruptf("dictionary id %#02x used twice", e.ID)
		}
		seen[e.ID] = true
		if len(e.Pattern) < minPattern || len(e.Pattern) > maxPattern {
			return nil, Corruptf("dictionary pattern of %d bytes", len(e.Pattern))
		}
	}
	for i := len(dict) - 1; i >= 0; i-- {
		e := dict[i]
		grown := bytes.Count(s, []byte{e.ID}) * (len(e.Pattern) - 1)
		if len(s)+grown > limit {
			return nil, Corruptf("dictionary expansion exceeds %d bytes", limit)
		}
		s = bytes.ReplaceAll(s, []byte{e.ID}, e.Pattern)
	}
	return s, nil
}
