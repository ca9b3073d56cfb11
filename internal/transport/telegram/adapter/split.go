package adapter

import "strings"

// textLimit stays under Telegram's 4096 character cap.
const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. It prefers newline
// boundaries and, for HTML, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			end = cutPoint(rs, start, end, limit, html)
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func cutPoint(rs []rune, start, end, limit int, html bool) int {
	// newline near the end of the window, but not one that makes a tiny chunk
	for i := end - 1; i-start >= limit/3; i-- {
		if rs[i] == '\n' {
			return i + 1
		}
	}
	if html {
		open, closed := -1, -1
		for i := start; i < end; i++ {
			switch rs[i] {
			case '<':
				open = i
			case '>':
				closed = i
			}
		}
		if open > closed && open > start+1 {
			return open
		}
	}
	return end
}
