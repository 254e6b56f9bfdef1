package text

// DiscordMessageLimit is the maximum number of characters Discord accepts
// in a single message.
const DiscordMessageLimit = 2000

// Split breaks s into chunks of at most limit characters each. Chunks are
// cut at fixed character boundaries; limit is counted in runes so a
// multi-byte character is never split.
func Split(s string, limit int) []string {
	if s == "" {
		return nil
	}
	if limit <= 0 {
		limit = DiscordMessageLimit
	}

	runes := []rune(s)
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(chunks, string(runes))
}
