package profile

import (
	"sort"
	"strings"
	"time"
)

// MaxTopics caps a profile's topic list. Topics ranked below the cap are
// discarded, not archived.
const MaxTopics = 10

// MaxPromptLen is the stored length of a profile's last prompt, in runes.
const MaxPromptLen = 200

// Scoring weights: frequency vs. recency.
const (
	countWeight   = 0.4
	recencyWeight = 0.6
)

// EvolveTopics folds a batch of raw topic names into the current topic list
// and returns the re-ranked, capped result. The routine is pure: given the
// same inputs and the same now, the output is identical.
//
// Names are trimmed and matched case-insensitively against existing topics;
// empty names are dropped. A match increments the topic's count and stamps
// lastUsed; a miss appends a new topic with count 1. Every topic is then
// scored by a blend of relative frequency and recency, sorted descending
// (stable, so ties keep their relative order) and truncated to MaxTopics.
func EvolveTopics(current []Topic, names []string, now time.Time) []Topic {
	topics := make([]Topic, len(current))
	copy(topics, current)

	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		idx := -1
		for i := range topics {
			if strings.EqualFold(topics[i].Name, name) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			topics[idx].Count++
			topics[idx].LastUsed = now
		} else {
			topics = append(topics, Topic{Name: name, Count: 1, LastUsed: now})
		}
	}

	if len(topics) == 0 {
		return topics
	}

	maxCount := 0
	for i := range topics {
		if topics[i].Count > maxCount {
			maxCount = topics[i].Count
		}
	}

	score := func(t Topic) float64 {
		freq := 0.0
		if maxCount > 0 {
			freq = float64(t.Count) / float64(maxCount)
		}
		days := now.Sub(t.LastUsed).Hours() / 24
		if days < 0 {
			days = 0
		}
		return countWeight*freq + recencyWeight*(1/(1+days))
	}

	sort.SliceStable(topics, func(i, j int) bool {
		return score(topics[i]) > score(topics[j])
	})

	if len(topics) > MaxTopics {
		topics = topics[:MaxTopics]
	}
	return topics
}

// ApplyEvolution records one use of a profile: topic list update, usage
// counter, lastUpdated stamp, and the truncated prompt text.
func ApplyEvolution(p *Profile, prompt string, topicNames []string, now time.Time) {
	p.Evolving.Topics = EvolveTopics(p.Evolving.Topics, topicNames, now)
	p.Evolving.UsageCount++
	p.Evolving.LastUpdated = now
	p.Evolving.LastPrompt = truncateRunes(prompt, MaxPromptLen)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
