// Package ranking turns raw engagement counters into ordered trend records.
// Everything here is pure; the only time value used is the one passed in.
package ranking

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lysyi3m/trend-comb/app/trend"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxTrends caps a merged hashtag ranking.
const MaxTrends = 20

type Post struct {
	ID         string
	Text       string
	Author     string // username
	AuthorName string
	CreatedAt  time.Time
	Likes      int
	Retweets   int
	Replies    int
	Hashtags   []string // as annotated upstream, with or without '#'
}

// Engagement is the unweighted interaction count used for tweet ordering.
func (p Post) Engagement() int {
	return p.Likes + p.Retweets + p.Replies
}

// WeightedEngagement doubles retweets as a proxy for reach.
func (p Post) WeightedEngagement() int {
	return p.Likes + 2*p.Retweets + p.Replies
}

type HashtagStat struct {
	Tag             string  // lower-cased, without '#'
	Mentions        int     // occurrences across sampled posts
	TotalEngagement int64   // sum of weighted engagement of mentioning posts
	AvgEngagement   float64 // TotalEngagement / Mentions
	VelocityScore   int64   // Mentions * AvgEngagement
}

var hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// NormalizeTag gives the case-insensitive identity of a hashtag. A Caser is
// stateful, so one is built per call.
func NormalizeTag(tag string) string {
	return cases.Lower(language.Und).String(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}

// PostHashtags returns the annotated hashtags of p, falling back to #tokens
// in the text when the upstream did not annotate any.
func PostHashtags(p Post) []string {
	if len(p.Hashtags) > 0 {
		return p.Hashtags
	}
	matches := hashtagRe.FindAllStringSubmatch(p.Text, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return tags
}

// ScoreTweets orders posts by unweighted engagement, descending. Ties keep
// input order.
func ScoreTweets(posts []Post) []trend.Tweet {
	tweets := make([]trend.Tweet, 0, len(posts))
	for _, p := range posts {
		author := p.Author
		if author == "" {
			author = "unknown"
		}
		authorName := p.AuthorName
		if authorName == "" {
			authorName = author
		}

		tweets = append(tweets, trend.Tweet{
			ID:              p.ID,
			Text:            p.Text,
			Author:          author,
			AuthorName:      authorName,
			CreatedAt:       p.CreatedAt,
			Likes:           p.Likes,
			Retweets:        p.Retweets,
			Replies:         p.Replies,
			EngagementScore: p.Engagement(),
			URL:             fmt.Sprintf("https://twitter.com/%s/status/%s", author, p.ID),
		})
	}

	sort.SliceStable(tweets, func(i, j int) bool {
		return tweets[i].EngagementScore > tweets[j].EngagementScore
	})

	return tweets
}

// ScoreHashtags aggregates hashtag mentions over posts and orders them by
// velocity score, descending. Ties keep first-seen order.
func ScoreHashtags(posts []Post) []HashtagStat {
	index := make(map[string]int)
	var stats []HashtagStat

	for _, p := range posts {
		engagement := int64(p.WeightedEngagement())
		for _, raw := range PostHashtags(p) {
			tag := NormalizeTag(raw)
			if tag == "" {
				continue
			}

			i, ok := index[tag]
			if !ok {
				i = len(stats)
				index[tag] = i
				stats = append(stats, HashtagStat{Tag: tag})
			}
			stats[i].Mentions++
			stats[i].TotalEngagement += engagement
		}
	}

	for i := range stats {
		stats[i].AvgEngagement = float64(stats[i].TotalEngagement) / float64(stats[i].Mentions)
		// Mentions * AvgEngagement, kept exact in integer space.
		stats[i].VelocityScore = stats[i].TotalEngagement
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].VelocityScore > stats[j].VelocityScore
	})

	return stats
}

// MergeHashtagStats sums mentions, total engagement and velocity score of
// tag-equal entries across lists. The result does not depend on the order of
// the input lists: ties are broken by mentions, then by tag.
func MergeHashtagStats(lists [][]HashtagStat) []HashtagStat {
	combined := make(map[string]*HashtagStat)
	for _, list := range lists {
		for _, s := range list {
			tag := NormalizeTag(s.Tag)
			c, ok := combined[tag]
			if !ok {
				c = &HashtagStat{Tag: tag}
				combined[tag] = c
			}
			c.Mentions += s.Mentions
			c.TotalEngagement += s.TotalEngagement
			c.VelocityScore += s.VelocityScore
		}
	}

	merged := make([]HashtagStat, 0, len(combined))
	for _, c := range combined {
		if c.Mentions > 0 {
			c.AvgEngagement = float64(c.TotalEngagement) / float64(c.Mentions)
		}
		merged = append(merged, *c)
	}

	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.VelocityScore != b.VelocityScore {
			return a.VelocityScore > b.VelocityScore
		}
		if a.Mentions != b.Mentions {
			return a.Mentions > b.Mentions
		}
		return a.Tag < b.Tag
	})

	return merged
}

// RankHashtags converts ordered stats into contiguous trend records, keeping
// at most limit entries (limit <= 0 keeps all).
func RankHashtags(stats []HashtagStat, limit int, geo string, now time.Time) []trend.Record {
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}

	records := make([]trend.Record, 0, len(stats))
	for i, s := range stats {
		hashtag := "#" + s.Tag

		var meta trend.Metadata
		_ = meta.Set("hashtag", hashtag)
		_ = meta.Set("mentions", s.Mentions)
		_ = meta.Set("total_engagement", s.TotalEngagement)
		_ = meta.Set("velocity_score", s.VelocityScore)

		records = append(records, trend.Record{
			Rank:      i + 1,
			Topic:     hashtag,
			Source:    trend.SourceSearchEngagement,
			Geo:       geo,
			Score:     s.VelocityScore,
			Timestamp: now,
			Metadata:  meta,
		})
	}

	return records
}
