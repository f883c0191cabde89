package api

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/trend-comb/app/trend"
)

// Generator renders a ranked result as an RSS 2.0 document.
type Generator struct {
	baseURL string
	version string
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{baseURL: strings.TrimRight(baseURL, "/"), version: version}
}

func (g *Generator) Run(result *trend.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no result to render")
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	geo := result.Geo
	title := fmt.Sprintf("Trending: %s", result.Source)
	if geo != "" {
		title = fmt.Sprintf("%s (%s)", title, geo)
	}
	selfLink := fmt.Sprintf("%s/feeds/%s", g.baseURL, result.Source)

	g.writeElement(&buf, "title", title, 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Top %d trends from %s", len(result.Trends), result.Source), 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	g.writeElement(&buf, "lastBuildDate", result.FetchedAt.In(time.Local).Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Trend-Comb/%s", g.version), 4)

	for _, record := range result.Trends {
		g.writeItem(&buf, record)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, record trend.Record) {
	buf.WriteString("    <item>\n")

	var link string
	_, _ = record.Metadata.Decode("url", &link)

	guid := link
	if guid == "" {
		guid = fmt.Sprintf("%s:%s:%s", record.Source, record.Geo, record.Topic)
	}
	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(guid)))
	xml.EscapeText(buf, []byte(guid))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", record.Topic, 6)
	g.writeElement(buf, "link", link, 6)
	g.writeElement(buf, "description", g.describe(record), 6)

	if !record.Timestamp.IsZero() {
		g.writeElement(buf, "pubDate", record.Timestamp.In(time.Local).Format(time.RFC1123Z), 6)
	}

	g.writeElement(buf, "category", string(record.Source), 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) describe(record trend.Record) string {
	parts := []string{fmt.Sprintf("Rank %d", record.Rank), fmt.Sprintf("score %d", record.Score)}

	var traffic string
	if ok, _ := record.Metadata.Decode("approximate_traffic", &traffic); ok && traffic != "" {
		parts = append(parts, "traffic "+traffic)
	}

	return strings.Join(parts, ", ")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
