package render

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"go-webring/internal/feeds"
	"go-webring/internal/logx"
	"go-webring/internal/model"
)

type opmlDoc struct {
	XMLName xml.Name    `xml:"opml"`
	Version string      `xml:"version,attr"`
	Head    opmlHead    `xml:"head"`
	Body    []opmlEntry `xml:"body>outline"`
}

type opmlHead struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
	OwnerName   string `xml:"ownerName,omitempty"`
	OwnerID     string `xml:"ownerId,omitempty"`
}

type opmlEntry struct {
	Text    string `xml:"text,attr"`
	Title   string `xml:"title,attr,omitempty"`
	Type    string `xml:"type,attr"`
	XMLURL  string `xml:"xmlUrl,attr"`
	HTMLURL string `xml:"htmlUrl,attr,omitempty"`
}

// buildOPML 为同时具备 owner 与 rss 的站点生成订阅大纲，按环顺序排列。
func (r *Renderer) buildOPML(ctx context.Context, entries []model.RingEntry) opmlDoc {
	doc := opmlDoc{
		Version: "2.0",
		Head: opmlHead{
			Title:       r.cfg.RingDescription,
			DateCreated: r.now().Format(time.RFC1123Z),
			OwnerName:   r.cfg.RingOwner,
			OwnerID:     r.cfg.RingOwnerSite,
		},
	}
	for _, e := range entries {
		if e.Site.Owner == "" || e.Site.RSS == "" {
			continue
		}
		doc.Body = append(doc.Body, opmlEntry{Text: e.Site.Owner, Type: "rss", XMLURL: e.Site.RSS, HTMLURL: e.Site.URL})
	}
	if r.feedClient != nil {
		r.fillFeedTitles(ctx, doc.Body)
	}
	return doc
}

// fillFeedTitles 并发解析订阅，用订阅标题补充 outline 的 title；失败只记录告警。
func (r *Renderer) fillFeedTitles(ctx context.Context, outlines []opmlEntry) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range outlines {
		i := i
		g.Go(func() error {
			f, err := feeds.Parse(gctx, r.feedClient, outlines[i].XMLURL)
			if err != nil {
				logx.Warnf("订阅解析失败，OPML 不含标题：%v", err)
				return nil
			}
			outlines[i].Title = f.Title
			return nil
		})
	}
	_ = g.Wait()
}

func writeOPML(path string, doc opmlDoc) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(xml.Header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode opml to %s: %w", path, err)
	}
	return nil
}
