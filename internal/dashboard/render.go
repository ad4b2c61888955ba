package dashboard

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/model"
)

// RenderEntity renders the Mastodon entity types; anything else shows its id.
func RenderEntity(e entity.Entity) Item {
	switch v := e.(type) {
	case model.Status:
		return renderStatus(v)
	case model.Account:
		return renderAccount(v)
	case model.Notification:
		return renderNotification(v)
	}
	return Item{ID: e.EntityID(), Title: e.EntityID(), Detail: fmt.Sprintf("%+v", e)}
}

func renderStatus(s model.Status) Item {
	shown := s
	prefix := ""
	if s.Reblog != nil {
		shown = *s.Reblog
		prefix = "♺ "
	}
	text := PlainText(shown.Content)
	if shown.SpoilerText != "" {
		text = "CW: " + shown.SpoilerText
	}

	var d strings.Builder
	fmt.Fprintf(&d, "%s\n", titleText.Render(handle(shown.Account)))
	if s.Reblog != nil {
		fmt.Fprintf(&d, "%s\n", mutedText.Render("boosted by "+handle(s.Account)))
	}
	if shown.SpoilerText != "" {
		fmt.Fprintf(&d, "CW: %s\n", shown.SpoilerText)
	}
	fmt.Fprintf(&d, "\n%s\n\n", PlainText(shown.Content))
	fmt.Fprintf(&d, "%s", mutedText.Render(fmt.Sprintf("↩ %d  ♺ %d  ★ %d", shown.RepliesCount, shown.ReblogsCount, shown.FavouritesCount)))
	if shown.Favourited {
		d.WriteString(" " + staleBadge.Render("favourited"))
	}
	if !shown.CreatedAt.IsZero() {
		fmt.Fprintf(&d, "\n%s", mutedText.Render(shown.CreatedAt.Format("2006-01-02 15:04")))
	}

	return Item{
		ID:     s.ID,
		Title:  prefix + handle(shown.Account) + ": " + firstLine(text),
		Detail: d.String(),
	}
}

func renderAccount(a model.Account) Item {
	var d strings.Builder
	name := a.DisplayName
	if name == "" {
		name = a.Username
	}
	fmt.Fprintf(&d, "%s\n%s\n\n", titleText.Render(name), mutedText.Render("@"+a.Acct))
	if note := PlainText(a.Note); note != "" {
		fmt.Fprintf(&d, "%s\n\n", note)
	}
	fmt.Fprintf(&d, "%d posts  %d following  %d followers", a.StatusesCount, a.FollowingCount, a.FollowersCount)
	return Item{ID: a.ID, Title: handle(a), Detail: d.String()}
}

func renderNotification(n model.Notification) Item {
	title := fmt.Sprintf("%s %s", n.Type, handle(n.Account))
	detail := title
	if n.Status != nil {
		st := renderStatus(*n.Status)
		title += ": " + firstLine(PlainText(n.Status.Content))
		detail = titleText.Render(n.Type) + "\n\n" + st.Detail
	}
	return Item{ID: n.ID, Title: title, Detail: detail}
}

func handle(a model.Account) string {
	if a.Acct == "" {
		return "@" + a.Username
	}
	return "@" + a.Acct
}

// PlainText strips markup from status HTML, turning paragraph and line breaks
// into newlines.
func PlainText(s string) string {
	if !strings.ContainsRune(s, '<') {
		return html.UnescapeString(s)
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	paragraphs := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br":
				b.WriteByte('\n')
			case "p":
				if paragraphs > 0 {
					b.WriteString("\n\n")
				}
				paragraphs++
			}
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
