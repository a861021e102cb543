package tgui

import (
	"context"
	"strings"

	kit "doggobot/internal/transport"
)

// Message is rendered text plus the send options it needs.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send delivers the message. replyTo is a message id, 0 for none.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget, replyTo int) (kit.MessageRef, error) {
	opt := kit.SendOptions{}
	if m.Opt != nil {
		opt = *m.Opt
	}
	opt.ReplyTo = replyTo
	return ad.SendText(ctx, to, m.Text, &opt)
}

// Builder collects lines. Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	parseMode      string
	disablePreview bool
	lines          []string
}

func New() *Builder {
	return &Builder{parseMode: "HTML", disablePreview: true}
}

// ParseMode overrides the parse mode ("HTML" or empty for plain text).
func (b *Builder) ParseMode(mode string) *Builder {
	b.parseMode = strings.TrimSpace(mode)
	return b
}

func (b *Builder) html() bool { return strings.EqualFold(b.parseMode, "HTML") }

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e := strings.TrimSpace(emoji)
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	line := t
	if b.html() {
		line = B(t).String()
	}
	if e != "" {
		line = e + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

// Line adds one line, escaped in HTML mode.
func (b *Builder) Line(s string) *Builder {
	if b.html() {
		s = Esc(s).String()
	}
	b.lines = append(b.lines, s)
	return b
}

// RawLine appends a line without escaping.
func (b *Builder) RawLine(s string) *Builder {
	b.lines = append(b.lines, s)
	return b
}

func (b *Builder) Blank() *Builder { return b.RawLine("") }

// Ranked adds "n. label: count" rows, label in bold.
func (b *Builder) Ranked(rows []RankRow) *Builder {
	for i, r := range rows {
		label := TruncRunes(r.Label, 48)
		if b.html() {
			b.lines = append(b.lines, itoa(i+1)+". "+B(label).String()+": "+itoa(r.Count))
			continue
		}
		b.lines = append(b.lines, itoa(i+1)+". "+label+": "+itoa(r.Count))
	}
	return b
}

// RankRow is one Ranked line.
type RankRow struct {
	Label string
	Count int
}

// KV adds a "key: value" bullet.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	if b.html() {
		b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(value).String())
		return b
	}
	b.lines = append(b.lines, "• "+key+": "+value)
	return b
}

func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	return Message{Text: text, Opt: &kit.SendOptions{ParseMode: b.parseMode, DisablePreview: b.disablePreview}}
}
