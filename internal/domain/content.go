package domain

// ContentKind classifies the payload of an inbound or outbound message.
type ContentKind string

const (
	ContentText      ContentKind = "TEXT"
	ContentImage     ContentKind = "IMAGE"
	ContentVideo     ContentKind = "VIDEO"
	ContentVideoNote ContentKind = "VIDEO_NOTE"
	ContentVoice     ContentKind = "VOICE"
	ContentDocument  ContentKind = "DOCUMENT"
	ContentSticker   ContentKind = "STICKER"
	ContentAnimation ContentKind = "ANIMATION"
)

// Content is one message payload as seen by the relay. MediaRef is the
// gateway's opaque handle for non-text kinds and is forwarded untouched.
type Content struct {
	Kind     ContentKind
	Text     string
	Caption  string
	MediaRef string
}

// SupportedContentKind reports whether the relay has a forwarding
// mapping for k.
func SupportedContentKind(k ContentKind) bool {
	switch k {
	case ContentText, ContentImage, ContentVideo, ContentVideoNote,
		ContentVoice, ContentDocument, ContentSticker, ContentAnimation:
		return true
	}
	return false
}

// LogText normalizes content to the text stored on a Response row.
// Media kinds without a caption collapse to a placeholder.
func (c Content) LogText() string {
	if c.Kind == ContentText {
		return c.Text
	}
	if c.Caption != "" {
		return c.Caption
	}
	switch c.Kind {
	case ContentImage:
		return "[image]"
	case ContentVideo:
		return "[video]"
	case ContentVideoNote:
		return "[video note]"
	case ContentVoice:
		return "[voice message]"
	case ContentDocument:
		return "[document]"
	case ContentSticker:
		return "[sticker]"
	case ContentAnimation:
		return "[animation]"
	}
	return "[media]"
}
