package chat

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"

	"github.com/talkroom/talkroom-server/internal/store"
)

// pictographic covers the common emoji blocks: miscellaneous symbols,
// dingbats, emoticons, transport, supplemental pictographs, regional
// indicators and the combining keycap.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x203C, Hi: 0x203C, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x20E3, Hi: 0x20E3, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x2199, Stride: 1},
		{Lo: 0x21A9, Hi: 0x21AA, Stride: 1},
		{Lo: 0x231A, Hi: 0x231B, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x23CF, Hi: 0x23CF, Stride: 1},
		{Lo: 0x23E9, Hi: 0x23F3, Stride: 1},
		{Lo: 0x23F8, Hi: 0x23FA, Stride: 1},
		{Lo: 0x24C2, Hi: 0x24C2, Stride: 1},
		{Lo: 0x25B6, Hi: 0x25B6, Stride: 1},
		{Lo: 0x25C0, Hi: 0x25C0, Stride: 1},
		{Lo: 0x2600, Hi: 0x27BF, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2B05, Hi: 0x2B07, Stride: 1},
		{Lo: 0x2B1B, Hi: 0x2B1C, Stride: 1},
		{Lo: 0x2B50, Hi: 0x2B50, Stride: 1},
		{Lo: 0x2B55, Hi: 0x2B55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303D, Hi: 0x303D, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1F000, Hi: 0x1F0FF, Stride: 1},
		{Lo: 0x1F1E6, Hi: 0x1F1FF, Stride: 1},
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1},
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1},
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1},
		{Lo: 0x1F700, Hi: 0x1F77F, Stride: 1},
		{Lo: 0x1F7E0, Hi: 0x1F7EB, Stride: 1},
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1},
		{Lo: 0x1FA70, Hi: 0x1FAFF, Stride: 1},
	},
}

// Classify inspects message text and derives its content kind plus the
// emoji clusters it contains, in order of appearance.
//
// Text is segmented into grapheme clusters so that multi-rune emoji
// (skin tones, flags, ZWJ sequences) are extracted whole. A cluster
// counts as an emoji when any of its runes is pictographic. With no
// emoji the kind is text; emoji with nothing else left after trimming
// is emoji; otherwise text_with_emoji.
func Classify(text string) (store.MessageKind, []string) {
	var (
		emojis []string
		plain  strings.Builder
	)

	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		if isEmojiCluster(gr.Runes()) {
			emojis = append(emojis, gr.Str())
		} else {
			plain.WriteString(gr.Str())
		}
	}

	if len(emojis) == 0 {
		return store.MessageKindText, nil
	}
	if strings.TrimSpace(plain.String()) == "" {
		return store.MessageKindEmoji, emojis
	}
	return store.MessageKindTextWithEmoji, emojis
}

func isEmojiCluster(runes []rune) bool {
	for _, r := range runes {
		if unicode.Is(pictographic, r) {
			return true
		}
	}
	return false
}
