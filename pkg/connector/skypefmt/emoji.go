// Copyright 2024-2026 Aiku AI

package skypefmt

// emoticonNames maps Skype emoticon type codes to canonical emoji names.
// Many legacy codes have no direct equivalent; those fall through the
// resolution chain in resolveEmoticon.
var emoticonNames = map[string]string{
	"like":       "thumbsup",
	"yes":        "thumbsup",
	"no":         "thumbsdown",
	"heart":      "heart",
	"laugh":      "joy",
	"smile":      "smile",
	"happy":      "smile",
	"sad":        "cry",
	"cry":        "sob",
	"wink":       "wink",
	"cool":       "sunglasses",
	"hearteyes":  "heart_eyes",
	"kiss":       "kissing_heart",
	"tongueout":  "stuck_out_tongue",
	"surprised":  "open_mouth",
	"wonder":     "open_mouth",
	"angry":      "angry",
	"sweat":      "sweat",
	"facepalm":   "facepalm",
	"rofl":       "rofl",
	"hug":        "hugging",
	"party":      "tada",
	"clap":       "clap",
	"hi":         "wave",
	"wave":       "wave",
	"fire":       "fire",
	"star":       "star",
	"ok":         "ok_hand",
	"praying":    "pray",
	"handshake":  "handshake",
	"mmm":        "yum",
	"speechless": "neutral_face",
	"blush":      "blush",
	"nod":        "thumbsup",
}

// emojiGlyphs resolves canonical names to Unicode. It also carries raw type
// codes and their "_face" variants so codes without a table entry can still
// resolve automatically.
var emojiGlyphs = map[string]string{
	"thumbsup":         "\U0001f44d",
	"thumbsdown":       "\U0001f44e",
	"heart":            "❤️",
	"joy":              "\U0001f602",
	"smile":            "\U0001f604",
	"cry":              "\U0001f622",
	"sob":              "\U0001f62d",
	"wink":             "\U0001f609",
	"sunglasses":       "\U0001f60e",
	"heart_eyes":       "\U0001f60d",
	"kissing_heart":    "\U0001f618",
	"stuck_out_tongue": "\U0001f61b",
	"open_mouth":       "\U0001f62e",
	"angry":            "\U0001f620",
	"sweat":            "\U0001f613",
	"facepalm":         "\U0001f926",
	"rofl":             "\U0001f923",
	"hugging":          "\U0001f917",
	"tada":             "\U0001f389",
	"clap":             "\U0001f44f",
	"wave":             "\U0001f44b",
	"fire":             "\U0001f525",
	"star":             "⭐",
	"ok_hand":          "\U0001f44c",
	"pray":             "\U0001f64f",
	"handshake":        "\U0001f91d",
	"yum":              "\U0001f60b",
	"neutral_face":     "\U0001f610",
	"blush":            "\U0001f60a",
	"penguin":          "\U0001f427",
	"monkey_face":      "\U0001f435",
	"dog_face":         "\U0001f436",
	"cat_face":         "\U0001f431",
	"bear_face":        "\U0001f43b",
}

// resolveEmoticon runs the triple-fallback chain for an emoticon type code:
// mapped canonical name, then the raw code, then the code's "_face"
// variant. Returns false when nothing resolves; callers render the literal
// "(type)" form instead.
func resolveEmoticon(typ string) (string, bool) {
	if name, ok := emoticonNames[typ]; ok {
		if glyph, ok := emojiGlyphs[name]; ok {
			return glyph, true
		}
	}
	if glyph, ok := emojiGlyphs[typ]; ok {
		return glyph, true
	}
	if glyph, ok := emojiGlyphs[typ+"_face"]; ok {
		return glyph, true
	}
	return "", false
}
