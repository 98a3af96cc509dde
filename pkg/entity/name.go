package entity

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raterudder/esplus/pkg/types"
)

var defaultNameFormats = map[types.Lang]map[types.Kind]string{
	types.LangEN: {
		types.KindAccounts:       "{account_code} {type_en_cap}",
		types.KindMeters:         "{account_code} {type_en_cap} {code}",
		types.KindCharges:        "{account_code} {type_en_cap}",
		types.KindServiceCharges: "{account_code} {type_en_cap} ({service_name})",
		types.KindLastPayment:    "{account_code} {type_en_cap}",
	},
	types.LangRU: {
		types.KindAccounts:       "{account_code} {type_ru_cap}",
		types.KindMeters:         "{account_code} {type_ru_cap} {code}",
		types.KindCharges:        "{account_code} {type_ru_cap}",
		types.KindServiceCharges: "{account_code} {type_ru_cap} ({service_name})",
		types.KindLastPayment:    "{account_code} {type_ru_cap}",
	},
}

// DefaultNameFormat returns the name template used for k when none is
// configured.
func DefaultNameFormat(lang types.Lang, k types.Kind) string {
	formats, ok := defaultNameFormats[lang]
	if !ok {
		formats = defaultNameFormats[types.LangEN]
	}
	return formats[k]
}

// lookupNameValue resolves a placeholder. A key with an _upper, _cap or _title
// suffix transforms the value of the key without it. Unknown keys render as
// themselves in double braces.
func lookupNameValue(values map[string]string, key string) string {
	if v, ok := values[key]; ok {
		return v
	}
	if base, ok := strings.CutSuffix(key, "_upper"); ok {
		if v, ok := values[base]; ok {
			return strings.ToUpper(v)
		}
	}
	if base, ok := strings.CutSuffix(key, "_cap"); ok {
		if v, ok := values[base]; ok {
			return capitalize(v)
		}
	}
	if base, ok := strings.CutSuffix(key, "_title"); ok {
		if v, ok := values[base]; ok {
			return title(v)
		}
	}
	return "{{" + key + "}}"
}

// FormatName renders a template with {key} placeholders. Doubled braces are
// literal braces.
func FormatName(format string, values map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		c := format[i]
		switch {
		case c == '{' && i+1 < len(format) && format[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(format) && format[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(format[i+1:], '}')
			if end < 0 {
				b.WriteString(format[i:])
				return b.String()
			}
			b.WriteString(lookupNameValue(values, format[i+1:i+1+end]))
			i += end + 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// title upper-cases the first letter of every word and lower-cases the rest.
func title(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify reduces s to lowercase ASCII words joined by underscores.
func slugify(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "_"), "_")
}
