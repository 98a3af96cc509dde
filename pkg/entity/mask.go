package entity

import (
	"fmt"
	"regexp"
)

var (
	maskLetterRe = regexp.MustCompile(`[A-Za-z]`)
	maskDigitRe  = regexp.MustCompile(`[0-9]`)
	maskWordRe   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// maskFilter keeps the shape of a value while hiding its characters.
func maskFilter(v interface{}) string {
	s := fmt.Sprint(v)
	s = maskLetterRe.ReplaceAllString(s, "X")
	s = maskDigitRe.ReplaceAllString(s, "#")
	return maskWordRe.ReplaceAllString(s, "*")
}

// maskBlackout replaces a value with a placeholder of its type.
func maskBlackout(v interface{}) interface{} {
	switch v.(type) {
	case float32, float64:
		return "#####.###"
	case int, int32, int64, bool:
		return "#####"
	case string:
		return "XXXXX"
	}
	return "*****"
}

// maskValues masks the given keys of m in place. Keys listed in blackout are
// replaced entirely, keys in filter keep their shape. Nil values are left
// alone.
func maskValues(m map[string]interface{}, filter []string, blackout []string) {
	black := make(map[string]struct{}, len(blackout))
	for _, k := range blackout {
		black[k] = struct{}{}
		if v := deref(m[k]); v != nil {
			m[k] = maskBlackout(v)
		}
	}
	for _, k := range filter {
		if _, ok := black[k]; ok {
			continue
		}
		if v := deref(m[k]); v != nil {
			m[k] = maskFilter(v)
		}
	}
}

func maskStrings(m map[string]string, filter []string, blackout []string) {
	generic := make(map[string]interface{}, len(m))
	for k, v := range m {
		generic[k] = v
	}
	maskValues(generic, filter, blackout)
	for k, v := range generic {
		m[k] = fmt.Sprint(v)
	}
}

// deref unwraps pointers used for optional values so masking sees the
// underlying type.
func deref(v interface{}) interface{} {
	switch t := v.(type) {
	case *float64:
		if t == nil {
			return nil
		}
		return *t
	case *int:
		if t == nil {
			return nil
		}
		return *t
	case *string:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}

// maskedAmount hides an amount but keeps its sign.
func maskedAmount(v float64) string {
	if v < 0 {
		return "-#####.###"
	}
	return "#####.###"
}
