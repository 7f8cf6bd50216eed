package service

import (
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#bfef45", "#469990", "#9a6324",
}

// colorFor picks a stable palette entry for a connection id.
func colorFor(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return palette[h.Sum32()%uint32(len(palette))]
}

// sanitizeName trims, drops control characters and truncates to max runes.
func sanitizeName(name string, max int) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	if max > 0 && utf8.RuneCountInString(name) > max {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:max]))
	}
	return name
}

func defaultName(id string) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 4 {
		short = short[:4]
	}
	return "Guest-" + short
}

func validColor(c string) bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for _, r := range c[1:] {
		if !unicode.Is(unicode.ASCII_Hex_Digit, r) {
			return false
		}
	}
	return true
}
