// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package element

// AppendEscaped appends s to dst, replacing the five XML special characters
// with their named entities.
// Unlike encoding/xml, quotes are written as &apos; and &quot; and no other
// characters are touched.
func AppendEscaped(dst []byte, s string) []byte {
	last := 0
	for i := 0; i < len(s); i++ {
		var esc string
		switch s[i] {
		case '&':
			esc = "&amp;"
		case '<':
			esc = "&lt;"
		case '>':
			esc = "&gt;"
		case '\'':
			esc = "&apos;"
		case '"':
			esc = "&quot;"
		default:
			continue
		}
		dst = append(dst, s[last:i]...)
		dst = append(dst, esc...)
		last = i + 1
	}
	return append(dst, s[last:]...)
}

// Escape returns s with the XML special characters escaped.
func Escape(s string) string {
	return string(AppendEscaped(make([]byte, 0, len(s)), s))
}
