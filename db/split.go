package db

import (
	"strings"
	"unicode"
)

// SplitStatements splits a SQL script into individual statements with the
// standard SQL quoting rules, plus Postgres dollar quoting and E'' strings.
// See SplitStatementsFor.
func SplitStatements(script string) []string {
	return SplitStatementsFor("", script)
}

// SplitStatementsFor splits a SQL script into individual statements on
// semicolons, following the lexical rules of the given engine. Semicolons
// inside quoted strings, quoted identifiers, comments and Postgres
// dollar-quoted bodies don't end a statement. Statements consisting only of
// whitespace and comments are dropped, and the trailing semicolon is not
// included in the returned statements.
//
// On MySQL, backslashes escape the next character in strings, and '#' starts
// a line comment. On other engines, only strings with an E prefix support
// backslash escapes.
func SplitStatementsFor(engine, script string) []string {
	mysql := engine == "mysql"

	var (
		stmts      []string
		start      int
		hasContent bool
	)

	flush := func(end int) {
		if hasContent {
			stmts = append(stmts, strings.TrimSpace(script[start:end]))
		}
		hasContent = false
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '-' && strings.HasPrefix(script[i:], "--"):
			i = skipUntil(script, i+2, "\n") - 1
		case c == '#' && mysql:
			i = skipUntil(script, i+1, "\n") - 1
		case c == '/' && strings.HasPrefix(script[i:], "/*"):
			i = skipUntil(script, i+2, "*/") - 1
		case c == '\'' || c == '"' || c == '`':
			hasContent = true
			backslash := c != '`' && (mysql || (c == '\'' && escapePrefix(script, i)))
			i = skipQuoted(script, i+1, c, backslash) - 1
		case c == '$' && !mysql:
			hasContent = true
			if tag, ok := dollarTag(script[i:]); ok {
				i = skipUntil(script, i+len(tag), tag) - 1
			}
		case c == ';':
			flush(i)
			start = i + 1
		case !unicode.IsSpace(rune(c)):
			hasContent = true
		}
	}
	flush(len(script))

	return stmts
}

// skipUntil returns the index just past the first occurrence of end in s
// starting at from, or len(s) if it's not found.
func skipUntil(s string, from int, end string) int {
	if from > len(s) {
		return len(s)
	}
	idx := strings.Index(s[from:], end)
	if idx < 0 {
		return len(s)
	}
	return from + idx + len(end)
}

// skipQuoted returns the index just past the closing quote q. A doubled quote
// is an escaped one, and so is any character following a backslash if
// backslash is true.
func skipQuoted(s string, from int, q byte, backslash bool) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if backslash {
				i++
			}
		case q:
			if i+1 < len(s) && s[i+1] == q {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}

// escapePrefix reports whether the quote at index i opens a Postgres escape
// string constant, e.g. E'it\'s'.
func escapePrefix(s string, i int) bool {
	if i == 0 || (s[i-1] != 'E' && s[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(s[i-2])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

// dollarTag returns the opening dollar-quote tag at the start of s, e.g. "$$"
// or "$body$". Positional parameters like "$1" are not tags.
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		isIdent := c == '_' || unicode.IsLetter(rune(c)) || (i > 1 && unicode.IsDigit(rune(c)))
		if !isIdent {
			return "", false
		}
	}
	return "", false
}
