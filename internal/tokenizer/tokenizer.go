// Package tokenizer expands execution strings into process argument lists.
//
// An execution string is split on unescaped whitespace. A token that starts
// with '{' is a substitution of the form {key} or {key:args}; every other
// token is literal text. A backslash escapes '\', '{', '}' and space, and
// nothing else. Substituted values are never re-split, so a file name
// containing spaces or braces always stays a single argument.
package tokenizer

import (
	"path/filepath"
	"strings"

	"github.com/starford/comicshelf/internal/apperr"
	"github.com/starford/comicshelf/internal/models"
)

// Source is the data a substitution can read. *models.Comic satisfies it.
type Source interface {
	FilePaths() []string
	ContainingPath() string
	Title() models.SortedString
	Author() models.SortedString
	Category() models.SortedString
}

// Keys understood inside braces.
const (
	KeyFirst     = "first"
	KeyAll       = "all"
	KeyFolder    = "folder"
	KeyFirstName = "firstname"
	KeyAllName   = "allname"
	KeyTitle     = "title"
	KeyAuthor    = "author"
	KeyCategory  = "category"
)

// placeholder stands in for a comic when an execution string is only being validated.
type placeholder struct{}

func (placeholder) FilePaths() []string {
	return []string{"/path/to/comic/first.png", "/path/to/comic/second.png"}
}
func (placeholder) ContainingPath() string { return "/path/to/comic" }
func (placeholder) Title() models.SortedString {
	return models.NewSortedString("Title")
}
func (placeholder) Author() models.SortedString {
	return models.NewSortedString("Author")
}
func (placeholder) Category() models.SortedString {
	return models.NewSortedString("Category")
}

// Validate checks format against placeholder values.
func Validate(format string) error {
	_, err := Tokenize(format, nil)
	return err
}

// Tokenize expands format for src. A nil src expands every key to a fixed
// placeholder. An empty format yields the first file path alone.
func Tokenize(format string, src Source) ([]string, error) {
	if src == nil {
		src = placeholder{}
	}
	if strings.TrimSpace(format) == "" {
		return []string{firstPath(src)}, nil
	}

	raw, err := lex(format)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, tok := range raw {
		args, err := expand(format, tok, src)
		if err != nil {
			return nil, err
		}
		out = append(out, args...)
	}
	return out, nil
}

func firstPath(src Source) string {
	paths := src.FilePaths()
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// char is one decoded rune with its escape state and source offset.
type char struct {
	r       rune
	escaped bool
	pos     int
}

type token []char

func lex(format string) ([]token, error) {
	var (
		out []token
		cur token
	)
	runes := []rune(format)
	offsets := make([]int, 0, len(runes))
	for i := range format {
		offsets = append(offsets, i)
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\':
			if i+1 >= len(runes) {
				return nil, tokenErr(format, offsets[i], "dangling escape")
			}
			next := runes[i+1]
			switch next {
			case '\\', '{', '}', ' ':
			default:
				return nil, tokenErr(format, offsets[i], "invalid escape \\"+string(next))
			}
			cur = append(cur, char{r: next, escaped: true, pos: offsets[i]})
			i++
		case isSpace(r):
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
		default:
			cur = append(cur, char{r: r, pos: offsets[i]})
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func expand(format string, tok token, src Source) ([]string, error) {
	if tok[0].r != '{' || tok[0].escaped {
		for _, c := range tok {
			if !c.escaped && (c.r == '{' || c.r == '}') {
				return nil, tokenErr(format, c.pos, "unescaped brace in literal")
			}
		}
		return []string{tok.text()}, nil
	}

	last := tok[len(tok)-1]
	if len(tok) < 2 || last.escaped || last.r != '}' {
		return nil, tokenErr(format, tok[0].pos, "unterminated brace")
	}
	body := tok[1 : len(tok)-1]
	for _, c := range body {
		if c.escaped {
			continue
		}
		switch c.r {
		case '{':
			return nil, tokenErr(format, c.pos, "nested brace")
		case '}':
			return nil, tokenErr(format, c.pos, "unexpected closing brace")
		}
	}

	key, args, hasArgs := body.split(':')
	return substitute(format, tok[0].pos, key, args, hasArgs, src)
}

func (t token) text() string {
	var b strings.Builder
	for _, c := range t {
		b.WriteRune(c.r)
	}
	return b.String()
}

// split cuts t at the first unescaped sep.
func (t token) split(sep rune) (before, after string, found bool) {
	for i, c := range t {
		if !c.escaped && c.r == sep {
			return t[:i].text(), t[i+1:].text(), true
		}
	}
	return t.text(), "", false
}

func substitute(format string, pos int, key, args string, hasArgs bool, src Source) ([]string, error) {
	noArgs := func(v string) ([]string, error) {
		if hasArgs {
			return nil, tokenErr(format, pos, "key "+key+" takes no arguments")
		}
		return []string{v}, nil
	}

	switch key {
	case KeyFirst:
		return noArgs(firstPath(src))
	case KeyFolder:
		return noArgs(src.ContainingPath())
	case KeyFirstName:
		return noArgs(filepath.Base(firstPath(src)))
	case KeyTitle:
		return noArgs(src.Title().Display)
	case KeyAuthor:
		return noArgs(src.Author().Display)
	case KeyCategory:
		return noArgs(src.Category().Display)
	case KeyAll:
		return many(src.FilePaths(), args, hasArgs), nil
	case KeyAllName:
		paths := src.FilePaths()
		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = filepath.Base(p)
		}
		return many(names, args, hasArgs), nil
	default:
		return nil, tokenErr(format, pos, "unknown key "+key)
	}
}

// many yields one argument per value, or a single joined argument when a
// separator was given.
func many(values []string, sep string, join bool) []string {
	if join {
		return []string{strings.Join(values, sep)}
	}
	return values
}

func tokenErr(format string, pos int, reason string) error {
	return &apperr.TokenFormatError{Format: format, Pos: pos, Reason: reason}
}
