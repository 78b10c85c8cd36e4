package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lyzr/workflowengine/pkg/wferrors"
)

var validRoots = map[string]Root{
	string(RootInput): RootInput,
	string(RootEnv):   RootEnv,
	string(RootTasks): RootTasks,
}

// Parse parses raw into a Template. A raw string containing exactly one
// `{{...}}` reference and no other characters is Pure; otherwise every
// `{{...}}` occurrence is treated as an interpolation to be stringified.
//
// Grammar:
//
//	template    := (literal | reference)*
//	reference   := "{{" ws? path ws? "}}"
//	path        := root ("." segment | "[" digits "]")*
//	root        := "input" | "env" | "tasks"
//	segment     := identifier
//	literal     := any run of characters not containing "{{", with "\{{"
//	               escaping to a literal "{{"
func Parse(raw string) (*Template, error) {
	var pieces []Piece
	var literal strings.Builder

	i := 0
	n := len(raw)
	for i < n {
		if raw[i] == '\\' && i+2 < n && raw[i+1] == '{' && raw[i+2] == '{' {
			literal.WriteString("{{")
			i += 3
			continue
		}
		if i+1 < n && raw[i] == '{' && raw[i+1] == '{' {
			if literal.Len() > 0 {
				pieces = append(pieces, LiteralPiece(literal.String()))
				literal.Reset()
			}
			end := strings.Index(raw[i:], "}}")
			if end == -1 {
				return nil, &wferrors.TemplateParseFailed{Template: raw, Position: i, Reason: "unterminated \"{{\""}
			}
			inner := strings.TrimSpace(raw[i+2 : i+end])
			path, err := parsePath(inner)
			if err != nil {
				return nil, &wferrors.TemplateParseFailed{Template: raw, Position: i + 2, Reason: err.Error()}
			}
			pieces = append(pieces, PathPiece{Path: path})
			i += end + 2
			continue
		}
		literal.WriteByte(raw[i])
		i++
	}
	if literal.Len() > 0 {
		pieces = append(pieces, LiteralPiece(literal.String()))
	}

	pure := len(pieces) == 1
	if pure {
		_, pure = pieces[0].(PathPiece)
	}

	return &Template{Raw: raw, Pieces: pieces, Pure: pure}, nil
}

func parsePath(inner string) (Path, error) {
	if inner == "" {
		return Path{}, errEmptyExpr
	}

	rootName, rest, _ := cutFirst(inner)
	root, ok := validRoots[rootName]
	if !ok {
		return Path{}, fmtErr("unknown root %q, expected one of input/env/tasks", rootName)
	}

	var segments []Segment
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			name, tail, consumed := cutFirst(rest)
			if consumed == 0 {
				return Path{}, fmtErr("expected identifier after \".\" in %q", inner)
			}
			segments = append(segments, Segment{Name: name})
			rest = tail
		case '[':
			close := strings.IndexByte(rest, ']')
			if close == -1 {
				return Path{}, fmtErr("unterminated \"[\" in %q", inner)
			}
			idxStr := rest[1:close]
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 0 {
				return Path{}, fmtErr("invalid array index %q in %q", idxStr, inner)
			}
			segments = append(segments, Segment{Index: idx, IsIndex: true})
			rest = rest[close+1:]
		default:
			return Path{}, fmtErr("unexpected character %q in %q", string(rest[0]), inner)
		}
	}

	if root == RootTasks && (len(segments) < 2 || segments[1].IsIndex || segments[1].Name != "output") {
		return Path{}, fmtErr("tasks references must have the form tasks.<invocation-id>.output.<path>, got %q", inner)
	}
	if root == RootEnv && (len(segments) != 1 || segments[0].IsIndex) {
		return Path{}, fmtErr("env references must have the form env.<name>, got %q", inner)
	}

	return Path{Root: root, Segments: segments}, nil
}

// cutFirst splits an identifier (letters, digits, underscore, hyphen) from
// the front of s, returning the identifier, the remainder, and how many
// bytes were consumed.
func cutFirst(s string) (identifier, rest string, consumed int) {
	i := 0
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	return s[:i], s[i:], i
}

func isIdentChar(b byte) bool {
	return b == '_' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

var errEmptyExpr = fmt.Errorf("empty expression inside \"{{}}\"")

func fmtErr(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
