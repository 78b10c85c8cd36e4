package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lyzr/workflowengine/pkg/wferrors"
)

// Context is the execution context a Template resolves against: the
// workflow's input, the caller-supplied environment map exposed to
// templates, and the
// accumulated outputs of invocations that have already run.
type Context struct {
	Input map[string]interface{}
	Env   map[string]string
	Tasks map[string]interface{} // invocation id -> output value
}

// Resolve evaluates t against ctx. A Pure template returns the referenced
// value with its native JSON type preserved; a mixed template returns a
// string with every reference canonically stringified and concatenated
// with the surrounding literal text, mirroring the teacher's
// resolveInterpolation.
func (t *Template) Resolve(ctx *Context) (interface{}, error) {
	if t.Pure {
		piece := t.Pieces[0].(PathPiece)
		return resolvePath(piece.Path, ctx)
	}

	var sb strings.Builder
	for _, piece := range t.Pieces {
		switch p := piece.(type) {
		case LiteralPiece:
			sb.WriteString(string(p))
		case PathPiece:
			value, err := resolvePath(p.Path, ctx)
			if err != nil {
				return nil, err
			}
			sb.WriteString(canonicalStringify(value))
		}
	}
	return sb.String(), nil
}

// resolvePath walks ctx rooted at path.Root, following the teacher's
// json.Marshal + gjson.GetBytes idiom (cmd/workflow-runner/resolver.go's
// resolveNodeReference) one segment at a time so intermediate nulls can be
// distinguished from missing fields.
func resolvePath(path Path, ctx *Context) (interface{}, error) {
	switch path.Root {
	case RootEnv:
		name := path.Segments[0].Name
		value, ok := ctx.Env[name]
		if !ok {
			return nil, &wferrors.OutputProjectionFailed{Name: path.String(), Reason: fmt.Sprintf("env var %q is not set", name)}
		}
		return value, nil
	case RootInput:
		return walk(ctx.Input, path.Segments, path.String())
	case RootTasks:
		id := path.Segments[0].Name
		output, ok := ctx.Tasks[id]
		if !ok {
			return nil, &wferrors.OutputProjectionFailed{Name: path.String(), Reason: fmt.Sprintf("no recorded output for invocation %q", id)}
		}
		// Segments[1] is the literal "output" marker validated at parse time.
		return walk(output, path.Segments[2:], path.String())
	}
	return nil, fmt.Errorf("unreachable: unknown root %q", path.Root)
}

func walk(root interface{}, segments []Segment, exprForError string) (interface{}, error) {
	if len(segments) == 0 {
		return root, nil
	}

	raw, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", exprForError, err)
	}

	current := gjson.ParseBytes(raw)
	for i, seg := range segments {
		var key string
		if seg.IsIndex {
			key = strconv.Itoa(seg.Index)
		} else {
			key = gjsonEscape(seg.Name)
		}
		next := current.Get(key)
		last := i == len(segments)-1

		if !next.Exists() {
			return nil, &wferrors.OutputProjectionFailed{
				Name: exprForError, Reason: fmt.Sprintf("field %q not found", seg.String()),
			}
		}
		if next.Type == gjson.Null && !last {
			return nil, &wferrors.OutputProjectionFailed{
				Name: exprForError, Reason: fmt.Sprintf("field %q is null, cannot descend further", seg.String()),
			}
		}
		current = next
	}
	return current.Value(), nil
}

// gjsonEscape escapes gjson path metacharacters in a literal segment name so
// arbitrary JSON object keys can be used as template segments.
func gjsonEscape(name string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(name)
}

// canonicalStringify renders a resolved value for embedding inside a mixed
// template: strings pass through unquoted, everything else is rendered as
// canonical JSON.
func canonicalStringify(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	if value == nil {
		return "null"
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
