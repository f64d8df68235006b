package display

import (
	"bytes"
	"encoding/json"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromastyles "github.com/alecthomas/chroma/v2/styles"
)

const highlightStyle = "dracula"

// HighlightJSON pretty-prints v as indented JSON. When color is set the
// result carries terminal color codes.
func HighlightJSON(v any, color bool) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	if !color {
		return string(data), nil
	}

	lexer := lexers.Get("json")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromastyles.Get(highlightStyle)
	if style == nil {
		style = chromastyles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, string(data))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := formatters.TTY256.Format(&buf, style, iterator); err != nil {
		return "", err
	}
	return buf.String(), nil
}
