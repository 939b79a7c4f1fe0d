// Package render turns conversations into text for export and for the
// terminal.
package render

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/go-go-golems/alfred/pkg/turns"
)

// MessageType is the label a turn gets in an export: human, ai or tool.
func MessageType(t turns.Turn) string {
	switch t.Kind {
	case turns.KindAssistant:
		return "ai"
	case turns.KindToolResult:
		return "tool"
	default:
		return string(t.Kind)
	}
}

var funcs = func() template.FuncMap {
	m := sprig.TxtFuncMap()
	m["messageType"] = MessageType
	return m
}()

// "<type>: <content>" blocks separated by a blank line
const exportTemplate = `{{- range $i, $t := . -}}
{{- if $i }}{{ "\n\n" }}{{ end -}}
{{ messageType $t }}: {{ $t.Text }}
{{- end -}}`

const transcriptTemplate = `{{- range . -}}
{{- if .HasToolRequest }}
> **{{ messageType . }}** calls ` + "`{{ .ToolRequest.Name }}`" + ` with ` + "`{{ .ToolRequest.Arguments | toJson }}`" + `
{{ else if eq (messageType .) "tool" }}
> **tool** ` + "`{{ .ToolName }}`" + `{{ if .IsError }} (error){{ end }}:
{{ .Text | trim | indent 4 }}
{{ else }}
**{{ messageType . }}**: {{ .Text }}
{{ end -}}
{{- end -}}`

var (
	exportTmpl     = template.Must(template.New("export").Funcs(funcs).Parse(exportTemplate))
	transcriptTmpl = template.Must(template.New("transcript").Funcs(funcs).Parse(transcriptTemplate))
)

// Export writes the conversation in the plain text download format.
func Export(w io.Writer, conv turns.Conversation) error {
	return exportTmpl.Execute(w, conv)
}

func ExportString(conv turns.Conversation) (string, error) {
	var buf bytes.Buffer
	if err := Export(&buf, conv); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExportFileName names an export taken at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("alfred_conversation_%d.txt", t.Unix())
}

// Transcript renders the conversation as markdown, tool traffic included.
func Transcript(conv turns.Conversation) (string, error) {
	var buf bytes.Buffer
	if err := transcriptTmpl.Execute(&buf, conv); err != nil {
		return "", errors.Wrap(err, "render transcript")
	}
	return buf.String(), nil
}

// Printer writes markdown, styled with glamour when the output is a
// terminal.
type Printer struct {
	w      io.Writer
	styled bool
	style  string
}

const DefaultStyle = "dark"

// NewPrinter styles output when w is a terminal file.
func NewPrinter(w io.Writer) *Printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{w: w, styled: styled, style: DefaultStyle}
}

func (p *Printer) SetStyled(styled bool) {
	p.styled = styled
}

func (p *Printer) Print(markdown string) error {
	out := markdown
	if p.styled {
		styled, err := glamour.Render(markdown, p.style)
		if err != nil {
			return errors.Wrap(err, "render markdown")
		}
		out = styled
	} else if len(out) > 0 && out[len(out)-1] != '\n' {
		out += "\n"
	}
	_, err := io.WriteString(p.w, out)
	return err
}
