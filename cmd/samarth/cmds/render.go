package cmds

import (
	_ "embed"
	"io"
	"os"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/samarth/pkg/conversation"
	"github.com/pkg/errors"
)

//go:embed transcript.tmpl
var defaultTranscriptTemplate string

func roleLabel(role conversation.Role) string {
	switch role {
	case conversation.RoleUser:
		return "Question"
	case conversation.RoleAssistant:
		return "Answer"
	case conversation.RoleError:
		return "Error"
	default:
		return string(role)
	}
}

// NewTranscriptTemplate parses tpl, or the built-in transcript template when tpl
// is empty, with the sprig functions plus label and citation.
func NewTranscriptTemplate(tpl string) (*template.Template, error) {
	if tpl == "" {
		tpl = defaultTranscriptTemplate
	}
	funcs := sprig.TxtFuncMap()
	funcs["label"] = roleLabel
	funcs["citation"] = conversation.FormatCitation

	t, err := template.New("transcript").Funcs(funcs).Parse(tpl)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse transcript template")
	}
	return t, nil
}

func LoadTranscriptTemplate(path string) (*template.Template, error) {
	if path == "" {
		return NewTranscriptTemplate("")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read template %s", path)
	}
	return NewTranscriptTemplate(string(b))
}

func RenderTranscript(w io.Writer, t *template.Template, snapshot conversation.Snapshot) error {
	return errors.Wrap(t.Execute(w, snapshot), "could not render transcript")
}
