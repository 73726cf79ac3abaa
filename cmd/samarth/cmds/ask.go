package cmds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/samarth/pkg/conversation"
	"github.com/go-go-golems/samarth/pkg/dispatcher"
	"github.com/go-go-golems/samarth/pkg/settings"
	"github.com/go-go-golems/samarth/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
)

// ErrQueryFailed is returned when the question was answered with an error message.
var ErrQueryFailed = errors.New("query failed")

type askOptions struct {
	output   string
	template string
	plain    bool
}

func NewAskCommand() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a single question and print the answer",
		Long: `Ask a single question and print the answer with its sources.
Without arguments the question is read interactively from the terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.FromViper(viper.GetViper())
			if err != nil {
				return err
			}

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				question, err = promptQuestion()
				if err != nil {
					return err
				}
			}

			return runAsk(cmd.Context(), s, question, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Also export the transcript to this file (.yaml or .json)")
	cmd.Flags().StringVar(&opts.template, "template", "", "Go template used to render the transcript (sprig functions available)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Print the rendered template without markdown styling")

	return cmd
}

func promptQuestion() (string, error) {
	tty, err := ui.OpenTTY()
	if err != nil {
		return "", errors.Wrap(err, "no question given and no terminal to ask on")
	}
	defer func() {
		if err := tty.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close tty")
		}
	}()

	in := &input.UI{
		Writer: tty,
		Reader: tty,
	}

	return in.Ask("What would you like to know?", &input.Options{
		Required:  true,
		Loop:      true,
		HideOrder: true,
		ValidateFunc: func(answer string) error {
			if strings.TrimSpace(answer) == "" {
				return fmt.Errorf("%s", dispatcher.MsgEmptyQuery)
			}
			return nil
		},
	})
}

func runAsk(ctx context.Context, s *settings.Settings, question string, opts *askOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := s.NewClient()
	if err != nil {
		return err
	}

	session := conversation.NewSession()
	d := dispatcher.New(session, c, s.DispatcherOptions()...)

	msg, err := d.SubmitText(ctx, question)
	if err != nil {
		return err
	}

	snapshot := session.Snapshot()
	if opts.output != "" {
		if err := snapshot.SaveToFile(opts.output); err != nil {
			return err
		}
		log.Info().Str("file", opts.output).Msg("transcript saved")
	}

	t, err := LoadTranscriptTemplate(opts.template)
	if err != nil {
		return err
	}
	buf := &bytes.Buffer{}
	if err := RenderTranscript(buf, t, snapshot); err != nil {
		return err
	}

	out := buf.String()
	if !opts.plain && isatty.IsTerminal(os.Stdout.Fd()) {
		out, err = renderMarkdown(out, s.MarkdownStyle)
		if err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, out); err != nil {
		return err
	}

	if msg.Role == conversation.RoleError {
		return errors.Wrap(ErrQueryFailed, msg.Content)
	}
	return nil
}

func renderMarkdown(in string, style string) (string, error) {
	styleOption := glamour.WithStandardStyle(style)
	if style == "" || style == "auto" {
		styleOption = glamour.WithAutoStyle()
	}

	r, err := glamour.NewTermRenderer(styleOption, glamour.WithWordWrap(ui.TerminalWidth(100)-4))
	if err != nil {
		return "", errors.Wrap(err, "could not create markdown renderer")
	}
	return r.Render(in)
}
