package cmds

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/samarth/pkg/conversation"
	"github.com/go-go-golems/samarth/pkg/dispatcher"
	"github.com/go-go-golems/samarth/pkg/events"
	"github.com/go-go-golems/samarth/pkg/settings"
	"github.com/go-go-golems/samarth/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.FromViper(viper.GetViper())
			if err != nil {
				return err
			}

			// the terminal belongs to the UI from here on
			if err := InitLogger(LogConfigFromViper(true)); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runChat(ctx, s)
		},
	}
}

func runChat(ctx context.Context, s *settings.Settings) error {
	c, err := s.NewClient()
	if err != nil {
		return err
	}

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	session := conversation.NewSession(
		conversation.WithObservers(events.NewSessionPublisher(router.Publisher)),
	)
	d := dispatcher.New(session, c, s.DispatcherOptions()...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(d,
		ui.WithContext(ctx),
		ui.WithServiceInfo(c),
		ui.WithTranscriptFile(s.TranscriptFile),
		ui.WithMarkdownStyle(s.MarkdownStyle),
	)

	options := []tea.ProgramOption{
		tea.WithMouseCellMotion(), // turn on mouse support so we can track the mouse wheel
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		options = append(options, tea.WithOutput(os.Stderr))
	} else {
		options = append(options, tea.WithAltScreen())
	}

	p := tea.NewProgram(model, options...)
	router.AddHandler("ui", events.SessionTopic, ui.SessionForwardFunc(p))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(egCtx)
	})
	eg.Go(func() error {
		defer cancel()

		select {
		case <-router.Running():
		case <-egCtx.Done():
			return nil
		}

		log.Info().Str("server", c.BaseURL()).Msg("starting chat")
		_, err := p.Run()
		return err
	})

	return eg.Wait()
}
