package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/samarth/pkg/client"
	"github.com/go-go-golems/samarth/pkg/settings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func NewSamplesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List sample questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.FromViper(viper.GetViper())
			if err != nil {
				return err
			}
			c, err := s.NewClient()
			if err != nil {
				return err
			}

			questions, fallback := client.SampleQuestionsOrDefault(commandContext(cmd), c)
			if fallback {
				log.Warn().Str("server", c.BaseURL()).Msg("server did not provide sample questions, showing built-in ones")
			}
			for i, q := range questions {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, q)
			}
			return nil
		},
	}
}

func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the health of the query service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.FromViper(viper.GetViper())
			if err != nil {
				return err
			}
			c, err := s.NewClient()
			if err != nil {
				return err
			}

			status, err := c.Health(commandContext(cmd))
			if err != nil {
				return err
			}

			b, err := yaml.Marshal(status)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
