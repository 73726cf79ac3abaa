package main

import (
	"os"
	"strings"

	"github.com/go-go-golems/samarth/cmd/samarth/cmds"
	"github.com/go-go-golems/samarth/pkg/settings"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "samarth",
	Short: "samarth asks questions about Indian agriculture and climate data",
	Long: `samarth is a client for the agri-climate question answering service.
It sends questions in plain language and shows the answers together with the
datasets they were derived from.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
}

func initLogger() {
	cobra.CheckErr(cmds.InitLogger(cmds.LogConfigFromViper(false)))
}

func initCommands(rootCmd *cobra.Command, configPath string) error {
	// .env in the working directory, variables already set win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	viper.SetEnvPrefix("samarth")
	settings.SetDefaults(viper.GetViper())

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.samarth")
		viper.AddConfigPath("/etc/samarth")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/samarth")
		}
	}

	err := viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// no config file, flags and environment only
	} else if err != nil {
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	err = viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// logging flags
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr, discarded in chat)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.samarth/config.yaml)")

	// service flags
	rootCmd.PersistentFlags().String("server-url", settings.DefaultServerURL, "Base URL of the query service")
	rootCmd.PersistentFlags().Duration("request-timeout", settings.DefaultRequestTimeout, "Timeout for a single query, 0 disables it")
	rootCmd.PersistentFlags().String("retry-mode", settings.DefaultRetryMode, "What retry resubmits (last-message, last-user-message)")
	rootCmd.PersistentFlags().Bool("allow-insecure", true, "Allow plain http and local network server URLs")
	rootCmd.PersistentFlags().String("transcript-file", settings.DefaultTranscriptFile, "File the transcript is exported to")
	rootCmd.PersistentFlags().String("markdown-style", settings.DefaultMarkdownStyle, "Markdown style for answers (auto, dark, light, notty)")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" && len(os.Args) > idx+1 {
			configFile = os.Args[idx+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			configFile = strings.TrimPrefix(arg, "--config=")
		}
	}

	err := initCommands(rootCmd, configFile)
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewAskCommand(),
		cmds.NewSamplesCommand(),
		cmds.NewHealthCommand(),
	)
}
