package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/AlecAivazis/survey/v2"
	"github.com/playbridge/playbridge/auth"
	"github.com/playbridge/playbridge/backend"
	"github.com/playbridge/playbridge/config"
	"github.com/playbridge/playbridge/constant"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/history"
	"github.com/playbridge/playbridge/inline"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/player"
	"github.com/playbridge/playbridge/recent"
	"github.com/playbridge/playbridge/util"
	"github.com/playbridge/playbridge/view"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().BoolP("json", "j", false, "Write events as JSON lines")
	playCmd.Flags().StringP("output", "o", "", "Write events to a file instead of stdout")
	playCmd.Flags().Duration("start", 0, "Seek here once the source is loaded")
	playCmd.Flags().Duration("for", 0, "Stop after playing this long")
	playCmd.Flags().BoolP("choose-engine", "c", false, "Pick the engine interactively")

	playCmd.Flags().BoolP("resume", "r", false, "Resume from where playback of the source stopped")
	lo.Must0(viper.BindPFlag(key.HistoryResume, playCmd.Flags().Lookup("resume")))

	playCmd.MarkFlagsMutuallyExclusive("start", "resume")
}

// playCmd plays one source without a user interface.
var playCmd = &cobra.Command{
	Use:   "play <source>",
	Short: "Play a source and report player events",
	Long: `Play a source without a user interface and report every player event.

A source is an http(s) URL, a local file path or a bundled resource given as resource:name.ext.
Playback ends when the media ends or fails, when --for elapses or on interrupt.`,
	Example:           constant.App + " play --json --for 30s https://example.com/index.m3u8",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completionSources,
	Run: func(cmd *cobra.Command, args []string) {
		source := args[0]

		loader, err := inline.ParseSource(source)
		handleErr(err)

		var b *backend.Backend
		if lo.Must(cmd.Flags().GetBool("choose-engine")) {
			b, err = chooseEngine()
		} else {
			b, err = backend.Default()
		}
		handleErr(err)
		CheckDependencies(b)

		var out io.Writer = os.Stdout
		if output := lo.Must(cmd.Flags().GetString("output")); output != "" {
			file, err := filesystem.API().Create(output)
			handleErr(err)
			defer util.Ignore(file.Close)
			out = file
		}

		v := &view.View{
			ReadyCommand: func(p player.VideoPlayer) {
				if value := authorization(cmd); value != "" {
					p.Authorize(value)
				}
			},
		}

		p, err := v.Attach(b.Create, player.OptionsFromConfig())
		handleErr(err)

		options := &inline.Options{
			Out:         out,
			Json:        lo.Must(cmd.Flags().GetBool("json")),
			Player:      p,
			Load:        loader,
			LoadTimeout: config.Duration(key.PlayerLoadTimeout),
		}

		if start := lo.Must(cmd.Flags().GetDuration("start")); start > 0 {
			options.Start = mo.Some(start)
		} else if viper.GetBool(key.HistoryResume) {
			options.Start = history.Position(source)
		}

		if d := lo.Must(cmd.Flags().GetDuration("for")); d > 0 {
			options.For = mo.Some(d)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		runErr := inline.Run(ctx, options)
		if !errors.Is(runErr, inline.ErrNotLoaded) {
			remember(source, p)
		}

		// handleErr exits, dispose first
		if err := v.Detach(); err != nil {
			log.Warnf("dispose player: %v", err)
		}
		handleErr(runErr)
	},
}

func init() {
	playCmd.AddCommand(playSchemaCmd)
}

// playSchemaCmd prints the JSON schema of play --json records.
var playSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the records play --json writes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		handleErr(encoder.Encode(inline.Schema()))
	},
}

// remember records source as recently played and saves where it stopped.
func remember(source string, p player.VideoPlayer) {
	if err := recent.Remember(source); err != nil {
		log.Warnf("remember source: %v", err)
	}

	if !viper.GetBool(key.HistorySave) {
		return
	}

	if err := history.Save(source, p.CurrentPosition(), p.Duration()); err != nil {
		log.Warnf("save history: %v", err)
	}
}

func chooseEngine() (*backend.Backend, error) {
	backends := backend.Builtins()

	var index int
	prompt := &survey.Select{
		Message: "Engine",
		Options: lo.Map(backends, func(b *backend.Backend, _ int) string { return b.Name }),
		Description: func(_ string, i int) string {
			return backends[i].Description
		},
	}

	if b, err := backend.Default(); err == nil {
		prompt.Default = b.Name
	}

	if err := survey.AskOne(prompt, &index); err != nil {
		return nil, err
	}
	return backends[index], nil
}

// authorization prefers --auth over the stored credential.
func authorization(cmd *cobra.Command) string {
	if value := lo.Must(cmd.Flags().GetString("auth")); value != "" {
		return value
	}

	value, err := auth.GetAuthorization()
	if err != nil {
		log.Warnf("read stored authorization: %v", err)
		return ""
	}
	return value
}

func completionSources(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return recent.SuggestMany(toComplete), cobra.ShellCompDirectiveDefault
}
