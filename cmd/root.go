// Package cmd implements the command-line interface for playbridge.
package cmd

import (
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/playbridge/playbridge/backend"
	"github.com/playbridge/playbridge/color"
	"github.com/playbridge/playbridge/config"
	"github.com/playbridge/playbridge/constant"
	"github.com/playbridge/playbridge/icon"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/player"
	"github.com/playbridge/playbridge/style"
	"github.com/playbridge/playbridge/tui"
	"github.com/playbridge/playbridge/version"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")

	rootCmd.PersistentFlags().StringP("icons", "I", "", "Set the visual icon variant (e.g., nerd, emoji, squares)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("icons", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return icon.AvailableVariants(), cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.IconsVariant, rootCmd.PersistentFlags().Lookup("icons")))

	rootCmd.PersistentFlags().StringP("engine", "e", "", "Playback engine to drive (hls, mpv)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("engine", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return backend.IDs(), cobra.ShellCompDirectiveNoFileComp
	}))
	lo.Must0(viper.BindPFlag(key.PlayerEngine, rootCmd.PersistentFlags().Lookup("engine")))

	rootCmd.PersistentFlags().Bool("autoplay", true, "Start playback as soon as the source is loaded")
	lo.Must0(viper.BindPFlag(key.PlayerAutoPlay, rootCmd.PersistentFlags().Lookup("autoplay")))

	rootCmd.PersistentFlags().Bool("controls", true, "Show the engine's built-in playback controls")
	lo.Must0(viper.BindPFlag(key.PlayerShowDefaultControls, rootCmd.PersistentFlags().Lookup("controls")))

	rootCmd.PersistentFlags().Float64("interval", 1, "Seconds between position updates")
	lo.Must0(viper.BindPFlag(key.PlayerUpdateInterval, rootCmd.PersistentFlags().Lookup("interval")))

	rootCmd.PersistentFlags().String("auth", "", "Authorization header value, overrides the stored one")

	helpFunc := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helpFunc(cmd, args)
		version.Notify()
	})
}

// rootCmd opens the player dashboard.
var rootCmd = &cobra.Command{
	Use:   constant.App + " [source]",
	Short: "Drive HLS and mpv playback engines through one player contract",
	Long: constant.AsciiArtLogo + "\n" +
		style.New().Italic(true).Foreground(color.HiRed).Render("    - Drive HLS and mpv playback engines through one player contract"),
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: completionSources,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, args)
			return
		}

		options := tui.Options{
			Player:        player.OptionsFromConfig(),
			Authorization: authorization(cmd),
			LoadTimeout:   config.Duration(key.PlayerLoadTimeout),
			SeekStep:      config.Duration(key.PlayerSeekStep),
		}

		if len(args) == 1 {
			options.Source = args[0]
		}

		if cmd.Flags().Changed("engine") {
			b, err := backend.Default()
			handleErr(err)
			CheckDependencies(b)
			options.Backend = b
		}

		handleErr(tui.Run(&options))
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "%s %s\n", icon.Get(icon.Fail), strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
