package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/playbridge/playbridge/color"
	"github.com/playbridge/playbridge/icon"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/network"
	"github.com/playbridge/playbridge/player"
	"github.com/playbridge/playbridge/probe"
	"github.com/playbridge/playbridge/style"
	"github.com/playbridge/playbridge/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().BoolP("json", "j", false, "Format the output as JSON")
	probeCmd.Flags().Bool("cache", true, "Use and update the probe cache")
	lo.Must0(viper.BindPFlag(key.ProbeCache, probeCmd.Flags().Lookup("cache")))
}

// probeCmd inspects an HLS manifest without playing it.
var probeCmd = &cobra.Command{
	Use:               "probe <url>",
	Short:             "Describe an HLS source without playing it",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completionSources,
	Run: func(cmd *cobra.Command, args []string) {
		source, err := url.Parse(args[0])
		handleErr(err)
		handleErr(player.ValidateURL(source))
		if source.Scheme == "file" {
			handleErr(errors.New("probe needs an http(s) url"))
		}

		erase := util.PrintErasable(fmt.Sprintf("%s Probing %s...", icon.Get(icon.Progress), source.Redacted()))
		result, err := probe.Probe(context.Background(), network.Shared(), source)
		erase()
		handleErr(err)

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(result))
			return
		}

		cmd.Printf("%s %s\n", style.Fg(color.Green)(icon.Get(icon.Success)), style.Fg(color.Purple)(result.URL))
		cmd.Println(result.Summary())

		for _, v := range result.Variants {
			line := fmt.Sprintf("  %s %d bps", icon.Get(icon.Link), v.Bandwidth)
			if v.Resolution != "" {
				line += " " + style.Fg(color.Yellow)(v.Resolution)
			}
			if v.Codecs != "" {
				line += " " + style.Faint(v.Codecs)
			}
			cmd.Println(line)
		}
	},
}
