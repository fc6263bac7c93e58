package cmd

import (
	"encoding/json"

	"github.com/playbridge/playbridge/color"
	"github.com/playbridge/playbridge/history"
	"github.com/playbridge/playbridge/icon"
	"github.com/playbridge/playbridge/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolP("json", "j", false, "Format the output as JSON")
	historyCmd.Flags().StringP("remove", "d", "", "Forget the resume position of a source")
}

// historyCmd lists the saved resume positions.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List where playback of each source stopped",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if source := lo.Must(cmd.Flags().GetString("remove")); source != "" {
			handleErr(history.Remove(source))
			cmd.Printf("%s forgot %s\n", style.Fg(color.Green)(icon.Get(icon.Success)), style.Fg(color.Purple)(source))
			return
		}

		saved, err := history.Get()
		handleErr(err)

		entries := lo.Values(saved)
		slices.SortFunc(entries, func(a, b *history.Entry) int {
			return b.SavedAt.Compare(a.SavedAt)
		})

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(entries))
			return
		}

		if len(entries) == 0 {
			cmd.Println(style.Faint("nothing saved yet"))
			return
		}

		for _, entry := range entries {
			cmd.Println(icon.Get(icon.Mark) + " " + entry.String())
		}
	},
}
