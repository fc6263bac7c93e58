package cmd

import (
	"io/fs"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/playbridge/playbridge/color"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/inline"
	"github.com/playbridge/playbridge/style"
	"github.com/playbridge/playbridge/util"
	"github.com/playbridge/playbridge/where"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resourcesCmd)
	resourcesCmd.Flags().BoolP("quiet", "q", false, "Print only the resource: sources")
}

// resourcesCmd lists the bundled resources play accepts as resource:name.ext.
var resourcesCmd = &cobra.Command{
	Use:   "resources [filter]",
	Short: "List bundled resources",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := afero.ReadDir(filesystem.API(), where.Resources())
		handleErr(err)

		entries = lo.Filter(entries, func(e fs.FileInfo, _ int) bool {
			return !e.IsDir() && strings.Contains(e.Name(), ".") && !strings.HasPrefix(e.Name(), ".")
		})

		names := lo.Map(entries, func(e fs.FileInfo, _ int) string { return e.Name() })
		if len(args) == 1 {
			ranks := fuzzy.RankFindFold(args[0], names)
			sort.Sort(ranks)
			names = lo.Map(ranks, func(r fuzzy.Rank, _ int) string { return r.Target })
		}

		sizes := lo.SliceToMap(entries, func(e fs.FileInfo) (string, int64) { return e.Name(), e.Size() })
		quiet := lo.Must(cmd.Flags().GetBool("quiet"))

		for _, name := range names {
			if quiet {
				cmd.Println(inline.ResourcePrefix + name)
				continue
			}

			cmd.Printf("%s %s %s\n",
				style.Bold(util.FileStem(name)),
				style.Fg(color.Purple)(inline.ResourcePrefix+name),
				style.Faint(humanize.Bytes(uint64(sizes[name]))),
			)
		}
	},
}
