package cmd

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/playbridge/playbridge/auth"
	"github.com/playbridge/playbridge/color"
	"github.com/playbridge/playbridge/icon"
	"github.com/playbridge/playbridge/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(authCmd)
}

// authCmd manages the Authorization value stored in the system keyring.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Authorization header sent with media requests",
}

func init() {
	authCmd.AddCommand(authSetCmd)
}

var authSetCmd = &cobra.Command{
	Use:   "set [value]",
	Short: "Store an Authorization header value in the system keyring",
	Long: `Store an Authorization header value in the system keyring.

The value is prompted for when not given, so it stays out of the shell history.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var value string
		if len(args) == 1 {
			value = args[0]
		} else {
			handleErr(survey.AskOne(&survey.Password{
				Message: "Authorization",
				Help:    "For example: Bearer eyJhbGciOi...",
			}, &value, survey.WithValidator(survey.Required)))
		}

		handleErr(auth.SetAuthorization(value))
		fmt.Printf("%s stored %s\n", style.Fg(color.Green)(icon.Get(icon.Success)), style.Fg(color.Yellow)(auth.Redact(value)))
	},
}

func init() {
	authCmd.AddCommand(authShowCmd)
	authShowCmd.Flags().Bool("reveal", false, "Print the value unredacted")
}

var authShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored Authorization header value",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		value, err := auth.GetAuthorization()
		handleErr(err)

		if value == "" {
			fmt.Println(style.Faint("nothing stored"))
			return
		}

		if !lo.Must(cmd.Flags().GetBool("reveal")) {
			value = auth.Redact(value)
		}
		fmt.Println(value)
	},
}

func init() {
	authCmd.AddCommand(authDeleteCmd)
}

var authDeleteCmd = &cobra.Command{
	Use:     "delete",
	Short:   "Remove the stored Authorization header value",
	Aliases: []string{"remove"},
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(auth.DeleteAuthorization())
		fmt.Printf("%s deleted authorization\n", style.Fg(color.Green)(icon.Get(icon.Success)))
	},
}
