package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var loginClear bool

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store the API bearer token",
	Long:  "Saves the bearer token used for backend requests. With no argument the token is read from stdin. Use --clear to forget the stored token.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens := initTokenStore()

		if loginClear {
			if err := tokens.Clear(); err != nil {
				return eris.Wrap(err, "clear token")
			}
			fmt.Fprintln(os.Stderr, "Token cleared.")
			return nil
		}

		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			fmt.Fprint(os.Stderr, "Token: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return eris.Wrap(err, "read token")
			}
			token = strings.TrimSpace(line)
		}
		if token == "" {
			return eris.New("token is empty")
		}

		if err := tokens.Save(token); err != nil {
			return eris.Wrap(err, "save token")
		}
		fmt.Fprintln(os.Stderr, "Token saved.")
		return nil
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginClear, "clear", false, "forget the stored token")
	rootCmd.AddCommand(loginCmd)
}
