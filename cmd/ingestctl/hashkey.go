package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HlhDataScience/DocsIngestionApi/internal/api"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [KEY]",
	Short: "Print the bcrypt hash of an API key for API_KEY_HASHES",
	Long: `Prints the bcrypt hash to add to API_KEY_HASHES. Without KEY the key is
read from the first line of standard input, which keeps it out of shell history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashKey,
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}

func runHashKey(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) > 0 {
		key = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read key from stdin: %w", err)
		}
		key = strings.TrimSpace(line)
	}

	hash, err := api.HashAPIKey(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
