// Command formctl validates, inspects and runs form definitions from the
// terminal.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rhuss/formchat/pkg/debug"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	godotenv.Load() // .env is optional
	debug.Init("", "WARN", "text")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "formctl",
	Short:         "Author and run conversational forms",
	Long:          "formctl validates form definitions, prints their JSON Schema, previews the rendered dialogue and runs a form interactively.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "formctl %s (%s)\n", version, commit)
	},
}

// parseVars turns repeated key=value flags into a binding map.
func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", p)
		}
		vars[k] = v
	}
	return vars, nil
}

func init() {
	renderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "Bind a dynamic variable (key=value), repeatable")

	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Bind a dynamic variable (key=value), repeatable")
	runCmd.Flags().StringVar(&runJudge, "judge", "rules", "Answer judge: rules or llm")
	runCmd.Flags().StringVar(&runConfig, "config", "", "Config file for the llm judge (default: discovered)")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 3, "Attempts for questions that do not set max_attempts")
	runCmd.Flags().StringVar(&runOut, "out", "", "Write the submission as JSON to this file ('-' for stdout)")

	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this file instead of stdout")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
