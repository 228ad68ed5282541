package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/formchat/pkg/form"
)

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for form definition files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := form.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		if schemaOut != "" {
			if err := os.WriteFile(schemaOut, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write schema: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "schema written to %s\n", schemaOut)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
