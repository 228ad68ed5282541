package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rhuss/formchat/pkg/form"
	"github.com/rhuss/formchat/pkg/prompt"
)

var renderVars []string

var renderCmd = &cobra.Command{
	Use:   "render <form.yaml>",
	Short: "Print the opening, every question and the closing as respondents see them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := form.LoadFile(args[0], 3)
		if err != nil {
			return err
		}
		vars, err := parseVars(renderVars)
		if err != nil {
			return err
		}
		render(cmd.OutOrStdout(), def, vars)
		return nil
	},
}

func render(w io.Writer, def *form.Definition, vars map[string]string) {
	fmt.Fprintf(w, "# %s\n\n", def.ID)
	fmt.Fprintf(w, "[opening]\n%s\n\n", prompt.Opening(def, vars))
	for i, q := range def.Questions {
		required := "optional"
		if q.Required {
			required = "required"
		}
		fmt.Fprintf(w, "[%d/%d %s, %s, %d attempt(s)]\n", i+1, len(def.Questions), q.ID, required, q.MaxAttempts)
		fmt.Fprintf(w, "%s\n", prompt.Question(q, vars))
		if q.MaxAttempts > 1 {
			fmt.Fprintf(w, "  on retry: %s\n", prompt.Rephrase(q, vars, 2))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "[closing]\n%s\n", prompt.Closing(def, vars, nil))
}
