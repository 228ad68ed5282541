package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/formchat/pkg/form"
)

var validateCmd = &cobra.Command{
	Use:   "validate <form.yaml>...",
	Short: "Validate form definition files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		problems, err := checkFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}

		errs := 0
		for _, p := range problems {
			if p.Warning {
				fmt.Fprintf(out, "%s: warning %s\n", path, p)
				continue
			}
			fmt.Fprintf(out, "%s: error %s\n", path, p)
			errs++
		}
		if errs > 0 {
			failed++
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d form(s) invalid", failed, len(args))
	}
	return nil
}

func checkFile(path string) ([]form.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := form.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return form.Check(doc), nil
}
