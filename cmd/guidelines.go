package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/priorauth/internal/guideline"
)

var guidelinesPath string

var guidelinesCmd = &cobra.Command{
	Use:   "guidelines",
	Short: "Inspect the clinical guideline table",
}

var guidelinesShowCmd = &cobra.Command{
	Use:   "show [diagnosis]",
	Short: "Print the guideline table, or one diagnosis, as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadGuidelines(guidelinesSource())
		if err != nil {
			return err
		}
		if len(args) == 1 {
			rule, ok := table.Lookup(args[0])
			if !ok {
				return eris.Errorf("no guideline for diagnosis %q", args[0])
			}
			return writeYAML(os.Stdout, map[string]guideline.Rule{args[0]: rule})
		}
		return writeYAML(os.Stdout, table)
	},
}

var guidelinesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the guideline table for malformed rules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := guidelinesSource()
		if path == "" {
			return eris.New("no guideline file configured (--path or PRIORAUTH_GUIDELINES_PATH)")
		}
		table, err := guideline.LoadTable(path)
		if err != nil {
			return err
		}
		if err := table.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s: %d diagnoses OK\n", path, len(table.Guidelines))
		return nil
	},
}

func init() {
	guidelinesCmd.PersistentFlags().StringVar(&guidelinesPath, "path", "", "guideline YAML/JSON file (default from config)")
	guidelinesCmd.AddCommand(guidelinesShowCmd)
	guidelinesCmd.AddCommand(guidelinesValidateCmd)
	rootCmd.AddCommand(guidelinesCmd)
}

func guidelinesSource() string {
	if guidelinesPath != "" {
		return guidelinesPath
	}
	return cfg.Guidelines.Path
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return enc.Close()
}
