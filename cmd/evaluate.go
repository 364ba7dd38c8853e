package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/priorauth/internal/intake"
	"github.com/sells-group/priorauth/internal/pipeline"
)

var (
	evaluateFile    string
	evaluateNoStore bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one or more PA requests from a JSON file",
	Long:  "Reads a case object or an array of cases from --file (or stdin with -) and prints the terminal case state of each.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		in, closeFn, err := openInput(evaluateFile)
		if err != nil {
			return err
		}
		defer closeFn()

		env, err := initEvalEnv(ctx, evaluateNoStore)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := evaluateJSON(ctx, env, in)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(results[0])
		}
		return enc.Encode(results)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateFile, "file", "", "case JSON file, or - for stdin")
	evaluateCmd.Flags().BoolVar(&evaluateNoStore, "no-store", false, "skip run persistence")
	_ = evaluateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(evaluateCmd)
}

// openInput opens path for reading, treating "-" as stdin.
func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "open %s", path)
	}
	return f, func() { _ = f.Close() }, nil
}

// evaluateJSON decodes every case in r and runs each through the pipeline.
// Invalid cases abort before any evaluation starts.
func evaluateJSON(ctx context.Context, env *evalEnv, r io.Reader) ([]*pipeline.Result, error) {
	raws, err := intake.DecodeJSONList(r)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, eris.New("evaluate: no cases in input")
	}

	for i, raw := range raws {
		prepared, err := env.prepare(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "evaluate: case %d", i+1)
		}
		raws[i] = prepared
	}

	results := make([]*pipeline.Result, 0, len(raws))
	for _, raw := range raws {
		res, err := env.Runner.Evaluate(ctx, raw)
		if err != nil {
			return results, eris.Wrap(err, "evaluate")
		}
		results = append(results, res)
	}
	zap.L().Debug("evaluate complete", zap.Int("cases", len(results)))
	return results, nil
}
