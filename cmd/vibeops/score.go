package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
	"github.com/mohammad-safakhou/vibeops/internal/feed"
	"github.com/mohammad-safakhou/vibeops/internal/runtime"
	srv "github.com/mohammad-safakhou/vibeops/internal/server"
)

func scoreCMD() *cobra.Command {
	var input, snapshotPath string
	var score = &cobra.Command{
		Use:   "score",
		Short: "Score and allocate candidates offline from a preview request document",
		Long: `Reads a preview request ({"viewer":{...},"items":[...],"overrides":{...},"page":0})
from --input or stdin and prints the allocated page. Parameters come from --snapshot
when given, otherwise from the built-in defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, input)
			if err != nil {
				return err
			}
			var req srv.PreviewRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("decode request: %w", err)
			}
			if err := runtime.Validator().Struct(&req); err != nil {
				return err
			}
			snap := algorithm.Defaults()
			if snapshotPath != "" {
				data, err := os.ReadFile(snapshotPath)
				if err != nil {
					return err
				}
				if snap, err = algorithm.DecodeSnapshot(data); err != nil {
					return err
				}
			}
			engine := feed.NewEngine(nil, nil, config.FeedConfig{}, nil)
			out, err := srv.Preview(engine, snap, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	score.Flags().StringVarP(&input, "input", "i", "", "request file (default stdin)")
	score.Flags().StringVar(&snapshotPath, "snapshot", "", "snapshot file with weights/vibe/intent/diversity blocks")
	return score
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
