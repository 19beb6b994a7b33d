package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/output"
	"github.com/spf13/cobra"
)

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [file]",
		Short: "Convert a Bundle from a file, stdin or a FHIR server",
		Long: "Convert a FHIR R4 Bundle read from file, from --url, or from stdin when neither is given.\n" +
			"The record is printed to stdout unless --out (or OUTPUT_DIR) is set, in which case it is written to a\n" +
			"timestamped directory below --out. On failure an OperationOutcome is printed and the\n" +
			"command exits non-zero.",
		Args: cobra.MaximumNArgs(1),
		RunE: runConvert,
	}

	cmd.Flags().String("url", "", "read the Bundle from this FHIR server URL")
	cmd.Flags().String("out", "", "write the record and outcome below this directory (overrides OUTPUT_DIR)")
	cmd.Flags().Bool("lenient", false, "report recoverable errors instead of failing (overrides LENIENT)")
	cmd.Flags().StringSlice("system", nil, "code system priority for this run, highest first")
	cmd.Flags().Int("workers", 0, "number of entries mapped concurrently (overrides WORKERS)")

	return cmd
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	outDir, _ := cmd.Flags().GetString("out")
	if !cmd.Flags().Changed("out") {
		outDir = cfg.OutputDir
	}
	var om *output.OutputManager
	if outDir != "" {
		om, err = output.NewOutputManager(outDir, os.Stderr, time.Now())
		if err != nil {
			return err
		}
		defer om.Close()
		log = om.GetLogger()
	}

	a, err := newApp(cmd.Context(), cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	opts := a.defaultOptions()
	if cmd.Flags().Changed("lenient") {
		opts.Lenient, _ = cmd.Flags().GetBool("lenient")
	}
	if cmd.Flags().Changed("workers") {
		opts.Workers, _ = cmd.Flags().GetInt("workers")
	}
	opts.PrioritySystems, _ = cmd.Flags().GetStringSlice("system")

	data, err := readBundle(cmd, a, args)
	if err != nil {
		return err
	}

	result, err := a.converter.Convert(data, opts)
	if err != nil {
		var ie *issue.Error
		if errors.As(err, &ie) {
			if writeErr := writeJSON(cmd.OutOrStdout(), issue.ToOperationOutcome(nil, ie)); writeErr != nil {
				return writeErr
			}
		}
		return fmt.Errorf("conversion failed: %w", err)
	}

	if om != nil {
		files, err := om.WriteResult(result)
		if err != nil {
			return err
		}
		log.Info().Strs("files", files).Msg("Wrote conversion result")
		return nil
	}

	return writeJSON(cmd.OutOrStdout(), struct {
		Record  interface{} `json:"record"`
		Outcome interface{} `json:"outcome"`
	}{result.Record, issue.ToOperationOutcome(result.Diagnostics, nil)})
}

func readBundle(cmd *cobra.Command, a *app, args []string) ([]byte, error) {
	url, _ := cmd.Flags().GetString("url")
	switch {
	case url != "" && len(args) > 0:
		return nil, fmt.Errorf("use either a file or --url, not both")
	case url != "":
		return a.client.FetchBundle(cmd.Context(), url)
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle file: %w", err)
		}
		return data, nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle from stdin: %w", err)
		}
		return data, nil
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
