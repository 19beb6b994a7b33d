// Package output writes conversion results to a timestamped run directory.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/converter"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/rs/zerolog"
)

// OutputManager handles centralized output management
type OutputManager struct {
	baseDir   string
	timestamp string
	logFile   *os.File
	log       zerolog.Logger
}

// NewOutputManager creates <baseDir>/<timestamp>/ with a logs/app.log file.
// The returned manager logs to console and to that file.
func NewOutputManager(baseDir string, console io.Writer, now time.Time) (*OutputManager, error) {
	timestamp := now.Format("20060102_150405")

	outputPath := filepath.Join(baseDir, timestamp)
	logsDir := filepath.Join(outputPath, "logs")
	if err := os.MkdirAll(logsDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	logFile, err := os.Create(filepath.Join(logsDir, "app.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	consoleWriter := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = console
	})
	combinedLogger := zerolog.New(zerolog.MultiLevelWriter(consoleWriter, logFile)).
		With().
		Timestamp().
		Logger()

	return &OutputManager{
		baseDir:   outputPath,
		timestamp: timestamp,
		logFile:   logFile,
		log:       combinedLogger,
	}, nil
}

// WriteToJSON writes data to <prefix>_<timestamp>.json and returns the path
func (om *OutputManager) WriteToJSON(data interface{}, prefix string) (string, error) {
	filename := fmt.Sprintf("%s_%s.json", prefix, om.timestamp)
	outputPath := filepath.Join(om.baseDir, filename)

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return "", fmt.Errorf("failed to encode data to JSON: %w", err)
	}

	om.log.Debug().
		Str("file", outputPath).
		Str("prefix", prefix).
		Msg("Wrote data to JSON file")

	return outputPath, nil
}

// WriteResult writes the record and, when lenient mode reported anything,
// the diagnostics as an OperationOutcome.
func (om *OutputManager) WriteResult(result *converter.Result) ([]string, error) {
	recordPath, err := om.WriteToJSON(result.Record, "record_"+result.Record.RecordID)
	if err != nil {
		return nil, err
	}
	paths := []string{recordPath}

	if len(result.Diagnostics) > 0 {
		outcomePath, err := om.WriteToJSON(issue.ToOperationOutcome(result.Diagnostics, nil), "outcome_"+result.Record.RecordID)
		if err != nil {
			return paths, err
		}
		paths = append(paths, outcomePath)
	}

	om.log.Info().Strs("files", paths).Msg("Wrote conversion output")
	return paths, nil
}

// GetLogger returns the configured logger
func (om *OutputManager) GetLogger() zerolog.Logger {
	return om.log
}

// GetBaseDir returns the run directory
func (om *OutputManager) GetBaseDir() string {
	return om.baseDir
}

func (om *OutputManager) Close() error {
	return om.logFile.Close()
}
