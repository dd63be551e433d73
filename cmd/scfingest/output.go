package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"scfingest/internal/api"
	"scfingest/internal/format"
)

var (
	outputWriter    io.Writer        = os.Stdout
	outputFormatter format.Formatter = format.JSONFormatter{}
)

func writeJSON(payload any) error {
	return outputFormatter.Write(outputWriter, payload)
}

func writeYAML(payload any) error {
	return format.YAMLFormatter{}.Write(outputWriter, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(outputWriter, format, args...)
	return err
}

func writeParts(parts []api.PartResponse) error {
	for _, part := range parts {
		if err := writePlain("%s\n", formatPartLine(part)); err != nil {
			return err
		}
	}
	return nil
}

func formatPartLine(part api.PartResponse) string {
	line := fmt.Sprintf("%-20s %-8s", part.Slot, part.Status)
	switch {
	case part.StorageKey != "":
		line += " " + part.StorageKey
	case part.Reason != "":
		line += " " + part.Reason
	}
	return line
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
