package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"interactive-gym/internal/ws"

	"github.com/spf13/cobra"
)

const defaultSchemaPath = "api/schema/ws_v1.schema.json"

func newSchemaCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the websocket protocol JSON schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := writeSchema(out, ws.ProtocolSchema()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", defaultSchemaPath, "path to write the JSON schema")
	return cmd
}

func writeSchema(outPath string, schema any) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
