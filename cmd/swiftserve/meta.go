package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/swiftserve/internal/units"
)

var (
	outFlag   string
	dictFlag  bool
	unitsFlag string
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Export snapshot metadata",
	Long: `Export the metadata of a snapshot.

By default the binary metadata blob is written to --out (or stdout). With
--dict the metadata is printed as JSON instead. --units names a JSON file
holding a units map (as printed by "swiftserve units") to use instead of the
file's own unit system.`,
	RunE: runMetadata,
}

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Print the unit system of a snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := reference()
		if err != nil {
			return err
		}
		out, err := app.svc.RetrieveUnitsDict(requestContext(cmd), ref)
		if err != nil {
			return err
		}
		return writeJSON(stdout(cmd), out)
	},
}

var filepathCmd = &cobra.Command{
	Use:   "filepath",
	Short: "Print the path a dataset reference resolves to",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := reference()
		if err != nil {
			return err
		}
		p, err := app.svc.RetrieveFilePath(requestContext(cmd), ref)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout(cmd), p)
		return nil
	},
}

var boxsizeCmd = &cobra.Command{
	Use:   "boxsize",
	Short: "Print the simulation box size with its units",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := reference()
		if err != nil {
			return err
		}
		out, err := app.svc.RetrieveMaskBoxsize(requestContext(cmd), ref)
		if err != nil {
			return err
		}
		return writeJSON(stdout(cmd), out)
	},
}

func init() {
	metadataCmd.Flags().StringVarP(&outFlag, "out", "o", "", "write the blob to this file")
	metadataCmd.Flags().BoolVar(&dictFlag, "dict", false, "print JSON instead of the binary blob")
	metadataCmd.Flags().StringVar(&unitsFlag, "units", "", "JSON units map to attach")
	rootCmd.AddCommand(metadataCmd, unitsCmd, filepathCmd, boxsizeCmd)
}

// loadUnits reads a wire units map from a JSON file.
func loadUnits(path string) (*units.Map, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading units: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("invalid units JSON in %s: %w", path, err)
	}
	return units.Parse(raw)
}

func runMetadata(cmd *cobra.Command, args []string) error {
	ref, err := reference()
	if err != nil {
		return err
	}
	u, err := loadUnits(unitsFlag)
	if err != nil {
		return err
	}
	ctx := requestContext(cmd)

	if dictFlag {
		out, err := app.svc.RetrieveMetadataDict(ctx, ref, u)
		if err != nil {
			return err
		}
		return writeJSON(stdout(cmd), out)
	}

	blob, err := app.svc.RetrieveMetadata(ctx, ref, u)
	if err != nil {
		return err
	}
	if outFlag == "" {
		_, err = stdout(cmd).Write(blob)
		return err
	}
	return os.WriteFile(outFlag, blob, 0o644)
}
