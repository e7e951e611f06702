package main

import (
	"github.com/spf13/cobra"

	"github.com/robert-malhotra/swiftserve/swift"
)

var (
	fieldFlag     string
	columnsFlag   string
	maskFlag      string
	maskDTypeFlag string
	maskSizeFlag  int
)

var unmaskedCmd = &cobra.Command{
	Use:   "unmasked",
	Short: "Read every row of a field",
	Example: `  swiftserve unmasked --alias sample_file --field PartType0/Masses
  swiftserve unmasked --path snap.hdf5 --field PartType0/Coordinates --columns 0`,
	RunE: runUnmasked,
}

var maskedCmd = &cobra.Command{
	Use:   "masked",
	Short: "Read the rows of a field selected by a mask",
	Example: `  swiftserve masked --alias sample_file --field PartType0/Masses --mask '[[0, 334]]' --mask-size 334
  swiftserve masked --alias sample_file --field PartType0/Masses --mask @mask.json`,
	RunE: runMasked,
}

func init() {
	for _, c := range []*cobra.Command{unmaskedCmd, maskedCmd} {
		c.Flags().StringVar(&fieldFlag, "field", "", "field path, e.g. PartType0/Masses")
		c.Flags().StringVar(&columnsFlag, "columns", "", `component selector: "1" or "0,2"`)
		_ = c.MarkFlagRequired("field")
		rootCmd.AddCommand(c)
	}
	maskedCmd.Flags().StringVar(&maskFlag, "mask", "", `JSON list of [start, end) pairs, or @file ("@-" for stdin)`)
	maskedCmd.Flags().StringVar(&maskDTypeFlag, "mask-dtype", "", "dtype tag of the mask (default inferred)")
	maskedCmd.Flags().IntVar(&maskSizeFlag, "mask-size", -1, "rows in the result (default: rows the mask selects)")
}

func fieldRequest() (swift.Request, error) {
	ref, err := reference()
	if err != nil {
		return swift.Request{}, err
	}
	cols, err := parseColumns(columnsFlag)
	if err != nil {
		return swift.Request{}, err
	}
	return swift.Request{Ref: ref, Field: fieldFlag, Columns: cols}, nil
}

func runUnmasked(cmd *cobra.Command, args []string) error {
	req, err := fieldRequest()
	if err != nil {
		return err
	}
	out, err := app.svc.RetrieveUnmasked(requestContext(cmd), req)
	if err != nil {
		return err
	}
	return writeJSON(stdout(cmd), out)
}

func runMasked(cmd *cobra.Command, args []string) error {
	req, err := fieldRequest()
	if err != nil {
		return err
	}
	text, err := readMask(maskFlag)
	if err != nil {
		return err
	}
	size, err := maskSize(req.Field, text, maskDTypeFlag, maskSizeFlag)
	if err != nil {
		return err
	}
	out, err := app.svc.RetrieveMasked(requestContext(cmd), swift.MaskedRequest{
		Request:   req,
		Mask:      text,
		MaskDType: maskDTypeFlag,
		MaskSize:  size,
	})
	if err != nil {
		return err
	}
	return writeJSON(stdout(cmd), out)
}
