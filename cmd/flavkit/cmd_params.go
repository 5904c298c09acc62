package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flavkit/internal/constraint"
)

// paramsCmd groups the parameter corpus commands
var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Inspect and export the parameter corpus",
}

var paramsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all parameters with their constraints",
	RunE:  runParamsList,
}

var paramsShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show one parameter in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runParamsShow,
}

var paramsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full corpus as YAML",
	Long: `Writes the working corpus (embedded defaults plus extra files and
overrides) to stdout in the same YAML format the loader accepts, so an
exported corpus round-trips.`,
	RunE: runParamsExport,
}

var paramsOverrides []string

func init() {
	paramsCmd.AddCommand(paramsListCmd)
	paramsCmd.AddCommand(paramsShowCmd)
	paramsCmd.AddCommand(paramsExportCmd)
	paramsCmd.PersistentFlags().StringArrayVar(&paramsOverrides, "set", nil,
		"Constraint override, name=\"central ± error\" (repeatable)")
}

func runParamsList(cmd *cobra.Command, args []string) error {
	store, _, err := buildStore(paramsOverrides)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARAMETER\tCONSTRAINT\tDESCRIPTION")
	for _, name := range store.Registry().Names() {
		p, err := store.Registry().Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, describeConstraints(store, name), p.Description)
	}
	return w.Flush()
}

func runParamsShow(cmd *cobra.Command, args []string) error {
	name := args[0]
	store, _, err := buildStore(paramsOverrides)
	if err != nil {
		return err
	}

	p, err := store.Registry().Get(name)
	if err != nil {
		return err
	}

	fmt.Printf("Name:        %s\n", p.Name)
	if p.Description != "" {
		fmt.Printf("Description: %s\n", p.Description)
	}
	if p.Tex != "" {
		fmt.Printf("TeX:         %s\n", p.Tex)
	}
	fmt.Printf("Default:     %v\n", p.Default)

	blocks := store.ConstraintsFor(name)
	if len(blocks) == 0 {
		fmt.Println("Constraints: none (pinned to default)")
		return nil
	}
	for i, b := range blocks {
		rendered, err := constraint.Render(b.Dist)
		if err != nil {
			// multivariate blocks have no single-line spelling
			rendered = fmt.Sprintf("%d-dimensional block with %v", b.Dist.Dim(), b.Names)
		}
		fmt.Printf("Constraint %d: %s\n", i+1, rendered)
	}
	return nil
}

func runParamsExport(cmd *cobra.Command, args []string) error {
	store, _, err := buildStore(paramsOverrides)
	if err != nil {
		return err
	}
	logger.Debug("exporting corpus", zap.Int("parameters", store.Registry().Len()))
	return constraint.WriteYAML(os.Stdout, store)
}

func describeConstraints(store *constraint.Store, name string) string {
	blocks := store.ConstraintsFor(name)
	switch len(blocks) {
	case 0:
		return "fixed"
	case 1:
		if blocks[0].Dist.Dim() > 1 {
			return fmt.Sprintf("correlated with %v", otherNames(blocks[0].Names, name))
		}
		rendered, err := constraint.Render(blocks[0].Dist)
		if err != nil {
			return "constrained"
		}
		return rendered
	default:
		return fmt.Sprintf("%d independent constraints", len(blocks))
	}
}

func otherNames(names []string, self string) []string {
	out := make([]string, 0, len(names)-1)
	for _, n := range names {
		if n != self {
			out = append(out, n)
		}
	}
	return out
}
