package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/derefd/internal/namespace"
	"github.com/MrSnakeDoc/derefd/internal/sparql"
)

var (
	literalValue string
	literalType  string
)

var literalCmd = &cobra.Command{
	Use:   "literal",
	Short: "Render a typed literal as SPARQL",
	Long: `Render a value with an XSD datatype the way rule atoms are rendered
in SPARQL, e.g.

  derefd literal --value 42 --type xsd:int
  "42"^^<http://www.w3.org/2001/XMLSchema#int>`,
	RunE: runLiteral,
}

func init() {
	literalCmd.Flags().StringVar(&literalValue, "value", "", "literal value (used verbatim)")
	literalCmd.Flags().StringVar(&literalType, "type", "xsd:string", "datatype IRI or CURIE")
	_ = literalCmd.MarkFlagRequired("value")
	rootCmd.AddCommand(literalCmd)
}

func runLiteral(cmd *cobra.Command, args []string) error {
	adapter := sparql.NewAdapter(namespace.New())
	obj, err := adapter.Adapt(sparql.TypedLiteralAtom{
		Value:   sparql.ExpressionAtom{Text: literalValue},
		XSDType: literalType,
	})
	if err != nil {
		return fmt.Errorf("render literal: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), obj.String())
	return nil
}
