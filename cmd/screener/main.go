// Command screener is a cobra-based debug CLI that runs a query
// through the translate -> validate -> compile pipeline and prints the
// resulting SQL and parameters without executing it — useful for
// inspecting what a natural-language query or a hand-written DSL
// document compiles to before wiring it into an API call or alert
// subscription.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/compiler"
	"github.com/dewei/screenradar/pkg/dsl"
	"github.com/dewei/screenradar/pkg/translator"
	"github.com/dewei/screenradar/pkg/validator"
)

func main() {
	var dslFile string
	var ticker string

	root := &cobra.Command{
		Use:   "screener [query]",
		Short: "Compile a natural-language or DSL screener query to SQL without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.Get()
			val := validator.New(cat, validator.DefaultConfig())
			comp := compiler.New(cat, compiler.DefaultConfig())

			var query *dsl.Query
			switch {
			case dslFile != "":
				raw, err := os.ReadFile(dslFile)
				if err != nil {
					return fmt.Errorf("read dsl file: %w", err)
				}
				query = &dsl.Query{}
				if err := json.Unmarshal(raw, query); err != nil {
					return fmt.Errorf("parse dsl file: %w", err)
				}
			case len(args) == 1:
				trans := translator.New(cat, nil)
				translated, err := trans.Translate(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("translate query: %w", err)
				}
				query = translated
			default:
				return fmt.Errorf("provide a natural-language query argument or --dsl-file")
			}

			res := val.Validate(query)
			for _, issue := range res.Warnings() {
				fmt.Fprintf(os.Stderr, "warning: %s\n", issue.Message)
			}
			if !res.OK() {
				for _, issue := range res.Errors() {
					fmt.Fprintf(os.Stderr, "error: %s\n", issue.Message)
				}
				return fmt.Errorf("query failed validation")
			}

			var compiled *compiler.Result
			var err error
			if ticker != "" {
				compiled, err = comp.CompileForTicker(query, ticker)
			} else {
				compiled, err = comp.Compile(query)
			}
			if err != nil {
				return fmt.Errorf("compile query: %w", err)
			}

			fmt.Println(compiled.SQL)
			if len(compiled.Params) > 0 {
				fmt.Fprintln(os.Stderr, "--- params ---")
				for i, p := range compiled.Params {
					fmt.Fprintf(os.Stderr, "$%d = %v\n", i+1, p)
				}
			}
			return nil
		},
	}

	root.Flags().StringVar(&dslFile, "dsl-file", "", "path to a JSON dsl.Query document instead of a natural-language query")
	root.Flags().StringVar(&ticker, "ticker", "", "narrow the compiled query to a single ticker, as pkg/alertengine does for custom_dsl checks")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
