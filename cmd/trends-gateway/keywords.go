package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/trends-gateway/internal/config"
	"github.com/JakeFAU/trends-gateway/internal/trends"
)

// newKeywordsCmd prints how the normalizer splits keyword input without
// touching the upstream. With no arguments it runs the diagnostic battery.
func newKeywordsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords [input...]",
		Short: "Show how keyword parameters are normalized",
		Example: `  trends-gateway keywords
  trends-gateway keywords "AI, machine learning" '["go", "rust"]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gw := trends.New(cfg.GatewayConfig(), trends.Deps{})

			var results []trends.KeywordDiagnostic
			if len(args) == 0 {
				results = gw.DiagnoseKeywords()
			} else {
				for _, arg := range args {
					query := gw.Canonicalize(cmd.Context(), trends.RawQuery{Keyword: trends.KeywordText(arg)})
					results = append(results, trends.KeywordDiagnostic{Input: arg, Output: query.Keywords})
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"results": results}); err != nil {
				return fmt.Errorf("encode results: %w", err)
			}
			return nil
		},
	}
}
