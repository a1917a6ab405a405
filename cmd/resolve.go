package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var resolveOpts runFlags

var resolveCmd = &cobra.Command{
	Use:   "resolve [facts.json...]",
	Short: "Resolve metrics from local companyfacts documents",
	Long:  "Evaluates companyfacts JSON files without fetching them. Submissions are looked up through the cache or EDGAR only when a user agent is configured; otherwise companies are classified as Unknown with a December year end.",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := resolveOpts
		f.factsFiles = append(append([]string{}, f.factsFiles...), args...)
		sel := f.selection()
		if len(sel.FactsFiles) == 0 && len(sel.FactsDirs) == 0 {
			return eris.New("pass companyfacts files as arguments, --facts or --facts-dir")
		}
		return execute(cmd.Context(), f, sel, true)
	},
}

func init() {
	addRunFlags(resolveCmd, &resolveOpts)
	resolveCmd.Flags().StringSliceVar(&resolveOpts.factsFiles, "facts", nil, "companyfacts JSON files")
	resolveCmd.Flags().StringSliceVar(&resolveOpts.factsDirs, "facts-dir", nil, "directories of companyfacts JSON files")
	rootCmd.AddCommand(resolveCmd)
}
