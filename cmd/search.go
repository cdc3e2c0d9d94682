package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	tools "github.com/alantheprice/xmlagent/pkg/agent_tools"
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search the web",
	Long: `Looks the query up with the DuckDuckGo Instant Answer API and prints the top
results (search.max_results, default 5).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		a := &app{cfg: cfg}
		return a.search(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List model aliases, the current model and local Ollama models",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		a.writeModels(cmd.Context(), cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd, modelsCmd)
}

func (a *app) search(ctx context.Context, w io.Writer, query string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	searcher := tools.NewWebSearcher(a.cfg.Search.Endpoint, a.cfg.Search.MaxResults)
	results, err := searcher.Search(ctx, query)
	if err != nil {
		return err
	}
	fmt.Fprint(w, tools.FormatSearchResults(query, results))
	return nil
}

// writeModels prints the configured aliases, the model in use and whatever
// the local Ollama daemon has pulled.
func (a *app) writeModels(ctx context.Context, w io.Writer) {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintln(w, "Available models:")
	names := make([]string, 0, len(a.cfg.ModelAliases))
	for name := range a.cfg.ModelAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "- %s: %s\n", name, a.cfg.ModelAliases[name])
	}

	if a.router != nil {
		local, err := a.router.LocalModels(ctx)
		switch {
		case err != nil:
			a.logger.Logf("could not list local models: %v", err)
			fmt.Fprintln(w, "\nLocal models: unavailable")
		case len(local) > 0:
			fmt.Fprintln(w, "\nLocal models:")
			for _, m := range local {
				fmt.Fprintf(w, "- %s\n", m)
			}
		}
	}

	model := a.cfg.Model
	if a.session != nil {
		model = a.session.Model
	}
	fmt.Fprintf(w, "\nCurrent model: %s\n", model)
}
