package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alantheprice/xmlagent/pkg/configuration"
	"github.com/alantheprice/xmlagent/pkg/llm"
	"github.com/alantheprice/xmlagent/pkg/orchestration"
	"github.com/alantheprice/xmlagent/pkg/session"
	"github.com/alantheprice/xmlagent/pkg/ui"
	"github.com/alantheprice/xmlagent/pkg/utils"
)

var (
	assumeYes  bool
	verbose    bool
	modelFlag  string
	configFile string
	xmlOutput  bool
)

// errReported marks failures that were already shown to the user.
var errReported = errors.New("command failed")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xmlagent",
	Short: "Terminal agent that talks to LLMs through a structured XML protocol",
	Long: `xmlagent sends your requests to a language model, asks it to answer in a
structured XML schema and carries out what the answer asks for: file actions,
shell commands, memory updates and changes to a hierarchical task plan.

Every file change and unsafe shell command is confirmed first.

Available commands:
  chat     - Interactive conversation (the default)
  plan     - Generate, inspect and edit the task plan
  task     - Execute or complete a single plan task
  apply    - Run a saved model response through the dispatcher
  models   - List model aliases and local models
  search   - Search the web
  serve    - Live plan viewer in the browser`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer every confirmation with its default")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Mirror the workspace log to stderr")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model or alias to use")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/xmlagent/config.yaml)")
}

// app bundles what a command needs.
type app struct {
	cfg     *configuration.Config
	cfgPath string
	logger  *utils.Logger
	console *ui.Console
	session *session.Session
	router  *llm.Router
}

func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return configuration.GetConfigPath()
}

func loadConfig() (*configuration.Config, string, error) {
	path, err := configPath()
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, "", fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg, err := configuration.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newApp loads the configuration and wires a session to the configured
// model.
func newApp() (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if modelFlag != "" {
		cfg.Model = cfg.ResolveModel(modelFlag)
	}
	if verbose {
		cfg.Verbose = true
	}

	logger := utils.GetLogger(assumeYes)
	logger.SetInteractive(!assumeYes)
	logger.SetVerbose(cfg.Verbose)
	console := ui.NewConsole(nil, logger)

	router := llm.NewRouter(llm.NewOpenAIClient(cfg.Timeout()), cfg.OllamaHost)
	s := session.New(cfg, router, console, console)
	logger.Logf("session %s using model %s", logger.CorrelationID(), s.Model)

	return &app{cfg: cfg, cfgPath: path, logger: logger, console: console, session: s, router: router}, nil
}

// report prints a plan operation result and turns error results into
// errReported so the exit status reflects them.
func (a *app) report(r orchestration.Result) error {
	if xmlOutput {
		a.console.Print(r.XML() + "\n")
	} else {
		switch r.Kind {
		case orchestration.KindOK:
			a.console.Success(r.Message)
		case orchestration.KindWarning:
			a.console.Warn(r.Message)
		default:
			a.console.Error(r.Message)
		}
		for _, c := range r.Changes {
			a.console.Info("  " + c)
		}
		for _, dep := range r.MissingDependencies {
			a.console.Info("  " + dep)
		}
	}
	if r.Kind == orchestration.KindError {
		return errReported
	}
	return nil
}
