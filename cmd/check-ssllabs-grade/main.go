package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	corev2 "github.com/sensu/sensu-go/api/core/v2"
	"github.com/sensu/sensu-plugin-sdk/sensu"
	"github.com/sirupsen/logrus"

	"github.com/nmollerup/sensu-check-ssllabs/internal/cache"
	"github.com/nmollerup/sensu-check-ssllabs/internal/collector"
	"github.com/nmollerup/sensu-check-ssllabs/internal/evaluate"
	"github.com/nmollerup/sensu-check-ssllabs/internal/ssllabs"
	"github.com/nmollerup/sensu-check-ssllabs/internal/valuestore"
)

// Config represents the check plugin config.
type Config struct {
	sensu.PluginConfig
	Collector collector.Options

	Item       string
	Input      string
	StateDB    string
	ParamsFile string
	Debug      bool

	ScoreOK         string
	ScoreWarn       string
	ScoreCrit       string
	AgeWarn         int
	AgeCrit         int
	NoGrade         int
	HasWarnings     int
	IsExceptional   int
	StateDNS        int
	StateError      int
	StateInProgress int
	Details         bool
}

var (
	plugin = Config{
		PluginConfig: sensu.PluginConfig{
			Name:     "check-ssllabs-grade",
			Short:    "SSL Labs grade check",
			Keyspace: "sensu.io/plugins/ssllabs/config",
		},
	}

	options = append(collector.ConfigOptions(&plugin.Collector),
		&sensu.PluginConfigOption[string]{
			Path:     "item",
			Env:      "SSLLABS_ITEM",
			Argument: "item",
			Usage:    "Host to evaluate; all hosts in the section when empty",
			Value:    &plugin.Item,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "input",
			Env:      "SSLLABS_INPUT",
			Argument: "input",
			Usage:    "File holding agent-ssllabs output; the API is queried directly when empty",
			Value:    &plugin.Input,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "state-db",
			Env:      "SSLLABS_STATE_DB",
			Argument: "state-db",
			Default:  filepath.Join(os.TempDir(), "check_ssllabs_grade.db"),
			Usage:    "SQLite database keeping the last seen grades",
			Value:    &plugin.StateDB,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "params-file",
			Env:      "SSLLABS_PARAMS_FILE",
			Argument: "params-file",
			Usage:    "YAML file overriding the grade parameters",
			Value:    &plugin.ParamsFile,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "score-ok",
			Argument: "score-ok",
			Default:  evaluate.DefaultScoreOK,
			Usage:    "Pattern (regex) for grades in OK state",
			Value:    &plugin.ScoreOK,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "score-warn",
			Argument: "score-warn",
			Default:  evaluate.DefaultScoreWarn,
			Usage:    "Pattern (regex) for grades in WARNING state",
			Value:    &plugin.ScoreWarn,
		},
		&sensu.PluginConfigOption[string]{
			Path:     "score-crit",
			Argument: "score-crit",
			Default:  evaluate.DefaultScoreCrit,
			Usage:    "Pattern (regex) for grades in CRITICAL state",
			Value:    &plugin.ScoreCrit,
		},
		&sensu.PluginConfigOption[int]{
			Path:      "age-warn",
			Argument:  "age-warn",
			Shorthand: "w",
			Usage:     "Maximum age of the last scan in days before WARNING, 0 disables",
			Value:     &plugin.AgeWarn,
		},
		&sensu.PluginConfigOption[int]{
			Path:      "age-crit",
			Argument:  "age-crit",
			Shorthand: "c",
			Usage:     "Maximum age of the last scan in days before CRITICAL, 0 disables",
			Value:     &plugin.AgeCrit,
		},
		stateOption("no-grade", "no grade information was found", 1, &plugin.NoGrade),
		stateOption("has-warnings", "an endpoint reports hasWarnings", 1, &plugin.HasWarnings),
		stateOption("is-exceptional", "an endpoint is not isExceptional", 1, &plugin.IsExceptional),
		stateOption("state-dns", "the scan is resolving DNS", 0, &plugin.StateDNS),
		stateOption("state-error", "the scan reports an ERROR", 1, &plugin.StateError),
		stateOption("state-in-progress", "the scan is IN_PROGRESS", 0, &plugin.StateInProgress),
		&sensu.PluginConfigOption[bool]{
			Path:     "details",
			Argument: "details",
			Default:  false,
			Usage:    "Show host and endpoint details in the output",
			Value:    &plugin.Details,
		},
		&sensu.PluginConfigOption[bool]{
			Path:     "debug",
			Env:      "SSLLABS_DEBUG",
			Argument: "debug",
			Default:  false,
			Usage:    "Log debug messages to stderr",
			Value:    &plugin.Debug,
		},
	)

	validate *validator.Validate
	params   evaluate.Params
	output   io.Writer = os.Stdout
)

func stateOption(name, when string, def int, value *int) *sensu.PluginConfigOption[int] {
	return &sensu.PluginConfigOption[int]{
		Path:     name,
		Argument: name,
		Default:  def,
		Usage:    fmt.Sprintf("State (0-3) if %s", when),
		Value:    value,
	}
}

func main() {
	validate = validator.New()
	logrus.SetOutput(os.Stderr)

	check := sensu.NewCheck(&plugin.PluginConfig, options, checkArgs, executeCheck, false)
	check.Execute()
}

func checkArgs(event *corev2.Event) (int, error) {
	if plugin.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	params = evaluate.Params{
		ScoreOK:         plugin.ScoreOK,
		ScoreWarn:       plugin.ScoreWarn,
		ScoreCrit:       plugin.ScoreCrit,
		AgeWarnDays:     plugin.AgeWarn,
		AgeCritDays:     plugin.AgeCrit,
		NoGrade:         evaluate.State(plugin.NoGrade),
		HasWarnings:     evaluate.State(plugin.HasWarnings),
		IsExceptional:   evaluate.State(plugin.IsExceptional),
		StateDNS:        evaluate.State(plugin.StateDNS),
		StateError:      evaluate.State(plugin.StateError),
		StateInProgress: evaluate.State(plugin.StateInProgress),
		Details:         plugin.Details,
	}
	if len(plugin.ParamsFile) > 0 {
		if err := params.LoadFile(plugin.ParamsFile); err != nil {
			return sensu.CheckStateWarning, err
		}
	}
	if err := params.Compile(validate); err != nil {
		return sensu.CheckStateWarning, err
	}

	if len(plugin.StateDB) == 0 {
		return sensu.CheckStateWarning, fmt.Errorf("--state-db is required")
	}

	if len(plugin.Input) > 0 {
		return sensu.CheckStateOK, nil
	}
	if len(plugin.Collector.SSLHosts) == 0 {
		plugin.Collector.SSLHosts = plugin.Item
	}
	if len(plugin.Collector.Hosts()) == 0 {
		return sensu.CheckStateWarning, fmt.Errorf("one of --input, --ssl-hosts or --item is required")
	}
	if err := plugin.Collector.Validate(validate); err != nil {
		return sensu.CheckStateWarning, err
	}
	return sensu.CheckStateOK, nil
}

func executeCheck(event *corev2.Event) (int, error) {
	ctx := context.Background()

	section, err := loadSection(ctx)
	if errors.Is(err, ssllabs.ErrNoSection) {
		fmt.Fprintln(output, "no SSL Labs data available")
		return sensu.CheckStateUnknown, nil
	}
	if err != nil {
		return sensu.CheckStateUnknown, err
	}

	store, err := valuestore.Open(plugin.StateDB)
	if err != nil {
		return sensu.CheckStateUnknown, err
	}
	defer func() {
		_ = store.Close()
	}()

	items := section.Hosts()
	if len(plugin.Item) > 0 {
		items = []string{plugin.Item}
	}
	if len(items) == 0 {
		fmt.Fprintln(output, "no SSL Labs data available")
		return sensu.CheckStateUnknown, nil
	}

	var (
		blocks []string
		all    []evaluate.Result
	)
	for _, item := range items {
		results, err := evaluateItem(ctx, store, item, section)
		if err != nil {
			return sensu.CheckStateUnknown, err
		}
		all = append(all, results...)

		text := evaluate.Render(results)
		if len(items) > 1 {
			text = fmt.Sprintf("SSL Labs %s: %s", item, text)
		}
		blocks = append(blocks, text)
	}

	fmt.Fprintln(output, strings.Join(blocks, "\n\n"))
	return int(evaluate.Worst(all)), nil
}

func evaluateItem(ctx context.Context, store *valuestore.SQLite, item string, section ssllabs.Section) ([]evaluate.Result, error) {
	history, err := store.Load(ctx, item)
	if err != nil {
		return nil, err
	}
	ev, err := evaluate.New(&params, history)
	if err != nil {
		return nil, err
	}
	results := ev.Check(item, section)
	if err := store.Save(ctx, item, history); err != nil {
		return nil, err
	}
	return results, nil
}

func loadSection(ctx context.Context) (ssllabs.Section, error) {
	if len(plugin.Input) > 0 {
		f, err := os.Open(plugin.Input)
		if err != nil {
			return nil, fmt.Errorf("open agent output: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		return ssllabs.ReadSection(f)
	}

	cfg, err := plugin.Collector.ClientConfig()
	if err != nil {
		return nil, err
	}
	client, err := ssllabs.NewClient(cfg, nil, logrus.StandardLogger())
	if err != nil {
		return nil, err
	}
	store := cache.New(plugin.Collector.CacheDir, plugin.Collector.CacheMaxAge())
	records := collector.New(client, store, logrus.StandardLogger()).Collect(ctx, plugin.Collector.Hosts())
	if len(records) == 0 {
		return nil, ssllabs.ErrNoSection
	}
	return ssllabs.NewSection(records), nil
}
