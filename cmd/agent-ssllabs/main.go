package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	corev2 "github.com/sensu/sensu-go/api/core/v2"
	"github.com/sensu/sensu-plugin-sdk/sensu"
	"github.com/sirupsen/logrus"

	"github.com/nmollerup/sensu-check-ssllabs/internal/cache"
	"github.com/nmollerup/sensu-check-ssllabs/internal/collector"
	"github.com/nmollerup/sensu-check-ssllabs/internal/ssllabs"
)

// Config represents the agent plugin config.
type Config struct {
	sensu.PluginConfig
	Collector collector.Options
	Debug     bool
}

var (
	plugin = Config{
		PluginConfig: sensu.PluginConfig{
			Name:     "agent-ssllabs",
			Short:    "Qualys SSL Labs agent, emits the ssllabs_grade section",
			Keyspace: "sensu.io/plugins/ssllabs/config",
		},
	}

	options = append(collector.ConfigOptions(&plugin.Collector),
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
	client   *ssllabs.Client
	output   io.Writer = os.Stdout
)

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
	if len(plugin.Collector.Hosts()) == 0 {
		return sensu.CheckStateWarning, fmt.Errorf("--ssl-hosts is required")
	}
	if err := plugin.Collector.Validate(validate); err != nil {
		return sensu.CheckStateWarning, err
	}
	cfg, err := plugin.Collector.ClientConfig()
	if err != nil {
		return sensu.CheckStateWarning, err
	}
	client, err = ssllabs.NewClient(cfg, nil, logrus.StandardLogger())
	if err != nil {
		return sensu.CheckStateWarning, err
	}
	return sensu.CheckStateOK, nil
}

func executeCheck(event *corev2.Event) (int, error) {
	store := cache.New(plugin.Collector.CacheDir, plugin.Collector.CacheMaxAge())
	c := collector.New(client, store, logrus.StandardLogger())

	records := c.Collect(context.Background(), plugin.Collector.Hosts())
	if len(records) == 0 {
		return sensu.CheckStateOK, nil
	}
	if err := ssllabs.WriteSection(output, records); err != nil {
		return sensu.CheckStateUnknown, err
	}
	return sensu.CheckStateOK, nil
}
