package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, apiFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) apiBind() string {
	if v := flagValue(c.apiFlag); v != "" {
		return v
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.APIBind
	}
	return ""
}

func (c *commandContext) apiToken() string {
	if v := flagValue(c.tokenFlag); v != "" {
		return v
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.APIToken
	}
	return ""
}

func (c *commandContext) client() (*api.Client, error) {
	bind := c.apiBind()
	client, err := api.NewClient(bind, c.apiToken())
	if err != nil {
		return nil, wrapAPIError(err, bind)
	}
	return client, nil
}

// withClient runs fn against the daemon API, translating connection
// failures into a hint to start the daemon.
func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return wrapAPIError(fn(client), c.apiBind())
}

func wrapAPIError(err error, bind string) error {
	if err == nil {
		return nil
	}
	if api.IsUnavailable(err) {
		if strings.TrimSpace(bind) == "" {
			return fmt.Errorf("connect to daemon: paths.api_bind is empty")
		}
		return fmt.Errorf("connect to daemon: nothing is listening on %s; start the daemon with `scribe serve`", bind)
	}
	return err
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
