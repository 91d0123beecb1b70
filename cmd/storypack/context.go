package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"storypack/internal/catalog"
	"storypack/internal/config"
	"storypack/internal/device"
	"storypack/internal/faults"
	"storypack/internal/logging"
)

type globalFlags struct {
	device  string
	key     string
	config  string
	verbose bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, _ := c.ensureConfig()
		logger, err := logging.NewFromConfig(cfg, c.flags.verbose)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// openCatalog opens the name service. Callers must Close it.
func (c *commandContext) openCatalog(ctx context.Context) (*catalog.Service, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return catalog.Open(ctx, cfg, c.log())
}

// session is an opened device together with the catalog naming its content.
type session struct {
	device  device.Adapter
	catalog *catalog.Service
}

func (s *session) Close() error {
	return s.catalog.Close()
}

func (c *commandContext) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	root, err := c.deviceRoot()
	if err != nil {
		return nil, err
	}
	svc, err := c.openCatalog(ctx)
	if err != nil {
		return nil, err
	}
	d, err := device.Open(root, device.Options{
		KeysDir: cfg.Paths.KeysDir,
		KeyFile: strings.TrimSpace(c.flags.key),
		Catalog: svc,
		Margin:  cfg.FreeSpaceMargin(),
		Logger:  c.log(),
	})
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	return &session{device: d, catalog: svc}, nil
}

// withSession opens the selected device for the duration of fn.
func (c *commandContext) withSession(cmd *cobra.Command, fn func(context.Context, *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := c.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// deviceRoot returns --device or the only storyteller currently mounted.
func (c *commandContext) deviceRoot() (string, error) {
	if root := strings.TrimSpace(c.flags.device); root != "" {
		expanded, err := config.ExpandPath(root)
		if err != nil {
			return "", fmt.Errorf("resolve device path: %w", err)
		}
		return expanded, nil
	}
	mounts, err := device.Find()
	if err != nil {
		return "", faults.Wrap(faults.ErrIOFailure, "cli", "find devices", "", err)
	}
	switch len(mounts) {
	case 0:
		return "", faults.Wrap(faults.ErrNotFound, "cli", "find devices", "no storyteller mounted; pass --device", nil)
	case 1:
		return mounts[0].Root, nil
	default:
		roots := make([]string, 0, len(mounts))
		for _, m := range mounts {
			roots = append(roots, m.Root)
		}
		return "", &faults.AmbiguousError{Query: "device", Candidates: roots}
	}
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
