// Package finuracli provides common CLI utilities and boilerplate for the
// finura presence services.
//
// This package includes standardized service configuration, common CLI flags,
// structured logging setup, metrics, and build information tracking.
package finuracli

import (
	"fmt"
	"runtime/debug"

	"github.com/urfave/cli/v2"
)

func App(service Service, action cli.ActionFunc, flags ...cli.Flag) *cli.App {
	return &cli.App{
		Name:                 service.Name,
		Usage:                fmt.Sprintf("%v server", service.Name),
		Version:              service.Version,
		EnableBashCompletion: true,
		Before:               InitCommonOpts,
		Action:               action,
		Flags:                flags,
	}
}

// InitCommonOpts validates CommonOpts after flag parsing.
func InitCommonOpts(c *cli.Context) error {
	if CommonOpts.Port < 0 || CommonOpts.Port > 65535 {
		return fmt.Errorf("invalid port %v", CommonOpts.Port)
	}
	return nil
}

func CommitHash() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
		return info.Main.Version
	}
	return "unknown"
}
