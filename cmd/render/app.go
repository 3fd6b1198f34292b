package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/use-agent/prerender/browser"
	"github.com/use-agent/prerender/config"
	"github.com/use-agent/prerender/models"
	"github.com/use-agent/prerender/render"
)

// engine is a running browser as the commands see it.
type engine interface {
	render.Opener
	Stats() models.PoolStats
	Close()
}

// app carries the process-level collaborators so tests can swap them.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	fs         afero.Fs
	loadConfig func() (*config.Config, error)
	launch     func(cfg config.BrowserConfig) (engine, error)
}

func defaultApp() *app {
	return &app{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		fs:         afero.NewOsFs(),
		loadConfig: config.Load,
		launch:     launchRod,
	}
}

// rodEngine adapts *browser.Browser to engine.
type rodEngine struct {
	*browser.Browser
}

func (e rodEngine) Open(ctx context.Context) (render.Page, error) {
	s, err := e.Browser.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func launchRod(cfg config.BrowserConfig) (engine, error) {
	b, err := browser.Launch(cfg)
	if err != nil {
		return nil, err
	}
	return rodEngine{b}, nil
}
