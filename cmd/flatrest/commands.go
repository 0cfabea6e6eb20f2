package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/gateway"
	"github.com/vilaca/flatrest/internal/service"
)

type InfoCmd struct {
	DB string `arg:"" help:"Database name (kegg, pathway, hsa, ...)."`
}

func (c *InfoCmd) Run(ctx context.Context, g *Globals) error {
	return withApp(g, func(a *app) error {
		text, err := a.service.Info(ctx, c.DB)
		if err != nil {
			return err
		}
		return a.emit(text)
	})
}

type ListCmd struct {
	DB      string   `arg:"" help:"Database name, or dbentries to list the given entries."`
	Entries []string `arg:"" optional:"" help:"Organism code or entry identifiers."`
	Table   bool     `help:"Keep every column instead of an id to name mapping." short:"t"`
}

func (c *ListCmd) Run(ctx context.Context, g *Globals) error {
	return withApp(g, func(a *app) error {
		if c.Table {
			m, err := a.service.ListTable(ctx, c.DB, c.Entries...)
			if err != nil {
				return err
			}
			return a.emit(m)
		}
		l, err := a.service.List(ctx, c.DB, c.Entries...)
		if err != nil {
			return err
		}
		return a.emit(l)
	})
}

type FindCmd struct {
	DB     string   `arg:"" help:"Database to search."`
	Query  []string `arg:"" help:"Keywords, joined with spaces."`
	Option string   `help:"Search option (formula, exact_mass, mol_weight, nop)." short:"o"`
	Table  bool     `help:"Keep every column of the result." short:"t"`
}

func (c *FindCmd) Run(ctx context.Context, g *Globals) error {
	query := strings.Join(c.Query, " ")
	return withApp(g, func(a *app) error {
		if c.Table {
			m, err := a.service.FindTable(ctx, c.DB, query, c.Option)
			if err != nil {
				return err
			}
			return a.emit(m)
		}
		l, err := a.service.Find(ctx, c.DB, query, c.Option)
		if err != nil {
			return err
		}
		return a.emit(l)
	})
}

type GetCmd struct {
	IDs    []string `arg:"" name:"ids" help:"Qualified entry identifiers (hsa:10458, cpd:C00001)."`
	Option string   `help:"Output option (aaseq, ntseq, mol, kcf, image, kgml, conf, json)." short:"o"`
}

func (c *GetCmd) Run(ctx context.Context, g *Globals) error {
	return withApp(g, func(a *app) error {
		if service.IsRawOption(c.Option) {
			bodies, err := a.service.GetRaw(ctx, c.IDs, c.Option)
			if err != nil {
				return err
			}
			for _, b := range bodies {
				if _, err := os.Stdout.WriteString(b); err != nil {
					return err
				}
			}
			return nil
		}
		records, err := a.service.Get(ctx, c.IDs, c.Option)
		if err != nil {
			return err
		}
		return a.emit(records)
	})
}

type LinkCmd struct {
	Target string `arg:"" help:"Target database."`
	Source string `arg:"" help:"Source database or entries joined with +."`
}

func (c *LinkCmd) Run(ctx context.Context, g *Globals) error {
	return withApp(g, func(a *app) error {
		rel, err := a.service.Link(ctx, c.Target, c.Source)
		if err != nil {
			return err
		}
		return a.emit(rel)
	})
}

type ConvCmd struct {
	Target    string   `arg:"" help:"Target database."`
	Sources   []string `arg:"" help:"Source database or entry identifiers."`
	QuerySize int      `help:"Identifiers per request." name:"query-size" default:"100"`
	Merged    bool     `help:"Merge the per-request mappings into one." short:"m"`
}

func (c *ConvCmd) Run(ctx context.Context, g *Globals) error {
	return withApp(g, func(a *app) error {
		if c.Merged {
			m, err := a.service.ConvMerged(ctx, c.Target, c.Sources, c.QuerySize)
			if err != nil {
				return err
			}
			return a.emit(m)
		}
		groups, err := a.service.Conv(ctx, c.Target, c.Sources, c.QuerySize)
		if err != nil {
			return err
		}
		return a.emit(groups)
	})
}

type QueryCmd struct {
	Op       string   `arg:"" help:"Operation (info, list, find, get, link, conv)."`
	Resource string   `arg:"" help:"Database or target resource."`
	Entries  []string `arg:"" optional:"" help:"Entry identifiers or query text."`
	Option   string   `help:"Trailing option segment." short:"o"`
	Grammar  string   `help:"Parser to apply (list, flatfile, matrix, link, text)." short:"g" default:"text"`
}

func (c *QueryCmd) Run(ctx context.Context, g *Globals) error {
	return withApp(g, func(a *app) error {
		parts, err := a.service.Query(ctx, domain.Operation(c.Op), c.Resource, c.Entries, c.Option, domain.Grammar(c.Grammar))
		if err != nil {
			return err
		}
		for _, p := range parts {
			if err := a.emit(p); err != nil {
				return err
			}
		}
		return nil
	})
}

type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)." short:"p"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	return withApp(g, func(a *app) error {
		port := a.cfg.Port
		if c.Port > 0 {
			port = c.Port
		}

		handlerCfg := gateway.HandlerConfig{
			Operations: a.service,
			Logger:     a.logger.WithPrefix("gateway"),
			Timeout:    2 * a.cfg.Timeout,
		}
		if a.cache != nil {
			handlerCfg.Stats = a.cache
			handlerCfg.Cache = a.cache
		}
		if a.store != nil {
			pruner := service.NewStorePruner(a.store, a.cfg.Store.MaxAge, a.cfg.Store.PruneInterval, a.logger.WithPrefix("pruner"))
			pruner.Start()
			defer pruner.Stop()
		}

		srv := &http.Server{
			Addr:              gateway.Addr(port),
			Handler:           gateway.NewHandler(handlerCfg).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("gateway listening", "addr", "http://localhost"+srv.Addr, "base_url", a.cfg.BaseURL)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
		}

		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

type PruneCmd struct {
	OlderThan time.Duration `help:"Delete responses older than this (defaults to store.max_age)." name:"older-than"`
}

func (c *PruneCmd) Run(ctx context.Context, g *Globals) error {
	return withApp(g, func(a *app) error {
		if a.store == nil {
			return errors.New("no store configured (set store.path or FLATREST_STORE_PATH)")
		}
		age := c.OlderThan
		if age <= 0 {
			age = a.cfg.Store.MaxAge
		}
		n, err := a.store.Prune(ctx, age)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "pruned %d responses\n", n)
		return nil
	})
}

func withApp(g *Globals, fn func(a *app) error) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
