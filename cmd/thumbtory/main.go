/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"thumbtory/internal/backend"
	"thumbtory/internal/config"
	"thumbtory/internal/crash"
	"thumbtory/internal/editor"
	"thumbtory/internal/export"
	applog "thumbtory/internal/log"
	"thumbtory/internal/pack"
	"thumbtory/internal/scene"
	"thumbtory/internal/storage"
	"thumbtory/internal/telemetry"
	"thumbtory/internal/ui"
	"thumbtory/internal/version"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Thumbtory - thumbnail editor")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  thumbtory version                              Show version")
	fmt.Fprintln(w, "  thumbtory presets                              List export presets")
	fmt.Fprintln(w, "  thumbtory init <dir>                           Create a workspace")
	fmt.Fprintln(w, "  thumbtory templates <dir> [query]              List or search templates")
	fmt.Fprintln(w, "  thumbtory render <dir> <template> [flags]      Render a template (-preset, -fit, -background, -out, -bundle, -proof)")
	fmt.Fprintln(w, "  thumbtory pack export <dir> <zip> [names...]   Export templates as a pack")
	fmt.Fprintln(w, "  thumbtory pack install <dir> <zip>             Install a template pack")
	fmt.Fprintln(w, "  thumbtory serve [-addr :8080]                  Run the template library server")
	fmt.Fprintln(w, "  thumbtory remote login <subject>               Get a token from the template library")
	fmt.Fprintln(w, "  thumbtory remote list [query]                  Search shared templates")
	fmt.Fprintln(w, "  thumbtory remote push|pull <dir> <name>        Upload or download a template")
	fmt.Fprintln(w, "  thumbtory ui [dir]                             Launch the desktop editor (build with -tags fyne)")
}

// errUsage makes run print usage and exit 2.
var errUsage = errors.New("usage")

func main() {
	defer crash.Recover("", nil)
	code := run(os.Args[1:], os.Stdout)
	telemetry.Flush(context.Background())
	os.Exit(code)
}

func run(args []string, out io.Writer) int {
	cfg, token, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		cfg = config.Defaults()
	}
	applog.Init(applog.FromConfig(cfg.Logging))
	telemetry.SetDefault(telemetry.FromConfig(cfg.General))
	l := applog.WithComponent("cli")
	l.Debug("start", slog.Int("args", len(args)))

	if len(args) == 0 {
		usage(out)
		return 0
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version", "--version", "-v":
		fmt.Fprintln(out, "thumbtory", version.String())
	case "help", "-h", "--help":
		usage(out)
	case "presets":
		err = listPresets(out, export.RegistryFromConfig(cfg.Export))
	case "init":
		err = initWorkspace(ctx, out, rest)
	case "templates":
		err = listTemplates(ctx, out, rest)
	case "render":
		err = render(ctx, out, cfg, rest)
	case "pack":
		err = packCmd(ctx, out, rest)
	case "serve":
		err = serve(ctx, cfg, rest)
	case "remote":
		err = remote(ctx, out, cfg, token, rest)
	case "ui":
		var dir string
		if len(rest) > 0 {
			dir = rest[0]
		}
		err = ui.Run(dir)
	default:
		err = errUsage
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		usage(out)
		return 2
	default:
		l.Error("command failed", slog.String("cmd", cmd), slog.Any("err", err))
		fmt.Fprintln(out, "Error:", err)
		return 1
	}
}

func listPresets(out io.Writer, reg *export.Registry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tENABLED")
	for _, p := range reg.All() {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%v\n", p.ID, p.DisplayName, p.Width, p.Height, p.Enabled)
	}
	return tw.Flush()
}

func openWorkspace(dir string) (*storage.Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return storage.OpenWorkspace(abs)
}

func initWorkspace(ctx context.Context, out io.Writer, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	abs, _ := filepath.Abs(args[0])
	ws, err := storage.InitWorkspace(abs)
	if err != nil {
		return err
	}
	if err := storage.BuildIndexIfEmpty(ctx, ws); err != nil {
		return err
	}
	fmt.Fprintln(out, "Created workspace at", ws.Root)
	return nil
}

func listTemplates(ctx context.Context, out io.Writer, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	ws, err := openWorkspace(args[0])
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	if q := strings.Join(args[1:], " "); strings.TrimSpace(q) != "" {
		hits, err := storage.SearchTemplates(ctx, ws.Root, storage.TemplateQuery{Text: q, Limit: 50})
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "NAME\tELEMENTS\tMATCH")
		for _, h := range hits {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", h.Name, h.Elements, h.Snippet)
		}
		return nil
	}
	items, err := storage.ListTemplates(ws)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "NAME\tELEMENTS\tSAVED")
	for _, it := range items {
		saved := ""
		if !it.SavedAt.IsZero() {
			saved = it.SavedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", it.Name, it.Elements, saved)
	}
	return nil
}

func render(ctx context.Context, out io.Writer, cfg config.AppConfig, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(out)
	preset := fs.String("preset", "all", "preset id, or all for every enabled preset")
	fit := fs.String("fit", cfg.Export.Fit, "contain or cover")
	bg := fs.String("background", cfg.Export.Background, "white, dark, transparent or webp")
	outDir := fs.String("out", cfg.Export.OutDir, "output directory (default: <workspace>/exports)")
	bundle := fs.Bool("bundle", false, "also write a zip bundle")
	proof := fs.Bool("proof", false, "also write a PDF proof sheet")
	if err := fs.Parse(args[2:]); err != nil {
		return errUsage
	}
	ws, err := openWorkspace(args[0])
	if err != nil {
		return err
	}
	t, err := storage.LoadTemplate(ws, args[1])
	if err != nil {
		return err
	}
	dir := *outDir
	if dir == "" {
		dir = ws.ExportsDir()
	}
	var seo scene.SEO
	if t.SEO != nil {
		seo = *t.SEO
	}

	r := editor.RendererFromConfig(cfg)
	req := export.Request{PresetID: *preset, Fit: export.Fit(*fit), Background: export.BackgroundMode(*bg)}
	var results []export.Result
	if *preset == "all" {
		req.PresetID = ""
		batch, err := r.RenderAll(ctx, t.Scene(), req)
		if err != nil {
			return err
		}
		for _, f := range batch.Failures {
			fmt.Fprintln(out, "Failed:", editor.Notice(f))
		}
		results = batch.Results
	} else {
		res, err := r.Render(ctx, t.Scene(), req)
		if err != nil {
			return err
		}
		results = []export.Result{res}
	}
	if len(results) == 0 {
		return errors.New("nothing rendered")
	}
	paths, err := editor.WriteOutputs(dir, results, seo, time.Now(), *bundle, *proof)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return nil
}

func packCmd(ctx context.Context, out io.Writer, args []string) error {
	if len(args) < 3 {
		return errUsage
	}
	ws, err := openWorkspace(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "export":
		n, err := pack.Export(ws, args[2], args[3:]...)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d templates to %s\n", n, args[2])
	case "install":
		res, err := pack.Install(ctx, ws, args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Installed %d, skipped %d, rejected %d\n", len(res.Installed), len(res.Skipped), len(res.Rejected))
		for _, name := range res.Installed {
			fmt.Fprintln(out, "  +", name)
		}
	default:
		return errUsage
	}
	return nil
}

func serve(ctx context.Context, cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	cfg.Server.Addr = *addr
	secret, err := config.AuthSecret()
	if err != nil {
		return fmt.Errorf("auth secret: %w", err)
	}
	return backend.Start(ctx, cfg, secret)
}

func remote(ctx context.Context, out io.Writer, cfg config.AppConfig, token string, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	c := backend.ClientFromConfig(cfg.Backend, token)
	switch args[0] {
	case "login":
		if len(args) < 2 {
			return errUsage
		}
		tr, err := c.IssueToken(ctx, args[1])
		if err != nil {
			return err
		}
		if err := config.Save(cfg, tr.Token); err != nil {
			return err
		}
		fmt.Fprintln(out, "Token stored, expires", tr.ExpiresAt.Local().Format(time.DateTime))
	case "list":
		list, err := c.ListTemplates(ctx, storage.TemplateQuery{Text: strings.Join(args[1:], " ")})
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tOWNER\tVERSION\tUPDATED")
		for _, m := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.Name, m.Owner, m.Version, m.UpdatedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	case "push", "pull":
		if len(args) < 3 {
			return errUsage
		}
		ws, err := openWorkspace(args[1])
		if err != nil {
			return err
		}
		if args[0] == "push" {
			t, err := storage.LoadTemplate(ws, args[2])
			if err != nil {
				return err
			}
			meta, err := c.PutTemplate(ctx, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pushed %s (version %d)\n", meta.Name, meta.Version)
			return nil
		}
		env, err := c.GetTemplate(ctx, args[2])
		if err != nil {
			return err
		}
		path, err := storage.SaveTemplate(ctx, ws, env.Template)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Saved", path)
	default:
		return errUsage
	}
	return nil
}
