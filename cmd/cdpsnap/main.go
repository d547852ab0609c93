package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"cdpsnap/internal/config"
	"cdpsnap/internal/logger"
	"cdpsnap/pkg/api"
	"cdpsnap/pkg/model"
)

var (
	configPath  string
	devtoolsURL string

	targetID string
	selector string
	marker   string
	outPath  string
	asJSON   bool

	historyLimit int
)

var rootCmd = &cobra.Command{
	Use:   "cdpsnap",
	Short: "Capture a styled, hover-annotated snapshot of a DOM subtree over the DevTools protocol",
	Long: `cdpsnap attaches to a Chromium page through its DevTools endpoint, captures the
subtree rooted at one element (computed styles, matched rules, hover deltas) and
prints it as a single annotated markup string.

Examples:
  cdpsnap targets
  cdpsnap capture --selector '.pricing-card'
  cdpsnap capture --target 7F3A... --selector '#cta' --json --out cta.json
  cdpsnap history --limit 20`,
	SilenceUsage: true,
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List page targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc api.Service) error {
			targets, err := svc.ListTargets(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tATTACHED\tTITLE\tURL")
			for _, t := range targets {
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", t.ID, t.Attached, t.Title, t.URL)
			}
			return w.Flush()
		})
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the subtree rooted at the element matched by --selector (or carrying --marker)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if selector == "" && marker == "" {
			return fmt.Errorf("either --selector or --marker is required")
		}
		return withService(cmd, func(ctx context.Context, svc api.Service) error {
			target := model.TargetID(targetID)
			m := marker
			if m == "" {
				placed, err := svc.PlaceMarker(ctx, target, selector)
				if err != nil {
					return err
				}
				m = placed
				defer func() {
					if err := svc.RemoveMarker(context.WithoutCancel(ctx), target, m); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "remove marker: %v\n", err)
					}
				}()
			}

			res, err := svc.Capture(ctx, target, m)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), res)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded captures",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc api.Service) error {
			records, err := svc.History(ctx, historyLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tSTATUS\tNODES\tBYTES\tLAYOUT\tERROR")
			for _, r := range records {
				size := "auto"
				if !r.LayoutAuto {
					size = strconv.FormatFloat(r.Width, 'f', -1, 64) + "x" + strconv.FormatFloat(r.Height, 'f', -1, 64)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.CreatedAt.Format(time.DateTime), r.Status, r.Nodes, r.MarkupBytes, size, r.Error)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cdpsnap.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&devtoolsURL, "devtools", "", "DevTools HTTP endpoint (overrides config)")

	captureCmd.Flags().StringVarP(&targetID, "target", "t", "", "Target ID (default: first page)")
	captureCmd.Flags().StringVarP(&selector, "selector", "s", "", "CSS selector of the element to capture")
	captureCmd.Flags().StringVar(&marker, "marker", "", "Capture the element already carrying this marker value")
	captureCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write output to file instead of stdout")
	captureCmd.Flags().BoolVar(&asJSON, "json", false, "Emit {id, markup, layout, bloat} as JSON")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of records")

	rootCmd.AddCommand(targetsCmd, captureCmd, historyCmd)
}

func withService(cmd *cobra.Command, fn func(ctx context.Context, svc api.Service) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if devtoolsURL != "" {
		cfg.DevTools.URL = devtoolsURL
	}
	l := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Writer:     cfg.Log.Writer,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	svc, err := api.NewService(cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			l.Warn("关闭服务失败", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return fn(ctx, svc)
}

func writeResult(stdout io.Writer, res *model.CaptureResult) error {
	var out []byte
	if asJSON {
		doc, err := resultJSON(res)
		if err != nil {
			return err
		}
		out = append(doc, '\n')
	} else {
		out = []byte(res.Markup + "\n")
	}
	if outPath == "" {
		_, err := stdout.Write(out)
		return err
	}
	return os.WriteFile(outPath, out, 0o644)
}

func resultJSON(res *model.CaptureResult) ([]byte, error) {
	doc := []byte(`{}`)
	var err error
	if doc, err = sjson.SetBytes(doc, "id", string(res.ID)); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "markup", res.Markup); err != nil {
		return nil, err
	}
	layout, err := json.Marshal(res.Layout)
	if err != nil {
		return nil, err
	}
	if doc, err = sjson.SetRawBytes(doc, "layout", layout); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "nodes", res.Nodes); err != nil {
		return nil, err
	}
	return sjson.SetBytes(doc, "bloat", res.Bloat)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
