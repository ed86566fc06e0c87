package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"stockmind/internal/dashboard"
	"stockmind/internal/market"
	"stockmind/pkg/stockmind"
)

const version = "0.1.0"

const defaultServer = "http://localhost:8080"

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: stockmind <command> [options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  version                      Print the CLI version\n")
	fmt.Fprintf(w, "  units                        Show agents and workflows\n")
	fmt.Fprintf(w, "  activate <query>             Start the agent sequence\n")
	fmt.Fprintf(w, "  trigger <workflow> [-s SYM]  Trigger a workflow webhook\n")
	fmt.Fprintf(w, "  settings [get|set|delete]    Manage settings\n")
	fmt.Fprintf(w, "  webhook <workflow>           Show configured and suggested webhook URL\n")
	fmt.Fprintf(w, "  quote <symbol>               Fetch a quote\n")
	fmt.Fprintf(w, "  search <keywords>            Search symbols\n")
	fmt.Fprintf(w, "  heatmap                      Show the market heat map\n")
	fmt.Fprintf(w, "  predict <symbol>             Show simulated forecasts\n")
	fmt.Fprintf(w, "  runs [-w workflow] [-n N]    List workflow runs\n")
	fmt.Fprintf(w, "  export [date]                Archive a day of runs to parquet\n")
	fmt.Fprintf(w, "  execution <id>               Show an n8n execution\n")
	fmt.Fprintf(w, "\nThe server address comes from --server or STOCKMIND_URL.\n")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one CLI command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}
	cmd, rest := args[0], args[1:]

	fs := pflag.NewFlagSet("stockmind "+cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", envOr("STOCKMIND_URL", defaultServer), "stockmind-server base URL")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	symbol := fs.StringP("symbol", "s", "", "stock symbol for trigger")
	workflow := fs.StringP("workflow", "w", "", "filter runs by workflow")
	limit := fs.IntP("limit", "n", 20, "maximum runs to list")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	pos := fs.Args()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := stockmind.NewClient(*server)
	out := &printer{w: stdout, json: *asJSON}

	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "stockmind %s\n", version)
	case "units":
		err = cmdUnits(ctx, c, out)
	case "activate":
		err = cmdActivate(ctx, c, out, strings.Join(pos, " "))
	case "trigger":
		err = cmdTrigger(ctx, c, out, pos, *symbol)
	case "settings":
		err = cmdSettings(ctx, c, out, pos)
	case "webhook":
		err = cmdWebhook(ctx, c, out, pos)
	case "quote":
		err = cmdQuote(ctx, c, out, pos)
	case "search":
		err = cmdSearch(ctx, c, out, strings.Join(pos, " "))
	case "heatmap":
		err = cmdHeatmap(ctx, c, out)
	case "predict":
		err = cmdPredict(ctx, c, out, pos)
	case "runs":
		err = cmdRuns(ctx, c, out, *workflow, *limit)
	case "export":
		err = cmdExport(ctx, c, out, pos)
	case "execution":
		err = cmdExecution(ctx, c, out, pos)
	case "help", "-h", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", cmd)
		usage(stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) emitJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
}

func needArgs(pos []string, n int, what string) error {
	if len(pos) < n {
		return fmt.Errorf("missing %s", what)
	}
	return nil
}

func cmdUnits(ctx context.Context, c *stockmind.Client, out *printer) error {
	units, err := c.Units(ctx)
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(units)
	}
	now := time.Now()
	tw := out.table()
	fmt.Fprintln(tw, "KIND\tID\tNAME\tSTATUS\tPROGRESS\tELAPSED")
	for _, u := range append(units.Agents, units.Workflows...) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %3d%%\t%s\n",
			u.Kind, u.ID, u.Name, dashboard.StatusLabel(u.Status),
			dashboard.ProgressBar(u.Progress, 10), u.Progress,
			dashboard.FormatElapsed(u.StartedAt, now))
	}
	return tw.Flush()
}

func cmdActivate(ctx context.Context, c *stockmind.Client, out *printer, query string) error {
	started, err := c.Activate(ctx, query)
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(map[string]bool{"started": started})
	}
	if !started {
		fmt.Fprintln(out.w, "nothing to do: empty query")
		return nil
	}
	fmt.Fprintf(out.w, "agent sequence started for %q\n", query)
	return nil
}

func cmdTrigger(ctx context.Context, c *stockmind.Client, out *printer, pos []string, symbol string) error {
	if err := needArgs(pos, 1, "workflow ID"); err != nil {
		return err
	}
	runID, err := c.Trigger(ctx, pos[0], symbol)
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(map[string]string{"runId": runID, "workflow": pos[0]})
	}
	fmt.Fprintf(out.w, "%s triggered, run %s\n", pos[0], runID)
	return nil
}

func cmdSettings(ctx context.Context, c *stockmind.Client, out *printer, pos []string) error {
	if len(pos) == 0 {
		all, err := c.Settings(ctx)
		if err != nil {
			return err
		}
		if out.json {
			return out.emitJSON(all)
		}
		tw := out.table()
		fmt.Fprintln(tw, "KEY\tVALUE")
		for _, k := range sortedKeys(all) {
			fmt.Fprintf(tw, "%s\t%s\n", k, all[k])
		}
		return tw.Flush()
	}

	switch pos[0] {
	case "get":
		if err := needArgs(pos, 2, "key"); err != nil {
			return err
		}
		s, err := c.Setting(ctx, pos[1])
		if err != nil {
			return err
		}
		if out.json {
			return out.emitJSON(s)
		}
		fmt.Fprintln(out.w, s.Value)
	case "set":
		if err := needArgs(pos, 3, "key and value"); err != nil {
			return err
		}
		s, err := c.SetSetting(ctx, pos[1], pos[2])
		if err != nil {
			return err
		}
		if out.json {
			return out.emitJSON(s)
		}
		fmt.Fprintf(out.w, "%s updated\n", s.Key)
		if s.Warning != "" {
			fmt.Fprintf(out.w, "warning: %s\n", s.Warning)
		}
	case "delete":
		if err := needArgs(pos, 2, "key"); err != nil {
			return err
		}
		if err := c.DeleteSetting(ctx, pos[1]); err != nil {
			return err
		}
		fmt.Fprintf(out.w, "%s deleted\n", pos[1])
	default:
		return fmt.Errorf("unknown settings action %q", pos[0])
	}
	return nil
}

func cmdWebhook(ctx context.Context, c *stockmind.Client, out *printer, pos []string) error {
	if err := needArgs(pos, 1, "workflow ID"); err != nil {
		return err
	}
	s, err := c.SuggestWebhook(ctx, pos[0])
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(s)
	}
	fmt.Fprintf(out.w, "configured: %s\nsuggested:  %s\n", orDash(s.Configured), orDash(s.Suggested))
	return nil
}

func cmdQuote(ctx context.Context, c *stockmind.Client, out *printer, pos []string) error {
	if err := needArgs(pos, 1, "symbol"); err != nil {
		return err
	}
	q, err := c.Quote(ctx, pos[0])
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(q)
	}
	fmt.Fprintf(out.w, "%s  %s  %s  vol %s  [%s]\n",
		q.Symbol, dashboard.FormatPrice(q.Price), dashboard.FormatChange(q.Change, q.ChangePercent),
		dashboard.FormatVolume(q.Volume), q.Source)
	return nil
}

func cmdSearch(ctx context.Context, c *stockmind.Client, out *printer, keywords string) error {
	if keywords == "" {
		return errors.New("missing keywords")
	}
	matches, err := c.Search(ctx, keywords)
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(matches)
	}
	tw := out.table()
	fmt.Fprintln(tw, "SYMBOL\tNAME\tREGION")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Symbol, m.Name, m.Region)
	}
	return tw.Flush()
}

func cmdHeatmap(ctx context.Context, c *stockmind.Client, out *printer) error {
	hm, err := c.Heatmap(ctx)
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(hm)
	}
	state := "closed"
	if hm.MarketOpen {
		state = "open"
	}
	fmt.Fprintf(out.w, "market %s  gainers %d  losers %d  avg %+.2f%%\n",
		state, hm.Stats.Gainers, hm.Stats.Losers, hm.Stats.AvgChange)
	tw := out.table()
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tCHANGE\tCAP\tSIZE")
	for _, t := range hm.Tiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Symbol, dashboard.FormatPrice(t.Price),
			dashboard.FormatChange(t.Change, t.ChangePercent), dashboard.FormatMarketCap(t.MarketCapB), t.Size)
	}
	return tw.Flush()
}

func cmdPredict(ctx context.Context, c *stockmind.Client, out *printer, pos []string) error {
	if err := needArgs(pos, 1, "symbol"); err != nil {
		return err
	}
	f, err := c.Predict(ctx, pos[0])
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(f)
	}
	tw := out.table()
	fmt.Fprintf(tw, "%s\tDIRECTION\tCHANGE\tCONFIDENCE\n", f.Symbol)
	horizons := []struct {
		label string
		p     market.Prediction
	}{{"next day", f.NextDay}, {"next week", f.NextWeek}, {"next month", f.NextMonth}}
	for _, h := range horizons {
		fmt.Fprintf(tw, "%s\t%s\t%+.1f%%\t%s %d%%\n", h.label, h.p.Direction, h.p.ChangePercent,
			dashboard.ProgressBar(h.p.Confidence, 10), h.p.Confidence)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out.w)
	tw = out.table()
	fmt.Fprintln(tw, "MODEL\tACCURACY\tSTATUS")
	for _, m := range f.Models {
		fmt.Fprintf(tw, "%s\t%.1f%%\t%s\n", m.Name, m.Accuracy, m.Status)
	}
	return tw.Flush()
}

func cmdRuns(ctx context.Context, c *stockmind.Client, out *printer, workflow string, limit int) error {
	runs, err := c.Runs(ctx, workflow, limit)
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(runs)
	}
	tw := out.table()
	fmt.Fprintln(tw, "RUN\tWORKFLOW\tSYMBOL\tSTATUS\tDURATION\tENDED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.RunID, r.WorkflowID, orDash(r.Symbol),
			r.Status, dashboard.FormatElapsed(r.StartedAt, r.EndedAt),
			r.EndedAt.Local().Format("2006-01-02 15:04:05"), r.Error)
	}
	return tw.Flush()
}

func cmdExport(ctx context.Context, c *stockmind.Client, out *printer, pos []string) error {
	date := ""
	if len(pos) > 0 {
		date = pos[0]
	}
	n, err := c.Export(ctx, date)
	if err != nil {
		return err
	}
	if out.json {
		return out.emitJSON(map[string]any{"date": date, "count": n})
	}
	fmt.Fprintf(out.w, "archived %d runs\n", n)
	return nil
}

func cmdExecution(ctx context.Context, c *stockmind.Client, out *printer, pos []string) error {
	if err := needArgs(pos, 1, "execution ID"); err != nil {
		return err
	}
	doc, err := c.Execution(ctx, pos[0])
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return err
	}
	return out.emitJSON(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
