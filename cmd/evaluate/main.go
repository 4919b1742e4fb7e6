// Package main runs the strategy engine against live bars.
// It verifies declared setups first, then evaluates on a fixed interval and
// serves /health, /metrics and /status.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orb-lab/internal/cli"
	"orb-lab/internal/config"
	"orb-lab/internal/observability"
	"orb-lab/internal/strategy"
	"orb-lab/internal/syncguard"
)

func main() {
	var common cli.Flags
	common.Register(flag.CommandLine)
	setupsPath := flag.String("setups", "configs/setups.yaml", "Path to declared setups YAML")
	once := flag.Bool("once", false, "Evaluate once, print the report and exit")
	at := flag.String("at", "", "Evaluate at this RFC 3339 instant instead of now (implies --once)")
	interval := flag.Duration("interval", 0, "Poll interval (defaults to engine.poll_interval)")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for /health, /metrics and /status")
	flag.Parse()

	env, err := cli.Setup("evaluate", common)
	if err != nil {
		cli.SetupFailed("evaluate", err)
	}
	defer env.Close()
	log := env.Log

	var fixed *time.Time
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			cli.Fatal(log, err, "invalid --at")
		}
		t = t.UTC()
		fixed = &t
		*once = true
	}
	if *interval <= 0 {
		*interval = env.Config.Engine.PollInterval
	}

	setups, err := config.LoadSetups(*setupsPath, env.Config)
	if err != nil {
		cli.Fatal(log, err, "failed to load setups")
	}
	spec, err := env.Config.FeatureSpec()
	if err != nil {
		cli.Fatal(log, err, "invalid config")
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()

	stores, cleanup, err := env.Stores(ctx)
	if err != nil {
		cli.Fatal(log, err, "failed to open stores")
	}
	defer cleanup()

	verified, err := syncguard.Run(ctx, stores.Setups, setups.Declared(), log)
	if err != nil {
		var mismatch *syncguard.MismatchError
		if errors.As(err, &mismatch) {
			fmt.Fprintln(os.Stderr, mismatch.Diff())
		}
		cleanup()
		cli.Fatal(log, err, "refusing to evaluate unverified setups")
	}

	var cascades []strategy.Cascade
	for _, c := range env.Config.Engine.Cascades {
		cascades = append(cascades, strategy.Cascade{Name: c.Name, Leader: c.Leader, Follower: c.Follower})
	}
	engine, err := strategy.NewEngine(verified, strategy.Config{
		Spec:        spec,
		WatchPeriod: env.Config.Engine.WatchPeriod,
		Cascades:    cascades,
	})
	if err != nil {
		cleanup()
		cli.Fatal(log, err, "failed to build engine")
	}

	var clock func() time.Time
	if fixed != nil {
		clock = func() time.Time { return *fixed }
	}
	poller := strategy.NewPoller(engine, stores.Bars, log, clock)

	if *once {
		rep, err := poller.Cycle(ctx)
		if err != nil {
			cleanup()
			cli.Fatal(log, err, "evaluation failed")
		}
		printReport(rep)
		return
	}

	st := &status{started: time.Now().UTC()}
	srv := startHTTPServer(*metricsAddr, st, log)
	defer srv.Close()

	err = poller.Run(ctx, *interval, st.set)
	if err != nil && !errors.Is(err, context.Canceled) {
		cleanup()
		cli.Fatal(log, err, "evaluation loop failed")
	}
	log.Info().Msg("shutdown complete")
}

// status holds the latest report for /status.
type status struct {
	mu      sync.Mutex
	started time.Time
	last    *strategy.Report
	cycles  int
}

func (s *status) set(r *strategy.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = r
	s.cycles++
}

func (s *status) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := map[string]interface{}{
		"started": s.started,
		"cycles":  s.cycles,
	}
	if s.last != nil {
		body["evaluated_at"] = s.last.Now
		body["eligible_windows"] = s.last.Windows
		body["actionable"] = summaries(s.last.Actionable())
		if s.last.Selected != nil {
			body["selected"] = summary(*s.last.Selected)
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func startHTTPServer(addr string, st *status, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", st.handle)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	return srv
}

type evalSummary struct {
	Strategy    string   `json:"strategy"`
	TradingDay  string   `json:"trading_day,omitempty"`
	State       string   `json:"state"`
	Action      string   `json:"action"`
	Direction   string   `json:"direction,omitempty"`
	Entry       *float64 `json:"entry,omitempty"`
	Stop        *float64 `json:"stop,omitempty"`
	Target      *float64 `json:"target,omitempty"`
	Instruction string   `json:"next_instruction"`
	Reasons     []string `json:"reasons,omitempty"`
}

func summary(e strategy.Evaluation) evalSummary {
	s := evalSummary{
		Strategy:    e.StrategyName,
		State:       string(e.State),
		Action:      string(e.Action),
		Direction:   string(e.Direction),
		Entry:       e.Entry,
		Stop:        e.Stop,
		Target:      e.Target,
		Instruction: e.NextInstruction,
		Reasons:     e.Reasons,
	}
	if !e.TradingDay.IsZero() {
		s.TradingDay = e.TradingDay.Format(time.DateOnly)
	}
	return s
}

func summaries(evals []strategy.Evaluation) []evalSummary {
	out := make([]evalSummary, 0, len(evals))
	for _, e := range evals {
		out = append(out, summary(e))
	}
	return out
}

func printReport(rep *strategy.Report) {
	fmt.Printf("Evaluated at %s\n", rep.Now.Format(time.RFC3339))
	fmt.Printf("Eligible windows: %s\n\n", strings.Join(rep.Windows, ", "))
	for _, e := range rep.Evaluations {
		marker := " "
		if rep.Selected != nil && e.StrategyName == rep.Selected.StrategyName && e.TradingDay.Equal(rep.Selected.TradingDay) {
			marker = "*"
		}
		fmt.Printf("%s %2d. %-48s %-9s %-10s %s\n", marker, e.Priority, e.StrategyName, e.State, e.Action, e.NextInstruction)
		if len(e.Reasons) > 0 {
			fmt.Printf("       %s\n", strings.Join(e.Reasons, "; "))
		}
	}
	if rep.Selected == nil {
		fmt.Println("\nNo actionable setup.")
	}
}
