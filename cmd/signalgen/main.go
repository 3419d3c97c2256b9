package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"signalgen/internal/app"
)

func main() {
	var (
		cfgPath string
		once    bool
		history string
		limit   int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&once, "once", false, "print the next boundary of every signal and exit")
	flag.StringVar(&history, "history", "", "print recent stored fires of a signal (\"all\" for every signal) and exit")
	flag.IntVar(&limit, "limit", 20, "number of records printed by -history")
	flag.Parse()

	switch {
	case once:
		os.Exit(printPlan(cfgPath))
	case history != "":
		os.Exit(printHistory(cfgPath, history, limit))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSIGTERM
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func printPlan(cfgPath string) int {
	entries, err := app.Plan(cfgPath, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNAL\tPERIOD\tPOLICY\tTZ\tNEXT\tIN")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Period, e.Policy, e.Timezone, e.Next.Format(time.RFC3339Nano), e.In.Round(time.Millisecond))
	}
	_ = w.Flush()
	return 0
}

func printHistory(cfgPath, sig string, limit int) int {
	if sig == "all" {
		sig = ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recs, err := app.History(ctx, cfgPath, sig, limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNAL\tSTEP\tBOUNDARY\tAT\tLATENESS\tNOTIFIED\tPANICS\tRUN")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%dms\t%d\t%d\t%s\n",
			r.Signal, r.Step, r.Boundary.Format(time.RFC3339Nano), r.At.Format(time.RFC3339Nano),
			r.LatenessMS, r.Notified, r.Panics, r.RunID)
	}
	_ = w.Flush()
	return 0
}
