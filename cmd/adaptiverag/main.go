// Command adaptiverag is a terminal front end for the adaptive RAG agent.
//
// Usage:
//
//	adaptiverag chat    [-thread id] [-trace]
//	adaptiverag ask     [-thread id] question...
//	adaptiverag ingest  [-dir path] [-reset]
//	adaptiverag stats
//	adaptiverag threads [-show id] [-delete id]
//	adaptiverag tool    -name calculator input...
//	adaptiverag graph
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/smallnest/adaptiverag/agent"
	"github.com/smallnest/adaptiverag/config"
	"github.com/smallnest/adaptiverag/llm"
	"github.com/smallnest/adaptiverag/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		if isConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "usage: adaptiverag <chat|ask|ingest|stats|threads|tool|graph> [flags]")
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]

	if cmd == "graph" {
		return runGraph(out)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.SetLogLevel(cfg.LogLevel)

	switch cmd {
	case "chat":
		return runChat(ctx, cfg, rest, in, out)
	case "ask":
		return runAsk(ctx, cfg, rest, out)
	case "ingest":
		return runIngest(ctx, cfg, rest, out)
	case "stats":
		return runStats(ctx, cfg, out)
	case "threads":
		return runThreads(ctx, cfg, rest, out)
	case "tool":
		return runTool(ctx, cfg, rest, out)
	}
	usage(out)
	return fmt.Errorf("unknown command %q", cmd)
}

func runChat(ctx context.Context, cfg *config.Config, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	thread := fs.String("thread", "", "thread id to resume (default: new thread)")
	trace := fs.Bool("trace", false, "print each graph step")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	id := *thread
	if id == "" {
		id = agent.NewThreadID()
	}
	return chatLoop(ctx, a.agent, id, in, out, *trace)
}

func runAsk(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	thread := fs.String("thread", "", "thread id (default: new thread)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New("ask: question is required")
	}

	a, err := openAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	id := *thread
	if id == "" {
		id = agent.NewThreadID()
	}
	reply, err := a.agent.RunTurn(ctx, id, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, reply)
	return nil
}

func runIngest(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	dir := fs.String("dir", cfg.SourceDir, "directory of documents to index")
	reset := fs.Bool("reset", false, "drop the existing index first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openKnowledgeBase(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if *reset {
		if err := a.vectors.Reset(ctx); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
		fmt.Fprintln(out, labelStyle.Render("index reset"))
	}

	report, err := a.indexer.IndexDirectory(ctx, *dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %d documents, %d chunks\n", titleStyle.Render("indexed"), report.Documents, report.Chunks)
	for _, s := range report.Skipped {
		fmt.Fprintln(out, labelStyle.Render("  skipped "+s))
	}
	for _, s := range report.Removed {
		fmt.Fprintln(out, labelStyle.Render("  removed "+s))
	}
	failed := make([]string, 0, len(report.Failed))
	for path := range report.Failed {
		failed = append(failed, path)
	}
	sort.Strings(failed)
	for _, path := range failed {
		fmt.Fprintln(out, errorStyle.Render("  failed ")+path+": "+report.Failed[path].Error())
	}
	return nil
}

func runStats(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := openKnowledgeBase(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.vectors.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %d chunks, dimension %d\n", titleStyle.Render(cfg.IndexPath), st.TotalChunks, st.Dimension)
	sources := make([]string, 0, len(st.BySource))
	for s := range st.BySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(out, "  %-40s %d\n", s, st.BySource[s])
	}
	return nil
}

func runThreads(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("threads", flag.ContinueOnError)
	show := fs.String("show", "", "print the history of a thread")
	del := fs.String("delete", "", "delete a thread")
	if err := fs.Parse(args); err != nil {
		return err
	}

	threads, err := openThreadStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer threads.Close()

	switch {
	case *del != "":
		if err := threads.Delete(ctx, *del); err != nil {
			return err
		}
		fmt.Fprintln(out, labelStyle.Render("deleted "+*del))
		return nil
	case *show != "":
		t, err := threads.Load(ctx, *show)
		if err != nil {
			return err
		}
		printHistory(out, t.Messages)
		return nil
	}

	ids, err := threads.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func runTool(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tool", flag.ContinueOnError)
	name := fs.String("name", "calculator", "tool to call")
	if err := fs.Parse(args); err != nil {
		return err
	}
	input := strings.Join(fs.Args(), " ")

	reg, closeFn, err := toolRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := reg.Call(ctx, *name, input)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(reg.Names(), ", "))
	}
	fmt.Fprintln(out, res)
	return nil
}

// runGraph prints the conversation graph. The model is never called.
func runGraph(out io.Writer) error {
	a, err := agent.New(llm.NewLangChainCompleter(&llm.MockModel{}), agent.WithLogger(log.NoOpLogger{}))
	if err != nil {
		return err
	}
	fmt.Fprint(out, a.Graph().DrawMermaid())
	return nil
}
