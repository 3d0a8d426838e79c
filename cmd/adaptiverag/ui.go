package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/adaptiverag/agent"
	"github.com/smallnest/adaptiverag/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	userStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	botStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3C9EE7"))
	traceStyle = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8A8A8"))
)

// chatLoop reads lines from in until EOF or quit/exit and streams each turn.
func chatLoop(ctx context.Context, a *agent.Agent, threadID string, in io.Reader, out io.Writer, trace bool) error {
	fmt.Fprintln(out, titleStyle.Render("Adaptive RAG"))
	fmt.Fprintln(out, labelStyle.Render("thread "+threadID+" · type quit or exit to leave"))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, userStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(out, labelStyle.Render("bye"))
			return nil
		}

		for ev := range a.Stream(ctx, threadID, line) {
			switch ev.Type {
			case agent.EventNodeEnd:
				if trace {
					fmt.Fprintln(out, traceStyle.Render(fmt.Sprintf("  · %s %s", ev.Node, ev.Data)))
				}
			case agent.EventAnswer:
				fmt.Fprintln(out, botStyle.Render("bot> ")+ev.Data)
			case agent.EventError:
				fmt.Fprintln(out, errorStyle.Render("error: ")+ev.Data)
			}
		}
	}
}

func printHistory(out io.Writer, msgs []store.Message) {
	for _, m := range msgs {
		style := botStyle
		if m.Role == store.RoleUser {
			style = userStyle
		}
		fmt.Fprintf(out, "%s %s\n", style.Render(string(m.Role)+">"), m.Content)
	}
}
