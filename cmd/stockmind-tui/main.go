package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"stockmind/internal/dashboard"
	"stockmind/internal/domain"
	"stockmind/internal/live"
	"stockmind/pkg/stockmind"
)

// Styles.
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	sectionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	nameStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	completeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	highlightBG   = lipgloss.Color("236")
)

const barWidth = 24

func statusStyle(s domain.Status) lipgloss.Style {
	switch {
	case s.Active():
		return activeStyle
	case s == domain.StatusComplete || s == domain.StatusCompleted:
		return completeStyle
	case s == domain.StatusError:
		return errorStyle
	default:
		return dimStyle
	}
}

// Messages.
type tickMsg time.Time

type actionMsg struct {
	text string
	err  error
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model.
type model struct {
	board  *live.Board
	client *stockmind.Client
	cancel context.CancelFunc

	query  string
	symbol string

	agents    []domain.Unit
	workflows []domain.Unit
	selected  int // index into workflows
	status    string
	now       time.Time

	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

func initialModel(board *live.Board, client *stockmind.Client, cancel context.CancelFunc, query, symbol string) model {
	return model{
		board:  board,
		client: client,
		cancel: cancel,
		query:  query,
		symbol: symbol,
		now:    time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m *model) refresh() {
	units, _ := m.board.Snapshot()
	m.agents = m.agents[:0]
	m.workflows = m.workflows[:0]
	for _, u := range units {
		if u.Kind == domain.KindWorkflow {
			m.workflows = append(m.workflows, u)
		} else {
			m.agents = append(m.agents, u)
		}
	}
	if m.selected >= len(m.workflows) {
		m.selected = max(0, len(m.workflows)-1)
	}
}

func (m model) activateCmd() tea.Cmd {
	c, q := m.client, m.query
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		started, err := c.Activate(ctx, q)
		if err == nil && !started {
			return actionMsg{text: "nothing to do: empty query"}
		}
		return actionMsg{text: fmt.Sprintf("agents activated for %q", q), err: err}
	}
}

func (m model) triggerCmd() tea.Cmd {
	if len(m.workflows) == 0 {
		return nil
	}
	c, id, sym := m.client, m.workflows[m.selected].ID, m.symbol
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		runID, err := c.Trigger(ctx, id, sym)
		return actionMsg{text: fmt.Sprintf("%s triggered, run %s", id, runID), err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "a":
			return m, m.activateCmd()
		case "enter", "t":
			return m, m.triggerCmd()
		case "up":
			if m.selected > 0 {
				m.selected--
			}
			m.viewport.SetContent(m.renderContent())
			return m, nil
		case "down":
			if m.selected < len(m.workflows)-1 {
				m.selected++
			}
			m.viewport.SetContent(m.renderContent())
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := max(1, m.height-2)
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.refresh()
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		m.refresh()
		if m.ready {
			m.viewport.SetContent(m.renderContent())
		}
		return m, tickCmd()

	case actionMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
		} else {
			m.status = msg.text
		}
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	all := append(append([]domain.Unit{}, m.agents...), m.workflows...)
	headerText := fmt.Sprintf(" stockmind  %s    %s    symbol: %s ",
		m.now.Format("15:04:05"), dashboard.CountUnits(all), orDash(m.symbol))
	footerText := " q quit  a activate agents  up/dn select  enter trigger workflow"
	if m.status != "" {
		footerText += "    " + m.status
	}
	return titleStyle.Render(padOrTrunc(headerText, m.width)) + "\n" +
		m.viewport.View() + "\n" +
		footerStyle.Render(padOrTrunc(footerText, m.width))
}

func (m model) renderContent() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render(" AGENTS "))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  query: %q", m.query)))
	b.WriteString("\n\n")
	for _, u := range m.agents {
		renderUnit(&b, u, false, m.now)
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(" WORKFLOWS "))
	b.WriteString("\n\n")
	for i, u := range m.workflows {
		renderUnit(&b, u, i == m.selected, m.now)
	}
	return b.String()
}

func renderUnit(b *strings.Builder, u domain.Unit, hl bool, now time.Time) {
	marker := "  "
	name := nameStyle
	if hl {
		marker = "> "
		name = name.Background(highlightBG)
	}
	st := statusStyle(u.Status)
	fmt.Fprintf(b, "%s%s %s %s %s %s\n",
		marker,
		name.Render(padOrTrunc(u.Name, 26)),
		st.Render(padOrTrunc(dashboard.StatusLabel(u.Status), 9)),
		st.Render(dashboard.ProgressBar(u.Progress, barWidth)),
		padOrTrunc(fmt.Sprintf("%3d%%", u.Progress), 5),
		dimStyle.Render(elapsed(u, now)),
	)
	if u.Description != "" {
		fmt.Fprintf(b, "    %s\n", dimStyle.Render(u.Description))
	}
}

func elapsed(u domain.Unit, now time.Time) string {
	if !u.Status.Active() {
		return ""
	}
	return dashboard.FormatElapsed(u.StartedAt, now)
}

func padOrTrunc(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	r := []rune(s)
	if len(r) > width {
		return string(r[:width])
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func main() {
	fs := pflag.NewFlagSet("stockmind-tui", pflag.ExitOnError)
	server := fs.String("server", envOr("STOCKMIND_URL", "http://localhost:8080"), "stockmind-server HTTP address")
	grpcAddr := fs.String("grpc", envOr("STOCKMIND_GRPC", "localhost:9090"), "stockmind-server gRPC address")
	query := fs.StringP("query", "q", "Analyze market trends", "query sent when activating agents")
	symbol := fs.StringP("symbol", "s", "", "stock symbol for workflow triggers")
	fs.Parse(os.Args[1:])

	logPath := fmt.Sprintf("/tmp/stockmind-tui-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))

	board := live.NewBoard()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := live.NewClient(*grpcAddr, board, logger).Sync(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sync error", "error", err)
		}
	}()

	p := tea.NewProgram(
		initialModel(board, stockmind.NewClient(*server), cancel, *query, strings.ToUpper(*symbol)),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
