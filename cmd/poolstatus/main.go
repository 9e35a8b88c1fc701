// Package main provides a terminal status viewer for the content view pool:
// a small bubbletea program that polls the debug HTTP surface's
// /health endpoint for the pool/view table and subscribes to /events for
// the live prefetch status report (§4.9, §10).
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fluent-reader/contentpool/internal/bridge"
	"github.com/fluent-reader/contentpool/internal/pool"
	"github.com/fluent-reader/contentpool/internal/types"
)

const pollInterval = 500 * time.Millisecond

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boxStyle    = lipgloss.NewStyle().Padding(1, 2).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238"))
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8732", "content pool debug HTTP address")
	flag.Parse()

	m := newModel(*addr)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "poolstatus:", err)
		os.Exit(1)
	}
}

type model struct {
	addr      string
	client    *http.Client
	status    *pool.PoolStatus
	report    *types.StatusReport
	err       error
	sseEvents chan types.StatusReport
	quitting  bool
}

func newModel(addr string) model {
	return model{
		addr:      strings.TrimRight(addr, "/"),
		client:    &http.Client{Timeout: 2 * time.Second},
		sseEvents: make(chan types.StatusReport, 16),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.pollTick(), m.listenSSE(), waitForSSEEvent(m.sseEvents))
}

// pollTickMsg triggers one /health fetch.
type pollTickMsg struct{}

// healthMsg carries the result of a /health fetch.
type healthMsg struct {
	status *pool.PoolStatus
	err    error
}

func (m model) pollTick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollTickMsg{} })
}

func (m model) fetchHealth() tea.Msg {
	resp, err := m.client.Get(m.addr + "/health")
	if err != nil {
		return healthMsg{err: err}
	}
	defer resp.Body.Close()

	var body bridge.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return healthMsg{err: err}
	}
	return healthMsg{status: body.Pool}
}

// listenSSE starts a background subscription to /events and feeds
// prefetch-status payloads into m.sseEvents. It runs once for the
// program's lifetime.
func (m model) listenSSE() tea.Cmd {
	return func() tea.Msg {
		go m.streamEvents()
		return nil
	}
}

func (m model) streamEvents() {
	for {
		resp, err := m.client.Get(m.addr + "/events")
		if err != nil {
			time.Sleep(2 * time.Second)
			continue
		}
		m.readSSEBody(resp)
		resp.Body.Close()
		time.Sleep(2 * time.Second)
	}
}

type ssePayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (m model) readSSEBody(resp *http.Response) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload ssePayload
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
			continue
		}
		if payload.Event != types.EventPrefetchStatus {
			continue
		}
		var report types.StatusReport
		if err := json.Unmarshal(payload.Data, &report); err != nil {
			continue
		}
		select {
		case m.sseEvents <- report:
		default:
		}
	}
}

// sseEventMsg carries one decoded prefetch-status report.
type sseEventMsg types.StatusReport

func waitForSSEEvent(ch chan types.StatusReport) tea.Cmd {
	return func() tea.Msg {
		return sseEventMsg(<-ch)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case pollTickMsg:
		return m, tea.Batch(m.fetchHealth, m.pollTick())
	case healthMsg:
		m.status = msg.status
		m.err = msg.err
	case sseEventMsg:
		report := types.StatusReport(msg)
		m.report = &report
		return m, waitForSSEEvent(m.sseEvents)
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("content view pool — status"))
	fmt.Fprintln(&b, subtleStyle.Render(m.addr))
	fmt.Fprintln(&b)

	if m.err != nil {
		fmt.Fprintln(&b, errorStyle.Render("connection error: "+m.err.Error()))
	}

	if m.status != nil {
		fmt.Fprintln(&b, m.renderPoolTable())
	} else if m.err == nil {
		fmt.Fprintln(&b, subtleStyle.Render("waiting for pool..."))
	}

	fmt.Fprintln(&b)
	if m.report != nil {
		fmt.Fprintln(&b, m.renderPrefetchStatus())
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, subtleStyle.Render("q to quit"))

	return boxStyle.Render(b.String())
}

func (m model) renderPoolTable() string {
	s := m.status
	var b strings.Builder
	fmt.Fprintf(&b, "%s  direction=%s  index=%d/%d  menuKey=%s  gen=%d\n",
		headerStyle.Render("pool"), s.ReadingDirection, s.CurrentArticleIndex, s.ArticleListLength, s.MenuKey, s.Generation)

	fmt.Fprintln(&b, headerStyle.Render(fmt.Sprintf("%-8s %-8s %-16s %-8s %-6s %-6s %-6s %-6s",
		"view", "status", "article", "feed", "active", "render", "off", "loaded")))
	for _, v := range s.Views {
		row := fmt.Sprintf("%-8s %-8s %-16s %-8s %-6v %-6v %-6v %-6v",
			v.ID, v.Status, truncate(v.ArticleID, 16), truncate(v.FeedID, 8),
			v.IsActive, v.IsAtRenderPosition, v.IsOffScreen, v.HasLoadedOnce)
		if v.IsActive {
			fmt.Fprintln(&b, activeStyle.Render(row))
		} else {
			fmt.Fprintln(&b, row)
		}
	}
	return b.String()
}

func (m model) renderPrefetchStatus() string {
	r := m.report
	ready := "no"
	if r.NextArticleReady {
		ready = "yes"
	}
	return fmt.Sprintf("%s  nextReady=%s  next=%d  queue=%d  completed=%d/%d  loading=%s  targets=%v",
		headerStyle.Render("prefetch"), ready, r.NextIndex, r.QueueLength, r.CompletedCount,
		r.TotalTargets, r.LoadingArticleID, r.Targets)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
