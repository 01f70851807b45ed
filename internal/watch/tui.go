// Package watch is a read-only terminal view of tracked sessions.
package watch

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"

	"github.com/timvw/pane-tracker/internal/model"
)

const (
	defaultEventLimit = 8
	pingTimeout       = time.Second
)

// Source is the read side of the session registry.
type Source interface {
	ListSessions(ctx context.Context) ([]model.Session, error)
	GetEvents(ctx context.Context, sessionID string, limit int) ([]model.Event, error)
}

// TUI shows tracked sessions grouped by tmux session, with the recent
// events of the selected one. It never writes to the registry.
type TUI struct {
	Source          Source
	Ping            func(ctx context.Context) error // nil hides daemon status
	Jump            func(paneID string) error       // nil disables jumping
	RefreshInterval time.Duration                   // 0 disables auto-refresh
	EventLimit      int
	ThemeName       string
}

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Expand    key.Binding
	Collapse  key.Binding
	Enter     key.Binding
	Attention key.Binding
	Refresh   key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("up", "k")),
	Down:      key.NewBinding(key.WithKeys("down", "j")),
	Expand:    key.NewBinding(key.WithKeys("right", "l")),
	Collapse:  key.NewBinding(key.WithKeys("left", "h")),
	Enter:     key.NewBinding(key.WithKeys("enter")),
	Attention: key.NewBinding(key.WithKeys("a")),
	Refresh:   key.NewBinding(key.WithKeys("r")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// listItem is either a tmux session header or one tracked pane.
type listItem struct {
	kind    itemKind
	group   string
	session int // index into sessions (only for itemPane)
}

type itemKind int

const (
	itemGroup itemKind = iota
	itemPane
)

// sessionGroup holds the tracked panes of one tmux session.
type sessionGroup struct {
	name      string
	sessions  []int
	attention int
}

// messages
type refreshMsg struct {
	sessions []model.Session
	daemonUp bool
	err      error
}

type eventsMsg struct {
	sessionID string
	events    []model.Event
	err       error
}

type tickMsg struct{}

type tuiModel struct {
	src             Source
	ping            func(ctx context.Context) error
	jump            func(paneID string) error
	ctx             context.Context
	refreshInterval time.Duration
	eventLimit      int
	styles          styles

	sessions      []model.Session
	groups        []sessionGroup
	collapsed     map[string]bool
	items         []listItem
	cursor        int
	attentionOnly bool

	events    []model.Event
	eventsFor string

	daemonUp     bool
	loading      bool
	message      string
	refreshCount int
	now          func() time.Time

	width  int
	height int
}

// Run starts the TUI and blocks until the user quits or ctx is done.
func (t *TUI) Run(ctx context.Context) error {
	m := newModel(ctx, t)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func newModel(ctx context.Context, t *TUI) *tuiModel {
	limit := t.EventLimit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	return &tuiModel{
		src:             t.Source,
		ping:            t.Ping,
		jump:            t.Jump,
		ctx:             ctx,
		refreshInterval: t.RefreshInterval,
		eventLimit:      limit,
		styles:          newStyles(ThemeByName(t.ThemeName)),
		collapsed:       make(map[string]bool),
		now:             time.Now,
	}
}

func (m *tuiModel) Init() tea.Cmd {
	m.loading = true
	return m.doRefresh()
}

// scheduleTick returns nil when auto-refresh is disabled.
func (m *tuiModel) scheduleTick() tea.Cmd {
	if m.refreshInterval <= 0 {
		return nil
	}
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *tuiModel) doRefresh() tea.Cmd {
	src, ping, ctx := m.src, m.ping, m.ctx
	return func() tea.Msg {
		sessions, err := src.ListSessions(ctx)
		if err != nil {
			return refreshMsg{err: err}
		}
		up := false
		if ping != nil {
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			up = ping(pctx) == nil
			cancel()
		}
		return refreshMsg{sessions: sessions, daemonUp: up}
	}
}

// loadEvents fetches events for the selected session. force reloads even
// when the selection has not changed.
func (m *tuiModel) loadEvents(force bool) tea.Cmd {
	s := m.selectedSession()
	if s == nil {
		m.events = nil
		m.eventsFor = ""
		return nil
	}
	if s.ID == m.eventsFor && !force {
		return nil
	}
	if s.ID != m.eventsFor {
		m.events = nil
	}
	m.eventsFor = s.ID
	src, ctx, id, limit := m.src, m.ctx, s.ID, m.eventLimit
	return func() tea.Msg {
		evs, err := src.GetEvents(ctx, id, limit)
		return eventsMsg{sessionID: id, events: evs, err: err}
	}
}

func needsAttention(s model.Session) bool {
	return s.State == model.NeedsInput || s.State == model.Done
}

// rebuildGroups groups sessions by tmux session name and rebuilds the
// visible items, keeping the cursor on the same row where possible.
func (m *tuiModel) rebuildGroups() {
	selected := m.selectedKey()

	sort.SliceStable(m.sessions, func(i, j int) bool {
		a, b := m.sessions[i], m.sessions[j]
		if a.SessionName != b.SessionName {
			return a.SessionName < b.SessionName
		}
		if a.WindowIndex != b.WindowIndex {
			return a.WindowIndex < b.WindowIndex
		}
		return a.PaneIndex < b.PaneIndex
	})

	seen := map[string]int{}
	m.groups = nil
	for i, s := range m.sessions {
		if m.attentionOnly && !needsAttention(s) {
			continue
		}
		idx, ok := seen[s.SessionName]
		if !ok {
			idx = len(m.groups)
			seen[s.SessionName] = idx
			m.groups = append(m.groups, sessionGroup{name: s.SessionName})
		}
		m.groups[idx].sessions = append(m.groups[idx].sessions, i)
		if needsAttention(s) {
			m.groups[idx].attention++
		}
	}

	m.rebuildItems()
	m.restoreCursor(selected)
}

func (m *tuiModel) rebuildItems() {
	m.items = nil
	for _, g := range m.groups {
		m.items = append(m.items, listItem{kind: itemGroup, group: g.name})
		if m.collapsed[g.name] {
			continue
		}
		for _, si := range g.sessions {
			m.items = append(m.items, listItem{kind: itemPane, group: g.name, session: si})
		}
	}
	m.clampCursor()
}

// selectedKey identifies the current row across rebuilds: a session id for
// pane rows, the group name for headers.
func (m *tuiModel) selectedKey() string {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return ""
	}
	item := m.items[m.cursor]
	if item.kind == itemPane && item.session < len(m.sessions) {
		return "s:" + m.sessions[item.session].ID
	}
	return "g:" + item.group
}

func (m *tuiModel) restoreCursor(k string) {
	for i, item := range m.items {
		switch {
		case item.kind == itemPane && k == "s:"+m.sessions[item.session].ID:
			m.cursor = i
			return
		case item.kind == itemGroup && k == "g:"+item.group:
			m.cursor = i
			return
		}
	}
	// Land on the first pane rather than a header.
	m.cursor = 0
	for m.cursor < len(m.items)-1 && m.items[m.cursor].kind == itemGroup {
		m.cursor++
	}
}

func (m *tuiModel) clampCursor() {
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selectedSession returns the session under the cursor. For a header that
// is the first pane needing attention, else the first pane.
func (m *tuiModel) selectedSession() *model.Session {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return nil
	}
	item := m.items[m.cursor]
	if item.kind == itemPane {
		return &m.sessions[item.session]
	}
	for _, g := range m.groups {
		if g.name != item.group {
			continue
		}
		for _, si := range g.sessions {
			if needsAttention(m.sessions[si]) {
				return &m.sessions[si]
			}
		}
		if len(g.sessions) > 0 {
			return &m.sessions[g.sessions[0]]
		}
	}
	return nil
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg:
		m.loading = false
		if msg.err != nil {
			m.message = fmt.Sprintf("Refresh error: %v", msg.err)
			return m, m.scheduleTick()
		}
		m.sessions = msg.sessions
		m.daemonUp = msg.daemonUp
		m.refreshCount++
		m.message = ""
		m.rebuildGroups()
		return m, tea.Batch(m.loadEvents(true), m.scheduleTick())

	case eventsMsg:
		if msg.sessionID != m.eventsFor {
			return m, nil
		}
		if msg.err != nil {
			m.message = fmt.Sprintf("Events error: %v", msg.err)
			return m, nil
		}
		m.events = msg.events
		return m, nil

	case tickMsg:
		if m.loading {
			return m, m.scheduleTick()
		}
		m.loading = true
		return m, m.doRefresh()
	}

	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, m.loadEvents(false)

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
		return m, m.loadEvents(false)

	case key.Matches(msg, keys.Expand):
		if item, ok := m.current(); ok && item.kind == itemGroup && m.collapsed[item.group] {
			m.collapsed[item.group] = false
			m.rebuildItems()
		}
		return m, nil

	case key.Matches(msg, keys.Collapse):
		item, ok := m.current()
		if !ok {
			return m, nil
		}
		m.collapsed[item.group] = true
		m.rebuildItems()
		m.restoreCursor("g:" + item.group)
		return m, m.loadEvents(false)

	case key.Matches(msg, keys.Enter):
		item, ok := m.current()
		if !ok {
			return m, nil
		}
		if item.kind == itemGroup {
			m.collapsed[item.group] = !m.collapsed[item.group]
			m.rebuildItems()
			m.restoreCursor("g:" + item.group)
			return m, nil
		}
		m.jumpTo(m.sessions[item.session])
		return m, nil

	case key.Matches(msg, keys.Attention):
		m.attentionOnly = !m.attentionOnly
		m.rebuildGroups()
		return m, m.loadEvents(false)

	case key.Matches(msg, keys.Refresh):
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.doRefresh()
	}
	return m, nil
}

func (m *tuiModel) current() (listItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return listItem{}, false
	}
	return m.items[m.cursor], true
}

func (m *tuiModel) jumpTo(s model.Session) {
	if m.jump == nil {
		m.message = "jumping needs tmux"
		return
	}
	if err := m.jump(s.PaneID); err != nil {
		m.message = fmt.Sprintf("Jump to %s failed: %v", s.PaneID, err)
		return
	}
	m.message = fmt.Sprintf("Jumped to %s (%s)", s.Pane().Target(), s.PaneID)
}

func (m *tuiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	st := m.styles
	var b strings.Builder

	b.WriteString(st.title.Render("pane-tracker"))
	b.WriteString("  ")
	if m.ping != nil {
		if m.daemonUp {
			b.WriteString(st.ok.Render("daemon up"))
		} else {
			b.WriteString(st.err.Render("daemon down"))
		}
		b.WriteString("  ")
	}
	filter := "a=attention:OFF"
	if m.attentionOnly {
		filter = "a=attention:ON"
	}
	b.WriteString(st.dim.Render(fmt.Sprintf("↑↓=select  Enter=jump/toggle  ←→=collapse/expand  %s  r=refresh  q=quit", filter)))
	if m.loading {
		b.WriteString("  ")
		b.WriteString(st.dim.Render("refreshing..."))
	}
	b.WriteString("\n")

	if len(m.items) == 0 {
		if m.loading && m.refreshCount == 0 {
			b.WriteString("  Loading sessions...\n")
		} else {
			b.WriteString("  No tracked sessions.\n")
		}
		m.writeFooter(&b)
		return b.String()
	}

	detail := m.detailLines()
	listHeight := m.height - len(detail) - 4
	if listHeight < 3 {
		listHeight = 3
	}

	start, end := scrollWindow(m.cursor, len(m.items), listHeight)
	for i := start; i < end; i++ {
		b.WriteString(m.renderItem(i))
		b.WriteString("\n")
	}

	b.WriteString(st.header.Render(strings.Repeat("─", max(m.width, 10))))
	b.WriteString("\n")
	for _, line := range detail {
		b.WriteString(line)
		b.WriteString("\n")
	}

	m.writeFooter(&b)
	return b.String()
}

func (m *tuiModel) writeFooter(b *strings.Builder) {
	attention := lo.SumBy(m.groups, func(g sessionGroup) int { return g.attention })
	summary := fmt.Sprintf("  %d sessions | %d need attention | %d tmux sessions | refresh #%d",
		len(m.sessions), attention, len(m.groups), m.refreshCount)
	b.WriteString(m.styles.dim.Render(summary))
	b.WriteString("\n")
	if m.message != "" {
		b.WriteString(m.styles.dim.Render("  " + m.message))
		b.WriteString("\n")
	}
}

// scrollWindow returns the [start, end) item range that keeps cursor
// visible in height rows.
func scrollWindow(cursor, n, height int) (int, int) {
	if height > n {
		height = n
	}
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	return start, start + height
}

func (m *tuiModel) renderItem(i int) string {
	st := m.styles
	item := m.items[i]
	cursor := "  "
	if i == m.cursor {
		cursor = st.title.Render("> ")
	}

	if item.kind == itemGroup {
		var g *sessionGroup
		for gi := range m.groups {
			if m.groups[gi].name == item.group {
				g = &m.groups[gi]
			}
		}
		arrow := "▾"
		if m.collapsed[item.group] {
			arrow = "▸"
		}
		label := item.group
		if i == m.cursor {
			label = st.selected.Render(label)
		} else {
			label = st.text.Render(label)
		}
		counts := ""
		if g != nil {
			counts = fmt.Sprintf("(%d panes", len(g.sessions))
			if g.attention > 0 {
				counts += fmt.Sprintf(", %d need attention", g.attention)
			}
			counts += ")"
		}
		return fmt.Sprintf("%s%s %s %s", cursor, arrow, label, st.dim.Render(counts))
	}

	s := m.sessions[item.session]
	state := st.state(s.State).Render(padRight(stateIcon(s.State)+" "+s.State.String(), 13))
	target := padRight(fmt.Sprintf("%s %s", s.Pane().Target(), s.PaneID), 18)
	if i == m.cursor {
		target = st.selected.Render(target)
	}
	dirWidth := m.width - 50
	if dirWidth < 10 {
		dirWidth = 10
	}
	return fmt.Sprintf("%s    %s %s %s %s",
		cursor, state, target,
		st.dim.Render(padRight(truncate(s.WorkingDir, dirWidth), dirWidth)),
		st.dim.Render(ago(m.now().Sub(s.UpdatedAt))))
}

func (m *tuiModel) detailLines() []string {
	st := m.styles
	s := m.selectedSession()
	if s == nil {
		return nil
	}
	lines := []string{
		fmt.Sprintf("  %s %s  %s  %s",
			st.title.Render(s.Pane().Target()),
			s.PaneID,
			st.state(s.State).Render(s.State.String()),
			st.dim.Render("detected by "+s.DetectionMethod.String())),
		st.dim.Render(fmt.Sprintf("  session %s  created %s  last activity %s ago",
			s.ID, s.CreatedAt.Local().Format(time.DateTime), ago(m.now().Sub(s.LastActivity)))),
	}
	if len(m.events) == 0 {
		lines = append(lines, st.dim.Render("  no events"))
		return lines
	}
	for _, e := range m.events {
		lines = append(lines, fmt.Sprintf("  %s  %s",
			st.dim.Render(e.Timestamp.Local().Format(time.TimeOnly)),
			st.text.Render(e.Type.String())))
	}
	return lines
}

func stateIcon(s model.SessionState) string {
	switch s {
	case model.Working:
		return "●"
	case model.NeedsInput:
		return "⚠"
	case model.Done:
		return "✓"
	}
	return "·"
}

// ago formats a duration for display (e.g., "42s", "3m", "2h").
func ago(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// JumpToPane switches the tmux client to the given pane.
func JumpToPane(paneID string) error {
	return exec.Command("tmux", "switch-client", "-t", paneID).Run()
}

// truncate cuts a string to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// padRight pads s with spaces to the given visible width.
func padRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
