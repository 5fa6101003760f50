// Copyright 2026 The Jobfeed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jobfeed-foundation/jobfeed/feed"
)

// keyMap defines the viewer's key bindings.
type keyMap struct {
	Quit     key.Binding
	NextTab  key.Binding
	PrevTab  key.Binding
	Up       key.Binding
	Down     key.Binding
	More     key.Binding
	Refresh  key.Binding
	Favorite key.Binding
	Delete   key.Binding
	Undo     key.Binding
	Retry    key.Binding
	Search   key.Binding
	Escape   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		NextTab:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next bucket")),
		PrevTab:  key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev bucket")),
		Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		More:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "load more")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Favorite: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "favorite")),
		Delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Undo:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo")),
		Retry:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "retry")),
		Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Escape:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close search")),
	}
}

// bucketError is a failed load with its optional retry affordance.
type bucketError struct {
	text  string
	retry func()
}

// model is the viewer's bubbletea model. All feed state it renders
// arrives as messages from the engine via teaPresenter; key presses
// go back into the engine through the controller and coordinator.
type model struct {
	controller  *feed.Controller
	coordinator *feed.Coordinator

	keys   keyMap
	search textinput.Model
	spin   spinner.Model

	active feed.Bucket
	lists  map[feed.Bucket][]feed.Record
	counts map[feed.Bucket]int
	busy   map[feed.Bucket]bool
	errors map[feed.Bucket]*bucketError
	cursor map[feed.Bucket]int

	notice       string
	lastUndo     *undoNoticeMsg
	searching    bool
	realtimeDown bool

	width  int
	height int
}

func newModel(controller *feed.Controller, coordinator *feed.Coordinator, active feed.Bucket) model {
	search := textinput.New()
	search.Placeholder = "search postings"
	search.CharLimit = 120

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	lists := make(map[feed.Bucket][]feed.Record)
	counts := make(map[feed.Bucket]int)
	busy := make(map[feed.Bucket]bool)
	errors := make(map[feed.Bucket]*bucketError)
	cursor := make(map[feed.Bucket]int)

	return model{
		controller:  controller,
		coordinator: coordinator,
		keys:        defaultKeyMap(),
		search:      search,
		spin:        spin,
		active:      active,
		lists:       lists,
		counts:      counts,
		busy:        busy,
		errors:      errors,
		cursor:      cursor,
	}
}

func (m model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case recordsMsg:
		m.lists[msg.bucket] = append(m.lists[msg.bucket], msg.records...)
		m.errors[msg.bucket] = nil
		return m, nil

	case arrivedMsg:
		// Bucket assignment for a live record is not locally
		// resolved: surface it at the top of every bucket's list.
		for _, bucket := range feed.AllBuckets {
			m.lists[bucket] = append([]feed.Record{msg.record}, m.lists[bucket]...)
			if m.cursor[bucket] > 0 {
				m.cursor[bucket]++
			}
		}
		m.notice = fmt.Sprintf("New: %s", msg.record.Title)
		return m, nil

	case removeMsg:
		for i, record := range m.lists[msg.bucket] {
			if record.ID == msg.id {
				m.lists[msg.bucket] = append(m.lists[msg.bucket][:i], m.lists[msg.bucket][i+1:]...)
				break
			}
		}
		m.clampCursor(msg.bucket)
		return m, nil

	case restoreMsg:
		m.lists[msg.bucket] = append([]feed.Record{msg.record}, m.lists[msg.bucket]...)
		return m, nil

	case countMsg:
		m.counts[msg.bucket] = msg.total
		return m, nil

	case emptyMsg:
		if len(m.lists[msg.bucket]) == 0 {
			m.counts[msg.bucket] = 0
		}
		return m, nil

	case undoNoticeMsg:
		m.lastUndo = &msg
		m.notice = fmt.Sprintf("%q hidden — press u to undo", msg.record.Title)
		return m, nil

	case noticeMsg:
		m.notice = msg.text
		return m, nil

	case errorMsg:
		m.errors[msg.bucket] = &bucketError{text: msg.text, retry: msg.retry}
		return m, nil

	case realtimeDownMsg:
		m.realtimeDown = true
		return m, nil

	case busyMsg:
		m.busy[msg.bucket] = msg.busy
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.searching = false
			m.search.Blur()
			return m, nil
		case msg.Type == tea.KeyEnter:
			m.searching = false
			m.search.Blur()
			return m, nil
		default:
			before := m.search.Value()
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			if m.search.Value() != before {
				m.resetLists()
				m.controller.SetSearch(m.search.Value())
			}
			return m, cmd
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextTab):
		m.activateBucket(m.nextBucket(1))
		return m, nil

	case key.Matches(msg, m.keys.PrevTab):
		m.activateBucket(m.nextBucket(-1))
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor[m.active] > 0 {
			m.cursor[m.active]--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor[m.active] < len(m.lists[m.active])-1 {
			m.cursor[m.active]++
		} else {
			// Bottom of the loaded list: ask for the next page.
			m.controller.LoadMore(m.active)
		}
		return m, nil

	case key.Matches(msg, m.keys.More):
		m.controller.LoadMore(m.active)
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.lists[m.active] = nil
		m.cursor[m.active] = 0
		m.errors[m.active] = nil
		m.controller.Refresh(m.active)
		return m, nil

	case key.Matches(msg, m.keys.Favorite):
		if record, ok := m.selected(); ok {
			m.coordinator.RequestStatusChange(m.active, record, feed.StatusFavorite)
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if record, ok := m.selected(); ok {
			m.coordinator.RequestStatusChange(m.active, record, feed.StatusDeleted)
		}
		return m, nil

	case key.Matches(msg, m.keys.Undo):
		if m.lastUndo != nil {
			m.lastUndo.undo()
			m.lastUndo = nil
			m.notice = ""
		}
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		if failure := m.errors[m.active]; failure != nil && failure.retry != nil {
			m.lists[m.active] = nil
			m.cursor[m.active] = 0
			m.errors[m.active] = nil
			failure.retry()
		}
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search.Focus()
		return m, textinput.Blink
	}

	return m, nil
}

func (m *model) activateBucket(bucket feed.Bucket) {
	m.active = bucket
	m.controller.ActivateBucket(bucket)
}

func (m model) nextBucket(step int) feed.Bucket {
	for i, bucket := range feed.AllBuckets {
		if bucket == m.active {
			next := (i + step + len(feed.AllBuckets)) % len(feed.AllBuckets)
			return feed.AllBuckets[next]
		}
	}
	return feed.BucketMain
}

func (m *model) resetLists() {
	for _, bucket := range feed.AllBuckets {
		m.lists[bucket] = nil
		m.cursor[bucket] = 0
		m.errors[bucket] = nil
	}
}

func (m *model) clampCursor(bucket feed.Bucket) {
	if m.cursor[bucket] >= len(m.lists[bucket]) {
		m.cursor[bucket] = len(m.lists[bucket]) - 1
	}
	if m.cursor[bucket] < 0 {
		m.cursor[bucket] = 0
	}
}

func (m model) selected() (feed.Record, bool) {
	list := m.lists[m.active]
	if len(list) == 0 {
		return feed.Record{}, false
	}
	return list[m.cursor[m.active]], true
}

// Bucket display names for the tab bar.
var bucketLabels = map[feed.Bucket]string{
	feed.BucketMain:  "For you",
	feed.BucketMaybe: "Maybe",
	feed.BucketOther: "Other",
}

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Underline(true)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cursorStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	favoriteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	metaStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	noticeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("120"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func (m model) View() string {
	var b strings.Builder

	// Tab bar with counts.
	var tabs []string
	for _, bucket := range feed.AllBuckets {
		label := fmt.Sprintf("%s (%d)", bucketLabels[bucket], m.counts[bucket])
		if bucket == m.active {
			label = activeTabStyle.Render(label)
		} else {
			label = inactiveTabStyle.Render(label)
		}
		tabs = append(tabs, label)
	}
	b.WriteString(strings.Join(tabs, "  "))
	if m.busy[m.active] {
		b.WriteString("  " + m.spin.View())
	}
	b.WriteString("\n")

	if m.searching || m.search.Value() != "" {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Record list for the active bucket.
	if failure := m.errors[m.active]; failure != nil {
		b.WriteString(errorStyle.Render(failure.text))
		if failure.retry != nil {
			b.WriteString(helpStyle.Render("  (enter to retry)"))
		}
		b.WriteString("\n")
	} else if len(m.lists[m.active]) == 0 {
		b.WriteString(metaStyle.Render("No postings here."))
		b.WriteString("\n")
	} else {
		for i, record := range m.lists[m.active] {
			marker := "  "
			if i == m.cursor[m.active] {
				marker = cursorStyle.Render("> ")
			}
			title := record.Title
			if record.Status == feed.StatusFavorite {
				title = favoriteStyle.Render("★ ") + title
			}
			b.WriteString(marker + title + "\n")
			b.WriteString("    " + metaStyle.Render(record.Category) + "\n")
		}
	}

	b.WriteString("\n")
	if m.realtimeDown {
		b.WriteString(errorStyle.Render("Real-time updates disabled — press r to refresh manually."))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("tab: bucket  j/k: move  f: favorite  d: delete  u: undo  /: search  r: refresh  q: quit"))

	return b.String()
}
