// Package browse implements the interactive issue browser: a list of a
// project's issues, a detail pane with status and type pickers, and a
// media viewer for attachments.
package browse

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/notify"
)

type pickerKind int

const (
	pickerNone pickerKind = iota
	pickerStatus
	pickerType
)

// picker is the status/type selection overlay in the detail pane.
type picker struct {
	kind    pickerKind
	issueID string
	options []models.Option
	cursor  int
}

// createForm is the new issue overlay: a summary input and an assignee
// list whose first entry means unassigned.
type createForm struct {
	summary    textinput.Model
	people     []models.Person
	cursor     int
	onPeople   bool
	submitting bool
}

func newCreateForm(people []models.Person) *createForm {
	in := textinput.New()
	in.Prompt = "Summary: "
	in.Placeholder = "what needs doing"
	in.CharLimit = 255
	return &createForm{summary: in, people: people}
}

func (f *createForm) assigneeID() string {
	if f.cursor == 0 {
		return ""
	}
	return f.people[f.cursor-1].ID
}

// Messages produced by commands.
type (
	issuesLoadedMsg struct {
		issues []*models.Issue
		err    error
	}
	optionsLoadedMsg struct {
		kind    pickerKind
		issueID string
		options []models.Option
		current int
	}
	issueSavedMsg struct {
		issue *models.Issue
	}
	peopleLoadedMsg struct {
		people []models.Person
	}
	issueCreatedMsg struct {
		issue *models.Issue
	}
	attachmentRemovedMsg struct {
		issueID      string
		attachmentID string
	}
	busEventMsg struct {
		msg notify.Message
	}
	errMsg struct {
		err error
	}
)

// Model is the bubbletea model for the issue browser.
type Model struct {
	ctx      context.Context
	source   Source
	keys     KeyMap
	help     help.Model
	events   <-chan notify.Message
	deepLink string

	state      *State // nil until the first load completes
	picker     picker
	create     *createForm
	filter     textinput.Model
	filtering  bool
	statusLine string
	statusErr  bool

	width  int
	height int
}

// NewModel creates a browser over source. deepLink preselects an issue by
// id once the list is loaded.
func NewModel(ctx context.Context, source Source, deepLink string) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter by summary"
	return Model{
		filter:   filter,
		ctx:      ctx,
		source:   source,
		keys:     DefaultKeyMap,
		help:     help.New(),
		events:   source.Subscribe(),
		deepLink: deepLink,
		width:    100,
		height:   30,
	}
}

// State returns the browser state, or nil before the first load.
func (m Model) State() *State { return m.state }

// StatusLine returns the current status line text and whether it reports
// an error.
func (m Model) StatusLine() (string, bool) { return m.statusLine, m.statusErr }

// DeepLink returns the id of the selected issue.
func (m Model) DeepLink() string {
	if m.state == nil {
		return m.deepLink
	}
	return m.state.DeepLink()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadIssues(), listenForEvent(m.events))
}

// listenForEvent blocks until a bus notification arrives and delivers it
// as a busEventMsg.
func listenForEvent(ch <-chan notify.Message) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return busEventMsg{msg: msg}
	}
}

func (m Model) loadIssues() tea.Cmd {
	return func() tea.Msg {
		issues, err := m.source.Issues(m.ctx)
		return issuesLoadedMsg{issues: issues, err: err}
	}
}

func (m Model) loadOptions(kind pickerKind, issue *models.Issue) tea.Cmd {
	return func() tea.Msg {
		var options []models.Option
		var err error
		current := 0
		switch kind {
		case pickerStatus:
			options, err = m.source.EnabledStatuses(m.ctx, issue.ID)
			current = int(issue.Status)
		case pickerType:
			options, err = m.source.Types(m.ctx)
			current = int(issue.Type)
		}
		if err != nil {
			return errMsg{err: err}
		}
		return optionsLoadedMsg{kind: kind, issueID: issue.ID, options: options, current: current}
	}
}

func (m Model) commitPicker(p picker) tea.Cmd {
	value := p.options[p.cursor].Value
	return func() tea.Msg {
		var issue *models.Issue
		var err error
		if p.kind == pickerStatus {
			issue, err = m.source.UpdateStatus(m.ctx, p.issueID, models.IssueStatus(value))
		} else {
			issue, err = m.source.UpdateType(m.ctx, p.issueID, models.IssueType(value))
		}
		if err != nil {
			return errMsg{err: err}
		}
		return issueSavedMsg{issue: issue}
	}
}

func (m Model) loadPeople() tea.Cmd {
	return func() tea.Msg {
		people, err := m.source.People(m.ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return peopleLoadedMsg{people: people}
	}
}

func (m Model) createIssue(in NewIssue) tea.Cmd {
	return func() tea.Msg {
		issue, err := m.source.CreateIssue(m.ctx, in)
		if err != nil {
			return errMsg{err: err}
		}
		return issueCreatedMsg{issue: issue}
	}
}

func (m Model) deleteAttachment(a *models.Attachment) tea.Cmd {
	return func() tea.Msg {
		if err := m.source.DeleteAttachment(m.ctx, a.ID); err != nil {
			return errMsg{err: err}
		}
		return attachmentRemovedMsg{issueID: a.IssueID, attachmentID: a.ID}
	}
}

// live reports whether list changes arrive as bus notifications. Live
// sources apply creations and attachment deletions only from the bus;
// others apply the confirmed result directly.
func (m Model) live() bool { return m.events != nil }

func (m *Model) setStatus(text string, isErr bool) {
	m.statusLine = text
	m.statusErr = isErr
}

// Update implements tea.Model.
func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.help.Width = message.Width
		return m, nil

	case issuesLoadedMsg:
		if message.err != nil {
			m.setStatus(message.err.Error(), true)
			return m, nil
		}
		link := m.deepLink
		if m.state != nil {
			link = m.state.DeepLink()
		}
		m.state = NewState(message.issues, link)
		m.state.SetFilter(fuzzyFilter(m.filter.Value()))
		m.setStatus(fmt.Sprintf("%d issues", len(message.issues)), false)
		return m, nil

	case optionsLoadedMsg:
		p := picker{kind: message.kind, issueID: message.issueID, options: message.options}
		for i, o := range message.options {
			if o.Value == message.current {
				p.cursor = i
			}
		}
		if len(p.options) == 0 {
			m.setStatus("no options available", true)
			return m, nil
		}
		m.picker = p
		return m, nil

	case issueSavedMsg:
		if m.state != nil {
			m.state.ApplyUpdated(message.issue)
		}
		m.setStatus(fmt.Sprintf("Saved %s: %s, %s", message.issue.ID, message.issue.Status.Label(), message.issue.Type.Label()), false)
		return m, nil

	case peopleLoadedMsg:
		m.create = newCreateForm(message.people)
		m.setStatus("Enter creates, Tab picks an assignee, Esc cancels", false)
		return m, m.create.summary.Focus()

	case issueCreatedMsg:
		m.create = nil
		if !m.live() && m.state != nil {
			m.state.AppendCreated(message.issue)
			m.setStatus("New issue: "+message.issue.Summary, false)
		}
		return m, nil

	case attachmentRemovedMsg:
		if !m.live() && m.state != nil {
			m.state.RemoveAttachment(message.issueID, message.attachmentID)
			m.setStatus("Attachment deleted", false)
		}
		return m, nil

	case busEventMsg:
		m.applyEvent(message.msg)
		return m, listenForEvent(m.events)

	case errMsg:
		if m.create != nil {
			m.create.submitting = false
		}
		m.setStatus(message.err.Error(), true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(message)
	}
	return m, nil
}

func (m *Model) applyEvent(msg notify.Message) {
	if m.state == nil {
		return
	}
	switch e := msg.(type) {
	case notify.IssueCreated:
		m.state.AppendCreated(e.Issue)
		m.setStatus("New issue: "+e.Issue.Summary, false)
	case notify.AttachmentDeleted:
		m.state.RemoveAttachment(e.IssueID, e.AttachmentID)
		m.setStatus("Attachment deleted", false)
	}
}

func (m Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering && m.state != nil && message.Type != tea.KeyCtrlC {
		return m.handleFilterKeys(message)
	}
	if m.create != nil && message.Type != tea.KeyCtrlC {
		return m.handleCreateKeys(message)
	}
	if key.Matches(message, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.picker.kind != pickerNone {
		return m.handlePickerKeys(message)
	}
	if m.state == nil {
		return m, nil
	}
	if m.state.Viewer().Open {
		return m.handleViewerKeys(message)
	}

	switch {
	case key.Matches(message, m.keys.Up):
		m.state.Move(-1)
	case key.Matches(message, m.keys.Down):
		m.state.Move(1)
	case key.Matches(message, m.keys.Home):
		m.state.Move(-len(m.state.Issues()))
	case key.Matches(message, m.keys.End):
		m.state.Move(len(m.state.Issues()))
	case key.Matches(message, m.keys.Status):
		if issue := m.state.Selected(); issue != nil {
			return m, m.loadOptions(pickerStatus, issue)
		}
	case key.Matches(message, m.keys.Type):
		if issue := m.state.Selected(); issue != nil {
			return m, m.loadOptions(pickerType, issue)
		}
	case key.Matches(message, m.keys.Create):
		return m, m.loadPeople()
	case key.Matches(message, m.keys.Attachments):
		if !m.state.OpenViewer(0) {
			m.setStatus("No attachments", false)
		}
	case key.Matches(message, m.keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()
	case key.Matches(message, m.keys.Refresh):
		return m, m.loadIssues()
	case key.Matches(message, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyEsc:
		m.filter.Reset()
		m.filter.Blur()
		m.filtering = false
		m.state.SetFilter(nil)
		return m, nil
	case tea.KeyEnter:
		m.filter.Blur()
		m.filtering = false
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(message)
	m.state.SetFilter(fuzzyFilter(m.filter.Value()))
	return m, cmd
}

func (m Model) handleCreateKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.create
	switch {
	case key.Matches(message, m.keys.Cancel):
		m.create = nil
		m.setStatus("", false)
		return m, nil
	case f.submitting:
		return m, nil
	case key.Matches(message, m.keys.NextField):
		f.onPeople = !f.onPeople
		if f.onPeople {
			f.summary.Blur()
			return m, nil
		}
		return m, f.summary.Focus()
	case key.Matches(message, m.keys.Select):
		summary := strings.TrimSpace(f.summary.Value())
		if summary == "" {
			m.setStatus("Summary is required", true)
			return m, nil
		}
		f.submitting = true
		m.setStatus("Creating…", false)
		return m, m.createIssue(NewIssue{Summary: summary, AssigneeID: f.assigneeID()})
	case f.onPeople:
		switch {
		case key.Matches(message, m.keys.Up):
			if f.cursor > 0 {
				f.cursor--
			}
		case key.Matches(message, m.keys.Down):
			if f.cursor < len(f.people) {
				f.cursor++
			}
		}
		return m, nil
	}
	var cmd tea.Cmd
	f.summary, cmd = f.summary.Update(message)
	return m, cmd
}

func (m Model) handlePickerKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Up):
		if m.picker.cursor > 0 {
			m.picker.cursor--
		}
	case key.Matches(message, m.keys.Down):
		if m.picker.cursor < len(m.picker.options)-1 {
			m.picker.cursor++
		}
	case key.Matches(message, m.keys.Cancel):
		m.picker = picker{}
	case key.Matches(message, m.keys.Select):
		p := m.picker
		m.picker = picker{}
		m.setStatus("Saving…", false)
		return m, m.commitPicker(p)
	}
	return m, nil
}

func (m Model) handleViewerKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Cancel):
		m.state.CloseViewer()
	case key.Matches(message, m.keys.NextAttachment):
		m.state.CycleViewer()
	case key.Matches(message, m.keys.DeleteAttachment):
		if a := m.state.Viewer().Attachment; a != nil {
			return m, m.deleteAttachment(a)
		}
	}
	return m, nil
}

// Run starts the browser in the terminal's alternate screen and returns
// the deep link of the last selected issue.
func Run(ctx context.Context, source Source, deepLink string) (string, error) {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	program := tea.NewProgram(NewModel(ctx, source, deepLink), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		return deepLink, err
	}
	if m, ok := final.(Model); ok {
		return m.DeepLink(), nil
	}
	return deepLink, nil
}

// ── Rendering ───────────────────────────────────────────────────────────────

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	faintStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	paneStyle     = lipgloss.NewStyle().Padding(0, 1)
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	statusStyles = map[models.IssueStatus]lipgloss.Style{
		models.IssueStatusNew:           lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		models.IssueStatusReady:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		models.IssueStatusInDevelopment: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		models.IssueStatusInReview:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		models.IssueStatusResolved:      lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	}
)

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}

// View implements tea.Model.
func (m Model) View() string {
	var body string
	switch {
	case m.state == nil:
		body = faintStyle.Render("Loading issues…")
	case len(m.state.All()) == 0:
		body = faintStyle.Render("No issues in this project.")
	default:
		listWidth := m.width * 2 / 5
		if listWidth < 30 {
			listWidth = 30
		}
		list := paneStyle.Width(listWidth).Render(m.renderList(listWidth - 2))
		detail := paneStyle.Width(m.width - listWidth - 1).Render(m.renderDetail())
		body = lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
	}

	if m.filtering || m.filter.Value() != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, m.filter.View(), body)
	}
	if m.create != nil {
		body = lipgloss.JoinVertical(lipgloss.Left, body, m.renderCreate())
	}

	status := m.statusLine
	if m.statusErr {
		status = errorStyle.Render(status)
	} else if status != "" {
		status = okStyle.Render(status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, "", status, m.help.View(m.keys))
}

func (m Model) renderList(width int) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Issues"))
	sb.WriteString("\n")

	visible := m.height - 6
	if visible < 1 {
		visible = 1
	}
	issues := m.state.Issues()
	if len(issues) == 0 {
		sb.WriteString(faintStyle.Render("No matches."))
		return sb.String()
	}
	selected := m.state.SelectedIndex()
	start := 0
	if selected >= visible {
		start = selected - visible + 1
	}
	for i := start; i < len(issues) && i < start+visible; i++ {
		issue := issues[i]
		label := issue.Status.Label()
		summary := truncate(issue.Summary, width-len(label)-2)
		pad := width - len(label) - 1 - ansi.StringWidth(summary)
		if pad < 0 {
			pad = 0
		}
		line := summary + strings.Repeat(" ", pad) + " " + statusStyles[issue.Status].Render(label)
		if i == selected {
			line = selectedStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderDetail() string {
	issue := m.state.Selected()
	if issue == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(issue.Summary))
	sb.WriteString("\n")
	sb.WriteString(faintStyle.Render(issue.ID))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Status:   %s\n", statusStyles[issue.Status].Render(issue.Status.Label()))
	fmt.Fprintf(&sb, "Type:     %s\n", issue.Type.Label())
	assignee := issue.AssigneeID
	if assignee == "" {
		assignee = "unassigned"
	}
	fmt.Fprintf(&sb, "Assignee: %s\n", assignee)
	fmt.Fprintf(&sb, "Reporter: %s\n", issue.ReporterID)
	if issue.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(issue.Description)
		sb.WriteString("\n")
	}

	if len(issue.Attachments) > 0 {
		sb.WriteString("\n")
		sb.WriteString(headerStyle.Render(fmt.Sprintf("Attachments (%d)", len(issue.Attachments))))
		sb.WriteString("\n")
		for _, a := range issue.Attachments {
			fmt.Fprintf(&sb, "  %s %s\n", a.FileName, faintStyle.Render(a.MediaType))
		}
	}

	if v := m.state.Viewer(); v.Open && v.Attachment != nil {
		sb.WriteString("\n")
		sb.WriteString(boxStyle.Render(fmt.Sprintf("%s\n%s\n%s",
			headerStyle.Render(v.Attachment.FileName),
			v.Attachment.MediaType,
			faintStyle.Render(v.Attachment.Path))))
		sb.WriteString("\n")
	}

	if m.picker.kind != pickerNone && m.picker.issueID == issue.ID {
		title := "Status"
		if m.picker.kind == pickerType {
			title = "Type"
		}
		var pb strings.Builder
		pb.WriteString(headerStyle.Render(title))
		for i, o := range m.picker.options {
			line := "  " + o.Label
			if i == m.picker.cursor {
				line = selectedStyle.Render("> " + o.Label)
			}
			pb.WriteString("\n")
			pb.WriteString(line)
		}
		sb.WriteString("\n")
		sb.WriteString(boxStyle.Render(pb.String()))
	}
	return sb.String()
}

func (m Model) renderCreate() string {
	f := m.create
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("New issue"))
	sb.WriteString("\n")
	sb.WriteString(f.summary.View())
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("Assignee"))

	names := []string{"Unassigned"}
	for _, p := range f.people {
		name := strings.TrimSpace(p.FirstName + " " + p.LastName)
		if name == "" {
			name = p.ID
		}
		names = append(names, name)
	}
	for i, name := range names {
		line := "  " + name
		if i == f.cursor {
			line = "> " + name
			if f.onPeople {
				line = selectedStyle.Render(line)
			}
		}
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return boxStyle.Render(sb.String())
}
