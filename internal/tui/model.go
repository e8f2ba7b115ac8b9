// Package tui is the interactive presentation shell: credential entry,
// document ingestion with a progress bar and a chat view rendering
// streamed answers. All retrieval and generation logic lives in the
// service; the shell only renders.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/domain"
	"docchat/internal/loader"
	"docchat/internal/service"
)

type mode int

const (
	modeKey mode = iota
	modeChat
	modeIngesting
	modeAnswering
)

type (
	configuredMsg struct{ err error }
	ingestTickMsg float64
	ingestDoneMsg struct {
		added int
		err   error
	}
	answerStartMsg struct {
		query  string
		stream *service.AnswerStream
		err    error
	}
	fragmentMsg   string
	answerDoneMsg struct{ err error }
)

// ingestJob carries progress updates from the ingestion goroutine into
// the event loop.
type ingestJob struct {
	progress chan float64
	done     chan ingestDoneMsg
}

// Model is the Bubble Tea model for the docchat shell.
type Model struct {
	svc      *service.Service
	input    textinput.Model
	viewport viewport.Model
	bar      progress.Model

	mode        mode
	ready       bool
	status      string
	transcript  []string
	partial     string
	showContext bool
	fraction    float64

	job    *ingestJob
	stream *service.AnswerStream
}

// New creates the shell over a service. If the service is already
// configured (key found in the environment) the key prompt is skipped.
func New(svc *service.Service) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	m := Model{
		svc:      svc,
		input:    ti,
		viewport: viewport.New(0, 0),
		bar:      progress.New(progress.WithDefaultGradient()),
	}
	if svc.Configured() {
		m.mode = modeChat
		m.status = "Ready. /add <path> to ingest, or ask a question."
	} else {
		m.mode = modeKey
		m.input.EchoMode = textinput.EchoPassword
		m.input.Placeholder = "API key"
		m.status = "Enter your API key to begin."
	}
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and background-work events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, vh := chatBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + ih + 2 // header, input frame, progress + status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-vh)
		m.bar.Width = max(20, msg.Width-8)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if m.stream != nil {
				// Commits the partial answer before the program exits.
				m.stream.Cancel()
			}
			return m, tea.Quit
		}
		if msg.String() == "ctrl+r" && m.mode == modeChat {
			m.showContext = !m.showContext
			m.refresh()
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}

	case configuredMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.mode = modeChat
		m.input.EchoMode = textinput.EchoNormal
		m.input.Placeholder = ""
		m.input.SetValue("")
		m.status = "Ready. /add <path> to ingest, or ask a question."
		return m, nil

	case ingestTickMsg:
		m.fraction = float64(msg)
		return m, waitIngest(m.job)

	case ingestDoneMsg:
		m.mode = modeChat
		m.job = nil
		m.fraction = 0
		if msg.err != nil {
			m.status = "Ingestion failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Ingested %d chunks.", msg.added)
		}
		return m, nil

	case answerStartMsg:
		if msg.err != nil {
			m.mode = modeChat
			if errors.Is(msg.err, domain.ErrNoRelevantContent) {
				// A normal outcome: nothing indexed matches the question.
				m.transcript = append(m.transcript, infoStyle.Render("No relevant content found."))
				m.status = "No relevant content found for that question."
			} else {
				m.status = "Error: " + msg.err.Error()
			}
			m.refresh()
			return m, nil
		}
		m.stream = msg.stream
		m.transcript = append(m.transcript, userStyle.Render("you: ")+msg.query)
		m.partial = ""
		m.refresh()
		return m, waitFragment(m.stream)

	case fragmentMsg:
		m.partial += string(msg)
		m.refresh()
		return m, waitFragment(m.stream)

	case answerDoneMsg:
		m.mode = modeChat
		if m.partial != "" {
			m.transcript = append(m.transcript, botStyle.Render("docchat: ")+m.partial)
		}
		m.partial = ""
		m.stream = nil
		if msg.err != nil {
			m.status = "Stream interrupted: " + msg.err.Error()
		} else {
			m.status = "Done."
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}

	switch m.mode {
	case modeKey:
		m.input.SetValue("")
		m.status = "Checking credential..."
		return m, func() tea.Msg {
			return configuredMsg{err: m.svc.Configure(value)}
		}

	case modeChat:
		m.input.SetValue("")
		if rest, ok := strings.CutPrefix(value, "/add "); ok {
			m.mode = modeIngesting
			m.fraction = 0
			m.status = "Ingesting " + rest
			m.job = startIngest(m.svc, strings.Fields(rest))
			return m, waitIngest(m.job)
		}
		m.mode = modeAnswering
		m.status = "Thinking..."
		return m, func() tea.Msg {
			stream, err := m.svc.Answer(context.Background(), value)
			return answerStartMsg{query: value, stream: stream, err: err}
		}
	}
	return m, nil
}

// startIngest loads the documents and runs ingestion in the background,
// scaling per-document progress into an overall fraction.
func startIngest(svc *service.Service, patterns []string) *ingestJob {
	job := &ingestJob{
		progress: make(chan float64, 8),
		done:     make(chan ingestDoneMsg, 1),
	}
	go func() {
		defer close(job.progress)
		docs, err := loader.Load(patterns)
		if err != nil {
			job.done <- ingestDoneMsg{err: err}
			return
		}
		total := 0
		for i, doc := range docs {
			base := float64(i) / float64(len(docs))
			res, err := svc.Ingest(context.Background(), doc.Source, doc.Text, func(f float64) {
				// Never stall ingestion on the render loop; a dropped
				// fraction just means the bar skips ahead next tick.
				select {
				case job.progress <- base + f/float64(len(docs)):
				default:
				}
			})
			if err != nil {
				job.done <- ingestDoneMsg{added: total, err: err}
				return
			}
			total += res.ChunksAdded
		}
		job.done <- ingestDoneMsg{added: total}
	}()
	return job
}

func waitIngest(job *ingestJob) tea.Cmd {
	return func() tea.Msg {
		select {
		case f, ok := <-job.progress:
			if ok {
				return ingestTickMsg(f)
			}
			return <-job.done
		case d := <-job.done:
			return d
		}
	}
}

func waitFragment(stream *service.AnswerStream) tea.Cmd {
	return func() tea.Msg {
		frag, ok := <-stream.Fragments()
		if !ok {
			return answerDoneMsg{err: stream.Err()}
		}
		return fragmentMsg(frag)
	}
}

func (m *Model) refresh() {
	if m.showContext {
		ctx := m.svc.LastContext()
		if ctx == "" {
			ctx = "No retrieved context yet."
		}
		m.viewport.SetContent(infoStyle.Render("Retrieved context (ctrl+r to close):") + "\n\n" + ctx)
	} else {
		content := strings.Join(m.transcript, "\n\n")
		if m.partial != "" {
			content += "\n\n" + botStyle.Render("docchat: ") + m.partial
		}
		m.viewport.SetContent(content)
		m.viewport.GotoBottom()
	}
}

// View renders the shell layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("docchat - ask your documents")
	body := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)

	if m.mode == modeIngesting {
		return header + "\n" + body + "\n" + m.bar.ViewAs(m.fraction) + "\n" + input + "\n" + status
	}
	return header + "\n" + body + "\n" + input + "\n" + status
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)
