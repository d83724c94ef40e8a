package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mtlsbridge/pkg/protocol"
)

// Sender performs one bridge call.
type Sender func(ctx context.Context, clientName string, req *protocol.Request) (*protocol.Response, error)

// Console input fields
const (
	FieldClient = iota
	FieldMethod
	FieldURL
	FieldHeaders
	FieldBody
	FieldResponseType
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Client",
	"Method",
	"URL",
	"Headers",
	"Body",
	"Response type",
}

const maxBodyLines = 20

// Result is the outcome of one call made from the console.
type Result struct {
	Client   string
	Method   string
	URL      string
	Response *protocol.Response
	Err      error
	Duration time.Duration
}

type resultMsg Result

type consoleTickMsg time.Time

// Console is an interactive request composer.
type Console struct {
	send    Sender
	timeout time.Duration

	inputs       []textinput.Model
	focusIndex   int
	width        int
	height       int
	sending      bool
	spinnerFrame int

	last    *Result
	history []Result
}

// NewConsole creates a console that sends through send. clients seeds the
// client field with the first name.
func NewConsole(send Sender, clients []string, timeout time.Duration) Console {
	c := Console{
		send:    send,
		timeout: timeout,
		inputs:  make([]textinput.Model, fieldCount),
	}

	for i := range c.inputs {
		c.inputs[i] = textinput.New()
		c.inputs[i].CharLimit = 512
		c.inputs[i].Width = 50
	}

	c.inputs[FieldClient].Placeholder = "default"
	if len(clients) > 0 {
		c.inputs[FieldClient].SetValue(clients[0])
	}
	c.inputs[FieldClient].Width = 20

	c.inputs[FieldMethod].Placeholder = "GET"
	c.inputs[FieldMethod].SetValue("GET")
	c.inputs[FieldMethod].CharLimit = 16
	c.inputs[FieldMethod].Width = 10

	c.inputs[FieldURL].Placeholder = "https://localhost:8443/echo"
	c.inputs[FieldURL].CharLimit = 2048

	c.inputs[FieldHeaders].Placeholder = "accept: application/json; x-trace: 1"

	c.inputs[FieldBody].Placeholder = `{"hello":"world"} or plain text`
	c.inputs[FieldBody].CharLimit = 8192

	c.inputs[FieldResponseType].Placeholder = "json"
	c.inputs[FieldResponseType].CharLimit = 8
	c.inputs[FieldResponseType].Width = 10

	c.inputs[FieldURL].Focus()
	c.focusIndex = FieldURL

	return c
}

// SetValue fills a field.
func (c *Console) SetValue(field int, v string) {
	c.inputs[field].SetValue(v)
}

// Last returns the most recent result, if any.
func (c Console) Last() *Result {
	return c.last
}

// History returns completed calls, newest first.
func (c Console) History() []Result {
	return c.history
}

// Request builds a request from the current field values.
func (c Console) Request() (string, *protocol.Request, error) {
	url := strings.TrimSpace(c.inputs[FieldURL].Value())
	if url == "" {
		return "", nil, fmt.Errorf("url is required")
	}

	method := strings.TrimSpace(c.inputs[FieldMethod].Value())
	if method == "" {
		method = http.MethodGet
	}

	headers, err := ParseHeaders(c.inputs[FieldHeaders].Value())
	if err != nil {
		return "", nil, err
	}

	var rt protocol.ResponseType
	if s := strings.TrimSpace(c.inputs[FieldResponseType].Value()); s != "" {
		rt, err = protocol.ParseResponseType(s)
		if err != nil {
			return "", nil, err
		}
	}

	req := &protocol.Request{
		Method:       method,
		URL:          url,
		Headers:      headers,
		Body:         protocol.GuessBody(c.inputs[FieldBody].Value()),
		ResponseType: rt,
	}
	return strings.TrimSpace(c.inputs[FieldClient].Value()), req, nil
}

// ParseHeaders parses "name: value; name: value".
func ParseHeaders(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	headers := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected name: value", part)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// Init initializes the model
func (c Console) Init() tea.Cmd {
	return textinput.Blink
}

func consoleTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (c Console) sendCmd(client string, req *protocol.Request) tea.Cmd {
	send, timeout := c.send, c.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := send(ctx, client, req)
		return resultMsg{
			Client:   client,
			Method:   strings.ToUpper(req.Method),
			URL:      req.URL,
			Response: resp,
			Err:      err,
			Duration: time.Since(start),
		}
	}
}

// Update handles messages
func (c Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return c, tea.Quit

		case "enter":
			if c.sending {
				return c, nil
			}
			client, req, err := c.Request()
			if err != nil {
				c.last = &Result{Err: err}
				return c, nil
			}
			c.sending = true
			return c, tea.Batch(c.sendCmd(client, req), consoleTick())

		case "tab", "down":
			c.moveFocus(1)
			return c, nil

		case "shift+tab", "up":
			c.moveFocus(-1)
			return c, nil
		}

	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		return c, nil

	case consoleTickMsg:
		if !c.sending {
			return c, nil
		}
		c.spinnerFrame = (c.spinnerFrame + 1) % len(SpinnerFrames)
		return c, consoleTick()

	case resultMsg:
		c.sending = false
		r := Result(msg)
		c.last = &r
		c.history = append([]Result{r}, c.history...)
		return c, nil
	}

	var cmd tea.Cmd
	c.inputs[c.focusIndex], cmd = c.inputs[c.focusIndex].Update(msg)
	return c, cmd
}

func (c *Console) moveFocus(delta int) {
	c.inputs[c.focusIndex].Blur()
	c.focusIndex = (c.focusIndex + delta + fieldCount) % fieldCount
	c.inputs[c.focusIndex].Focus()
}

// View renders the console.
func (c Console) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		MiniLogo(),
		"  ",
		TitleStyle.Render(" CONSOLE "),
	))
	b.WriteString("\n\n")

	rows := make([]string, 0, fieldCount*2)
	for i := range c.inputs {
		label := LabelStyle.Render(fieldLabels[i])
		if i == c.focusIndex {
			label = HighlightStyle.Render(ArrowRight + " " + fieldLabels[i])
		}
		rows = append(rows, label, "  "+c.inputs[i].View())
	}
	b.WriteString(BorderStyle.Width(70).Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n\n")

	switch {
	case c.sending:
		b.WriteString(InfoStyle.Render(SpinnerFrames[c.spinnerFrame] + " sending..."))
	case c.last != nil:
		b.WriteString(renderResult(*c.last))
	}
	b.WriteString("\n\n")

	if len(c.history) > 1 {
		b.WriteString(SubtitleStyle.Render("History"))
		b.WriteString("\n")
		for _, r := range c.history[1:min(len(c.history), 6)] {
			b.WriteString("  " + renderSummary(r) + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render("TAB: next field • ENTER: send • ESC: quit"))
	return b.String()
}

func renderSummary(r Result) string {
	outcome := ErrorStyle.Render(CrossMark)
	if r.Err == nil && r.Response != nil {
		outcome = StatusStyle(r.Response.Status).Render(fmt.Sprintf("%d", r.Response.Status))
	}
	return fmt.Sprintf("%s %s %s %s",
		outcome,
		ValueStyle.Render(r.Method),
		DimStyle.Render(r.URL),
		DimStyle.Render(r.Duration.Round(time.Millisecond).String()),
	)
}

func renderResult(r Result) string {
	if r.Err != nil {
		return ErrorStyle.Render(CrossMark + " " + r.Err.Error())
	}
	if r.Response == nil {
		return DimStyle.Render("(no response)")
	}

	var content strings.Builder
	resp := r.Response
	content.WriteString(RenderStatus(resp.Status, http.StatusText(resp.Status)))
	content.WriteString("  ")
	content.WriteString(DimStyle.Render(fmt.Sprintf("%s via %s in %s", r.Method, displayClient(r.Client), r.Duration.Round(time.Millisecond))))
	content.WriteString("\n\n")

	names := make([]string, 0, len(resp.Headers))
	for name := range resp.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content.WriteString(LabelStyle.Render(name) + ": " + resp.Headers[name] + "\n")
	}
	content.WriteString("\n")
	content.WriteString(FormatBody(resp.Body, maxBodyLines))

	return BorderStyle.Width(70).Render(content.String())
}

func displayClient(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

// FormatBody renders a response body for display, keeping at most maxLines
// lines when maxLines is positive.
func FormatBody(body any, maxLines int) string {
	var text string
	switch v := body.(type) {
	case nil:
		return DimStyle.Render("(no body)")
	case string:
		text = v
	case protocol.ByteArray:
		return DimStyle.Render(fmt.Sprintf("(%d bytes)", len(v)))
	default:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return ErrorStyle.Render(err.Error())
		}
		text = string(out)
	}

	if maxLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > maxLines {
			text = strings.Join(lines[:maxLines], "\n") + "\n" + DimStyle.Render(fmt.Sprintf("... %d more lines", len(lines)-maxLines))
		}
	}
	return text
}
