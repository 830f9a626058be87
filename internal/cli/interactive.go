package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/canon"
)

// menuItem represents a single configurable option in the TUI.
type menuItem struct {
	label    string
	value    string
	options  []menuOption
	required bool
	editing  bool
	cursor   int // cursor within options when editing
}

type menuOption struct {
	label string
	value string
}

// menuState tracks which phase the TUI is in.
type menuState int

const (
	stateMenu menuState = iota
	stateEditing
)

// tuiModel is the Bubble Tea model for the interactive menu.
type tuiModel struct {
	items     []menuItem
	cursor    int
	state     menuState
	width     int
	err       error
	confirmed bool
	cancelled bool
}

// style constants
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	menuLabelStyle = lipgloss.NewStyle().
			Width(18).
			Align(lipgloss.Right).
			MarginRight(2)

	menuValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	menuValueDimStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#555555")).
				Italic(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	requiredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	selectedOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Bold(true).
				PaddingLeft(2)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	buttonDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1).
			PaddingBottom(0)
)

// menu item indices
const (
	idxBrand      = 0
	idxBrief      = 1
	idxCategory   = 2
	idxModel      = 3
	idxCount      = 4
	idxHighlights = 5
	idxInsights   = 6
	idxOutput     = 7
	// idxGenerate = last item
)

// categoryOptions builds the picker choices from the canon, with auto-detect
// first. Falls back to free auto-detect only if the canon cannot be read.
func categoryOptions() []menuOption {
	opts := []menuOption{{label: "Auto-detect from brand and brief (default)", value: ""}}
	store, err := canon.Load()
	if err != nil {
		return opts
	}
	for _, cat := range store.Categories() {
		opts = append(opts, menuOption{label: cat, value: cat})
	}
	return opts
}

func buildMenuItems() []menuItem {
	items := []menuItem{
		{
			label:    "Brand",
			value:    flagBrand,
			required: true,
		},
		{
			label:    "Brief",
			value:    flagBrief,
			required: true,
		},
		{
			label:   "Category",
			value:   flagCategory,
			options: categoryOptions(),
		},
		{
			label: "Model",
			value: flagModel,
			options: []menuOption{
				{label: "Haiku 4.5 (fast, affordable) (default)", value: "haiku"},
				{label: "Sonnet 4.5 (balanced)", value: "sonnet"},
				{label: "Gemini Flash (fast)", value: "gemini-flash"},
				{label: "Gemini Pro (powerful)", value: "gemini-pro"},
				{label: "Nova Lite (Bedrock)", value: "nova-lite"},
			},
		},
		{
			label: "Portfolio Size",
			value: formatCount(flagCount),
			options: []menuOption{
				{label: "15 personas (default)", value: ""},
				{label: "10 personas (tight)", value: "10"},
				{label: "20 personas (broad)", value: "20"},
				{label: "25 personas (maximum reach)", value: "25"},
			},
		},
		{
			label: "Highlights",
			value: formatCount(flagHighlights),
			options: []menuOption{
				{label: "3 highlights (default)", value: ""},
				{label: "2 highlights", value: "2"},
				{label: "4 highlights", value: "4"},
				{label: "5 highlights", value: "5"},
			},
		},
		{
			label: "Insights",
			value: formatCount(flagInsights),
			options: []menuOption{
				{label: "2 insights (default)", value: ""},
				{label: "1 insight", value: "1"},
				{label: "3 insights", value: "3"},
			},
		},
		{
			label: "Output",
			value: flagOutput,
		},
	}

	// Generate button at the end
	items = append(items, menuItem{
		label: ">>> Generate <<<",
	})

	// Pre-select cursor position for options
	for i := range items {
		if len(items[i].options) > 0 {
			for j, opt := range items[i].options {
				if opt.value == items[i].value {
					items[i].cursor = j
					break
				}
			}
		}
	}

	return items
}

// formatCount returns an empty string for zero (meaning "default").
func formatCount(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// parseCount parses a string to int, returning 0 for empty strings.
func parseCount(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

func initialTUIModel() tuiModel {
	return tuiModel{
		items:  buildMenuItems(),
		cursor: idxBrand,
		state:  stateMenu,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) generateIdx() int {
	return len(m.items) - 1
}

func (m tuiModel) isTextInput(idx int) bool {
	return idx == idxBrand || idx == idxBrief || idx == idxOutput
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateMenu:
			return m.updateMenu(msg)
		case stateEditing:
			return m.updateEditing(msg)
		}
	}
	return m, nil
}

func (m tuiModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.cancelled = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter", " ":
		if m.cursor == m.generateIdx() {
			// Validate required fields
			if m.items[idxBrand].value == "" {
				m.err = fmt.Errorf("Brand is required")
				return m, nil
			}
			if m.items[idxBrief].value == "" {
				m.err = fmt.Errorf("Brief is required")
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		}

		// Brand/Brief/Output are text fields: open inline editor
		if m.isTextInput(m.cursor) {
			m.state = stateEditing
			m.items[m.cursor].editing = true
			m.err = nil
			return m, nil
		}

		// All others: open option selector
		if len(m.items[m.cursor].options) > 0 {
			m.state = stateEditing
			m.items[m.cursor].editing = true
			m.err = nil
			return m, nil
		}
	}
	return m, nil
}

func (m tuiModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	idx := m.cursor
	item := &m.items[idx]

	// Text input for Brand/Brief/Output
	if m.isTextInput(idx) {
		switch msg.String() {
		case "enter":
			item.editing = false
			m.state = stateMenu
			// Auto-advance to next item
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
			return m, nil
		case "esc":
			item.editing = false
			m.state = stateMenu
			return m, nil
		case "backspace":
			if len(item.value) > 0 {
				item.value = item.value[:len(item.value)-1]
			}
			return m, nil
		case "ctrl+u":
			item.value = ""
			return m, nil
		default:
			// Accept typed characters and pasted text
			if msg.Type == tea.KeyRunes {
				item.value += string(msg.Runes)
			}
			return m, nil
		}
	}

	// Option selector for other fields
	switch msg.String() {
	case "enter", " ":
		if item.cursor >= 0 && item.cursor < len(item.options) {
			item.value = item.options[item.cursor].value
		}
		item.editing = false
		m.state = stateMenu

		// Auto-advance
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
		return m, nil

	case "esc":
		item.editing = false
		m.state = stateMenu
		return m, nil

	case "up", "k":
		if item.cursor > 0 {
			item.cursor--
		}

	case "down", "j":
		if item.cursor < len(item.options)-1 {
			item.cursor++
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder

	// Title
	title := titleStyle.Render("RJM Persona Programs")
	header := headerBorder.Render(title)
	b.WriteString(header)
	b.WriteString("\n")

	genIdx := m.generateIdx()

	for i, item := range m.items {
		isActive := m.cursor == i

		// Generate button
		if i == genIdx {
			b.WriteString("\n")
			if isActive {
				b.WriteString("  " + buttonStyle.Render(" Generate "))
			} else {
				b.WriteString("  " + buttonDimStyle.Render(" Generate "))
			}
			b.WriteString("\n")
			continue
		}

		// Cursor indicator
		cursor := "  "
		if isActive {
			cursor = cursorStyle.Render("> ")
		}

		// Label
		label := item.label
		if item.required {
			label = label + requiredStyle.Render("*")
		}
		renderedLabel := menuLabelStyle.Render(label)

		// Value display
		var renderedValue string
		if item.editing && m.isTextInput(i) {
			// Show text input with blinking cursor
			renderedValue = menuValueStyle.Render(item.value + "_")
		} else if item.value == "" {
			// Show contextual placeholder text
			placeholder := "(not set)"
			switch i {
			case idxBrief:
				placeholder = "(URL, PDF path, or paste the brief text)"
			case idxOutput:
				placeholder = "(optional — print to terminal)"
			case idxCategory, idxCount, idxHighlights, idxInsights:
				if len(item.options) > 0 {
					placeholder = item.options[0].label
				}
			}
			renderedValue = menuValueDimStyle.Render(placeholder)
		} else {
			displayVal := item.value
			// Show friendly label for option-based items
			for _, opt := range item.options {
				if opt.value == item.value {
					displayVal = opt.label
					break
				}
			}
			renderedValue = menuValueStyle.Render(displayVal)
		}

		b.WriteString(cursor + renderedLabel + " " + renderedValue + "\n")

		// Show expanded options when editing
		if item.editing && len(item.options) > 0 && !m.isTextInput(i) {
			for j, opt := range item.options {
				if j == item.cursor {
					b.WriteString(selectedOptionStyle.Render("> "+opt.label) + "\n")
				} else {
					b.WriteString(optionStyle.Render("  "+opt.label) + "\n")
				}
			}
		}
	}

	// Error message
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	// Help text
	switch m.state {
	case stateMenu:
		b.WriteString(helpStyle.Render("  j/k or arrows to navigate | enter to edit | q to quit"))
	case stateEditing:
		if m.isTextInput(m.cursor) {
			b.WriteString(helpStyle.Render("  type value | enter to confirm | esc to cancel | ctrl+u to clear"))
		} else {
			b.WriteString(helpStyle.Render("  j/k or arrows to pick | enter to select | esc to cancel"))
		}
	}
	b.WriteString("\n")

	return b.String()
}

func runInteractiveSetup() error {
	m := initialTUIModel()

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tuiModel)
	if final.cancelled {
		return fmt.Errorf("cancelled")
	}
	if !final.confirmed {
		return fmt.Errorf("generation cancelled")
	}

	// Apply selections to flags
	flagBrand = final.items[idxBrand].value
	flagBrief = final.items[idxBrief].value
	flagCategory = final.items[idxCategory].value
	flagModel = final.items[idxModel].value
	flagCount = parseCount(final.items[idxCount].value)
	flagHighlights = parseCount(final.items[idxHighlights].value)
	flagInsights = parseCount(final.items[idxInsights].value)
	flagOutput = final.items[idxOutput].value

	return nil
}
