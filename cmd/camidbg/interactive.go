package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/cami-vm/cami/bytecode"
	"github.com/cami-vm/cami/eval"
	"github.com/cami-vm/cami/machine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	fieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type debuggerModel struct {
	prog    *bytecode.Program
	m       *machine.Machine
	err     error
	done    bool
	result  eval.Result
	history []string
}

func newDebuggerModel(prog *bytecode.Program) *debuggerModel {
	return &debuggerModel{prog: prog}
}

func (d *debuggerModel) Init() tea.Cmd {
	m, err := machine.New(d.prog, machine.DefaultConfig(), zap.NewNop())
	if err != nil {
		d.err = err
		return nil
	}
	d.m = m
	return nil
}

func (d *debuggerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return d, nil
	}
	switch keyMsg.String() {
	case "ctrl+c", "q":
		return d, tea.Quit
	case "n", " ":
		if d.err != nil || d.done || d.m == nil {
			return d, nil
		}
		fn := d.m.CurrentFunction()
		finished, result := d.m.Step()
		d.history = append(d.history, fmt.Sprintf("%s @ pc=%d", fn, d.m.PC()))
		if len(d.history) > 12 {
			d.history = d.history[len(d.history)-12:]
		}
		if finished {
			d.done = true
			d.result = result
		}
	}
	return d, nil
}

func (d *debuggerModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("camidbg"))
	b.WriteString("\n\n")

	if d.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("load error: %v", d.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	b.WriteString(fieldStyle.Render("function: ") + d.m.CurrentFunction() + "\n")
	b.WriteString(fieldStyle.Render("pc: ") + fmt.Sprintf("%d", d.m.PC()) + "\n")
	b.WriteString(fieldStyle.Render("operand stack depth: ") + fmt.Sprintf("%d", d.m.StackDepth()) + "\n")
	b.WriteString(fieldStyle.Render("call depth: ") + fmt.Sprintf("%d", d.m.CallDepth()) + "\n\n")

	if len(d.history) > 0 {
		b.WriteString("recent steps:\n")
		for _, h := range d.history {
			b.WriteString("  " + h + "\n")
		}
		b.WriteString("\n")
	}

	if d.done {
		b.WriteString(resultStyle.Render(fmt.Sprintf("completion: %s, exit code: %d", d.result.Completion, d.result.ExitCode)))
		if d.result.Err != nil {
			b.WriteString("\n" + errorStyle.Render(d.result.Err.Error()))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	b.WriteString(helpStyle.Render("n/space step one opcode • q quit"))
	return b.String()
}

func runInteractive(prog *bytecode.Program) error {
	p := tea.NewProgram(newDebuggerModel(prog))
	_, err := p.Run()
	return err
}
