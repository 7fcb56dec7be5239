package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"sqlpilot/internal/types"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	tableStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	barFullStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	barEmptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	reasonStyle    = lipgloss.NewStyle().Faint(true)
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

type lineResult struct {
	line string
	err  error
}

// lineReader owns one input stream and keeps at most one read
// outstanding. When a caller gives up on the context, the read stays
// pending and the next caller receives its line, so a late answer is
// never dropped and no second reader ever races on the stream.
type lineReader struct {
	mu      sync.Mutex
	in      *bufio.Reader
	pending chan lineResult
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{in: bufio.NewReader(r)}
}

// ReadLine returns the next trimmed line, honoring context cancellation.
func (r *lineReader) ReadLine(ctx context.Context) (string, error) {
	r.mu.Lock()
	ch := r.pending
	if ch == nil {
		ch = make(chan lineResult, 1)
		r.pending = ch
		go func() {
			line, err := r.in.ReadString('\n')
			ch <- lineResult{strings.TrimSpace(line), err}
		}()
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		r.mu.Lock()
		r.pending = nil
		r.mu.Unlock()
		return res.line, res.err
	}
}

// consoleEscalator implements resolver.Escalator on stdin/stdout. It
// blocks on user input; the resolver wraps calls in the escalation
// timeout. The line reader is shared with the REPL so both read from a
// single cursor on stdin.
type consoleEscalator struct {
	in *lineReader
}

func newConsoleEscalator(in *lineReader) *consoleEscalator {
	return &consoleEscalator{in: in}
}

func (e *consoleEscalator) readLine(ctx context.Context) (string, error) {
	return e.in.ReadLine(ctx)
}

// confidenceBar renders a ten-segment bar for a confidence in [0,1].
func confidenceBar(confidence float64) string {
	full := int(confidence * 10)
	if full > 10 {
		full = 10
	}
	if full < 0 {
		full = 0
	}
	return barFullStyle.Render(strings.Repeat("█", full)) +
		barEmptyStyle.Render(strings.Repeat("░", 10-full))
}

// Confirm offers the ranked candidates: pick one by number, enter a name
// manually, or cancel. Returns "" on cancel, never a guessed default.
func (e *consoleEscalator) Confirm(ctx context.Context, nlText string, candidates []types.CandidateTable, entities []string) (string, error) {
	fmt.Println()
	fmt.Println(headerStyle.Render("Query analysis"))
	fmt.Printf("Request: %s\n", nlText)
	if len(entities) > 0 {
		fmt.Printf("Entities: %s\n", strings.Join(entities, ", "))
	}
	fmt.Printf("Found %d potential table(s):\n", len(candidates))

	for i, c := range candidates {
		fmt.Printf("\n%d. %s\n", i+1, tableStyle.Render(c.TableName))
		fmt.Printf("   Confidence: %s (%.0f%%)\n", confidenceBar(c.Confidence), c.Confidence*100)
		if c.Reason != "" {
			fmt.Printf("   %s\n", reasonStyle.Render(c.Reason))
		}
		if c.Preview != "" {
			fmt.Printf("   Preview: %s\n", reasonStyle.Render(c.Preview))
		}
	}

	manual := len(candidates) + 1
	fmt.Printf("\n%d. None of the above (manual entry)\n", manual)
	fmt.Println("0. Cancel")

	for {
		fmt.Print(promptStyle.Render(fmt.Sprintf("Select option (0-%d): ", manual)))
		choice, err := e.readLine(ctx)
		if err != nil {
			return "", err
		}

		switch {
		case choice == "0":
			return "", nil
		case choice == strconv.Itoa(manual):
			return e.Clarify(ctx, "Please specify the correct table name")
		default:
			n, err := strconv.Atoi(choice)
			if err != nil || n < 1 || n > len(candidates) {
				fmt.Println(errorTextStyle.Render("Invalid option, try again."))
				continue
			}
			selected := candidates[n-1].TableName
			fmt.Print(promptStyle.Render(fmt.Sprintf("Confirm selection %s? (y/n): ", selected)))
			confirm, err := e.readLine(ctx)
			if err != nil {
				return "", err
			}
			if confirm == "y" || confirm == "yes" {
				return selected, nil
			}
		}
	}
}

// Clarify prompts for a table name directly.
func (e *consoleEscalator) Clarify(ctx context.Context, prompt string) (string, error) {
	fmt.Printf("\n%s\n", headerStyle.Render("Clarification needed"))
	fmt.Println(prompt)
	fmt.Print(promptStyle.Render("Table name (empty to cancel): "))
	return e.readLine(ctx)
}
