package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"sqlpilot/internal/types"
)

// repl runs the interactive prompt: one pipeline run per line.
func (a *app) repl(ctx context.Context) error {
	fmt.Println(headerStyle.Render("sqlpilot: natural language to SQL"))
	fmt.Println(strings.Repeat("=", 50))

	for {
		fmt.Print("\nEnter your request (or 'quit' to exit):\n> ")
		nlText, err := a.lines.ReadLine(ctx)
		if err != nil {
			fmt.Println("\nGoodbye!")
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch strings.ToLower(nlText) {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return nil
		case "":
			fmt.Println("Please enter a request.")
			continue
		}

		if err := a.runOnce(ctx, nlText); err != nil {
			fmt.Println(errorTextStyle.Render("Error: " + err.Error()))
		}
	}
}

// runOnce executes one request and prints the outcome.
func (a *app) runOnce(ctx context.Context, nlText string) error {
	rc, err := a.pipeline.Run(ctx, nlText)

	var execErr *types.ExecutionError
	switch {
	case errors.Is(err, types.ErrResolutionCancelled):
		fmt.Println("Cancelled.")
		return nil
	case errors.As(err, &execErr):
		printContext(rc)
		fmt.Println(errorTextStyle.Render("Execution failed: " + execErr.Err.Error()))
		return nil
	case err != nil:
		printContext(rc)
		return err
	}

	printContext(rc)
	printRows(rc.Rows)
	return nil
}

func printContext(rc *types.RequestContext) {
	if rc == nil {
		return
	}
	if rc.SchemaText != "" {
		fmt.Println("\n" + headerStyle.Render("Schema"))
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println(rc.SchemaText)
	}
	if rc.FinalSQL != "" {
		fmt.Println(headerStyle.Render("SQL"))
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println(rc.FinalSQL)
	} else if rc.AlterStmt != "" {
		fmt.Println(headerStyle.Render("Applied"))
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println(rc.AlterStmt)
	}
}

func printRows(rows []types.Row) {
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return
	}

	cols := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	fmt.Println(headerStyle.Render(fmt.Sprintf("Results (%d rows)", len(rows))))
	fmt.Println(strings.Join(cols, " | "))
	for _, row := range rows {
		vals := make([]string, len(cols))
		for i, col := range cols {
			vals[i] = fmt.Sprintf("%v", row[col])
		}
		fmt.Println(strings.Join(vals, " | "))
	}
}
