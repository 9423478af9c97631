package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rendis/flowgen/internal/diagram"
	"github.com/rendis/flowgen/internal/document"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/logging"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/runner"
	"github.com/rendis/flowgen/internal/workspace"
	"github.com/rendis/flowgen/pkg/schema"
)

// stdout receives command output; tests swap it.
var stdout io.Writer = os.Stdout

var (
	errInvalid      = errors.New("project has invalid diagrams")
	errTrialsFailed = errors.New("some trials failed")
)

// loadDocument opens the project document at path in a memory-only
// workspace configured from the settings.
func loadDocument(ctx context.Context, path string) (*workspace.Workspace, *project.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	cfg := loadConfig()
	ws, err := workspace.New(workspace.Options{
		Limits:   cfg.Limits(),
		Dialect:  cfg.Dialect,
		MaxSteps: cfg.MaxSteps,
		Logger:   logging.New(os.Stderr, "warn"),
	})
	if err != nil {
		return nil, nil, err
	}
	p, err := ws.Import(ctx, data, document.FormatFromPath(path))
	if err != nil {
		return nil, nil, err
	}
	return ws, p, nil
}

// documentArg parses fs and returns its single positional argument.
func documentArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("usage: flowgen %s [flags] <project>", fs.Name())
	}
	return fs.Arg(0), nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	path, err := documentArg(fs, args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	ws, p, err := loadDocument(ctx, path)
	if err != nil {
		return err
	}

	valid := true
	err = ws.View(ctx, p.ID, func(p *project.Project) error {
		for _, r := range ws.Generator().Validate(ctx, p) {
			status := "ok"
			if !r.Result.Valid() {
				status = "invalid"
				valid = false
			}
			fmt.Fprintf(stdout, "%s (%s): %s\n", r.Name, r.DiagramID, status)
			printIssues("error", r.Result.Errors)
			printIssues("warning", r.Result.Warnings)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !valid {
		return errInvalid
	}
	return nil
}

func printIssues(label string, issues []schema.ValidationIssue) {
	for _, is := range issues {
		line := fmt.Sprintf("  %s %s: %s", label, is.Code, is.Message)
		if len(is.NodeIDs) > 0 {
			line += " [" + strings.Join(is.NodeIDs, ", ") + "]"
		}
		fmt.Fprintln(stdout, line)
	}
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	target := fs.String("target", "python", "target language: python or go")
	out := fs.String("o", "", "write the source to this file")
	path, err := documentArg(fs, args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	ws, p, err := loadDocument(ctx, path)
	if err != nil {
		return err
	}
	res, err := ws.Generate(ctx, p.ID, *target)
	if err != nil {
		return err
	}
	return writeOutput(*out, []byte(res.Source))
}

func runProgram(args []string) error {
	fs := flag.NewFlagSet("program", flag.ContinueOnError)
	jq := fs.String("jq", "", "jq expression over {name, variables, programs}")
	path, err := documentArg(fs, args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	ws, p, err := loadDocument(ctx, path)
	if err != nil {
		return err
	}
	gen := ws.Generator()
	return ws.View(ctx, p.ID, func(p *project.Project) error {
		if *jq != "" {
			results, err := gen.Query(ctx, p, *jq)
			if err != nil {
				return err
			}
			for _, r := range results {
				if err := writeJSON(r); err != nil {
					return err
				}
			}
			return nil
		}
		progs, _, err := gen.Programs(ctx, p)
		if err != nil {
			return err
		}
		return writeJSON(progs)
	})
}

func runDiagram(args []string) error {
	fs := flag.NewFlagSet("diagram", flag.ContinueOnError)
	diagramID := fs.String("diagram", "", "diagram ID (default: the first diagram)")
	format := fs.String("format", "mermaid", "mermaid, ascii, png, svg or dot")
	out := fs.String("o", "", "write the drawing to this file")
	path, err := documentArg(fs, args)
	if err != nil {
		return err
	}
	if *format == string(diagram.ImagePNG) && *out == "" {
		return errors.New("png output needs -o")
	}
	ctx := context.Background()
	ws, p, err := loadDocument(ctx, path)
	if err != nil {
		return err
	}
	var data []byte
	err = ws.View(ctx, p.ID, func(p *project.Project) error {
		d, err := pickDiagram(p, *diagramID)
		if err != nil {
			return err
		}
		data, _, err = diagram.Render(ctx, d, *format)
		return err
	})
	if err != nil {
		return err
	}
	return writeOutput(*out, data)
}

// pickDiagram returns the diagram with the given ID, or the first diagram
// when id is empty.
func pickDiagram(p *project.Project, id string) (*graph.Diagram, error) {
	if id != "" {
		return p.Diagram(id)
	}
	ds := p.Diagrams()
	if len(ds) == 0 {
		return nil, schema.NewError(schema.ErrCodeNotFound, "project has no diagrams")
	}
	return ds[0], nil
}

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	inputs := fs.String("inputs", "", "whitespace-separated input tokens")
	path, err := documentArg(fs, args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	ws, p, err := loadDocument(ctx, path)
	if err != nil {
		return err
	}
	res, err := ws.Run(ctx, p.ID, *inputs)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, strings.Join(res.Outputs, " "))
	return nil
}

func runTrials(args []string) error {
	fs := flag.NewFlagSet("trials", flag.ContinueOnError)
	casesPath := fs.String("cases", "", "JSON file of test cases")
	k := fs.Int("k", 1, "runs per case (1-20)")
	path, err := documentArg(fs, args)
	if err != nil {
		return err
	}
	if *casesPath == "" {
		return errors.New("trials needs -cases")
	}
	raw, err := os.ReadFile(*casesPath)
	if err != nil {
		return err
	}
	var cases []runner.Case
	if err := json.Unmarshal(raw, &cases); err != nil {
		return fmt.Errorf("decode %s: %w", *casesPath, err)
	}

	ctx := context.Background()
	ws, p, err := loadDocument(ctx, path)
	if err != nil {
		return err
	}
	rep, err := ws.Trials(ctx, p.ID, cases, *k)
	if err != nil {
		return err
	}
	if err := writeJSON(rep); err != nil {
		return err
	}
	if !rep.OK() {
		return errTrialsFailed
	}
	return nil
}
