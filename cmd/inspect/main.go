package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/propbridge/host"
	"github.com/wippyai/propbridge/host/schema"
	"github.com/wippyai/propbridge/memory"
	"github.com/wippyai/propbridge/translator"
)

func main() {
	var (
		schemaFile  = flag.String("schema", "", "Path to YAML schema")
		className   = flag.String("class", "", "Class to instantiate as obj (optional)")
		scriptFile  = flag.String("script", "", "Starlark script to run (optional)")
		pages       = flag.Uint("pages", 0, "Memory limit in 64KB pages (0 = default)")
		verbose     = flag.Bool("v", false, "Log bridge activity to stderr")
		list        = flag.Bool("list", false, "List schema types and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *schemaFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: inspect -schema <types.yaml> [-class Name] [-script file.star]")
		fmt.Fprintln(os.Stderr, "       inspect -schema <types.yaml> -list")
		fmt.Fprintln(os.Stderr, "       inspect -schema <types.yaml> -class Name -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			host.SetLogger(l)
			translator.SetLogger(l)
			defer func() { _ = l.Sync() }()
		}
	}

	if err := run(*schemaFile, *className, *scriptFile, uint32(*pages), *list, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session owns the memory, host system and script environment for one run.
type session struct {
	lin    *memory.Linear
	heap   *memory.Heap
	sys    *host.System
	env    *translator.Env
	schema *schema.Schema
}

func newSession(ctx context.Context, schemaFile string, pages uint32) (*session, error) {
	lin, err := memory.New(ctx, memory.Config{MemoryLimitPages: pages})
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}
	heap := memory.NewHeap(lin.Memory(), lin)
	sys := host.NewSystem(lin.Memory(), heap)

	sc, err := schema.LoadFile(sys.Registry, schemaFile)
	if err != nil {
		lin.Close(ctx)
		return nil, fmt.Errorf("load schema: %w", err)
	}

	env, err := translator.NewEnv(sys, translator.DefaultOptions())
	if err != nil {
		lin.Close(ctx)
		return nil, fmt.Errorf("create env: %w", err)
	}
	return &session{lin: lin, heap: heap, sys: sys, env: env, schema: sc}, nil
}

func (s *session) Close(ctx context.Context) {
	s.env.Close()
	s.lin.Close(ctx)
}

// target is a named object whose properties get printed or edited.
type target struct {
	name string
	obj  *translator.Object
}

func run(schemaFile, className, scriptFile string, pages uint32, listOnly, interactive bool) error {
	ctx := context.Background()

	s, err := newSession(ctx, schemaFile, pages)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if listOnly {
		printSchema(s.sys.Registry)
		return nil
	}

	globals := starlark.StringDict{}
	if className != "" {
		class, ok := s.sys.Registry.Class(className)
		if !ok {
			return fmt.Errorf("unknown class %q", className)
		}
		obj, err := s.env.NewObject(class)
		if err != nil {
			return fmt.Errorf("create %s: %w", className, err)
		}
		s.env.Define("obj", obj)
		globals["obj"] = obj
	}

	if scriptFile != "" {
		g, err := s.env.Exec(scriptFile, nil)
		if err != nil {
			return fmt.Errorf("run %s: %w", scriptFile, err)
		}
		for k, v := range g {
			globals[k] = v
		}
	}

	targets := collectTargets(globals)

	if interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		if len(targets) == 0 {
			return fmt.Errorf("nothing to inspect: pass -class or a script that creates objects")
		}
		return runInteractive(s, schemaFile, targets, globals)
	}

	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	for _, t := range targets {
		printObject(t, width)
	}
	fmt.Printf("\nHeap: %d live blocks, %d bytes\n", s.heap.Live(), s.heap.InUse())
	return nil
}

// collectTargets returns every object among globals, obj first.
func collectTargets(globals starlark.StringDict) []target {
	var out []target
	for name, v := range globals {
		if obj, ok := v.(*translator.Object); ok {
			out = append(out, target{name: name, obj: obj})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].name == "obj") != (out[j].name == "obj") {
			return out[i].name == "obj"
		}
		return out[i].name < out[j].name
	})
	return out
}

func printSchema(reg *host.Registry) {
	for _, e := range reg.Enums() {
		fmt.Printf("enum %s\n", e.Name())
	}
	for _, c := range reg.Classes() {
		header := "class " + c.Name()
		if sup := c.Super(); sup != nil {
			header += " : " + sup.Name()
		}
		fmt.Printf("%s (%d bytes)\n", header, c.Size())
		for _, f := range c.Fields() {
			fmt.Printf("  %-16s %-24s @%d\n", f.Name, f.Type.String(), f.Offset)
		}
		for _, name := range c.FunctionNames() {
			fn, _ := c.Function(name)
			fmt.Printf("  %s%s\n", name, fn.Sig.String())
		}
	}
	if missing := reg.Undefined(); len(missing) > 0 {
		fmt.Printf("declared but undefined: %s\n", strings.Join(missing, ", "))
	}
}

func printObject(t target, width int) {
	fmt.Printf("%s = %s\n", t.name, t.obj.String())
	for _, p := range properties(t.obj) {
		line := fmt.Sprintf("  %-16s %-24s = %s", p.name, p.typeStr, p.value)
		if width > 0 && len(line) > width {
			line = line[:width-1] + "…"
		}
		fmt.Println(line)
	}
}

type property struct {
	name    string
	typeStr string
	value   string
	err     error
}

// properties reads every field of obj through its wrapper.
func properties(obj *translator.Object) []property {
	class := obj.Class()
	var out []property
	for _, f := range class.Fields() {
		p := property{name: f.Name, typeStr: f.Type.String()}
		v, err := obj.Attr(f.Name)
		switch {
		case err != nil:
			p.err = err
			p.value = "error: " + err.Error()
		case v == nil:
			p.value = "<unset>"
		default:
			p.value = v.String()
		}
		out = append(out, p)
	}
	return out
}
