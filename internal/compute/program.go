package compute

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Source is kernel program text. Build-time constants are injected by prefixing
// "#define NAME value" lines, the same textual concatenation a host program
// performs before handing source to a driver.
type Source struct {
	Name string
	Text string
}

// NewSource wraps program text. name is used in build diagnostics.
func NewSource(name, text string) Source {
	return Source{Name: name, Text: text}
}

// WithDefine returns a copy of s prefixed with "#define name value".
func (s Source) WithDefine(name string, value int) Source {
	s.Text = fmt.Sprintf("#define %s %d\n", name, value) + s.Text
	return s
}

// Constants are the integer macros defined in a program.
type Constants map[string]int

// Int returns the named constant; Build guarantees required constants exist.
func (c Constants) Int(name string) int {
	return c[name]
}

// ParamKind distinguishes buffer and scalar kernel parameters.
type ParamKind int

const (
	ParamBuffer ParamKind = iota
	ParamScalar
)

// Access is the way a kernel uses a buffer parameter.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessReadWrite
)

// Param describes one kernel parameter.
type Param struct {
	Name   string
	Kind   ParamKind
	Elem   ElementType
	Access Access
}

func In(name string, elem ElementType) Param {
	return Param{Name: name, Kind: ParamBuffer, Elem: elem, Access: AccessRead}
}

func Out(name string, elem ElementType) Param {
	return Param{Name: name, Kind: ParamBuffer, Elem: elem, Access: AccessWrite}
}

func InOut(name string, elem ElementType) Param {
	return Param{Name: name, Kind: ParamBuffer, Elem: elem, Access: AccessReadWrite}
}

// Scalar is a uint parameter.
func Scalar(name string) Param {
	return Param{Name: name, Kind: ParamScalar, Elem: Uint32}
}

// LocalDecl is one work-group local array.
type LocalDecl struct {
	Elem ElementType
	Len  int
}

func (d LocalDecl) bytes() int64 {
	return int64(d.Len) * d.Elem.Size()
}

// KernelFunc is the body executed once per work-item.
type KernelFunc func(it *WorkItem, args Args)

// KernelDef is the device implementation of a kernel declared in program text.
type KernelDef struct {
	Name   string
	Params []Param
	// Requires lists the build-time constants the kernel reads.
	Requires []string
	// Barriers must be set when the body calls WorkItem.Barrier.
	Barriers bool
	// Local declares the work-group local arrays for the given constants.
	Local func(c Constants) []LocalDecl
	// Build specializes the body for the given constants.
	Build func(c Constants) (KernelFunc, error)
}

// Registry maps kernel names to device implementations. A name may carry
// several implementations that differ in the build-time constants they require;
// Build picks the one whose constants the kernel code uses.
type Registry struct {
	mu   sync.RWMutex
	defs map[string][]KernelDef
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string][]KernelDef)}
}

// Register adds def. Two implementations of one name must require different
// constant sets.
func (r *Registry) Register(def KernelDef) error {
	if def.Name == "" {
		return fmt.Errorf("kernel definition has no name")
	}
	if def.Build == nil {
		return fmt.Errorf("kernel %q has no body", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.defs[def.Name] {
		if sameConstants(existing.Requires, def.Requires) {
			return fmt.Errorf("kernel %q already registered for constants %v", def.Name, def.Requires)
		}
	}
	defs := append(r.defs[def.Name], def)
	sort.SliceStable(defs, func(i, j int) bool {
		return len(defs[i].Requires) > len(defs[j].Requires)
	})
	r.defs[def.Name] = defs
	return nil
}

// MustRegister is Register for package initialization.
func (r *Registry) MustRegister(defs ...KernelDef) *Registry {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the implementations registered under name, most specific first.
func (r *Registry) Lookup(name string) []KernelDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]KernelDef(nil), r.defs[name]...)
}

// Names returns the registered kernel names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sameConstants(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			return false
		}
	}
	return true
}

// resolve picks the implementation whose required constants the kernel code
// refers to, trying the most specific first. When none matches, the least
// specific one is returned.
func resolve(candidates []KernelDef, code string) KernelDef {
	for _, def := range candidates {
		ok := true
		for _, req := range def.Requires {
			if !referencesIdent(code, req) {
				ok = false
				break
			}
		}
		if ok {
			return def
		}
	}
	return candidates[len(candidates)-1]
}

func referencesIdent(code, ident string) bool {
	for i := 0; ; {
		j := strings.Index(code[i:], ident)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(ident)
		if (start == 0 || !isIdentByte(code[start-1])) && (end == len(code) || !isIdentByte(code[end])) {
			return true
		}
		i = end
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

var (
	kernelDecl   = regexp.MustCompile(`(?:__kernel|\bkernel)\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	directive    = regexp.MustCompile(`(?m)^[ \t]*#.*$`)
)

type builtKernel struct {
	def   KernelDef
	fn    KernelFunc
	local []LocalDecl
}

// Program is source text built for the context's device.
type Program struct {
	ctx    *Context
	source Source

	mu        sync.Mutex
	built     bool
	log       string
	constants Constants
	kernels   map[string]builtKernel
}

func (c *Context) CreateProgram(src Source) *Program {
	return &Program{ctx: c, source: src}
}

func (p *Program) Source() Source { return p.source }

// BuildLog returns the diagnostics of the last Build.
func (p *Program) BuildLog() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.log
}

// Constants returns a copy of the macros defined by the program.
func (p *Program) Constants() Constants {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(Constants, len(p.constants))
	for k, v := range p.constants {
		out[k] = v
	}
	return out
}

// KernelNames returns the kernels of the built program, sorted by name.
func (p *Program) KernelNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.kernels))
	for name := range p.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build compiles the program for the context's device. On failure the returned
// error is a BuildProgramFailure whose Log holds one diagnostic per line.
func (p *Program) Build() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	const op = "BuildProgram"
	if !p.ctx.device.Info().CompilerAvailable {
		return newError(CodeBuildProgramFailure, op, "no compiler available for %s", p.ctx.device.Name())
	}

	name := p.source.Name
	if name == "" {
		name = "<source>"
	}
	var diags []string
	diag := func(line int, format string, args ...any) {
		diags = append(diags, fmt.Sprintf("%s:%d: error: %s", name, line, fmt.Sprintf(format, args...)))
	}

	text := stripComments(p.source.Text)
	constants := parseDefines(text, diag)
	code := directive.ReplaceAllString(text, "")

	kernels := make(map[string]builtKernel)
	matches := kernelDecl.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		diag(1, "no kernel functions declared")
	}
	for _, m := range matches {
		kname := text[m[2]:m[3]]
		line := 1 + strings.Count(text[:m[0]], "\n")
		params := splitParams(text[m[4]:m[5]])

		if _, dup := kernels[kname]; dup {
			diag(line, "redefinition of kernel '%s'", kname)
			continue
		}
		candidates := p.ctx.registry.Lookup(kname)
		if len(candidates) == 0 {
			diag(line, "no device implementation for kernel '%s'", kname)
			continue
		}
		def := resolve(candidates, code)
		if len(params) != len(def.Params) {
			diag(line, "kernel '%s' declares %d parameters, device implementation takes %d",
				kname, len(params), len(def.Params))
			continue
		}
		missing := false
		for _, req := range def.Requires {
			v, ok := constants[req]
			switch {
			case !ok:
				diag(line, "use of undeclared identifier '%s'", req)
				missing = true
			case v <= 0:
				diag(line, "'%s' must be a positive integer, got %d", req, v)
				missing = true
			}
		}
		if missing {
			continue
		}
		fn, err := def.Build(constants)
		if err != nil {
			diag(line, "%s", err)
			continue
		}
		var local []LocalDecl
		if def.Local != nil {
			local = def.Local(constants)
		}
		kernels[kname] = builtKernel{def: def, fn: fn, local: local}
	}

	p.log = strings.Join(diags, "\n")
	if len(diags) > 0 {
		p.built = false
		p.kernels = nil
		e := newError(CodeBuildProgramFailure, op, "build of %s failed for %s", name, p.ctx.device.Name())
		e.Log = p.log
		return e
	}
	p.built = true
	p.constants = constants
	p.kernels = kernels
	p.ctx.logger.Debug("program built")
	return nil
}

// CreateKernel returns a fresh kernel object with no arguments set.
func (p *Program) CreateKernel(name string) (*Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.built {
		return nil, newError(CodeInvalidValue, "CreateKernel", "program %s is not built", p.source.Name)
	}
	bk, ok := p.kernels[name]
	if !ok {
		return nil, newError(CodeInvalidKernelName, "CreateKernel", "no kernel named '%s' in %s", name, p.source.Name)
	}
	return &Kernel{
		ctx:   p.ctx,
		def:   bk.def,
		fn:    bk.fn,
		local: bk.local,
		args:  make([]any, len(bk.def.Params)),
	}, nil
}

func stripComments(text string) string {
	// Comments are replaced by their newlines so line numbers survive.
	text = blockComment.ReplaceAllStringFunc(text, func(c string) string {
		return strings.Repeat("\n", strings.Count(c, "\n"))
	})
	return lineComment.ReplaceAllString(text, "")
}

func parseDefines(text string, diag func(int, string, ...any)) Constants {
	constants := make(Constants)
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(line[1:]))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "define":
			if len(fields) < 2 {
				diag(i+1, "macro name missing")
				continue
			}
			if len(fields) < 3 {
				// Flag macros carry no value.
				continue
			}
			v, err := strconv.Atoi(strings.Join(fields[2:], ""))
			if err != nil {
				continue
			}
			if prev, ok := constants[fields[1]]; ok && prev != v {
				diag(i+1, "'%s' macro redefined (%d, previously %d)", fields[1], v, prev)
				continue
			}
			constants[fields[1]] = v
		case "include":
			diag(i+1, "'%s' file not found", strings.Trim(strings.Join(fields[1:], " "), `"<>`))
		}
	}
	return constants
}

func splitParams(list string) []string {
	var params []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" && p != "void" {
			params = append(params, p)
		}
	}
	return params
}
