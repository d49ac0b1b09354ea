// Package script executes Lua batch scripts in a sandboxed environment. A
// script defines a `batch` function and drives the same dispatcher the CLI
// uses, which makes per-directory command lists, conditional re-dispatch and
// custom reporting expressible without new flags.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/mpataki/dtm/internal/dispatch"
	"github.com/mpataki/dtm/internal/logging"
	"github.com/mpataki/dtm/internal/models"
	"github.com/mpataki/dtm/internal/pathlist"
	"github.com/mpataki/dtm/internal/report"
)

// Runtime executes one Lua batch script.
type Runtime struct {
	dispatcher *dispatch.Dispatcher
	log        *logging.Logger

	// results accumulates every task result produced by execute/dispatch
	// calls, in call order, so write_report() can render them all.
	results []models.TaskResult

	failReason string
	failed     bool
}

func NewRuntime(dispatcher *dispatch.Dispatcher, log *logging.Logger) *Runtime {
	if log == nil {
		log = logging.Discard()
	}
	return &Runtime{dispatcher: dispatcher, log: log}
}

// IsScript checks if a file is a Lua batch script.
func IsScript(path string) bool {
	return filepath.Ext(path) == ".lua"
}

// Execute runs the script's `batch` function.
func (r *Runtime) Execute(scriptPath string) error {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	defer L.Close()

	r.openSafeLibs(L)
	r.registerAPI(L)

	if err := L.DoString(string(src)); err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}

	batch := L.GetGlobal("batch")
	if batch == lua.LNil {
		return fmt.Errorf("script must define a 'batch' function")
	}

	L.Push(batch)
	if err := L.PCall(0, 0, nil); err != nil {
		if r.failed {
			return fmt.Errorf("batch failed: %s", r.failReason)
		}
		return fmt.Errorf("batch execution failed: %w", err)
	}

	if r.failed {
		return fmt.Errorf("batch failed: %s", r.failReason)
	}

	return nil
}

// Results returns every task result produced so far, in call order.
func (r *Runtime) Results() []models.TaskResult {
	return r.results
}

// openSafeLibs loads only the safe standard libraries
func (r *Runtime) openSafeLibs(L *lua.LState) {
	// Base library (pairs, ipairs, type, tostring, tonumber, error, etc.)
	// But we'll be selective about what we expose
	lua.OpenBase(L)

	// Remove dangerous base functions
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// registerAPI registers the dtm-specific API functions
func (r *Runtime) registerAPI(L *lua.LState) {
	L.SetGlobal("execute", L.NewFunction(r.luaExecute))
	L.SetGlobal("dispatch", L.NewFunction(r.luaDispatch))
	L.SetGlobal("paths_from", L.NewFunction(r.luaPathsFrom))
	L.SetGlobal("write_report", L.NewFunction(r.luaWriteReport))
	L.SetGlobal("fail", L.NewFunction(r.luaFail))
	L.SetGlobal("log", L.NewFunction(r.luaLog))
}

// luaExecute implements execute{command=..., dir=..., shell=..., capture=...,
// timeout=..., env={...}} and returns one result table.
func (r *Runtime) luaExecute(L *lua.LState) int {
	tbl := L.CheckTable(1)

	spec := models.TaskSpec{
		Command: stringField(L, tbl, "command", ""),
		WorkDir: stringField(L, tbl, "dir", ""),
		Shell:   boolField(L, tbl, "shell"),
		Env:     envField(L, tbl),
		Timeout: timeoutField(L, tbl),
		Output:  models.OutputLogFile,
	}
	if boolField(L, tbl, "capture") {
		spec.Output = models.OutputCapture
	}
	if spec.Command == "" {
		L.RaiseError("execute requires a command")
		return 0
	}

	results, err := r.dispatcher.Run(spec.Command, []string{spec.WorkDir}, dispatch.Options{
		Workers: 1,
		Shell:   spec.Shell,
		Env:     spec.Env,
		Capture: spec.Output == models.OutputCapture,
		Timeout: spec.Timeout,
	})
	if err != nil {
		L.RaiseError("execute failed: %v", err)
		return 0
	}

	r.results = append(r.results, results...)
	L.Push(r.resultToTable(L, results[0]))
	return 1
}

// luaDispatch implements dispatch{command=... | commands={...}, paths={...},
// workers=..., shell=..., capture=..., timeout=..., env={...}} and returns an
// array of result tables in path order.
func (r *Runtime) luaDispatch(L *lua.LState) int {
	tbl := L.CheckTable(1)

	var commands []string
	if cmd := stringField(L, tbl, "command", ""); cmd != "" {
		commands = []string{cmd}
	} else {
		commands = stringsField(L, tbl, "commands")
	}
	paths := stringsField(L, tbl, "paths")

	if len(commands) == 0 {
		L.RaiseError("dispatch requires command or commands")
		return 0
	}
	if len(paths) == 0 {
		L.RaiseError("dispatch requires paths")
		return 0
	}

	opts := dispatch.Options{
		Workers: intField(L, tbl, "workers", 0),
		Shell:   boolField(L, tbl, "shell"),
		Env:     envField(L, tbl),
		Capture: boolField(L, tbl, "capture"),
		Timeout: timeoutField(L, tbl),
	}

	results, err := r.dispatcher.Dispatch(commands, paths, opts)
	if err != nil {
		L.RaiseError("dispatch failed: %v", err)
		return 0
	}

	r.results = append(r.results, results...)

	out := L.NewTable()
	for i, res := range results {
		L.SetTable(out, lua.LNumber(i+1), r.resultToTable(L, res))
	}
	L.Push(out)
	return 1
}

// luaPathsFrom implements paths_from(filename), reading a path-list file.
func (r *Runtime) luaPathsFrom(L *lua.LState) int {
	filename := L.CheckString(1)

	paths, err := pathlist.Parse(filename)
	if err != nil {
		L.RaiseError("paths_from failed: %v", err)
		return 0
	}

	tbl := L.NewTable()
	for i, p := range paths {
		L.SetTable(tbl, lua.LNumber(i+1), lua.LString(p))
	}
	L.Push(tbl)
	return 1
}

// luaWriteReport implements write_report(dir?), rendering status.txt and
// failed_paths.txt from every result produced so far.
func (r *Runtime) luaWriteReport(L *lua.LState) int {
	dir := L.OptString(1, ".")

	w := report.NewWriter(dir, r.log)
	if err := w.Write(r.results); err != nil {
		L.RaiseError("write_report failed: %v", err)
		return 0
	}
	return 0
}

// luaFail implements the fail(reason?) API
func (r *Runtime) luaFail(L *lua.LState) int {
	reason := L.OptString(1, "batch failed")
	r.failReason = reason
	r.failed = true
	// Raise an error to stop execution
	L.RaiseError("fail: %s", reason)
	return 0
}

// luaLog implements the log(message) API
func (r *Runtime) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	r.log.Infof("%s", message)
	return 0
}

// resultToTable converts a TaskResult to a Lua table
func (r *Runtime) resultToTable(L *lua.LState, res models.TaskResult) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "pid", lua.LNumber(res.PID))
	L.SetField(tbl, "ppid", lua.LNumber(res.PPID))
	L.SetField(tbl, "path", lua.LString(res.WorkDir))
	L.SetField(tbl, "returncode", lua.LNumber(res.ExitCode))
	L.SetField(tbl, "status", lua.LString(res.Status))
	L.SetField(tbl, "output", lua.LString(res.Output))
	L.SetField(tbl, "msg", lua.LString(res.Message))
	return tbl
}

func stringField(L *lua.LState, tbl *lua.LTable, key, fallback string) string {
	v := L.GetField(tbl, key)
	if v == lua.LNil {
		return fallback
	}
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	L.RaiseError("%s must be a string", key)
	return fallback
}

func boolField(L *lua.LState, tbl *lua.LTable, key string) bool {
	v := L.GetField(tbl, key)
	if b, ok := v.(lua.LBool); ok {
		return bool(b)
	}
	return false
}

func intField(L *lua.LState, tbl *lua.LTable, key string, fallback int) int {
	v := L.GetField(tbl, key)
	if n, ok := v.(lua.LNumber); ok {
		return int(n)
	}
	return fallback
}

func timeoutField(L *lua.LState, tbl *lua.LTable) time.Duration {
	v := L.GetField(tbl, "timeout")
	if n, ok := v.(lua.LNumber); ok {
		return time.Duration(float64(n) * float64(time.Second))
	}
	return 0
}

func stringsField(L *lua.LState, tbl *lua.LTable, key string) []string {
	v := L.GetField(tbl, key)
	list, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}

	var out []string
	list.ForEach(func(_, item lua.LValue) {
		if s, ok := item.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}

func envField(L *lua.LState, tbl *lua.LTable) map[string]string {
	v := L.GetField(tbl, "env")
	envTbl, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}

	env := make(map[string]string)
	envTbl.ForEach(func(k, item lua.LValue) {
		key, kok := k.(lua.LString)
		val, vok := item.(lua.LString)
		if kok && vok {
			env[string(key)] = string(val)
		}
	})
	return env
}
