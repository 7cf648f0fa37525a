package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/telltail/conmem/pkg/errors"
	"github.com/telltail/conmem/pkg/log"
)

// ErrFunctionNotFound is returned when the named Lua function does not
// exist in any loaded script.
var ErrFunctionNotFound = errors.New("lua function not found")

// LuaEngine implements the Engine interface on a single gopher-lua
// state. The state is not safe for concurrent use, so every call is
// serialized through a mutex.
type LuaEngine struct {
	mu     sync.Mutex
	state  *lua.LState
	config Config
	closed bool
}

// NewLuaEngine creates a new engine with the given configuration.
func NewLuaEngine(config Config) (*LuaEngine, error) {
	state := lua.NewState(lua.Options{SkipOpenLibs: config.EnableSandboxing})

	if config.EnableSandboxing {
		setupSandbox(state)
	} else {
		state.OpenLibs()
	}
	registerAPIFunctions(state)

	log.Debug("Initialized Lua scripting engine",
		"sandboxed", config.EnableSandboxing,
		"timeout_ms", config.ScriptTimeoutMs,
	)

	return &LuaEngine{
		state:  state,
		config: config,
	}, nil
}

// LoadScript loads a Lua script with the given name and content.
func (e *LuaEngine) LoadScript(name string, content []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("scripting engine is closed")
	}

	fn, err := e.state.Load(strings.NewReader(string(content)), name)
	if err != nil {
		return errors.Wrap(errors.ErrLuaExecution, "failed to load script %s: %v", name, err)
	}
	e.state.Push(fn)
	if err := e.state.PCall(0, lua.MultRet, nil); err != nil {
		return errors.Wrap(errors.ErrLuaExecution, "failed to run script %s: %v", name, err)
	}

	log.Debug("Loaded Lua script", "name", name, "bytes", len(content))
	return nil
}

// LoadScriptFile loads a Lua script from a file path.
func (e *LuaEngine) LoadScriptFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script file %s: %w", path, err)
	}
	return e.LoadScript(filepath.Base(path), content)
}

// LoadScriptDir loads all .lua files from a directory.
func (e *LuaEngine) LoadScriptDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read script directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		if err := e.LoadScriptFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteFunction calls a previously loaded Lua function. Execution is
// bounded by the configured timeout and by ctx.
func (e *LuaEngine) ExecuteFunction(ctx context.Context, funcName string, args ...interface{}) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("scripting engine is closed")
	}

	fn := e.state.GetGlobal(funcName)
	if fn == lua.LNil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, funcName)
	}
	lfn, ok := fn.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a function", ErrFunctionNotFound, funcName)
	}

	if e.config.ScriptTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.config.ScriptTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	e.state.SetContext(ctx)
	defer e.state.RemoveContext()

	luaArgs := make([]lua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = convertGoToLua(e.state, arg)
	}

	if err := e.state.CallByParam(lua.P{
		Fn:      lfn,
		NRet:    1,
		Protect: true,
	}, luaArgs...); err != nil {
		return nil, errors.Wrap(errors.ErrLuaExecution, "error executing %s: %v", funcName, err)
	}

	result := e.state.Get(-1)
	e.state.Pop(1)

	return convertLuaToGo(result), nil
}

// Close releases the Lua state.
func (e *LuaEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.state.Close()
	return nil
}

// convertGoToLua converts a Go value to its Lua equivalent.
func convertGoToLua(L *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []interface{}:
		table := L.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, convertGoToLua(L, item))
		}
		return table
	case []string:
		table := L.NewTable()
		for i, item := range v {
			table.RawSetInt(i+1, lua.LString(item))
		}
		return table
	case map[string]interface{}:
		table := L.NewTable()
		for key, item := range v {
			table.RawSetString(key, convertGoToLua(L, item))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// convertLuaToGo converts a Lua value to its Go equivalent. Tables with
// contiguous integer keys become slices, everything else becomes maps.
func convertLuaToGo(value lua.LValue) interface{} {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		maxIndex := v.MaxN()
		if maxIndex > 0 {
			slice := make([]interface{}, 0, maxIndex)
			for i := 1; i <= maxIndex; i++ {
				slice = append(slice, convertLuaToGo(v.RawGetInt(i)))
			}
			return slice
		}
		result := make(map[string]interface{})
		v.ForEach(func(key, item lua.LValue) {
			result[fmt.Sprintf("%v", convertLuaToGo(key))] = convertLuaToGo(item)
		})
		return result
	default:
		return fmt.Sprintf("%v", v)
	}
}

var _ Engine = (*LuaEngine)(nil)
