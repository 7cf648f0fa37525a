package scripting

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/telltail/conmem/pkg/log"
)

// blockedGlobals are the base-library entry points that would let a hook
// script reach the filesystem, the process environment, or arbitrary
// code loading. They are nil'd both in _G and as globals.
var blockedGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"os",
	"io",
	"require",
	"package",
}

// safeLibs are reopened after the teardown so scripts keep the pure
// computation helpers.
var safeLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.StringLibName, lua.OpenString},
	{lua.TabLibName, lua.OpenTable},
	{lua.MathLibName, lua.OpenMath},
}

// setupSandbox strips the dangerous parts of the standard environment
// and rewires print to the structured logger.
func setupSandbox(L *lua.LState) {
	L.OpenLibs()

	if g, ok := L.Get(-1).(*lua.LTable); ok {
		for _, name := range blockedGlobals {
			g.RawSetString(name, lua.LNil)
		}
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	for _, lib := range safeLibs {
		L.Push(lua.LString(lib.name))
		lib.open(L)
		L.SetGlobal(lib.name, L.Get(-1))
		L.Pop(1)
	}

	L.SetGlobal("print", L.NewFunction(safePrint))
}

// safePrint redirects Lua's print to the logger.
func safePrint(L *lua.LState) int {
	top := L.GetTop()
	args := make([]interface{}, top)
	for i := 1; i <= top; i++ {
		args[i-1] = convertLuaToGo(L.Get(i))
	}
	log.Debug("Lua print", "args", args)
	return 0
}
