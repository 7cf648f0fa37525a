package scripting

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/telltail/conmem/pkg/log"
)

// registerAPIFunctions registers Go functions that are available to Lua scripts.
func registerAPIFunctions(L *lua.LState) {
	// Create a conmem table
	conmem := L.NewTable()

	// Log function
	L.SetField(conmem, "log", L.NewFunction(apiLog))

	// Current time function
	L.SetField(conmem, "now", L.NewFunction(apiNow))

	// Format time function
	L.SetField(conmem, "format_time", L.NewFunction(apiFormatTime))

	// UUID generation
	L.SetField(conmem, "uuid", L.NewFunction(apiUUID))

	// JSON encoding/decoding
	L.SetField(conmem, "json_encode", L.NewFunction(apiJSONEncode))
	L.SetField(conmem, "json_decode", L.NewFunction(apiJSONDecode))

	// Register the conmem table in the global namespace
	L.SetGlobal("conmem", conmem)
}

// apiLog is a function to log messages from Lua
func apiLog(L *lua.LState) int {
	level := L.CheckString(1)
	message := L.CheckString(2)

	switch level {
	case "debug":
		log.Debug("Lua script message", "message", message)
	case "info":
		log.Info("Lua script message", "message", message)
	case "warn", "warning":
		log.Warn("Lua script message", "message", message)
	case "error":
		log.Error("Lua script message", "message", message)
	default:
		log.Info("Lua script message", "message", message)
	}

	return 0
}

// apiNow returns the current time as a Unix timestamp
func apiNow(L *lua.LState) int {
	L.Push(lua.LNumber(time.Now().Unix()))
	return 1
}

// apiFormatTime formats a Unix timestamp as a string
func apiFormatTime(L *lua.LState) int {
	timestamp := L.CheckNumber(1)
	format := L.OptString(2, time.RFC3339)

	t := time.Unix(int64(timestamp), 0).UTC()
	L.Push(lua.LString(t.Format(format)))
	return 1
}

// apiUUID generates a UUID string
func apiUUID(L *lua.LState) int {
	L.Push(lua.LString(uuid.New().String()))
	return 1
}

// apiJSONEncode encodes a Lua value to a JSON string
func apiJSONEncode(L *lua.LState) int {
	value := L.CheckAny(1)

	data, err := json.Marshal(convertLuaToGo(value))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	L.Push(lua.LString(data))
	return 1
}

// apiJSONDecode decodes a JSON string to a Lua value
func apiJSONDecode(L *lua.LState) int {
	jsonStr := L.CheckString(1)

	var value interface{}
	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	L.Push(convertGoToLua(L, value))
	return 1
}
