package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLuaEngine_LoadScript(t *testing.T) {
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	defer engine.Close()

	// Test loading a valid script
	err = engine.LoadScript("test", []byte(`
		function hello()
			return "Hello, World!"
		end
	`))
	assert.NoError(t, err)

	// Test loading an invalid script
	err = engine.LoadScript("invalid", []byte(`
		function invalid(
			return "This is not valid Lua"
		end
	`))
	assert.Error(t, err)
}

func TestLuaEngine_ExecuteFunction(t *testing.T) {
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	defer engine.Close()

	err = engine.LoadScript("test", []byte(`
		function hello()
			return "Hello, World!"
		end

		function add(a, b)
			return a + b
		end

		function get_table()
			return {
				name = "test",
				value = 123,
				nested = {
					key = "value"
				}
			}
		end

		function use_args(args)
			return args.name .. " is " .. args.age
		end
	`))
	require.NoError(t, err)

	t.Run("string return", func(t *testing.T) {
		result, err := engine.ExecuteFunction(context.Background(), "hello")
		assert.NoError(t, err)
		assert.Equal(t, "Hello, World!", result)
	})

	t.Run("with arguments", func(t *testing.T) {
		result, err := engine.ExecuteFunction(context.Background(), "add", 5, 3)
		assert.NoError(t, err)
		assert.Equal(t, float64(8), result)
	})

	t.Run("table return", func(t *testing.T) {
		result, err := engine.ExecuteFunction(context.Background(), "get_table")
		assert.NoError(t, err)

		resultMap, ok := result.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "test", resultMap["name"])
		assert.Equal(t, float64(123), resultMap["value"])

		nestedMap, ok := resultMap["nested"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "value", nestedMap["key"])
	})

	t.Run("map argument", func(t *testing.T) {
		args := map[string]interface{}{
			"name": "John",
			"age":  30,
		}
		result, err := engine.ExecuteFunction(context.Background(), "use_args", args)
		assert.NoError(t, err)
		assert.Equal(t, "John is 30", result)
	})

	t.Run("non-existent function", func(t *testing.T) {
		_, err := engine.ExecuteFunction(context.Background(), "nonexistent")
		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrFunctionNotFound)
	})
}

func TestLuaEngine_Sandboxing(t *testing.T) {
	engine, err := NewLuaEngine(Config{
		EnableSandboxing: true,
		ScriptTimeoutMs:  1000,
	})
	require.NoError(t, err)
	defer engine.Close()

	err = engine.LoadScript("sandbox", []byte(`
		function test_os()
			return os == nil
		end

		function test_io()
			return io == nil
		end

		function test_require()
			return require == nil
		end
	`))
	require.NoError(t, err)

	result, err := engine.ExecuteFunction(context.Background(), "test_os")
	assert.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = engine.ExecuteFunction(context.Background(), "test_io")
	assert.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = engine.ExecuteFunction(context.Background(), "test_require")
	assert.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestLuaEngine_LoadScriptFile(t *testing.T) {
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	defer engine.Close()

	path := filepath.Join(t.TempDir(), "file_test.lua")
	require.NoError(t, os.WriteFile(path, []byte(`
		function file_test()
			return "loaded from file"
		end
	`), 0644))

	require.NoError(t, engine.LoadScriptFile(path))

	result, err := engine.ExecuteFunction(context.Background(), "file_test")
	assert.NoError(t, err)
	assert.Equal(t, "loaded from file", result)
}

func TestLuaEngine_LoadScriptDir(t *testing.T) {
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	defer engine.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.lua"), []byte(`
		function script1_test()
			return "one"
		end
	`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.lua"), []byte(`
		function script2_test()
			return "two"
		end
	`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not lua"), 0644))

	require.NoError(t, engine.LoadScriptDir(dir))

	result, err := engine.ExecuteFunction(context.Background(), "script1_test")
	assert.NoError(t, err)
	assert.Equal(t, "one", result)

	result, err = engine.ExecuteFunction(context.Background(), "script2_test")
	assert.NoError(t, err)
	assert.Equal(t, "two", result)
}

func TestLuaEngine_CloseRejectsCalls(t *testing.T) {
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	assert.Error(t, engine.LoadScript("late", []byte(`x = 1`)))
	_, err = engine.ExecuteFunction(context.Background(), "anything")
	assert.Error(t, err)
}
