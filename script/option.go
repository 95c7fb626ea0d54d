package script

import (
	"strings"

	"github.com/yaoapp/kun/log"
	lua "github.com/yuin/gopher-lua"
)

// DefaultLibraries the standard libraries opened when none are configured.
// package, io, os, debug and channel reach outside the session and are never opened by default.
var DefaultLibraries = []string{"base", "table", "string", "math", "coroutine"}

var libraries = map[string]struct {
	name string
	open lua.LGFunction
}{
	"package":   {lua.LoadLibName, lua.OpenPackage},
	"base":      {lua.BaseLibName, lua.OpenBase},
	"table":     {lua.TabLibName, lua.OpenTable},
	"string":    {lua.StringLibName, lua.OpenString},
	"math":      {lua.MathLibName, lua.OpenMath},
	"coroutine": {lua.CoroutineLibName, lua.OpenCoroutine},
	"os":        {lua.OsLibName, lua.OpenOs},
	"io":        {lua.IoLibName, lua.OpenIo},
	"debug":     {lua.DebugLibName, lua.OpenDebug},
	"channel":   {lua.ChannelLibName, lua.OpenChannel},
}

// Validate the option
func (option *Option) Validate() {

	if option.Libraries == nil {
		option.Libraries = DefaultLibraries
	}

	libs := []string{}
	for _, name := range option.Libraries {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, has := libraries[name]; !has {
			log.Warn("[script] the library %s does not exist, ignored", name)
			continue
		}
		libs = append(libs, name)
	}
	option.Libraries = libs

	if option.MaxDepth == 0 {
		option.MaxDepth = 64
	}

	if option.MaxDepth < 0 {
		log.Warn("[script] the maxDepth value should be positive, use 64")
		option.MaxDepth = 64
	}

	if option.MaxDepth > 1024 {
		log.Warn("[script] the maximum value of maxDepth is 1024")
		option.MaxDepth = 1024
	}

	if option.CacheSize < 0 {
		log.Warn("[script] the cacheSize value should not be negative, the cache is disabled")
		option.CacheSize = 0
	}

	if option.CallStackSize == 0 {
		option.CallStackSize = lua.CallStackSize
	}

	if option.CallStackSize < 0 {
		log.Warn("[script] the callStackSize value should be positive, use %d", lua.CallStackSize)
		option.CallStackSize = lua.CallStackSize
	}

	if option.CallStackSize > 16384 {
		log.Warn("[script] the maximum value of callStackSize is 16384")
		option.CallStackSize = 16384
	}

	if option.RegistrySize <= 0 {
		option.RegistrySize = lua.RegistrySize
	}

	if option.RegistryMaxSize == 0 {
		option.RegistryMaxSize = 1024 * 1024
	}

	if option.RegistryMaxSize < option.RegistrySize {
		log.Warn("[script] the registryMaxSize value should be greater than registrySize")
		option.RegistryMaxSize = option.RegistrySize
	}

	if option.Timeout < 0 {
		log.Warn("[script] the timeout value should not be negative, no limit")
		option.Timeout = 0
	}
}
