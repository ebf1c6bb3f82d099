package winter

import (
	"github.com/cryguy/winter/internal/bridge"
	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/pool"
	"github.com/cryguy/winter/internal/server"
)

// Type aliases re-exporting the internal types so embedders can build a
// pool and a handler without importing internal packages.

type Request = core.Request
type Response = core.Response
type Result = core.Result
type LogEntry = core.LogEntry
type EngineConfig = core.EngineConfig
type ScriptContext = core.ScriptContext
type ContextFactory = core.ContextFactory
type ScriptError = core.ScriptError
type ScriptErrorKind = core.ScriptErrorKind
type CompileError = core.CompileError
type StartupError = core.StartupError

type Pool = pool.Pool
type PoolConfig = pool.Config
type PoolOption = pool.Option
type Job = pool.Job
type FaultPolicy = pool.FaultPolicy

type Bridge = bridge.Bridge
type BridgeOption = bridge.Option

type ServerOption = server.Option

// Error kinds re-exported from core.
const (
	Thrown   = core.Thrown
	Internal = core.Internal
	Timeout  = core.Timeout
)

// Fault policies re-exported from pool.
const (
	FaultReset = pool.FaultReset
	FaultStop  = pool.FaultStop
)

// Sentinel errors re-exported from core.
var (
	ErrOverloaded = core.ErrOverloaded
	ErrPoolClosed = core.ErrPoolClosed
	ErrNoHandler  = core.ErrNoHandler
)
