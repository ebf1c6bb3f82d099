package core

// EngineConfig holds configuration shared by every context a backend builds.
type EngineConfig struct {
	MemoryLimitMB    int               // per-context memory limit, 0 = engine default
	MaxResponseBytes int               // max response body size, 0 = unlimited
	Vars             map[string]string // exposed to the script as the env argument
}
