package engine

// SubsystemInfo describes a core subsystem for diagnostics and perf
// reporting. Centralizing the names keeps telemetry phases and tooling in
// sync.
type SubsystemInfo struct {
	ID          string // internal identifier (matches perf phase names)
	Name        string // display name
	Description string
	Category    string
}

// Subsystems lists the core's subsystems in pipeline order.
func Subsystems() []SubsystemInfo {
	return []SubsystemInfo{
		{ID: "commands", Name: "Commands", Description: "Applies deferred entity add/remove/modify operations", Category: "core"},
		{ID: "ai", Name: "AI Scheduler", Description: "Runs behavior batches and merges kinematic updates", Category: "ai"},
		{ID: "collision", Name: "Collision", Description: "Broadphase, narrowphase, resolution and triggers", Category: "physics"},
		{ID: "background", Name: "Background Sim", Description: "Re-tiers entities and advances off-screen ones", Category: "core"},
		{ID: "pathfinding", Name: "Pathfinding", Description: "Serves queued path requests against the walkability grid", Category: "ai"},
		{ID: "snapshot", Name: "Render Snapshot", Description: "Read-only interpolated view for the renderer", Category: "core"},
	}
}
