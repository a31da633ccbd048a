package collision

import (
	"sync"

	"github.com/pthm-cable/forge/components"
)

// commandKind discriminates deferred operations.
type commandKind uint8

const (
	cmdCreate commandKind = iota
	cmdDestroy
	cmdModify
)

// command is one deferred add/remove/modify operation. Producers append
// from any thread; the engine drains once per frame under the exclusive
// storage lock.
type command struct {
	kind   commandKind
	handle components.Handle
	hot    components.HotData
	cold   components.ColdData
	modify func(*components.HotData, *components.ColdData)
}

// commandQueue is a mutex-protected vector. Contention stays low because
// producers only append.
type commandQueue struct {
	mu  sync.Mutex
	ops []command
}

func (q *commandQueue) push(c command) {
	q.mu.Lock()
	q.ops = append(q.ops, c)
	q.mu.Unlock()
}

// drainInto moves all queued commands into dst and returns it.
func (q *commandQueue) drainInto(dst []command) []command {
	q.mu.Lock()
	dst = append(dst, q.ops...)
	q.ops = q.ops[:0]
	q.mu.Unlock()
	return dst
}

// CreateNPC queues creation of a kinematic NPC body and returns its handle.
// The entity becomes visible to queries after the next command phase.
func (e *Engine) CreateNPC(pos, halfSize components.Vec2) components.Handle {
	hot := components.HotData{
		Pos:          pos,
		HalfSize:     halfSize,
		Layers:       components.LayerNPC,
		CollidesWith: components.LayerNPC | components.LayerPlayer | components.LayerStatic,
		Body:         components.BodyKinematic,
		Active:       true,
	}
	return e.queueCreate(hot, components.ColdData{Restitution: 0.1})
}

// CreatePlayer queues creation of the player-layer dynamic body.
func (e *Engine) CreatePlayer(pos, halfSize components.Vec2) components.Handle {
	hot := components.HotData{
		Pos:          pos,
		HalfSize:     halfSize,
		Layers:       components.LayerPlayer,
		CollidesWith: components.LayerNPC | components.LayerStatic | components.LayerTrigger,
		Body:         components.BodyDynamic,
		Active:       true,
	}
	return e.queueCreate(hot, components.ColdData{Restitution: 0.0})
}

// CreateStaticBody queues creation of a solid static body.
func (e *Engine) CreateStaticBody(pos, halfSize components.Vec2) components.Handle {
	hot := components.HotData{
		Pos:          pos,
		HalfSize:     halfSize,
		Layers:       components.LayerStatic,
		CollidesWith: ^uint32(0),
		Body:         components.BodyStatic,
		Active:       true,
	}
	return e.queueCreate(hot, components.ColdData{Restitution: 0.2})
}

// CreateTrigger queues creation of a static trigger region.
func (e *Engine) CreateTrigger(pos, halfSize components.Vec2, tag components.TriggerTag) components.Handle {
	hot := components.HotData{
		Pos:          pos,
		HalfSize:     halfSize,
		Layers:       components.LayerTrigger,
		CollidesWith: components.LayerPlayer,
		Body:         components.BodyStatic,
		Trigger:      tag,
		Active:       true,
		IsTrigger:    true,
	}
	return e.queueCreate(hot, components.ColdData{})
}

// CreateBody queues creation with fully caller-specified hot data.
func (e *Engine) CreateBody(hot components.HotData, cold components.ColdData) components.Handle {
	return e.queueCreate(hot, cold)
}

func (e *Engine) queueCreate(hot components.HotData, cold components.ColdData) components.Handle {
	h := e.store.ReserveHandle()
	e.commands.push(command{kind: cmdCreate, handle: h, hot: hot, cold: cold})
	return h
}

// Destroy queues removal of a body. Destroying a stale handle is a no-op.
func (e *Engine) Destroy(h components.Handle) {
	e.commands.push(command{kind: cmdDestroy, handle: h})
}

// Modify queues an in-place mutation applied during the command phase under
// the exclusive lock.
func (e *Engine) Modify(h components.Handle, fn func(*components.HotData, *components.ColdData)) {
	e.commands.push(command{kind: cmdModify, handle: h, modify: fn})
}

// processCommands drains the queue and applies every operation under the
// exclusive storage lock. A command targeting a vanished entity is a no-op.
func (e *Engine) processCommands() {
	e.cmdScratch = e.commandQueueDrain(e.cmdScratch[:0])
	if len(e.cmdScratch) == 0 {
		return
	}

	for _, c := range e.cmdScratch {
		switch c.kind {
		case cmdCreate:
			if !e.store.CommitCreate(c.handle, c.hot, c.cold) {
				continue
			}
			if c.hot.Body == components.BodyStatic {
				e.staticDirty = true
			}
		case cmdDestroy:
			idx, ok := e.store.Index(c.handle)
			if !ok {
				continue
			}
			wasStatic := false
			e.store.RLock()
			wasStatic = e.store.Hot(idx).Body == components.BodyStatic
			e.store.RUnlock()
			if e.store.Destroy(c.handle) && wasStatic {
				e.staticDirty = true
			}
		case cmdModify:
			e.store.Lock()
			if idx, ok := e.store.IndexLocked(c.handle); ok {
				hot := e.store.Hot(idx)
				wasStatic := hot.Body == components.BodyStatic
				c.modify(hot, e.store.Cold(idx))
				hot.AABBDirty = true
				if wasStatic || hot.Body == components.BodyStatic {
					e.staticDirty = true
				}
			}
			e.store.Unlock()
		}
	}
}

func (e *Engine) commandQueueDrain(dst []command) []command {
	return e.commands.drainInto(dst)
}
