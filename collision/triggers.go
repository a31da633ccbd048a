package collision

import (
	"time"

	"github.com/pthm-cable/forge/components"
)

// updateTriggers maintains the set of active (player, trigger) pairs. A pair
// observed this frame that is not in the set and past its cooldown emits
// Enter; a pair no longer observed emits Exit and leaves the set.
func (e *Engine) updateTriggers(now time.Time) {
	for k := range e.seenTriggers {
		delete(e.seenTriggers, k)
	}

	tags := make(map[triggerKey]components.TriggerTag, 4)

	e.store.RLock()
	for _, info := range e.infos {
		if !info.IsTrigger {
			continue
		}
		playerIdx, triggerIdx := info.IndexA, info.IndexB
		playerH, triggerH := info.EntityA, info.EntityB
		if e.store.Hot(playerIdx).IsTrigger {
			playerIdx, triggerIdx = triggerIdx, playerIdx
			playerH, triggerH = triggerH, playerH
		}
		if e.store.Hot(playerIdx).Layers&components.LayerPlayer == 0 {
			continue
		}
		key := triggerKey{player: playerH, trigger: triggerH}
		e.seenTriggers[key] = e.store.Hot(playerIdx).Pos
		tags[key] = e.store.Hot(triggerIdx).Trigger
	}
	e.store.RUnlock()

	// Enters.
	for key, playerPos := range e.seenTriggers {
		if _, active := e.activeTriggers[key]; active {
			continue
		}
		if e.triggerCooldown > 0 {
			if last, ok := e.lastFired[key]; ok && now.Sub(last) < e.triggerCooldown {
				continue
			}
		}
		e.activeTriggers[key] = now
		e.lastFired[key] = now
		e.lastTags[key] = tags[key]
		e.emitTrigger(key, playerPos, tags[key], TriggerEnter)
	}

	// Exits.
	for key := range e.activeTriggers {
		if _, seen := e.seenTriggers[key]; seen {
			continue
		}
		delete(e.activeTriggers, key)
		tag := e.lastTags[key]
		delete(e.lastTags, key)
		e.emitTrigger(key, e.playerPos, tag, TriggerExit)
	}
}

func (e *Engine) emitTrigger(key triggerKey, playerPos components.Vec2, tag components.TriggerTag, phase TriggerPhase) {
	if e.triggerHandler == nil {
		return
	}
	e.triggerHandler(TriggerEvent{
		Player:    key.player,
		Trigger:   key.trigger,
		Tag:       tag,
		PlayerPos: playerPos,
		Phase:     phase,
	})
}

// ActiveTriggerPairs reports the current (player, trigger) contact count.
func (e *Engine) ActiveTriggerPairs() int { return len(e.activeTriggers) }
