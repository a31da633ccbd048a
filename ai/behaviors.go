package ai

import (
	"math"

	"github.com/pthm-cable/forge/components"
)

func sqrt32(v float32) float32 { return float32(math.Sqrt(float64(v))) }

// Idle modes. Fidget and sway are parameter sets on the one Idle type, not
// separate behaviors.
const (
	IdleStationary = iota
	IdleFidget
	IdleSway
)

// Idle keeps an entity near its home point with optional small motion.
type Idle struct {
	Variant     int
	FidgetSpeed float32
	SwayRadius  float32
}

// NewIdle returns an idle behavior with the given variant.
func NewIdle(variant int) *Idle {
	return &Idle{Variant: variant, FidgetSpeed: 10, SwayRadius: 24}
}

func (b *Idle) Name() string { return "idle" }

func (b *Idle) Init(_ components.Handle, d *Data) {
	d.Mode = b.Variant
	d.Timer = 0
}

func (b *Idle) ExecuteLogic(ctx *Context) {
	d := ctx.Data
	switch d.Mode {
	case IdleFidget:
		d.Timer -= ctx.DT
		if d.Timer <= 0 {
			d.Timer = 0.5 + d.Rng.Float32()*1.5
			angle := d.Rng.Float32() * 2 * math.Pi
			d.Target = components.Vec2{
				X: float32(math.Cos(float64(angle))) * b.FidgetSpeed,
				Y: float32(math.Sin(float64(angle))) * b.FidgetSpeed,
			}
		}
		ctx.Vel = d.Target
	case IdleSway:
		d.Timer += ctx.DT
		ctx.Vel = components.Vec2{
			X: float32(math.Sin(float64(d.Timer))) * b.SwayRadius * 0.5,
		}
	default:
		ctx.Vel = components.Vec2{}
	}
}

func (b *Idle) Clean(_ components.Handle, d *Data) { d.ResetPath() }

func (b *Idle) OnMessage(_ components.Handle, d *Data, msg Message) {
	switch msg {
	case "idle_stationary":
		d.Mode = IdleStationary
	case "idle_fidget":
		d.Mode = IdleFidget
	case "idle_sway":
		d.Mode = IdleSway
	}
}

func (b *Idle) Clone() Behavior { c := *b; return &c }

// Wander picks random goals around home and paths to them.
type Wander struct {
	Speed  float32
	Radius float32
}

func NewWander(speed, radius float32) *Wander {
	return &Wander{Speed: speed, Radius: radius}
}

func (b *Wander) Name() string { return "wander" }

func (b *Wander) Init(_ components.Handle, d *Data) {
	d.Timer = 0
}

func (b *Wander) ExecuteLogic(ctx *Context) {
	d := ctx.Data
	if d.Home == (components.Vec2{}) {
		d.Home = ctx.Pos
	}

	if followPath(ctx, b.Speed) {
		return
	}

	d.Timer -= ctx.DT
	if d.Timer > 0 {
		ctx.Vel = components.Vec2{}
		return
	}
	d.Timer = 1 + d.Rng.Float32()*3

	angle := d.Rng.Float32() * 2 * math.Pi
	dist := b.Radius * (0.3 + 0.7*d.Rng.Float32())
	goal := components.Vec2{
		X: d.Home.X + float32(math.Cos(float64(angle)))*dist,
		Y: d.Home.Y + float32(math.Sin(float64(angle)))*dist,
	}
	requestPathOnce(ctx, goal, 1)
	// Direct-line fallback until the path arrives.
	ctx.Vel = steerToward(ctx.Pos, goal, b.Speed*0.5)
}

func (b *Wander) Clean(_ components.Handle, d *Data) { d.ResetPath() }

func (b *Wander) OnMessage(_ components.Handle, d *Data, msg Message) {
	if msg == "panic" {
		d.Timer = 0
		d.ResetPath()
	}
}

func (b *Wander) Clone() Behavior { c := *b; return &c }

// Patrol walks a fixed waypoint loop.
type Patrol struct {
	Speed     float32
	Waypoints []components.Vec2
}

func NewPatrol(speed float32, waypoints []components.Vec2) *Patrol {
	return &Patrol{Speed: speed, Waypoints: waypoints}
}

func (b *Patrol) Name() string { return "patrol" }

func (b *Patrol) Init(_ components.Handle, d *Data) { d.Mode = 0 }

func (b *Patrol) ExecuteLogic(ctx *Context) {
	if len(b.Waypoints) == 0 {
		ctx.Vel = components.Vec2{}
		return
	}
	d := ctx.Data

	if followPath(ctx, b.Speed) {
		return
	}

	wp := b.Waypoints[d.Mode%len(b.Waypoints)]
	if wp.Sub(ctx.Pos).LenSq() < waypointArrival {
		d.Mode = (d.Mode + 1) % len(b.Waypoints)
		wp = b.Waypoints[d.Mode]
	}
	requestPathOnce(ctx, wp, 1)
	ctx.Vel = steerToward(ctx.Pos, wp, b.Speed)
}

func (b *Patrol) Clean(_ components.Handle, d *Data) { d.ResetPath() }

func (b *Patrol) OnMessage(_ components.Handle, d *Data, msg Message) {
	if msg == "raise_alert" {
		d.Mode = 0
		d.ResetPath()
	}
}

func (b *Patrol) Clone() Behavior { c := *b; return &c }

// Chase pursues the player while in range.
type Chase struct {
	Speed     float32
	GiveUpSq  float32
	RepathDst float32
}

func NewChase(speed, giveUpRange float32) *Chase {
	return &Chase{Speed: speed, GiveUpSq: giveUpRange * giveUpRange, RepathDst: 64}
}

func (b *Chase) Name() string { return "chase" }

func (b *Chase) Init(_ components.Handle, d *Data) {}

func (b *Chase) ExecuteLogic(ctx *Context) {
	if !ctx.HasPlayer {
		ctx.Vel = components.Vec2{}
		return
	}
	delta := ctx.PlayerPos.Sub(ctx.Pos)
	if delta.LenSq() > b.GiveUpSq {
		ctx.Data.ResetPath()
		ctx.Vel = components.Vec2{}
		return
	}

	requestPathOnce(ctx, ctx.PlayerPos, 2)
	if followPath(ctx, b.Speed) {
		return
	}
	ctx.Vel = steerToward(ctx.Pos, ctx.PlayerPos, b.Speed)
}

func (b *Chase) Clean(_ components.Handle, d *Data) { d.ResetPath() }

func (b *Chase) OnMessage(_ components.Handle, d *Data, msg Message) {}

func (b *Chase) Clone() Behavior { c := *b; return &c }

// Flee runs from the player when close.
type Flee struct {
	Speed   float32
	SafeSq  float32
	PanicMx float32
}

func NewFlee(speed, safeRange float32) *Flee {
	return &Flee{Speed: speed, SafeSq: safeRange * safeRange, PanicMx: 1}
}

func (b *Flee) Name() string { return "flee" }

func (b *Flee) Init(_ components.Handle, d *Data) {}

func (b *Flee) ExecuteLogic(ctx *Context) {
	if !ctx.HasPlayer {
		ctx.Vel = components.Vec2{}
		return
	}
	delta := ctx.Pos.Sub(ctx.PlayerPos)
	if delta.LenSq() > b.SafeSq {
		ctx.Vel = components.Vec2{}
		return
	}
	away := ctx.Pos.Add(normalizeOr(delta, components.Vec2{X: 1}).Scale(400))
	requestPathOnce(ctx, away, 2)
	if followPath(ctx, b.Speed*b.PanicMx) {
		return
	}
	ctx.Vel = steerToward(ctx.Pos, away, b.Speed*b.PanicMx)
}

func (b *Flee) Clean(_ components.Handle, d *Data) { d.ResetPath() }

func (b *Flee) OnMessage(_ components.Handle, d *Data, msg Message) {
	if msg == "panic" {
		d.ResetPath()
	}
}

func (b *Flee) Clone() Behavior { c := *b; return &c }

// Follow trails the player at a preferred distance. "follow_close" and
// "follow_loose" messages switch the distance band.
type Follow struct {
	Speed    float32
	CloseDst float32
	LooseDst float32
}

func NewFollow(speed float32) *Follow {
	return &Follow{Speed: speed, CloseDst: 48, LooseDst: 160}
}

func (b *Follow) Name() string { return "follow" }

const (
	followLoose = iota
	followClose
)

func (b *Follow) Init(_ components.Handle, d *Data) { d.Mode = followLoose }

func (b *Follow) ExecuteLogic(ctx *Context) {
	if !ctx.HasPlayer {
		ctx.Vel = components.Vec2{}
		return
	}
	keep := b.LooseDst
	if ctx.Data.Mode == followClose {
		keep = b.CloseDst
	}
	delta := ctx.PlayerPos.Sub(ctx.Pos)
	if delta.LenSq() <= keep*keep {
		ctx.Data.ResetPath()
		ctx.Vel = components.Vec2{}
		return
	}
	requestPathOnce(ctx, ctx.PlayerPos, 3)
	if followPath(ctx, b.Speed) {
		return
	}
	ctx.Vel = steerToward(ctx.Pos, ctx.PlayerPos, b.Speed)
}

func (b *Follow) Clean(_ components.Handle, d *Data) { d.ResetPath() }

func (b *Follow) OnMessage(_ components.Handle, d *Data, msg Message) {
	switch msg {
	case "follow_close":
		d.Mode = followClose
	case "follow_loose":
		d.Mode = followLoose
	}
}

func (b *Follow) Clone() Behavior { c := *b; return &c }

// Guard holds a post and chases intruders a bounded distance before
// returning.
type Guard struct {
	Speed    float32
	AlertSq  float32
	LeashSq  float32
}

func NewGuard(speed, alertRange, leash float32) *Guard {
	return &Guard{Speed: speed, AlertSq: alertRange * alertRange, LeashSq: leash * leash}
}

func (b *Guard) Name() string { return "guard" }

func (b *Guard) Init(_ components.Handle, d *Data) {}

func (b *Guard) ExecuteLogic(ctx *Context) {
	d := ctx.Data
	if d.Home == (components.Vec2{}) {
		d.Home = ctx.Pos
	}

	fromHome := ctx.Pos.Sub(d.Home)
	if fromHome.LenSq() > b.LeashSq {
		requestPathOnce(ctx, d.Home, 1)
		if followPath(ctx, b.Speed) {
			return
		}
		ctx.Vel = steerToward(ctx.Pos, d.Home, b.Speed)
		return
	}

	if ctx.HasPlayer && ctx.PlayerPos.Sub(ctx.Pos).LenSq() < b.AlertSq {
		ctx.Vel = steerToward(ctx.Pos, ctx.PlayerPos, b.Speed)
		return
	}

	if fromHome.LenSq() > waypointArrival {
		ctx.Vel = steerToward(ctx.Pos, d.Home, b.Speed*0.6)
		return
	}
	ctx.Vel = components.Vec2{}
}

func (b *Guard) Clean(_ components.Handle, d *Data) { d.ResetPath() }

func (b *Guard) OnMessage(_ components.Handle, d *Data, msg Message) {
	if msg == "raise_alert" {
		d.Timer = 5
	}
}

func (b *Guard) Clone() Behavior { c := *b; return &c }

// Attack closes on the player and holds at weapon range. "attack_melee" and
// "attack_ranged" switch the engagement distance.
type Attack struct {
	Speed     float32
	MeleeDst  float32
	RangedDst float32
}

func NewAttack(speed float32) *Attack {
	return &Attack{Speed: speed, MeleeDst: 32, RangedDst: 200}
}

func (b *Attack) Name() string { return "attack" }

const (
	attackMelee = iota
	attackRanged
)

func (b *Attack) Init(_ components.Handle, d *Data) { d.Mode = attackMelee }

func (b *Attack) ExecuteLogic(ctx *Context) {
	if !ctx.HasPlayer {
		ctx.Vel = components.Vec2{}
		return
	}
	hold := b.MeleeDst
	if ctx.Data.Mode == attackRanged {
		hold = b.RangedDst
	}
	delta := ctx.PlayerPos.Sub(ctx.Pos)
	if delta.LenSq() <= hold*hold {
		ctx.Data.ResetPath()
		ctx.Vel = components.Vec2{}
		return
	}
	requestPathOnce(ctx, ctx.PlayerPos, 3)
	if followPath(ctx, b.Speed) {
		return
	}
	ctx.Vel = steerToward(ctx.Pos, ctx.PlayerPos, b.Speed)
}

func (b *Attack) Clean(_ components.Handle, d *Data) { d.ResetPath() }

func (b *Attack) OnMessage(_ components.Handle, d *Data, msg Message) {
	switch msg {
	case "attack_melee":
		d.Mode = attackMelee
	case "attack_ranged":
		d.Mode = attackRanged
	}
}

func (b *Attack) Clone() Behavior { c := *b; return &c }

func normalizeOr(v, fallback components.Vec2) components.Vec2 {
	sq := v.LenSq()
	if sq < 1e-6 {
		return fallback
	}
	return v.Scale(1 / sqrt32(sq))
}
