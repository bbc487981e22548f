// Package crawler implements a planar crawling robot: a torso with two
// motorized single-segment legs that must push itself to the right
// along flat ground. It is the default locomotion benchmark for the
// distributed training stack.
package crawler

import (
	"fmt"
	"image/color"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gaitlab/dmpo/environment"
	"github.com/gaitlab/dmpo/timestep"
)

const (
	FPS float64 = 50

	XGravity float64 = 0.0
	YGravity float64 = -10.0

	// Solver iterations per physics step.
	VelocityIterations int = 8
	PositionIterations int = 3

	GroundFriction float64 = 2.5

	TorsoHalfWidth  float64 = 0.5
	TorsoHalfHeight float64 = 0.25
	TorsoDensity    float64 = 5.0
	InitialTorsoY   float64 = 1.0

	LegHalfWidth  float64 = 0.08
	LegHalfHeight float64 = 0.35
	LegDensity    float64 = 1.0
	LegFriction   float64 = 2.5

	MotorTorque   float64 = 80.0
	MaxMotorSpeed float64 = 4.0
	JointLimit    float64 = math.Pi / 2

	MaxContinuousAction float64 = 1.0
	MinContinuousAction float64 = -MaxContinuousAction

	// Reward: forward progress minus a quadratic control cost.
	ForwardRewardWeight float64 = 1.0
	ControlCostWeight   float64 = 0.05

	// State observations: torso x velocity, torso height, torso angle,
	// torso angular velocity, per-leg joint angle and speed, and per-leg
	// ground contact.
	StateObservations int = 10
	ActionDims        int = 2

	MinAngle float64 = -math.Pi
	MaxAngle float64 = math.Pi

	// Box2D caps velocity at 2 units per timestep.
	MaxVelocity float64 = 2.0 * FPS
	MinVelocity float64 = -MaxVelocity

	// Random perturbation of the initial torso pose.
	InitialNoise float64 = 0.05
)

// contactDetector tracks which parts of the crawler touch the ground.
// Torso contact ends the episode: the crawler has fallen.
type contactDetector struct {
	env *Crawler
}

func (c *contactDetector) involves(body *box2d.B2Body,
	contact box2d.B2ContactInterface) bool {
	return body == contact.GetFixtureA().GetBody() ||
		body == contact.GetFixtureB().GetBody()
}

func (c *contactDetector) BeginContact(contact box2d.B2ContactInterface) {
	if c.involves(c.env.torso, contact) {
		c.env.fallen = true
	}
	for i, leg := range c.env.legs {
		if c.involves(leg, contact) {
			c.env.legGroundContact[i] = true
		}
	}
}

func (c *contactDetector) EndContact(contact box2d.B2ContactInterface) {
	for i, leg := range c.env.legs {
		if c.involves(leg, contact) {
			c.env.legGroundContact[i] = false
		}
	}
}

func (c *contactDetector) PreSolve(contact box2d.B2ContactInterface,
	oldManifold box2d.B2Manifold) {
}

func (c *contactDetector) PostSolve(contact box2d.B2ContactInterface,
	impulse *box2d.B2ContactImpulse) {
}

// Crawler is the environment proper. A single goroutine drives it.
type Crawler struct {
	world box2d.B2World

	ground *box2d.B2Body
	torso  *box2d.B2Body
	legs   []*box2d.B2Body
	joints []*box2d.B2RevoluteJoint

	legGroundContact []bool
	fallen           bool

	maxSteps int
	rng      distuv.Uniform

	actionBounds   r1.Interval
	angleBounds    r1.Interval
	velocityBounds r1.Interval

	prevStep timestep.TimeStep
	prevX    float64
}

// New returns a crawler whose episodes are truncated after maxSteps
// environment steps. The seed drives the initial pose perturbation.
func New(maxSteps int, seed uint64) (*Crawler, error) {
	if maxSteps < 1 {
		return nil, fmt.Errorf("new: maximum episode steps must be "+
			"positive \n\thave(%v)", maxSteps)
	}

	c := &Crawler{
		world:    box2d.MakeB2World(box2d.B2Vec2{X: XGravity, Y: YGravity}),
		maxSteps: maxSteps,
		rng: distuv.Uniform{
			Min: -InitialNoise,
			Max: InitialNoise,
			Src: rand.NewSource(seed),
		},
		actionBounds: r1.Interval{
			Min: MinContinuousAction,
			Max: MaxContinuousAction,
		},
		angleBounds:    r1.Interval{Min: MinAngle, Max: MaxAngle},
		velocityBounds: r1.Interval{Min: MinVelocity, Max: MaxVelocity},
	}
	return c, nil
}

func (c *Crawler) destroy() {
	if c.torso == nil {
		return
	}
	c.world.SetContactListener(nil)
	c.world.DestroyBody(c.torso)
	c.torso = nil
	for _, leg := range c.legs {
		c.world.DestroyBody(leg)
	}
	c.legs = nil
	c.joints = nil
	c.world.DestroyBody(c.ground)
	c.ground = nil
}

// Reset rebuilds the world and returns the first timestep of a new
// episode.
func (c *Crawler) Reset() (timestep.TimeStep, error) {
	c.destroy()
	c.world.SetContactListener(&contactDetector{c})
	c.fallen = false
	c.legGroundContact = make([]bool, 2)

	// Ground
	groundDef := box2d.NewB2BodyDef()
	groundDef.Type = 0 // Static body
	c.ground = c.world.CreateBody(groundDef)
	groundShape := box2d.NewB2EdgeShape()
	groundShape.Set(box2d.MakeB2Vec2(-1000.0, 0.0),
		box2d.MakeB2Vec2(1000.0, 0.0))
	groundFix := box2d.MakeB2FixtureDef()
	groundFix.Shape = groundShape
	groundFix.Friction = GroundFriction
	c.ground.CreateFixtureFromDef(&groundFix)

	// Torso
	torsoDef := box2d.MakeB2BodyDef()
	torsoDef.Type = 2 // Dynamic body
	torsoDef.Position = box2d.MakeB2Vec2(c.rng.Rand(),
		InitialTorsoY+c.rng.Rand())
	torsoDef.Angle = c.rng.Rand()
	c.torso = c.world.CreateBody(&torsoDef)

	torsoShape := box2d.NewB2PolygonShape()
	torsoShape.SetAsBox(TorsoHalfWidth, TorsoHalfHeight)
	torsoFix := box2d.MakeB2FixtureDef()
	torsoFix.Shape = torsoShape
	torsoFix.Density = TorsoDensity
	torsoFix.Friction = GroundFriction
	c.torso.CreateFixtureFromDef(&torsoFix)

	// Legs, hinged at the torso's lower front and lower rear corners.
	c.legs = make([]*box2d.B2Body, 0, 2)
	c.joints = make([]*box2d.B2RevoluteJoint, 0, 2)
	for _, side := range []float64{-1.0, 1.0} {
		anchorX := side * (TorsoHalfWidth - LegHalfWidth)
		legDef := box2d.NewB2BodyDef()
		legDef.Type = 2 // Dynamic body
		legDef.Position = box2d.MakeB2Vec2(
			c.torso.GetPosition().X+anchorX,
			c.torso.GetPosition().Y-TorsoHalfHeight-LegHalfHeight,
		)
		leg := c.world.CreateBody(legDef)
		c.legs = append(c.legs, leg)

		legShape := box2d.NewB2PolygonShape()
		legShape.SetAsBox(LegHalfWidth, LegHalfHeight)
		legFix := box2d.MakeB2FixtureDef()
		legFix.Shape = legShape
		legFix.Density = LegDensity
		legFix.Friction = LegFriction
		legFix.Restitution = 0.0
		leg.CreateFixtureFromDef(&legFix)

		rjd := box2d.MakeB2RevoluteJointDef()
		rjd.BodyA = c.torso
		rjd.BodyB = leg
		rjd.LocalAnchorA = box2d.MakeB2Vec2(anchorX, -TorsoHalfHeight)
		rjd.LocalAnchorB = box2d.MakeB2Vec2(0.0, LegHalfHeight)
		rjd.EnableMotor = true
		rjd.EnableLimit = true
		rjd.MaxMotorTorque = MotorTorque
		rjd.MotorSpeed = 0.0
		rjd.LowerAngle = -JointLimit
		rjd.UpperAngle = JointLimit
		joint := c.world.CreateJoint(&rjd).(*box2d.B2RevoluteJoint)
		c.joints = append(c.joints, joint)
	}

	c.prevStep = timestep.TimeStep{}
	c.prevX = c.torso.GetPosition().X

	// One settling step with idle motors yields the first observation.
	first, _, err := c.step(mat.NewVecDense(ActionDims,
		make([]float64, ActionDims)), timestep.First)
	if err != nil {
		return timestep.TimeStep{}, fmt.Errorf("reset: %v", err)
	}
	return first, nil
}

// Step drives the leg motors at the commanded speeds for one physics
// step. Actions are clipped into [-1, 1].
func (c *Crawler) Step(action *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	if c.torso == nil {
		return timestep.TimeStep{}, false, fmt.Errorf("step: Reset must " +
			"be called before Step")
	}
	return c.step(action, timestep.Mid)
}

func (c *Crawler) step(action *mat.VecDense, stepType timestep.StepType) (
	timestep.TimeStep, bool, error) {
	if action.Len() != ActionDims {
		return timestep.TimeStep{}, false, fmt.Errorf("step: action size "+
			"\n\twant(%v)\n\thave(%v)", ActionDims, action.Len())
	}

	var controlCost float64
	for i, joint := range c.joints {
		a := clip(action.AtVec(i), c.actionBounds.Min, c.actionBounds.Max)
		joint.SetMotorSpeed(a * MaxMotorSpeed)
		controlCost += a * a
	}

	c.world.Step(1.0/FPS, VelocityIterations, PositionIterations)

	forward := (c.torso.GetPosition().X - c.prevX) * FPS
	c.prevX = c.torso.GetPosition().X
	reward := ForwardRewardWeight*forward - ControlCostWeight*controlCost

	discount := 1.0
	last := false
	if c.fallen {
		// Falling is terminal: no bootstrapping past this state.
		discount = 0.0
		last = true
		stepType = timestep.Last
	} else if stepType != timestep.First &&
		c.prevStep.Number+1 >= c.maxSteps {
		// Time-limit truncation keeps the bootstrap alive.
		last = true
		stepType = timestep.Last
	}

	number := 0
	if stepType != timestep.First {
		number = c.prevStep.Number + 1
	}
	t := timestep.New(stepType, reward, discount, c.observation(), number)
	c.prevStep = t
	return t, last, nil
}

func (c *Crawler) observation() mat.Vector {
	state := []float64{
		clip(c.torso.GetLinearVelocity().X, c.velocityBounds.Min,
			c.velocityBounds.Max),
		c.torso.GetPosition().Y,
		wrap(c.torso.GetAngle(), c.angleBounds.Min, c.angleBounds.Max),
		c.torso.GetAngularVelocity(),
		c.joints[0].GetJointAngle(),
		c.joints[0].GetJointSpeed(),
		c.joints[1].GetJointAngle(),
		c.joints[1].GetJointSpeed(),
		boolToFloat(c.legGroundContact[0]),
		boolToFloat(c.legGroundContact[1]),
	}
	if len(state) != StateObservations {
		panic(fmt.Sprintf("observation: illegal number of state "+
			"observations \n\twant(%v)\n\thave(%v)", StateObservations,
			len(state)))
	}
	return mat.NewVecDense(StateObservations, state)
}

func (c *Crawler) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(StateObservations, nil)
	lowerBound := mat.NewVecDense(StateObservations, []float64{
		c.velocityBounds.Min, 0.0, c.angleBounds.Min, c.velocityBounds.Min,
		-JointLimit, c.velocityBounds.Min,
		-JointLimit, c.velocityBounds.Min,
		0.0, 0.0,
	})
	upperBound := mat.NewVecDense(StateObservations, []float64{
		c.velocityBounds.Max, math.Inf(1), c.angleBounds.Max,
		c.velocityBounds.Max,
		JointLimit, c.velocityBounds.Max,
		JointLimit, c.velocityBounds.Max,
		1.0, 1.0,
	})
	return environment.Spec{
		Shape:       shape,
		Type:        environment.Observation,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: environment.Continuous,
	}
}

func (c *Crawler) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{
		MinContinuousAction, MinContinuousAction,
	})
	upperBound := mat.NewVecDense(ActionDims, []float64{
		MaxContinuousAction, MaxContinuousAction,
	})
	return environment.Spec{
		Shape:       shape,
		Type:        environment.Action,
		LowerBound:  lowerBound,
		UpperBound:  upperBound,
		Cardinality: environment.Continuous,
	}
}

func (c *Crawler) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{1.0})
	return environment.Spec{
		Shape:       shape,
		Type:        environment.Discount,
		LowerBound:  mat.NewVecDense(1, []float64{0.0}),
		UpperBound:  bound,
		Cardinality: environment.Continuous,
	}
}

// CurrentTimeStep returns the last timestep produced.
func (c *Crawler) CurrentTimeStep() timestep.TimeStep {
	return c.prevStep
}

const (
	renderWidth  = 600
	renderHeight = 300
	renderScale  = 60.0
)

// Render draws the current world state to a PNG. The camera follows
// the torso horizontally.
func (c *Crawler) Render(path string) error {
	if c.torso == nil {
		return fmt.Errorf("render: Reset must be called before Render")
	}

	dc := gg.NewContext(renderWidth, renderHeight)
	dc.SetColor(color.RGBA{R: 235, G: 240, B: 250, A: 255})
	dc.Clear()

	cameraX := c.torso.GetPosition().X

	toPixel := func(x, y float64) (float64, float64) {
		px := renderWidth/2 + renderScale*(x-cameraX)
		py := renderHeight - renderScale*y - renderHeight/4
		return px, py
	}

	// Ground
	gx1, gy := toPixel(cameraX-10, 0)
	gx2, _ := toPixel(cameraX+10, 0)
	dc.SetColor(color.RGBA{R: 90, G: 70, B: 50, A: 255})
	dc.SetLineWidth(3.0)
	dc.DrawLine(gx1, gy, gx2, gy)
	dc.Stroke()

	bodies := append([]*box2d.B2Body{c.torso}, c.legs...)
	shades := []color.Color{
		color.RGBA{R: 128, G: 102, B: 230, A: 255},
		color.RGBA{R: 77, G: 77, B: 128, A: 255},
		color.RGBA{R: 77, G: 77, B: 128, A: 255},
	}
	for b, body := range bodies {
		fix := body.GetFixtureList()
		for fix != nil {
			shape := fix.M_shape.(*box2d.B2PolygonShape)
			dc.ClearPath()
			for i, vertex := range shape.M_vertices {
				if i >= shape.M_count {
					break
				}
				world := box2d.B2TransformVec2Mul(body.M_xf, vertex)
				px, py := toPixel(world.X, world.Y)
				dc.LineTo(px, py)
			}
			dc.ClosePath()
			dc.SetColor(shades[b])
			dc.Fill()
			fix = fix.M_next
		}
	}

	return dc.SavePNG(path)
}

func clip(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// wrap maps value into [min, max) by modular arithmetic.
func wrap(value, min, max float64) float64 {
	span := max - min
	wrapped := math.Mod(value-min, span)
	if wrapped < 0 {
		wrapped += span
	}
	return wrapped + min
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
