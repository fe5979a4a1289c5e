package vu

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/brianvoe/gofakeit/v7"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/ecommerce/loadgen/internal/generator"
	"github.com/example/ecommerce/loadgen/internal/logger"
	"github.com/example/ecommerce/loadgen/internal/metrics"
	"github.com/example/ecommerce/loadgen/internal/scenario"
	"github.com/example/ecommerce/loadgen/internal/session"
)

// Errors returned by the population controller.
var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("vu: population is already running")
	// ErrInvalidPopulation is returned for a non-positive user count or spawn rate.
	ErrInvalidPopulation = errors.New("vu: invalid population")
)

// Hooks are notified as users start and stop. Either may be nil.
type Hooks struct {
	OnUserStart func(id int, profile string)
	OnUserStop  func(id int, profile string)
}

// PopulationConfig holds the population controller configuration.
type PopulationConfig struct {
	Users     int
	SpawnRate float64
	// Seed makes user i draw from seed+i. Zero seeds every user randomly.
	Seed  uint64
	Pools session.Capacities

	Profiles []scenario.Profile
	Client   scenario.Doer
	Recorder metrics.Recorder
	Logger   *zap.Logger
	Tracer   trace.Tracer
	Hooks    Hooks

	// Sleeper overrides the think-time wait of every user.
	Sleeper Sleeper
}

// Population spawns virtual users across profiles and waits for them to
// stop.
//
// Thread Safety: Safe for concurrent use.
type Population struct {
	config PopulationConfig
	plan   []string

	wg      sync.WaitGroup
	running atomic.Bool
	spawned atomic.Int64
	active  atomic.Int64

	mu        sync.RWMutex
	byProfile map[string]int
	users     []*VirtualUser
}

// NewPopulation validates cfg and computes the spawn plan.
func NewPopulation(cfg PopulationConfig) (*Population, error) {
	if cfg.Users <= 0 {
		return nil, fmt.Errorf("%w: users must be positive", ErrInvalidPopulation)
	}
	if cfg.SpawnRate <= 0 {
		return nil, fmt.Errorf("%w: spawn rate must be positive", ErrInvalidPopulation)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = SleepContext
	}

	alloc := Allocate(cfg.Users, cfg.Profiles)
	if len(alloc) == 0 {
		return nil, fmt.Errorf("%w: no profile has a positive share", ErrInvalidPopulation)
	}
	return &Population{
		config:    cfg,
		plan:      interleave(alloc, cfg.Profiles),
		byProfile: make(map[string]int),
	}, nil
}

// Allocate splits total users across profiles in proportion to their
// shares using largest-remainder apportionment. Ties go to the profile
// listed first. Profiles with a zero share get no users and are omitted.
func Allocate(total int, profiles []scenario.Profile) map[string]int {
	sum := 0
	for _, p := range profiles {
		if p.Share > 0 {
			sum += p.Share
		}
	}
	if sum == 0 || total <= 0 {
		return nil
	}

	type part struct {
		name      string
		remainder int
		order     int
	}
	out := make(map[string]int)
	parts := make([]part, 0, len(profiles))
	assigned := 0
	for i, p := range profiles {
		if p.Share <= 0 {
			continue
		}
		exact := total * p.Share
		out[p.Name] = exact / sum
		assigned += exact / sum
		parts = append(parts, part{name: p.Name, remainder: exact % sum, order: i})
	}

	slices.SortStableFunc(parts, func(a, b part) int {
		if a.remainder != b.remainder {
			return b.remainder - a.remainder
		}
		return a.order - b.order
	})
	for i := 0; assigned < total; i++ {
		out[parts[i%len(parts)].name]++
		assigned++
	}

	for name, n := range out {
		if n == 0 {
			delete(out, name)
		}
	}
	return out
}

// interleave orders the allocation round-robin over profiles so a
// partially spawned population already resembles the final mix.
func interleave(alloc map[string]int, profiles []scenario.Profile) []string {
	left := make(map[string]int, len(alloc))
	total := 0
	for name, n := range alloc {
		left[name] = n
		total += n
	}

	plan := make([]string, 0, total)
	for len(plan) < total {
		for _, p := range profiles {
			if left[p.Name] > 0 {
				plan = append(plan, p.Name)
				left[p.Name]--
			}
		}
	}
	return plan
}

// Plan returns the profile of each user in spawn order.
func (p *Population) Plan() []string {
	return slices.Clone(p.plan)
}

// Run spawns users at the configured rate, then blocks until ctx is done
// and every user has finished its in-flight action.
func (p *Population) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	log := p.config.Logger
	limiter := rate.NewLimiter(rate.Limit(p.config.SpawnRate), 1)

	profiles := make(map[string]scenario.Profile, len(p.config.Profiles))
	for _, prof := range p.config.Profiles {
		profiles[prof.Name] = prof
	}

	for i, name := range p.plan {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if err := p.spawn(ctx, i+1, profiles[name]); err != nil {
			log.Error("Failed to spawn user", zap.Int("vu_id", i+1), zap.String("profile", name), zap.Error(err))
		}
	}
	if ctx.Err() == nil {
		log.Info("All users spawned", zap.Int("users", len(p.plan)), zap.Any("profiles", p.ActiveByProfile()))
	}

	<-ctx.Done()
	p.wg.Wait()
	log.Info("All users stopped", zap.Int64("spawned", p.spawned.Load()))
	return nil
}

func (p *Population) spawn(ctx context.Context, id int, profile scenario.Profile) error {
	seed := uint64(0)
	if p.config.Seed != 0 {
		seed = p.config.Seed + uint64(id-1)
	}

	user := scenario.NewUser(scenario.UserConfig{
		ID:        id,
		Profile:   profile.Name,
		Client:    p.config.Client,
		Generator: generator.New(gofakeit.New(seed)),
		Pools:     p.config.Pools,
		Recorder:  p.config.Recorder,
		Logger:    logger.ForUser(p.config.Logger, id, profile.Name),
		Tracer:    p.config.Tracer,
	})
	v, err := New(user, profile, WithSleeper(p.config.Sleeper))
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.users = append(p.users, v)
	p.byProfile[profile.Name]++
	p.mu.Unlock()
	p.spawned.Add(1)
	p.active.Add(1)
	if h := p.config.Hooks.OnUserStart; h != nil {
		h(id, profile.Name)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.stopped(id, profile.Name)
		v.Run(ctx)
	}()
	return nil
}

func (p *Population) stopped(id int, profile string) {
	p.mu.Lock()
	p.byProfile[profile]--
	p.mu.Unlock()
	p.active.Add(-1)
	if h := p.config.Hooks.OnUserStop; h != nil {
		h(id, profile)
	}
}

// Active returns the number of running users.
func (p *Population) Active() int {
	return int(p.active.Load())
}

// Spawned returns the number of users started so far.
func (p *Population) Spawned() int {
	return int(p.spawned.Load())
}

// ActiveByProfile returns the number of running users per profile.
func (p *Population) ActiveByProfile() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int, len(p.byProfile))
	for name, n := range p.byProfile {
		if n > 0 {
			out[name] = n
		}
	}
	return out
}

// Iterations returns the total number of actions completed by all users.
func (p *Population) Iterations() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var n int64
	for _, v := range p.users {
		n += v.Iterations()
	}
	return n
}
