package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/ecommerce/loadgen/internal/config"
	"github.com/example/ecommerce/loadgen/internal/generator"
	"github.com/example/ecommerce/loadgen/internal/selector"
)

// Errors returned when building profiles.
var (
	// ErrUnknownProfile is returned when an override names no built-in profile.
	ErrUnknownProfile = errors.New("scenario: unknown profile")
	// ErrUnknownTask is returned when a weight override names no task of the profile.
	ErrUnknownTask = errors.New("scenario: unknown task")
	// ErrNoActiveProfile is returned when every profile has a zero share.
	ErrNoActiveProfile = errors.New("scenario: no profile with a positive share")
)

// Profile names.
const (
	Light       = "light"
	Heavy       = "heavy"
	Integration = "integration"
	Standard    = "standard"
)

// Task is an action as it appears in a profile, under the profile's own
// name and weight.
type Task struct {
	Name   string
	Weight int
	Run    ActionFunc
}

// Profile is a weighting over the action catalog plus a think-time range
// and a relative population share.
type Profile struct {
	Name     string
	Share    int
	ThinkMin time.Duration
	ThinkMax time.Duration
	Tasks    []Task
}

// DefaultProfiles returns the built-in profiles, sorted by name.
func DefaultProfiles() []Profile {
	profiles := []Profile{
		{
			Name:     Light,
			Share:    3,
			ThinkMin: 3 * time.Second,
			ThinkMax: 8 * time.Second,
			Tasks: []Task{
				{Name: "browse_products", Weight: 10, Run: GetProducts},
				{Name: "occasional_favourite", Weight: 1, Run: AddFavourite},
			},
		},
		{
			Name:     Heavy,
			Share:    1,
			ThinkMin: 500 * time.Millisecond,
			ThinkMax: 1500 * time.Millisecond,
			Tasks: []Task{
				{Name: "frequent_orders", Weight: 5, Run: CreateOrder},
				{Name: "frequent_payments", Weight: 3, Run: MakePayment},
				{Name: "check_everything", Weight: 2, Run: CheckEverything},
			},
		},
		{
			Name:     Integration,
			Share:    1,
			ThinkMin: 2 * time.Second,
			ThinkMax: 4 * time.Second,
			Tasks: []Task{
				{Name: "integration_flows", Weight: 5, Run: FullFlow},
				{Name: "service_health", Weight: 1, Run: HealthCheck},
			},
		},
		{
			Name:     Standard,
			Share:    0,
			ThinkMin: time.Second,
			ThinkMax: 2 * time.Second,
			Tasks: []Task{
				{Name: "get_products", Weight: 4, Run: GetProducts},
				{Name: "create_order", Weight: 3, Run: CreateOrder},
				{Name: "request_shipping", Weight: 2, Run: RequestShipping},
				{Name: "add_favourite", Weight: 2, Run: AddFavourite},
				{Name: "make_payment", Weight: 3, Run: MakePayment},
				{Name: "register_user", Weight: 1, Run: RegisterUser},
				{Name: "health_check", Weight: 1, Run: HealthCheck},
				{Name: "full_flow", Weight: 1, Run: FullFlow},
			},
		},
	}
	slices.SortFunc(profiles, func(a, b Profile) int { return strings.Compare(a.Name, b.Name) })
	return profiles
}

// BuildProfiles applies configuration overrides to the built-in profiles.
// Profiles left with a zero share are still returned; the population
// controller skips them.
func BuildProfiles(overrides map[string]config.ProfileConfig) ([]Profile, error) {
	profiles := DefaultProfiles()

	for name, o := range overrides {
		idx := slices.IndexFunc(profiles, func(p Profile) bool { return p.Name == name })
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
		}
		p := &profiles[idx]

		if o.Share != nil {
			p.Share = *o.Share
		}
		if o.ThinkTime != nil {
			p.ThinkMin, p.ThinkMax = o.ThinkTime.Min, o.ThinkTime.Max
		}
		for task, w := range o.Weights {
			ti := slices.IndexFunc(p.Tasks, func(t Task) bool { return t.Name == task })
			if ti < 0 {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownTask, name, task)
			}
			p.Tasks[ti].Weight = w
		}
	}

	if !slices.ContainsFunc(profiles, func(p Profile) bool { return p.Share > 0 }) {
		return nil, ErrNoActiveProfile
	}
	for _, p := range profiles {
		if p.Share == 0 {
			continue
		}
		if _, err := p.Selector(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Name, err)
		}
	}
	return profiles, nil
}

// Selector builds the weighted task table of the profile. Tasks with a
// zero weight are never selected.
func (p Profile) Selector() (*selector.Weighted[Task], error) {
	entries := make([]selector.Entry[Task], 0, len(p.Tasks))
	for _, t := range p.Tasks {
		entries = append(entries, selector.Entry[Task]{Name: t.Name, Value: t, Weight: t.Weight})
	}
	return selector.NewWeighted(entries)
}

// ThinkTime draws a pause uniformly from the profile's range.
func (p Profile) ThinkTime(g *generator.Generator) time.Duration {
	if p.ThinkMax <= p.ThinkMin {
		return p.ThinkMin
	}
	return p.ThinkMin + time.Duration(g.Float64Range(0, float64(p.ThinkMax-p.ThinkMin)))
}
