package flags

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/state"
	"github.com/aonescu/chaosguard/internal/types"
)

// ComponentValidator tells the registry which components flags may target
type ComponentValidator interface {
	KnownComponent(component string) bool
}

type EnableOptions struct {
	Type            types.FlagType
	TargetComponent string
	Config          map[string]interface{}
	// Duration of zero keeps the flag enabled until disabled.
	Duration time.Duration
}

// Registry is the boundary other services use to read chaos flags
type Registry struct {
	mu         sync.Mutex
	store      state.FlagStore
	schemas    *SchemaSet
	components ComponentValidator
	now        func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithComponentValidator(v ComponentValidator) Option {
	return func(r *Registry) { r.components = v }
}

func NewRegistry(store state.FlagStore, opts ...Option) (*Registry, error) {
	schemas, err := CompileSchemas()
	if err != nil {
		return nil, err
	}

	r := &Registry{
		store:   store,
		schemas: schemas,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Enable creates or overwrites the flag for key. Re-enabling resets the expiry window.
func (r *Registry) Enable(key string, opts EnableOptions) (types.ChaosFlag, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return types.ChaosFlag{}, types.NewValidationError("key", "flag key is required")
	}
	if !opts.Type.Valid() {
		return types.ChaosFlag{}, types.NewValidationError("type", "unknown flag type %q", opts.Type)
	}
	if opts.Duration < 0 {
		return types.ChaosFlag{}, types.NewValidationError("duration", "duration must not be negative")
	}
	if opts.TargetComponent != "" && r.components != nil && !r.components.KnownComponent(opts.TargetComponent) {
		return types.ChaosFlag{}, types.NewValidationError("target_component", "unknown component %q", opts.TargetComponent)
	}

	config, err := r.schemas.Validate(opts.Type, opts.Config)
	if err != nil {
		return types.ChaosFlag{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	flag := types.ChaosFlag{
		Key:             key,
		Type:            opts.Type,
		TargetComponent: opts.TargetComponent,
		Config:          config,
		EnabledAt:       now,
		IsEnabled:       true,
	}
	if opts.Duration > 0 {
		expires := now.Add(opts.Duration)
		flag.ExpiresAt = &expires
	}

	if err := r.store.UpsertFlag(flag); err != nil {
		return types.ChaosFlag{}, types.NewCollaboratorError("flag store", "enable "+key, err)
	}

	logrus.WithFields(logrus.Fields{
		"flag":      key,
		"type":      opts.Type,
		"component": opts.TargetComponent,
		"duration":  opts.Duration,
	}).Info("Chaos flag enabled")
	return flag, nil
}

// Disable turns the flag off. Missing or already disabled flags are a no-op.
func (r *Registry) Disable(key string) error {
	return r.DisableWithReason(key, "disabled")
}

func (r *Registry) DisableWithReason(key, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.disableLocked(key, reason)
	return err
}

func (r *Registry) disableLocked(key, reason string) (bool, error) {
	flag, exists, err := r.store.GetFlag(key)
	if err != nil {
		return false, types.NewCollaboratorError("flag store", "read "+key, err)
	}
	if !exists || !flag.IsEnabled {
		return false, nil
	}

	now := r.now()
	flag.IsEnabled = false
	flag.DisabledAt = &now
	flag.DisabledReason = reason

	if err := r.store.UpsertFlag(flag); err != nil {
		return false, types.NewCollaboratorError("flag store", "disable "+key, err)
	}

	logrus.WithFields(logrus.Fields{"flag": key, "reason": reason}).Info("Chaos flag disabled")
	return true, nil
}

// DisableAll disables every enabled flag in one pass and returns how many changed.
func (r *Registry) DisableAll(reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.store.ListFlags()
	if err != nil {
		return 0, types.NewCollaboratorError("flag store", "list flags", err)
	}

	var firstErr error
	count := 0
	for _, flag := range all {
		if !flag.IsEnabled {
			continue
		}
		changed, err := r.disableLocked(flag.Key, reason)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if changed {
			count++
		}
	}

	logrus.WithFields(logrus.Fields{"count": count, "reason": reason}).Warn("All chaos flags disabled")
	if firstErr != nil {
		return count, errors.Wrap(firstErr, "disable all flags")
	}
	return count, nil
}

// IsEnabled reports whether key is effectively active right now.
func (r *Registry) IsEnabled(key string) bool {
	flag, exists, err := r.store.GetFlag(key)
	if err != nil {
		logrus.WithError(err).WithField("flag", key).Warn("Failed to read chaos flag, treating as disabled")
		return false
	}
	return exists && flag.ActiveAt(r.now())
}

// GetConfig returns the flag config, or an empty map when the flag is inactive.
func (r *Registry) GetConfig(key string) map[string]interface{} {
	flag, exists, err := r.store.GetFlag(key)
	if err != nil || !exists || !flag.ActiveAt(r.now()) {
		return map[string]interface{}{}
	}
	if flag.Config == nil {
		return map[string]interface{}{}
	}
	return flag.Config
}

// Decode fills into with the typed config of an active flag and reports whether it was active.
func (r *Registry) Decode(key string, into interface{}) (bool, error) {
	if !r.IsEnabled(key) {
		return false, nil
	}
	if err := decodeInto(r.GetConfig(key), into); err != nil {
		return true, errors.Wrapf(err, "decode config of flag %s", key)
	}
	return true, nil
}

func (r *Registry) Get(key string) (types.ChaosFlag, bool, error) {
	return r.store.GetFlag(key)
}

// Active lists the effectively active flags.
func (r *Registry) Active() ([]types.ChaosFlag, error) {
	all, err := r.store.ListFlags()
	if err != nil {
		return nil, types.NewCollaboratorError("flag store", "list flags", err)
	}

	now := r.now()
	active := make([]types.ChaosFlag, 0)
	for _, f := range all {
		if f.ActiveAt(now) {
			active = append(active, f)
		}
	}
	return active, nil
}

func (r *Registry) All() ([]types.ChaosFlag, error) {
	return r.store.ListFlags()
}
