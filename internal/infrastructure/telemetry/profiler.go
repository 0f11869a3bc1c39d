package telemetry

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// profileKinds maps a configured profile name to the Pyroscope types it collects
var profileKinds = map[string][]pyroscope.ProfileType{
	"cpu":        {pyroscope.ProfileCPU},
	"alloc":      {pyroscope.ProfileAllocObjects, pyroscope.ProfileAllocSpace},
	"inuse":      {pyroscope.ProfileInuseObjects, pyroscope.ProfileInuseSpace},
	"goroutines": {pyroscope.ProfileGoroutines},
	"mutex":      {pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration},
	"block":      {pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration},
}

// DefaultProfiles are collected when ProfilerConfig.Profiles is empty
var DefaultProfiles = []string{"cpu", "alloc", "inuse", "goroutines"}

// ProfilerConfig controls continuous profiling
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	Profiles          []string          // names from profileKinds
	Tags              map[string]string // $HOSTNAME is added as hostname
}

// Profiler pushes profiles to Pyroscope until stopped
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	stopOnce sync.Once
	stopErr  error
}

// NewProfiler starts profiling. Disabled, it returns a profiler that does
// nothing.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{logger: logger}
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled")
		return p, nil
	}

	types, err := resolveProfiles(cfg.Profiles)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.ServerAddress == "":
		return nil, errors.New("profiler: server address is required")
	case cfg.ApplicationName == "":
		return nil, errors.New("profiler: application name is required")
	}

	tags := maps.Clone(cfg.Tags)
	if tags == nil {
		tags = map[string]string{}
	}
	if host := os.Getenv("HOSTNAME"); host != "" {
		tags["hostname"] = host
	}
	for _, t := range types {
		switch t {
		case pyroscope.ProfileMutexCount:
			runtime.SetMutexProfileFraction(5)
		case pyroscope.ProfileBlockCount:
			runtime.SetBlockProfileRate(5)
		}
	}

	p.profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            logger.Sugar(),
		Tags:              tags,
		ProfileTypes:      types,
	})
	if err != nil {
		return nil, fmt.Errorf("profiler: start: %w", err)
	}
	logger.Info("Profiling to Pyroscope",
		zap.String("server", cfg.ServerAddress),
		zap.String("application", cfg.ApplicationName),
		zap.Int("profile_types", len(types)))
	return p, nil
}

// resolveProfiles expands profile names; an empty list means DefaultProfiles
func resolveProfiles(names []string) ([]pyroscope.ProfileType, error) {
	if len(names) == 0 {
		names = DefaultProfiles
	}
	var types []pyroscope.ProfileType
	for _, name := range names {
		kinds, ok := profileKinds[name]
		if !ok {
			known := make([]string, 0, len(profileKinds))
			for k := range profileKinds {
				known = append(known, k)
			}
			sort.Strings(known)
			return nil, fmt.Errorf("profiler: unknown profile %q (known: %v)", name, known)
		}
		types = append(types, kinds...)
	}
	return types, nil
}

// Stop flushes the last profiles. Later calls return the first result.
func (p *Profiler) Stop() error {
	if p.profiler == nil {
		return nil
	}
	p.stopOnce.Do(func() {
		if err := p.profiler.Stop(); err != nil {
			p.stopErr = fmt.Errorf("profiler: stop: %w", err)
			return
		}
		p.logger.Info("Profiler stopped")
	})
	return p.stopErr
}

// IsEnabled reports whether profiles are being collected
func (p *Profiler) IsEnabled() bool {
	return p.profiler != nil
}
