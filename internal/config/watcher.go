package config

import (
	"context"
	"os"
	"sync"
	"time"

	"calreach/internal/models"

	"github.com/sirupsen/logrus"
)

const watchPollInterval = 5 * time.Second

// ConfigWatcher polls the configuration file's modification time and
// reloads it when the file changes, notifying registered callbacks.
type ConfigWatcher struct {
	configPath string
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the configuration and blocks polling for changes until ctx
// is cancelled.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	stat, err := os.Stat(cw.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(cw.configPath)
			if err != nil {
				cw.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}
			if !stat.ModTime().After(lastModTime) {
				continue
			}

			cw.logger.Debug("Configuration file changed")
			lastModTime = stat.ModTime()

			// The writer may still be mid-write when mtime moves.
			time.Sleep(100 * time.Millisecond)
			cw.reloadConfig()
		}
	}
}

// GetConfig returns the most recently loaded configuration.
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback invoked after each successful reload.
// Callbacks run on their own goroutines and panics are contained.
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		// Keep serving the previous configuration on a bad reload.
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		go func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					cw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}

	cw.logDispatchChanges(oldConfig, newConfig)
}

// logDispatchChanges records changes to the rate-governing knobs, which are
// the ones operators tune at runtime.
func (cw *ConfigWatcher) logDispatchChanges(old, updated *models.Config) {
	if old == nil {
		return
	}

	changes := []struct {
		message  string
		oldValue int
		newValue int
	}{
		{"Global daily cap changed", old.Dispatch.GlobalDailyCap, updated.Dispatch.GlobalDailyCap},
		{"Per-account daily cap changed", old.Dispatch.PerAccountDailyCap, updated.Dispatch.PerAccountDailyCap},
		{"Dispatch tick interval changed", old.Dispatch.TickIntervalSec, updated.Dispatch.TickIntervalSec},
		{"Cooldown changed", old.Dispatch.CooldownMinutes, updated.Dispatch.CooldownMinutes},
	}

	for _, c := range changes {
		if c.oldValue != c.newValue {
			cw.logger.WithFields(logrus.Fields{
				"old": c.oldValue,
				"new": c.newValue,
			}).Info(c.message)
		}
	}
}
