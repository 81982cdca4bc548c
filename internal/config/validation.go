package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags first, then the cross-field rules that depend
// on the selected storage backend.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return err
	}

	var errs []error
	switch c.Storage.Backend {
	case "supabase":
		if c.Storage.SupabaseURL == "" {
			errs = append(errs, errors.New("storage.supabase_url is required for the supabase backend"))
		}
		if c.Storage.SupabaseKey == "" {
			errs = append(errs, errors.New("storage.supabase_key is required for the supabase backend"))
		}
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for the local backend"))
		}
		if c.Storage.PublicBaseURL == "" {
			errs = append(errs, errors.New("storage.public_base_url is required for the local backend"))
		}
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && strings.TrimSpace(task.Schedule) == "" {
			errs = append(errs, fmt.Errorf("scheduler.tasks.%s is enabled but has no schedule", name))
		}
	}
	if task, ok := c.Scheduler.Tasks["keep_alive"]; ok && task.Enabled && c.Telegram.WebhookURL == "" {
		errs = append(errs, errors.New("scheduler.tasks.keep_alive requires telegram.webhook_url"))
	}

	return errors.Join(errs...)
}
