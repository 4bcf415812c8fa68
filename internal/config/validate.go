package config

import (
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

var (
	ErrInvalidAnnotation     = errors.Base("invalid annotation mode")
	ErrInvalidLogLevel       = errors.Base("invalid log level")
	ErrInvalidSearchWindow   = errors.Base("invalid search window")
	ErrInvalidInterval       = errors.Base("invalid watch interval")
	ErrInvalidFilenameFormat = errors.Base("invalid filename format")
	ErrInvalidNumber         = errors.Base("invalid number")
)

// Validate checks that the configuration is usable.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.Annotation {
	case "auto", "heading", "first-line":
	default:
		errs = append(errs, errors.WithDetails(ErrInvalidAnnotation, "value", cfg.Annotation))
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, errors.WithDetails(ErrInvalidLogLevel, "value", cfg.LogLevel))
	}
	if cfg.SearchWindow < 0 {
		errs = append(errs, errors.WithDetails(ErrInvalidSearchWindow, "value", cfg.SearchWindow))
	}
	if cfg.HistoryLimit < 1 {
		errs = append(errs, errors.WithDetails(ErrInvalidNumber, "key", "history_limit", "value", cfg.HistoryLimit))
	}

	switch cfg.Copy.FilenameFormat {
	case "none", "heading", "first-line":
	default:
		errs = append(errs, errors.WithDetails(ErrInvalidFilenameFormat, "value", cfg.Copy.FilenameFormat))
	}
	if cfg.Copy.LineNumber < 0 {
		errs = append(errs, errors.WithDetails(ErrInvalidNumber, "key", "copy.line_number", "value", cfg.Copy.LineNumber))
	}

	if cfg.Watch.Interval <= 0 {
		errs = append(errs, errors.WithDetails(ErrInvalidInterval, "value", cfg.Watch.Interval))
	}
	if cfg.Watch.Concurrency < 0 {
		errs = append(errs, errors.WithDetails(ErrInvalidNumber, "key", "watch.concurrency", "value", cfg.Watch.Concurrency))
	}

	return errors.Join(errs...)
}
