package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryTransform, "style compilation failed").
			WithSeverity(SeverityFatal).
			WithContext("path", "assets/styles/main.scss").
			Build()

		if err.Category() != CategoryTransform {
			t.Errorf("expected category %s, got %s", CategoryTransform, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "style compilation failed" {
			t.Errorf("unexpected message %q", err.Message())
		}
		path, exists := err.Context().GetString("path")
		if !exists || path != "assets/styles/main.scss" {
			t.Errorf("expected context path, got %v", path)
		}
	})

	t.Run("Error string names context and cause", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := CleanError("remove output root").WithContext("path", "dist").WithCause(cause).Build()
		want := "[clean:fatal] remove output root path=dist: permission denied"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		err := fmt.Errorf("task style: %w", TransformError("1 file failed").Build())

		if !IsClassified(err) {
			t.Error("expected wrapped error to be classified")
		}
		if !HasCategory(err, CategoryTransform) {
			t.Error("expected transform category")
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("expected plain errors to map to internal")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Wrap keeps cause", func(t *testing.T) {
		original := errors.New("address already in use")
		err := WrapError(original, CategoryServer, "bind dev server").
			WithContext("port", 80).
			Build()

		if !errors.Is(err, original) {
			t.Error("expected error to wrap original error")
		}
		port, ok := err.Context().Get("port")
		if !ok || port != 80 {
			t.Errorf("expected port context, got %v", port)
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name     string
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
		}{
			{"ConfigLoadError", ConfigLoadError("test"), CategoryConfig, SeverityWarning},
			{"ConfigError", ConfigError("test"), CategoryConfig, SeverityFatal},
			{"ValidationError", ValidationError("test"), CategoryValidation, SeverityFatal},
			{"TransformError", TransformError("test"), CategoryTransform, SeverityError},
			{"CleanError", CleanError("test"), CategoryClean, SeverityFatal},
			{"BuildError", BuildError("test"), CategoryBuild, SeverityFatal},
			{"FileSystemError", FileSystemError("test"), CategoryFileSystem, SeverityError},
			{"ServerBindError", ServerBindError("test"), CategoryServer, SeverityFatal},
			{"InternalError", InternalError("test"), CategoryInternal, SeverityFatal},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.builder.Build()
				if err.Category() != tt.category {
					t.Errorf("expected category %s, got %s", tt.category, err.Category())
				}
				if err.Severity() != tt.severity {
					t.Errorf("expected severity %s, got %s", tt.severity, err.Severity())
				}
			})
		}
	})
}

func TestErrorContext(t *testing.T) {
	ctx1 := ErrorContext{}.Set("key1", "value1").Set("shared", "original")
	ctx2 := ErrorContext{}.Set("key2", "value2").Set("shared", "overridden")

	merged := ctx1.Merge(ctx2)

	for key, want := range map[string]string{"key1": "value1", "key2": "value2", "shared": "overridden"} {
		got, _ := merged.GetString(key)
		if got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if _, ok := merged.Get("missing"); ok {
		t.Error("expected missing key to be absent")
	}
}
