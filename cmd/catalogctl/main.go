package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kirillkom/property-desk/internal/bootstrap"
	"github.com/kirillkom/property-desk/internal/config"
	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/core/ports"
	"github.com/kirillkom/property-desk/internal/infrastructure/catalog/yamlfile"
	"github.com/kirillkom/property-desk/internal/observability/logging"
)

const serviceName = "catalogctl"

func main() {
	manifestPath := pflag.StringP("manifest", "m", "catalog.yaml", "Path to the template manifest")
	dryRun := pflag.Bool("dry-run", false, "Validate the manifest without onboarding")
	pflag.Parse()

	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manifest, err := yamlfile.Load(*manifestPath)
	if err != nil {
		logger.Error("manifest_invalid", "path", *manifestPath, "error", err)
		os.Exit(1)
	}
	if *dryRun {
		if err := validate(manifest); err != nil {
			logger.Error("manifest_invalid", "path", *manifestPath, "error", err)
			os.Exit(1)
		}
		logger.Info("manifest_ok", "templates", len(manifest.Templates))
		return
	}

	app, err := bootstrap.NewCatalog(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	onboarded, err := onboard(ctx, app.Templates, manifest)
	logger.Info("catalog_onboarded", "templates", onboarded, "total", len(manifest.Templates))
	if err != nil {
		logger.Error("catalog_onboard_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}

func validate(manifest *yamlfile.Manifest) error {
	for _, entry := range manifest.Templates {
		if _, err := entry.Template(); err != nil {
			return fmt.Errorf("template %s: %w", entry.ID, err)
		}
		if _, err := os.Stat(entry.PDF); err != nil {
			return fmt.Errorf("template %s: %w", entry.ID, err)
		}
	}
	return nil
}

// onboard stops at the first failing template and reports how many
// succeeded before it.
func onboard(ctx context.Context, templates ports.TemplateService, manifest *yamlfile.Manifest) (int, error) {
	done := 0
	for _, entry := range manifest.Templates {
		tpl, err := entry.Template()
		if err != nil {
			return done, fmt.Errorf("template %s: %w", entry.ID, err)
		}
		stored, err := onboardOne(ctx, templates, tpl, entry.PDF)
		if err != nil {
			return done, fmt.Errorf("template %s: %w", entry.ID, err)
		}
		slog.Info("template_onboarded", "template_id", stored.ID, "pages", stored.PageCount, "questions", len(stored.Questions))
		done++
	}
	return done, nil
}

func onboardOne(ctx context.Context, templates ports.TemplateService, tpl *domain.Template, pdfPath string) (*domain.Template, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return templates.Onboard(ctx, tpl, f)
}
