package telemetry

import (
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls GORM span instrumentation
type DBTracingConfig struct {
	Enabled bool
	// DBName is reported as db.name on spans
	DBName string
	// IncludeVariables records bound query parameters on spans. Keep off in production.
	IncludeVariables bool
}

// RegisterDBTracing installs the otelgorm plugin so every query becomes a child span of the request
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled")
		return nil
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	logger.Info("Database tracing enabled", zap.String("db_name", cfg.DBName))
	return nil
}
