package migration

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appconfig "github.com/kilnhq/migrator/config"
	"github.com/kilnhq/migrator/internal/database"
)

// openGormDB opens the dialector matching cfg.Driver.
func openGormDB(cfg appconfig.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: postgres, mysql, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log.Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// schemaQualifyModifier builds a ModifySQLFunc that does nothing beyond
// identity unless MigrationConfig.SchemaQualify is set, in which case it
// is available for an application-provided rewrite strategy. The default
// migrator ships the identity behavior; applications wire a real rewrite
// by calling engine.WithEngineModifySQL themselves with their own
// ModifySQLFunc built around cfg.Migration.SchemaQualify.
func schemaQualifyModifier(cfg appconfig.MigrationConfig) ModifySQLFunc {
	if cfg.SchemaQualify == "" {
		return nil
	}
	return func(statement string) ([]string, error) {
		return []string{statement}, nil
	}
}

// NewEngineFromConfig builds a fully wired Engine, Store, and discovered
// Set from application configuration. The caller owns the returned
// Engine's lifetime; Store.Disconnect is called by Engine.Run itself.
func NewEngineFromConfig(cfg *appconfig.Config, log *zap.Logger) (*Engine, Set, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := openGormDB(cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	poolCfg := database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	if poolCfg.MaxOpenConns == 0 {
		poolCfg = database.DefaultPoolConfig()
	}

	modify := schemaQualifyModifier(cfg.Migration)

	store, err := NewDBStore(db, poolCfg, cfg.Migration.TableName, modify, log)
	if err != nil {
		return nil, nil, fmt.Errorf("build store: %w", err)
	}

	set, err := discoverSet(cfg.Migration)
	if err != nil {
		return nil, nil, fmt.Errorf("discover migrations: %w", err)
	}

	opts := []EngineOption{}
	if modify != nil {
		opts = append(opts, WithEngineModifySQL(modify))
	}

	engine, err := NewEngine(store, log, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("build engine: %w", err)
	}

	return engine, set, nil
}

func discoverSet(cfg appconfig.MigrationConfig) (Set, error) {
	exclude := cfg.ExcludeScripts
	if cfg.InitScript != "" {
		exclude = append(append([]string{}, exclude...), cfg.InitScript)
	}
	d := NewDiscovery(nil).WithExclude(exclude)

	if cfg.ArchivePath != "" {
		f, err := os.Open(cfg.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("open migration archive: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat migration archive: %w", err)
		}
		return d.ScanZip(f, info.Size())
	}

	set, err := d.Scan(os.DirFS(cfg.Dir))
	if err != nil {
		return nil, err
	}
	if cfg.ParentDir == "" {
		return set, nil
	}

	parentSet, err := d.Scan(os.DirFS(cfg.ParentDir))
	if err != nil {
		return nil, fmt.Errorf("scan parent_dir: %w", err)
	}
	return Merge(parentSet, set), nil
}
