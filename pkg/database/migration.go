package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// migrationLogger adapts ectologger to migrate's Logger interface
type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return true }

func (l migrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

type MigrationConfig struct {
	MigrationFolderPath string
	Version             uint // target version, 0 = latest
	Force               int  // force the schema version before migrating, 0 = off
	AutoRollback        bool // revert a dirty database to the previous version on failure
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// Migrate applies pending migrations to the database.
func (ms *MigrationService) Migrate(databaseName string, databaseInstance database.Driver) error {
	folder := ms.resolveFolder()
	if _, err := os.Stat(folder); err != nil {
		return errors.Wrapf(err, "migration folder %s does not exist", folder)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, databaseInstance)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	m.Log = migrationLogger{Logger: ms.logger}

	return ms.run(m)
}

// resolveFolder makes the configured path absolute relative to the working
// directory so the service can run from the repo root or a container image.
func (ms *MigrationService) resolveFolder() string {
	folder := ms.config.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, folder)
}

func (ms *MigrationService) run(m *migrate.Migrate) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	previous, _, versionErr := m.Version()
	if versionErr != nil {
		previous = 0
	}

	start := time.Now()
	var migrationErr error
	if ms.config.Version != 0 {
		migrationErr = m.Migrate(ms.config.Version)
	} else {
		migrationErr = m.Up()
	}
	ms.logger.Infof("Database migrations completed in %v", time.Since(start))

	return ms.handleResult(m, migrationErr, previous)
}

func (ms *MigrationService) handleResult(m *migrate.Migrate, err error, previousVersion uint) error {
	if err == nil {
		ms.logger.Info("Successfully applied migrations")
		return nil
	}
	if err == migrate.ErrNoChange {
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// "no migration found for version" means the schema is ahead of the files,
	// usually after a deploy rollback; pin to the latest known version.
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, latestErr := latestVersion(ms.resolveFolder())
		if latestErr != nil {
			ms.logger.WithError(latestErr).Error("Failed to get latest migration version")
			return err
		}
		ms.logger.Warnf("No migration found for version %d; forcing database to version %d", previousVersion, latest)
		return m.Force(latest)
	}

	ms.logger.WithError(err).Errorf("Migration failed with error: %v", err)

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		return err
	}

	if ms.config.AutoRollback && dirty {
		if previousVersion == 0 {
			previousVersion = version - 1
		}
		ms.logger.Warnf("Database is dirty at version %d; reverting to version %d", version, previousVersion)
		if forceErr := m.Force(int(previousVersion)); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("Failed to force database to version %d", previousVersion)
			return forceErr
		}
		// the revert succeeded but the migration did not; refuse to start
		return err
	}

	ms.logger.WithError(err).Errorf("Failed to apply migrations. Database version is dirty=%t at version %d", dirty, version)
	return err
}

// latestVersion finds the highest numbered *.up.sql file in the folder
func latestVersion(folderPath string) (int, error) {
	files, err := os.ReadDir(folderPath)
	if err != nil {
		return 0, err
	}

	re := regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)
	var versions []int
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := re.FindStringSubmatch(file.Name())
		if len(matches) > 1 {
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				return 0, err
			}
			versions = append(versions, version)
		}
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}
	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
