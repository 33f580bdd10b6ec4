// Package wire provides dependency injection for the foreman application.
// It creates singleton services with lazy initialization.
package wire

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	backlogadapter "github.com/example/foreman/internal/adapters/backlog"
	"github.com/example/foreman/internal/adapters/notify"
	"github.com/example/foreman/internal/adapters/oracle"
	"github.com/example/foreman/internal/adapters/persistence"
	"github.com/example/foreman/internal/adapters/proc"
	"github.com/example/foreman/internal/adapters/sqlite"
	"github.com/example/foreman/internal/adapters/tmux"
	"github.com/example/foreman/internal/adapters/workspace"
	"github.com/example/foreman/internal/app"
	"github.com/example/foreman/internal/config"
	"github.com/example/foreman/internal/core/dispatch"
	"github.com/example/foreman/internal/core/ownership"
	"github.com/example/foreman/internal/db"
	"github.com/example/foreman/internal/observability"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// oracleTimeout bounds one independence consultation.
const oracleTimeout = 30 * time.Second

var (
	cfg      *config.Config
	stateDir string

	queueService       primary.QueueService
	supervisorService  primary.SupervisorService
	coordinatorService primary.CoordinatorService
	controller         *app.Controller

	ownershipTable  *ownership.Table
	dispatchTable   *dispatch.Registry
	backlogSource   secondary.BacklogSource
	eventRepository secondary.EventRepository
	snapshotStore   secondary.SnapshotStore

	once sync.Once
)

// QueueService returns the singleton QueueService instance.
func QueueService() primary.QueueService {
	once.Do(initServices)
	return queueService
}

// SupervisorService returns the singleton SupervisorService instance.
func SupervisorService() primary.SupervisorService {
	once.Do(initServices)
	return supervisorService
}

// CoordinatorService returns the singleton CoordinatorService instance. It
// requires a configured trunk.
func CoordinatorService() primary.CoordinatorService {
	once.Do(initServices)
	if coordinatorService == nil {
		fatalTrunkUnset()
	}
	return coordinatorService
}

// Controller returns the singleton work loop controller. It requires a
// configured trunk.
func Controller() *app.Controller {
	once.Do(initServices)
	if controller == nil {
		fatalTrunkUnset()
	}
	return controller
}

// Config returns the loaded daemon configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// StateDir returns the resolved state directory.
func StateDir() string {
	once.Do(initServices)
	return stateDir
}

// OwnershipTable returns the validated write-ownership table.
func OwnershipTable() *ownership.Table {
	once.Do(initServices)
	return ownershipTable
}

// BacklogSource returns the read-only backlog view. It requires a configured
// trunk.
func BacklogSource() secondary.BacklogSource {
	once.Do(initServices)
	if backlogSource == nil {
		fatalTrunkUnset()
	}
	return backlogSource
}

// EventRepository returns the audit trail reader.
func EventRepository() secondary.EventRepository {
	once.Do(initServices)
	return eventRepository
}

// SnapshotStore returns the controller snapshot store.
func SnapshotStore() secondary.SnapshotStore {
	once.Do(initServices)
	return snapshotStore
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	logger := observability.InitLogger("foreman")

	var err error
	stateDir, err = db.StateDir()
	if err != nil {
		log.Fatalf("failed to resolve state directory: %v", err)
	}

	cfg, err = config.Load(stateDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Get database connection
	database, err := db.GetDB()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// The static partition and the dispatch table are construction-validated;
	// a bad configuration never reaches the work loop.
	ownershipTable, err = ownership.NewTable(ownership.DefaultRules(), ownership.DefaultSharedWrites())
	if err != nil {
		log.Fatalf("failed to build ownership table: %v", err)
	}
	dispatchTable, err = dispatch.NewRegistry(cfg.WorkerCommands)
	if err != nil {
		log.Fatalf("invalid worker configuration: %v", err)
	}

	// Create repository adapters (secondary ports) - sqlite adapters with injected DB
	taskRepo := sqlite.NewTaskRepository(database)
	processRepo := sqlite.NewProcessRepository(database)
	flagRepo := sqlite.NewMergeFlagRepository(database)
	eventRepository = sqlite.NewEventRepository(database)

	var launcher secondary.Launcher
	if cfg.UseTmux {
		launcher = tmux.NewLauncher(cfg.TmuxSession)
	} else {
		launcher = proc.NewLauncher()
	}

	notifier := notify.NewConsoleNotifier(nil, logger)
	snapshotStore = persistence.NewFileSnapshotStore(filepath.Join(stateDir, "snapshot.json"))

	// The workspace adapter exists only when a trunk is configured; the
	// supervisor tolerates running without one (context release is skipped).
	var worktrees secondary.WorkspaceAdapter
	if cfg.TrunkPath != "" {
		wt, err := workspace.NewWorktreeAdapter(cfg.TrunkPath, cfg.ResolvedContextsDir(stateDir))
		if err != nil {
			log.Fatalf("failed to initialize workspace: %v", err)
		}
		worktrees = wt
	}

	// Create services (primary ports implementation)
	queueService = app.NewQueueService(taskRepo, eventRepository)
	supervisorService = app.NewSupervisorService(processRepo, launcher, dispatchTable, worktrees,
		eventRepository, logger, filepath.Join(stateDir, "logs"))

	// Coordination and the work loop need the managed trunk.
	if cfg.TrunkPath == "" {
		return
	}

	var independence secondary.IndependenceOracle
	if cfg.OracleCommand != "" {
		independence, err = oracle.NewExecOracle(cfg.OracleCommand, oracleTimeout)
		if err != nil {
			log.Fatalf("invalid oracle command: %v", err)
		}
	} else {
		// No oracle means no parallelism: every pair reads as dependent.
		independence = oracle.NewConservative()
	}

	backlogSource = backlogadapter.NewFileSource(cfg.ResolvedBacklogPath())

	coordinatorService = app.NewCoordinatorService(queueService, supervisorService, independence,
		flagRepo, worktrees, processRepo, eventRepository, notifier, ownershipTable, logger,
		cfg.MergeRetryLimit)

	controller = app.NewController(queueService, supervisorService, coordinatorService,
		backlogSource, snapshotStore, notifier, logger, app.ControllerOptions{
			PollInterval:        cfg.PollInterval(),
			SpecBacklogTarget:   cfg.SpecBacklogTarget,
			MaxParallel:         cfg.MaxParallel,
			TaskTimeout:         cfg.TaskTimeout(),
			MaintenanceInterval: cfg.MaintenanceInterval(),
			RetentionDays:       cfg.RetentionDays,
		})
}

func fatalTrunkUnset() {
	log.Fatalf("trunk_path is not configured; run 'foreman init' and edit %s",
		filepath.Join(stateDir, config.FileName))
}
