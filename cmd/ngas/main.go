package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/ngas-archive/ngas/pkg/archive"
	"github.com/ngas-archive/ngas/pkg/cache"
	"github.com/ngas-archive/ngas/pkg/catalog"
	"github.com/ngas-archive/ngas/pkg/client"
	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/dapi"
	"github.com/ngas-archive/ngas/pkg/events"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/metrics"
	"github.com/ngas-archive/ngas/pkg/mimetype"
	"github.com/ngas-archive/ngas/pkg/server"
	"github.com/ngas-archive/ngas/pkg/subscription"
	"github.com/ngas-archive/ngas/pkg/types"
	"github.com/ngas-archive/ngas/pkg/volume"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ngas",
	Short: "NGAS - Next Generation Archive System",
	Long: `NGAS is an archive server for bulk scientific data. Clients push or
pull large files over HTTP; the server persists them onto managed disk
volumes, records metadata in a catalog, verifies integrity end-to-end and
fans out to downstream subscribers.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"NGAS version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(diskCmd)
	rootCmd.AddCommand(archiveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// Server commands

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the NGAS archive server",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the archive server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		cfg := config.Default()
		if cfgPath != "" {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
		}
		if bindAddr != "" {
			cfg.BindAddr = bindAddr
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}

		return runServer(cfg)
	},
}

func runServer(cfg *config.Config) error {
	// Re-initialize logging with the host id now that configuration is
	// loaded, keeping the command-line level and format.
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
		HostID:     cfg.HostID,
	})
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := catalog.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("catalog", true, "")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	var notifier *cache.Notifier
	if cfg.CachingActive {
		notifier, err = cache.NewNotifier(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open cache-control database: %w", err)
		}
		defer notifier.Close()
	}

	volumes := volume.NewRegistry(store, cfg.HostID)
	resolver := mimetype.NewResolver(cfg.MimeTypeMappings)
	plugins := dapi.NewRegistry()
	plugins.Register(dapi.GenPlugInName, dapi.GenPlugIn{})
	trigger := subscription.NewTrigger()

	srvCtx := archive.NewServerContext()
	coordinator := archive.NewCoordinator(cfg, srvCtx, store, volumes, resolver, plugins, broker, trigger, notifier)

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()
	metrics.SetVersion(Version)

	// Log operator notifications until a real notification channel is wired.
	go logNotifications(broker)

	srv := server.NewServer(cfg, srvCtx, coordinator)
	srvCtx.SetOnline()
	metrics.RegisterComponent("server", true, "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(nil)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	srvCtx.SetOffline()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func logNotifications(broker *events.Broker) {
	logger := log.WithComponent("notify")
	sub := broker.Subscribe()
	for event := range sub {
		if event.Type == events.EventNotifyNoDisks {
			logger.Error().Str("event_id", event.ID).Msg(event.Message)
		}
	}
}

// Disk commands

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Manage archive volumes",
}

var diskRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a mounted volume with the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		slotID, _ := cmd.Flags().GetString("slot-id")
		mountPoint, _ := cmd.Flags().GetString("mount-point")
		hostID, _ := cmd.Flags().GetString("host-id")

		if mountPoint == "" {
			return fmt.Errorf("--mount-point is required")
		}
		if hostID == "" {
			hostID, _ = os.Hostname()
		}

		store, err := catalog.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		disk := &types.DiskInfo{
			DiskID:     uuid.NewString(),
			HostID:     hostID,
			SlotID:     slotID,
			MountPoint: mountPoint,
		}
		if err := store.RegisterDisk(disk); err != nil {
			return err
		}
		fmt.Printf("Registered disk %s (slot %s) at %s\n", disk.DiskID, slotID, mountPoint)
		return nil
	},
}

var diskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		store, err := catalog.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		disks, err := store.ListDisks()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DISK ID\tSLOT\tMOUNT\tFILES\tBYTES\tCOMPLETED")
		for _, d := range disks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%v\n",
				d.DiskID, d.SlotID, d.MountPoint, d.NumberOfFiles, d.BytesStored, d.Completed)
		}
		return w.Flush()
	},
}

// Archive commands (client side)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive files onto a server",
}

var archivePushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Push a local file to the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		c := client.NewClient(addr, timeout)
		status, err := c.ArchivePush(args[0])
		if err != nil {
			return err
		}
		printArchiveStatus(status)
		return nil
	},
}

var archivePullCmd = &cobra.Command{
	Use:   "pull <uri>",
	Short: "Ask the server to fetch a remote URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		fileVersion, _ := cmd.Flags().GetInt("file-version")

		c := client.NewClient(addr, timeout)
		status, err := c.ArchivePull(args[0], fileVersion)
		if err != nil {
			return err
		}
		printArchiveStatus(status)
		return nil
	},
}

var archiveDirCmd = &cobra.Command{
	Use:   "dir <directory>",
	Short: "Push a directory tree as one container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		c := client.NewClient(addr, timeout)
		status, err := c.ArchiveDir(args[0])
		if err != nil {
			return err
		}
		printArchiveStatus(status)
		return nil
	},
}

var archiveBBCPCmd = &cobra.Command{
	Use:   "bbcp <user@host:/path>",
	Short: "Ask the server to pull through bbcp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		mimeType, _ := cmd.Flags().GetString("mime-type")
		port, _ := cmd.Flags().GetInt("port")
		streams, _ := cmd.Flags().GetInt("streams")
		winSize, _ := cmd.Flags().GetString("winsize")

		c := client.NewClient(addr, timeout)
		status, err := c.ArchiveBBCP(args[0], mimeType, port, streams, winSize)
		if err != nil {
			return err
		}
		printArchiveStatus(status)
		return nil
	},
}

func printArchiveStatus(status *client.ArchiveStatus) {
	fmt.Println(status.Status.Message)
	for _, f := range status.Files {
		fmt.Printf("  %s version %d on disk %s (crc %s)\n",
			f.FileID, f.FileVersion, f.DiskID, f.Checksum)
	}
}

func init() {
	serverStartCmd.Flags().String("config", "", "Path to configuration file")
	serverStartCmd.Flags().String("bind-addr", "", "Address to serve on (overrides config)")
	serverStartCmd.Flags().String("data-dir", "", "Catalog data directory (overrides config)")
	serverCmd.AddCommand(serverStartCmd)

	diskRegisterCmd.Flags().String("data-dir", "/var/lib/ngas", "Catalog data directory")
	diskRegisterCmd.Flags().String("slot-id", "", "Slot hosting the volume")
	diskRegisterCmd.Flags().String("mount-point", "", "Volume mount point")
	diskRegisterCmd.Flags().String("host-id", "", "Host id (defaults to hostname)")
	diskListCmd.Flags().String("data-dir", "/var/lib/ngas", "Catalog data directory")
	diskCmd.AddCommand(diskRegisterCmd)
	diskCmd.AddCommand(diskListCmd)

	for _, c := range []*cobra.Command{archivePushCmd, archivePullCmd, archiveDirCmd, archiveBBCPCmd} {
		c.Flags().String("addr", "localhost:7777", "Server address")
		c.Flags().Duration("timeout", 2*time.Hour, "Request timeout")
	}
	archivePullCmd.Flags().Int("file-version", 0, "Override the archived file version")
	archiveBBCPCmd.Flags().String("mime-type", "application/octet-stream", "MIME type of the source")
	archiveBBCPCmd.Flags().Int("port", 0, "bbcp control port")
	archiveBBCPCmd.Flags().Int("streams", 0, "bbcp parallel streams")
	archiveBBCPCmd.Flags().String("winsize", "", "bbcp window size")
	archiveCmd.AddCommand(archivePushCmd)
	archiveCmd.AddCommand(archivePullCmd)
	archiveCmd.AddCommand(archiveDirCmd)
	archiveCmd.AddCommand(archiveBBCPCmd)
}
