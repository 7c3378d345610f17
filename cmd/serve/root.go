package serve

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/segkv/cmd/util"
	"github.com/ValentinKolb/segkv/lib/api"
	"github.com/ValentinKolb/segkv/lib/db"
	"github.com/ValentinKolb/segkv/lib/db/engines/segment"
	"github.com/ValentinKolb/segkv/lib/store/lstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the resolved configuration of the serve command.
type Config struct {
	DB              segment.DBOptions
	Endpoint        string
	LogLevel        string
	MaxValueBytes   int64
	ShutdownTimeout time.Duration
}

var (
	serveCmdConfig = &Config{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the segkv HTTP server",
		Long:    `Start the segkv HTTP server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SEGKV_<flag> (e.g. SEGKV_GC_INTERVAL_MS=250)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := segment.DefaultOptions()

	key := "initial-capacity"
	ServeCmd.Flags().Int(key, defaults.Map.InitialCapacity, cmdUtil.WrapString("Number of entries the map is sized for before any segment has to grow"))

	key = "load-factor"
	ServeCmd.Flags().Float64(key, defaults.Map.LoadFactor, cmdUtil.WrapString("Fill ratio at which a segment doubles its table"))

	key = "concurrency"
	ServeCmd.Flags().Int(key, defaults.Map.Concurrency, cmdUtil.WrapString("Estimated number of concurrently writing goroutines. Rounded up to a power of two, this is the number of segments"))

	key = "gc-interval-ms"
	ServeCmd.Flags().Int(key, int(defaults.GCInterval/time.Millisecond), cmdUtil.WrapString("Interval in milliseconds between sweeps that drop expired values and deleted keys (0 uses the default of 100ms)"))

	key = "tombstone-retention"
	ServeCmd.Flags().Uint64(key, defaults.TombstoneRetention, cmdUtil.WrapString("Number of writes a deleted key is kept as a tombstone so that older writes arriving late are still rejected (0 = until the next sweep)"))

	key = "endpoint"
	ServeCmd.Flags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen"))

	key = "max-value-kb"
	ServeCmd.Flags().Int(key, 16*1024, cmdUtil.WrapString("Largest value accepted by PUT, in KB"))

	key = "shutdown-timeout"
	ServeCmd.Flags().Int(key, 5, cmdUtil.WrapString("Seconds to wait for in-flight requests on shutdown"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := cmdUtil.InitLogging(); err != nil {
		return err
	}

	conf, err := configFromViper()
	if err != nil {
		return err
	}
	*serveCmdConfig = *conf
	return nil
}

// configFromViper builds and validates a Config from the bound viper keys.
func configFromViper() (*Config, error) {
	conf := &Config{
		DB:              *segment.DefaultOptions(),
		Endpoint:        viper.GetString("endpoint"),
		LogLevel:        viper.GetString("log-level"),
		MaxValueBytes:   viper.GetInt64("max-value-kb") * 1024,
		ShutdownTimeout: time.Duration(viper.GetInt("shutdown-timeout")) * time.Second,
	}
	conf.DB.Map.InitialCapacity = viper.GetInt("initial-capacity")
	conf.DB.Map.LoadFactor = viper.GetFloat64("load-factor")
	conf.DB.Map.Concurrency = viper.GetInt("concurrency")

	gcMs := viper.GetInt("gc-interval-ms")
	if gcMs < 0 {
		return nil, fmt.Errorf("invalid gc-interval-ms %d: must not be negative", gcMs)
	}
	conf.DB.GCInterval = time.Duration(gcMs) * time.Millisecond
	conf.DB.TombstoneRetention = viper.GetUint64("tombstone-retention")

	if err := conf.DB.Map.Validate(); err != nil {
		return nil, err
	}
	if conf.Endpoint == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}
	if conf.MaxValueBytes <= 0 {
		return nil, fmt.Errorf("invalid max-value-kb: must be positive")
	}
	return conf, nil
}

// run starts the server and blocks until SIGINT or SIGTERM.
func run(_ *cobra.Command, _ []string) error {
	sdb, err := segment.NewSegmentDB(&serveCmdConfig.DB)
	if err != nil {
		return err
	}
	s := lstore.NewLocalStore(func() db.KVDB { return sdb })
	defer s.Close()

	srv := api.NewServer(s, &api.Options{
		Endpoint:      serveCmdConfig.Endpoint,
		Debug:         serveCmdConfig.LogLevel == "debug",
		MaxValueBytes: serveCmdConfig.MaxValueBytes,
		Metrics:       func(w io.Writer) { sdb.Metrics().WritePrometheus(w) },
	})

	cmdUtil.Logger.Infof("segments=%d initial-capacity=%d load-factor=%.2f gc-interval=%s",
		sdb.MapStats().Segments, serveCmdConfig.DB.Map.InitialCapacity, serveCmdConfig.DB.Map.LoadFactor, serveCmdConfig.DB.GCInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	cmdUtil.Logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveCmdConfig.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
