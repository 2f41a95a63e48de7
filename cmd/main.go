package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	_ "github.com/Sese-Schneider/ha-cover-time-based-sub000/docs"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/cover"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/handlers"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/logger"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/relay"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/repository"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/server"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/service"
)

// pollTick drives the position estimator; 100ms keeps the estimate within
// one percent of travel for covers slower than ten seconds end to end.
const pollTick = 100 * time.Millisecond

// @title           Cover Controller API
// @version         1.0
// @description     Time-based position control for a motorized cover without a feedback sensor.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// load config.yml first so the log level is configurable
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log.level"))

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// relay driver
	driver, err := openDriver(log)
	if err != nil {
		log.Fatalw("failed to open relay driver", "err", err)
	}
	defer driver.Close()

	// wire dependencies
	repos := repository.NewRepository(db)
	ctrl, err := service.BuildCover(coverConfig(), wiringConfig(), driver, repos, log.Named("cover"))
	if err != nil {
		log.Fatalw("failed to build cover controller", "err", err)
	}
	services := service.NewService(repos, ctrl, viper.GetString("auth.signing_key"), log)
	apiHandler := handlers.NewHandler(services, log.Named("http"))

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// start the estimator poll loop
	go ctrl.Run(ctx, pollTick)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetDefault("auth.signing_key", "change-me")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "cover.db")
		dbPath = "cover.db"
	}
	return repository.InitDB(dbPath)
}

// openDriver selects the relay backend. The loopback bank echoes commands
// in memory and is the default for development.
func openDriver(log *logger.Logger) (relay.Driver, error) {
	switch typ := viper.GetString("relay.type"); typ {
	case "", "loopback":
		log.Infow("using loopback relay driver")
		return relay.NewLoopback(), nil
	case "serial":
		device := viper.GetString("relay.device")
		baud := viper.GetInt("relay.baud")
		if baud == 0 {
			baud = 9600
		}
		log.Infow("opening serial relay board", "device", device, "baud", baud)
		return relay.OpenSerialBoard(device, baud)
	default:
		return nil, fmt.Errorf("unknown relay.type %q", typ)
	}
}

// coverConfig reads the timing and linkage configuration.
func coverConfig() cover.Config {
	return cover.Config{
		TravelOpen:       viper.GetDuration("cover.travel_open"),
		TravelClose:      viper.GetDuration("cover.travel_close"),
		TiltOpen:         viper.GetDuration("cover.tilt_open"),
		TiltClose:        viper.GetDuration("cover.tilt_close"),
		StartupDelay:     viper.GetDuration("cover.startup_delay"),
		TiltStartupDelay: viper.GetDuration("cover.tilt_startup_delay"),
		EndpointRunOn:    viper.GetDuration("cover.endpoint_run_on"),
		MinMovement:      viper.GetDuration("cover.min_movement"),
		TiltMode:         viper.GetString("cover.tilt_mode"),
		SafeTilt:         viper.GetInt("cover.safe_tilt"),
		MinTiltPosition:  viper.GetInt("cover.min_tilt_position"),
	}
}

// wiringConfig reads how the relay channels are connected to the motor.
func wiringConfig() relay.Wiring {
	mode := relay.ModeSwitch
	if viper.GetString("relay.mode") == "toggle" {
		mode = relay.ModeToggle
	}
	pulse := viper.GetDuration("relay.pulse_width")
	if pulse == 0 {
		pulse = 500 * time.Millisecond
	}
	return relay.Wiring{
		Mode:        mode,
		StopChannel: viper.GetBool("relay.stop_channel"),
		PulseWidth:  pulse,
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
