package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siwa2904/zkclient"
	"github.com/siwa2904/zkclient/internal/config"
	"github.com/siwa2904/zkclient/internal/logging"
	"github.com/siwa2904/zkclient/internal/poller"
	"github.com/siwa2904/zkclient/internal/store"
)

// Command flags
var (
	configPath string
	pollOnce   bool

	deviceHost      string
	devicePort      int
	deviceTransport string
	deviceProtocol  string
	deviceTimeout   time.Duration
	devicePin       int
	deviceTimezone  string
	strictAck       bool

	jsonOutput   bool
	clearAfter   bool
	noDisable    bool
	confirmClear bool
)

func init() {
	pollCmd.Flags().StringVarP(&configPath, "config", "c", "zkpoll.yaml", "Configuration file")
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "Poll every device once and exit")

	for _, cmd := range []*cobra.Command{fetchCmd, clearCmd, infoCmd} {
		addDeviceFlags(cmd)
	}
	fetchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")
	fetchCmd.Flags().BoolVar(&clearAfter, "clear", false, "Clear the log after a complete read")
	fetchCmd.Flags().BoolVar(&noDisable, "no-disable", false, "Do not lock the terminal while reading")
	clearCmd.Flags().BoolVar(&confirmClear, "yes", false, "Confirm erasing the attendance log")
	infoCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")

	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(infoCmd)
}

func addDeviceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&deviceHost, "host", "", "Terminal address (required)")
	cmd.Flags().IntVar(&devicePort, "port", zkclient.DefaultPort, "Terminal port")
	cmd.Flags().StringVar(&deviceTransport, "transport", "udp", "Transport: udp or tcp")
	cmd.Flags().StringVar(&deviceProtocol, "protocol", "standard", "Command table: standard, legacy or auto")
	cmd.Flags().DurationVar(&deviceTimeout, "timeout", zkclient.DefaultRecvTimeout, "Receive timeout per reply")
	cmd.Flags().IntVar(&devicePin, "pin", 0, "Communication key")
	cmd.Flags().StringVar(&deviceTimezone, "timezone", "", "IANA zone of the terminal clock (default local)")
	cmd.Flags().BoolVar(&strictAck, "strict-ack", false, "Fail commands that get no reply")
	_ = cmd.MarkFlagRequired("host")
}

// flagDevice builds a device from the single device flags.
func flagDevice() config.Device {
	disable := !noDisable
	return config.Device{
		ID:                  fmt.Sprintf("%s:%d", deviceHost, devicePort),
		Host:                deviceHost,
		Port:                devicePort,
		Transport:           deviceTransport,
		Protocol:            deviceProtocol,
		Timeout:             deviceTimeout,
		Pin:                 devicePin,
		Timezone:            deviceTimezone,
		StrictAck:           strictAck,
		DisableWhileReading: &disable,
		ClearAfterRead:      clearAfter,
	}
}

// connect opens a session with the terminal named by the flags.
func connect() (*zkclient.ZK, error) {
	dev := flagDevice()
	if err := dev.Validate(); err != nil {
		return nil, err
	}
	opts, err := dev.ClientOptions()
	if err != nil {
		return nil, err
	}
	log := logging.Device(dev.ID, dev.Transport+"://"+dev.ID).Sugar()
	zk := zkclient.NewZK(dev.Host, dev.Port, append(opts, zkclient.WithLogger(log))...)

	ok, err := zk.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", zk.Endpoint(), err)
	}
	if !ok {
		return nil, fmt.Errorf("connect %s: %w", zk.Endpoint(), poller.ErrNoReply)
	}
	return zk, nil
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll configured terminals into the database",
	Long: `Polls every terminal in the configuration file on its schedule and stores
new punches in SQLite. Punches already stored are ignored, so terminals that
are never cleared can be polled repeatedly.`,
	Example: `  # Run the scheduler until interrupted
  zkpoll poll --config /etc/zkpoll.yaml

  # Poll everything once, e.g. from an external cron
  zkpoll poll --once`,
	RunE: runPoll,
}

func runPoll(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel == "" {
		if err := logging.Initialize(cfg.LogLevel); err != nil {
			return err
		}
	}
	logger := logging.GetLogger()
	defer logger.Sync()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := poller.New(cfg, db, logger)
	if pollOnce {
		failed := 0
		for _, r := range p.PollAll(ctx) {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
				failed++
			}
			fmt.Printf("%-20s fetched=%d stored=%d cleared=%t %s\n", r.DeviceID, r.Fetched, r.Stored, r.Cleared, status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d devices failed", failed, len(cfg.Devices))
		}
		return nil
	}

	if err := p.Start(ctx); err != nil {
		return err
	}
	logger.Info("poller started", zap.Int("devices", len(cfg.Devices)), zap.String("store", cfg.Store.Path))
	<-ctx.Done()
	logger.Info("stopping poller")
	p.Stop()
	return nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Read the attendance log of one terminal",
	Example: `  zkpoll fetch --host 192.168.1.201
  zkpoll fetch --host 192.168.1.201 --transport tcp --protocol auto --json`,
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	zk, err := connect()
	if err != nil {
		return err
	}
	defer zk.Disconnect()

	if !noDisable {
		if _, err := zk.DisableDevice(); err != nil {
			return err
		}
	}
	log, readErr := zk.ReadAttendance()
	if !noDisable {
		if _, err := zk.EnableDevice(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: enable device: %v\n", err)
		}
	}
	if readErr != nil {
		return readErr
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(log.Records); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tTIME\tSTATE")
		for _, r := range log.Records {
			fmt.Fprintf(w, "%s\t%s\t%d\n", r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.State)
		}
		w.Flush()
		fmt.Fprintf(os.Stderr, "%d records, %d/%d bytes via %s protocol\n", len(log.Records), log.Received, log.DeclaredSize, log.Protocol)
	}

	if log.Truncated {
		return fmt.Errorf("transfer truncated at %d of %d bytes", log.Received, log.DeclaredSize)
	}
	if clearAfter && len(log.Records) > 0 {
		ok, err := zk.ClearAttendance()
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("device did not confirm clear")
		}
		fmt.Fprintln(os.Stderr, "Attendance log cleared")
	}
	return nil
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase the attendance log of one terminal",
	Long: `Erases every punch stored on the terminal. Punches not fetched beforehand
are lost, so --yes is required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmClear {
			return errors.New("refusing to clear without --yes")
		}
		cmd.SilenceUsage = true

		zk, err := connect()
		if err != nil {
			return err
		}
		defer zk.Disconnect()

		ok, err := zk.ClearAttendance()
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("device did not confirm clear")
		}
		fmt.Println("Attendance log cleared")
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show terminal identity and clock",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		zk, err := connect()
		if err != nil {
			return err
		}
		defer zk.Disconnect()

		info, err := zk.GetDeviceInfo()
		if err != nil {
			return err
		}
		clock, clockErr := zk.GetTime()

		if jsonOutput {
			out := struct {
				*zkclient.DeviceInfo
				Time *time.Time `json:"time,omitempty"`
			}{DeviceInfo: info}
			if clockErr == nil {
				out.Time = &clock
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Endpoint:\t%s\n", zk.Endpoint())
		fmt.Fprintf(w, "Session:\t%d\n", zk.SessionID())
		fmt.Fprintf(w, "Name:\t%s\n", info.Name)
		fmt.Fprintf(w, "Serial:\t%s\n", info.SerialNumber)
		fmt.Fprintf(w, "Platform:\t%s\n", info.Platform)
		fmt.Fprintf(w, "Firmware:\t%s\n", info.FirmwareVersion)
		fmt.Fprintf(w, "MAC:\t%s\n", info.MAC)
		if clockErr == nil {
			fmt.Fprintf(w, "Clock:\t%s\n", clock.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}
