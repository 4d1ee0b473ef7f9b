// Command olsrd runs one OLSR/ETX-OLSR engine participant, binding a
// Transport to the configured interfaces and serving it until an OS signal
// asks it to stop. It is the generalization of the teacher's bare main(),
// which only ever assembled an in-process simulation, into a standalone
// daemon entrypoint.
package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	olsr "github.com/anlitiantian/ETX-OLSR"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "olsrd",
		Short: "Run an ETX-OLSR routing daemon",
		Long: `olsrd runs a single ETX-OLSR participant: it floods HELLO/TC/MID/HNA
control traffic over UDP/698 on its configured interfaces, maintains the
link, neighbor, MPR, and topology sets, and recomputes an ETX-weighted
routing table whenever they change.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the config file's log_level")

	root.AddCommand(runCmd(), configCmd(), versionCmd())
	return root
}

func runCmd() *cobra.Command {
	var ifaceFlags []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(ifaceFlags)
		},
	}
	cmd.Flags().StringSliceVar(&ifaceFlags, "iface", nil, "interface address to participate on (repeatable); first is the main address")
	return cmd
}

func configCmd() *cobra.Command {
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("config ok: hello=%s tc=%s mid=%s hna=%s willingness=%d radius=%.1fm\n",
				cfg.HelloInterval, cfg.TcInterval, cfg.MidInterval, cfg.HnaInterval,
				cfg.Willingness, cfg.MaxCommunicationRadius)
			return nil
		},
	}
	parent := &cobra.Command{Use: "config", Short: "Config file operations"}
	parent.AddCommand(validate)
	return parent
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the olsrd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

// version is overridden at build time via -ldflags.
var version = "dev"

func loadConfig() (*olsr.Config, error) {
	var cfg olsr.Config
	if configPath != "" {
		loaded, err := olsr.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	} else {
		cfg.ApplyDefaults()
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log_level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zapLevel
	return zcfg.Build()
}

func parseIfaces(raw []string) ([]netip.Addr, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --iface is required")
	}
	addrs := make([]netip.Addr, 0, len(raw))
	for _, s := range raw {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("--iface %q: %w", s, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// subnetBroadcastOf resolves iface to its subnet-directed broadcast address
// (§4.10), the way ns-3's olsr helper derives one per socket via
// GetSubnetDirectedBroadcast(mask) rather than assuming a single well-known
// address. It looks up the OS-reported netmask for iface among the host's
// configured interfaces; if iface isn't bound locally (or its netmask can't
// be determined) it falls back to the historical class-based default so a
// bind failure never results from a broadcast-address miss.
func subnetBroadcastOf(iface netip.Addr) netip.Addr {
	if mask, ok := localNetmask(iface); ok {
		return subnetDirectedBroadcast(iface, mask)
	}
	return subnetDirectedBroadcast(iface, classfulMask(iface))
}

// localNetmask searches the host's network interfaces for the IPv4 address
// matching iface and returns its configured netmask.
func localNetmask(iface netip.Addr) (net.IPMask, bool) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, false
	}
	target := iface.As4()
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil || [4]byte(ip4) != target {
			continue
		}
		return ipnet.Mask, true
	}
	return nil, false
}

// classfulMask derives a historical class-based netmask for iface when no
// OS-reported netmask is available, matching how a standalone participant
// outside any configured interface table still needs some broadcast target.
func classfulMask(iface netip.Addr) net.IPMask {
	b := iface.As4()
	switch {
	case b[0] < 128:
		return net.CIDRMask(8, 32)
	case b[0] < 192:
		return net.CIDRMask(16, 32)
	default:
		return net.CIDRMask(24, 32)
	}
}

// subnetDirectedBroadcast ORs the host bits of mask into iface, producing the
// subnet-directed broadcast address for that interface/netmask pair.
func subnetDirectedBroadcast(iface netip.Addr, mask net.IPMask) netip.Addr {
	b := iface.As4()
	for i := range b {
		b[i] |= ^mask[i]
	}
	return netip.AddrFrom4(b)
}

func runDaemon(ifaceFlags []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ifaces, err := parseIfaces(ifaceFlags)
	if err != nil {
		return err
	}
	self := ifaces[0]

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	exclusions := make(map[netip.Addr]struct{}, len(cfg.InterfaceExclusions))
	for _, s := range cfg.InterfaceExclusions {
		if a, err := netip.ParseAddr(s); err == nil {
			exclusions[a] = struct{}{}
		}
	}

	transport, err := olsr.NewTransport(ifaces, subnetBroadcastOf, exclusions, logger)
	if err != nil {
		return fmt.Errorf("bind transport: %w", err)
	}
	defer transport.Close()

	metrics := olsr.NewMetrics(prometheus.DefaultRegisterer)
	engine := olsr.NewEngine(self, ifaces[1:], *cfg, olsr.RealClock{}, transport, olsr.StaticMobility{}, logger, metrics)

	transport.Run(engine.IngestDatagram)
	engine.Start()
	defer engine.Stop()

	started := time.Now()
	logger.Info("olsrd started",
		zap.String("self", self.String()),
		zap.Int("interfaces", len(ifaces)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("olsrd stopping",
		zap.String("uptime", humanize.RelTime(started, time.Now(), "", "")),
		zap.Int("routes", len(engine.GetRoutingTableEntries())),
	)
	return nil
}
