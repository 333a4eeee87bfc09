package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"matter-core/pkg/clock"
	"matter-core/pkg/config"
	"matter-core/pkg/discovery"
	"matter-core/pkg/logging"
	"matter-core/pkg/mnet"
)

func advertiseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advertise",
		Short: "Publish this node's mDNS service records",
	}
	cmd.AddCommand(advertiseOperationalCmd(), advertiseCommissionableCmd())
	return cmd
}

func advertiseOperationalCmd() *cobra.Command {
	var (
		port      int
		txt       []string
		durationS int
	)
	cmd := &cobra.Command{
		Use:   "operational",
		Short: "Advertise this node's operational service for its configured fabric",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fab, err := loadLocalFabric(cfg)
			if err != nil {
				return err
			}
			reg := &discovery.Registration{
				InstanceName: discovery.OperationalQName(fab.OperationalID, fab.NodeID),
				ServiceName:  discovery.OperationalService,
				Port:         uint16(port),
				TXT:          txt,
				ServiceTTL:   4500,
				AddressTTL:   120,
			}
			return runAdvertise(cfg, reg, durationS)
		},
	}
	cmd.Flags().IntVar(&port, "port", mnet.Port, "operational service port")
	cmd.Flags().StringSliceVar(&txt, "txt", nil, "TXT key=value entries, may be repeated")
	cmd.Flags().IntVar(&durationS, "duration", 0, "seconds to advertise before exiting; 0 runs until interrupted")
	return cmd
}

func advertiseCommissionableCmd() *cobra.Command {
	var (
		instance  string
		port      int
		txt       []string
		durationS int
	)
	cmd := &cobra.Command{
		Use:   "commissionable",
		Short: "Advertise this node as commissionable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if instance == "" {
				return fmt.Errorf("matterd: --instance is required")
			}
			reg := &discovery.Registration{
				InstanceName: instance + "." + discovery.CommissionableService,
				ServiceName:  discovery.CommissionableService,
				Port:         uint16(port),
				TXT:          txt,
				ServiceTTL:   4500,
				AddressTTL:   120,
			}
			return runAdvertise(cfg, reg, durationS)
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "commissionable instance id")
	cmd.Flags().IntVar(&port, "port", mnet.Port, "commissionable service port")
	cmd.Flags().StringSliceVar(&txt, "txt", nil, "TXT key=value entries, may be repeated")
	cmd.Flags().IntVar(&durationS, "duration", 0, "seconds to advertise before exiting; 0 runs until interrupted")
	return cmd
}

// runAdvertise opens a transport per cfg, registers reg, and blocks either
// for durationS seconds or until SIGINT/SIGTERM, unregistering on the way
// out (RFC-6762 §10.1 goodbye).
func runAdvertise(cfg *config.Config, reg *discovery.Registration, durationS int) error {
	transport, err := mnet.Create(mnet.Config{
		Interface:  cfg.Discovery.InterfaceOverride,
		EnableIPv4: cfg.Discovery.EnableIPv4,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer transport.Close()

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "matterd.local"
	} else {
		hostname += ".local"
	}

	factory := logging.NewFactory(logger)
	responder := discovery.NewResponder(transport, clock.New(), hostname, localAddressesForInterface,
		discovery.WithResponderLogger(factory.NewLogger("responder")))
	responder.Register(reg)
	defer responder.Unregister(reg.InstanceName)
	defer responder.Close()

	logger.Infof("advertising %s", reg.InstanceName)

	if durationS > 0 {
		time.Sleep(time.Duration(durationS) * time.Second)
		return nil
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

// localAddressesForInterface resolves every non-loopback unicast address on
// the named interface (or, if empty, every up interface) for the responder's
// A/AAAA records.
func localAddressesForInterface(ifaceName string) []net.IP {
	var ifaces []net.Interface
	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return nil
		}
		ifaces = []net.Interface{*iface}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return nil
		}
		ifaces = all
	}

	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			out = append(out, ipNet.IP)
		}
	}
	return out
}
