package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"matter-core/pkg/clock"
	"matter-core/pkg/discovery"
	"matter-core/pkg/fabric"
	"matter-core/pkg/logging"
	"matter-core/pkg/mnet"
)

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Browse the network for Matter devices over mDNS",
	}
	cmd.AddCommand(scanOperationalCmd(), scanCommissionableCmd())
	return cmd
}

func scanOperationalCmd() *cobra.Command {
	var timeoutSec int
	cmd := &cobra.Command{
		Use:   "operational <operational-id-hex> <node-id-hex>",
		Short: "Resolve one operational device's addresses by its compressed fabric id and node id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opBytes, err := hex.DecodeString(args[0])
			if err != nil || len(opBytes) != fabric.OperationalIDSize {
				return fmt.Errorf("operational-id must be %d hex bytes", fabric.OperationalIDSize)
			}
			var opID [fabric.OperationalIDSize]byte
			copy(opID[:], opBytes)

			nodeIDRaw, err := hex.DecodeString(args[1])
			if err != nil || len(nodeIDRaw) > 8 {
				return fmt.Errorf("node-id must be up to 8 hex bytes")
			}
			var nodeIDVal uint64
			for _, b := range nodeIDRaw {
				nodeIDVal = nodeIDVal<<8 | uint64(b)
			}

			scanner, transport, err := newScannerFromFlags(cmd)
			if err != nil {
				return err
			}
			defer transport.Close()
			defer scanner.Close()

			device, err := scanner.FindOperationalDevice(opID, fabric.NodeID(nodeIDVal), time.Duration(timeoutSec)*time.Second)
			if err != nil {
				return err
			}
			printDevice(device)
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSec, "timeout", 5, "seconds to wait for a response")
	return cmd
}

func scanCommissionableCmd() *cobra.Command {
	var (
		timeoutSec     int
		longDisc       int
		shortDisc      int
		vendorID       int
		deviceType     int
		productID      int
		instanceID     string
		commissionOnly bool
		watch          bool
	)
	cmd := &cobra.Command{
		Use:   "commissionable",
		Short: "Browse for commissionable devices, optionally filtered by discriminator, vendor, device type, or product",
		RunE: func(cmd *cobra.Command, args []string) error {
			ident := discovery.Identifier{CommissioningModeOnly: commissionOnly}
			if instanceID != "" {
				ident.InstanceID = &instanceID
			}
			if cmd.Flags().Changed("long-discriminator") {
				d := uint16(longDisc)
				ident.LongDiscriminator = &d
			}
			if cmd.Flags().Changed("short-discriminator") {
				d := uint8(shortDisc)
				ident.ShortDiscriminator = &d
			}
			if cmd.Flags().Changed("vendor-id") {
				v := fabric.VendorID(vendorID)
				ident.VendorID = &v
			}
			if cmd.Flags().Changed("device-type") {
				t := uint16(deviceType)
				ident.DeviceType = &t
			}
			if cmd.Flags().Changed("product-id") {
				p := fabric.ProductID(productID)
				ident.ProductID = &p
			}

			scanner, transport, err := newScannerFromFlags(cmd)
			if err != nil {
				return err
			}
			defer transport.Close()
			defer scanner.Close()

			timeout := time.Duration(timeoutSec) * time.Second
			if watch {
				return scanner.FindCommissionableDevicesContinuously(ident, printDevice, timeout)
			}
			device, err := scanner.FindCommissionableDevices(ident, timeout)
			if err != nil {
				return err
			}
			printDevice(device)
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSec, "timeout", 5, "seconds to wait for responses")
	cmd.Flags().IntVar(&longDisc, "long-discriminator", 0, "match on the 12-bit long discriminator")
	cmd.Flags().IntVar(&shortDisc, "short-discriminator", 0, "match on the 4-bit short discriminator")
	cmd.Flags().IntVar(&vendorID, "vendor-id", 0, "match on vendor id")
	cmd.Flags().IntVar(&deviceType, "device-type", 0, "match on device type")
	cmd.Flags().IntVar(&productID, "product-id", 0, "match on product id")
	cmd.Flags().StringVar(&instanceID, "instance-id", "", "match on a specific commissionable instance id")
	cmd.Flags().BoolVar(&commissionOnly, "commissioning-mode-only", false, "match any device currently in commissioning mode")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep browsing and print every newly discovered device until timeout")
	return cmd
}

func newScannerFromFlags(cmd *cobra.Command) (*discovery.Scanner, *mnet.Transport, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	transport, err := mnet.Create(mnet.Config{
		Interface:  cfg.Discovery.InterfaceOverride,
		EnableIPv4: cfg.Discovery.EnableIPv4,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	factory := logging.NewFactory(logger)
	scanner := discovery.NewScanner(transport, clock.New(),
		discovery.WithIPv4(cfg.Discovery.EnableIPv4),
		discovery.WithLogger(factory.NewLogger("scanner")),
	)
	return scanner, transport, nil
}

func printDevice(d *discovery.DiscoveredDevice) {
	if d == nil {
		return
	}
	fmt.Println(d.DeviceIdentifier)
	for _, addr := range d.Addresses {
		fmt.Printf("  %s\n", addr.String())
	}
}
