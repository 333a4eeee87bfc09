package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"matter-core/pkg/casesession"
	"matter-core/pkg/config"
	"matter-core/pkg/fabric"
	"matter-core/pkg/session"
)

// Frame types for the length-prefixed TCP carrier matterd uses to exchange
// Σ1/Σ2/Σ2-resume/Σ3/StatusReport bytes between case dial and case listen.
// Framing the CASE exchange is explicitly out of this module's scope for
// pkg/casesession itself (§1); this is the CLI's own minimal transport, not
// a Matter message-exchange implementation.
const (
	frameSigma1       = 1
	frameSigma2       = 2
	frameSigma3       = 3
	frameSigma2Resume = 4
	frameStatusReport = 5
)

func writeFrame(w io.Writer, kind byte, payload []byte) error {
	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (byte, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(header[1:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return header[0], payload, nil
}

func encodeStatusReport(r *casesession.StatusReport) []byte {
	return []byte{byte(r.Code)}
}

func decodeStatusReport(b []byte) (*casesession.StatusReport, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("matterd: malformed status report frame")
	}
	return &casesession.StatusReport{Code: casesession.StatusCode(b[0])}, nil
}

func caseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Drive or serve a CASE session establishment handshake",
	}
	cmd.AddCommand(caseDialCmd(), caseListenCmd())
	return cmd
}

func caseDialCmd() *cobra.Command {
	var resumeIDHex string
	cmd := &cobra.Command{
		Use:   "dial <addr> <node-id-hex>",
		Short: "Open a CASE session to a peer listening at addr",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fab, err := loadLocalFabric(cfg)
			if err != nil {
				return err
			}
			nodeIDRaw, err := hex.DecodeString(args[1])
			if err != nil || len(nodeIDRaw) > 8 {
				return fmt.Errorf("node-id must be up to 8 hex bytes")
			}
			var nodeIDVal uint64
			for _, b := range nodeIDRaw {
				nodeIDVal = nodeIDVal<<8 | uint64(b)
			}

			store, err := openResumptionStore(cfg)
			if err != nil {
				return err
			}

			conn, err := net.Dial("tcp", args[0])
			if err != nil {
				return err
			}
			defer conn.Close()

			mgr := session.NewManager()
			sess := casesession.NewInitiator(mgr, fab, fabric.NodeID(nodeIDVal))

			if resumeIDHex != "" {
				idBytes, err := hex.DecodeString(resumeIDHex)
				if err != nil || len(idBytes) != casesession.ResumptionIDSize {
					return fmt.Errorf("--resume must be %d hex bytes", casesession.ResumptionIDSize)
				}
				var id [casesession.ResumptionIDSize]byte
				copy(id[:], idBytes)
				rec, err := store.Get(id)
				if err != nil {
					return fmt.Errorf("matterd: no stored resumption record for %s: %w", resumeIDHex, err)
				}
				sess.WithResumption(rec)
			}

			sigma1, err := sess.Start()
			if err != nil {
				return err
			}
			if err := writeFrame(conn, frameSigma1, sigma1); err != nil {
				return err
			}

			kind, payload, err := readFrame(conn)
			if err != nil {
				sess.Abort()
				return err
			}

			if kind == frameSigma2Resume {
				report, err := sess.HandleSigma2Resume(payload, store)
				if err != nil {
					sess.Abort()
					return err
				}
				if err := writeFrame(conn, frameStatusReport, encodeStatusReport(report)); err != nil {
					return err
				}
				logger.Info("CASE resumption handshake complete")
				return nil
			}

			if kind != frameSigma2 {
				sess.Abort()
				return fmt.Errorf("matterd: expected Σ2 or Σ2-resume, got frame type %d", kind)
			}
			sigma3, err := sess.HandleSigma2(payload)
			if err != nil {
				sess.Abort()
				return err
			}
			if err := writeFrame(conn, frameSigma3, sigma3); err != nil {
				return err
			}

			kind, payload, err = readFrame(conn)
			if err != nil {
				sess.Abort()
				return err
			}
			if kind != frameStatusReport {
				sess.Abort()
				return fmt.Errorf("matterd: expected StatusReport, got frame type %d", kind)
			}
			report, err := decodeStatusReport(payload)
			if err != nil {
				sess.Abort()
				return err
			}
			if err := sess.HandleStatusReport(report.Code == casesession.StatusSuccess); err != nil {
				return err
			}
			logger.Info("CASE full handshake complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&resumeIDHex, "resume", "", "hex resumption id of a stored record to resume instead of a full handshake")
	return cmd
}

func caseListenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen <addr>",
		Short: "Accept CASE session establishment attempts on addr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fab, err := loadLocalFabric(cfg)
			if err != nil {
				return err
			}
			store, err := openResumptionStore(cfg)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", args[0])
			if err != nil {
				return err
			}
			defer ln.Close()
			logger.Infof("listening for CASE handshakes on %s", ln.Addr())

			mgr := session.NewManager()
			fabricStore := &singleFabricStore{fab: fab}

			for {
				conn, err := ln.Accept()
				if err != nil {
					return err
				}
				go serveCaseConn(conn, fabricStore, mgr, store)
			}
		},
	}
	return cmd
}

func serveCaseConn(conn net.Conn, fabricStore fabric.Store, mgr *session.Manager, store session.Store) {
	defer conn.Close()

	connID := uuid.NewString()
	log := logger.WithField("conn_id", connID)

	sess := casesession.NewResponder(fabricStore, mgr, store)

	kind, payload, err := readFrame(conn)
	if err != nil {
		log.Warnf("case listen: read Σ1: %v", err)
		return
	}
	if kind != frameSigma1 {
		log.Warnf("case listen: expected Σ1, got frame type %d", kind)
		return
	}

	response, isResumption, err := sess.HandleSigma1(payload)
	if err != nil {
		log.Warnf("case listen: HandleSigma1: %v", err)
		return
	}

	if isResumption {
		if err := writeFrame(conn, frameSigma2Resume, response); err != nil {
			log.Warnf("case listen: write Σ2-resume: %v", err)
			return
		}
		kind, payload, err := readFrame(conn)
		if err != nil {
			sess.Abort()
			log.Warnf("case listen: read StatusReport: %v", err)
			return
		}
		if kind != frameStatusReport {
			sess.Abort()
			log.Warnf("case listen: expected StatusReport, got frame type %d", kind)
			return
		}
		report, err := decodeStatusReport(payload)
		if err != nil {
			sess.Abort()
			log.Warnf("case listen: %v", err)
			return
		}
		if err := sess.HandleStatusReport(report.Code == casesession.StatusSuccess); err != nil {
			log.Warnf("case listen: HandleStatusReport: %v", err)
			return
		}
		log.Info("CASE resumption handshake complete")
		return
	}

	if err := writeFrame(conn, frameSigma2, response); err != nil {
		log.Warnf("case listen: write Σ2: %v", err)
		return
	}

	kind, payload, err = readFrame(conn)
	if err != nil {
		sess.Abort()
		log.Warnf("case listen: read Σ3: %v", err)
		return
	}
	if kind != frameSigma3 {
		sess.Abort()
		log.Warnf("case listen: expected Σ3, got frame type %d", kind)
		return
	}
	report, err := sess.HandleSigma3(payload)
	if err != nil {
		log.Warnf("case listen: HandleSigma3: %v", err)
		if writeErr := writeFrame(conn, frameStatusReport, []byte{byte(casesession.StatusForError(err))}); writeErr != nil {
			log.Warnf("case listen: write error StatusReport: %v", writeErr)
		}
		return
	}
	if err := writeFrame(conn, frameStatusReport, encodeStatusReport(report)); err != nil {
		log.Warnf("case listen: write StatusReport: %v", err)
		return
	}
	log.Info("CASE full handshake complete")
}

func openResumptionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Fabric.ResumeDBPath == "" {
		return session.NewMemStore(), nil
	}
	return session.NewFileStore(cfg.Fabric.ResumeDBPath)
}
