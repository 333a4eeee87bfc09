package main

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"matter-core/pkg/config"
	"matter-core/pkg/fabric"
)

// loadLocalFabric hydrates the single commissioned fabric matterd runs
// CASE against from the files named in cfg.Fabric. The NOC and ICAC are
// the raw Matter Certificate TLV bytes pkg/fabric/cert.go parses; the
// signer key is a PEM-encoded SEC1/PKCS8 EC private key; the root public
// key and IPK are raw fixed-size byte files.
func loadLocalFabric(cfg *config.Config) (*fabric.Fabric, error) {
	nocBytes, err := os.ReadFile(cfg.Fabric.NOCFile)
	if err != nil {
		return nil, fmt.Errorf("matterd: read noc_file: %w", err)
	}

	var icacBytes []byte
	if cfg.Fabric.ICACFile != "" {
		icacBytes, err = os.ReadFile(cfg.Fabric.ICACFile)
		if err != nil {
			return nil, fmt.Errorf("matterd: read icac_file: %w", err)
		}
	}

	signer, err := loadECPrivateKey(cfg.Fabric.SignerFile)
	if err != nil {
		return nil, fmt.Errorf("matterd: load signer_file: %w", err)
	}

	rootPubBytes, err := os.ReadFile(cfg.Fabric.RootPublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("matterd: read root_public_key_file: %w", err)
	}
	if len(rootPubBytes) != fabric.RootPublicKeySize {
		return nil, fmt.Errorf("matterd: root_public_key_file must be %d bytes, got %d", fabric.RootPublicKeySize, len(rootPubBytes))
	}
	var rootPub [fabric.RootPublicKeySize]byte
	copy(rootPub[:], rootPubBytes)

	ipkBytes, err := os.ReadFile(cfg.Fabric.IPKFile)
	if err != nil {
		return nil, fmt.Errorf("matterd: read ipk_file: %w", err)
	}
	if len(ipkBytes) != fabric.IPKSize {
		return nil, fmt.Errorf("matterd: ipk_file must be %d bytes, got %d", fabric.IPKSize, len(ipkBytes))
	}
	var ipk [fabric.IPKSize]byte
	copy(ipk[:], ipkBytes)

	fabricID := fabric.FabricID(cfg.Fabric.FabricID)
	compressedID, err := fabric.CompressedFabricID(rootPub, fabricID)
	if err != nil {
		return nil, fmt.Errorf("matterd: derive compressed fabric id: %w", err)
	}

	return fabric.NewFabric(
		fabric.FabricIndex(cfg.Fabric.Index),
		fabricID,
		fabric.NodeID(cfg.Fabric.NodeID),
		compressedID,
		rootPub,
		nocBytes,
		icacBytes,
		ipk,
		signer,
	), nil
}

func loadECPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	pk, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported EC key encoding: %w", err)
	}
	ecKey, ok := pk.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS8 key is not an EC private key")
	}
	return ecKey, nil
}

// singleFabricStore answers FindByDestinationID against exactly the one
// fabric matterd has loaded. A node commissioned onto several fabrics
// would hold one entry per fabric and try each in turn (§4.9).
type singleFabricStore struct {
	fab *fabric.Fabric
}

func (s *singleFabricStore) FindByDestinationID(destinationID [32]byte, peerRandom [32]byte) (*fabric.Fabric, error) {
	candidate := fabric.ComputeDestinationID(s.fab.IPK, peerRandom, s.fab.RootPublicKey, s.fab.FabricID, s.fab.NodeID)
	if candidate != destinationID {
		return nil, fmt.Errorf("matterd: %w", fabric.ErrNotFound)
	}
	return s.fab, nil
}
