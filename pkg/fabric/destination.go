package fabric

import (
	"encoding/binary"

	"matter-core/pkg/mcrypto"
)

// ComputeDestinationID computes a Sigma1 destination-identifier candidate
// for one (fabric, node) pair (Matter Core Specification §4.13.2.1):
//
//	HMAC-SHA256(IPK, Random || RootPublicKey || FabricID || NodeID)
//
// A responder holding N commissioned fabrics computes this once per fabric
// against the initiator's supplied Random and compares against the
// received DestinationID, using the first (and, since Random is
// unpredictable, only) match to select which fabric and node the Σ1 is
// addressed to.
func ComputeDestinationID(ipk [IPKSize]byte, peerRandom [32]byte, rootPub [RootPublicKeySize]byte, fabricID FabricID, nodeID NodeID) [32]byte {
	var fabricBE, nodeBE [8]byte
	binary.BigEndian.PutUint64(fabricBE[:], uint64(fabricID))
	binary.BigEndian.PutUint64(nodeBE[:], uint64(nodeID))
	return mcrypto.HMACSHA256(ipk[:], peerRandom[:], rootPub[:], fabricBE[:], nodeBE[:])
}

// CompressedFabricID derives the 8-byte compressed fabric identifier used
// to build mDNS operational instance names and subtype filters (§4.13.2.4):
//
//	HKDF-SHA256(secret=RootPublicKey[1:], salt=FabricID (big-endian),
//	            info="CompressedFabric", L=8)
func CompressedFabricID(rootPub [RootPublicKeySize]byte, fabricID FabricID) ([CompressedFabricIDSize]byte, error) {
	var salt [8]byte
	binary.BigEndian.PutUint64(salt[:], uint64(fabricID))

	out, err := mcrypto.HKDF(rootPub[1:], salt[:], []byte("CompressedFabric"), CompressedFabricIDSize)
	if err != nil {
		return [CompressedFabricIDSize]byte{}, err
	}
	var result [CompressedFabricIDSize]byte
	copy(result[:], out)
	return result, nil
}

// OperationalID derives the per-node operational identifier from the
// compressed fabric ID and node ID, formatted into mDNS instance names as
// "<operationalId>-<nodeId>._matter._tcp.local" (§4.13.1, GLOSSARY).
// Matter defines this identifier as the big-endian concatenation's worth of
// entropy; this package follows the common device-software convention of
// reusing the compressed fabric ID directly since it is already
// fabric-unique and node identity is carried separately in the instance
// name's second component.
func OperationalID(compressedFabricID [CompressedFabricIDSize]byte) [OperationalIDSize]byte {
	return compressedFabricID
}
