package radio

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"
)

// DefaultKey is the well known key of the Meshtastic default channel.
var DefaultKey = []byte{
	0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59,
	0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01,
}

// KeyFromPassphrase derives the AES-256 channel key shared by every device
// configured with the same mesh passphrase.
func KeyFromPassphrase(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

func xorHash(b []byte) uint8 {
	var h uint8
	for _, c := range b {
		h ^= c
	}
	return h
}

// ChannelHash is the one byte tag carried in MeshPacket.Channel so that
// receivers can skip packets from meshes they do not belong to.
func ChannelHash(name string, key []byte) uint32 {
	return uint32(xorHash([]byte(name)) ^ xorHash(key))
}

// XOR runs AES-CTR over data. The operation is its own inverse, so it is used
// for both encryption and decryption.
func XOR(data []byte, key []byte, packetID, fromNode uint32) ([]byte, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, ErrKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	nonce := make([]byte, aes.BlockSize)
	binary.LittleEndian.PutUint64(nonce[0:8], uint64(packetID))
	binary.LittleEndian.PutUint32(nonce[8:12], fromNode)

	out := make([]byte, len(data))
	cipher.NewCTR(block, nonce).XORKeyStream(out, data)
	return out, nil
}

// Encrypt returns a copy of packet whose decoded payload has been replaced by
// its encrypted form. Packets that are already encrypted are returned as is.
func Encrypt(packet *meshtastic.MeshPacket, key []byte) (*meshtastic.MeshPacket, error) {
	decoded, ok := packet.GetPayloadVariant().(*meshtastic.MeshPacket_Decoded)
	if !ok {
		if _, enc := packet.GetPayloadVariant().(*meshtastic.MeshPacket_Encrypted); enc {
			return packet, nil
		}
		return nil, ErrUnkownPayloadType
	}
	plain, err := proto.Marshal(decoded.Decoded)
	if err != nil {
		return nil, fmt.Errorf("marshalling data: %w", err)
	}
	ciphertext, err := XOR(plain, key, packet.Id, packet.From)
	if err != nil {
		return nil, err
	}
	out := proto.Clone(packet).(*meshtastic.MeshPacket)
	out.PayloadVariant = &meshtastic.MeshPacket_Encrypted{Encrypted: ciphertext}
	return out, nil
}

// TryDecode decode a payload to a Data protobuf
func TryDecode(packet *meshtastic.MeshPacket, key []byte) (*meshtastic.Data, error) {
	switch p := packet.GetPayloadVariant().(type) {
	case *meshtastic.MeshPacket_Decoded:
		return p.Decoded, nil
	case *meshtastic.MeshPacket_Encrypted:
		plain, err := XOR(p.Encrypted, key, packet.Id, packet.From)
		if err != nil {
			return nil, err
		}
		data := &meshtastic.Data{}
		if err := proto.Unmarshal(plain, data); err != nil {
			return nil, ErrDecrypt
		}
		return data, nil
	default:
		return nil, ErrUnkownPayloadType
	}
}
