package radio

import (
	"sync"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
)

// Keyring tracks channel keys for packet decrypting, indexed by name and by
// channel hash.
type Keyring struct {
	mu     sync.RWMutex
	keys   map[string][]byte
	byHash map[uint32]string
}

func NewKeyring() *Keyring {
	return &Keyring{
		keys:   map[string][]byte{},
		byHash: map[uint32]string{},
	}
}

// Add registers key under the channel name, replacing any previous key.
func (k *Keyring) Add(name string, key []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if old, ok := k.keys[name]; ok {
		delete(k.byHash, ChannelHash(name, old))
	}
	k.keys[name] = key
	k.byHash[ChannelHash(name, key)] = name
}

func (k *Keyring) Key(name string) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[name]
	return key, ok
}

// ForPacket returns the channel name and key matching the packet's channel
// hash.
func (k *Keyring) ForPacket(packet *meshtastic.MeshPacket) (string, []byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	name, ok := k.byHash[packet.GetChannel()]
	if !ok {
		return "", nil, false
	}
	return name, k.keys[name], true
}

// TryDecode decodes packet with whichever known key matches its channel.
func (k *Keyring) TryDecode(packet *meshtastic.MeshPacket) (*meshtastic.Data, error) {
	if _, ok := packet.GetPayloadVariant().(*meshtastic.MeshPacket_Decoded); ok {
		return TryDecode(packet, nil)
	}
	_, key, ok := k.ForPacket(packet)
	if !ok {
		return nil, ErrDecrypt
	}
	return TryDecode(packet, key)
}
