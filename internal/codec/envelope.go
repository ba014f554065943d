package codec

import (
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/box"
)

// NonceSize is the size in bytes of the Nacl box nonce prefixed to every
// sealed packet.
const NonceSize = 24

// KeySize is the size in bytes of a Nacl box public or secret key.
const KeySize = 32

// BoxAuthFailureError reports a sealed packet that failed authentication
// on open — either it was mutated in transit or sealed under the wrong
// key pair.
type BoxAuthFailureError struct{}

func (e *BoxAuthFailureError) Error() string { return "box authentication failure" }

// UnknownSenderError reports a sealed packet whose source address has no
// registered public key.
type UnknownSenderError struct {
	Address string
}

func (e *UnknownSenderError) Error() string {
	return fmt.Sprintf("unknown sender: no public key registered for %s", e.Address)
}

// ShortEnvelopeError reports a packet too small to contain a nonce.
type ShortEnvelopeError struct {
	Length int
}

func (e *ShortEnvelopeError) Error() string {
	return fmt.Sprintf("short envelope: %d bytes, want at least %d", e.Length, NonceSize)
}

// nonceCounter is a per-destination monotonically increasing 24-byte
// nonce. The last 8 bytes hold a little-endian counter seeded from
// crypto/rand; the first 16 bytes are fixed at creation time so the full 24 bytes
// never repeat within the counter's lifetime so long as the counter
// itself does not wrap (it is a uint64, which at one packet per
// nanosecond would take over 500 years to exhaust).
type nonceCounter struct {
	mu      sync.Mutex
	prefix  [16]byte
	counter uint64
}

func newNonceCounter() (*nonceCounter, error) {
	nc := &nonceCounter{}
	if _, err := rand.Read(nc.prefix[:]); err != nil {
		return nil, err
	}
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	for i, b := range seed {
		nc.counter |= uint64(b) << (8 * i)
	}
	return nc, nil
}

// next returns the next nonce in sequence, incrementing the counter.
func (nc *nonceCounter) next() [NonceSize]byte {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	var out [NonceSize]byte
	copy(out[:16], nc.prefix[:])
	c := nc.counter
	for i := 0; i < 8; i++ {
		out[16+i] = byte(c)
		c >>= 8
	}
	nc.counter++
	return out
}

// Envelope seals and opens wire packets as Nacl boxes, tracking a
// monotonically increasing nonce per destination address and a registry
// of known peer public keys by source address.
type Envelope struct {
	secretKey *[KeySize]byte
	publicKey *[KeySize]byte

	mu          sync.Mutex
	peerKeys    map[string]*[KeySize]byte
	nonceByDest map[string]*nonceCounter
}

// NewEnvelope constructs an Envelope around this node's own key pair.
func NewEnvelope(publicKey, secretKey *[KeySize]byte) *Envelope {
	return &Envelope{
		secretKey:   secretKey,
		publicKey:   publicKey,
		peerKeys:    make(map[string]*[KeySize]byte),
		nonceByDest: make(map[string]*nonceCounter),
	}
}

// RegisterPeer records the public key associated with a peer address so
// future inbound packets from that address can be opened.
func (e *Envelope) RegisterPeer(address string, publicKey *[KeySize]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peerKeys[address] = publicKey
}

// ForgetPeer removes a peer's registered public key and its outbound
// nonce counter.
func (e *Envelope) ForgetPeer(address string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.peerKeys, address)
	delete(e.nonceByDest, address)
}

func (e *Envelope) counterFor(address string) (*nonceCounter, error) {
	e.mu.Lock()
	nc, ok := e.nonceByDest[address]
	e.mu.Unlock()
	if ok {
		return nc, nil
	}

	nc, err := newNonceCounter()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.nonceByDest[address]; ok {
		return existing, nil
	}
	e.nonceByDest[address] = nc
	return nc, nil
}

// Seal encrypts plaintext (the concatenated header ∥ payload) for
// delivery to destAddress using that destination's registered public
// key, prefixing the result with the next nonce in this destination's
// sequence.
func (e *Envelope) Seal(destAddress string, destPublicKey *[KeySize]byte, plaintext []byte) ([]byte, error) {
	nc, err := e.counterFor(destAddress)
	if err != nil {
		return nil, err
	}

	nonce := nc.next()
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+box.Overhead)
	copy(out, nonce[:])
	return box.Seal(out, plaintext, &nonce, destPublicKey, e.secretKey), nil
}

// SealBootstrap seals plaintext for a first-contact destination whose
// public key the recipient cannot yet have registered (the hole-puncher
// has no way to learn a newcomer's key before its first Register). The
// sender's own public key is prefixed in the clear ahead of the usual
// nonce ∥ ciphertext so the recipient can open the box, authenticate it,
// and only then trust and register the embedded key. Subsequent traffic
// between the pair uses the ordinary Seal/Open pair once both sides have
// registered one another.
func (e *Envelope) SealBootstrap(destAddress string, destPublicKey *[KeySize]byte, plaintext []byte) ([]byte, error) {
	sealed, err := e.Seal(destAddress, destPublicKey, plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, KeySize+len(sealed))
	out = append(out, e.publicKey[:]...)
	out = append(out, sealed...)
	return out, nil
}

// OpenBootstrap parses a SealBootstrap packet without requiring the
// sender's address to already be registered: the embedded public key is
// used directly to authenticate the box. Callers MUST only use the
// returned sender key after Open succeeds — a failed box never yields an
// identity worth trusting. It returns *ShortEnvelopeError or
// *BoxAuthFailureError as appropriate.
func (e *Envelope) OpenBootstrap(packet []byte) (senderPublicKey *[KeySize]byte, plaintext []byte, err error) {
	if len(packet) < KeySize+NonceSize {
		return nil, nil, &ShortEnvelopeError{Length: len(packet)}
	}

	var senderKey [KeySize]byte
	copy(senderKey[:], packet[:KeySize])

	var nonce [NonceSize]byte
	copy(nonce[:], packet[KeySize:KeySize+NonceSize])

	opened, ok := box.Open(nil, packet[KeySize+NonceSize:], &nonce, &senderKey, e.secretKey)
	if !ok {
		return nil, nil, &BoxAuthFailureError{}
	}
	return &senderKey, opened, nil
}

// Open strips the nonce prefix from packet and decrypts it using the
// public key registered for srcAddress. It returns *ShortEnvelopeError,
// *UnknownSenderError, or *BoxAuthFailureError as appropriate.
func (e *Envelope) Open(srcAddress string, packet []byte) ([]byte, error) {
	if len(packet) < NonceSize {
		return nil, &ShortEnvelopeError{Length: len(packet)}
	}

	e.mu.Lock()
	senderKey, ok := e.peerKeys[srcAddress]
	e.mu.Unlock()
	if !ok {
		return nil, &UnknownSenderError{Address: srcAddress}
	}

	var nonce [NonceSize]byte
	copy(nonce[:], packet[:NonceSize])

	plaintext, ok := box.Open(nil, packet[NonceSize:], &nonce, senderKey, e.secretKey)
	if !ok {
		return nil, &BoxAuthFailureError{}
	}
	return plaintext, nil
}
